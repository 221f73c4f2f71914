package datastore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/praetorian-inc/shardex/pkg/types"
)

var (
	// ErrBlobNotFound is returned when a unit's text is not in the blob store.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrBlobCorrupt is returned when stored text no longer hashes to its ID.
	ErrBlobCorrupt = errors.New("blob corrupt")
)

// BlobStore holds emitted unit texts, addressed by their git-style SHA-1.
type BlobStore struct {
	Root string
}

// Put writes text to the store and returns its blob ID. Storing the same
// text twice is a no-op.
func (b *BlobStore) Put(text []byte) (types.BlobID, error) {
	id := types.ComputeBlobID(text)

	path := b.blobPath(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return types.BlobID{}, fmt.Errorf("creating blob directory: %w", err)
	}

	// temp file + rename so readers never see a partial blob
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, text, 0644); err != nil {
		return types.BlobID{}, fmt.Errorf("writing blob: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return types.BlobID{}, fmt.Errorf("renaming blob: %w", err)
	}

	return id, nil
}

// Get returns the text stored under id after checking it still hashes to id.
func (b *BlobStore) Get(id types.BlobID) ([]byte, error) {
	text, err := os.ReadFile(b.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	if types.ComputeBlobID(text) != id {
		return nil, fmt.Errorf("%w: %s", ErrBlobCorrupt, id)
	}
	return text, nil
}

// Exists checks if a blob exists in storage.
func (b *BlobStore) Exists(id types.BlobID) bool {
	_, err := os.Stat(b.blobPath(id))
	return err == nil
}

// Walk calls fn for every stored blob. Files that do not name a blob are
// ignored.
func (b *BlobStore) Walk(fn func(id types.BlobID) error) error {
	err := filepath.WalkDir(b.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.Root, path)
		if err != nil {
			return err
		}
		id, err := types.ParseBlobID(strings.ReplaceAll(filepath.ToSlash(rel), "/", ""))
		if err != nil {
			return nil
		}
		return fn(id)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// blobPath uses a git-style 2-char prefix: blobs/ab/cdef1234...
func (b *BlobStore) blobPath(id types.BlobID) string {
	hexID := id.Hex()
	return filepath.Join(b.Root, hexID[:2], hexID[2:])
}
