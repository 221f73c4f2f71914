// Package datastore keeps a directory of emitted unit texts alongside a run
// index, so earlier runs can be replayed and later runs can skip known units.
package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/praetorian-inc/shardex/pkg/store"
	"github.com/praetorian-inc/shardex/pkg/types"
)

// Datastore manages a directory-based datastore:
//
//	<dir>/datastore.db   run index (unless IndexDSN points elsewhere)
//	<dir>/blobs/ab/cd…   unit texts
type Datastore struct {
	Path      string
	Store     store.Store
	BlobStore *BlobStore
}

// Options configures datastore behavior.
type Options struct {
	// IndexDSN moves the run index to PostgreSQL. Blobs stay in the directory.
	IndexDSN string
}

// Open opens or creates a datastore directory.
func Open(path string, opts Options) (*Datastore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: datastore path is required", types.ErrInvalidConfig)
	}

	blobsDir := filepath.Join(path, "blobs")
	if err := os.MkdirAll(blobsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating datastore directory: %w", err)
	}

	gitignorePath := filepath.Join(path, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("*\n"), 0644); err != nil {
		return nil, fmt.Errorf("writing .gitignore: %w", err)
	}

	s, err := store.New(store.Config{
		Path: filepath.Join(path, "datastore.db"),
		DSN:  opts.IndexDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	return &Datastore{
		Path:      path,
		Store:     s,
		BlobStore: &BlobStore{Root: blobsDir},
	}, nil
}

// AddRun records or updates a run in the index.
func (d *Datastore) AddRun(run *store.Run) error {
	return d.Store.AddRun(run)
}

// AddUnit stores a unit's text and indexes it under the run.
func (d *Datastore) AddUnit(runID string, seq int, rec types.UnitRecord, text []byte) error {
	id, err := d.BlobStore.Put(text)
	if err != nil {
		return err
	}
	if id != rec.BlobID {
		return fmt.Errorf("unit %s: blob ID mismatch: %s != %s", rec.EmitPath, id, rec.BlobID)
	}
	return d.Store.AddUnit(runID, seq, rec)
}

// UnitExists reports whether a run other than exceptRun emitted a unit with
// this text.
func (d *Datastore) UnitExists(id types.BlobID, exceptRun string) (bool, error) {
	return d.Store.UnitExists(id, exceptRun)
}

// Text returns a stored unit's text. Records without a blob ID have no stored text.
func (d *Datastore) Text(rec types.UnitRecord) ([]byte, error) {
	if rec.BlobID.IsZero() {
		return nil, fmt.Errorf("%w: unit %s has no blob ID", ErrBlobNotFound, rec.EmitPath)
	}
	return d.BlobStore.Get(rec.BlobID)
}

// MergeStats counts what Merge copied.
type MergeStats struct {
	store.MergeStats
	BlobsCopied int
}

// Merge copies src's runs, units and blobs into d. Runs d already holds are
// skipped; blobs are content-addressed, so existing ones are left alone.
func (d *Datastore) Merge(src *Datastore) (*MergeStats, error) {
	indexStats, err := store.MergeInto(d.Store, src.Store)
	if err != nil {
		return nil, fmt.Errorf("merging index: %w", err)
	}
	stats := &MergeStats{MergeStats: *indexStats}

	err = src.BlobStore.Walk(func(id types.BlobID) error {
		if d.BlobStore.Exists(id) {
			return nil
		}
		text, err := src.BlobStore.Get(id)
		if err != nil {
			return err
		}
		if _, err := d.BlobStore.Put(text); err != nil {
			return err
		}
		stats.BlobsCopied++
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("copying blobs: %w", err)
	}
	return stats, nil
}

// Close closes the datastore and releases resources.
func (d *Datastore) Close() error {
	if d.Store != nil {
		return d.Store.Close()
	}
	return nil
}
