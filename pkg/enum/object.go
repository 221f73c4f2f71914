package enum

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// objectInfo is a listed object in a remote store.
type objectInfo struct {
	Key  string
	Size int64
}

// objectStore is the minimal remote capability the enumerator needs.
type objectStore interface {
	List(ctx context.Context, prefix string) ([]objectInfo, error)
	Download(ctx context.Context, key, dst string) error
}

// ObjectEnumerator enumerates archives stored in an S3-compatible bucket or
// an Azure blob container. Each archive is downloaded to a temporary file
// just before the callback and removed right after it.
type ObjectEnumerator struct {
	config  Config
	store   objectStore
	prefix  string
	scratch string
}

// NewObjectEnumerator parses cfg.Root and connects to the matching store.
func NewObjectEnumerator(cfg Config) (*ObjectEnumerator, error) {
	u, err := url.Parse(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing root %q: %w", types.ErrInputNotReadable, cfg.Root, err)
	}
	bucket := u.Host
	if bucket == "" {
		return nil, fmt.Errorf("%w: root %q has no bucket or container", types.ErrInputNotFound, cfg.Root)
	}
	prefix := strings.TrimPrefix(u.Path, "/")

	var store objectStore
	switch u.Scheme {
	case "s3":
		store, err = newMinioStore(cfg.Remote, bucket)
	case "azblob":
		store, err = newAzureStore(cfg.Remote, bucket)
	default:
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInputNotReadable, err)
	}

	return newObjectEnumerator(cfg, store, prefix), nil
}

func newObjectEnumerator(cfg Config, store objectStore, prefix string) *ObjectEnumerator {
	return &ObjectEnumerator{config: cfg, store: store, prefix: prefix, scratch: os.TempDir()}
}

// Enumerate lists the prefix, keeps recognised archives, and yields them
// sorted by key.
func (e *ObjectEnumerator) Enumerate(ctx context.Context, callback func(desc types.ArchiveDescriptor) error) error {
	objects, err := e.store.List(ctx, e.prefix)
	if err != nil {
		return fmt.Errorf("%w: listing %s: %w", types.ErrInputNotReadable, e.config.Root, err)
	}

	var exclude *gitignore.GitIgnore
	if len(e.config.ExcludeArchives) > 0 {
		exclude = gitignore.CompileIgnoreLines(e.config.ExcludeArchives...)
	}

	var found []types.ArchiveDescriptor
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		name := path.Base(obj.Key)
		kind, ok := types.ArchiveKindOf(name)
		if !ok {
			continue
		}
		relPath := strings.TrimPrefix(strings.TrimPrefix(obj.Key, e.prefix), "/")
		if relPath == "" {
			relPath = name
		}
		if exclude != nil && exclude.MatchesPath(relPath) {
			continue
		}
		found = append(found, types.ArchiveDescriptor{
			Path:             obj.Key,
			RelPath:          relPath,
			Kind:             kind,
			DistributionHint: types.DistributionHint(name),
			Size:             obj.Size,
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].RelPath < found[j].RelPath })

	for _, desc := range found {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.yield(ctx, desc, callback); err != nil {
			return err
		}
	}
	return nil
}

// yield downloads one archive and hands a local descriptor to the callback.
// A failed download is reported like an unreadable archive would be: the
// callback still runs, with a path that cannot be opened.
func (e *ObjectEnumerator) yield(ctx context.Context, desc types.ArchiveDescriptor, callback func(types.ArchiveDescriptor) error) error {
	dir, err := os.MkdirTemp(e.scratch, "shardex-*")
	if err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, path.Base(desc.RelPath))
	if err := e.store.Download(ctx, desc.Path, local); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.config.skip(desc.Path, err)
	}

	desc.Path = local
	return callback(desc)
}
