package enum

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// FilesystemEnumerator enumerates archives under a local directory.
type FilesystemEnumerator struct {
	config Config
}

// NewFilesystemEnumerator creates a new filesystem enumerator.
func NewFilesystemEnumerator(config Config) *FilesystemEnumerator {
	return &FilesystemEnumerator{config: config}
}

// Enumerate walks the root and yields archives sorted by relative path.
// Phase 1: walk the tree and collect archive paths without following symlinks.
// Phase 2: sort and hand each descriptor to the callback.
func (e *FilesystemEnumerator) Enumerate(ctx context.Context, callback func(desc types.ArchiveDescriptor) error) error {
	root := e.config.Root

	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", types.ErrInputNotFound, root)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", types.ErrInputNotReadable, root, err)
	}

	// A single archive may be given as the root.
	if !info.IsDir() {
		kind, ok := types.ArchiveKindOf(root)
		if !ok {
			return fmt.Errorf("%w: %s is neither a directory nor an archive", types.ErrInputNotReadable, root)
		}
		name := filepath.Base(root)
		return callback(types.ArchiveDescriptor{
			Path:             root,
			RelPath:          name,
			Kind:             kind,
			DistributionHint: types.DistributionHint(name),
			Size:             info.Size(),
		})
	}

	if _, err := os.ReadDir(root); err != nil {
		return fmt.Errorf("%w: %s: %w", types.ErrInputNotReadable, root, err)
	}

	var exclude *gitignore.GitIgnore
	if len(e.config.ExcludeArchives) > 0 {
		exclude = gitignore.CompileIgnoreLines(e.config.ExcludeArchives...)
	}

	// Phase 1: walk and collect
	var found []types.ArchiveDescriptor
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("%w: %s: %w", types.ErrInputNotReadable, root, err)
			}
			e.config.skip(path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Directories are descended by WalkDir itself; symlinks are never followed.
		if !d.Type().IsRegular() {
			return nil
		}

		kind, ok := types.ArchiveKindOf(d.Name())
		if !ok {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if exclude != nil && exclude.MatchesPath(relPath) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			e.config.skip(path, err)
			return nil
		}

		found = append(found, types.ArchiveDescriptor{
			Path:             path,
			RelPath:          relPath,
			Kind:             kind,
			DistributionHint: types.DistributionHint(d.Name()),
			Size:             fi.Size(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	// Phase 2: yield in path order
	sort.Slice(found, func(i, j int) bool { return found[i].RelPath < found[j].RelPath })

	for _, desc := range found {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := callback(desc); err != nil {
			return err
		}
	}
	return nil
}
