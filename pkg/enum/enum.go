package enum

import (
	"context"
	"strings"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// Enumerator discovers distribution archives under a root.
type Enumerator interface {
	// Enumerate yields archive descriptors in deterministic order. The
	// descriptor's Path is a local file that stays valid until the callback
	// returns.
	Enumerate(ctx context.Context, callback func(desc types.ArchiveDescriptor) error) error
}

// Config for enumeration.
type Config struct {
	// Root is a directory, a single archive file, or a remote URL
	// (s3://bucket/prefix, azblob://container/prefix).
	Root string

	// ExcludeArchives are gitignore-style patterns matched against archive
	// paths relative to Root.
	ExcludeArchives []string

	// OnSkip is called for nested paths that cannot be read. Nil ignores them.
	OnSkip func(path string, err error)

	// Remote holds object store settings for remote roots.
	Remote RemoteConfig
}

// New returns the enumerator matching cfg.Root.
func New(cfg Config) (Enumerator, error) {
	if IsRemote(cfg.Root) {
		return NewObjectEnumerator(cfg)
	}
	return NewFilesystemEnumerator(cfg), nil
}

// IsRemote reports whether root names an object store location.
func IsRemote(root string) bool {
	return strings.HasPrefix(root, "s3://") || strings.HasPrefix(root, "azblob://")
}

func (c Config) skip(path string, err error) {
	if c.OnSkip != nil {
		c.OnSkip(path, err)
	}
}
