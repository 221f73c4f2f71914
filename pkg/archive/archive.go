// Package archive opens distribution archives and exposes their members
// without extracting them.
package archive

import (
	"fmt"
	"io"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// Reader is the capability set shared by every archive format.
type Reader interface {
	// Members lists the archive's entries. Directories are omitted; other
	// non-regular entries are reported with IsRegular=false.
	Members() ([]types.MemberEntry, error)

	// Open returns the content of a member previously returned by Members.
	Open(member types.MemberEntry) (io.ReadCloser, error)

	// Close releases the archive's file handle.
	Close() error
}

// Open opens the archive at desc.Path according to desc.Kind.
// Failures wrap types.ErrArchiveUnreadable.
func Open(desc types.ArchiveDescriptor) (Reader, error) {
	switch desc.Kind {
	case types.KindZip:
		return openZip(desc)
	case types.KindTar:
		return openTar(desc)
	case types.KindSevenZip:
		return openSevenZip(desc)
	default:
		return nil, fmt.Errorf("%w: %s: unsupported archive kind %q", types.ErrArchiveUnreadable, desc.RelPath, desc.Kind)
	}
}

func unreadable(desc types.ArchiveDescriptor, err error) error {
	return fmt.Errorf("%w: %s: %w", types.ErrArchiveUnreadable, desc.RelPath, err)
}

// memberIndex keeps the first occurrence of each member path.
type memberIndex[T any] struct {
	order   []types.MemberEntry
	entries map[string]T
}

func newMemberIndex[T any]() *memberIndex[T] {
	return &memberIndex[T]{entries: make(map[string]T)}
}

func (idx *memberIndex[T]) add(entry types.MemberEntry, v T) {
	if _, dup := idx.entries[entry.Path]; dup {
		return
	}
	idx.entries[entry.Path] = v
	idx.order = append(idx.order, entry)
}

func (idx *memberIndex[T]) members() []types.MemberEntry {
	out := make([]types.MemberEntry, len(idx.order))
	copy(out, idx.order)
	return out
}
