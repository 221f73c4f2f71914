package enum

import (
	"context"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// CombinedEnumerator runs multiple enumerators sequentially and suppresses
// archives whose relative path was already yielded by an earlier one, so
// mirrored roots contribute each archive once.
type CombinedEnumerator struct {
	enumerators []Enumerator
}

// NewCombinedEnumerator creates a CombinedEnumerator that wraps the provided
// enumerators. They are run in order.
func NewCombinedEnumerator(enumerators ...Enumerator) *CombinedEnumerator {
	return &CombinedEnumerator{enumerators: enumerators}
}

// Enumerate runs each child enumerator in sequence, passing first-seen
// archives to callback.
func (c *CombinedEnumerator) Enumerate(ctx context.Context, callback func(desc types.ArchiveDescriptor) error) error {
	seen := make(map[string]bool)

	for _, e := range c.enumerators {
		err := e.Enumerate(ctx, func(desc types.ArchiveDescriptor) error {
			if seen[desc.RelPath] {
				return nil
			}
			seen[desc.RelPath] = true
			return callback(desc)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
