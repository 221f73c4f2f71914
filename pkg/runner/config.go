package runner

import (
	"fmt"

	"github.com/praetorian-inc/shardex/pkg/enum"
	"github.com/praetorian-inc/shardex/pkg/sampler"
	"github.com/praetorian-inc/shardex/pkg/selector"
	"github.com/praetorian-inc/shardex/pkg/types"
)

// Config is the immutable configuration of one run.
type Config struct {
	// Enum locates archives. Ignored when Enumerator is set.
	Enum enum.Config
	// Roots, when set, replaces Enum with several roots enumerated in
	// order. An archive path already seen under an earlier root is skipped.
	Roots []enum.Config
	// Enumerator overrides both Enum and Roots.
	Enumerator enum.Enumerator

	Selector selector.Config

	// PerArchive caps emitted members per archive. Zero means no cap.
	PerArchive int

	// Global budgets. Zero means unlimited.
	MaxLines    int
	MaxMembers  int
	MaxArchives int

	// Index, when set, receives every emitted unit. With Incremental, units
	// whose text an earlier run already emitted are skipped.
	Index       Index
	Incremental bool

	// RunID names the run in the index. Generated when empty and Index is set.
	RunID string

	Logger Logger
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig(root string) Config {
	return Config{
		Enum: enum.Config{Root: root},
		Selector: selector.Config{
			MinBytes: selector.DefaultMinBytes,
			MaxBytes: selector.DefaultMaxBytes,
			Suffixes: selector.DefaultSuffixes,
		},
		PerArchive: sampler.DefaultPerArchive,
	}
}

// Validate checks budgets and size bounds.
func (c Config) Validate() error {
	if c.PerArchive < 0 {
		return fmt.Errorf("%w: per-archive cap must be >= 0", types.ErrInvalidConfig)
	}
	if c.MaxLines < 0 || c.MaxMembers < 0 || c.MaxArchives < 0 {
		return fmt.Errorf("%w: budgets must be >= 0", types.ErrInvalidConfig)
	}
	if c.Selector.MinBytes < 0 || c.Selector.MaxBytes < c.Selector.MinBytes {
		return fmt.Errorf("%w: size window [%d, %d] is empty", types.ErrInvalidConfig, c.Selector.MinBytes, c.Selector.MaxBytes)
	}
	if c.Incremental && c.Index == nil {
		return fmt.Errorf("%w: incremental runs need a datastore", types.ErrInvalidConfig)
	}
	if c.Enumerator == nil && c.Enum.Root == "" && len(c.Roots) == 0 {
		return fmt.Errorf("%w: root is required", types.ErrInvalidConfig)
	}
	return nil
}
