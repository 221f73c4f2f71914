// Package shardex extracts a bounded sample of top-level Python sources from
// a tree of package archives into one delimited text stream.
//
// # Basic Usage
//
// Extract with the defaults (one member per archive, 64 B to 64 KiB, .py):
//
//	x, err := shardex.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	manifest, err := x.Extract(ctx, "/srv/mirror/packages", os.Stdout)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("emitted %d members\n", manifest.MembersEmitted)
//
// # With Budgets
//
//	x, err := shardex.New(
//	    shardex.WithPerArchive(3),
//	    shardex.WithMaxLines(100_000),
//	    shardex.WithPatterns(nil, []string{"setup.py", "conftest.py"}),
//	)
package shardex

import (
	"context"
	"fmt"
	"io"

	"github.com/praetorian-inc/shardex/pkg/enum"
	"github.com/praetorian-inc/shardex/pkg/runner"
	"github.com/praetorian-inc/shardex/pkg/types"
)

// Re-export commonly used types for convenience.
type (
	// Manifest summarises what a run emitted and rejected.
	Manifest = types.RunManifest

	// UnitRecord describes one emitted unit.
	UnitRecord = types.UnitRecord

	// Reason explains why a member was emitted or rejected.
	Reason = types.Reason

	// Logger receives run diagnostics.
	Logger = runner.Logger

	// RemoteConfig holds object store settings for s3:// and azblob:// roots.
	RemoteConfig = enum.RemoteConfig
)

// Extractor runs extractions with a fixed configuration.
type Extractor struct {
	config runner.Config
}

// Option configures an Extractor.
type Option func(*runner.Config)

// WithPerArchive caps emitted members per archive. Zero removes the cap.
func WithPerArchive(k int) Option {
	return func(c *runner.Config) {
		c.PerArchive = k
	}
}

// WithMaxLines sets the global line budget. The unit that reaches it is
// still emitted in full.
func WithMaxLines(n int) Option {
	return func(c *runner.Config) {
		c.MaxLines = n
	}
}

// WithSizeWindow sets the inclusive member size bounds in bytes.
func WithSizeWindow(minBytes, maxBytes int64) Option {
	return func(c *runner.Config) {
		c.Selector.MinBytes = minBytes
		c.Selector.MaxBytes = maxBytes
	}
}

// WithSuffixes replaces the admitted source suffixes.
func WithSuffixes(suffixes ...string) Option {
	return func(c *runner.Config) {
		c.Selector.Suffixes = suffixes
	}
}

// WithPatterns sets gitignore-style include and exclude patterns, matched
// against member paths inside the distribution.
func WithPatterns(include, exclude []string) Option {
	return func(c *runner.Config) {
		c.Selector.Include = include
		c.Selector.Exclude = exclude
	}
}

// WithLogger routes run diagnostics to l.
func WithLogger(l Logger) Option {
	return func(c *runner.Config) {
		c.Logger = l
	}
}

// WithRemote sets object store credentials, replacing those New reads from
// the environment.
func WithRemote(rc RemoteConfig) Option {
	return func(c *runner.Config) {
		c.Enum.Remote = rc
	}
}

// New creates an Extractor with the given options. Object store settings
// default to the SHARDEX_S3_* and AZURE_STORAGE_CONNECTION_STRING variables.
func New(opts ...Option) (*Extractor, error) {
	config := runner.DefaultConfig("")
	config.Enum.Remote = enum.RemoteConfigFromEnv()
	for _, opt := range opts {
		opt(&config)
	}

	// Validate everything except the root, which Extract supplies.
	probe := config
	probe.Enum.Root = "."
	if err := probe.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	return &Extractor{config: config}, nil
}

// Extract walks root (a directory, an archive, or an s3:// or azblob:// URL)
// and writes the unit stream to w.
func (x *Extractor) Extract(ctx context.Context, root string, w io.Writer) (*Manifest, error) {
	cfg := x.config
	cfg.Enum.Root = root
	return runner.Run(ctx, cfg, w)
}
