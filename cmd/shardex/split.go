package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/praetorian-inc/shardex/pkg/emit"
	"github.com/praetorian-inc/shardex/pkg/runner"
	"github.com/praetorian-inc/shardex/pkg/types"
)

var (
	splitDir      string
	splitWorkers  int
	splitManifest string
)

func newSplitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split <stream> --dir <dir>",
		Short: "Write every unit of a stream to its own file",
		Long: `Split a unit stream back into files. Each unit is written to <dir>/<path>,
where <path> is the path from its delimiter line.

A unit whose text contains a delimiter-shaped line cannot be told apart from
two units. Pass the run's manifest with --manifest to split by the line counts
it records instead.`,
		Args: checkArgs(cobra.ExactArgs(1)),
		RunE: runSplit,
	}
	cmd.Flags().StringVar(&splitDir, "dir", "", "Directory to write units into")
	cmd.Flags().IntVar(&splitWorkers, "workers", runtime.NumCPU(), "Number of concurrent writers")
	cmd.Flags().StringVar(&splitManifest, "manifest", "", "Manifest of the run that wrote the stream")
	return cmd
}

func runSplit(cmd *cobra.Command, args []string) error {
	if splitDir == "" {
		return fmt.Errorf("%w: --dir is required", types.ErrInvalidConfig)
	}
	if splitWorkers < 1 {
		return fmt.Errorf("%w: --workers must be >= 1", types.ErrInvalidConfig)
	}

	var units []types.UnitRecord
	if splitManifest != "" {
		m, err := runner.LoadManifest(splitManifest)
		if err != nil {
			return err
		}
		units = m.Units
	}

	records, err := readStream(args[0], units)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if !filepath.IsLocal(filepath.FromSlash(rec.Path)) {
			return fmt.Errorf("%w: unit path %q leaves the output directory", types.ErrInputNotReadable, rec.Path)
		}
		if _, dup := seen[rec.Path]; dup {
			return fmt.Errorf("%w: unit path %q appears twice", types.ErrInputNotReadable, rec.Path)
		}
		seen[rec.Path] = struct{}{}
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(splitWorkers)
	for _, rec := range records {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return writeRecord(splitDir, rec)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	newLogger(cmd.ErrOrStderr()).Infof("wrote %d units to %s", len(records), splitDir)
	return nil
}

// readStream parses the stream at path. When units is non-nil the records are
// cut by their recorded line counts.
func readStream(path string, units []types.UnitRecord) ([]emit.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %w", types.ErrInputNotReadable, path, err)
	}
	defer f.Close()

	var records []emit.Record
	if units != nil {
		records, err = emit.ReadUnits(f, units)
	} else {
		records, err = emit.ReadAll(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrInputNotReadable, path, err)
	}
	return records, nil
}

func writeRecord(dir string, rec emit.Record) error {
	dst := filepath.Join(dir, filepath.FromSlash(rec.Path))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("%w: %w", types.ErrOutputWrite, err)
	}
	if err := os.WriteFile(dst, rec.Text, 0644); err != nil {
		return fmt.Errorf("%w: %w", types.ErrOutputWrite, err)
	}
	return nil
}
