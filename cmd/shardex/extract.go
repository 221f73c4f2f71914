package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/praetorian-inc/shardex/pkg/datastore"
	"github.com/praetorian-inc/shardex/pkg/enum"
	"github.com/praetorian-inc/shardex/pkg/runner"
	"github.com/praetorian-inc/shardex/pkg/sampler"
	"github.com/praetorian-inc/shardex/pkg/selector"
	"github.com/praetorian-inc/shardex/pkg/types"
)

var (
	extractRoots           []string
	extractOut             string
	extractMaxLines        int
	extractPerArchive      int
	extractMinBytes        int64
	extractMaxBytes        int64
	extractIncludePatterns []string
	extractExcludePatterns []string
	extractExcludeArchives []string
	extractSuffixes        []string
	extractMaxMembers      int
	extractMaxArchives     int
	extractOnlyFrom        string
	extractDatastore       string
	extractIndexDSN        string
	extractIncremental     bool
	extractConfig          string
)

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract --root <dir|s3://bucket/prefix|azblob://container/prefix>",
		Short: "Extract a sample of Python sources into a unit stream",
		Long: `Walk one or more archive roots, select top-level Python files from every
archive and write them as a stream of "=== <path> ===" delimited units.

The run manifest is written next to the stream as <out stem>.manifest.json,
or to stderr when the stream goes to stdout.`,
		Args: checkArgs(cobra.NoArgs),
		RunE: runExtract,
	}

	cmd.Flags().StringArrayVar(&extractRoots, "root", nil, "Archive root: directory, archive file or object store URL (repeatable)")
	cmd.Flags().StringVarP(&extractOut, "out", "o", "", "Stream output file (default stdout)")
	cmd.Flags().IntVar(&extractMaxLines, "max-lines", 0, "Stop after this many stream lines (0 for unlimited)")
	cmd.Flags().IntVar(&extractPerArchive, "per-archive", sampler.DefaultPerArchive, "Members emitted per archive (0 for unlimited)")
	cmd.Flags().Int64Var(&extractMinBytes, "min-bytes", selector.DefaultMinBytes, "Smallest member size to emit (bytes)")
	cmd.Flags().Int64Var(&extractMaxBytes, "max-bytes", selector.DefaultMaxBytes, "Largest member size to emit (bytes)")
	cmd.Flags().StringArrayVar(&extractIncludePatterns, "include-pattern", nil, "Only emit members matching this gitignore-style pattern (repeatable)")
	cmd.Flags().StringArrayVar(&extractExcludePatterns, "exclude-pattern", nil, "Skip members matching this gitignore-style pattern (repeatable)")
	cmd.Flags().StringArrayVar(&extractExcludeArchives, "exclude-archive", nil, "Skip archives matching this gitignore-style pattern (repeatable)")
	cmd.Flags().StringArrayVar(&extractSuffixes, "suffix", selector.DefaultSuffixes, "Member suffix to select (repeatable)")
	cmd.Flags().IntVar(&extractMaxMembers, "max-members", 0, "Stop after this many emitted members (0 for unlimited)")
	cmd.Flags().IntVar(&extractMaxArchives, "max-archives", 0, "Stop after this many archives (0 for unlimited)")
	cmd.Flags().StringVar(&extractOnlyFrom, "only-from-manifest", "", "Only emit units listed in this manifest")
	cmd.Flags().StringVar(&extractDatastore, "datastore", "", "Record the run and unit texts in this datastore directory")
	cmd.Flags().StringVar(&extractIndexDSN, "index-dsn", "", "PostgreSQL DSN for the datastore run index")
	cmd.Flags().BoolVar(&extractIncremental, "incremental", false, "Skip units an earlier run already recorded in the datastore")
	cmd.Flags().StringVar(&extractConfig, "config", "", "YAML file with flag defaults (keys are flag names)")
	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	if err := applyConfigFile(cmd, extractConfig); err != nil {
		return err
	}
	toStdout := extractOut == "" || extractOut == "-"
	log := newLogger(cmd.ErrOrStderr())
	if toStdout {
		log = log.manifestOnly()
	}

	cfg, err := extractConfigFromFlags(log)
	if err != nil {
		return err
	}

	if extractDatastore != "" {
		ds, err := datastore.Open(extractDatastore, datastore.Options{IndexDSN: extractIndexDSN})
		if err != nil {
			return fmt.Errorf("opening datastore: %w", err)
		}
		defer ds.Close()
		cfg.Index = ds
	}

	// Validate before the stream file is created.
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	manifestOut := cmd.ErrOrStderr()
	var file *os.File
	if !toStdout {
		file, err = os.Create(extractOut)
		if err != nil {
			return fmt.Errorf("%w: creating %s: %w", types.ErrOutputWrite, extractOut, err)
		}
		defer file.Close()
		out = file
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manifest, runErr := runner.Run(ctx, cfg, out)
	if manifest == nil {
		return runErr
	}

	if file != nil {
		if err := file.Close(); err != nil && runErr == nil {
			runErr = fmt.Errorf("%w: closing %s: %w", types.ErrOutputWrite, extractOut, err)
		}
		if err := runner.SaveManifest(runner.ManifestPath(extractOut), manifest); err != nil && runErr == nil {
			runErr = err
		}
	} else if err := runner.WriteManifest(manifestOut, manifest); err != nil && runErr == nil {
		runErr = err
	}

	if runErr == nil && manifest.Truncated {
		log.Infof("output truncated by budget")
	}
	return runErr
}

// extractConfigFromFlags builds the run configuration from the parsed flags.
func extractConfigFromFlags(log runner.Logger) (runner.Config, error) {
	if len(extractRoots) == 0 {
		return runner.Config{}, fmt.Errorf("%w: --root is required", types.ErrInvalidConfig)
	}
	if extractIndexDSN != "" && extractDatastore == "" {
		return runner.Config{}, fmt.Errorf("%w: --index-dsn needs --datastore", types.ErrInvalidConfig)
	}

	cfg := runner.DefaultConfig(strings.Join(extractRoots, ","))
	cfg.Logger = log
	cfg.PerArchive = extractPerArchive
	cfg.MaxLines = extractMaxLines
	cfg.MaxMembers = extractMaxMembers
	cfg.MaxArchives = extractMaxArchives
	cfg.Incremental = extractIncremental
	cfg.Selector = selector.Config{
		MinBytes: extractMinBytes,
		MaxBytes: extractMaxBytes,
		Suffixes: extractSuffixes,
		Include:  extractIncludePatterns,
		Exclude:  extractExcludePatterns,
	}

	if extractOnlyFrom != "" {
		m, err := runner.LoadManifest(extractOnlyFrom)
		if err != nil {
			return runner.Config{}, err
		}
		cfg.Selector.Allow = m.EmitPaths()
	}

	remote := enum.RemoteConfigFromEnv()
	onSkip := func(path string, err error) {
		log.Warnf("skipping %s: %v", path, err)
	}
	for _, root := range extractRoots {
		cfg.Roots = append(cfg.Roots, enum.Config{
			Root:            root,
			ExcludeArchives: extractExcludeArchives,
			OnSkip:          onSkip,
			Remote:          remote,
		})
	}
	return cfg, nil
}

// applyConfigFile sets every flag named in the YAML file that was not given
// on the command line. List values set repeatable flags once per item.
func applyConfigFile(cmd *cobra.Command, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: config %s", types.ErrInputNotFound, path)
		}
		return fmt.Errorf("%w: config %s: %w", types.ErrInputNotReadable, path, err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("%w: config %s: %w", types.ErrInvalidConfig, path, err)
	}

	flags := cmd.Flags()
	for name, value := range values {
		flag := flags.Lookup(name)
		if flag == nil || name == "config" {
			return fmt.Errorf("%w: config %s: unknown key %q", types.ErrInvalidConfig, path, name)
		}
		if flag.Changed {
			continue
		}
		items, ok := value.([]any)
		if !ok {
			items = []any{value}
		}
		for _, item := range items {
			if err := flags.Set(name, fmt.Sprint(item)); err != nil {
				return fmt.Errorf("%w: config %s: %s: %w", types.ErrInvalidConfig, path, name, err)
			}
		}
	}
	return nil
}
