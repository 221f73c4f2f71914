package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/praetorian-inc/shardex/pkg/types"
)

var (
	verbose bool
	quiet   bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shardex",
		Short: "Shardex - extract Python source shards from package archives",
		Long: `Shardex walks a tree of package distributions (wheels, sdists, eggs),
picks a bounded sample of top-level Python files from each archive and writes
them as one delimited text stream, together with a JSON manifest of what was
emitted and why everything else was skipped.

Object store roots (s3://, azblob://) read credentials from the environment;
a .env file in the working directory is loaded first.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadEnv,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	// Add subcommands
	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newSplitCmd())
	cmd.AddCommand(newReplayCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newMergeCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func loadEnv(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: loading .env: %w", types.ErrInvalidConfig, err)
	}
	return nil
}

// usageError marks flag and argument errors as configuration errors.
func usageError(err error) error {
	if err == nil || errors.Is(err, types.ErrInvalidConfig) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
}

// checkArgs wraps a positional argument validator with usageError.
func checkArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return usageError(validate(cmd, args))
	}
}
