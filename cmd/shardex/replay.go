package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/shardex/pkg/emit"
	"github.com/praetorian-inc/shardex/pkg/types"
)

var (
	replayDatastore string
	replayIndexDSN  string
	replayRun       string
	replayOut       string
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay --datastore <dir>",
		Short: "Rebuild the stream of an earlier run from the datastore",
		Long: `Rebuild the unit stream of a recorded run from the texts kept in the datastore.
The result is byte-identical to the stream the run originally wrote.`,
		Args: checkArgs(cobra.NoArgs),
		RunE: runReplay,
	}
	cmd.Flags().StringVar(&replayDatastore, "datastore", "shardex.ds", "Path to datastore directory")
	cmd.Flags().StringVar(&replayIndexDSN, "index-dsn", "", "PostgreSQL DSN for the datastore run index")
	cmd.Flags().StringVar(&replayRun, "run", "", "Run ID to replay (default latest)")
	cmd.Flags().StringVarP(&replayOut, "out", "o", "", "Stream output file (default stdout)")
	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	ds, err := openDatastore(replayDatastore, replayIndexDSN)
	if err != nil {
		return err
	}
	defer ds.Close()

	run, err := selectRun(ds, replayRun)
	if err != nil {
		return err
	}
	units, err := ds.Store.GetUnits(run.ID)
	if err != nil {
		return fmt.Errorf("listing units: %w", err)
	}

	out := cmd.OutOrStdout()
	var file *os.File
	if replayOut != "" && replayOut != "-" {
		file, err = os.Create(replayOut)
		if err != nil {
			return fmt.Errorf("%w: creating %s: %w", types.ErrOutputWrite, replayOut, err)
		}
		defer file.Close()
		out = file
	}

	w := emit.NewWriter(out)
	for _, rec := range units {
		text, err := ds.Text(rec)
		if err != nil {
			return fmt.Errorf("%w: unit %s: %w", types.ErrInputNotReadable, rec.EmitPath, err)
		}
		if _, err := w.WriteUnit(rec.EmitPath, text); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if file != nil {
		if err := file.Close(); err != nil {
			return fmt.Errorf("%w: closing %s: %w", types.ErrOutputWrite, replayOut, err)
		}
	}

	newLogger(cmd.ErrOrStderr()).Infof("replayed %d units (%d lines) from run %s", w.Units(), w.Lines(), run.ID)
	return nil
}
