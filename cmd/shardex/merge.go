package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praetorian-inc/shardex/pkg/datastore"
)

var (
	mergeOutput   string
	mergeIndexDSN string
)

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge <source1.ds> <source2.ds> [source3.ds...]",
		Short: "Merge multiple Shardex datastores",
		Long: `Merge multiple datastores into a single output datastore.

This is useful for combining runs made on different machines or against
different mirrors. Runs already present in the output are skipped, and unit
texts are stored once.`,
		Args: checkArgs(cobra.MinimumNArgs(2)),
		RunE: runMerge,
	}
	cmd.Flags().StringVarP(&mergeOutput, "output", "o", "merged.ds", "Output datastore directory")
	cmd.Flags().StringVar(&mergeIndexDSN, "index-dsn", "", "PostgreSQL DSN for the output run index")
	return cmd
}

func runMerge(cmd *cobra.Command, args []string) error {
	dest, err := datastore.Open(mergeOutput, datastore.Options{IndexDSN: mergeIndexDSN})
	if err != nil {
		return fmt.Errorf("opening output datastore: %w", err)
	}
	defer dest.Close()

	total := datastore.MergeStats{}
	for _, path := range args {
		src, err := openDatastore(path, "")
		if err != nil {
			return err
		}
		stats, err := dest.Merge(src)
		src.Close()
		if err != nil {
			return fmt.Errorf("merge failed: %s: %w", path, err)
		}
		total.RunsMerged += stats.RunsMerged
		total.UnitsMerged += stats.UnitsMerged
		total.BlobsCopied += stats.BlobsCopied
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Merge complete:\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  Sources processed: %d\n", len(args))
	fmt.Fprintf(cmd.OutOrStdout(), "  Runs merged: %d\n", total.RunsMerged)
	fmt.Fprintf(cmd.OutOrStdout(), "  Units merged: %d\n", total.UnitsMerged)
	fmt.Fprintf(cmd.OutOrStdout(), "  Blobs copied: %d\n", total.BlobsCopied)
	fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", mergeOutput)

	return nil
}
