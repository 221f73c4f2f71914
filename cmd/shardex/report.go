package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/praetorian-inc/shardex/pkg/runner"
	"github.com/praetorian-inc/shardex/pkg/types"
)

var (
	reportDatastore string
	reportIndexDSN  string
	reportRun       string
	reportFormat    string
	reportColor     string
)

// styles holds the color formatters of the human report.
type styles struct {
	heading *color.Color
	label   *color.Color
	count   *color.Color
	warning *color.Color
	reason  *color.Color
}

// newStyles creates color formatters for report output.
// enabled=false covers --color never, NO_COLOR and non-terminal output.
func newStyles(enabled bool) *styles {
	s := &styles{
		heading: color.New(color.Bold, color.FgHiWhite),
		label:   color.New(color.Bold),
		count:   color.New(color.FgHiGreen),
		warning: color.New(color.FgYellow),
		reason:  color.New(color.FgHiBlue),
	}

	for _, c := range []*color.Color{s.heading, s.label, s.count, s.warning, s.reason} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return s
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [manifest.json]",
		Short: "Summarise a run manifest",
		Long: `Print a summary of a run: what was emitted and why the remaining members
were rejected. The run comes from a manifest file or, with --datastore, from
the datastore's run index.`,
		Args: checkArgs(cobra.MaximumNArgs(1)),
		RunE: runReport,
	}
	cmd.Flags().StringVar(&reportDatastore, "datastore", "", "Read the run from this datastore directory")
	cmd.Flags().StringVar(&reportIndexDSN, "index-dsn", "", "PostgreSQL DSN for the datastore run index")
	cmd.Flags().StringVar(&reportRun, "run", "", "Run ID to report on (default latest)")
	cmd.Flags().StringVar(&reportFormat, "format", "human", "Output format: human, json")
	cmd.Flags().StringVar(&reportColor, "color", "auto", "Color output: auto, always, never")
	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	if (len(args) == 1) == (reportDatastore != "") {
		return fmt.Errorf("%w: give either a manifest file or --datastore", types.ErrInvalidConfig)
	}

	var (
		manifest *types.RunManifest
		source   string
	)
	if len(args) == 1 {
		m, err := runner.LoadManifest(args[0])
		if err != nil {
			return err
		}
		manifest, source = m, args[0]
	} else {
		ds, err := openDatastore(reportDatastore, reportIndexDSN)
		if err != nil {
			return err
		}
		defer ds.Close()
		run, err := selectRun(ds, reportRun)
		if err != nil {
			return err
		}
		manifest, source = run.Manifest, reportDatastore
		if manifest == nil {
			manifest = types.NewRunManifest(run.ID)
		}
	}

	switch reportFormat {
	case "json":
		return runner.WriteManifest(cmd.OutOrStdout(), manifest)
	case "human":
		enabled, err := colorEnabled(reportColor)
		if err != nil {
			return err
		}
		return outputReportHuman(cmd.OutOrStdout(), manifest, source, newStyles(enabled))
	default:
		return fmt.Errorf("%w: unknown output format: %s", types.ErrInvalidConfig, reportFormat)
	}
}

func colorEnabled(mode string) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		return term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == "", nil
	default:
		return false, fmt.Errorf("%w: unknown color mode: %s", types.ErrInvalidConfig, mode)
	}
}

func outputReportHuman(out io.Writer, m *types.RunManifest, source string, s *styles) error {
	s.heading.Fprintln(out, "=== Shardex Report ===")
	fmt.Fprintf(out, "Source: %s\n", source)
	if m.RunID != "" {
		fmt.Fprintf(out, "Run: %s\n", m.RunID)
	}
	fmt.Fprintln(out)

	field := func(label string, n int) {
		s.label.Fprintf(out, "%-22s", label+":")
		s.count.Fprintf(out, " %s\n", humanize.Comma(int64(n)))
	}
	field("Archives seen", m.ArchivesSeen)
	field("Archives emitted from", m.ArchivesEmittedFrom)
	field("Members considered", m.Candidates)
	field("Members emitted", m.MembersEmitted)
	field("Lines emitted", m.TotalLinesEmitted)
	field("Decode replaced", m.DecodeReplaced)

	if m.Truncated {
		s.warning.Fprintln(out, "Output truncated")
	}
	if m.Error != "" {
		s.warning.Fprintf(out, "Run failed: %s\n", m.Error)
	}

	printReasons(out, "Rejections", m.Rejections, s)
	printReasons(out, "Archive errors", m.ArchiveErrors, s)
	return nil
}

// printReasons lists reason counts, largest first.
func printReasons(out io.Writer, title string, counts map[types.Reason]int, s *styles) {
	if len(counts) == 0 {
		return
	}
	reasons := make([]types.Reason, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if counts[reasons[i]] != counts[reasons[j]] {
			return counts[reasons[i]] > counts[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})

	fmt.Fprintln(out)
	s.label.Fprintf(out, "%s:\n", title)
	for _, r := range reasons {
		s.reason.Fprintf(out, "  %-20s", r)
		fmt.Fprintf(out, " %s\n", humanize.Comma(int64(counts[r])))
	}
}
