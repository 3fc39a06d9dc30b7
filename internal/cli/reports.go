package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sealbench/internal/audit"
	"github.com/roach88/sealbench/internal/store"
)

// ReportsOptions holds flags for the reports command.
type ReportsOptions struct {
	*RootOptions
	Database       string
	DatasetVersion string
	Seed           string
	Track          string
	ThreatModel    string
	MaxLeakage     float64
	Limit          int
}

// ReportRow is one stored report in the listing.
type ReportRow struct {
	ID             string  `json:"id"`
	DatasetVersion string  `json:"dataset_version"`
	Seed           string  `json:"seed"`
	Track          string  `json:"track"`
	ThreatModel    string  `json:"threat_model"`
	Leakage        float64 `json:"leakage"`
	WorldHash      string  `json:"world_hash"`
}

// ReportsResult is the reports command's output.
type ReportsResult struct {
	Reports []ReportRow `json:"reports"`
}

// NewReportsCommand creates the reports command.
func NewReportsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List stored audit reports",
		Long: `List audit reports stored in --db, filtered by release, track, threat
model or leakage. Reports are ordered by dataset version, seed, threat model
and report ID.

Example:
  sealbench reports --db codebooks.db --dataset-version corpus-v1 --threat-model white_box`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReports(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.DatasetVersion, "dataset-version", "", "only reports for this dataset version")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "only reports for this seed")
	cmd.Flags().StringVar(&opts.Track, "track", "", "only reports for this track")
	cmd.Flags().StringVar(&opts.ThreatModel, "threat-model", "", "black_box or white_box")
	cmd.Flags().Float64Var(&opts.MaxLeakage, "max-leakage", 1, "only reports leaking at most this much")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of reports (0 for all)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReports(opts *ReportsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	q := store.ReportQuery{
		DatasetVersion: opts.DatasetVersion,
		Seed:           opts.Seed,
		Track:          opts.Track,
		ThreatModel:    audit.ThreatModel(opts.ThreatModel),
		Limit:          opts.Limit,
	}
	switch q.ThreatModel {
	case "", audit.BlackBox, audit.WhiteBox:
	default:
		return formatter.Fail(ExitCommandError, "parse flags",
			fmt.Errorf("--threat-model must be %s or %s, got %q", audit.BlackBox, audit.WhiteBox, opts.ThreatModel))
	}
	if cmd.Flags().Changed("max-leakage") {
		q.MaxLeakage = &opts.MaxLeakage
	}
	if opts.Limit < 0 {
		return formatter.Fail(ExitCommandError, "parse flags", fmt.Errorf("--limit must be non-negative, got %d", opts.Limit))
	}

	db, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, "open database", err)
	}
	defer db.Close()

	reports, err := db.QueryReports(ctx, q)
	if err != nil {
		return formatter.Fail(ExitFailure, "query reports", err)
	}
	result := ReportsResult{Reports: make([]ReportRow, len(reports))}
	for i, r := range reports {
		result.Reports[i] = ReportRow{
			ID:             r.ID,
			DatasetVersion: r.DatasetVersion,
			Seed:           r.Seed,
			Track:          r.Track,
			ThreatModel:    string(r.ThreatModel),
			Leakage:        r.Leakage(),
			WorldHash:      r.WorldHash,
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	w := formatter.Writer
	fmt.Fprintf(w, "%d report(s)\n", len(result.Reports))
	for _, r := range result.Reports {
		fmt.Fprintf(w, "  %s@%-8s %-10s leakage %.3f  %s\n", r.DatasetVersion, r.Seed, r.ThreatModel, r.Leakage, r.ID)
	}
	return nil
}
