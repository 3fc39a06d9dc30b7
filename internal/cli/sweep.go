package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/sealbench/internal/audit"
	"github.com/roach88/sealbench/internal/pareto"
	"github.com/roach88/sealbench/internal/seal"
	"github.com/roach88/sealbench/internal/store"
	"github.com/roach88/sealbench/internal/sweep"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	Dataset    string
	Reference  string
	Config     string
	Seeds      string
	Workers    int
	Budgets    string
	MasterFile string
	Database   string
	PointsOut  string
}

// SweepRow is one line of sweep output.
type SweepRow struct {
	Track    string  `json:"track"`
	Seed     string  `json:"seed"`
	Config   string  `json:"config"`
	Utility  float64 `json:"utility"`
	BlackBox float64 `json:"black_box"`
	WhiteBox float64 `json:"white_box"`
	Skipped  int     `json:"skipped"`
	Error    string  `json:"error,omitempty"`
}

// SweepResult is the sweep command's output.
type SweepResult struct {
	Rows     []SweepRow     `json:"rows"`
	Frontier []pareto.Point `json:"frontier"`
	Partial  bool           `json:"partial,omitempty"`
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Seal and audit every config across seeds",
		Long: `Run seal, black-box audit and white-box audit for every config in --config
across every seed in --seeds, on a bounded worker pool.

Results are ordered by (track, seed, config) regardless of completion order.
Interrupting a sweep keeps the results completed so far.

Example:
  sealbench sweep --dataset d.yaml --config c.cue --seeds 1,2,3 --workers 4`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dataset, "dataset", "", "path to YAML dataset (required)")
	cmd.Flags().StringVar(&opts.Reference, "reference", "", "YAML dataset the adversary knows (default: --dataset)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to CUE config file (required)")
	cmd.Flags().StringVar(&opts.Seeds, "seeds", "1", "comma-separated seeds")
	cmd.Flags().IntVar(&opts.Workers, "workers", sweep.DefaultWorkers, "concurrent tasks")
	cmd.Flags().StringVar(&opts.Budgets, "budgets", "8,16,32", "ascending probe budgets")
	cmd.Flags().StringVar(&opts.MasterFile, "master-file", "", "file holding the master secret (default $"+MasterEnv+")")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database to store audit reports in")
	cmd.Flags().StringVar(&opts.PointsOut, "points-out", "", "write pareto points to this YAML file")
	for _, name := range []string{"dataset", "config"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runSweep(opts *SweepOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd)

	ds, err := LoadDataset(opts.Dataset)
	if err != nil {
		return formatter.Fail(ExitCommandError, "load dataset", err)
	}
	reference := ds
	if opts.Reference != "" {
		if reference, err = LoadDataset(opts.Reference); err != nil {
			return formatter.Fail(ExitCommandError, "load reference", err)
		}
	}
	configs, err := LoadConfigs(opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, "load config", err)
	}
	budgets, err := parseInts("budgets", opts.Budgets)
	if err != nil {
		return formatter.Fail(ExitCommandError, "parse budgets", err)
	}
	if err := audit.ValidateBudgets(budgets); err != nil {
		return formatter.Fail(ExitCommandError, "parse budgets", err)
	}
	seeds := parseList(opts.Seeds)
	if len(seeds) == 0 {
		return formatter.Fail(ExitCommandError, "parse seeds", &LoadError{Code: ErrCodeGeneric, Message: "--seeds is empty"})
	}
	master, err := LoadMaster(opts.MasterFile)
	if err != nil {
		return formatter.Fail(ExitCommandError, "load master secret", err)
	}
	engine, err := seal.New(master, seal.WithLogger(logger))
	if err != nil {
		return formatter.Fail(ExitCommandError, "create engine", err)
	}

	runner := &sweep.Runner{
		Workers: opts.Workers,
		Engine:  engine,
		Auditor: audit.New(audit.NewRetrievalProxy(reference.Records, 0), audit.WithLogger(logger)),
		Budgets: budgets,
		Logger:  logger,
	}
	if opts.Database != "" {
		db, err := store.Open(opts.Database)
		if err != nil {
			return formatter.Fail(ExitCommandError, "open database", err)
		}
		defer db.Close()
		runner.Reports = db
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tasks := sweep.Tasks(ds, seeds, configs)
	formatter.VerboseLog("Sweeping %d task(s) on %d worker(s)", len(tasks), opts.Workers)
	results, runErr := runner.Run(ctx, tasks)
	if runErr != nil && len(results) == 0 {
		return formatter.Fail(ExitFailure, "sweep", runErr)
	}

	points := sweep.Points(results)
	result := SweepResult{Frontier: pareto.Aggregate(points), Partial: runErr != nil}
	failed := 0
	for _, r := range results {
		row := SweepRow{
			Track:    r.Track,
			Seed:     r.Seed,
			Config:   r.Config,
			Utility:  r.Point.Utility,
			BlackBox: r.Point.BlackBox,
			WhiteBox: r.Point.WhiteBox,
			Skipped:  r.Skipped,
		}
		if r.Err != nil {
			row.Error = r.Err.Error()
			failed++
		}
		result.Rows = append(result.Rows, row)
	}
	if opts.PointsOut != "" {
		if err := WritePoints(opts.PointsOut, points); err != nil {
			return formatter.Fail(ExitCommandError, "write points", err)
		}
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		fmt.Fprintf(w, "%-8s %-8s %-16s %8s %10s %10s\n", "TRACK", "SEED", "CONFIG", "UTILITY", "BLACK-BOX", "WHITE-BOX")
		for _, row := range result.Rows {
			if row.Error != "" {
				fmt.Fprintf(w, "%-8s %-8s %-16s  error: %s\n", row.Track, row.Seed, row.Config, row.Error)
				continue
			}
			fmt.Fprintf(w, "%-8s %-8s %-16s %8.3f %10.3f %10.3f\n", row.Track, row.Seed, row.Config, row.Utility, row.BlackBox, row.WhiteBox)
		}
		fmt.Fprintf(w, "Frontier: %d of %d point(s)\n", len(result.Frontier), len(points))
	}

	switch {
	case runErr != nil:
		return WrapExitError(ExitFailure, "sweep interrupted", runErr)
	case failed > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d task(s) failed", failed))
	}
	return nil
}
