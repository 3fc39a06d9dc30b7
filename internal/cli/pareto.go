package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sealbench/internal/pareto"
)

// ParetoOptions holds flags for the pareto command.
type ParetoOptions struct {
	*RootOptions
	Points    string
	Floor     float64
	Aggregate bool
}

// ParetoResult is the pareto command's output.
type ParetoResult struct {
	Frontier       []pareto.Point `json:"frontier"`
	Recommendation *pareto.Point  `json:"recommendation,omitempty"`
}

// NewParetoCommand creates the pareto command.
func NewParetoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParetoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pareto",
		Short: "Compute the utility/leakage frontier",
		Long: `Compute the pareto frontier of (utility, black-box, white-box) points and
recommend the least-leaking configuration whose utility meets --floor.

Exits 1 when no frontier point meets the floor.

Example:
  sealbench pareto --points points.yaml --floor 0.8`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPareto(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Points, "points", "", "YAML file of candidate points (required)")
	cmd.Flags().Float64Var(&opts.Floor, "floor", 0, "minimum utility for a recommendation")
	cmd.Flags().BoolVar(&opts.Aggregate, "aggregate", false, "average each config across seeds first")
	_ = cmd.MarkFlagRequired("points")

	return cmd
}

func runPareto(opts *ParetoOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	points, err := LoadPoints(opts.Points)
	if err != nil {
		return formatter.Fail(ExitCommandError, "load points", err)
	}
	if opts.Aggregate {
		points = pareto.AggregateSeeds(points)
	}
	formatter.VerboseLog("Loaded %d point(s) from %s", len(points), opts.Points)

	result := ParetoResult{Frontier: pareto.Aggregate(points)}
	rec, err := pareto.Recommend(result.Frontier, opts.Floor)
	if err != nil {
		if formatter.Format == "json" {
			_ = formatter.Success(result)
			return WrapExitError(ExitFailure, "recommend", err)
		}
		printFrontier(formatter, result.Frontier)
		return formatter.Fail(ExitFailure, "recommend", err)
	}
	result.Recommendation = &rec

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	printFrontier(formatter, result.Frontier)
	fmt.Fprintf(formatter.Writer, "✓ Recommended %s (seed %s): utility %.3f, black-box %.3f, white-box %.3f\n",
		rec.Config, rec.Seed, rec.Utility, rec.BlackBox, rec.WhiteBox)
	return nil
}

func printFrontier(formatter *OutputFormatter, frontier []pareto.Point) {
	w := formatter.Writer
	fmt.Fprintf(w, "Frontier (%d point(s)):\n", len(frontier))
	for _, p := range frontier {
		fmt.Fprintf(w, "  %-16s seed %-10s utility %.3f  black-box %.3f  white-box %.3f\n",
			p.Config, p.Seed, p.Utility, p.BlackBox, p.WhiteBox)
	}
}
