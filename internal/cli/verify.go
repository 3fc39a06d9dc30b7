package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/sealbench/internal/export"
	"github.com/roach88/sealbench/internal/ir"
	"github.com/roach88/sealbench/internal/seal"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Dataset    string
	Config     string
	Name       string
	Seed       string
	MasterFile string
	World      string
}

// VerifyResult is the verify command's output.
type VerifyResult struct {
	Deterministic bool   `json:"deterministic"`
	WorldHash     string `json:"world_hash"`
	Matches       *bool  `json:"matches_published,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that sealing is deterministic",
		Long: `Seal the dataset twice with the same inputs and compare the bytes.

With --world, also compare against a published world file to detect drift
between the published artifact and the current inputs.

Exits 1 on any mismatch.

Example:
  sealbench verify --dataset d.yaml --config c.cue --seed 42
  sealbench verify --dataset d.yaml --config c.cue --seed 42 --world public/world.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dataset, "dataset", "", "path to YAML dataset (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to CUE config file (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "config name when the file declares several")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "seal seed (required)")
	cmd.Flags().StringVar(&opts.MasterFile, "master-file", "", "file holding the master secret (default $"+MasterEnv+")")
	cmd.Flags().StringVar(&opts.World, "world", "", "published world.json to compare against")
	for _, name := range []string{"dataset", "config", "seed"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd)

	ds, err := LoadDataset(opts.Dataset)
	if err != nil {
		return formatter.Fail(ExitCommandError, "load dataset", err)
	}
	cfg, err := LoadConfig(opts.Config, opts.Name)
	if err != nil {
		return formatter.Fail(ExitCommandError, "load config", err)
	}
	master, err := LoadMaster(opts.MasterFile)
	if err != nil {
		return formatter.Fail(ExitCommandError, "load master secret", err)
	}
	engine, err := seal.New(master, seal.WithLogger(logger))
	if err != nil {
		return formatter.Fail(ExitCommandError, "create engine", err)
	}

	world, _, _, err := engine.SealChecked(ds, cfg, opts.Seed)
	if err != nil {
		return formatter.Fail(ExitFailure, "verify", err)
	}
	hash, err := world.Hash()
	if err != nil {
		return formatter.Fail(ExitFailure, "verify", err)
	}
	result := VerifyResult{Deterministic: true, WorldHash: hash}

	if opts.World != "" {
		published, err := os.ReadFile(opts.World)
		if err != nil {
			return formatter.Fail(ExitCommandError, "read world", &LoadError{Code: ErrCodeNotFound, Path: opts.World, Message: "cannot read world", Err: err})
		}
		encoded, err := export.EncodeWorld(world)
		if err != nil {
			return formatter.Fail(ExitFailure, "verify", err)
		}
		matches := bytes.Equal(published, encoded)
		result.Matches = &matches
		if !matches {
			return formatter.Fail(ExitFailure, "verify",
				ir.Errorf(ir.KindNonDeterministic, opts.World, "published world differs from a fresh seal"))
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Deterministic: %s@%s with %s\n", ds.Version, opts.Seed, cfg.Name)
	fmt.Fprintf(formatter.Writer, "  world hash: %s\n", hash)
	if result.Matches != nil {
		fmt.Fprintln(formatter.Writer, "  matches published world")
	}
	return nil
}
