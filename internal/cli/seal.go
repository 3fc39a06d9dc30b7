package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"github.com/spf13/cobra"

	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/export"
	"github.com/roach88/sealbench/internal/seal"
	"github.com/roach88/sealbench/internal/store"
)

// SealOptions holds flags for the seal command.
type SealOptions struct {
	*RootOptions
	Dataset    string
	Config     string
	Name       string
	Seed       string
	OutDir     string
	Database   string
	MasterFile string
	Recipients []string
	PrivateDir string
}

// SealResult is the seal command's output.
type SealResult struct {
	World        string `json:"world"`
	WorldID      string `json:"world_id"`
	WorldHash    string `json:"world_hash"`
	SHA256       string `json:"sha256"`
	CID          string `json:"cid"`
	Config       string `json:"config"`
	Records      int    `json:"records"`
	Skipped      int    `json:"skipped"`
	DroppedEdges int    `json:"dropped_edges"`
	Codebook     string `json:"codebook"`
	Envelope     string `json:"envelope,omitempty"`
}

// NewSealCommand creates the seal command.
func NewSealCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SealOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Seal a dataset into a public world",
		Long: `Seal a canonical dataset with one configuration and seed.

The sealed world and its manifest are written to --out. The codebook is
stored in --db and never touches --out. With --recipient, an age-encrypted
codebook envelope is also written to --private-dir.

Example:
  sealbench seal --dataset d.yaml --config c.cue --seed 42 --out public --db codebooks.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeal(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dataset, "dataset", "", "path to YAML dataset (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to CUE config file (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "config name when the file declares several")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "seal seed (required)")
	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", "", "public output directory (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite codebook database (required)")
	cmd.Flags().StringVar(&opts.MasterFile, "master-file", "", "file holding the master secret (default $"+MasterEnv+")")
	cmd.Flags().StringArrayVar(&opts.Recipients, "recipient", nil, "age recipient for the codebook envelope (repeatable)")
	cmd.Flags().StringVar(&opts.PrivateDir, "private-dir", "", "directory for the encrypted envelope (default: next to --db)")
	for _, name := range []string{"dataset", "config", "seed", "out", "db"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runSeal(opts *SealOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

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
	recipients, err := parseRecipients(opts.Recipients)
	if err != nil {
		return formatter.Fail(ExitCommandError, "parse recipients", err)
	}
	privateDir := opts.PrivateDir
	if privateDir == "" {
		privateDir = filepath.Dir(opts.Database)
	}
	if len(recipients) > 0 && within(privateDir, opts.OutDir) {
		return formatter.Fail(ExitCommandError, "private directory",
			fmt.Errorf("%s is inside the public directory %s", privateDir, opts.OutDir))
	}

	formatter.VerboseLog("Sealing %s (%d records) with %s, seed %s", ds.Version, len(ds.Records), cfg.Name, opts.Seed)
	engine, err := seal.New(master, seal.WithLogger(logger))
	if err != nil {
		return formatter.Fail(ExitCommandError, "create engine", err)
	}
	world, cb, report, err := engine.SealChecked(ds, cfg, opts.Seed)
	if err != nil {
		return formatter.Fail(ExitFailure, "seal", err)
	}

	db, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, "open database", err)
	}
	defer db.Close()

	books := codebook.NewStore(codebook.StoreOptions{Persister: db, Recipients: recipients, Logger: logger})
	if err := books.Register(ctx, cb); err != nil {
		return formatter.Fail(ExitFailure, "store codebook", err)
	}

	manifest, err := export.PublicSink{Dir: opts.OutDir}.WriteWorld(world)
	if err != nil {
		return formatter.Fail(ExitFailure, "publish world", err)
	}
	if err := db.WriteManifest(ctx, manifest); err != nil {
		return formatter.Fail(ExitFailure, "record manifest", err)
	}
	hash, err := world.Hash()
	if err != nil {
		return formatter.Fail(ExitFailure, "hash world", err)
	}

	result := SealResult{
		World:        filepath.Join(opts.OutDir, export.WorldFile),
		WorldID:      manifest.WorldID,
		WorldHash:    hash,
		SHA256:       manifest.SHA256,
		CID:          manifest.CID,
		Config:       cfg.Name,
		Records:      len(world.Records),
		Skipped:      len(report.Skipped),
		DroppedEdges: report.DroppedEdges,
		Codebook:     cb.ID().String(),
	}

	if len(recipients) > 0 {
		env, err := codebook.Export(cb, codebook.ExportOptions{Recipients: recipients})
		if err != nil {
			return formatter.Fail(ExitFailure, "export codebook", err)
		}
		if err := os.MkdirAll(privateDir, 0o700); err != nil {
			return formatter.Fail(ExitCommandError, "private directory", err)
		}
		name := strings.ReplaceAll(cb.ID().DatasetVersion, string(filepath.Separator), "_") + "-" + cb.Seed() + codebook.FileSuffix
		result.Envelope = filepath.Join(privateDir, name)
		if err := os.WriteFile(result.Envelope, env, 0o600); err != nil {
			return formatter.Fail(ExitCommandError, "write envelope", &LoadError{Code: ErrCodeWriteFailed, Path: result.Envelope, Message: err.Error(), Err: err})
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	w := formatter.Writer
	fmt.Fprintf(w, "✓ Sealed %s@%s with %s\n", world.DatasetVersion, world.Seed, cfg.Name)
	fmt.Fprintf(w, "  world:    %s\n", result.World)
	fmt.Fprintf(w, "  records:  %d sealed, %d skipped, %d edges dropped\n", result.Records, result.Skipped, result.DroppedEdges)
	fmt.Fprintf(w, "  cid:      %s\n", result.CID)
	fmt.Fprintf(w, "  codebook: %s\n", result.Codebook)
	if result.Envelope != "" {
		fmt.Fprintf(w, "  envelope: %s\n", result.Envelope)
	}
	return nil
}

func parseRecipients(values []string) ([]age.Recipient, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return age.ParseRecipients(strings.NewReader(strings.Join(values, "\n")))
}

// within reports whether path is dir or below it.
func within(path, dir string) bool {
	absPath, err1 := filepath.Abs(path)
	absDir, err2 := filepath.Abs(dir)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
