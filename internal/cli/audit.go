package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"filippo.io/age"
	"github.com/spf13/cobra"

	"github.com/roach88/sealbench/internal/audit"
	"github.com/roach88/sealbench/internal/codebook"
	"github.com/roach88/sealbench/internal/export"
	"github.com/roach88/sealbench/internal/ir"
	"github.com/roach88/sealbench/internal/store"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	World     string
	Database  string
	Reference string
	Budgets   string
	Identity  string
	Limit     int
	Timeout   time.Duration
	Retries   int
}

// AuditResult is the audit command's output.
type AuditResult struct {
	WorldHash    string             `json:"world_hash"`
	Stage        string             `json:"stage"`
	Curve        []audit.CurvePoint `json:"curve"`
	RecoveryRate float64            `json:"recovery_rate"`
	Leaks        []audit.Leak       `json:"leaks"`
	Reports      []string           `json:"reports"`
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Measure identity leakage of a sealed world",
		Long: `Audit a published sealed world.

Runs the black-box budget attack with a retrieval adversary whose background
knowledge is --reference, judges its top guesses against the codebook in
--db (white-box recovery), checks that no canonical key is published, and
stores both reports.

Exits 1 if a canonical key occurs in the world.

Example:
  sealbench audit --world public/world.json --db codebooks.db --reference d.yaml --budgets 8,16,32`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.World, "world", "", "path to published world.json (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite codebook database (required)")
	cmd.Flags().StringVar(&opts.Reference, "reference", "", "YAML dataset the adversary knows (required)")
	cmd.Flags().StringVar(&opts.Budgets, "budgets", "8,16,32", "ascending probe budgets")
	cmd.Flags().StringVar(&opts.Identity, "identity", "", "age identity file for encrypted codebooks")
	cmd.Flags().IntVar(&opts.Limit, "limit", 5, "candidates returned per probe")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", audit.DefaultProbePolicy.Timeout, "per-probe timeout")
	cmd.Flags().IntVar(&opts.Retries, "retries", audit.DefaultProbePolicy.Retries, "retries per failed probe")
	for _, name := range []string{"world", "db", "reference"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	budgets, err := parseInts("budgets", opts.Budgets)
	if err != nil {
		return formatter.Fail(ExitCommandError, "parse budgets", err)
	}
	if err := audit.ValidateBudgets(budgets); err != nil {
		return formatter.Fail(ExitCommandError, "parse budgets", err)
	}
	world, err := export.ReadWorld(opts.World)
	if err != nil {
		return formatter.Fail(ExitCommandError, "read world", err)
	}
	reference, err := LoadDataset(opts.Reference)
	if err != nil {
		return formatter.Fail(ExitCommandError, "load reference", err)
	}
	identities, err := loadIdentities(opts.Identity)
	if err != nil {
		return formatter.Fail(ExitCommandError, "load identity", err)
	}

	db, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, "open database", err)
	}
	defer db.Close()

	books := codebook.NewStore(codebook.StoreOptions{Persister: db, Identities: identities, Logger: logger})
	cb, err := books.Get(ctx, codebook.ID{DatasetVersion: world.DatasetVersion, Seed: world.Seed})
	if err != nil {
		return formatter.Fail(ExitCommandError, "load codebook", err)
	}
	if cb.ConfigFingerprint() != world.ConfigFingerprint {
		return formatter.Fail(ExitCommandError, "load codebook",
			ir.Errorf(ir.KindNotFound, cb.ID().String(), "stored codebook was sealed with a different config"))
	}

	lifecycle := audit.NewLifecycle()
	if err := lifecycle.Sealed(world); err != nil {
		return formatter.Fail(ExitFailure, "audit", err)
	}

	formatter.VerboseLog("Auditing %s@%s (%d records) with budgets %v", world.DatasetVersion, world.Seed, len(world.Records), budgets)
	auditor := audit.New(
		audit.NewRetrievalProxy(reference.Records, opts.Limit),
		audit.WithLogger(logger),
		audit.WithPolicy(audit.ProbePolicy{Timeout: opts.Timeout, Retries: opts.Retries, Backoff: audit.DefaultProbePolicy.Backoff}),
	)
	curve, err := auditor.RunBudgetAttack(ctx, world, audit.CodebookJudge{Verifier: books, Codebook: cb}, budgets)
	if err != nil {
		return formatter.Fail(ExitFailure, "black-box audit", err)
	}
	verdict := audit.RunRecoveryAudit(books, world, cb, audit.TopClaims(curve.Claims))
	leaks, err := audit.CheckMinimality(books, world, cb)
	if err != nil {
		return formatter.Fail(ExitFailure, "minimality check", err)
	}

	blackBox, err := audit.NewBlackBoxReport(world, curve)
	if err != nil {
		return formatter.Fail(ExitFailure, "build report", err)
	}
	whiteBox, err := audit.NewWhiteBoxReport(world, verdict)
	if err != nil {
		return formatter.Fail(ExitFailure, "build report", err)
	}
	result := AuditResult{
		WorldHash:    blackBox.WorldHash,
		Curve:        curve.Points,
		RecoveryRate: verdict.Rate,
		Leaks:        leaks,
	}
	for _, r := range []audit.Report{blackBox, whiteBox} {
		if err := lifecycle.Attach(r); err != nil {
			return formatter.Fail(ExitFailure, "attach report", err)
		}
		if err := db.SaveReport(ctx, r); err != nil {
			return formatter.Fail(ExitFailure, "save report", err)
		}
		result.Reports = append(result.Reports, r.ID)
	}
	if err := lifecycle.Reported(); err != nil {
		return formatter.Fail(ExitFailure, "audit", err)
	}
	result.Stage = lifecycle.Stage().String()

	if len(leaks) > 0 {
		err := ir.Errorf(ir.KindCodebookAccessViolation, world.Seed, "%d canonical key(s) published", len(leaks))
		err.Details = map[string]string{"first_leak": leaks[0].LeakedAlias + " in " + leaks[0].Record + "." + leaks[0].Field}
		if formatter.Format == "json" {
			_ = formatter.Success(result)
			return WrapExitError(ExitFailure, "minimality check", err)
		}
		return formatter.Fail(ExitFailure, "minimality check", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	w := formatter.Writer
	fmt.Fprintf(w, "✓ Audited %s@%s\n", world.DatasetVersion, world.Seed)
	fmt.Fprintln(w, "  black-box curve:")
	for _, p := range curve.Points {
		fmt.Fprintf(w, "    budget %4d: %d identified (%.3f)\n", p.Budget, p.Identified, p.SuccessRate)
	}
	fmt.Fprintf(w, "  white-box recovery: %d/%d (%.3f)\n", verdict.Verified, verdict.Total, verdict.Rate)
	fmt.Fprintf(w, "  reports: %s, %s\n", blackBox.ID, whiteBox.ID)
	return nil
}

func loadIdentities(path string) ([]age.Identity, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "cannot read identity", Err: err}
	}
	defer f.Close()
	return age.ParseIdentities(f)
}
