package cli

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sealbench/internal/ir"
	"github.com/roach88/sealbench/internal/pareto"
)

//go:embed schema/sealconfig.cue
var sealConfigSchema string

// MasterEnv names the environment variable consulted when --master-file is
// not given.
const MasterEnv = "SEALBENCH_MASTER_FILE"

// LoadError is a failure to read or validate an input file.
type LoadError struct {
	Code    string
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// configFile mirrors #SealConfig. Pointer fields distinguish "unset" from
// zero so that explicit values override a level preset.
type configFile struct {
	Name                string   `json:"name"`
	Level               *int     `json:"level"`
	Identifier          *float64 `json:"identifier"`
	Lexical             *float64 `json:"lexical"`
	Structural          *float64 `json:"structural"`
	Numeric             *float64 `json:"numeric"`
	Buckets             *int     `json:"buckets"`
	MaxDescriptionRunes *int     `json:"max_description_runes"`
	NGramLimit          *int     `json:"ngram_limit"`
	SkipThreshold       *float64 `json:"skip_threshold"`
	Operators           []string `json:"operators"`
}

func (f configFile) resolve() (ir.SealConfig, error) {
	cfg := ir.SealConfig{Name: f.Name}
	if f.Level != nil {
		preset, err := ir.LevelPreset(*f.Level)
		if err != nil {
			return ir.SealConfig{}, err
		}
		cfg = preset
		cfg.Name = f.Name
	}
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setFloat(&cfg.Identifier, f.Identifier)
	setFloat(&cfg.Lexical, f.Lexical)
	setFloat(&cfg.Structural, f.Structural)
	setFloat(&cfg.Numeric, f.Numeric)
	setFloat(&cfg.SkipThreshold, f.SkipThreshold)
	setInt(&cfg.Buckets, f.Buckets)
	setInt(&cfg.MaxDescriptionRunes, f.MaxDescriptionRunes)
	setInt(&cfg.NGramLimit, f.NGramLimit)
	cfg.Operators = f.Operators
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return ir.SealConfig{}, err
	}
	return cfg, nil
}

// cueMessage reports the first of possibly many CUE errors, prefixed with
// its line and column when CUE knows them.
func cueMessage(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	first := errs[0]
	msg := first.Error()
	if pos := cueerrors.Positions(first); len(pos) > 0 && pos[0].IsValid() {
		msg = fmt.Sprintf("%d:%d: %s", pos[0].Line(), pos[0].Column(), msg)
	}
	if len(errs) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(errs)-1)
	}
	return msg
}

// LoadConfigs reads every configuration in a CUE file, validated against
// the embedded #SealConfig schema and then by SealConfig.Validate. The
// result is sorted by name.
func LoadConfigs(path string) ([]ir.SealConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "cannot read config", Err: err}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(sealConfigSchema, cue.Filename("sealconfig.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("embedded schema: %w", err)
	}
	value := ctx.CompileBytes(data, cue.Filename(path), cue.Scope(schema))
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: cueMessage(err), Err: err}
	}
	value = schema.Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Path: path, Message: cueMessage(err), Err: err}
	}

	configsVal := value.LookupPath(cue.ParsePath("configs"))
	if !configsVal.Exists() {
		return nil, &LoadError{Code: ErrCodeNoFiles, Path: path, Message: "no configs declared"}
	}
	iter, err := configsVal.Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Path: path, Message: err.Error(), Err: err}
	}

	var configs []ir.SealConfig
	for iter.Next() {
		var f configFile
		if err := iter.Value().Decode(&f); err != nil {
			return nil, &LoadError{Code: ErrCodeBuildFailed, Path: path, Message: fmt.Sprintf("config %s: %v", iter.Selector(), err), Err: err}
		}
		cfg, err := f.resolve()
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if len(configs) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Path: path, Message: "no configs declared"}
	}
	slices.SortFunc(configs, func(a, b ir.SealConfig) int { return strings.Compare(a.Name, b.Name) })
	return configs, nil
}

// LoadConfig returns one configuration from a CUE file: the one called
// name, or the only one when name is empty.
func LoadConfig(path, name string) (ir.SealConfig, error) {
	configs, err := LoadConfigs(path)
	if err != nil {
		return ir.SealConfig{}, err
	}
	if name == "" {
		if len(configs) > 1 {
			names := make([]string, len(configs))
			for i, c := range configs {
				names[i] = c.Name
			}
			return ir.SealConfig{}, &LoadError{Code: ErrCodeGeneric, Path: path,
				Message: fmt.Sprintf("file declares %d configs (%s); choose one with --name", len(configs), strings.Join(names, ", "))}
		}
		return configs[0], nil
	}
	for _, c := range configs {
		if c.Name == name {
			return c, nil
		}
	}
	return ir.SealConfig{}, &LoadError{Code: ErrCodeNotFound, Path: path, Message: fmt.Sprintf("no config named %q", name)}
}

// LoadDataset reads a YAML dataset. Unknown fields are rejected.
func LoadDataset(path string) (ir.Dataset, error) {
	var ds ir.Dataset
	if err := decodeYAML(path, &ds); err != nil {
		return ir.Dataset{}, err
	}
	if ds.Version == "" {
		return ir.Dataset{}, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: "dataset_version is required"}
	}
	return ds, nil
}

type pointsFile struct {
	Points []pareto.Point `yaml:"points"`
}

// LoadPoints reads candidate pareto points from YAML.
func LoadPoints(path string) ([]pareto.Point, error) {
	var f pointsFile
	if err := decodeYAML(path, &f); err != nil {
		return nil, err
	}
	for i, p := range f.Points {
		if err := p.Validate(); err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: fmt.Sprintf("point %d: %v", i, err), Err: err}
		}
	}
	return f.Points, nil
}

// WritePoints writes points in the format LoadPoints reads.
func WritePoints(path string, points []pareto.Point) error {
	data, err := yaml.Marshal(pointsFile{Points: points})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &LoadError{Code: ErrCodeWriteFailed, Path: path, Message: "cannot write points", Err: err}
	}
	return nil
}

func decodeYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &LoadError{Code: ErrCodeNotFound, Path: path, Message: "cannot read file", Err: err}
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: err.Error(), Err: err}
	}
	return nil
}

// LoadMaster reads the master secret from path, or from the file named by
// MasterEnv when path is empty. One trailing newline is ignored.
func LoadMaster(path string) ([]byte, error) {
	if path == "" {
		path = os.Getenv(MasterEnv)
	}
	if path == "" {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: "no master secret: pass --master-file or set " + MasterEnv}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "cannot read master secret", Err: err}
	}
	data = bytes.TrimSuffix(data, []byte("\n"))
	if len(data) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: "master secret is empty"}
	}
	return data, nil
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNoFiles     = "E003" // Nothing declared in an input file
	ErrCodeLoadFailed  = "E004" // Input parse failed
	ErrCodeNotFound    = "E005" // Path or record not found
	ErrCodeBuildFailed = "E006" // CUE schema validation failed
	ErrCodeWriteFailed = "E007" // File write error

	// Domain errors, one per ir.Kind
	ErrCodeInvalidRecord    = "E101"
	ErrCodeCycle            = "E102"
	ErrCodeSealConfig       = "E103"
	ErrCodeAccessViolation  = "E104"
	ErrCodeNonDeterministic = "E105"
	ErrCodeNoFeasiblePoint  = "E106"
	ErrCodeCodebookExists   = "E107"
	ErrCodeInvalidBudget    = "E108"
	ErrCodeAliasCollision   = "E109"
)

// ErrorCode maps an error to its CLI code.
func ErrorCode(err error) string {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	switch ir.KindOf(err) {
	case ir.KindInvalidRecord:
		return ErrCodeInvalidRecord
	case ir.KindCyclicDependency:
		return ErrCodeCycle
	case ir.KindSealConfig:
		return ErrCodeSealConfig
	case ir.KindCodebookAccessViolation:
		return ErrCodeAccessViolation
	case ir.KindNonDeterministic:
		return ErrCodeNonDeterministic
	case ir.KindNoFeasiblePoint:
		return ErrCodeNoFeasiblePoint
	case ir.KindCodebookExists:
		return ErrCodeCodebookExists
	case ir.KindNotFound:
		return ErrCodeNotFound
	case ir.KindInvalidBudget:
		return ErrCodeInvalidBudget
	case ir.KindAliasCollision:
		return ErrCodeAliasCollision
	default:
		return ErrCodeGeneric
	}
}
