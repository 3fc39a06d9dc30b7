package audit

import (
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/sealbench/internal/ir"
)

// ThreatModel names the adversary a report measures.
type ThreatModel string

const (
	BlackBox ThreatModel = "black_box"
	WhiteBox ThreatModel = "white_box"
)

// reportNamespace scopes report IDs.
var reportNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://sealbench.invalid/audit-report/v1"))

// Report is the structured result of one audit over one sealed world.
type Report struct {
	ID                string      `json:"id"`
	ConfigFingerprint string      `json:"config_fingerprint"`
	Seed              string      `json:"seed"`
	DatasetVersion    string      `json:"dataset_version"`
	Track             string      `json:"track"`
	WorldHash         string      `json:"world_hash"`
	ThreatModel       ThreatModel `json:"threat_model"`

	// Black-box only.
	Curve []CurvePoint `json:"curve,omitempty"`

	// White-box only.
	RecoveryRate *float64       `json:"recovery_rate,omitempty"`
	Verdicts     []ClaimVerdict `json:"verdicts,omitempty"`
}

// Leakage is the report's headline number: the final curve rate for a
// black-box report, the recovery rate for a white-box one.
func (r Report) Leakage() float64 {
	if r.ThreatModel == WhiteBox {
		if r.RecoveryRate == nil {
			return 0
		}
		return *r.RecoveryRate
	}
	return Curve{Points: r.Curve}.Final()
}

func newReport(world *ir.SealedWorld, tm ThreatModel) (Report, error) {
	hash, err := world.Hash()
	if err != nil {
		return Report{}, err
	}
	id := uuid.NewSHA1(reportNamespace, []byte(strings.Join([]string{
		world.DatasetVersion, world.Track, world.Seed, world.ConfigFingerprint, hash, string(tm),
	}, "\x00")))
	return Report{
		ID:                id.String(),
		ConfigFingerprint: world.ConfigFingerprint,
		Seed:              world.Seed,
		DatasetVersion:    world.DatasetVersion,
		Track:             world.Track,
		WorldHash:         hash,
		ThreatModel:       tm,
	}, nil
}

// NewBlackBoxReport wraps a budget curve. The adversary's claims are not
// carried; they hold canonical keys.
func NewBlackBoxReport(world *ir.SealedWorld, curve Curve) (Report, error) {
	r, err := newReport(world, BlackBox)
	if err != nil {
		return Report{}, err
	}
	r.Curve = curve.Points
	return r, nil
}

// NewWhiteBoxReport wraps a recovery verdict.
func NewWhiteBoxReport(world *ir.SealedWorld, v Verdict) (Report, error) {
	r, err := newReport(world, WhiteBox)
	if err != nil {
		return Report{}, err
	}
	rate := v.Rate
	r.RecoveryRate = &rate
	r.Verdicts = v.Claims
	return r, nil
}
