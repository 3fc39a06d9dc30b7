package store

import (
	"context"
	"testing"

	"github.com/roach88/sealbench/internal/audit"
	"github.com/roach88/sealbench/internal/ir"
)

func createTestReports(t *testing.T) (audit.Report, audit.Report) {
	t.Helper()
	w, _ := sealChain(t, 2, "42")

	bb, err := audit.NewBlackBoxReport(w, audit.Curve{Points: []audit.CurvePoint{
		{Budget: 3, Probes: 3, Identified: 1, SuccessRate: 1.0 / 3},
		{Budget: 9, Probes: 9, Identified: 2, SuccessRate: 2.0 / 3},
	}})
	if err != nil {
		t.Fatalf("NewBlackBoxReport() failed: %v", err)
	}
	wb, err := audit.NewWhiteBoxReport(w, audit.Verdict{Verified: 1, Total: 3, Rate: 1.0 / 3})
	if err != nil {
		t.Fatalf("NewWhiteBoxReport() failed: %v", err)
	}
	return bb, wb
}

func TestSaveReport_ReadBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	bb, wb := createTestReports(t)

	for _, r := range []audit.Report{wb, bb} {
		if err := s.SaveReport(ctx, r); err != nil {
			t.Fatalf("SaveReport() failed: %v", err)
		}
	}

	got, err := s.ReadReport(ctx, bb.ID)
	if err != nil {
		t.Fatalf("ReadReport() failed: %v", err)
	}
	if got.ID != bb.ID || got.ThreatModel != audit.BlackBox || len(got.Curve) != 2 {
		t.Errorf("ReadReport() = %+v", got)
	}
	if got.Leakage() != bb.Leakage() {
		t.Errorf("Leakage() = %v, want %v", got.Leakage(), bb.Leakage())
	}

	all, err := s.ReportsForWorld(ctx, bb.WorldHash)
	if err != nil {
		t.Fatalf("ReportsForWorld() failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ReportsForWorld() returned %d reports, want 2", len(all))
	}
	if all[0].ThreatModel != audit.BlackBox || all[1].ThreatModel != audit.WhiteBox {
		t.Errorf("ReportsForWorld() order = %s, %s", all[0].ThreatModel, all[1].ThreatModel)
	}
	if all[1].RecoveryRate == nil || *all[1].RecoveryRate != 1.0/3 {
		t.Errorf("white-box recovery rate lost in storage: %+v", all[1])
	}
}

func TestSaveReport_ReauditReplaces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	bb, _ := createTestReports(t)

	if err := s.SaveReport(ctx, bb); err != nil {
		t.Fatalf("SaveReport() failed: %v", err)
	}
	bb.Curve = append(bb.Curve, audit.CurvePoint{Budget: 12, Probes: 12, Identified: 3, SuccessRate: 1})
	if err := s.SaveReport(ctx, bb); err != nil {
		t.Fatalf("second SaveReport() failed: %v", err)
	}

	all, err := s.ReportsForWorld(ctx, bb.WorldHash)
	if err != nil {
		t.Fatalf("ReportsForWorld() failed: %v", err)
	}
	if len(all) != 1 || len(all[0].Curve) != 3 {
		t.Errorf("ReportsForWorld() = %+v, want one report with 3 points", all)
	}
}

func TestReadReport_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadReport(context.Background(), "missing")
	if !ir.IsKind(err, ir.KindNotFound) {
		t.Errorf("ReadReport() error = %v, want %s", err, ir.KindNotFound)
	}
}
