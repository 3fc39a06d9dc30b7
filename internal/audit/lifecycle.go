package audit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/sealbench/internal/ir"
)

// Stage is a sealed world's position in its lifecycle.
type Stage int

const (
	StageUnsealed Stage = iota
	StageSealed
	StageAudited
	StageReported
)

func (s Stage) String() string {
	switch s {
	case StageUnsealed:
		return "unsealed"
	case StageSealed:
		return "sealed"
	case StageAudited:
		return "audited"
	case StageReported:
		return "reported"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ErrInvalidTransition is returned for any backward or skipping transition.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// Lifecycle tracks one world instance: Unsealed -> Sealed -> Audited ->
// Reported. Transitions only move forward. Several reports may be attached
// while Audited.
type Lifecycle struct {
	mu        sync.Mutex
	stage     Stage
	worldHash string
	reports   []Report
}

// NewLifecycle starts in StageUnsealed.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

// Stage returns the current stage.
func (l *Lifecycle) Stage() Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stage
}

// Reports returns the attached reports in attach order.
func (l *Lifecycle) Reports() []Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Report(nil), l.reports...)
}

// Sealed binds the lifecycle to world.
func (l *Lifecycle) Sealed(world *ir.SealedWorld) error {
	hash, err := world.Hash()
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stage != StageUnsealed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.stage, StageSealed)
	}
	l.stage = StageSealed
	l.worldHash = hash
	return nil
}

// Attach records an audit report. The report must describe the bound world.
func (l *Lifecycle) Attach(r Report) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stage != StageSealed && l.stage != StageAudited {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.stage, StageAudited)
	}
	if r.WorldHash != l.worldHash {
		return fmt.Errorf("%w: report %s is for world %s, not %s", ErrInvalidTransition, r.ID, r.WorldHash, l.worldHash)
	}
	l.stage = StageAudited
	l.reports = append(l.reports, r)
	return nil
}

// Reported closes the lifecycle.
func (l *Lifecycle) Reported() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stage != StageAudited {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.stage, StageReported)
	}
	l.stage = StageReported
	return nil
}
