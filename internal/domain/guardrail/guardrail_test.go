package guardrail

import (
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNaNInfGuard_Triggers(t *testing.T) {
	g := NewNaNInfGuard(zap.NewNop())

	if err := g.Check(map[string]float64{"loss": 0.5, "lr": math.NaN()}); !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite for NaN, got %v", err)
	}
	if err := g.Check(map[string]float64{"loss": math.Inf(1)}); !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite for +Inf, got %v", err)
	}
	if err := g.Check(map[string]float64{"loss": 0.5, "acc": 0.9}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDivergenceGuard_Triggers(t *testing.T) {
	g := NewDivergenceGuard(10, zap.NewNop())

	if err := g.Check(50, 1); !errors.Is(err, ErrDiverged) {
		t.Fatalf("expected divergence error, got %v", err)
	}
	if err := g.Check(0.5, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDivergenceGuard_ZeroInitial(t *testing.T) {
	g := NewDivergenceGuard(10, zap.NewNop())
	if err := g.Check(1e9, 0); err != nil {
		t.Fatalf("expected no error when initial value is zero, got %v", err)
	}
}

func TestDivergenceGuard_Disabled(t *testing.T) {
	g := NewDivergenceGuard(0, zap.NewNop())
	if err := g.Check(1e9, 1); err != nil {
		t.Fatalf("expected no error when disabled, got %v", err)
	}
}

func TestPlateauGuard_Triggers(t *testing.T) {
	g := NewPlateauGuard(3, 0.05, zap.NewNop())

	flat := []float64{1.0, 0.99, 0.995, 0.991}
	if err := g.Check(flat, true); !errors.Is(err, ErrPlateau) {
		t.Fatalf("expected plateau error, got %v", err)
	}

	improving := []float64{1.0, 0.8, 0.6, 0.4}
	if err := g.Check(improving, true); err != nil {
		t.Fatalf("unexpected error for improving history: %v", err)
	}
}

func TestPlateauGuard_ShortHistory(t *testing.T) {
	g := NewPlateauGuard(5, 0.05, zap.NewNop())
	if err := g.Check([]float64{1, 1, 1}, true); err != nil {
		t.Fatalf("expected no error when history shorter than window, got %v", err)
	}
}

// TestPlateauGuard_BestOverFullPrefix pins the "before" value to the best
// across the entire history preceding the trailing window, not just the
// window's first element: a spike early in the prefix still counts.
func TestPlateauGuard_BestOverFullPrefix(t *testing.T) {
	g := NewPlateauGuard(2, 0.05, zap.NewNop())

	// prefix best is 0.5 (not the prefix's first element, 1.0); the
	// trailing window's best of 0.49 is only a ~2% improvement over it.
	history := []float64{1.0, 0.5, 0.8, 0.495, 0.49}
	if err := g.Check(history, true); !errors.Is(err, ErrPlateau) {
		t.Fatalf("expected plateau error, got %v", err)
	}
}

func TestTimeoutGuard(t *testing.T) {
	g := NewTimeoutGuard(10*time.Millisecond, zap.NewNop())

	started := time.Now()
	if err := g.Check(started); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(15 * time.Millisecond)
	if err := g.Check(started); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}
