// Package guardrail implements the automatic checks applied to each run
// without agent involvement: a metric going non-finite or blowing up, a
// metric going nowhere, or a run refusing to finish. Of these, only a
// plateau ends a session; the orchestrator logs the others.
package guardrail

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Sentinel errors returned by the checks. The orchestrator maps ErrPlateau
// onto entity.ReasonPlateau; the others have no termination reason.
var (
	ErrNonFinite = fmt.Errorf("metric is NaN or Inf")
	ErrDiverged  = fmt.Errorf("metric diverged")
	ErrPlateau   = fmt.Errorf("metric plateaued")
	ErrTimeout   = fmt.Errorf("run exceeded timeout")
)

// NaNInfGuard flags a run where any reported metric went non-finite.
type NaNInfGuard struct {
	logger *zap.Logger
}

// NewNaNInfGuard builds a guard over a run's full metric set.
func NewNaNInfGuard(logger *zap.Logger) *NaNInfGuard {
	return &NaNInfGuard{logger: logger}
}

// Check scans every metric the run reported, independent of which one is
// the session's primary objective.
func (g *NaNInfGuard) Check(metrics map[string]float64) error {
	for name, v := range metrics {
		if isNonFinite(v) {
			g.logger.Warn("metric value is non-finite", zap.String("metric", name), zap.Float64("value", v))
			return ErrNonFinite
		}
	}
	return nil
}

func isNonFinite(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// DivergenceGuard flags a run whose primary metric has grown to a multiple
// of the session's initial value, regardless of optimization direction.
type DivergenceGuard struct {
	multiplier float64
	logger     *zap.Logger
}

// NewDivergenceGuard builds a guard that fires once a new value exceeds
// multiplier times the magnitude of the session's first recorded value.
func NewDivergenceGuard(multiplier float64, logger *zap.Logger) *DivergenceGuard {
	return &DivergenceGuard{multiplier: multiplier, logger: logger}
}

// Check reports whether value has diverged relative to initial (the
// session's first recorded value for this metric, fixed for the session's
// lifetime rather than a running best).
func (g *DivergenceGuard) Check(value, initial float64) error {
	if g.multiplier <= 0 || initial == 0 {
		return nil
	}
	threshold := absf(initial) * g.multiplier
	if absf(value) > threshold {
		g.logger.Warn("metric diverged from initial value",
			zap.Float64("value", value),
			zap.Float64("initial", initial),
			zap.Float64("multiplier", g.multiplier),
		)
		return ErrDiverged
	}
	return nil
}

// PlateauGuard flags a session whose best metric over the last N runs
// improved by less than threshold relative to the best over all earlier runs.
type PlateauGuard struct {
	window    int
	threshold float64
	logger    *zap.Logger
}

// NewPlateauGuard builds a guard over a trailing window of run outcomes.
func NewPlateauGuard(window int, threshold float64, logger *zap.Logger) *PlateauGuard {
	return &PlateauGuard{window: window, threshold: threshold, logger: logger}
}

// Check takes the metric history in run order (oldest first) and reports
// whether the trailing window shows no meaningful improvement.
func (g *PlateauGuard) Check(history []float64, minimize bool) error {
	if g.window <= 0 || len(history) <= g.window {
		return nil
	}
	before := history[:len(history)-g.window]
	recent := history[len(history)-g.window:]
	bestBefore := bestOf(before, minimize)
	bestRecent := bestOf(recent, minimize)

	var relative float64
	if bestBefore != 0 {
		if minimize {
			relative = (bestBefore - bestRecent) / absf(bestBefore)
		} else {
			relative = (bestRecent - bestBefore) / absf(bestBefore)
		}
	}
	if relative < g.threshold {
		g.logger.Warn("metric plateaued over trailing window",
			zap.Int("window", g.window),
			zap.Float64("relative_improvement", relative),
			zap.Float64("threshold", g.threshold),
		)
		return ErrPlateau
	}
	return nil
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// bestOf returns the minimum (minimize=true) or maximum of values.
// Callers guarantee values is non-empty.
func bestOf(values []float64, minimize bool) float64 {
	best := values[0]
	for _, v := range values[1:] {
		if minimize && v < best {
			best = v
		}
		if !minimize && v > best {
			best = v
		}
	}
	return best
}

// TimeoutGuard flags a run that has exceeded its maximum allowed duration.
type TimeoutGuard struct {
	maxDuration time.Duration
	logger      *zap.Logger
}

// NewTimeoutGuard builds a guard against a single fixed duration cap.
func NewTimeoutGuard(maxDuration time.Duration, logger *zap.Logger) *TimeoutGuard {
	return &TimeoutGuard{maxDuration: maxDuration, logger: logger}
}

// Check reports whether the run, started at startedAt, has overrun.
func (g *TimeoutGuard) Check(startedAt time.Time) error {
	if g.maxDuration <= 0 {
		return nil
	}
	if time.Since(startedAt) > g.maxDuration {
		g.logger.Warn("run exceeded timeout", zap.Duration("max", g.maxDuration))
		return ErrTimeout
	}
	return nil
}

// Checker bundles the four guards the orchestrator consults after every run.
type Checker struct {
	NaNInf     *NaNInfGuard
	Divergence *DivergenceGuard
	Plateau    *PlateauGuard
	Timeout    *TimeoutGuard
}

// NewChecker wires up all four guards from a single set of thresholds.
func NewChecker(divergenceMultiplier float64, plateauWindow int, plateauThreshold float64, runTimeout time.Duration, logger *zap.Logger) *Checker {
	return &Checker{
		NaNInf:     NewNaNInfGuard(logger),
		Divergence: NewDivergenceGuard(divergenceMultiplier, logger),
		Plateau:    NewPlateauGuard(plateauWindow, plateauThreshold, logger),
		Timeout:    NewTimeoutGuard(runTimeout, logger),
	}
}
