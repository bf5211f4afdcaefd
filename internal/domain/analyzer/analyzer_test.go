package analyzer

import (
	"testing"

	"github.com/mu-hashmi/revis/internal/domain/entity"
)

func TestSummarize(t *testing.T) {
	outcome := entity.OutcomeImproved
	run := &entity.Run{Iteration: 3, ChangeDesc: "lowered learning rate", Outcome: &outcome}
	step0, step1 := 0, 1
	metrics := []entity.Metric{
		{Name: "loss", Value: 1.5, Step: &step0},
		{Name: "loss", Value: 1.1, Step: &step1},
	}

	s := Summarize(run, metrics)
	if s.Iteration != 3 {
		t.Fatalf("expected iteration 3, got %d", s.Iteration)
	}
	if s.Metrics["loss"] != 1.1 {
		t.Fatalf("expected latest loss 1.1, got %v", s.Metrics["loss"])
	}
	if s.Outcome != entity.OutcomeImproved {
		t.Fatalf("expected improved outcome, got %v", s.Outcome)
	}
}

func TestCompare_Improvement(t *testing.T) {
	prev := map[string]float64{"loss": 1.0}
	cur := map[string]float64{"loss": 0.8}

	deltas := Compare(prev, cur, "loss", true)
	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	if !deltas[0].Improved {
		t.Fatal("expected loss decrease to be classified as improved when minimizing")
	}
}

func TestBest_MinimizeAndMaximize(t *testing.T) {
	runs := []RunSummary{
		{Metrics: map[string]float64{"loss": 1.0}},
		{Metrics: map[string]float64{"loss": 0.5}},
		{Metrics: map[string]float64{"loss": 0.7}},
	}

	best, ok := Best(runs, "loss", true)
	if !ok || best != 0.5 {
		t.Fatalf("expected best=0.5, got %v ok=%v", best, ok)
	}

	best, ok = Best(runs, "loss", false)
	if !ok || best != 1.0 {
		t.Fatalf("expected best=1.0 maximizing, got %v ok=%v", best, ok)
	}
}

func TestHistory_SkipsMissing(t *testing.T) {
	runs := []RunSummary{
		{Metrics: map[string]float64{"loss": 1.0}},
		{Metrics: map[string]float64{}},
		{Metrics: map[string]float64{"loss": 0.5}},
	}
	h := History(runs, "loss")
	if len(h) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(h))
	}
}
