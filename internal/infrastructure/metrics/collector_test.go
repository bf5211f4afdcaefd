package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestResultFileCollector_ReadsAndFiltersMetrics(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.json")
	content := `{"metrics": {"loss": 0.42, "epoch": 3, "_debug": 1, "accuracy": "not-a-number"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	c := NewResultFileCollector()
	metrics, ok, err := c.Collect(context.Background(), RunContext{ResultPath: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected metrics to be present")
	}
	if len(metrics) != 1 || metrics["loss"] != 0.42 {
		t.Fatalf("expected only loss=0.42 to survive filtering, got %v", metrics)
	}
}

func TestResultFileCollector_MissingFileIsAbsentNotError(t *testing.T) {
	c := NewResultFileCollector()
	_, ok, err := c.Collect(context.Background(), RunContext{ResultPath: "/nonexistent/result.json"})
	if err != nil {
		t.Fatalf("missing file must not be an error, got %v", err)
	}
	if ok {
		t.Fatalf("expected absence for missing file")
	}
}

func TestResultFileCollector_MalformedJSONIsAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	c := NewResultFileCollector()
	_, ok, err := c.Collect(context.Background(), RunContext{ResultPath: path})
	if err != nil {
		t.Fatalf("malformed file must not be an error, got %v", err)
	}
	if ok {
		t.Fatalf("expected absence for malformed file")
	}
}

func TestRunURLPattern_ExtractsRunID(t *testing.T) {
	log := "starting...\nview run at https://tracker.example.com/runs/a1b2c3d4\ntraining..."
	match := runURLPattern.FindStringSubmatch(log)
	if match == nil || match[1] != "a1b2c3d4" {
		t.Fatalf("expected run id a1b2c3d4, got %v", match)
	}
}
