// Package metrics implements the two MetricsCollector backends: reading a
// result file the training script writes (ResultFileCollector), and querying
// an external experiment-tracking service (TrackerCollector). The
// application wires only ResultFileCollector; nothing falls back to the
// tracker when no result file is produced.
package metrics

import (
	"context"
	"encoding/json"
	"os"
	"strings"
)

// Collector returns a name -> value mapping for a finished run, or ok=false
// if no metrics could be produced (missing file, unparseable tracker state,
// and so on -- never an error for the ordinary "not ready yet" case).
type Collector interface {
	Collect(ctx context.Context, run RunContext) (map[string]float64, bool, error)
}

// RunContext carries what a collector needs: where the run wrote its
// result file, and the tail of its training log (for the external tracker
// collector's run-ID extraction).
type RunContext struct {
	ResultPath string
	LogTail    string
}

// denyKeys are non-optimizable metadata every collector drops even when a
// training script reports them under "metrics".
var denyKeys = map[string]bool{
	"step": true, "epoch": true, "learning_rate": true, "lr": true,
	"timestamp": true, "wall_time": true, "gradient_norm": true,
	"throughput": true, "samples_per_sec": true, "elapsed": true,
}

func keep(name string) bool {
	if strings.HasPrefix(name, "_") {
		return false
	}
	return !denyKeys[strings.ToLower(name)]
}

type resultFilePayload struct {
	Metrics map[string]json.RawMessage `json:"metrics"`
}

// ResultFileCollector reads the JSON file a training run is expected to
// write to an output directory revealed to it via an environment
// variable. A missing or malformed file is absence, not an error.
type ResultFileCollector struct{}

func NewResultFileCollector() *ResultFileCollector { return &ResultFileCollector{} }

func (c *ResultFileCollector) Collect(ctx context.Context, run RunContext) (map[string]float64, bool, error) {
	data, err := os.ReadFile(run.ResultPath)
	if err != nil {
		return nil, false, nil
	}

	var payload resultFilePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false, nil
	}
	if payload.Metrics == nil {
		return nil, false, nil
	}

	out := make(map[string]float64, len(payload.Metrics))
	for name, raw := range payload.Metrics {
		if !keep(name) {
			continue
		}
		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			continue // non-numeric entry, dropped; no warning is logged
		}
		v, err := num.Float64()
		if err != nil {
			continue
		}
		out[name] = v
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}
