package metrics

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"
)

// runURLPattern extracts an opaque run identifier from a well-known
// tracker URL appearing in the training log tail, e.g.
// "https://tracker.example.com/runs/a1b2c3d4".
var runURLPattern = regexp.MustCompile(`https?://[^\s]+/runs/([A-Za-z0-9_-]+)`)

type trackerRunSummary struct {
	State   string                 `json:"state"`
	Metrics map[string]interface{} `json:"metrics"`
}

// TrackerCollector extracts a run ID from the training log and fetches its
// final summary from an external experiment-tracking service's API.
type TrackerCollector struct {
	client  *resty.Client
	baseURL string
}

func NewTrackerCollector(baseURL, apiKey string) *TrackerCollector {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetTimeout(10 * time.Second)
	return &TrackerCollector{client: client, baseURL: baseURL}
}

func (c *TrackerCollector) Collect(ctx context.Context, run RunContext) (map[string]float64, bool, error) {
	match := runURLPattern.FindStringSubmatch(run.LogTail)
	if match == nil {
		return nil, false, nil
	}
	runID := match[1]

	var summary trackerRunSummary
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&summary).
		Get(fmt.Sprintf("/runs/%s", runID))
	if err != nil {
		return nil, false, fmt.Errorf("fetch tracker run %s: %w", runID, err)
	}
	if resp.IsError() {
		return nil, false, fmt.Errorf("tracker run %s: status %d", runID, resp.StatusCode())
	}

	if summary.State != "finished" && summary.State != "crashed" {
		return nil, false, nil
	}

	out := make(map[string]float64, len(summary.Metrics))
	for name, raw := range summary.Metrics {
		if !keep(name) {
			continue
		}
		v, ok := raw.(float64)
		if !ok {
			continue
		}
		out[name] = v
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}
