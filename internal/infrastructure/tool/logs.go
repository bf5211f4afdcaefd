package tool

import (
	"context"
	"regexp"
	"strings"

	domaintool "github.com/mu-hashmi/revis/internal/domain/tool"
	"github.com/mu-hashmi/revis/internal/infrastructure/executor"
)

const (
	maxLogBytes  = 30 * 1024
	maxLogLines  = 200
	defaultLines = 500 // lines requested from the underlying tail before filtering
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

var errorLineWords = []string{
	"error", "warning", "exception", "traceback", "failed", "out-of-memory", "nan", "cuda",
}

var metricLineWords = []string{
	"loss", "accuracy", "epoch", "step", "lr",
}

// GetTrainingLogsTool fetches the current run's log tail via the Executor,
// strips terminal control sequences, and applies an errors/metrics/all
// filter before capping the result at 30 KiB and 200 lines.
type GetTrainingLogsTool struct {
	exec      executor.Executor
	processID string
	logPath   string
}

func NewGetTrainingLogsTool(exec executor.Executor, processID, logPath string) *GetTrainingLogsTool {
	return &GetTrainingLogsTool{exec: exec, processID: processID, logPath: logPath}
}

func (t *GetTrainingLogsTool) Name() string         { return "get_training_logs" }
func (t *GetTrainingLogsTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *GetTrainingLogsTool) Description() string {
	return "Fetch the current run's training log tail, filtered to errors, metrics, or the raw tail."
}

func (t *GetTrainingLogsTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filter": map[string]interface{}{
				"type": "string", "enum": []string{"all", "errors", "metrics"},
				"description": "which lines to keep",
			},
		},
		"required": []string{"filter"},
	}
}

func (t *GetTrainingLogsTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	filter, _ := args["filter"].(string)
	if filter == "" {
		filter = "all"
	}
	if filter != "all" && filter != "errors" && filter != "metrics" {
		return &domaintool.Result{Success: false, Error: "filter must be one of: all, errors, metrics"}, nil
	}

	raw, err := t.exec.GetLogTail(ctx, t.processID, t.logPath, defaultLines)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	clean := ansiEscape.ReplaceAllString(raw, "")
	lines := strings.Split(clean, "\n")

	var kept []string
	switch filter {
	case "errors":
		kept = filterLines(lines, errorLineWords)
	case "metrics":
		kept = filterLines(lines, metricLineWords)
	default:
		kept = lines
	}

	if len(kept) > maxLogLines {
		kept = kept[len(kept)-maxLogLines:]
	}
	out := strings.Join(kept, "\n")
	if len(out) > maxLogBytes {
		out = out[len(out)-maxLogBytes:]
	}
	return &domaintool.Result{Output: out, Success: true}, nil
}

func filterLines(lines []string, words []string) []string {
	var out []string
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, w := range words {
			if strings.Contains(lower, w) {
				out = append(out, line)
				break
			}
		}
	}
	return out
}
