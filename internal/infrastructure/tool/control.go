package tool

import (
	"context"

	domaintool "github.com/mu-hashmi/revis/internal/domain/tool"
)

// CodeChangeRequest is the structured handoff recorded by request_code_change:
// no files are mutated by the tool itself, the orchestrator surfaces the
// request for a human (or a future code-editing capability) to act on.
type CodeChangeRequest struct {
	Suggestion     string
	Hypothesis     string
	RelevantFiles  []string
}

// SetNextCommandTool stores an override for the training command used by
// the next iteration only.
type SetNextCommandTool struct {
	set func(command string)
}

func NewSetNextCommandTool(set func(command string)) *SetNextCommandTool {
	return &SetNextCommandTool{set: set}
}

func (t *SetNextCommandTool) Name() string         { return "set_next_command" }
func (t *SetNextCommandTool) Kind() domaintool.Kind { return domaintool.KindControl }
func (t *SetNextCommandTool) Description() string {
	return "Override the training command used for the next iteration only."
}

func (t *SetNextCommandTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{"type": "string", "description": "shell command to run next iteration"},
		},
		"required": []string{"command"},
	}
}

func (t *SetNextCommandTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return &domaintool.Result{Success: false, Error: "command is required"}, nil
	}
	t.set(command)
	return &domaintool.Result{Output: "next command set: " + command, Success: true}, nil
}

// RequestCodeChangeTool records a structured handoff request. It mutates no
// files; the orchestrator reports this request to whoever reviews the
// session as a suggestion awaiting out-of-band action, not an in-loop
// code editor.
type RequestCodeChangeTool struct {
	record func(CodeChangeRequest)
}

func NewRequestCodeChangeTool(record func(CodeChangeRequest)) *RequestCodeChangeTool {
	return &RequestCodeChangeTool{record: record}
}

func (t *RequestCodeChangeTool) Name() string         { return "request_code_change" }
func (t *RequestCodeChangeTool) Kind() domaintool.Kind { return domaintool.KindHandoff }
func (t *RequestCodeChangeTool) Description() string {
	return "Record a structured request for a source-code change that the agent cannot make through config edits alone."
}

func (t *RequestCodeChangeTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"suggestion":     map[string]interface{}{"type": "string"},
			"hypothesis":     map[string]interface{}{"type": "string"},
			"relevant_files": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required": []string{"suggestion", "hypothesis"},
	}
}

func (t *RequestCodeChangeTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	suggestion, _ := args["suggestion"].(string)
	hypothesis, _ := args["hypothesis"].(string)
	if suggestion == "" || hypothesis == "" {
		return &domaintool.Result{Success: false, Error: "suggestion and hypothesis are required"}, nil
	}

	var files []string
	if raw, ok := args["relevant_files"].([]interface{}); ok {
		for _, f := range raw {
			if s, ok := f.(string); ok {
				files = append(files, s)
			}
		}
	}

	req := CodeChangeRequest{Suggestion: suggestion, Hypothesis: hypothesis, RelevantFiles: files}
	t.record(req)
	return &domaintool.Result{Output: "code change request recorded", Success: true}, nil
}
