package tool

import (
	"context"
	"testing"
)

func TestSetNextCommandTool(t *testing.T) {
	var captured string
	tool := NewSetNextCommandTool(func(cmd string) { captured = cmd })

	res, err := tool.Execute(context.Background(), map[string]interface{}{"command": "python train.py --lr 0.01"})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	if captured != "python train.py --lr 0.01" {
		t.Fatalf("expected command captured, got %q", captured)
	}
}

func TestSetNextCommandTool_EmptyCommandFails(t *testing.T) {
	tool := NewSetNextCommandTool(func(string) {})
	res, err := tool.Execute(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected empty command to fail")
	}
}

func TestRequestCodeChangeTool(t *testing.T) {
	var captured CodeChangeRequest
	tool := NewRequestCodeChangeTool(func(r CodeChangeRequest) { captured = r })

	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"suggestion":     "switch to cosine LR schedule",
		"hypothesis":     "plateau is caused by a fixed learning rate",
		"relevant_files": []interface{}{"train.py", "lr_scheduler.py"},
	})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	if captured.Suggestion == "" || captured.Hypothesis == "" || len(captured.RelevantFiles) != 2 {
		t.Fatalf("expected request captured fully, got %+v", captured)
	}
}

func TestRequestCodeChangeTool_MissingFieldsFails(t *testing.T) {
	tool := NewRequestCodeChangeTool(func(CodeChangeRequest) {})
	res, err := tool.Execute(context.Background(), map[string]interface{}{"suggestion": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected missing hypothesis to fail")
	}
}
