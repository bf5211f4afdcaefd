package agent

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

type scriptedClient struct {
	responses []Response
	i         int
}

func (c *scriptedClient) Complete(ctx context.Context, req Request) (*Response, error) {
	r := c.responses[c.i]
	if c.i < len(c.responses)-1 {
		c.i++
	}
	return &r, nil
}

type fakeExecutor struct {
	calls int
	paths []string
}

func (f *fakeExecutor) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	f.calls++
	return "ok", nil
}
func (f *fakeExecutor) Schemas() []ToolSchema    { return nil }
func (f *fakeExecutor) ModifiedPaths() []string  { return f.paths }

func TestLoop_StopsWhenNoToolCalls(t *testing.T) {
	client := &scriptedClient{responses: []Response{
		{Text: "RATIONALE: lowered lr\nSIGNIFICANT: true"},
	}}
	tools := &fakeExecutor{paths: []string{"config.yaml"}}

	l := New(client, tools, Config{MaxRounds: 20}, zap.NewNop())
	result, err := l.Run(context.Background(), "system", "context")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Rationale != "lowered lr" || !result.Significant {
		t.Fatalf("unexpected result: %+v", result)
	}
	if tools.calls != 0 {
		t.Fatalf("expected no tool calls, got %d", tools.calls)
	}
}

func TestLoop_RunsToolCallsThenStops(t *testing.T) {
	client := &scriptedClient{responses: []Response{
		{ToolCalls: []ToolCall{{ID: "1", Name: "read_file"}}},
		{Text: "RATIONALE: done\nESCALATE: stuck in a loop"},
	}}
	tools := &fakeExecutor{}

	l := New(client, tools, Config{MaxRounds: 20}, zap.NewNop())
	result, err := l.Run(context.Background(), "system", "context")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tools.calls != 1 {
		t.Fatalf("expected 1 tool call, got %d", tools.calls)
	}
	if result.ToolCallCount != 1 {
		t.Fatalf("expected ToolCallCount=1, got %d", result.ToolCallCount)
	}
	if !result.Escalate || result.EscalateReason != "stuck in a loop" {
		t.Fatalf("expected escalation parsed, got %+v", result)
	}
}

func TestLoop_BoundsRoundTrips(t *testing.T) {
	client := &scriptedClient{responses: []Response{
		{ToolCalls: []ToolCall{{ID: "1", Name: "read_file"}}},
	}}
	tools := &fakeExecutor{}

	l := New(client, tools, Config{MaxRounds: 3}, zap.NewNop())
	_, err := l.Run(context.Background(), "system", "context")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tools.calls != 3 {
		t.Fatalf("expected exactly MaxRounds=3 tool calls, got %d", tools.calls)
	}
}
