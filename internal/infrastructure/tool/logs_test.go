package tool

import (
	"context"
	"testing"
	"time"

	"github.com/mu-hashmi/revis/internal/infrastructure/executor"
)

type fakeExecutor struct {
	tail string
}

func (f *fakeExecutor) Launch(ctx context.Context, command string, env map[string]string, sessionName string) (string, error) {
	return sessionName, nil
}
func (f *fakeExecutor) Wait(ctx context.Context, processID string, timeout time.Duration) (executor.WaitResult, error) {
	return executor.WaitResult{}, nil
}
func (f *fakeExecutor) Kill(ctx context.Context, processID string) error             { return nil }
func (f *fakeExecutor) IsRunning(ctx context.Context, processID string) (bool, error) { return false, nil }
func (f *fakeExecutor) GetLogTail(ctx context.Context, processID, path string, lines int) (string, error) {
	return f.tail, nil
}
func (f *fakeExecutor) SyncCode(ctx context.Context, localPath, remotePath string) error { return nil }
func (f *fakeExecutor) FileExists(ctx context.Context, path string) (bool, error)        { return false, nil }
func (f *fakeExecutor) ReadFile(ctx context.Context, path string) (string, error)        { return "", nil }
func (f *fakeExecutor) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	return nil
}
func (f *fakeExecutor) CollectArtifacts(ctx context.Context, patterns []string, since time.Time, dest string) ([]string, error) {
	return nil, nil
}
func (f *fakeExecutor) Reconnect(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeExecutor) Close() error                                { return nil }

var _ executor.Executor = (*fakeExecutor)(nil)

func TestGetTrainingLogsTool_FiltersErrors(t *testing.T) {
	tail := "\x1b[32mstep 1: loss=0.5\x1b[0m\nERROR: CUDA out of memory\nstep 2: loss=0.4\n"
	tool := NewGetTrainingLogsTool(&fakeExecutor{tail: tail}, "sess", "/tmp/log")

	res, err := tool.Execute(context.Background(), map[string]interface{}{"filter": "errors"})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	if !contains(res.Output, "CUDA out of memory") {
		t.Fatalf("expected error line to survive filter, got %q", res.Output)
	}
	if contains(res.Output, "step 1") {
		t.Fatalf("did not expect non-error line, got %q", res.Output)
	}
}

func TestGetTrainingLogsTool_MetricsFilterAndANSIStrip(t *testing.T) {
	tail := "\x1b[32mstep 1: loss=0.5\x1b[0m\nsome random log line\nepoch 2 accuracy=0.9\n"
	tool := NewGetTrainingLogsTool(&fakeExecutor{tail: tail}, "sess", "/tmp/log")

	res, err := tool.Execute(context.Background(), map[string]interface{}{"filter": "metrics"})
	if err != nil || !res.Success {
		t.Fatalf("unexpected result: %+v, err=%v", res, err)
	}
	if contains(res.Output, "\x1b") {
		t.Fatalf("expected ANSI escapes stripped, got %q", res.Output)
	}
	if !contains(res.Output, "step 1") || !contains(res.Output, "epoch 2") {
		t.Fatalf("expected metric lines to survive, got %q", res.Output)
	}
	if contains(res.Output, "random log line") {
		t.Fatalf("did not expect non-metric line, got %q", res.Output)
	}
}

func TestGetTrainingLogsTool_InvalidFilter(t *testing.T) {
	tool := NewGetTrainingLogsTool(&fakeExecutor{}, "sess", "/tmp/log")
	res, err := tool.Execute(context.Background(), map[string]interface{}{"filter": "bogus"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected invalid filter to fail")
	}
}
