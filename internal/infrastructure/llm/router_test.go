package llm

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/mu-hashmi/revis/internal/domain/agent"
)

type fakeProvider struct {
	name      string
	models    []string
	available bool
	err       error
	calls     int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) SupportsModel(model string) bool {
	for _, m := range f.models {
		if m == model {
			return true
		}
	}
	return false
}

func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return f.available }

func (f *fakeProvider) Complete(ctx context.Context, req agent.Request) (*agent.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &agent.Response{Text: "ok from " + f.name}, nil
}

func TestRouter_FallsBackOnFailure(t *testing.T) {
	primary := &fakeProvider{name: "primary", models: []string{"model-a"}, available: true, err: errors.New("503 service unavailable")}
	fallback := &fakeProvider{name: "fallback", models: []string{"model-b"}, available: true}

	r := NewRouter("model-a", []string{"model-b"}, zap.NewNop())
	r.AddProvider(primary)
	r.AddProvider(fallback)

	resp, err := r.Complete(context.Background(), agent.Request{Model: "model-a"})
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if resp.Text != "ok from fallback" || !resp.UsedFallback {
		t.Fatalf("expected fallback response, got %+v", resp)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Fatalf("expected one call to each, got primary=%d fallback=%d", primary.calls, fallback.calls)
	}
}

func TestRouter_SkipsUnavailableAndUnsupported(t *testing.T) {
	unsupported := &fakeProvider{name: "wrong-model", models: []string{"other"}, available: true}
	unavailable := &fakeProvider{name: "no-key", models: []string{"model-a"}, available: false}
	good := &fakeProvider{name: "good", models: []string{"model-a"}, available: true}

	r := NewRouter("model-a", nil, zap.NewNop())
	r.AddProvider(unsupported)
	r.AddProvider(unavailable)
	r.AddProvider(good)

	resp, err := r.Complete(context.Background(), agent.Request{Model: "model-a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "ok from good" {
		t.Fatalf("expected the only eligible provider to answer, got %+v", resp)
	}
}

func TestRouter_AllFailedReturnsError(t *testing.T) {
	p := &fakeProvider{name: "p", models: []string{"model-a"}, available: true, err: errors.New("boom")}
	r := NewRouter("model-a", nil, zap.NewNop())
	r.AddProvider(p)

	if _, err := r.Complete(context.Background(), agent.Request{Model: "model-a"}); err == nil {
		t.Fatalf("expected error when all providers fail")
	}
}
