// Package llm adapts the configured model providers into the domain
// agent.Client contract: one non-streaming turn in, one response out,
// routed across a primary model and its fallback chain with a
// per-provider circuit breaker.
package llm

import (
	"context"

	"github.com/mu-hashmi/revis/internal/domain/agent"
)

// Provider is one backing model endpoint (an Anthropic or OpenAI-compatible
// API). Revis adapts each into a single non-streaming call; there is no
// delta-streaming surface because the agent loop consumes whole turns.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req agent.Request) (*agent.Response, error)
	SupportsModel(model string) bool
	IsAvailable(ctx context.Context) bool
}

// ProviderConfig names one provider's endpoint and credentials.
type ProviderConfig struct {
	Name    string
	Type    string // "anthropic" | "openai" (OpenAI-compatible, default)
	BaseURL string
	APIKey  string
	Models  []string
}
