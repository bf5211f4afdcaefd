package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mu-hashmi/revis/internal/domain/agent"
)

// Router implements agent.Client by trying the primary model, then each
// fallback model in order, skipping any provider whose circuit is open.
type Router struct {
	providers []Provider
	breakers  map[string]*CircuitBreaker
	mu        sync.RWMutex
	logger    *zap.Logger

	primary   string
	fallbacks []string
}

var _ agent.Client = (*Router)(nil)

func NewRouter(primary string, fallbacks []string, logger *zap.Logger) *Router {
	return &Router{
		breakers:  make(map[string]*CircuitBreaker),
		logger:    logger.With(zap.String("component", "model-router")),
		primary:   primary,
		fallbacks: fallbacks,
	}
}

func (r *Router) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
	r.breakers[p.Name()] = NewCircuitBreaker(5, 30*time.Second)
}

// Complete tries req.Model's providers, then the fallback chain in order,
// skipping providers that do not support the requested model, are
// unavailable, or have a tripped circuit breaker.
func (r *Router) Complete(ctx context.Context, req agent.Request) (*agent.Response, error) {
	chain := append([]string{req.Model}, r.fallbacks...)
	if req.Model == "" {
		chain = append([]string{r.primary}, r.fallbacks...)
	}

	var lastErr error
	for i, model := range chain {
		resp, err := r.tryModel(ctx, req, model)
		if err == nil {
			resp.UsedFallback = i > 0
			resp.ModelUsed = model
			return resp, nil
		}
		lastErr = err
		r.logger.Warn("model failed, trying next in fallback chain",
			zap.String("model", model), zap.Error(err))
	}
	if lastErr != nil {
		return nil, fmt.Errorf("all models in fallback chain failed, last error: %w", lastErr)
	}
	return nil, fmt.Errorf("no provider configured for model chain %v", chain)
}

func (r *Router) tryModel(ctx context.Context, req agent.Request, model string) (*agent.Response, error) {
	r.mu.RLock()
	providers := make([]Provider, len(r.providers))
	copy(providers, r.providers)
	r.mu.RUnlock()

	callReq := req
	callReq.Model = model

	var lastErr error
	for _, p := range providers {
		if !p.SupportsModel(model) || !p.IsAvailable(ctx) {
			continue
		}
		cb := r.breakers[p.Name()]
		if cb != nil && !cb.Allow() {
			continue
		}

		resp, err := p.Complete(ctx, callReq)
		if err != nil {
			if cb != nil {
				cb.RecordFailure()
			}
			lastErr = err
			continue
		}
		if cb != nil {
			cb.RecordSuccess()
		}
		return resp, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("no available provider for model %q", model)
}
