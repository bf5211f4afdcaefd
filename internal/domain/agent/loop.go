package agent

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ToolExecutor is the loop's view of the tool vocabulary: look up a tool by
// name and run it, returning a single text result. Unknown tool names are
// not an error here — the loop reports "Unknown tool: <name>" back to the
// model and keeps going.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]interface{}) (string, error)
	Schemas() []ToolSchema
	ModifiedPaths() []string
}

// Config bounds one agent loop invocation.
type Config struct {
	MaxRounds     int
	MaxRetries    int
	RetryBaseWait time.Duration
	Model         string
}

// Result is what the orchestrator reads back after the loop stops.
type Result struct {
	Rationale     string
	Significant   bool
	Escalate      bool
	EscalateReason string
	ModifiedPaths []string
	ToolCallCount int
	DollarCost    float64
}

// Loop drives a bounded ReAct conversation: the model calls tools via
// ToolExecutor until it responds without tool calls, or the round cap is
// hit.
type Loop struct {
	client Client
	tools  ToolExecutor
	config Config
	logger *zap.Logger
}

// New builds a Loop bound to a Model Client and a run's ToolExecutor.
func New(client Client, tools ToolExecutor, config Config, logger *zap.Logger) *Loop {
	if config.MaxRounds <= 0 {
		config.MaxRounds = 20
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryBaseWait <= 0 {
		config.RetryBaseWait = 2 * time.Second
	}
	return &Loop{client: client, tools: tools, config: config, logger: logger}
}

// Run drives the loop from a system prompt and a user message describing
// the current iteration's context.
func (l *Loop) Run(ctx context.Context, systemPrompt, userContext string) (*Result, error) {
	messages := []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: userContext},
	}
	schemas := l.tools.Schemas()

	var (
		lastText  string
		toolCalls int
		cost      float64
	)

	for round := 0; round < l.config.MaxRounds; round++ {
		resp, err := l.completeWithRetry(ctx, Request{Model: l.config.Model, Messages: messages, Tools: schemas})
		if err != nil {
			return nil, fmt.Errorf("agent loop: model call failed at round %d: %w", round, err)
		}
		cost += resp.DollarCost
		lastText = resp.Text

		if len(resp.ToolCalls) == 0 {
			break
		}

		messages = append(messages, Message{Role: RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})

		for _, call := range resp.ToolCalls {
			toolCalls++
			output, err := l.tools.Execute(ctx, call.Name, call.Arguments)
			if err != nil {
				output = fmt.Sprintf("error: %v", err)
			}
			messages = append(messages, Message{Role: RoleTool, Content: output, ToolCallID: call.ID})
		}
	}

	result := parseControlLines(lastText)
	result.ToolCallCount = toolCalls
	result.DollarCost = cost
	result.ModifiedPaths = l.tools.ModifiedPaths()
	return result, nil
}

// completeWithRetry retries transient Model Client failures with
// exponential backoff, propagating authentication/bad-request errors
// immediately.
func (l *Loop) completeWithRetry(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= l.config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := l.config.RetryBaseWait * time.Duration(1<<(attempt-1))
			l.logger.Info("retrying model call", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(lastErr))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := l.client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return nil, fmt.Errorf("non-retryable model error: %w", err)
		}
	}
	return nil, fmt.Errorf("model call failed after %d retries: %w", l.config.MaxRetries, lastErr)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())

	for _, pattern := range []string{"unauthorized", "invalid api key", "bad request", "invalid argument", "model not found", "context canceled"} {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}
	for _, pattern := range []string{"timeout", "deadline exceeded", "connection reset", "connection refused", "eof", "502", "503", "504", "529", "rate limit", "too many requests", "overloaded"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return true
}

// parseControlLines scans the final assistant message for the
// RATIONALE:/SIGNIFICANT:/ESCALATE: control lines. Everything else in the
// message is discarded; a message with none of these lines yields an
// empty, non-significant, non-escalating result.
func parseControlLines(text string) *Result {
	result := &Result{}
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "RATIONALE:"):
			result.Rationale = strings.TrimSpace(strings.TrimPrefix(line, "RATIONALE:"))
		case strings.HasPrefix(line, "SIGNIFICANT:"):
			v := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "SIGNIFICANT:")))
			result.Significant = v == "true" || v == "yes"
		case strings.HasPrefix(line, "ESCALATE:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "ESCALATE:"))
			if v != "" && !strings.EqualFold(v, "false") && !strings.EqualFold(v, "no") {
				result.Escalate = true
				result.EscalateReason = v
			}
		}
	}
	return result
}
