package tool

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mu-hashmi/revis/internal/domain/agent"
	domaintool "github.com/mu-hashmi/revis/internal/domain/tool"
	"github.com/mu-hashmi/revis/internal/infrastructure/executor"
)

// Executor wires the fixed tool vocabulary into a domain/agent.ToolExecutor.
// It is process-scoped to one orchestrator, but its mutable recording state
// (changes, next command override, code-change request) is reset at the
// start of every iteration — the orchestrator calls Reset before handing
// this to a fresh agent.Loop.Run.
type Executor struct {
	registry domaintool.Registry
	policy   *domaintool.Policy
	logger   *zap.Logger

	mu          sync.Mutex
	changes     []ChangeRecord
	nextCommand *string
	codeChange  *CodeChangeRequest
}

var _ agent.ToolExecutor = (*Executor)(nil)

// New builds an Executor with the full fixed tool vocabulary registered:
// read_file, list_directory, search_codebase, find_definition,
// get_training_logs, modify_config, set_next_command, request_code_change.
func New(repoRoot string, policy *domaintool.Policy, exec executor.Executor, processID, logPath string, logger *zap.Logger) (*Executor, error) {
	e := &Executor{
		registry: domaintool.NewInMemoryRegistry(),
		policy:   policy,
		logger:   logger.With(zap.String("component", "tool-executor")),
	}

	tools := []domaintool.Tool{
		NewReadFileTool(repoRoot, policy),
		NewListDirectoryTool(repoRoot, policy),
		NewSearchCodebaseTool(repoRoot, policy),
		NewFindDefinitionTool(repoRoot, policy),
		NewGetTrainingLogsTool(exec, processID, logPath),
		NewModifyConfigTool(repoRoot, policy, e.recordChange),
		NewSetNextCommandTool(e.setNextCommand),
		NewRequestCodeChangeTool(e.recordCodeChange),
	}
	for _, t := range tools {
		if err := e.registry.Register(t); err != nil {
			return nil, fmt.Errorf("register tool %s: %w", t.Name(), err)
		}
	}
	return e, nil
}

// Reset clears the mutable per-iteration state: recorded config changes,
// any next-command override, and any pending code-change request. The
// orchestrator calls this before every iteration so one run's recorded
// changes never leak into the next.
func (e *Executor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changes = nil
	e.nextCommand = nil
	e.codeChange = nil
}

func (e *Executor) recordChange(c ChangeRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changes = append(e.changes, c)
}

func (e *Executor) setNextCommand(command string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextCommand = &command
}

func (e *Executor) recordCodeChange(r CodeChangeRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codeChange = &r
}

// Changes returns the config mutations this iteration recorded, in order.
func (e *Executor) Changes() []ChangeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ChangeRecord, len(e.changes))
	copy(out, e.changes)
	return out
}

// NextCommand returns the training-command override the agent set for the
// next iteration, if any.
func (e *Executor) NextCommand() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.nextCommand == nil {
		return "", false
	}
	return *e.nextCommand, true
}

// CodeChange returns the structured code-change request the agent recorded,
// if any.
func (e *Executor) CodeChange() (CodeChangeRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.codeChange == nil {
		return CodeChangeRequest{}, false
	}
	return *e.codeChange, true
}

// Execute looks up name in the registry and runs it, converting the tool's
// structured Result into the single text string the agent loop appends as
// a tool-role message. Unknown tool names are reported to the model, not
// treated as a Go error — the loop keeps going.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	t, ok := e.registry.Get(name)
	if !ok {
		return fmt.Sprintf("Unknown tool: %s", name), nil
	}

	result, err := t.Execute(ctx, args)
	if err != nil {
		e.logger.Warn("tool execution error", zap.String("tool", name), zap.Error(err))
		return fmt.Sprintf("error: %v", err), nil
	}
	if !result.Success {
		return fmt.Sprintf("error: %s", result.Error), nil
	}
	return result.Output, nil
}

// Schemas exposes the registered tool vocabulary in the shape the Model
// Client sends to the provider.
func (e *Executor) Schemas() []agent.ToolSchema {
	defs := e.registry.List()
	schemas := make([]agent.ToolSchema, 0, len(defs))
	for _, d := range defs {
		schemas = append(schemas, agent.ToolSchema{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return schemas
}

// ModifiedPaths reports the config file paths this iteration's tool calls
// touched, deduplicated, for the orchestrator's commit.
func (e *Executor) ModifiedPaths() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[string]bool)
	var paths []string
	for _, c := range e.changes {
		if !seen[c.Path] {
			seen[c.Path] = true
			paths = append(paths, c.Path)
		}
	}
	return paths
}

// SetRunContext rebinds the get_training_logs tool to a new run's process
// id and log path when the orchestrator launches a fresh run under the
// same Executor instance.
func (e *Executor) SetRunContext(exec executor.Executor, processID, logPath string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.swapLogsTool(NewGetTrainingLogsTool(exec, processID, logPath))
}

func (e *Executor) swapLogsTool(t *GetTrainingLogsTool) {
	// InMemoryRegistry.Register refuses duplicates, so replace the whole
	// registry's tool set, keeping every other tool's identity.
	fresh := domaintool.NewInMemoryRegistry()
	for _, d := range e.registry.List() {
		if d.Name == t.Name() {
			continue
		}
		if existing, ok := e.registry.Get(d.Name); ok {
			_ = fresh.Register(existing)
		}
	}
	_ = fresh.Register(t)
	e.registry = fresh
}
