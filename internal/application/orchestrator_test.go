package application

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mu-hashmi/revis/internal/domain/agent"
	"github.com/mu-hashmi/revis/internal/domain/entity"
	"github.com/mu-hashmi/revis/internal/domain/store"
	domaintool "github.com/mu-hashmi/revis/internal/domain/tool"
	"github.com/mu-hashmi/revis/internal/infrastructure/config"
	"github.com/mu-hashmi/revis/internal/infrastructure/executor"
	"github.com/mu-hashmi/revis/internal/infrastructure/metrics"
	tool "github.com/mu-hashmi/revis/internal/infrastructure/tool"
)

// fakeStore is a minimal in-memory store.Store used to exercise the
// orchestrator without an embedded database.
type fakeStore struct {
	sessions    map[string]*entity.Session
	runs        map[string]*entity.Run
	runOrder    []string
	metrics     map[string][]entity.Metric
	decisions   map[string][]entity.Decision
	suggestions []entity.Suggestion
	trace       map[string][]entity.Trace
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:  map[string]*entity.Session{},
		runs:      map[string]*entity.Run{},
		metrics:   map[string][]entity.Metric{},
		decisions: map[string][]entity.Decision{},
		trace:     map[string][]entity.Trace{},
	}
}

func (s *fakeStore) CreateSession(ctx context.Context, sess *entity.Session) error {
	s.sessions[sess.ID] = sess
	return nil
}
func (s *fakeStore) GetSession(ctx context.Context, id string) (*entity.Session, error) {
	return s.sessions[id], nil
}
func (s *fakeStore) GetSessionByName(ctx context.Context, name string) (*entity.Session, error) {
	for _, sess := range s.sessions {
		if sess.Name == name {
			return sess, nil
		}
	}
	return nil, nil
}
func (s *fakeStore) GetRunningSession(ctx context.Context) (*entity.Session, error) {
	for _, sess := range s.sessions {
		if sess.IsRunning() {
			return sess, nil
		}
	}
	return nil, nil
}
func (s *fakeStore) ListOrphanedSessions(ctx context.Context) ([]*entity.Session, error) { return nil, nil }
func (s *fakeStore) ListSessions(ctx context.Context, statusFilter string, limit int) ([]*entity.Session, error) {
	return nil, nil
}
func (s *fakeStore) UpdateSession(ctx context.Context, id string, update store.SessionUpdate) error {
	sess := s.sessions[id]
	if sess == nil {
		return fmt.Errorf("session %s not found", id)
	}
	if update.BudgetUsed != nil {
		sess.BudgetUsed = *update.BudgetUsed
	}
	if update.CumulativeCost != nil {
		sess.CumulativeCost = *update.CumulativeCost
	}
	if update.RetryBudget != nil {
		sess.RetryBudget = *update.RetryBudget
	}
	if update.IterationCount != nil {
		sess.IterationCount = *update.IterationCount
	}
	if update.Status != nil {
		sess.Status = *update.Status
	}
	if update.TerminationReason != nil {
		sess.TerminationReason = update.TerminationReason
	}
	if update.EndedAt != nil {
		sess.EndedAt = update.EndedAt
	}
	return nil
}
func (s *fakeStore) DeleteSession(ctx context.Context, id string, force bool) error { return nil }
func (s *fakeStore) SessionNameExists(ctx context.Context, name string) (bool, error) {
	_, err := s.GetSessionByName(ctx, name)
	return err == nil, err
}

func (s *fakeStore) CreateRun(ctx context.Context, r *entity.Run) error {
	s.runs[r.ID] = r
	s.runOrder = append(s.runOrder, r.ID)
	return nil
}
func (s *fakeStore) GetRun(ctx context.Context, id string) (*entity.Run, error) { return s.runs[id], nil }
func (s *fakeStore) ListRuns(ctx context.Context, sessionID string) ([]*entity.Run, error) {
	var out []*entity.Run
	for _, id := range s.runOrder {
		if r := s.runs[id]; r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}
func (s *fakeStore) UpdateRun(ctx context.Context, r *entity.Run) error {
	s.runs[r.ID] = r
	return nil
}

func (s *fakeStore) AppendMetrics(ctx context.Context, runID string, values map[string]float64) error {
	for name, v := range values {
		s.metrics[runID] = append(s.metrics[runID], entity.Metric{RunID: runID, Name: name, Value: v})
	}
	return nil
}
func (s *fakeStore) ListMetrics(ctx context.Context, runID string) ([]entity.Metric, error) {
	return s.metrics[runID], nil
}
func (s *fakeStore) AppendTrace(ctx context.Context, runID string, eventType entity.TraceEventType, payload string) error {
	s.trace[runID] = append(s.trace[runID], entity.Trace{RunID: runID, EventType: eventType, Payload: payload})
	return nil
}
func (s *fakeStore) ListTrace(ctx context.Context, runID string) ([]entity.Trace, error) {
	return s.trace[runID], nil
}
func (s *fakeStore) CreateDecision(ctx context.Context, d *entity.Decision) error {
	s.decisions[d.RunID] = append(s.decisions[d.RunID], *d)
	return nil
}
func (s *fakeStore) ListDecisions(ctx context.Context, runID string) ([]entity.Decision, error) {
	return s.decisions[runID], nil
}
func (s *fakeStore) CreateArtifact(ctx context.Context, a *entity.Artifact) error { return nil }
func (s *fakeStore) CreateSuggestion(ctx context.Context, sg *entity.Suggestion) error {
	s.suggestions = append(s.suggestions, *sg)
	return nil
}
func (s *fakeStore) UpdateSuggestion(ctx context.Context, sg *entity.Suggestion) error { return nil }

var _ store.Store = (*fakeStore)(nil)

// fakeExecutor runs nothing; Wait always reports a configurable result.
type fakeExecutor struct {
	waitResult executor.WaitResult
	logTail    string
	launches   int
}

func (f *fakeExecutor) Launch(ctx context.Context, command string, env map[string]string, sessionName string) (string, error) {
	f.launches++
	return sessionName, nil
}
func (f *fakeExecutor) Wait(ctx context.Context, processID string, timeout time.Duration) (executor.WaitResult, error) {
	return f.waitResult, nil
}
func (f *fakeExecutor) Kill(ctx context.Context, processID string) error             { return nil }
func (f *fakeExecutor) IsRunning(ctx context.Context, processID string) (bool, error) { return false, nil }
func (f *fakeExecutor) GetLogTail(ctx context.Context, processID, path string, lines int) (string, error) {
	return f.logTail, nil
}
func (f *fakeExecutor) SyncCode(ctx context.Context, localPath, remotePath string) error { return nil }
func (f *fakeExecutor) FileExists(ctx context.Context, path string) (bool, error)        { return true, nil }
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

// fakeVCS records commits without touching a real repository.
type fakeVCS struct {
	branch   string
	commits  []string
	clean    bool
	stashed  bool
}

func (v *fakeVCS) CurrentBranch() (string, error) { return v.branch, nil }
func (v *fakeVCS) CreateSessionBranch(branch string) (string, error) {
	v.branch = branch
	return "base-commit", nil
}
func (v *fakeVCS) CheckoutBranch(branch string) error { v.branch = branch; return nil }
func (v *fakeVCS) CommitAll(message, authorName, authorEmail string) (string, bool, error) {
	if v.clean {
		return "", false, nil
	}
	v.commits = append(v.commits, message)
	return fmt.Sprintf("commit-%d", len(v.commits)), true, nil
}
func (v *fakeVCS) Stash() error    { v.stashed = true; return nil }
func (v *fakeVCS) StashPop() error { v.stashed = false; return nil }
func (v *fakeVCS) IsClean() (bool, error) { return true, nil }

var _ VCS = (*fakeVCS)(nil)

// fakeCollector returns a loss that drops by step on each call, so
// successive runs show improvement.
type fakeCollector struct {
	value  float64
	step   float64
	calls  int
}

func (c *fakeCollector) Collect(ctx context.Context, run metrics.RunContext) (map[string]float64, bool, error) {
	c.calls++
	v := c.value - float64(c.calls)*c.step
	return map[string]float64{"loss": v}, true, nil
}

// fakeModelClient answers every turn without tool calls, so the agent loop
// immediately returns its canned text.
type fakeModelClient struct {
	text string
}

func (c *fakeModelClient) Complete(ctx context.Context, req agent.Request) (*agent.Response, error) {
	return &agent.Response{Text: c.text}, nil
}

var _ agent.Client = (*fakeModelClient)(nil)

func newTestOrchestrator(t *testing.T, exec *fakeExecutor, vcsRepo *fakeVCS, collector *fakeCollector, modelText string, budget entity.Budget) (*Orchestrator, *entity.Session) {
	t.Helper()
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, ".revis"), 0o755)
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("lr: 0.01\n"), 0o644)

	logger := zap.NewNop()
	st := newFakeStore()

	toolExec, err := tool.New(dir, &domaintool.Policy{}, exec, "", "", logger)
	if err != nil {
		t.Fatalf("build tool executor: %v", err)
	}

	client := &fakeModelClient{text: modelText}
	loop := agent.New(client, toolExec, agent.Config{}, logger)

	cfg := &config.Config{
		Metric:   config.MetricConfig{Name: "loss", Minimize: true},
		Training: config.TrainingConfig{Command: "python train.py --config {{.ConfigPath}}", ConfigPath: "config.yaml"},
		Guardrail: config.GuardrailConfig{
			DivergenceMultiplier: 10, PlateauWindow: 3, PlateauThreshold: 0.01, RunTimeout: time.Hour,
		},
	}

	orch := New(st, exec, vcsRepo, collector, toolExec, loop, cfg, dir, logger)

	session := &entity.Session{
		ID: entity.NewID(), Name: "test-session", Branch: "revis/test-session",
		Status: entity.SessionRunning, StartedAt: time.Now(),
		BudgetType: budget.Type, BudgetTotal: budget.Total, RetryBudget: 3,
	}
	st.CreateSession(context.Background(), session)
	return orch, session
}

func TestOrchestrator_BudgetExhaustedTerminatesImmediately(t *testing.T) {
	exec := &fakeExecutor{}
	vcsRepo := &fakeVCS{branch: "main"}
	collector := &fakeCollector{value: 1.0, step: 0.1}
	orch, session := newTestOrchestrator(t, exec, vcsRepo, collector, "RATIONALE: none\n", entity.Budget{Type: entity.BudgetRuns, Total: 0})

	if err := orch.Run(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.TerminationReason == nil || *session.TerminationReason != entity.ReasonBudgetExhausted {
		t.Fatalf("expected budget-exhausted, got %v", session.TerminationReason)
	}
	if exec.launches != 0 {
		t.Fatalf("expected no launches with zero run budget, got %d", exec.launches)
	}
}

func TestOrchestrator_NoProposedChangeEndsInPlateau(t *testing.T) {
	exec := &fakeExecutor{waitResult: executor.WaitResult{ExitCode: 0}}
	vcsRepo := &fakeVCS{branch: "main"}
	collector := &fakeCollector{value: 1.0, step: 0.1}
	modelText := "I'll lower the learning rate.\nRATIONALE: lower learning rate\nSIGNIFICANT: true\n"

	orch, session := newTestOrchestrator(t, exec, vcsRepo, collector, modelText, entity.Budget{Type: entity.BudgetRuns, Total: 100})

	if err := orch.Run(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The model called no tools, so nothing was modified, proposed as a
	// next command, or handed off; that counts as a plateau.
	if session.TerminationReason == nil || *session.TerminationReason != entity.ReasonPlateau {
		t.Fatalf("expected plateau, got %v", session.TerminationReason)
	}
	if exec.launches != 1 {
		t.Fatalf("expected exactly one launch, got %d", exec.launches)
	}
	if len(vcsRepo.commits) != 0 {
		t.Fatalf("expected no commit without tool calls, got %v", vcsRepo.commits)
	}
}

func TestOrchestrator_RunFailureDecrementsRetryBudget(t *testing.T) {
	exec := &fakeExecutor{waitResult: executor.WaitResult{Failed: true, Error: "exit code unavailable"}}
	vcsRepo := &fakeVCS{branch: "main", clean: true}
	collector := &fakeCollector{value: 1.0, step: 0.1}
	modelText := "RATIONALE: cannot diagnose\n"

	orch, session := newTestOrchestrator(t, exec, vcsRepo, collector, modelText, entity.Budget{Type: entity.BudgetRuns, Total: 100})
	orch.tools.Reset()

	terminated, reason, err := orch.iterate(context.Background(), session)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if terminated {
		t.Fatalf("did not expect termination on first failure, reason=%v", reason)
	}
	if session.RetryBudget != 2 {
		t.Fatalf("expected retry budget decremented to 2, got %d", session.RetryBudget)
	}
}

func TestOrchestrator_RetryExhaustionTerminatesSession(t *testing.T) {
	exec := &fakeExecutor{waitResult: executor.WaitResult{Failed: true, Error: "boom"}}
	vcsRepo := &fakeVCS{branch: "main", clean: true}
	collector := &fakeCollector{value: 1.0, step: 0.1}
	modelText := "RATIONALE: cannot diagnose\n"

	orch, session := newTestOrchestrator(t, exec, vcsRepo, collector, modelText, entity.Budget{Type: entity.BudgetRuns, Total: 100})
	session.RetryBudget = 1

	if err := orch.Run(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.TerminationReason == nil || *session.TerminationReason != entity.ReasonRetryExhaustion {
		t.Fatalf("expected retry-exhaustion, got %v", session.TerminationReason)
	}
}
