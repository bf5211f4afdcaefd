// Package application implements the orchestrator: the session state
// machine that drives one training campaign from launch through
// termination, wiring together the store, executor, guardrails, analyzer,
// and agent loop described in the component design.
package application

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/mu-hashmi/revis/internal/domain/agent"
	"github.com/mu-hashmi/revis/internal/domain/analyzer"
	"github.com/mu-hashmi/revis/internal/domain/entity"
	"github.com/mu-hashmi/revis/internal/domain/guardrail"
	"github.com/mu-hashmi/revis/internal/domain/store"
	"github.com/mu-hashmi/revis/internal/infrastructure/config"
	"github.com/mu-hashmi/revis/internal/infrastructure/executor"
	"github.com/mu-hashmi/revis/internal/infrastructure/metrics"
	tool "github.com/mu-hashmi/revis/internal/infrastructure/tool"
)

// knownCredentialVars are auto-passed from the ambient environment into the
// training subprocess when set, per the external-interfaces environment
// contract.
var knownCredentialVars = []string{
	"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "WANDB_API_KEY",
	"HF_TOKEN", "HUGGINGFACE_TOKEN",
	"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
	"GOOGLE_APPLICATION_CREDENTIALS",
}

// VCS is the orchestrator's view of version control: session branch
// management and iteration commits. Satisfied by *vcs.Repo.
type VCS interface {
	CurrentBranch() (string, error)
	CreateSessionBranch(branch string) (baseCommit string, err error)
	CheckoutBranch(branch string) error
	CommitAll(message, authorName, authorEmail string) (hash string, changed bool, err error)
	Stash() error
	StashPop() error
	IsClean() (bool, error)
}

// Orchestrator drives a single session's iterations. One Orchestrator
// holds one session for its entire lifetime; the single-running-session
// invariant is enforced at the store layer.
type Orchestrator struct {
	store      store.Store
	exec       executor.Executor
	vcs        VCS
	collector  metrics.Collector
	guardrails *guardrail.Checker
	tools      *tool.Executor
	loop       *agent.Loop
	cfg        *config.Config
	logger     *zap.Logger

	repoRoot  string
	hiddenDir string

	// sessionMachine guards the session's status transitions for the
	// lifetime of one Run call.
	sessionMachine *agent.SessionMachine

	// overrideCommand holds a one-shot next-iteration command override set
	// by the set_next_command tool; cleared after it is used once.
	overrideCommand *string

	// pendingChangeDesc/pendingChangeType describe the change that produced
	// the NEXT run to be created, carried over from the previous
	// iteration's Apply step.
	pendingChangeDesc string
	pendingChangeType entity.ChangeType
}

// New wires an Orchestrator from its already-constructed dependencies.
func New(
	st store.Store,
	exec executor.Executor,
	vcsRepo VCS,
	collector metrics.Collector,
	tools *tool.Executor,
	loop *agent.Loop,
	cfg *config.Config,
	repoRoot string,
	logger *zap.Logger,
) *Orchestrator {
	guardrails := guardrail.NewChecker(
		cfg.Guardrail.DivergenceMultiplier,
		cfg.Guardrail.PlateauWindow,
		cfg.Guardrail.PlateauThreshold,
		cfg.Guardrail.RunTimeout,
		logger,
	)
	return &Orchestrator{
		store:      st,
		exec:       exec,
		vcs:        vcsRepo,
		collector:  collector,
		guardrails: guardrails,
		tools:      tools,
		loop:       loop,
		cfg:        cfg,
		logger:     logger,
		repoRoot:   repoRoot,
		hiddenDir:  filepath.Join(repoRoot, ".revis"),

		pendingChangeDesc: "Initial run",
		pendingChangeType: entity.ChangeInitial,
	}
}

func (o *Orchestrator) stopSignalPath() string {
	return filepath.Join(o.hiddenDir, "stop_signal")
}

// Run drives session from its current state to termination, implementing
// the ten-step per-iteration protocol. It restores the branch that was
// checked out on entry before returning, stashing any uncommitted changes
// from a partial iteration first.
func (o *Orchestrator) Run(ctx context.Context, session *entity.Session) error {
	previousBranch, err := o.vcs.CurrentBranch()
	if err != nil {
		return fmt.Errorf("read current branch: %w", err)
	}
	o.sessionMachine = agent.NewSessionMachine(session.StartedAt, o.logger)

	for {
		terminated, reason, iterErr := o.iterate(ctx, session)
		if iterErr != nil {
			o.logger.Error("iteration failed", zap.Error(iterErr))
			if clean, cerr := o.vcs.IsClean(); cerr == nil && !clean {
				if err := o.vcs.Stash(); err != nil {
					o.logger.Error("stash partial iteration failed", zap.Error(err))
				}
			}
			o.terminate(ctx, session, entity.ReasonError)
			o.restoreBranch(previousBranch)
			return iterErr
		}
		if terminated {
			o.terminate(ctx, session, reason)
			o.restoreBranch(previousBranch)
			return nil
		}
	}
}

func (o *Orchestrator) restoreBranch(branch string) {
	if err := o.vcs.CheckoutBranch(branch); err != nil {
		o.logger.Error("failed to restore previously checked out branch", zap.String("branch", branch), zap.Error(err))
	}
}

func (o *Orchestrator) terminate(ctx context.Context, session *entity.Session, reason entity.TerminationReason) {
	now := time.Now()
	status := entity.SessionCompleted
	if reason == entity.ReasonError || reason == entity.ReasonRetryExhaustion {
		status = entity.SessionFailed
	} else if reason == entity.ReasonUserStop {
		status = entity.SessionStopped
	}
	if err := o.sessionMachine.Transition(status); err != nil {
		o.logger.Error("session transition rejected", zap.Error(err))
	}

	update := store.SessionUpdate{Status: &status, TerminationReason: &reason, EndedAt: &now}
	if err := o.store.UpdateSession(ctx, session.ID, update); err != nil {
		o.logger.Error("failed to persist session termination", zap.Error(err))
	}
	session.Status = status
	session.TerminationReason = &reason
	session.EndedAt = &now
}

// iterate runs exactly one pass of the ten-step protocol. terminated=true
// means the caller should stop looping; reason explains why.
func (o *Orchestrator) iterate(ctx context.Context, session *entity.Session) (terminated bool, reason entity.TerminationReason, err error) {
	// Step 1: preemption check.
	if _, statErr := os.Stat(o.stopSignalPath()); statErr == nil {
		_ = os.Remove(o.stopSignalPath())
		return true, entity.ReasonUserStop, nil
	}
	if o.budgetExhausted(session) {
		return true, entity.ReasonBudgetExhausted, nil
	}

	// Step 2: advance.
	session.IterationCount++
	session.BudgetUsed = o.budgetUsed(session)
	if err := o.store.UpdateSession(ctx, session.ID, store.SessionUpdate{
		IterationCount: &session.IterationCount,
		BudgetUsed:     &session.BudgetUsed,
	}); err != nil {
		return false, "", fmt.Errorf("persist iteration count: %w", err)
	}
	if err := o.exec.SyncCode(ctx, o.repoRoot, o.repoRoot); err != nil {
		o.logger.Warn("sync code failed", zap.Error(err))
	}

	runMachine := agent.NewRunMachine(o.logger)
	changeType := o.pendingChangeType
	run := &entity.Run{
		ID:         entity.NewID(),
		SessionID:  session.ID,
		Iteration:  session.IterationCount,
		Status:     runMachine.Status(),
		StartedAt:  time.Now(),
		ChangeDesc: o.pendingChangeDesc,
		ChangeType: &changeType,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return false, "", fmt.Errorf("create run: %w", err)
	}
	outputDir := filepath.Join(o.hiddenDir, "runs", run.ID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return false, "", fmt.Errorf("create run output dir: %w", err)
	}
	o.tools.SetRunContext(o.exec, run.ID, filepath.Join(outputDir, "train.log"))

	// Step 3: launch.
	processID, err := o.launch(ctx, session, run, outputDir)
	if err != nil {
		return false, "", fmt.Errorf("launch: %w", err)
	}

	if err := runMachine.Transition(entity.RunRunning); err != nil {
		return false, "", fmt.Errorf("run transition: %w", err)
	}
	run.Status = runMachine.Status()
	if err := o.store.UpdateRun(ctx, run); err != nil {
		return false, "", fmt.Errorf("persist run running: %w", err)
	}

	// Step 4: wait.
	waitResult, err := o.exec.Wait(ctx, processID, o.cfg.Guardrail.RunTimeout)
	if err != nil {
		return false, "", fmt.Errorf("wait for run: %w", err)
	}
	endedAt := time.Now()
	run.EndedAt = &endedAt
	exitCode := waitResult.ExitCode
	run.ExitCode = &exitCode

	if waitResult.Failed {
		return o.handleFailure(ctx, session, run, runMachine, outputDir, waitResult.Error)
	}

	// Step 6: success path.
	resultPath := filepath.Join(outputDir, "result.json")
	logTail, _ := o.exec.GetLogTail(ctx, processID, filepath.Join(outputDir, "train.log"), 200)
	collected, ok, cerr := o.collector.Collect(ctx, metrics.RunContext{ResultPath: resultPath, LogTail: logTail})
	if cerr != nil {
		return false, "", fmt.Errorf("collect metrics: %w", cerr)
	}
	if !ok {
		return o.handleFailure(ctx, session, run, runMachine, outputDir, "metrics unavailable")
	}

	if err := runMachine.Transition(entity.RunCompleted); err != nil {
		return false, "", fmt.Errorf("run transition: %w", err)
	}
	run.Status = runMachine.Status()
	if err := o.store.AppendMetrics(ctx, run.ID, collected); err != nil {
		return false, "", fmt.Errorf("append metrics: %w", err)
	}

	runs, err := o.store.ListRuns(ctx, session.ID)
	if err != nil {
		return false, "", fmt.Errorf("list runs: %w", err)
	}
	summaries, err := o.summarize(ctx, runs)
	if err != nil {
		return false, "", err
	}

	current := summaries[len(summaries)-1]
	outcome := o.classifyOutcome(summaries)
	run.Outcome = &outcome
	if err := o.store.UpdateRun(ctx, run); err != nil {
		return false, "", fmt.Errorf("persist run completion: %w", err)
	}

	if o.cfg.Metric.TargetSet {
		if v, has := current.Metrics[o.cfg.Metric.Name]; has && o.targetCrossed(v) {
			return true, entity.ReasonTargetAchieved, nil
		}
	}

	// Step 7: guardrails.
	if plateauReason := o.checkGuardrails(run, summaries); plateauReason != "" {
		return true, plateauReason, nil
	}

	// Step 8/9: propose and apply.
	return o.propose(ctx, session, run, summaries)
}

func (o *Orchestrator) budgetExhausted(session *entity.Session) bool {
	return o.budgetUsed(session) >= session.BudgetTotal
}

// budgetUsed computes the session's current consumption against its
// budget: wall-clock seconds elapsed for a time budget, iterations run
// for a run-count budget.
func (o *Orchestrator) budgetUsed(session *entity.Session) float64 {
	switch session.BudgetType {
	case entity.BudgetTime:
		return time.Since(session.StartedAt).Seconds()
	case entity.BudgetRuns:
		return float64(session.IterationCount)
	default:
		return 0
	}
}

func (o *Orchestrator) launch(ctx context.Context, session *entity.Session, run *entity.Run, outputDir string) (string, error) {
	command := o.cfg.Training.Command
	if o.overrideCommand != nil {
		command = *o.overrideCommand
		o.overrideCommand = nil
	} else {
		command = renderCommandTemplate(command, o.cfg.Training.ConfigPath)
	}

	logPath := filepath.Join(outputDir, "train.log")
	wrapped := fmt.Sprintf("( %s ) 2>&1 | tee %s; exit ${PIPESTATUS[0]}", command, shellQuote(logPath))

	env := o.collectEnv(session, run, outputDir)
	sessionName := "revis-" + session.ID

	processID, err := o.exec.Launch(ctx, wrapped, env, sessionName)
	if err != nil {
		return "", err
	}
	return processID, nil
}

func renderCommandTemplate(cmd, configPath string) string {
	tmpl, err := template.New("command").Parse(cmd)
	if err != nil {
		return cmd
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, struct{ ConfigPath string }{ConfigPath: configPath}); err != nil {
		return cmd
	}
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// collectEnv assembles the training subprocess environment in the
// documented overlay order: known ambient credentials, an ambient .env
// file, config-declared injected vars, config-declared pass-through vars,
// then the Revis-injected identifiers, each layer overriding the last.
func (o *Orchestrator) collectEnv(session *entity.Session, run *entity.Run, outputDir string) map[string]string {
	env := make(map[string]string)

	for _, name := range knownCredentialVars {
		if v, ok := os.LookupEnv(name); ok {
			env[name] = v
		}
	}

	envFile := filepath.Join(o.repoRoot, ".env")
	if fileVars, err := gotenv.Read(envFile); err == nil {
		for k, v := range fileVars {
			env[k] = v
		}
	}

	for k, v := range o.cfg.Env.Inject {
		env[k] = v
	}

	for _, name := range o.cfg.Env.PassThrough {
		if v, ok := os.LookupEnv(name); ok {
			env[name] = v
		}
	}

	env["REVIS_OUTPUT_DIR"] = outputDir
	env["REVIS_RUN_ID"] = run.ID
	env["REVIS_SESSION_ID"] = session.ID

	return env
}

// handleFailure implements step 5: decrement the retry budget, or on
// exhaustion terminate; otherwise invoke the agent in fix mode and keep
// the session going without this iteration counting toward progress.
func (o *Orchestrator) handleFailure(ctx context.Context, session *entity.Session, run *entity.Run, runMachine *agent.RunMachine, outputDir, failureMessage string) (bool, entity.TerminationReason, error) {
	if err := runMachine.Transition(entity.RunFailed); err != nil {
		return false, "", fmt.Errorf("run transition: %w", err)
	}
	run.Status = runMachine.Status()
	if err := o.store.UpdateRun(ctx, run); err != nil {
		return false, "", fmt.Errorf("persist run failure: %w", err)
	}

	session.RetryBudget--
	if err := o.store.UpdateSession(ctx, session.ID, store.SessionUpdate{RetryBudget: &session.RetryBudget}); err != nil {
		return false, "", fmt.Errorf("persist retry budget: %w", err)
	}
	if session.RetryBudget <= 0 {
		return true, entity.ReasonRetryExhaustion, nil
	}

	logTail, _ := o.exec.GetLogTail(ctx, "revis-"+session.ID, filepath.Join(outputDir, "train.log"), 200)

	o.tools.Reset()
	systemPrompt := fixSystemPrompt()
	userContext := fmt.Sprintf(
		"The training run failed: %s\n\nLog tail:\n%s\n\nDiagnose the failure and either adjust configuration or request a code change.",
		failureMessage, logTail,
	)
	result, err := o.loop.Run(ctx, systemPrompt, userContext)
	if err != nil {
		return false, "", fmt.Errorf("agent fix loop: %w", err)
	}

	if len(result.ModifiedPaths) > 0 {
		hash, changed, cerr := o.vcs.CommitAll("Revis fix: "+result.Rationale, "revis", "revis@local")
		if cerr != nil {
			return false, "", fmt.Errorf("commit fix: %w", cerr)
		}
		if changed {
			decision := &entity.Decision{
				ID: entity.NewID(), RunID: run.ID,
				Action: entity.DecisionConfig, Rationale: result.Rationale,
				CommitHash: &hash, CreatedAt: time.Now(),
			}
			if err := o.store.CreateDecision(ctx, decision); err != nil {
				o.logger.Warn("failed to record fix decision", zap.Error(err))
			}
		}
	}
	if cc, ok := o.tools.CodeChange(); ok {
		if err := o.recordSuggestion(ctx, run, cc); err != nil {
			o.logger.Warn("failed to record code-change suggestion", zap.Error(err))
		}
	}

	o.pendingChangeDesc = "Error recovery: " + result.Rationale
	o.pendingChangeType = entity.ChangeCodeHandoff
	return false, "", nil
}

func (o *Orchestrator) recordSuggestion(ctx context.Context, run *entity.Run, cc tool.CodeChangeRequest) error {
	relevant, err := json.Marshal(cc.RelevantFiles)
	if err != nil {
		return fmt.Errorf("encode relevant files: %w", err)
	}
	suggestion := &entity.Suggestion{
		ID: entity.NewID(), RunID: run.ID,
		Description: cc.Suggestion, Hypothesis: cc.Hypothesis,
		RelevantFiles: string(relevant), Status: entity.SuggestionPending,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	return o.store.CreateSuggestion(ctx, suggestion)
}

func (o *Orchestrator) summarize(ctx context.Context, runs []*entity.Run) ([]analyzer.RunSummary, error) {
	summaries := make([]analyzer.RunSummary, 0, len(runs))
	for _, r := range runs {
		ms, err := o.store.ListMetrics(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("list metrics for run %s: %w", r.ID, err)
		}
		summaries = append(summaries, analyzer.Summarize(r, ms))
	}
	return summaries, nil
}

func (o *Orchestrator) classifyOutcome(summaries []analyzer.RunSummary) entity.Outcome {
	if len(summaries) < 2 {
		return entity.OutcomeImproved
	}
	current := summaries[len(summaries)-1]
	previous := summaries[len(summaries)-2]
	deltas := analyzer.Compare(previous.Metrics, current.Metrics, o.cfg.Metric.Name, o.cfg.Metric.Minimize)
	for _, d := range deltas {
		if d.Name == o.cfg.Metric.Name {
			if d.Improved {
				return entity.OutcomeImproved
			}
			return entity.OutcomeRegressed
		}
	}
	return entity.OutcomePlateau
}

func (o *Orchestrator) targetCrossed(value float64) bool {
	if o.cfg.Metric.Minimize {
		return value <= o.cfg.Metric.Target
	}
	return value >= o.cfg.Metric.Target
}

// checkGuardrails implements step 7: every enabled check runs; a NaN/Inf,
// divergence or timeout result is only logged and is not included in the
// iteration context the agent receives; only plateau terminates the session.
func (o *Orchestrator) checkGuardrails(run *entity.Run, summaries []analyzer.RunSummary) entity.TerminationReason {
	last := summaries[len(summaries)-1]
	if err := o.guardrails.NaNInf.Check(last.Metrics); err != nil {
		o.logger.Warn("nan/inf guardrail triggered", zap.Error(err), zap.String("run", run.ID))
	}

	history := analyzer.History(summaries, o.cfg.Metric.Name)
	if len(history) == 0 {
		return ""
	}
	current := history[len(history)-1]
	initial := history[0]
	if err := o.guardrails.Divergence.Check(current, initial); err != nil {
		o.logger.Warn("divergence guardrail triggered", zap.Error(err), zap.String("run", run.ID))
	}
	if err := o.guardrails.Timeout.Check(run.StartedAt); err != nil {
		o.logger.Warn("timeout guardrail triggered", zap.Error(err), zap.String("run", run.ID))
	}
	if err := o.guardrails.Plateau.Check(history, o.cfg.Metric.Minimize); err != nil {
		return entity.ReasonPlateau
	}
	return ""
}

// propose implements steps 8 and 9: build the iteration context, invoke
// the agent loop, then either terminate or commit and advance.
func (o *Orchestrator) propose(ctx context.Context, session *entity.Session, run *entity.Run, summaries []analyzer.RunSummary) (bool, entity.TerminationReason, error) {
	o.tools.Reset()

	systemPrompt := proposeSystemPrompt()
	userContext := o.buildIterationContext(session, summaries)

	result, err := o.loop.Run(ctx, systemPrompt, userContext)
	if err != nil {
		return false, "", fmt.Errorf("agent propose loop: %w", err)
	}

	if err := o.store.AppendTrace(ctx, run.ID, entity.TraceToolResult, fmt.Sprintf("tool_calls=%d cost=%.4f", result.ToolCallCount, result.DollarCost)); err != nil {
		o.logger.Warn("failed to append trace", zap.Error(err))
	}
	if err := o.store.UpdateSession(ctx, session.ID, store.SessionUpdate{
		CumulativeCost: floatPtr(session.CumulativeCost + result.DollarCost),
	}); err != nil {
		o.logger.Warn("failed to persist cumulative cost", zap.Error(err))
	}
	session.CumulativeCost += result.DollarCost

	if result.Escalate {
		return true, entity.ReasonModelEscalation, nil
	}

	nextCommand, hasNextCommand := o.tools.NextCommand()
	_, hasCodeChange := o.tools.CodeChange()
	if len(result.ModifiedPaths) == 0 && !hasNextCommand && !hasCodeChange {
		return true, entity.ReasonPlateau, nil
	}

	message := fmt.Sprintf("Revis iteration %d: %s", session.IterationCount, result.Rationale)
	hash, changed, err := o.vcs.CommitAll(message, "revis", "revis@local")
	if err != nil {
		return false, "", fmt.Errorf("commit iteration: %w", err)
	}

	action := entity.DecisionConfig
	if hasNextCommand {
		action = entity.DecisionCLIArgs
	}
	if hasCodeChange {
		action = entity.DecisionCodeHandoff
	}

	var commitHashPtr *string
	if changed {
		commitHashPtr = &hash
		run.CommitHash = hash
	}
	decision := &entity.Decision{
		ID: entity.NewID(), RunID: run.ID, Action: action,
		Rationale: result.Rationale, CommitHash: commitHashPtr, CreatedAt: time.Now(),
	}
	if err := o.store.CreateDecision(ctx, decision); err != nil {
		return false, "", fmt.Errorf("record decision: %w", err)
	}
	if changed {
		if err := o.store.UpdateRun(ctx, run); err != nil {
			return false, "", fmt.Errorf("persist run commit hash: %w", err)
		}
	}

	if cc, ok := o.tools.CodeChange(); ok {
		if err := o.recordSuggestion(ctx, run, cc); err != nil {
			o.logger.Warn("failed to record code-change suggestion", zap.Error(err))
		}
	}

	if hasNextCommand {
		o.overrideCommand = &nextCommand
	}

	o.pendingChangeDesc = result.Rationale
	o.pendingChangeType = entity.ChangeConfig
	if hasNextCommand {
		o.pendingChangeType = entity.ChangeCLIArgs
	}
	if hasCodeChange {
		o.pendingChangeType = entity.ChangeCodeHandoff
	}

	return false, "", nil
}

func (o *Orchestrator) buildIterationContext(session *entity.Session, summaries []analyzer.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %q, iteration %d of budget %.0f %s.\n", session.Name, session.IterationCount, session.BudgetTotal, session.BudgetType)
	fmt.Fprintf(&b, "Primary metric: %s (minimize=%v)", o.cfg.Metric.Name, o.cfg.Metric.Minimize)
	if o.cfg.Metric.TargetSet {
		fmt.Fprintf(&b, ", target=%v", o.cfg.Metric.Target)
	}
	b.WriteString("\n\nRun history:\n")

	start := 0
	if len(summaries) > 10 {
		start = len(summaries) - 10
	}
	for _, s := range summaries[start:] {
		b.WriteString(analyzer.FormatForPrompt(s))
		b.WriteString("\n")
	}

	if len(summaries) >= 2 {
		current := summaries[len(summaries)-1]
		previous := summaries[len(summaries)-2]
		deltas := analyzer.Compare(previous.Metrics, current.Metrics, o.cfg.Metric.Name, o.cfg.Metric.Minimize)
		b.WriteString("\nDeltas since previous run:\n")
		for _, d := range deltas {
			fmt.Fprintf(&b, "  %s: %.6g -> %.6g (%+.2f%%) improved=%v\n", d.Name, d.Previous, d.Current, d.ChangePct, d.Improved)
		}
	}

	b.WriteString("\nCurrent training command: ")
	b.WriteString(o.cfg.Training.Command)
	b.WriteString("\n\nPropose a change: mutate configuration, set a next-iteration command override, or request a code change. End your response with RATIONALE:, SIGNIFICANT:, and optionally ESCALATE: lines.")
	return b.String()
}

func floatPtr(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func fixSystemPrompt() string {
	return "You are Revis, an autonomous ML training iteration agent in error-recovery mode. " +
		"A training run just failed. Use the available tools to inspect logs and source, then either " +
		"adjust configuration via modify_config or request a code change via request_code_change. " +
		"Conclude with RATIONALE: a one-line explanation of your diagnosis and fix."
}

func proposeSystemPrompt() string {
	return "You are Revis, an autonomous ML training iteration agent. Given the run history and current " +
		"metrics below, propose ONE change intended to improve the primary metric: a configuration mutation, " +
		"a training command override for the next run, or a code-change request. " +
		"Conclude your response with RATIONALE: <one line>, SIGNIFICANT: <true|false>, and ESCALATE: <reason> " +
		"only if you believe no further automated progress is possible and a human should take over."
}
