package application

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mu-hashmi/revis/internal/domain/agent"
	domaintool "github.com/mu-hashmi/revis/internal/domain/tool"
	"github.com/mu-hashmi/revis/internal/infrastructure/config"
	"github.com/mu-hashmi/revis/internal/infrastructure/executor"
	"github.com/mu-hashmi/revis/internal/infrastructure/llm"
	"github.com/mu-hashmi/revis/internal/infrastructure/llm/anthropic"
	"github.com/mu-hashmi/revis/internal/infrastructure/llm/openai"
	"github.com/mu-hashmi/revis/internal/infrastructure/logger"
	"github.com/mu-hashmi/revis/internal/infrastructure/metrics"
	"github.com/mu-hashmi/revis/internal/infrastructure/persistence"
	tool "github.com/mu-hashmi/revis/internal/infrastructure/tool"
	"github.com/mu-hashmi/revis/internal/infrastructure/vcs"
)

const hiddenDirName = ".revis"

// App is the assembled set of long-lived dependencies shared across every
// CLI invocation against one repository: the phases below mirror the
// gateway's own init* bootstrap, generalized from chat channels to a
// single repo-rooted ML campaign.
type App struct {
	RepoRoot string
	Cfg      *config.Config
	Logger   *zap.Logger

	DB    *gorm.DB
	Store *persistence.GormStore
	Exec  executor.Executor
	VCS   *vcs.Repo
	Coll  metrics.Collector
	Model *llm.Router
}

// NewApp locates the repository root (the directory containing .revis/),
// loads configuration, and wires every infrastructure dependency. Callers
// that only need config (e.g. `revis init`) may stop after initConfig.
func NewApp(startDir string) (*App, error) {
	repoRoot, err := findRepoRoot(startDir)
	if err != nil {
		return nil, err
	}

	app := &App{RepoRoot: repoRoot}
	if err := app.initConfig(); err != nil {
		return nil, err
	}
	if err := app.initLogger(); err != nil {
		return nil, err
	}
	if err := app.initStore(); err != nil {
		return nil, err
	}
	if err := app.initExecutor(); err != nil {
		return nil, err
	}
	if err := app.initVCS(); err != nil {
		return nil, err
	}
	app.initMetrics()
	if err := app.initModel(); err != nil {
		return nil, err
	}
	return app, nil
}

// findRepoRoot walks up from startDir looking for a .revis directory,
// mirroring how a .git discovery walk works.
func findRepoRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, hiddenDirName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s directory found above %s; run `revis init` first", hiddenDirName, startDir)
		}
		dir = parent
	}
}

func (a *App) hiddenDir() string {
	return filepath.Join(a.RepoRoot, hiddenDirName)
}

func (a *App) initConfig() error {
	cfg, err := config.Load(a.RepoRoot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.Cfg = cfg
	return nil
}

func (a *App) initLogger() error {
	log, err := logger.New(logger.Config{
		Level:      a.Cfg.Log.Level,
		Format:     a.Cfg.Log.Format,
		OutputPath: filepath.Join(a.hiddenDir(), "revis.log"),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.Logger = log
	return nil
}

func (a *App) initStore() error {
	dsn := filepath.Join(a.hiddenDir(), "revis.db")
	db, err := persistence.Open(dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.DB = db
	a.Store = persistence.NewGormStore(db)
	return nil
}

func (a *App) initExecutor() error {
	switch a.Cfg.Executor.Backend {
	case "remote":
		remoteCfg := executor.RemoteConfig{
			Host: a.Cfg.Executor.Remote.Host, User: a.Cfg.Executor.Remote.User,
			Port: a.Cfg.Executor.Remote.Port, KeyPath: a.Cfg.Executor.Remote.KeyPath,
		}
		exec, err := executor.NewRemoteExecutor(remoteCfg, a.Cfg.Training.WorkDir, a.Logger)
		if err != nil {
			return fmt.Errorf("init remote executor: %w", err)
		}
		a.Exec = exec
	default:
		a.Exec = executor.NewLocalExecutor(a.Cfg.Training.WorkDir, a.Logger)
	}
	return nil
}

func (a *App) initVCS() error {
	repo, err := vcs.Open(a.RepoRoot)
	if err != nil {
		return fmt.Errorf("open git repository: %w", err)
	}
	a.VCS = repo
	return nil
}

func (a *App) initMetrics() {
	a.Coll = metrics.NewResultFileCollector()
}

// initModel builds the provider fallback chain: a Router over every
// configured provider, routed by model name per call.
func (a *App) initModel() error {
	router := llm.NewRouter(a.Cfg.Model.Primary, a.Cfg.Model.Fallbacks, a.Logger)
	for _, p := range a.Cfg.Model.Providers {
		providerCfg := llm.ProviderConfig{
			Name: p.Name, Type: p.Type, BaseURL: p.BaseURL, APIKey: p.APIKey, Models: p.Models,
		}
		switch p.Type {
		case "anthropic":
			router.AddProvider(anthropic.New(providerCfg, a.Logger))
		default:
			router.AddProvider(openai.New(providerCfg, a.Logger))
		}
	}
	a.Model = router
	return nil
}

// NewOrchestrator builds one iteration's full dependency set: a fresh
// tool.Executor bound to the run's working directory and policy, an
// agent.Loop wired to the shared model router, and the Orchestrator that
// ties them to the store, executor, and VCS. log overrides a.Logger when
// non-nil, so a session can be run against its own per-session log file.
func (a *App) NewOrchestrator(log *zap.Logger) (*Orchestrator, error) {
	if log == nil {
		log = a.Logger
	}

	policy := &domaintool.Policy{DenyPatterns: a.Cfg.Tools.DenyPatterns}
	tools, err := tool.New(a.RepoRoot, policy, a.Exec, "", "", log)
	if err != nil {
		return nil, fmt.Errorf("build tool executor: %w", err)
	}

	loop := agent.New(a.Model, tools, agent.Config{
		MaxRounds:     a.Cfg.Model.MaxRounds,
		MaxRetries:    a.Cfg.Model.MaxRetries,
		RetryBaseWait: a.Cfg.Model.RetryBaseWait,
		Model:         a.Cfg.Model.Primary,
	}, log)

	return New(a.Store, a.Exec, a.VCS, a.Coll, tools, loop, a.Cfg, a.RepoRoot, log), nil
}

// SessionLogger builds a dedicated file logger for one session's iteration
// log, at .revis/logs/<name>.log, so `revis logs <name>` has a single
// well-known file to tail independent of the orchestrator's own CLI output.
func (a *App) SessionLogger(name string) (*zap.Logger, error) {
	path := a.SessionLogPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return logger.New(logger.Config{
		Level:      a.Cfg.Log.Level,
		Format:     a.Cfg.Log.Format,
		OutputPath: path,
	})
}

// SessionLogPath returns the path `revis logs <name>` tails.
func (a *App) SessionLogPath(name string) string {
	return filepath.Join(a.hiddenDir(), "logs", name+".log")
}

// backgroundTmuxSession names the detachable multiplexed session a
// backgrounded `loop` runs inside, distinct from LocalExecutor's own
// per-run training sessions.
func backgroundTmuxSession(name string) string {
	return "revis-loop-" + name
}

// LaunchBackground re-invokes the current executable as `revis loop --name
// <name> ...` without --background, detached inside a new tmux session, so
// the foreground CLI returns immediately and `revis watch <name>` can
// attach to the same session later.
func (a *App) LaunchBackground(args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	var quoted strings.Builder
	fmt.Fprintf(&quoted, "%s", shellQuoteArg(exe))
	for _, arg := range args {
		fmt.Fprintf(&quoted, " %s", shellQuoteArg(arg))
	}

	var name string
	for i, arg := range args {
		if arg == "--name" && i+1 < len(args) {
			name = args[i+1]
		}
	}
	if name == "" {
		return fmt.Errorf("background launch requires --name")
	}

	session := backgroundTmuxSession(name)
	cmd := exec.Command("tmux", "new-session", "-d", "-s", session, "-c", a.RepoRoot, "bash", "-c", quoted.String())
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmux new-session: %w", err)
	}
	return nil
}

// AttachSession attaches the caller's terminal to a backgrounded session's
// multiplexed shell via `tmux attach`, replacing the current process image
// the way a normal shell attach would.
func AttachSession(name string) error {
	session := backgroundTmuxSession(name)
	bin, err := exec.LookPath("tmux")
	if err != nil {
		return fmt.Errorf("tmux not found: %w", err)
	}
	argv := []string{"tmux", "attach", "-t", session}
	return syscall.Exec(bin, argv, os.Environ())
}

func shellQuoteArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Close releases every held resource: the database handle and the
// executor's transport (a no-op for the local backend, an SSH close for
// the remote one).
func (a *App) Close() error {
	var errs []error
	if a.Exec != nil {
		if err := a.Exec.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close app: %v", errs)
	}
	return nil
}

// StopSignalPath returns the path the `stop` command writes to request
// preemption at the next iteration boundary (step 1 of the protocol).
func (a *App) StopSignalPath() string {
	return filepath.Join(a.hiddenDir(), "stop_signal")
}

// RequestStop writes the preemption sentinel file the running
// orchestrator's next iteration checks for.
func (a *App) RequestStop(ctx context.Context) error {
	return os.WriteFile(a.StopSignalPath(), []byte("stop"), 0o644)
}

// InitRepo scaffolds .revis/ and a default revis.yaml at repoRoot, the
// target of `revis init`. It is idempotent: an existing revis.yaml is left
// untouched, and the hidden directory is only appended to .gitignore once.
func InitRepo(repoRoot string) error {
	dir := filepath.Join(repoRoot, hiddenDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "runs"), 0o755); err != nil {
		return fmt.Errorf("create runs dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	if err := ignoreHiddenDir(repoRoot); err != nil {
		return fmt.Errorf("update .gitignore: %w", err)
	}

	cfgPath := filepath.Join(repoRoot, "revis.yaml")
	if _, err := os.Stat(cfgPath); err == nil {
		return nil
	}
	return os.WriteFile(cfgPath, []byte(defaultConfigYAML), 0o644)
}

// ignoreHiddenDir appends the hidden directory to the repository's
// .gitignore, creating the file if it doesn't exist yet. It is idempotent:
// an entry already present is left alone.
func ignoreHiddenDir(repoRoot string) error {
	entry := hiddenDirName + "/"
	path := filepath.Join(repoRoot, ".gitignore")

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == entry || strings.TrimSpace(line) == hiddenDirName {
			return nil
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	prefix := ""
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		prefix = "\n"
	}
	_, err = f.WriteString(prefix + entry + "\n")
	return err
}

const defaultConfigYAML = `metric:
  name: loss
  minimize: true
  # target: 0.0

budget:
  type: runs
  value: 20

training:
  command: "python train.py --config {{.ConfigPath}}"
  config_path: config.yaml

model:
  primary: claude-sonnet-4-5
  fallbacks: []
  max_rounds: 20
  max_retries: 3
  retry_base_wait: 2s
  providers:
    - name: anthropic
      type: anthropic
      api_key: ${ANTHROPIC_API_KEY}
      models: [claude-sonnet-4-5]

guardrail:
  divergence_multiplier: 10
  plateau_window: 5
  plateau_threshold: 0.01
  run_timeout: 2h

tools:
  deny_patterns:
    - ".git/**"
    - ".revis/**"
    - "**/.env"

executor:
  backend: local
`
