package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration for one repository's `.revis/` state.
// It is assembled from revis.yaml at the repository root plus environment
// variable overrides; see Load.
type Config struct {
	Metric    MetricConfig    `mapstructure:"metric"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Training  TrainingConfig  `mapstructure:"training"`
	Model     ModelConfig     `mapstructure:"model"`
	Guardrail GuardrailConfig `mapstructure:"guardrail"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Log       LogConfig       `mapstructure:"log"`
	Env       EnvConfig       `mapstructure:"env"`
}

// MetricConfig names the primary objective the orchestrator steers toward.
type MetricConfig struct {
	Name     string  `mapstructure:"name"`
	Target   float64 `mapstructure:"target"`
	Minimize bool    `mapstructure:"minimize"`

	// TargetSet is computed by Load, not read from the file: it
	// distinguishes an explicit target of 0 from no target configured.
	TargetSet bool `mapstructure:"-"`
}

// BudgetConfig bounds how long a session is allowed to keep iterating.
type BudgetConfig struct {
	Type  string  `mapstructure:"type"` // "time" | "runs"
	Value float64 `mapstructure:"value"`
}

// TrainingConfig describes how to launch one training attempt.
type TrainingConfig struct {
	Command    string `mapstructure:"command"`     // shell template, e.g. "python train.py --config {{.ConfigPath}}"
	ConfigPath string `mapstructure:"config_path"` // path to the config file the agent is allowed to edit
	WorkDir    string `mapstructure:"work_dir"`
}

// ModelConfig configures the Model Client's provider fallback chain.
type ModelConfig struct {
	Primary       string           `mapstructure:"primary"`
	Fallbacks     []string         `mapstructure:"fallbacks"`
	Providers     []ProviderConfig `mapstructure:"providers"`
	MaxRounds     int              `mapstructure:"max_rounds"`      // bound on agent-loop tool round trips
	MaxRetries    int              `mapstructure:"max_retries"`     // per-call retry budget
	RetryBaseWait time.Duration    `mapstructure:"retry_base_wait"` // exponential backoff base
}

// ProviderConfig configures a single Go-native LLM provider.
type ProviderConfig struct {
	Name    string   `mapstructure:"name"`
	Type    string   `mapstructure:"type"` // "anthropic" | "openai" (OpenAI-compatible, default)
	BaseURL string   `mapstructure:"base_url"`
	APIKey  string   `mapstructure:"api_key"`
	Models  []string `mapstructure:"models"`
}

// GuardrailConfig holds thresholds for the automatic early-termination checks.
type GuardrailConfig struct {
	DivergenceMultiplier float64       `mapstructure:"divergence_multiplier"`
	PlateauWindow        int           `mapstructure:"plateau_window"`
	PlateauThreshold     float64       `mapstructure:"plateau_threshold"`
	RunTimeout           time.Duration `mapstructure:"run_timeout"`
}

// ToolsConfig restricts what the agent loop's tool vocabulary can touch.
type ToolsConfig struct {
	DenyPatterns []string `mapstructure:"deny_patterns"`
}

// ExecutorConfig selects and configures the training-run execution backend.
type ExecutorConfig struct {
	Backend string       `mapstructure:"backend"` // "local" | "remote"
	Remote  RemoteConfig `mapstructure:"remote"`
}

// RemoteConfig configures the SSH-backed remote executor.
type RemoteConfig struct {
	Host    string `mapstructure:"host"`
	User    string `mapstructure:"user"`
	KeyPath string `mapstructure:"key_path"`
	Port    int    `mapstructure:"port"`
}

// LogConfig controls orchestrator logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EnvConfig lists which environment variables are passed through to, or
// injected into, the training subprocess.
type EnvConfig struct {
	PassThrough []string          `mapstructure:"pass_through"`
	Inject      map[string]string `mapstructure:"inject"`
}

// Load reads revis.yaml from the repository root, layered with an optional
// user-global override and environment variable overrides, the same
// low-to-high precedence order the gateway's config loader used: defaults →
// global → project-local → env vars.
func Load(repoRoot string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("revis")
	v.SetConfigType("yaml")

	// Layer 1: user-global defaults (API keys, provider base URLs shared
	// across repositories) at ~/.revis/revis.yaml.
	globalDir := filepath.Join(os.Getenv("HOME"), ".revis")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read global config: %w", err)
		}
	}

	// Layer 2: the repository-local revis.yaml, merged on top.
	localPath := filepath.Join(repoRoot, "revis.yaml")
	if _, err := os.Stat(localPath); err == nil {
		v2 := viper.New()
		v2.SetConfigFile(localPath)
		if err := v2.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", localPath, err)
		}
		if err := v.MergeConfigMap(v2.AllSettings()); err != nil {
			return nil, fmt.Errorf("merge %s: %w", localPath, err)
		}
	} else {
		return nil, fmt.Errorf("revis.yaml not found in %s: %w", repoRoot, err)
	}

	v.SetEnvPrefix("REVIS")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Metric.TargetSet = v.IsSet("metric.target")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("metric.minimize", true)

	v.SetDefault("budget.type", "runs")
	v.SetDefault("budget.value", 20)

	v.SetDefault("training.config_path", "config.yaml")
	v.SetDefault("training.work_dir", ".")

	v.SetDefault("model.max_rounds", 20)
	v.SetDefault("model.max_retries", 3)
	v.SetDefault("model.retry_base_wait", "2s")

	v.SetDefault("guardrail.divergence_multiplier", 10.0)
	v.SetDefault("guardrail.plateau_window", 5)
	v.SetDefault("guardrail.plateau_threshold", 0.01)
	v.SetDefault("guardrail.run_timeout", "2h")

	v.SetDefault("tools.deny_patterns", []string{".git/**", ".revis/**", "**/.env"})

	v.SetDefault("executor.backend", "local")
	v.SetDefault("executor.remote.port", 22)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
