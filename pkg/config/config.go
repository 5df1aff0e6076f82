// Package config defines the injected configuration for every component.
// There is no package-level mutable state: construct a Config, validate it,
// and pass it down.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/etymon/pkg/kv"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    kv.Config      `yaml:"store"`
	Budget   BudgetConfig   `yaml:"budget"`
	Cache    CacheConfig    `yaml:"cache"`
	Lock     LockConfig     `yaml:"lock"`
	Research ResearchConfig `yaml:"research"`
	Model    ModelConfig    `yaml:"model"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	AdminSecret     string        `yaml:"admin_secret"`
	RequestDeadline time.Duration `yaml:"request_deadline"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BudgetConfig governs the monthly spending cap and its mode ladder.
type BudgetConfig struct {
	MonthlyLimitUSD float64 `yaml:"monthly_limit_usd"`

	// Ladder thresholds as fractions of the limit.
	ProtectedAt float64 `yaml:"protected_at"`
	CacheOnlyAt float64 `yaml:"cache_only_at"`

	// HysteresisPts keeps the mode from flapping: a downgrade requires the
	// spend ratio to sit this many percentage points below the threshold.
	HysteresisPts float64 `yaml:"hysteresis_pts"`

	// PeriodExpiryBuffer pads the counter's expiry past period rollover to
	// tolerate clock skew between processes.
	PeriodExpiryBuffer time.Duration `yaml:"period_expiry_buffer"`

	// Prices maps model IDs to USD per million tokens.
	Prices map[string]Price `yaml:"prices"`
}

// Price is USD per million tokens for one model.
type Price struct {
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
}

// CacheConfig configures the versioned result/source caches.
type CacheConfig struct {
	ResultVersion int           `yaml:"result_version"`
	SourceVersion int           `yaml:"source_version"`
	ResultTTL     time.Duration `yaml:"result_ttl"`
	SourceTTL     time.Duration `yaml:"source_ttl"`
	NegativeTTL   time.Duration `yaml:"negative_ttl"`

	// JitterPct spreads expiry times to avoid stampedes: a value of 10
	// means TTLs land uniformly in [0.9*ttl, 1.1*ttl].
	JitterPct float64 `yaml:"jitter_pct"`
}

// LockConfig configures the per-word mutual exclusion.
type LockConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollAttempts int           `yaml:"poll_attempts"`
}

// ResearchConfig bounds the fetch fan-out per word.
type ResearchConfig struct {
	FetchBudget    int           `yaml:"fetch_budget"`
	MaxRoots       int           `yaml:"max_roots"`
	CostPerRoot    int           `yaml:"cost_per_root"`
	RelatedPerRoot int           `yaml:"related_per_root"`
	SourceTimeout  time.Duration `yaml:"source_timeout"`
	PrimarySources []string      `yaml:"primary_sources"`
}

// ModelConfig configures the LLM provider.
type ModelConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	SynthesisModel string        `yaml:"synthesis_model"`
	RootModel      string        `yaml:"root_model"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`

	// SynthesisRetries is the retry budget for malformed structured output,
	// distinct from transport-level MaxRetries.
	SynthesisRetries int `yaml:"synthesis_retries"`
}

// LoggingConfig configures the JSONL logger.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// Default returns a Config with documented defaults. Tests override fields
// directly; the daemon layers a yaml file and env on top.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:          ":8080",
			RequestDeadline: 90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: kv.DefaultConfig(),
		Budget: BudgetConfig{
			MonthlyLimitUSD:    50,
			ProtectedAt:        0.70,
			CacheOnlyAt:        0.90,
			HysteresisPts:      2,
			PeriodExpiryBuffer: 48 * time.Hour,
			Prices: map[string]Price{
				"anthropic/claude-sonnet-4-5":  {InputPerMTok: 3, OutputPerMTok: 15},
				"anthropic/claude-haiku-4-5":   {InputPerMTok: 1, OutputPerMTok: 5},
				"openai/gpt-4o-mini":           {InputPerMTok: 0.15, OutputPerMTok: 0.60},
				"moonshotai/kimi-k2-thinking":  {InputPerMTok: 0.60, OutputPerMTok: 2.50},
			},
		},
		Cache: CacheConfig{
			ResultVersion: 3,
			SourceVersion: 1,
			ResultTTL:     30 * 24 * time.Hour,
			SourceTTL:     7 * 24 * time.Hour,
			NegativeTTL:   6 * time.Hour,
			JitterPct:     10,
		},
		Lock: LockConfig{
			TTL:          2 * time.Minute,
			PollInterval: 500 * time.Millisecond,
			PollAttempts: 30,
		},
		Research: ResearchConfig{
			FetchBudget:    10,
			MaxRoots:       3,
			CostPerRoot:    2,
			RelatedPerRoot: 1,
			SourceTimeout:  10 * time.Second,
			PrimarySources: []string{"etymonline", "wiktionary"},
		},
		Model: ModelConfig{
			BaseURL:          "https://openrouter.ai/api/v1",
			SynthesisModel:   "anthropic/claude-sonnet-4-5",
			RootModel:        "anthropic/claude-haiku-4-5",
			Timeout:          60 * time.Second,
			MaxRetries:       2,
			SynthesisRetries: 2,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a yaml file over the defaults, then applies env overrides.
// A missing path is fine: defaults plus env apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// applyEnv applies environment overrides for the handful of values that
// change between deploys without a config file edit.
func (c *Config) applyEnv() {
	if v := os.Getenv("ETYMON_API_KEY"); v != "" {
		c.Model.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" && c.Model.APIKey == "" {
		c.Model.APIKey = v
	}
	if v := os.Getenv("ETYMON_ADMIN_SECRET"); v != "" {
		c.Server.AdminSecret = v
	}
	if v := os.Getenv("ETYMON_NATS_URL"); v != "" {
		c.Store.URL = v
	}
	if v := os.Getenv("ETYMON_LISTEN"); v != "" {
		c.Server.Listen = v
	}
}

// Validate rejects configurations that would misbehave silently.
func (c *Config) Validate() error {
	if c.Budget.MonthlyLimitUSD <= 0 {
		return fmt.Errorf("budget.monthly_limit_usd must be positive")
	}
	if c.Budget.ProtectedAt <= 0 || c.Budget.ProtectedAt >= 1 {
		return fmt.Errorf("budget.protected_at must be in (0,1)")
	}
	if c.Budget.CacheOnlyAt <= c.Budget.ProtectedAt || c.Budget.CacheOnlyAt >= 1 {
		return fmt.Errorf("budget.cache_only_at must be in (protected_at,1)")
	}
	if c.Cache.JitterPct < 0 || c.Cache.JitterPct >= 100 {
		return fmt.Errorf("cache.jitter_pct must be in [0,100)")
	}
	if c.Cache.ResultVersion < 1 || c.Cache.SourceVersion < 1 {
		return fmt.Errorf("cache versions must be >= 1")
	}
	if c.Lock.PollAttempts < 1 || c.Lock.PollInterval <= 0 {
		return fmt.Errorf("lock polling must allow at least one attempt")
	}
	if c.Research.FetchBudget < 1 {
		return fmt.Errorf("research.fetch_budget must be >= 1")
	}
	if c.Research.CostPerRoot < 1 {
		return fmt.Errorf("research.cost_per_root must be >= 1")
	}
	if c.Model.SynthesisModel == "" {
		return fmt.Errorf("model.synthesis_model is required")
	}
	return nil
}
