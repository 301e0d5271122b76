package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scoring holds the bid-score weights. They are configuration, not code:
// the right balance between skill, fairness and preference is a store policy
// decision.
type Scoring struct {
	SkillWeight        float64 `yaml:"skill_weight"`
	FairnessWeight     float64 `yaml:"fairness_weight"`
	PreferenceWeight   float64 `yaml:"preference_weight"`
	AvailabilityWeight float64 `yaml:"availability_weight"`
	CrossTrainFactor   float64 `yaml:"cross_train_factor"`
	IncumbentBonus     float64 `yaml:"incumbent_bonus"`
}

// Refinement bounds the validate/resolve loop.
type Refinement struct {
	MaxIterations int `yaml:"max_iterations"`
}

// Escalation configures the human-in-the-loop wait.
type Escalation struct {
	Timeout   time.Duration `yaml:"timeout"`
	OnTimeout string        `yaml:"on_timeout"` // "proceed" or "abort"
}

// LLM configures the explainer's OpenRouter-compatible client. When the key
// is absent the explainer falls back to template text.
type LLM struct {
	Enabled     bool    `yaml:"enabled"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	APIKey      string  `yaml:"-"`
}

// Server configures the approval/metrics HTTP surface.
type Server struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"-"`
}

// Database points at the roster configuration store.
type Database struct {
	Dialect string `yaml:"dialect"` // "sqlite3" or "postgres"
	DSN     string `yaml:"dsn"`
}

// Export configures where run artifacts are written.
type Export struct {
	Dir string `yaml:"dir"`
}

// Config is the full engine configuration.
type Config struct {
	Scoring    Scoring    `yaml:"scoring"`
	Refinement Refinement `yaml:"refinement"`
	Escalation Escalation `yaml:"escalation"`
	LLM        LLM        `yaml:"llm"`
	Server     Server     `yaml:"server"`
	Database   Database   `yaml:"database"`
	Export     Export     `yaml:"export"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Scoring: Scoring{
			SkillWeight:        3.0,
			FairnessWeight:     2.0,
			PreferenceWeight:   1.0,
			AvailabilityWeight: 0.5,
			CrossTrainFactor:   0.75,
			IncumbentBonus:     0.25,
		},
		Refinement: Refinement{MaxIterations: 5},
		Escalation: Escalation{Timeout: 15 * time.Minute, OnTimeout: "proceed"},
		LLM: LLM{
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "mistralai/mistral-7b-instruct:free",
			MaxTokens:   300,
			Temperature: 0.7,
		},
		Server:   Server{Port: 8080},
		Database: Database{Dialect: "sqlite3", DSN: "rosterforge.db"},
		Export:   Export{Dir: "exports"},
	}
}

// Load reads the YAML file over the defaults, then overlays secrets from the
// environment (OPENROUTER_API_KEY, ROSTERFORGE_JWT_SECRET). A missing file is
// not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.LLM.APIKey = os.Getenv("OPENROUTER_API_KEY")
	if cfg.LLM.APIKey != "" {
		cfg.LLM.Enabled = true
	}
	cfg.Server.JWTSecret = os.Getenv("ROSTERFORGE_JWT_SECRET")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Refinement.MaxIterations < 1 {
		return fmt.Errorf("refinement.max_iterations must be >= 1, got %d", c.Refinement.MaxIterations)
	}
	if c.Escalation.OnTimeout != "proceed" && c.Escalation.OnTimeout != "abort" {
		return fmt.Errorf("escalation.on_timeout must be \"proceed\" or \"abort\", got %q", c.Escalation.OnTimeout)
	}
	if c.Escalation.Timeout <= 0 {
		return fmt.Errorf("escalation.timeout must be positive, got %s", c.Escalation.Timeout)
	}
	for name, w := range map[string]float64{
		"skill_weight":        c.Scoring.SkillWeight,
		"fairness_weight":     c.Scoring.FairnessWeight,
		"preference_weight":   c.Scoring.PreferenceWeight,
		"availability_weight": c.Scoring.AvailabilityWeight,
	} {
		if w < 0 {
			return fmt.Errorf("scoring.%s must not be negative, got %v", name, w)
		}
	}
	if c.Scoring.CrossTrainFactor < 0 || c.Scoring.CrossTrainFactor > 1 {
		return fmt.Errorf("scoring.cross_train_factor must be in [0,1], got %v", c.Scoring.CrossTrainFactor)
	}
	switch c.Database.Dialect {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.dialect must be \"sqlite3\" or \"postgres\", got %q", c.Database.Dialect)
	}
	return nil
}
