// Package config loads Sunwell's YAML configuration, in the teacher's
// idiom (internal/config): a single Config struct, a DefaultConfig with
// sensible zero-config values, a Load that reads and unmarshals a file, and
// environment-variable overrides applied afterward so secrets never need to
// live in the YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every knob enumerated in SPEC_FULL.md §A.3 / spec.md §6.
type Config struct {
	Convergence  ConvergenceConfig  `yaml:"convergence"`
	Planner      PlannerConfig      `yaml:"planner"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge"`
	Checkpoints  CheckpointsConfig  `yaml:"checkpoints"`
	EventBus     EventBusConfig     `yaml:"event_bus"`
	LLM          LLMConfig          `yaml:"llm"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`

	AllowedCommandPrefixes []string `yaml:"allowed_command_prefixes"`
}

// ConvergenceConfig covers spec.md §6 convergence.* keys.
type ConvergenceConfig struct {
	MaxIterations         int  `yaml:"max_iterations"`
	FixedPointDetection   bool `yaml:"fixed_point_detection"`
}

// PlannerConfig covers spec.md §6 planner.* keys.
type PlannerConfig struct {
	Candidates        int `yaml:"candidates"`
	RefinementRounds  int `yaml:"refinement_rounds"`
}

// KnowledgeConfig covers spec.md §6 knowledge.* keys.
type KnowledgeConfig struct {
	LimitPerCategory int     `yaml:"limit_per_category"`
	MinScore         float64 `yaml:"min_score"`
	DatabasePath     string  `yaml:"database_path"`
}

// CheckpointsConfig covers spec.md §6 checkpoints.* keys.
type CheckpointsConfig struct {
	AutoBeforeDestructive bool `yaml:"auto_before_destructive"`
}

// EventBusConfig covers spec.md §6 event_bus.* keys.
type EventBusConfig struct {
	MaxSubscribers  int    `yaml:"max_subscribers"`
	RetentionRuns   int    `yaml:"retention_runs"`
	RetentionSeconds int   `yaml:"retention_seconds"`
}

// LLMConfig configures the external LLM collaborator used by the planner,
// convergence loop, epic decomposer, and adaptive router.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "genai" (Gemini) supported out of the box
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// TimeoutDuration parses Timeout, defaulting to 120s on empty/invalid input.
func (c LLMConfig) TimeoutDuration() time.Duration {
	if c.Timeout == "" {
		return 120 * time.Second
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// EmbeddingConfig configures the Knowledge Store's embedding backend.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "genai" or "ollama"
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"` // ollama only
	APIKey   string `yaml:"api_key"`
}

// DefaultConfig returns the defaults named throughout spec.md §6.
func DefaultConfig() *Config {
	return &Config{
		Convergence: ConvergenceConfig{
			MaxIterations:       5,
			FixedPointDetection: true,
		},
		Planner: PlannerConfig{
			Candidates:       5,
			RefinementRounds: 1,
		},
		Knowledge: KnowledgeConfig{
			LimitPerCategory: 5,
			MinScore:         0.3,
			DatabasePath:     ".sunwell/knowledge/learnings.db",
		},
		Checkpoints: CheckpointsConfig{
			AutoBeforeDestructive: true,
		},
		EventBus: EventBusConfig{
			MaxSubscribers:   100,
			RetentionRuns:    100,
			RetentionSeconds: 3600,
		},
		LLM: LLMConfig{
			Provider: "genai",
			Model:    "gemini-2.5-pro",
			Timeout:  "120s",
		},
		Embedding: EmbeddingConfig{
			Provider: "genai",
			Model:    "gemini-embedding-001",
		},
		AllowedCommandPrefixes: []string{
			"npm", "python", "python3", "cargo", "go", "make", "docker", "pip", "pip3", "uv", "yarn", "pnpm",
		},
	}
}

// Load reads a YAML file at path, merging it over DefaultConfig, then
// applies environment-variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides layers environment variables over file/default values.
// API keys may also be set through the api_key fields of the YAML file;
// GEMINI_API_KEY, when set, replaces both of them.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("SUNWELL_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("SUNWELL_KNOWLEDGE_DB"); v != "" {
		c.Knowledge.DatabasePath = v
	}
}
