// Package config loads the run configuration.
//
// Configuration is a single YAML file. Every field has a default, so an empty
// path yields Default(). ${VAR} references in string fields holding paths or
// credentials are expanded from the environment after loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of a run.
type Config struct {
	// Architects is the number of concurrent plan proposers.
	Architects int `yaml:"architects"`

	// PlanRetries is the number of extra attempts per proposer.
	PlanRetries int `yaml:"plan_retries"`

	// MaxRounds bounds the number of fix rounds.
	MaxRounds int `yaml:"max_rounds"`

	// Workspace is the directory run repositories are created under.
	Workspace string `yaml:"workspace"`

	// AllowLanguages is the set of languages a plan may use.
	AllowLanguages []string `yaml:"allow_languages"`

	// Question is used when none is given on the command line.
	Question string `yaml:"question"`

	// Mode selects the scheduling model: threaded or cooperative.
	Mode string `yaml:"mode"`

	// RoundTimeout bounds the wait for the completions of one round.
	RoundTimeout time.Duration `yaml:"round_timeout"`

	// StructuredRetries is the number of repair prompts per structured call.
	StructuredRetries int `yaml:"structured_retries"`

	// MaxGenerationCalls bounds the generation calls of a run. Zero means
	// unlimited.
	MaxGenerationCalls int `yaml:"max_generation_calls"`

	// History selects the commit history backend: memory, sqlite or git.
	History string `yaml:"history"`

	LLM  LLMConfig  `yaml:"llm"`
	RAG  RAGConfig  `yaml:"rag"`
	Test TestConfig `yaml:"test"`
	Log  LogConfig  `yaml:"log"`
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	// Provider is one of mock, openai, anthropic, ollama.
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways,
	// a remote ollama host).
	BaseURL string `yaml:"base_url"`
	// APIKey defaults to the provider environment variable when empty.
	APIKey string `yaml:"api_key"`
}

// RAGConfig configures the retrieval index.
type RAGConfig struct {
	Enabled   bool   `yaml:"enabled"`
	IndexPath string `yaml:"index_path"`
	// Corpus, when set, is loaded into the index at startup.
	Corpus string `yaml:"corpus"`
	TopK   int    `yaml:"top_k"`
}

// TestConfig configures test execution.
type TestConfig struct {
	// Command overrides the command derived from the plan.
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File tees the log into a size-rotated file.
	File string `yaml:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Architects:        2,
		PlanRetries:       1,
		MaxRounds:         2,
		Workspace:         "./workspace",
		AllowLanguages:    []string{"python", "go"},
		Question:          "Generate a simple, testable greeting program.",
		Mode:              "threaded",
		RoundTimeout:      10 * time.Minute,
		StructuredRetries: 3,
		History:           "memory",
		LLM: LLMConfig{
			Provider:    "mock",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   4000,
		},
		RAG: RAGConfig{
			IndexPath: "./rag_index/index.db",
			TopK:      6,
		},
		Test: TestConfig{
			Timeout: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration at path on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.Merge(data); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Merge decodes YAML data into c and expands environment references.
func (c *Config) Merge(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}

	c.expandVariables()

	return nil
}

func (c *Config) expandVariables() {
	c.Workspace = os.ExpandEnv(c.Workspace)
	c.RAG.IndexPath = os.ExpandEnv(c.RAG.IndexPath)
	c.RAG.Corpus = os.ExpandEnv(c.RAG.Corpus)
	c.Log.File = os.ExpandEnv(c.Log.File)
	c.LLM.APIKey = os.ExpandEnv(c.LLM.APIKey)
	c.LLM.BaseURL = os.ExpandEnv(c.LLM.BaseURL)
}

var (
	providers = []string{"mock", "openai", "anthropic", "ollama"}
	modes     = []string{"threaded", "cooperative"}
	histories = []string{"memory", "sqlite", "git"}
	formats   = []string{"text", "json"}
)

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error

	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Architects >= 1, "architects must be at least 1, got %d", c.Architects)
	check(c.PlanRetries >= 0, "plan_retries must not be negative, got %d", c.PlanRetries)
	check(c.MaxRounds >= 0, "max_rounds must not be negative, got %d", c.MaxRounds)
	check(c.Workspace != "", "workspace must be set")
	check(len(c.AllowLanguages) > 0, "allow_languages must not be empty")
	check(oneOf(c.Mode, modes), "mode must be one of %s, got %q", strings.Join(modes, ", "), c.Mode)
	check(c.RoundTimeout > 0, "round_timeout must be positive, got %s", c.RoundTimeout)
	check(c.StructuredRetries >= 0, "structured_retries must not be negative, got %d", c.StructuredRetries)
	check(c.MaxGenerationCalls >= 0, "max_generation_calls must not be negative, got %d", c.MaxGenerationCalls)
	check(oneOf(c.History, histories), "history must be one of %s, got %q", strings.Join(histories, ", "), c.History)
	check(oneOf(c.LLM.Provider, providers), "llm.provider must be one of %s, got %q", strings.Join(providers, ", "), c.LLM.Provider)
	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "llm.temperature must be within [0, 2], got %g", c.LLM.Temperature)
	check(c.LLM.MaxTokens > 0, "llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	check(!c.RAG.Enabled || c.RAG.IndexPath != "", "rag.index_path must be set when rag is enabled")
	check(c.RAG.TopK > 0, "rag.top_k must be positive, got %d", c.RAG.TopK)
	check(c.Test.Timeout > 0, "test.timeout must be positive, got %s", c.Test.Timeout)
	check(oneOf(c.Log.Format, formats), "log.format must be one of %s, got %q", strings.Join(formats, ", "), c.Log.Format)

	return errors.Join(errs...)
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if strings.EqualFold(v, s) {
			return true
		}
	}

	return false
}
