// Package codeteam wires a loaded configuration into a ready-to-run engine.
//
// Most applications only need:
//
//	cfg, err := config.Load("codeteam.yaml")
//	if err != nil { ... }
//	team, err := codeteam.New(ctx, cfg)
//	if err != nil { ... }
//	defer team.Close()
//	res, err := team.Run(ctx, "")
//
// New picks the model provider, the history backend and the retrieval index
// from the configuration. Any of them can be overridden through Options,
// which is how tests substitute scripted generators and runners.
package codeteam

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/WhitenWhiten/CodeTeam/config"
	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/engine"
	"github.com/WhitenWhiten/CodeTeam/generation"
	"github.com/WhitenWhiten/CodeTeam/logging"
	"github.com/WhitenWhiten/CodeTeam/model"
	anthropicmodel "github.com/WhitenWhiten/CodeTeam/model/anthropic"
	ollamamodel "github.com/WhitenWhiten/CodeTeam/model/ollama"
	openaimodel "github.com/WhitenWhiten/CodeTeam/model/openai"
	"github.com/WhitenWhiten/CodeTeam/retrieval"
	"github.com/WhitenWhiten/CodeTeam/schema"
	"github.com/WhitenWhiten/CodeTeam/testexec"
	"github.com/WhitenWhiten/CodeTeam/worker"
)

// Options overrides the components New would build from the configuration.
type Options struct {
	// Generator replaces the configured provider.
	Generator core.Generator
	// Runner replaces the shell test runner.
	Runner core.TestRunner
	// Retriever replaces the configured retrieval index.
	Retriever core.Retriever
	// Callbacks receives engine lifecycle callbacks.
	Callbacks *engine.CallbackManager
	// Logger replaces the logger built from the log section.
	Logger logging.Logger
}

// CodeTeam is the configured façade over engine.Engine.
type CodeTeam struct {
	cfg     *config.Config
	engine  *engine.Engine
	index   *retrieval.Index
	limiter *core.CallLimiter
	logger  logging.Logger
}

// New validates cfg and builds the engine it describes.
func New(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*CodeTeam, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		l, err := NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}

		opts.Logger = l
	}

	t := &CodeTeam{
		cfg:     cfg,
		limiter: core.NewCallLimiter(cfg.MaxGenerationCalls),
		logger:  opts.Logger,
	}

	validator := schema.New(func(o *schema.Options) { o.AllowedLanguages = cfg.AllowLanguages })

	if opts.Generator == nil {
		gen, err := t.newGenerator(validator)
		if err != nil {
			return nil, err
		}

		opts.Generator = gen
	}

	if opts.Runner == nil {
		opts.Runner = testexec.NewShellRunner(func(o *testexec.Options) {
			o.Timeout = cfg.Test.Timeout
			o.Logger = opts.Logger
		})
	}

	if opts.Retriever == nil {
		r, err := t.openRetriever(ctx)
		if err != nil {
			return nil, err
		}

		opts.Retriever = r
	}

	history, err := HistoryFactory(cfg.History)
	if err != nil {
		return nil, err
	}

	t.engine = engine.New(func(o *engine.Options) {
		o.Config = EngineConfig(cfg)
		o.Generator = opts.Generator
		o.Runner = opts.Runner
		o.Retriever = opts.Retriever
		o.History = history
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
	})

	return t, nil
}

// EngineConfig maps the file configuration onto the engine parameters.
func EngineConfig(cfg *config.Config) engine.Config {
	c := engine.DefaultConfig
	c.Architects = cfg.Architects
	c.PlanRetries = cfg.PlanRetries
	c.MaxRounds = cfg.MaxRounds
	c.RoundTimeout = cfg.RoundTimeout
	c.Mode = worker.Mode(strings.ToLower(cfg.Mode))
	c.AllowedLanguages = cfg.AllowLanguages
	c.TestCommand = cfg.Test.Command
	c.Workspace = cfg.Workspace
	c.LenientSelection = strings.EqualFold(cfg.LLM.Provider, "mock")

	return c
}

// Engine returns the underlying engine.
func (t *CodeTeam) Engine() *engine.Engine { return t.engine }

// Calls reports the generation calls made so far.
func (t *CodeTeam) Calls() int { return t.limiter.Count() }

// Run executes one run. An empty question falls back to the configured one.
func (t *CodeTeam) Run(ctx context.Context, question string) (*engine.Result, error) {
	if strings.TrimSpace(question) == "" {
		question = t.cfg.Question
	}

	return t.engine.Run(ctx, question)
}

// Close releases the retrieval index.
func (t *CodeTeam) Close() error {
	if t.index != nil {
		return t.index.Close()
	}

	return nil
}

func (t *CodeTeam) newGenerator(v *schema.Validator) (core.Generator, error) {
	if strings.EqualFold(t.cfg.LLM.Provider, "mock") {
		return generation.NewMock(), nil
	}

	m, err := NewModel(t.cfg.LLM)
	if err != nil {
		return nil, err
	}

	return generation.New(m, v, func(o *generation.Options) {
		o.MaxRepairs = t.cfg.StructuredRetries
		o.Limiter = t.limiter
		o.Logger = t.logger
	}), nil
}

func (t *CodeTeam) openRetriever(ctx context.Context) (core.Retriever, error) {
	rag := t.cfg.RAG
	if !rag.Enabled {
		return retrieval.Nop{}, nil
	}

	idx, err := retrieval.Open(rag.IndexPath, func(o *retrieval.Options) {
		o.TopK = rag.TopK
		o.Logger = t.logger
	})
	if err != nil {
		return nil, fmt.Errorf("open retrieval index: %w", err)
	}

	if rag.Corpus != "" {
		n, err := idx.LoadCorpusFile(ctx, rag.Corpus)
		if err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("load corpus: %w", err)
		}

		t.logger.Info("Retrieval corpus loaded", "path", rag.Corpus, "documents", n)
	}

	t.index = idx

	return idx, nil
}

// NewModel builds the model adapter for a non-mock provider.
func NewModel(cfg config.LLMConfig) (model.Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = int64(cfg.MaxTokens)
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.Model != "" {
				o.Model = anthropic.Model(cfg.Model)
			}
			o.Temperature = cfg.Temperature
			o.MaxTokens = int64(cfg.MaxTokens)
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "ollama":
		return ollamamodel.NewModel(func(o *ollamamodel.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.Temperature = cfg.Temperature
			o.Host = cfg.BaseURL
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// HistoryFactory maps a history backend name onto the engine factory.
func HistoryFactory(name string) (engine.HistoryFactory, error) {
	switch strings.ToLower(name) {
	case "", "memory":
		return engine.MemoryHistory(), nil
	case "sqlite":
		return engine.SQLiteHistory(), nil
	case "git":
		return engine.GitHistory(), nil
	default:
		return nil, fmt.Errorf("unsupported history backend %q", name)
	}
}

// NewLogger builds the run logger described by the log section.
func NewLogger(cfg config.LogConfig) (*logging.RunLogger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultLoggerConfig()
	lc.Level = level
	lc.Format = strings.ToLower(cfg.Format)
	lc.File = cfg.File
	lc.Component = "codeteam"
	lc.Output = os.Stderr

	return logging.NewLogger(lc), nil
}

// IsStageError reports whether err aborted a run and returns the stage error.
func IsStageError(err error) (*engine.StageError, bool) {
	var se *engine.StageError
	ok := errors.As(err, &se)

	return se, ok
}
