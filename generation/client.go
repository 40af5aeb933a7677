package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/logging"
	"github.com/WhitenWhiten/CodeTeam/model"
	"github.com/WhitenWhiten/CodeTeam/schema"
)

// Default prompts.
const (
	DefaultSystemPrompt     = "You are a senior software engineer."
	DefaultJSONSystemPrompt = "Return ONLY valid minified JSON. Do not include extra commentary."
)

// Options configures a Client.
type Options struct {
	// MaxRepairs bounds the repair prompts after a structurally invalid answer.
	MaxRepairs int
	// CallRetries bounds the attempts of one model call on transport errors.
	CallRetries int
	// RetryBackoff is multiplied by the attempt number between call retries.
	RetryBackoff     time.Duration
	SystemPrompt     string
	JSONSystemPrompt string
	// Limiter, when set, bounds the model calls of a run.
	Limiter *core.CallLimiter
	Logger  logging.Logger
}

// Client implements core.Generator over a model.Model.
type Client struct {
	model     model.Model
	validator *schema.Validator
	opts      Options
}

var _ core.Generator = (*Client)(nil)

// New creates a Client. A nil validator gets the default one.
func New(m model.Model, v *schema.Validator, optFns ...func(o *Options)) *Client {
	opts := Options{
		MaxRepairs:       3,
		CallRetries:      3,
		RetryBackoff:     1500 * time.Millisecond,
		SystemPrompt:     DefaultSystemPrompt,
		JSONSystemPrompt: DefaultJSONSystemPrompt,
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	if v == nil {
		v = schema.New()
	}

	return &Client{model: m, validator: v, opts: opts}
}

// call runs one prompt through the model, retrying transport errors.
func (c *Client) call(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Increment(); err != nil {
			return "", err
		}
	}

	req := model.UserRequest(prompt, jsonMode)
	req.Instructions = c.opts.SystemPrompt

	if jsonMode {
		req.Instructions = c.opts.JSONSystemPrompt
	}

	attempts := max(c.opts.CallRetries, 1)

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		text, _, err := model.Complete(ctx, c.model, req)
		if err == nil {
			return text, nil
		}

		lastErr = err

		if ctx.Err() != nil || attempt == attempts {
			break
		}

		c.opts.Logger.Warn("Model call failed, retrying", "attempt", attempt, "error", err.Error())

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.opts.RetryBackoff * time.Duration(attempt)):
		}
	}

	return "", lastErr
}

// GenerateText implements core.Generator.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	text, err := c.call(ctx, prompt, false)
	logging.Generation(c.opts.Logger, "text", 1, time.Since(start), err)

	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}

	return StripFence(text), nil
}

// GenerateStructured implements core.Generator.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, kind core.SchemaKind) (map[string]any, error) {
	return c.structured(ctx, prompt, kind, nil)
}

// GenerateFiles implements core.Generator. The answer must be an object of
// path to content; an object nesting that map under "tests" is unwrapped.
func (c *Client) GenerateFiles(ctx context.Context, prompt string) (map[string]string, error) {
	obj, err := c.structured(ctx, prompt, core.SchemaFileMap, unwrapFiles)
	if err != nil {
		return nil, err
	}

	files := make(map[string]string, len(obj))
	for p, v := range obj {
		files[p] = v.(string)
	}

	return files, nil
}

func unwrapFiles(obj map[string]any) map[string]any {
	if inner, ok := obj["tests"].(map[string]any); ok {
		return inner
	}

	if inner, ok := obj["files"].(map[string]any); ok {
		return inner
	}

	return obj
}

func (c *Client) structured(ctx context.Context, prompt string, kind core.SchemaKind, normalize func(map[string]any) map[string]any) (map[string]any, error) {
	start := time.Now()
	current := prompt
	attempts := 0

	var lastErr error

	for attempt := 0; attempt <= c.opts.MaxRepairs; attempt++ {
		attempts++

		text, err := c.call(ctx, current, true)
		if err != nil {
			err = fmt.Errorf("generate %s: %w", kind, err)
			logging.Generation(c.opts.Logger, string(kind), attempts, time.Since(start), err)

			return nil, err
		}

		obj, err := ParseObject(text)
		if err == nil {
			if normalize != nil {
				obj = normalize(obj)
			}

			err = c.validator.ValidateStructure(obj, kind)
		}

		if err == nil {
			logging.Generation(c.opts.Logger, string(kind), attempts, time.Since(start), nil)
			return obj, nil
		}

		lastErr = err
		current = c.repairPrompt(kind, text, err)

		c.opts.Logger.Debug("Structured output rejected", "kind", string(kind), "attempt", attempts, "error", err.Error())
	}

	err := fmt.Errorf("%w: %s after %d attempts: %w", core.ErrStructuredGenerationFailed, kind, attempts, lastErr)
	logging.Generation(c.opts.Logger, string(kind), attempts, time.Since(start), err)

	return nil, err
}

func (c *Client) repairPrompt(kind core.SchemaKind, previous string, cause error) string {
	var issues string

	var se *core.SchemaError
	if errors.As(cause, &se) {
		issues = fmt.Sprintf("%v", se.Issues)
	} else {
		issues = cause.Error()
	}

	return fmt.Sprintf(`Your previous JSON was invalid or schema-incompatible.
Output ONLY a valid JSON object that conforms to this JSON Schema:
%s

Previous content:
%s

SchemaErrors: %s
`, c.validator.SchemaJSON(kind), previous, issues)
}
