// Package ollama provides a model.Model backed by a local Ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"

	"github.com/WhitenWhiten/CodeTeam/model"
)

// Options configures the Ollama adapter.
type Options struct {
	Model       string
	Temperature float64
	// NumCtx is the context window requested from the server.
	NumCtx int
	// Host overrides OLLAMA_HOST, e.g. "http://127.0.0.1:11434".
	Host string
}

// Model wraps the Ollama chat API.
type Model struct {
	client *ollama.Client
	opts   Options
}

// NewModel creates a Model. Without Host the client is configured from the
// environment.
func NewModel(optFns ...func(o *Options)) (*Model, error) {
	opts := Options{
		Model:       "qwen2.5-coder",
		Temperature: 0.2,
		NumCtx:      8192,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Host != "" {
		u, err := url.Parse(opts.Host)
		if err != nil {
			return nil, fmt.Errorf("parse ollama host: %w", err)
		}

		return &Model{client: ollama.NewClient(u, http.DefaultClient), opts: opts}, nil
	}

	client, err := ollama.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("could not create ollama client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		messages := make([]ollama.Message, 0, len(req.Messages)+1)
		if req.Instructions != "" {
			messages = append(messages, ollama.Message{Role: model.RoleSystem, Content: req.Instructions})
		}

		for _, msg := range req.Messages {
			messages = append(messages, ollama.Message{Role: msg.Role, Content: msg.Content})
		}

		stream := req.Stream
		chatReq := &ollama.ChatRequest{
			Model:    strings.TrimPrefix(m.opts.Model, "ollama:"),
			Messages: messages,
			Stream:   &stream,
			Options: map[string]any{
				"temperature": m.opts.Temperature,
				"num_ctx":     m.opts.NumCtx,
			},
		}

		if req.JSON {
			chatReq.Format = json.RawMessage(`"json"`)
		}

		var text strings.Builder

		err := m.client.Chat(ctx, chatReq, func(res ollama.ChatResponse) error {
			text.WriteString(res.Message.Content)

			if !res.Done {
				out <- model.Response{Partial: true, Text: res.Message.Content}
				return nil
			}

			out <- model.Response{
				Text:         text.String(),
				FinishReason: res.DoneReason,
				Usage: &model.TokenUsage{
					PromptTokens:     res.PromptEvalCount,
					CompletionTokens: res.EvalCount,
					TotalTokens:      res.PromptEvalCount + res.EvalCount,
				},
			}

			return nil
		})
		if err != nil {
			errCh <- fmt.Errorf("ollama chat failed: %w", err)
		}
	}()

	return out, errCh
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "ollama", SupportsJSON: true}
}
