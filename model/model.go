package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request captures the normalized model input.
type Request struct {
	Instructions string    `json:"instructions,omitempty"` // System prompt
	Messages     []Message `json:"messages"`
	// JSON asks the provider to constrain the answer to a JSON object where
	// it supports that.
	JSON   bool `json:"json,omitempty"`
	Stream bool `json:"stream,omitempty"`
}

// Prompt returns the content of the last user message.
func (r Request) Prompt() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}

	return ""
}

// UserRequest builds a single-turn request.
func UserRequest(prompt string, json bool) Request {
	return Request{Messages: []Message{{Role: RoleUser, Content: prompt}}, JSON: json}
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. The final
// chunk carries the complete text.
type Response struct {
	ID           string      `json:"id"`
	Partial      bool        `json:"partial"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", ...
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name         string `json:"name"`
	Provider     string `json:"provider"` // "openai", "anthropic", "ollama", "mock"
	SupportsJSON bool   `json:"supports_json"`
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrEmptyResponse is returned by Complete when a model finished without
// producing any text.
var ErrEmptyResponse = errors.New("model returned no content")

// Complete drains a Generate call and returns the final text. Partial
// chunks are concatenated when no final chunk arrives.
func Complete(ctx context.Context, m Model, req Request) (string, *TokenUsage, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		partial strings.Builder
		final   *Response
	)

	for r := range respCh {
		if r.Partial {
			partial.WriteString(r.Text)
			continue
		}

		final = &r
	}

	if err := <-errCh; err != nil {
		return "", nil, err
	}

	if final != nil {
		if final.Text == "" && partial.Len() > 0 {
			return partial.String(), final.Usage, nil
		}

		if final.Text == "" {
			return "", final.Usage, ErrEmptyResponse
		}

		return final.Text, final.Usage, nil
	}

	if partial.Len() == 0 {
		return "", nil, ErrEmptyResponse
	}

	return partial.String(), nil, nil
}

// MockModel is a scripted in-memory Model for tests. Answers are picked
// from the queue first, then by exact prompt, then from the handler.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	queue     []string
	responses map[string]string
	handler   func(req Request) (string, error)
	requests  []Request
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock", SupportsJSON: true},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[prompt] = response
}

// Enqueue appends answers returned in order, regardless of the prompt.
func (m *MockModel) Enqueue(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = append(m.queue, responses...)
}

// SetHandler installs the fallback answer function.
func (m *MockModel) SetHandler(fn func(req Request) (string, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handler = fn
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

func (m *MockModel) answer(req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]

		return next, nil
	}

	prompt := req.Prompt()
	if r, ok := m.responses[prompt]; ok {
		return r, nil
	}

	if m.handler != nil {
		return m.handler(req)
	}

	return fmt.Sprintf("Mock response to: %s", prompt), nil
}

// Generate implements Model; emits optional streaming chunks then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}

		full, err := m.answer(req)
		if err != nil {
			errCh <- err
			return
		}

		if req.Stream {
			for _, chunk := range strings.SplitAfter(full, "\n") {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: chunk}:
				}
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Text: full, FinishReason: "stop"}:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
