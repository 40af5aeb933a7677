package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModel_AnswerOrder(t *testing.T) {
	m := NewMockModel("mock")
	m.AddResponse("hello", "canned")
	m.Enqueue("first", "second")
	m.SetHandler(func(req Request) (string, error) { return "handled: " + req.Prompt(), nil })

	ctx := context.Background()

	for _, want := range []string{"first", "second", "canned"} {
		got, _, err := Complete(ctx, m, UserRequest("hello", false))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, _, err := Complete(ctx, m, UserRequest("other", true))
	require.NoError(t, err)
	assert.Equal(t, "handled: other", got)

	reqs := m.Requests()
	require.Len(t, reqs, 4)
	assert.True(t, reqs[3].JSON)
}

func TestMockModel_Streaming(t *testing.T) {
	m := NewMockModel("mock")
	m.Enqueue("line one\nline two\n")

	req := UserRequest("x", false)
	req.Stream = true

	respCh, errCh := m.Generate(context.Background(), req)

	var partials, finals int

	for r := range respCh {
		if r.Partial {
			partials++
		} else {
			finals++
			assert.Equal(t, "line one\nline two\n", r.Text)
		}
	}

	require.NoError(t, <-errCh)
	assert.Equal(t, 3, partials)
	assert.Equal(t, 1, finals)
}

func TestComplete_Errors(t *testing.T) {
	m := NewMockModel("mock")

	_, _, err := Complete(context.Background(), m, Request{})
	assert.Error(t, err)

	boom := errors.New("boom")
	m.SetHandler(func(Request) (string, error) { return "", boom })

	_, _, err = Complete(context.Background(), m, UserRequest("x", false))
	assert.ErrorIs(t, err, boom)

	m.SetHandler(func(Request) (string, error) { return "", nil })

	_, _, err = Complete(context.Background(), m, UserRequest("x", false))
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestRequest_Prompt(t *testing.T) {
	req := Request{Messages: []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "answer"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleAssistant, Content: "again"},
	}}

	assert.Equal(t, "second", req.Prompt())
	assert.Empty(t, Request{}.Prompt())
}
