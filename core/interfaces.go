package core

import (
	"context"
	"time"
)

// Generator is the generation boundary. Implementations own prompt transport
// and the repair-retry discipline for structured outputs.
type Generator interface {
	// GenerateText returns free-form text, typically one file of source.
	GenerateText(ctx context.Context, prompt string) (string, error)
	// GenerateStructured returns an object that passed structural validation
	// for kind, or fails with ErrStructuredGenerationFailed.
	GenerateStructured(ctx context.Context, prompt string, kind SchemaKind) (map[string]any, error)
	// GenerateFiles returns a path to content mapping.
	GenerateFiles(ctx context.Context, prompt string) (map[string]string, error)
}

// TestRunner is the test-execution boundary. A timeout is reported as a
// Failure with an empty path, never as an error.
type TestRunner interface {
	RunTests(ctx context.Context, repoRoot, command string) (RunResult, error)
}

// Document is one retrieval hit.
type Document struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Retriever is the optional retrieval boundary. Query never fails; an
// unavailable backend yields an empty list.
type Retriever interface {
	Query(ctx context.Context, text string) []Document
}

// BriefStore holds the latest InterfaceBrief per path. Each path is written by
// exactly one worker; readers get copies.
type BriefStore interface {
	Put(brief InterfaceBrief)
	Get(path string) (InterfaceBrief, bool)
}

// Bus is the topic-keyed mailbox contract shared by the blocking and the
// cooperative implementations.
type Bus interface {
	// Emit appends payload to the topic mailbox. It never blocks.
	Emit(topic string, payload any)
	// Take removes the oldest payload, waiting up to timeout (<= 0 waits
	// forever). It returns ErrTimeout when the deadline passes.
	Take(ctx context.Context, topic string, timeout time.Duration) (any, error)
	// WaitForCount consumes exactly expected payloads and reports true, or
	// reports false once timeout passes having consumed fewer. The consumed
	// payloads are gone: it is a draining barrier, not a condition.
	WaitForCount(ctx context.Context, topic string, expected int, timeout time.Duration) bool
	// Len reports the number of queued payloads.
	Len(topic string) int
}
