package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchema is the sentinel for any structural or semantic validation failure.
	ErrSchema = errors.New("schema validation failed")
	// ErrPermissionDenied is returned for writes outside the declared scope.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTimeout is returned when a mailbox wait exceeds its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrNoViableProposal is returned when every proposer failed.
	ErrNoViableProposal = errors.New("no viable proposal")
	// ErrInvalidSelection is returned when the selector answer cannot be used.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrRoundTimeout is returned when a round barrier is not satisfied in time.
	ErrRoundTimeout = errors.New("round timeout")
	// ErrStructuredGenerationFailed is returned when repair retries are exhausted.
	ErrStructuredGenerationFailed = errors.New("structured generation failed")
	// ErrCallLimit is returned once the generation call budget is spent.
	ErrCallLimit = errors.New("generation call limit exceeded")
)

// SchemaKind names the fixed schemas payloads are validated against.
type SchemaKind string

const (
	// SchemaDesignPlan validates proposer output.
	SchemaDesignPlan SchemaKind = "design_plan"
	// SchemaAuditRecord validates commit metadata.
	SchemaAuditRecord SchemaKind = "audit_record"
	// SchemaSelection validates the selector answer.
	SchemaSelection SchemaKind = "selection"
	// SchemaFileMap validates multi-file generation output.
	SchemaFileMap SchemaKind = "file_map"
)

// SchemaTier distinguishes shape errors from cross-field errors, so callers
// can decide whether a repair retry is worthwhile.
type SchemaTier string

const (
	// TierStructural covers required fields, types, enums and path safety.
	TierStructural SchemaTier = "structural"
	// TierSemantic covers coverage, uniqueness and allowed technology.
	TierSemantic SchemaTier = "semantic"
)

// SchemaError reports every issue found in one validation tier.
type SchemaError struct {
	Kind   SchemaKind
	Tier   SchemaTier
	Issues []string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s %s validation failed: %s", e.Kind, e.Tier, strings.Join(e.Issues, "; "))
}

// Unwrap returns ErrSchema.
func (e *SchemaError) Unwrap() error { return ErrSchema }

// IsSemantic reports whether err is a semantic-tier schema error.
func IsSemantic(err error) bool {
	var se *SchemaError
	return errors.As(err, &se) && se.Tier == TierSemantic
}

// PermissionError describes a rejected write.
type PermissionError struct {
	Path   string
	Owner  string
	Reason string
}

// Error implements the error interface.
func (e *PermissionError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("permission denied: %s: %s", e.Path, e.Reason)
	}

	return fmt.Sprintf("permission denied: %s (owner %s): %s", e.Path, e.Owner, e.Reason)
}

// Unwrap returns ErrPermissionDenied.
func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }
