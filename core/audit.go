package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChangeKind classifies a write in the audit trail.
type ChangeKind string

const (
	// ChangeCreate marks the first real content written to a path.
	ChangeCreate ChangeKind = "create"
	// ChangeModify marks a rewrite of existing content.
	ChangeModify ChangeKind = "modify"
)

// Valid reports whether k is one of the known change kinds.
func (k ChangeKind) Valid() bool {
	return k == ChangeCreate || k == ChangeModify
}

// AuditRecord is the rationale and interface diff attached to every commit.
// Records are treated as immutable once committed.
type AuditRecord struct {
	FilePath              string       `json:"file_path"`
	ChangeType            ChangeKind   `json:"change_type"`
	FunctionsAdded        []FuncBrief  `json:"functions_added"`
	FunctionsModified     []FuncBrief  `json:"functions_modified"`
	FunctionsRemoved      []FuncBrief  `json:"functions_removed"`
	ClassesAdded          []ClassBrief `json:"classes_added"`
	ClassesModified       []ClassBrief `json:"classes_modified"`
	ClassesRemoved        []ClassBrief `json:"classes_removed"`
	Rationale             string       `json:"rationale"`
	RelatedFilesBriefUsed []string     `json:"related_files_brief_used"`
}

// NewAuditRecord builds a record with empty (non-nil) diff lists. It rejects
// an unknown change kind and an empty path.
func NewAuditRecord(filePath string, kind ChangeKind, rationale string, briefsUsed []string) (AuditRecord, error) {
	if strings.TrimSpace(filePath) == "" {
		return AuditRecord{}, fmt.Errorf("audit record: empty file path")
	}

	if !kind.Valid() {
		return AuditRecord{}, fmt.Errorf("audit record: invalid change kind %q", kind)
	}

	if briefsUsed == nil {
		briefsUsed = []string{}
	}

	return AuditRecord{
		FilePath:              filePath,
		ChangeType:            kind,
		FunctionsAdded:        []FuncBrief{},
		FunctionsModified:     []FuncBrief{},
		FunctionsRemoved:      []FuncBrief{},
		ClassesAdded:          []ClassBrief{},
		ClassesModified:       []ClassBrief{},
		ClassesRemoved:        []ClassBrief{},
		Rationale:             rationale,
		RelatedFilesBriefUsed: briefsUsed,
	}, nil
}

// Payload converts the record into the generic map form consumed by the
// schema validator.
func (r AuditRecord) Payload() (map[string]any, error) {
	return ToPayload(r)
}

// ToPayload round-trips a typed value through JSON into a generic map.
func ToPayload(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// FromPayload decodes a generic map into a typed value.
func FromPayload(payload map[string]any, v any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return json.Unmarshal(b, v)
}
