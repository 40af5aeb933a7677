package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuditRecord(t *testing.T) {
	rec, err := NewAuditRecord("main.py", ChangeCreate, "initial", nil)
	require.NoError(t, err)
	assert.Equal(t, ChangeCreate, rec.ChangeType)
	assert.NotNil(t, rec.FunctionsAdded)
	assert.NotNil(t, rec.RelatedFilesBriefUsed)

	payload, err := rec.Payload()
	require.NoError(t, err)
	assert.Equal(t, "main.py", payload["file_path"])
	assert.Equal(t, "create", payload["change_type"])
	assert.Equal(t, []any{}, payload["classes_removed"])
}

func TestNewAuditRecord_RejectsInvalid(t *testing.T) {
	_, err := NewAuditRecord("main.py", ChangeKind("delete"), "", nil)
	assert.Error(t, err)

	_, err = NewAuditRecord("  ", ChangeModify, "", nil)
	assert.Error(t, err)
}

func TestSchemaErrorUnwrap(t *testing.T) {
	var err error = &SchemaError{Kind: SchemaDesignPlan, Tier: TierSemantic, Issues: []string{"a", "b"}}
	assert.True(t, errors.Is(err, ErrSchema))
	assert.True(t, IsSemantic(err))
	assert.Contains(t, err.Error(), "a; b")

	err = &PermissionError{Path: "x.py", Owner: "Dev-1", Reason: "not owned"}
	assert.True(t, errors.Is(err, ErrPermissionDenied))
	assert.False(t, IsSemantic(err))
}

