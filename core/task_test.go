package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskConstructors(t *testing.T) {
	impl := ImplementTask("main.py", 0)
	assert.Equal(t, TaskImplement, impl.Kind)
	assert.Equal(t, "main.py", impl.Path)
	assert.Nil(t, impl.Diagnostic)
	assert.NotEmpty(t, impl.ID)

	failure := Failure{FilePath: "main.py", Message: "boom"}
	fix := FixTask("main.py", 2, failure)
	assert.Equal(t, TaskFix, fix.Kind)
	assert.Equal(t, 2, fix.Round)
	require.NotNil(t, fix.Diagnostic)

	failure.Message = "changed"
	assert.Equal(t, "boom", fix.Diagnostic.Message)

	exit := ExitTask()
	assert.Equal(t, TaskExit, exit.Kind)
	assert.NotEqual(t, impl.ID, exit.ID)

	assert.Equal(t, "fix", TaskFix.String())
	assert.Equal(t, "TaskKind(9)", TaskKind(9).String())
	assert.Equal(t, "dev_task:Dev-1", WorkerTopic("Dev-1"))
}

func TestCompletionFailed(t *testing.T) {
	assert.False(t, Completion{}.Failed())
	assert.True(t, Completion{Err: errors.New("x")}.Failed())
}

func TestErrorsUnwrapToSentinels(t *testing.T) {
	var err error = &SchemaError{Kind: SchemaDesignPlan, Tier: TierSemantic, Issues: []string{"a", "b"}}
	wrapped := fmt.Errorf("propose: %w", err)

	assert.ErrorIs(t, wrapped, ErrSchema)
	assert.True(t, IsSemantic(wrapped))
	assert.Equal(t, "design_plan semantic validation failed: a; b", err.Error())

	perm := &PermissionError{Path: "x.py", Owner: "Dev-2", Reason: "not owned"}
	assert.ErrorIs(t, perm, ErrPermissionDenied)
	assert.Equal(t, "permission denied: x.py (owner Dev-2): not owned", perm.Error())
	assert.False(t, IsSemantic(perm))
}

func TestCallLimiter(t *testing.T) {
	l := NewCallLimiter(2)
	require.NoError(t, l.Increment())
	require.NoError(t, l.Increment())
	assert.Equal(t, 0, l.Remaining())

	err := l.Increment()
	assert.ErrorIs(t, err, ErrCallLimit)
	assert.Equal(t, 3, l.Count())

	unlimited := NewCallLimiter(0)
	for i := 0; i < 10; i++ {
		require.NoError(t, unlimited.Increment())
	}
	assert.Equal(t, -1, unlimited.Remaining())
}
