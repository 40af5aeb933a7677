package repository

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/internal/testutil"
)

func TestManager_GitHistory(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	ctx := context.Background()
	root := t.TempDir()

	hist, err := NewGitHistory(ctx, root)
	require.NoError(t, err)

	plan := testutil.GreetingPlan()
	m, err := New(root, PermissionsFromPlan(plan), func(o *Options) { o.History = hist })
	require.NoError(t, err)
	require.NoError(t, m.InitStructure(ctx, plan.RepoStructure))

	require.NoError(t, m.Write("main.py", "print('hi')\nprint('bye')\n", "Dev-1"))
	rec, err := core.NewAuditRecord("main.py", core.ChangeCreate, "initial", nil)
	require.NoError(t, err)

	c, err := m.Commit(ctx, "main.py", rec, "Dev-1")
	require.NoError(t, err)
	assert.Len(t, c.ID, 40)

	log, err := m.Log(ctx)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, "", log[0].Agent)
	assert.Equal(t, StructureCommitMessage, log[0].Message)
	assert.Equal(t, "Dev-1", log[1].Agent)
	assert.Equal(t, []string{"main.py"}, log[1].Paths)
	assert.Equal(t, 2, log[1].LinesAdded)

	trail, err := AuditTrail(log)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "initial", trail[0].Record.Rationale)
}
