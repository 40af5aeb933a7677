package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/internal/testutil"
)

func newManager(t *testing.T, optFns ...func(o *Options)) (*Manager, *core.DesignPlan) {
	t.Helper()

	plan := testutil.GreetingPlan()
	m, err := New(t.TempDir(), PermissionsFromPlan(plan), optFns...)
	require.NoError(t, err)
	require.NoError(t, m.InitStructure(context.Background(), plan.RepoStructure))

	return m, plan
}

func TestInitStructure(t *testing.T) {
	m, plan := newManager(t)
	ctx := context.Background()

	for _, f := range plan.AllowedPaths() {
		assert.True(t, m.Exists(f), f)
		assert.True(t, m.IsPlaceholder(f), f)
	}

	log, err := m.Log(ctx)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, StructureCommitMessage, log[0].Message)
	assert.ElementsMatch(t, plan.AllowedPaths(), log[0].Paths)
	assert.NotEmpty(t, log[0].Digest)

	// Re-initializing an unchanged tree is a no-op commit.
	require.NoError(t, m.InitStructure(ctx, plan.RepoStructure))
	log, err = m.Log(ctx)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestInitStructure_RoundTrip(t *testing.T) {
	files := []string{"a.py", "pkg/b.py", "pkg/sub/c.py", "docs/readme.md"}
	tree := testutil.BuildTree(files...)

	m, err := New(t.TempDir(), NewPermissionTable(core.FlattenTree(tree), nil))
	require.NoError(t, err)
	require.NoError(t, m.InitStructure(context.Background(), tree))

	scanned, err := m.scan()
	require.NoError(t, err)

	var got []string
	for p := range scanned {
		got = append(got, p)
	}

	assert.ElementsMatch(t, files, got)
	assert.ElementsMatch(t, files, m.Permissions().Global())
}

func TestInitStructure_DotSegments(t *testing.T) {
	tree := []core.RepoNode{
		{Path: "./main.py", Type: core.NodeFile},
		{Path: "./pkg", Type: core.NodeDir, Children: []core.RepoNode{
			{Path: "./b.py", Type: core.NodeFile},
		}},
	}
	perms := NewPermissionTable(core.FlattenTree(tree), map[string][]string{"Dev-1": {"./main.py"}})

	m, err := New(t.TempDir(), perms)
	require.NoError(t, err)
	require.NoError(t, m.InitStructure(context.Background(), tree))

	assert.True(t, m.IsPlaceholder("main.py"))
	assert.True(t, m.IsPlaceholder("pkg/b.py"))
	assert.NoError(t, m.Write("main.py", "print('hi')\n", "Dev-1"))
	assert.NoError(t, m.Write("./main.py", "print('hi')\n", "Dev-1"))
}

func TestWrite_PermissionProperty(t *testing.T) {
	m, _ := newManager(t)

	cases := []struct {
		path, owner string
		ok          bool
	}{
		{"main.py", "Dev-1", true},
		{"main.py", "", true},
		{"main.py", "Dev-2", false},
		{"app/utils.py", "Dev-2", true},
		{"app/utils.py", "Dev-1", false},
		{"undeclared.py", "", false},
		{"undeclared.py", "Dev-1", false},
		{"tests/test_main.py", "Dev-1", false},
		{"tests/test_main.py", "", true},
	}

	for _, tc := range cases {
		before, _ := m.Read(tc.path)

		err := m.Write(tc.path, "x = 1\n", tc.owner)
		if tc.ok {
			assert.NoError(t, err, "%s/%s", tc.path, tc.owner)
			continue
		}

		assert.ErrorIs(t, err, core.ErrPermissionDenied, "%s/%s", tc.path, tc.owner)

		after, _ := m.Read(tc.path)
		assert.Equal(t, before, after, "rejected write must not mutate %s", tc.path)
	}

	assert.False(t, m.Exists("undeclared.py"))
}

func TestCommit_MessageAndAuditTrail(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.Write("app/utils.py", "def greet(name):\n    return name\n", "Dev-2"))

	rec, err := core.NewAuditRecord("app/utils.py", core.ChangeCreate, "initial implementation", nil)
	require.NoError(t, err)
	rec.FunctionsAdded = []core.FuncBrief{{Name: "greet", Signature: "def greet(name):"}}

	c, err := m.Commit(ctx, "app/utils.py", rec, "Dev-2")
	require.NoError(t, err)
	assert.Equal(t, 2, c.LinesAdded)
	assert.Equal(t, 0, c.LinesRemoved)
	assert.Contains(t, c.Message, "[Dev-2] update app/utils.py\nUPDATE_REASON={")

	require.NoError(t, m.Write("app/utils.py", "def greet(name):\n    return 'Hello, ' + name\n", "Dev-2"))

	rec2, err := core.NewAuditRecord("app/utils.py", core.ChangeModify, "fix greeting", nil)
	require.NoError(t, err)

	c2, err := m.Commit(ctx, "app/utils.py", rec2, "Dev-2")
	require.NoError(t, err)
	assert.Equal(t, 1, c2.LinesAdded)
	assert.Equal(t, 1, c2.LinesRemoved)

	trail, err := m.AuditTrail(ctx)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "Dev-2", trail[0].Agent)
	assert.Equal(t, core.ChangeCreate, trail[0].Record.ChangeType)
	assert.Equal(t, "greet", trail[0].Record.FunctionsAdded[0].Name)
	assert.Equal(t, core.ChangeModify, trail[1].Record.ChangeType)
	assert.Equal(t, "fix greeting", trail[1].Record.Rationale)
}

func TestCommit_Rejections(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	bad := core.AuditRecord{FilePath: "main.py", ChangeType: "rename", Rationale: "x", RelatedFilesBriefUsed: []string{}}
	_, err := m.Commit(ctx, "main.py", bad, "Dev-1")
	assert.ErrorIs(t, err, core.ErrSchema)

	mismatch, err := core.NewAuditRecord("app/utils.py", core.ChangeCreate, "x", nil)
	require.NoError(t, err)
	_, err = m.Commit(ctx, "main.py", mismatch, "Dev-1")
	assert.ErrorIs(t, err, core.ErrSchema)

	undeclared, err := core.NewAuditRecord("evil.py", core.ChangeCreate, "x", nil)
	require.NoError(t, err)
	_, err = m.Commit(ctx, "evil.py", undeclared, "Dev-1")
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	log, err := m.Log(ctx)
	require.NoError(t, err)
	assert.Len(t, log, 1)

	for _, c := range log {
		assert.NotContains(t, c.Paths, "evil.py")
	}
}

func TestCommitAll(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	c, err := m.CommitAll(ctx, "noop")
	require.NoError(t, err)
	assert.Nil(t, c)

	require.NoError(t, m.Write("tests/test_main.py", "def test_x():\n    pass\n", ""))
	require.NoError(t, os.MkdirAll(filepath.Join(m.Root(), "__pycache__"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(m.Root(), "__pycache__", "main.cpython-311.pyc"), []byte{1}, 0o644))

	c, err = m.CommitAll(ctx, "test: add suite")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, []string{"tests/test_main.py"}, c.Paths)
	assert.Equal(t, 2, c.LinesAdded)

	require.NoError(t, os.WriteFile(filepath.Join(m.Root(), "stray.py"), []byte("x"), 0o644))
	_, err = m.CommitAll(ctx, "should fail")
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
}

func TestParseCommitMessage(t *testing.T) {
	rec, err := core.NewAuditRecord("main.py", core.ChangeModify, "r", []string{"app/utils.py"})
	require.NoError(t, err)

	msg, err := FormatCommitMessage("Dev-1", "main.py", rec)
	require.NoError(t, err)

	entry, err := ParseCommitMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, "Dev-1", entry.Agent)
	assert.Equal(t, "main.py", entry.Path)
	assert.Equal(t, rec, entry.Record)

	_, err = ParseCommitMessage(StructureCommitMessage)
	assert.ErrorIs(t, err, ErrNotAuditCommit)

	_, err = ParseCommitMessage("[Dev-1] update main.py\nUPDATE_REASON={broken")
	assert.Error(t, err)
}

func TestManager_SQLiteHistory(t *testing.T) {
	root := t.TempDir()

	hist, err := OpenSQLiteHistory(filepath.Join(root, StateDir, "history.db"))
	require.NoError(t, err)
	defer hist.Close()

	plan := testutil.GreetingPlan()
	m, err := New(root, PermissionsFromPlan(plan), func(o *Options) { o.History = hist })
	require.NoError(t, err)
	require.NoError(t, m.InitStructure(context.Background(), plan.RepoStructure))

	require.NoError(t, m.Write("main.py", "print('hi')\n", "Dev-1"))
	rec, err := core.NewAuditRecord("main.py", core.ChangeCreate, "initial", nil)
	require.NoError(t, err)
	_, err = m.Commit(context.Background(), "main.py", rec, "Dev-1")
	require.NoError(t, err)

	log, err := m.Log(context.Background())
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, StructureCommitMessage, log[0].Message)
	assert.Equal(t, []string{"main.py"}, log[1].Paths)
	assert.Equal(t, 1, log[1].LinesAdded)

	trail, err := AuditTrail(log)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "main.py", trail[0].Path)
}
