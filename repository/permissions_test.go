package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/internal/testutil"
)

func TestPermissionTable_Check(t *testing.T) {
	perms := PermissionsFromPlan(testutil.GreetingPlan())

	assert.NoError(t, perms.Check("main.py", "Dev-1"))
	assert.NoError(t, perms.Check("main.py", ""))
	assert.ErrorIs(t, perms.Check("main.py", "Dev-2"), core.ErrPermissionDenied)
	assert.ErrorIs(t, perms.Check("main.py", "Nobody"), core.ErrPermissionDenied)
	assert.ErrorIs(t, perms.Check("evil.py", ""), core.ErrPermissionDenied)
	assert.ErrorIs(t, perms.Check("tests/test_main.py", core.QAOwner), core.ErrPermissionDenied)

	assert.Equal(t, []string{"app/utils.py", "main.py", "tests/test_main.py", "tests/test_utils.py"}, perms.Global())
	assert.Equal(t, []string{"main.py"}, perms.Owned("Dev-1"))
}

func TestPermissionTable_Grant(t *testing.T) {
	perms := PermissionsFromPlan(testutil.GreetingPlan())

	require.NoError(t, perms.Grant(core.QAOwner, "tests/test_main.py", "tests/test_utils.py"))
	assert.NoError(t, perms.Check("tests/test_utils.py", core.QAOwner))

	err := perms.Grant(core.QAOwner, "tests/test_extra.py")
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
	assert.Equal(t, []string{"tests/test_main.py", "tests/test_utils.py"}, perms.Owned(core.QAOwner))
}

func TestPermissionTable_CleansPaths(t *testing.T) {
	perms := NewPermissionTable(
		[]string{"./main.py", "app/./utils.py"},
		map[string][]string{"Dev-1": {"./main.py"}},
	)

	assert.NoError(t, perms.Check("main.py", "Dev-1"))
	assert.NoError(t, perms.Check("./main.py", "Dev-1"))
	assert.NoError(t, perms.Check("app/utils.py", ""))
	require.NoError(t, perms.Grant("Dev-2", "./app/utils.py"))
	assert.NoError(t, perms.Check("app/utils.py", "Dev-2"))
	assert.Equal(t, []string{"app/utils.py", "main.py"}, perms.Global())
	assert.Equal(t, []string{"main.py"}, perms.Owned("Dev-1"))
}

func TestNormalizePath(t *testing.T) {
	p, err := NormalizePath("./app/utils.py")
	require.NoError(t, err)
	assert.Equal(t, "app/utils.py", p)

	p, err = NormalizePath(`app\utils.py`)
	require.NoError(t, err)
	assert.Equal(t, "app/utils.py", p)

	for _, bad := range []string{"", ".", "/etc/passwd", "../x.py", "a/../../x", "a b.py"} {
		_, err := NormalizePath(bad)
		assert.ErrorIs(t, err, core.ErrPermissionDenied, bad)
	}
}
