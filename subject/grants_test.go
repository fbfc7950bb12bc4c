package subject_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/gqlperm"
	"github.com/syssam/gqlperm/subject"
)

const rolesYAML = `
roles:
  accountant:
    permissions:
      - tests.view_project
      - tests.view_expense
  auditor:
    permissions:
      - tests.view_project
    objects:
      tests.view_expense: [1, 7]
  visitor: {}
`

type expense struct {
	ID int
}

func (e *expense) EntityType() gqlperm.Type { return gqlperm.Type{App: "tests", Name: "Expense"} }
func (e *expense) EntityID() any            { return e.ID }

func TestParseGrants(t *testing.T) {
	ctx := context.Background()
	roles, err := subject.ParseGrants([]byte(rolesYAML))
	require.NoError(t, err)
	require.Len(t, roles, 3)

	ok, err := roles["accountant"].HasPermission(ctx, "tests.view_expense")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = roles["auditor"].HasPermission(ctx, "tests.view_expense")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = roles["auditor"].HasObjectPermission(ctx, "tests.view_expense", &expense{ID: 7})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = roles["auditor"].HasObjectPermission(ctx, "tests.view_expense", &expense{ID: 2})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = roles["visitor"].HasPermission(ctx, "tests.view_project")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseGrantsInvalidYAML(t *testing.T) {
	_, err := subject.ParseGrants([]byte("roles: ["))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing grants")
}

func TestLoadGrants(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rolesYAML), 0o600))

	roles, err := subject.LoadGrants(path)
	require.NoError(t, err)
	assert.Contains(t, roles, "accountant")

	_, err = subject.LoadGrants(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
