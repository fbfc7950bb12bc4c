package gqlperm_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/gqlperm"
)

func TestBackendErrorMatching(t *testing.T) {
	cause := errors.New("connection refused")
	_, err := gqlperm.FilterResponse(t.Context(), &failingSubject{err: cause}, &Expense{ID: 1})
	require.Error(t, err)

	assert.ErrorIs(t, err, gqlperm.ErrBackend)
	assert.ErrorIs(t, err, cause)
	assert.True(t, gqlperm.IsBackendError(err))

	// Wrapping preserves matching.
	wrapped := fmt.Errorf("filtering response: %w", err)
	assert.True(t, gqlperm.IsBackendError(wrapped))
	assert.ErrorIs(t, wrapped, gqlperm.ErrBackend)
}

func TestBackendErrorMessage(t *testing.T) {
	cause := errors.New("boom")
	_, err := gqlperm.FilterResponse(t.Context(), &failingSubject{err: cause}, &Expense{ID: 1})
	require.Error(t, err)

	assert.Contains(t, err.Error(), `"tests.view_expense"`)
	assert.Contains(t, err.Error(), "tests.Expense")
	assert.Contains(t, err.Error(), "boom")
}

func TestIsBackendErrorNonMatches(t *testing.T) {
	assert.False(t, gqlperm.IsBackendError(nil))
	assert.False(t, gqlperm.IsBackendError(errors.New("other")))
	assert.False(t, gqlperm.IsBackendError(gqlperm.ErrNoSubject))
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "tests.Expense", gqlperm.Type{App: "tests", Name: "Expense"}.String())
	assert.False(t, gqlperm.Type{}.Valid())
	assert.True(t, gqlperm.Type{Name: "Expense"}.Valid())
}
