package subject_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/gqlperm"
	"github.com/syssam/gqlperm/subject"
)

type note struct {
	ID uuid.UUID
}

func (n *note) EntityType() gqlperm.Type { return gqlperm.Type{App: "notes", Name: "Note"} }
func (n *note) EntityID() any            { return n.ID }

type badID struct{}

func (b *badID) EntityType() gqlperm.Type { return gqlperm.Type{App: "x", Name: "Bad"} }
func (b *badID) EntityID() any            { return []int{1} }

func TestStaticBlanket(t *testing.T) {
	ctx := context.Background()
	s := subject.New("tests.view_project", "auth.view_user")

	ok, err := s.HasPermission(ctx, "tests.view_project")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasPermission(ctx, "tests.view_expense")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticObjectGrants(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	s := subject.New().GrantObject("notes.view_note", id)

	ok, err := s.HasObjectPermission(ctx, "notes.view_note", &note{ID: id})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasObjectPermission(ctx, "notes.view_note", &note{ID: uuid.New()})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.HasObjectPermission(ctx, "other.view_note", &note{ID: id})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticNonComparableIdentity(t *testing.T) {
	s := subject.New().GrantObject("x.view_bad", 1)

	// A non-comparable identity key can never match a grant, but must not
	// panic either.
	ok, err := s.HasObjectPermission(context.Background(), "x.view_bad", &badID{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnonymousHasNoGrants(t *testing.T) {
	ctx := context.Background()
	s := subject.Anonymous()

	ok, err := s.HasPermission(ctx, "tests.view_project")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticWithFilter(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	s := subject.New().GrantObject("notes.view_note", id)

	out, err := gqlperm.FilterResponse(ctx, s, []*note{{ID: id}, {ID: uuid.New()}})
	require.NoError(t, err)
	require.Len(t, out.([]*note), 1)
	assert.Equal(t, id, out.([]*note)[0].ID)
}
