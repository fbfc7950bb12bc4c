// Package subject provides ready-made implementations of the
// gqlperm.Subject interface.
//
// Static holds grants in memory and answers checks without I/O. It is the
// right choice for tests, fixtures, and applications that load the full
// grant set up front (for example from a roles file, see ParseGrants).
// Applications backed by a relational grant store should use package
// permsql instead.
package subject

import (
	"context"
	"reflect"

	"github.com/syssam/gqlperm"
)

// Static is an in-memory subject with a fixed set of blanket and
// object-level grants. The zero value holds no grants; Grant and
// GrantObject return the receiver so grants can be chained:
//
//	s := subject.New("tests.view_project").
//	    GrantObject("tests.view_expense", 1, 7)
//
// Static answers checks from memory only and never returns an error.
type Static struct {
	perms   map[string]struct{}
	objects map[string]map[any]struct{}
}

// New returns a Static subject holding the given blanket permissions.
func New(permissions ...string) *Static {
	s := &Static{
		perms:   make(map[string]struct{}),
		objects: make(map[string]map[any]struct{}),
	}
	return s.Grant(permissions...)
}

// Anonymous returns a subject with no grants at all. It goes through the
// same two-step check as any other subject; nothing is visible unless
// grants are added.
func Anonymous() *Static {
	return New()
}

// Grant adds blanket permissions to the subject.
func (s *Static) Grant(permissions ...string) *Static {
	for _, p := range permissions {
		s.perms[p] = struct{}{}
	}
	return s
}

// GrantObject adds an object-level grant for the given permission and
// entity identity keys.
func (s *Static) GrantObject(permission string, ids ...any) *Static {
	m := s.objects[permission]
	if m == nil {
		m = make(map[any]struct{})
		s.objects[permission] = m
	}
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return s
}

// HasPermission reports whether the blanket permission was granted.
func (s *Static) HasPermission(_ context.Context, permission string) (bool, error) {
	_, ok := s.perms[permission]
	return ok, nil
}

// HasObjectPermission reports whether the permission was granted on the
// specific entity instance, matched by identity key.
func (s *Static) HasObjectPermission(_ context.Context, permission string, e gqlperm.Entity) (bool, error) {
	m := s.objects[permission]
	if m == nil {
		return false, nil
	}
	id := e.EntityID()
	if id == nil || !reflect.TypeOf(id).Comparable() {
		return false, nil
	}
	_, ok := m[id]
	return ok, nil
}

var _ gqlperm.Subject = (*Static)(nil)
