// Package gqlperm provides post-execution view-authorization filtering for
// GraphQL response trees.
//
// The filter runs after a query has been fully resolved and before the
// response is serialized. It walks the resolved value graph, locates every
// embedded entity instance at any depth, and removes the instances the
// requesting subject is not allowed to view. Structure is preserved:
// single-valued fields become null, list elements are removed without null
// placeholders, and connection edges are dropped whole.
//
// # Core Concepts
//
// The package is built around three abstractions:
//
//   - Entity: a persisted model instance appearing in a response tree,
//     identified by its concrete Type and an identity key
//   - Subject: the requesting caller, answering blanket (model-level) and
//     object-level permission checks
//   - Filter: one tree walk's worth of state, including the per-walk
//     permission caches
//
// # Permission Model
//
// For every entity of type T the subject needs the view permission
// "<app>.view_<lowercase name>". The check is two-step: if the subject holds
// the blanket permission for T, every instance of T is visible and no
// object-level checks are made for T in this walk. Otherwise each instance is
// checked individually against the subject's object-level grants. Anonymous
// subjects go through the same two steps; there is no bypass.
//
// # Usage
//
//	filtered, err := gqlperm.FilterResponse(ctx, subject, resolved)
//	if err != nil {
//	    return nil, err // backend failure, fail closed
//	}
//
// Applications embedding the filter in a gqlgen server should use the
// handler extension in contrib/gqlgen instead of calling FilterResponse
// directly.
//
// # Scope
//
// The filter does not restrict which queries a caller may issue, does not
// rewrite SQL, and does not recompute pagination metadata after removing
// connection edges. Verdicts are never cached across requests. Schemas
// relying on Relay global object identification are not supported: the
// walker recognizes entities by their Go values, not by decoding global IDs.
package gqlperm

import (
	"context"
	"fmt"
	"strings"
)

// Type identifies a persisted entity class. App is the owning application
// label and Name the class name, e.g. {App: "expenses", Name: "Expense"}.
type Type struct {
	App  string
	Name string
}

// String returns "<app>.<name>".
func (t Type) String() string {
	return t.App + "." + t.Name
}

// Valid reports whether the type carries a resolvable permission name.
// Values whose type is not valid are never treated as entities.
func (t Type) Valid() bool {
	return t.Name != ""
}

// ViewPermission derives the canonical blanket view permission name for a
// type: "<app>.view_<lowercase name>". The convention is fixed and matches
// the "<app_label>.<action>_<model_name>" permission naming used by
// relational permission backends.
func ViewPermission(t Type) string {
	return fmt.Sprintf("%s.view_%s", t.App, strings.ToLower(t.Name))
}

// Entity is implemented by model values that are subject to view
// authorization. Any value in a response tree that implements Entity is
// checked; everything else passes through untouched.
type Entity interface {
	// EntityType returns the concrete type of the instance. Types using
	// table-per-subclass inheritance must implement EntityType on each
	// concrete type so that the permission name is derived from the
	// concrete class, not the declared field type.
	EntityType() Type

	// EntityID returns the identity key (primary key) of the instance.
	// It is used for object-level permission checks and for memoizing
	// repeated occurrences of the same instance within one walk.
	EntityID() any
}

// Subject represents the requesting caller. Implementations answer
// permission checks against the application's grant store. Both methods may
// perform I/O; errors are propagated by the filter and never downgraded to
// a deny or an allow.
type Subject interface {
	// HasPermission reports whether the subject holds the blanket
	// (model-level) permission with the given name.
	HasPermission(ctx context.Context, permission string) (bool, error)

	// HasObjectPermission reports whether the subject holds the permission
	// with the given name on the specific entity instance.
	HasObjectPermission(ctx context.Context, permission string, entity Entity) (bool, error)
}

// subjectCtxKey is the context key for storing the subject.
type subjectCtxKey struct{}

// WithSubject returns a new context with the subject attached.
func WithSubject(ctx context.Context, subject Subject) context.Context {
	return context.WithValue(ctx, subjectCtxKey{}, subject)
}

// SubjectFromContext retrieves the subject from the context.
// Returns nil if no subject is present.
func SubjectFromContext(ctx context.Context) Subject {
	s, _ := ctx.Value(subjectCtxKey{}).(Subject)
	return s
}
