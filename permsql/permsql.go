// Package permsql adapts a relational permission-grant store to the
// gqlperm.Subject interface through database/sql.
//
// The default queries assume two tables shaped like the usual auth-app
// layout: a blanket grant table keyed by (user, permission) and an object
// grant table keyed by (user, permission, object id). Both queries are
// configurable, so any schema that can answer the two checks with a single
// count works, whatever the driver:
//
//	backend := permsql.New(db,
//	    permsql.WithBlanketQuery(`
//	        SELECT COUNT(1) FROM role_permissions rp
//	        JOIN user_roles ur ON ur.role_id = rp.role_id
//	        WHERE ur.user_id = ? AND rp.permission = ?`),
//	)
//	subject := backend.Subject(userID)
//	filtered, err := gqlperm.FilterResponse(ctx, subject, resolved)
//
// Grant data is read fresh on every check; the per-walk caching in gqlperm
// already bounds the query count for one response, and caching across
// requests would go stale against live grant changes.
package permsql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/syssam/gqlperm"
)

// Default grant queries. Each must return a single count row; a count
// above zero means the grant exists. Blanket queries receive
// (user id, permission name); object queries receive
// (user id, permission name, object id).
const (
	DefaultBlanketQuery = `SELECT COUNT(1) FROM auth_permissions WHERE user_id = ? AND permission = ?`
	DefaultObjectQuery  = `SELECT COUNT(1) FROM auth_object_permissions WHERE user_id = ? AND permission = ? AND object_id = ?`
)

// Backend answers permission checks against a SQL grant store. It is safe
// for concurrent use; all per-request state lives in the gqlperm.Filter,
// not here.
type Backend struct {
	db           *sql.DB
	blanketQuery string
	objectQuery  string
}

// Option configures a Backend.
type Option func(*Backend)

// WithBlanketQuery replaces the blanket grant query.
func WithBlanketQuery(query string) Option {
	return func(b *Backend) {
		b.blanketQuery = query
	}
}

// WithObjectQuery replaces the object grant query.
func WithObjectQuery(query string) Option {
	return func(b *Backend) {
		b.objectQuery = query
	}
}

// New returns a Backend reading grants from db.
func New(db *sql.DB, opts ...Option) *Backend {
	b := &Backend{
		db:           db,
		blanketQuery: DefaultBlanketQuery,
		objectQuery:  DefaultObjectQuery,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subject returns the subject for one user. The user id is passed to the
// grant queries as their first argument.
func (b *Backend) Subject(userID any) *Subject {
	return &Subject{backend: b, userID: userID}
}

// Subject answers the two gqlperm permission checks for one user by
// querying the backend's grant tables.
type Subject struct {
	backend *Backend
	userID  any
}

// UserID returns the user id the subject was created for.
func (s *Subject) UserID() any {
	return s.userID
}

// HasPermission runs the blanket grant query.
func (s *Subject) HasPermission(ctx context.Context, permission string) (bool, error) {
	var n int
	err := s.backend.db.QueryRowContext(ctx, s.backend.blanketQuery, s.userID, permission).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("permsql: blanket check %q: %w", permission, err)
	}
	return n > 0, nil
}

// HasObjectPermission runs the object grant query. The entity's identity
// key is rendered with fmt.Sprint, matching a text object_id column; use
// WithObjectQuery for schemas with typed id columns.
func (s *Subject) HasObjectPermission(ctx context.Context, permission string, e gqlperm.Entity) (bool, error) {
	var n int
	id := fmt.Sprint(e.EntityID())
	err := s.backend.db.QueryRowContext(ctx, s.backend.objectQuery, s.userID, permission, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("permsql: object check %q on %s(%s): %w", permission, e.EntityType(), id, err)
	}
	return n > 0, nil
}

var _ gqlperm.Subject = (*Subject)(nil)
