package gqlperm

import (
	"context"
	"reflect"
)

// Filter holds the state of one tree walk: the subject being authorized and
// the per-walk permission caches. A Filter is scoped to a single
// request/response cycle; construct a fresh one per request and discard it
// afterwards. It must never be shared across requests, since that would leak
// one subject's verdicts into another's context or go stale against live
// grant changes.
//
// A Filter is not safe for concurrent use.
type Filter struct {
	subject Subject

	// blanket memoizes the model-level verdict per entity type. Within one
	// walk the blanket check for a type is performed at most once.
	blanket map[Type]bool

	// object memoizes object-level verdicts for repeated occurrences of
	// the same instance. Distinct instances are always checked against the
	// backend individually.
	object map[objectKey]bool

	stats Stats
}

// objectKey identifies one entity instance within a walk.
type objectKey struct {
	typ Type
	id  any
}

// Stats counts the backend traffic and outcomes of one walk.
type Stats struct {
	// BlanketChecks is the number of blanket permission queries sent to
	// the backend.
	BlanketChecks int
	// ObjectChecks is the number of object-level permission queries sent
	// to the backend.
	ObjectChecks int
	// Denied is the number of entity occurrences removed from the tree.
	Denied int
}

// NewFilter returns a Filter for one walk on behalf of the given subject.
func NewFilter(subject Subject) *Filter {
	return &Filter{
		subject: subject,
		blanket: make(map[Type]bool),
		object:  make(map[objectKey]bool),
	}
}

// FilterResponse walks a fully resolved response value and returns its
// filtered counterpart in one fresh walk. If the top-level value is itself
// an entity the subject may not view, the result is nil.
//
// Callers filtering several top-level fields of the same request should
// construct one Filter and call its Value method per field so the
// permission caches are shared across the whole response.
func FilterResponse(ctx context.Context, subject Subject, v any) (any, error) {
	return NewFilter(subject).Value(ctx, v)
}

// Value filters one resolved value tree. The returned value has every
// unauthorized entity removed: dropped from sequences and connection edges,
// nulled in single-valued positions. Values that are not entities and
// container shapes the walker does not recognize pass through unchanged.
//
// A backend failure aborts the walk with a BackendError; no partial verdict
// is substituted.
func (f *Filter) Value(ctx context.Context, v any) (any, error) {
	if f.subject == nil {
		return nil, ErrNoSubject
	}
	rv, res, err := f.walk(ctx, reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	if res == dropped {
		return nil, nil
	}
	if !rv.IsValid() {
		return v, nil
	}
	return rv.Interface(), nil
}

// Stats returns the counters accumulated so far in this walk.
func (f *Filter) Stats() Stats {
	return f.stats
}

// Authorized reports whether the subject may view the given entity. The
// decision is two-step: the blanket view permission for the entity's
// concrete type (memoized per walk), then an object-level check for the
// specific instance. A subject holding the blanket permission never incurs
// object-level checks for that type.
func (f *Filter) Authorized(ctx context.Context, e Entity) (bool, error) {
	t := e.EntityType()
	permission := ViewPermission(t)

	blanket, ok := f.blanket[t]
	if !ok {
		var err error
		blanket, err = f.subject.HasPermission(ctx, permission)
		if err != nil {
			return false, newBackendError(permission, t, err)
		}
		f.stats.BlanketChecks++
		f.blanket[t] = blanket
	}
	if blanket {
		return true, nil
	}

	key, cacheable := instanceKey(t, e.EntityID())
	if cacheable {
		if allowed, ok := f.object[key]; ok {
			return allowed, nil
		}
	}
	allowed, err := f.subject.HasObjectPermission(ctx, permission, e)
	if err != nil {
		return false, newBackendError(permission, t, err)
	}
	f.stats.ObjectChecks++
	if cacheable {
		f.object[key] = allowed
	}
	return allowed, nil
}

// instanceKey builds the per-instance cache key. Identity keys that are not
// comparable (or absent) disable memoization for that instance; the check is
// then repeated per occurrence, which is correct, only slower.
func instanceKey(t Type, id any) (objectKey, bool) {
	if id == nil {
		return objectKey{}, false
	}
	if !reflect.TypeOf(id).Comparable() {
		return objectKey{}, false
	}
	return objectKey{typ: t, id: id}, true
}
