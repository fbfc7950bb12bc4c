package gqlperm

import (
	"context"
	"reflect"
)

// walkResult signals the fate of one walked value to its container. A
// dropped entity is not removed by the walker itself; the containing
// sequence, edge list, record field, or top-level caller performs the
// structural edit.
type walkResult uint8

const (
	kept walkResult = iota
	dropped
)

// shape is the closed set of container kinds the walker distinguishes.
// Every value is classified exactly once per visit; anything that does not
// match a known shape is opaque and passes through unchanged.
type shape uint8

const (
	shapeNil shape = iota
	shapeScalar
	shapeOptional
	shapeSequence
	shapeEntity
	shapeConnection
	shapeRecord
	shapeGenericRecord
	shapeMapRecord
	shapeOpaque
)

// shapeOf classifies a value. Entity detection takes precedence over
// connection and record detection, so a model type that happens to carry an
// Edges field is still treated as an entity.
func shapeOf(rv reflect.Value) shape {
	if !rv.IsValid() {
		return shapeNil
	}
	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return shapeNil
		}
		return shapeOptional
	case reflect.Pointer:
		if rv.IsNil() {
			return shapeNil
		}
		if _, ok := entityOf(rv); ok {
			return shapeEntity
		}
		return shapeOptional
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return shapeScalar
		}
		return shapeSequence
	case reflect.Map:
		if !rv.CanInterface() {
			return shapeOpaque
		}
		if _, ok := rv.Interface().(map[string]any); ok {
			return shapeGenericRecord
		}
		if rv.Type().Key().Kind() == reflect.String {
			return shapeMapRecord
		}
		return shapeOpaque
	case reflect.Struct:
		if _, ok := entityOf(rv); ok {
			return shapeEntity
		}
		if isConnection(rv.Type()) {
			return shapeConnection
		}
		return shapeRecord
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Array:
		return shapeOpaque
	default:
		return shapeScalar
	}
}

// entityOf returns the value as an Entity if it is one. Values whose
// EntityType has no resolvable name are not entities; they pass through the
// walk unchecked like any other payload object.
func entityOf(rv reflect.Value) (Entity, bool) {
	if !rv.CanInterface() {
		return nil, false
	}
	if e, ok := rv.Interface().(Entity); ok && e.EntityType().Valid() {
		return e, true
	}
	// Value structs whose Entity methods use pointer receivers.
	if rv.Kind() == reflect.Struct && rv.CanAddr() && rv.Addr().CanInterface() {
		if e, ok := rv.Addr().Interface().(Entity); ok && e.EntityType().Valid() {
			return e, true
		}
	}
	return nil, false
}

// isConnection reports whether a struct type has the edges/node pagination
// shape: an Edges slice whose element type carries a Node field.
func isConnection(t reflect.Type) bool {
	sf, ok := t.FieldByName("Edges")
	if !ok || sf.Type.Kind() != reflect.Slice {
		return false
	}
	et := sf.Type.Elem()
	if et.Kind() == reflect.Pointer {
		et = et.Elem()
	}
	if et.Kind() != reflect.Struct {
		return false
	}
	_, ok = et.FieldByName("Node")
	return ok
}

// walk filters one value depth-first and returns its replacement. The
// second result tells the caller whether the value itself was rejected and
// must be removed from its container.
func (f *Filter) walk(ctx context.Context, rv reflect.Value) (reflect.Value, walkResult, error) {
	// Structs obtained from interfaces or map entries are not addressable;
	// rewrite a private copy so fields can be set.
	if rv.Kind() == reflect.Struct && !rv.CanAddr() {
		cp := reflect.New(rv.Type()).Elem()
		cp.Set(rv)
		rv = cp
	}
	switch shapeOf(rv) {
	case shapeNil, shapeScalar, shapeOpaque:
		return rv, kept, nil
	case shapeOptional:
		return f.walkOptional(ctx, rv)
	case shapeSequence:
		return f.walkSequence(ctx, rv)
	case shapeEntity:
		return f.walkEntity(ctx, rv)
	case shapeConnection:
		return f.walkConnection(ctx, rv)
	case shapeGenericRecord:
		return f.walkGenericRecord(ctx, rv)
	case shapeMapRecord:
		return f.walkMapRecord(ctx, rv)
	default:
		if err := f.walkFields(ctx, rv); err != nil {
			return reflect.Value{}, kept, err
		}
		return rv, kept, nil
	}
}

// walkOptional unwraps one interface or pointer layer. A drop verdict on
// the wrapped value propagates to the container of the wrapper.
func (f *Filter) walkOptional(ctx context.Context, rv reflect.Value) (reflect.Value, walkResult, error) {
	if rv.Kind() == reflect.Interface {
		out, res, err := f.walk(ctx, rv.Elem())
		if err != nil || res == dropped {
			return reflect.Value{}, res, err
		}
		return out, kept, nil
	}
	// Non-entity pointer: the pointee is addressable, rewrite it in place.
	elem := rv.Elem()
	out, res, err := f.walk(ctx, elem)
	if err != nil || res == dropped {
		return reflect.Value{}, res, err
	}
	setValue(elem, out)
	return rv, kept, nil
}

// walkEntity decides keep/drop for one entity instance and, when kept,
// filters its fields, since an authorized parent may still hold
// unauthorized children.
func (f *Filter) walkEntity(ctx context.Context, rv reflect.Value) (reflect.Value, walkResult, error) {
	e, _ := entityOf(rv)
	allowed, err := f.Authorized(ctx, e)
	if err != nil {
		return reflect.Value{}, kept, err
	}
	if !allowed {
		f.stats.Denied++
		return reflect.Value{}, dropped, nil
	}
	st := rv
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() == reflect.Struct {
		if err := f.walkFields(ctx, st); err != nil {
			return reflect.Value{}, kept, err
		}
	}
	return rv, kept, nil
}

// walkFields rewrites every exported field of an addressable struct with
// its filtered value. A dropped single-valued entity field becomes the
// field's zero value (nil for pointers).
func (f *Filter) walkFields(ctx context.Context, st reflect.Value) error {
	t := st.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		fv := st.Field(i)
		if sf.Anonymous {
			// An embedded base type is part of this instance, not a
			// separate entity occurrence; descend without a keep/drop
			// decision so subclass bases are not re-checked or zeroed.
			if err := f.walkEmbedded(ctx, fv); err != nil {
				return err
			}
			continue
		}
		out, res, err := f.walk(ctx, fv)
		if err != nil {
			return err
		}
		if res == dropped {
			fv.Set(reflect.Zero(sf.Type))
			continue
		}
		setValue(fv, out)
	}
	return nil
}

// walkEmbedded filters the fields of an embedded struct (or pointer to
// struct) without treating the embedded value as its own entity.
func (f *Filter) walkEmbedded(ctx context.Context, fv reflect.Value) error {
	st := fv
	if st.Kind() == reflect.Pointer {
		if st.IsNil() {
			return nil
		}
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		out, res, err := f.walk(ctx, fv)
		if err != nil {
			return err
		}
		if res == dropped {
			fv.Set(reflect.Zero(fv.Type()))
			return nil
		}
		setValue(fv, out)
		return nil
	}
	return f.walkFields(ctx, st)
}

// walkSequence filters a slice element-wise. Rejected entity elements are
// removed outright, shifting later elements down; survivors keep their
// relative order. No null placeholders are inserted.
func (f *Filter) walkSequence(ctx context.Context, rv reflect.Value) (reflect.Value, walkResult, error) {
	if rv.IsNil() {
		return rv, kept, nil
	}
	n := rv.Len()
	out := reflect.MakeSlice(rv.Type(), 0, n)
	for i := 0; i < n; i++ {
		ev := rv.Index(i)
		w, res, err := f.walk(ctx, ev)
		if err != nil {
			return reflect.Value{}, kept, err
		}
		if res == dropped {
			continue
		}
		out = reflect.Append(out, assignable(w, ev, rv.Type().Elem()))
	}
	return out, kept, nil
}

// walkConnection filters the edge list of a paginated connection. An edge
// whose node is rejected is dropped whole. Pagination metadata (counts,
// cursors, page info) is left untouched; after removals it may overstate
// the visible edge count, which is accepted rather than re-queried.
func (f *Filter) walkConnection(ctx context.Context, rv reflect.Value) (reflect.Value, walkResult, error) {
	t := rv.Type()
	edges := rv.FieldByName("Edges")
	if !edges.IsNil() {
		n := edges.Len()
		out := reflect.MakeSlice(edges.Type(), 0, n)
		for i := 0; i < n; i++ {
			ev := edges.Index(i)
			keep, err := f.walkEdge(ctx, ev)
			if err != nil {
				return reflect.Value{}, kept, err
			}
			if keep {
				out = reflect.Append(out, ev)
			}
		}
		edges.Set(out)
	}
	// Remaining fields (page info and friends) normally hold only
	// metadata, but nothing stops a schema from nesting entities there.
	for i := 0; i < t.NumField(); i++ {
		f2 := t.Field(i)
		if !f2.IsExported() || f2.Name == "Edges" {
			continue
		}
		fv := rv.Field(i)
		w, res, err := f.walk(ctx, fv)
		if err != nil {
			return reflect.Value{}, kept, err
		}
		if res == dropped {
			fv.Set(reflect.Zero(f2.Type))
			continue
		}
		setValue(fv, w)
	}
	return rv, kept, nil
}

// walkEdge filters one connection edge in place and reports whether the
// edge survives. Edges without a node, and nil edges, are kept as-is.
func (f *Filter) walkEdge(ctx context.Context, ev reflect.Value) (bool, error) {
	st := ev
	if st.Kind() == reflect.Pointer {
		if st.IsNil() {
			return true, nil
		}
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return true, nil
	}
	t := st.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		fv := st.Field(i)
		out, res, err := f.walk(ctx, fv)
		if err != nil {
			return false, err
		}
		if res == dropped {
			if sf.Name == "Node" {
				return false, nil
			}
			fv.Set(reflect.Zero(sf.Type))
			continue
		}
		setValue(fv, out)
	}
	return true, nil
}

// walkGenericRecord filters a map[string]any tree, the shape produced by
// schema-less resolvers. Entity values found inside are checked like any
// other; a dropped single-valued entry becomes nil rather than vanishing,
// mirroring a nulled record field.
func (f *Filter) walkGenericRecord(ctx context.Context, rv reflect.Value) (reflect.Value, walkResult, error) {
	m := rv.Interface().(map[string]any)
	for k, v := range m {
		if k == "edges" {
			if edges, ok := v.([]any); ok {
				filtered, err := f.walkGenericEdges(ctx, edges)
				if err != nil {
					return reflect.Value{}, kept, err
				}
				m[k] = filtered
				continue
			}
		}
		out, res, err := f.walk(ctx, reflect.ValueOf(v))
		if err != nil {
			return reflect.Value{}, kept, err
		}
		if res == dropped {
			m[k] = nil
			continue
		}
		if out.IsValid() {
			m[k] = out.Interface()
		}
	}
	return rv, kept, nil
}

// walkMapRecord filters a typed string-keyed map in place. A dropped
// entry becomes nil when the element type can hold nil; otherwise the
// key is removed, since there is no null to store under it.
func (f *Filter) walkMapRecord(ctx context.Context, rv reflect.Value) (reflect.Value, walkResult, error) {
	if rv.IsNil() {
		return rv, kept, nil
	}
	et := rv.Type().Elem()
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key()
		ev := iter.Value()
		out, res, err := f.walk(ctx, ev)
		if err != nil {
			return reflect.Value{}, kept, err
		}
		if res == dropped {
			switch et.Kind() {
			case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
				rv.SetMapIndex(k, reflect.Zero(et))
			default:
				rv.SetMapIndex(k, reflect.Value{})
			}
			continue
		}
		rv.SetMapIndex(k, assignable(out, ev, et))
	}
	return rv, kept, nil
}

// walkGenericEdges applies connection semantics to a generic edge list:
// an edge map whose "node" entry is rejected is dropped whole.
func (f *Filter) walkGenericEdges(ctx context.Context, edges []any) ([]any, error) {
	out := make([]any, 0, len(edges))
	for _, e := range edges {
		em, ok := e.(map[string]any)
		if !ok {
			w, res, err := f.walk(ctx, reflect.ValueOf(e))
			if err != nil {
				return nil, err
			}
			if res == dropped {
				continue
			}
			if w.IsValid() {
				e = w.Interface()
			}
			out = append(out, e)
			continue
		}
		node, hasNode := em["node"]
		if hasNode {
			w, res, err := f.walk(ctx, reflect.ValueOf(node))
			if err != nil {
				return nil, err
			}
			if res == dropped {
				continue
			}
			if w.IsValid() {
				em["node"] = w.Interface()
			}
		}
		for k, v := range em {
			if k == "node" {
				continue
			}
			w, res, err := f.walk(ctx, reflect.ValueOf(v))
			if err != nil {
				return nil, err
			}
			if res == dropped {
				em[k] = nil
				continue
			}
			if w.IsValid() {
				em[k] = w.Interface()
			}
		}
		out = append(out, em)
	}
	return out, nil
}

// assignable returns v if it can be stored in a slot of type t, falling
// back to the original element value otherwise.
func assignable(v, orig reflect.Value, t reflect.Type) reflect.Value {
	if v.IsValid() && v.Type().AssignableTo(t) {
		return v
	}
	if orig.IsValid() {
		return orig
	}
	return reflect.Zero(t)
}

// setValue stores v into dst when possible. An invalid v zeroes dst, which
// is how a dropped value is expressed in a single-valued position.
func setValue(dst, v reflect.Value) {
	if !dst.CanSet() {
		return
	}
	if !v.IsValid() {
		dst.Set(reflect.Zero(dst.Type()))
		return
	}
	if v.Type().AssignableTo(dst.Type()) {
		dst.Set(v)
	}
}
