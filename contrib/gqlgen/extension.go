// Package gqlgen wires the gqlperm response filter into a
// github.com/99designs/gqlgen server as a handler extension.
//
// The extension intercepts every resolved root field of the operation,
// walks its value graph, and removes entities the requesting subject may
// not view, before the response is serialized. Errors already attached to
// the response are never altered; only resolved data is filtered.
//
// # Usage
//
//	srv := handler.New(es)
//	srv.Use(gqlgen.New(func(ctx context.Context) gqlperm.Subject {
//	    return currentUser(ctx)
//	}))
//
// One gqlperm.Filter is allocated per operation, so the blanket-permission
// cache spans all root fields of one request and is discarded with it.
// Root fields of one query resolve on separate goroutines, so walks on
// the shared filter are serialized by the extension.
// Returning a nil subject from the SubjectFunc skips filtering for that
// request; restricting which operations a caller may run at all is the
// application's concern, not this extension's.
package gqlgen

import (
	"context"
	"sync"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	"github.com/syssam/gqlperm"
)

// SubjectFunc resolves the subject for the current request. A nil result
// disables filtering for the request.
type SubjectFunc func(ctx context.Context) gqlperm.Subject

// Extension is the gqlgen handler extension. Construct it with New and
// install it with (*handler.Server).Use.
type Extension struct {
	subject SubjectFunc
	logger  *zap.Logger
	schema  *ast.Schema
}

// Option configures the Extension.
type Option func(*Extension)

// WithLogger sets a logger for debug output about removed entities.
// The default is a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// New returns an Extension resolving the subject with fn. A nil fn falls
// back to gqlperm.SubjectFromContext, for applications that attach the
// subject in their auth middleware.
func New(fn SubjectFunc, opts ...Option) *Extension {
	e := &Extension{
		subject: fn,
		logger:  zap.NewNop(),
	}
	if e.subject == nil {
		e.subject = func(ctx context.Context) gqlperm.Subject {
			return gqlperm.SubjectFromContext(ctx)
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ interface {
	graphql.HandlerExtension
	graphql.OperationInterceptor
	graphql.FieldInterceptor
} = (*Extension)(nil)

// ExtensionName implements graphql.HandlerExtension.
func (e *Extension) ExtensionName() string {
	return "ViewAuthorization"
}

// Validate implements graphql.HandlerExtension. It records the schema so
// root fields can be recognized even for schemas with renamed root types.
func (e *Extension) Validate(es graphql.ExecutableSchema) error {
	e.schema = es.Schema()
	return nil
}

// filterCtxKey is the context key for the per-operation filter.
type filterCtxKey struct{}

// operationFilter serializes access to the shared per-operation filter.
// Generated servers resolve sibling root fields concurrently, and the
// filter's per-walk caches are not safe for concurrent use, so every walk
// runs under the mutex.
type operationFilter struct {
	mu     sync.Mutex
	filter *gqlperm.Filter
}

// value runs one filtered walk and reports how many entities it removed.
func (of *operationFilter) value(ctx context.Context, v any) (any, int, error) {
	of.mu.Lock()
	defer of.mu.Unlock()
	before := of.filter.Stats().Denied
	out, err := of.filter.Value(ctx, v)
	return out, of.filter.Stats().Denied - before, err
}

// InterceptOperation allocates the per-operation filter. The filter, and
// with it every cached permission verdict, lives exactly as long as the
// operation and is shared by all of its root fields.
func (e *Extension) InterceptOperation(ctx context.Context, next graphql.OperationHandler) graphql.ResponseHandler {
	if subject := e.subject(ctx); subject != nil {
		ctx = context.WithValue(ctx, filterCtxKey{}, &operationFilter{
			filter: gqlperm.NewFilter(subject),
		})
	}
	return next(ctx)
}

// InterceptField filters each resolved root field. Nested fields are
// covered by the recursive walk from the root, so they pass through here
// untouched.
func (e *Extension) InterceptField(ctx context.Context, next graphql.Resolver) (any, error) {
	res, err := next(ctx)
	if err != nil || res == nil {
		return res, err
	}
	of, ok := ctx.Value(filterCtxKey{}).(*operationFilter)
	if !ok {
		return res, nil
	}
	fc := graphql.GetFieldContext(ctx)
	if fc == nil || !e.isRootField(fc) {
		return res, nil
	}

	filtered, removed, err := of.value(ctx, res)
	if err != nil {
		return nil, err
	}
	if removed > 0 {
		e.logger.Debug("removed unauthorized entities from response",
			zap.String("field", fc.Field.Name),
			zap.Int("removed", removed))
	}
	if filtered == nil {
		if def := fc.Field.Definition; def != nil && def.Type != nil && def.Type.NonNull {
			// The schema does not allow nulling this field out, so the
			// denial has to surface as a field error instead.
			return nil, &gqlerror.Error{
				Message: "you do not have permission to access this field",
				Path:    graphql.GetPath(ctx),
			}
		}
		return nil, nil
	}
	return filtered, nil
}

// isRootField reports whether the field belongs to one of the schema's
// root operation types.
func (e *Extension) isRootField(fc *graphql.FieldContext) bool {
	obj := fc.Field.ObjectDefinition
	if obj == nil {
		return false
	}
	if s := e.schema; s != nil {
		return obj == s.Query || obj == s.Mutation || obj == s.Subscription
	}
	switch obj.Name {
	case "Query", "Mutation", "Subscription":
		return true
	}
	return false
}
