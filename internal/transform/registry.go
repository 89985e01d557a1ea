package transform

import (
	"context"
	"fmt"
)

/* CustomFunc is the opaque-function signature for a CUSTOM transform:
   given the full source row, produce a target value or an error. The
   core treats named CUSTOM scripts as black boxes. */
type CustomFunc func(ctx context.Context, row map[string]interface{}) (interface{}, error)

/* Registry is a named-function lookup for CUSTOM transforms, directly
   modeled on internal/ingestion/etl/engine.go's ETLEngine: a
   map[string]Transformation with a Register method and a dispatch-by-name
   Execute/Invoke step, adapted here to CustomFunc's (row)->value|error
   shape instead of ETLEngine's (rows)->(rows) pipeline-step shape. */
type Registry struct {
	funcs map[string]CustomFunc
}

/* NewRegistry creates an empty CUSTOM-transform registry. */
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]CustomFunc)}
}

/* Register names a CUSTOM transform function. */
func (r *Registry) Register(name string, fn CustomFunc) {
	r.funcs[name] = fn
}

/* Invoke dispatches a named CUSTOM transform against a row. */
func (r *Registry) Invoke(ctx context.Context, name string, row map[string]interface{}) (interface{}, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("transform: unknown custom script %q", name)
	}
	return fn(ctx, row)
}
