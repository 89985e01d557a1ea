package ingestion

import (
	"context"
	"fmt"

	"github.com/neurondb/NeuronIP/api/internal/ingestion/etl"
	"github.com/neurondb/NeuronIP/api/internal/transform"
)

/* RegisterETLScript wires one named etl.Pipeline into a Transform Core's
   CUSTOM-transform registry: invoking the script runs the source row
   (wrapped as a one-row batch) through the pipeline's filter/map/
   aggregate/join stages and unwraps the single resulting row. This is
   the adaptation point between the donor's batch-oriented ETLEngine (see
   internal/ingestion/etl) and the Transform Core's per-record CUSTOM
   transform contract: a CUSTOM FieldMapping names a script, and the
   registry resolves it to whatever pipeline was registered here. */
func RegisterETLScript(registry *transform.Registry, engine *etl.ETLEngine, name string, pipeline etl.Pipeline) {
	registry.Register(name, func(ctx context.Context, row map[string]interface{}) (interface{}, error) {
		result, err := engine.Execute(ctx, pipeline, []map[string]interface{}{row})
		if err != nil {
			return nil, fmt.Errorf("etl script %q: %w", name, err)
		}
		if len(result) == 0 {
			return nil, nil
		}
		return result[0], nil
	})
}
