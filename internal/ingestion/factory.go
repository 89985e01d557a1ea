package ingestion

import (
	"github.com/neurondb/NeuronIP/api/internal/ingestion/connectors"
	"github.com/neurondb/NeuronIP/api/internal/model"
)

/* DefaultConnectorFactory builds connectors from the six ConnectorKinds
   the spec defines. csvFile is source-only (there is no sensible "append
   a row to a CSV" destination in this spec's scope); every other kind
   supports both directions. */
type DefaultConnectorFactory struct{}

/* NewDefaultConnectorFactory creates the standard ConnectorFactory. */
func NewDefaultConnectorFactory() *DefaultConnectorFactory {
	return &DefaultConnectorFactory{}
}

func (f *DefaultConnectorFactory) NewSource(ref model.ConnectorRef) (SourceConnector, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	switch ref.Type {
	case model.ConnectorCSVFile:
		path, err := connectors.ResolveCSVPath(ref.Config)
		if err != nil {
			return nil, err
		}
		cfg := map[string]interface{}{"path": path}
		if d, ok := ref.Config["delimiter"]; ok {
			cfg["delimiter"] = d
		}
		return connectors.NewCSVSource(cfg)
	case model.ConnectorMongoDB:
		return connectors.NewMongoSource(ref.Config)
	case model.ConnectorDataWarehouse:
		return connectors.NewWarehouseSource(ref.Config)
	case model.ConnectorJSONAPI, model.ConnectorHL7API, model.ConnectorFHIRAPI:
		return connectors.NewHTTPSource(ref.Config)
	default:
		return nil, &UnsupportedConnectorError{Kind: ref.Type, Direction: "source"}
	}
}

func (f *DefaultConnectorFactory) NewDestination(ref model.ConnectorRef) (DestinationConnector, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	switch ref.Type {
	case model.ConnectorMongoDB:
		return connectors.NewMongoDestination(ref.Config)
	case model.ConnectorDataWarehouse:
		return connectors.NewWarehouseDestination(ref.Config)
	case model.ConnectorJSONAPI, model.ConnectorHL7API, model.ConnectorFHIRAPI:
		return connectors.NewHTTPDestination(ref.Config)
	default:
		return nil, &UnsupportedConnectorError{Kind: ref.Type, Direction: "destination"}
	}
}
