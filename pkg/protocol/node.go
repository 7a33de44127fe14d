// Package protocol defines the contracts between the execution engine and
// the node types it runs.
package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/conduit/pkg/connector"
	"github.com/dukex/conduit/pkg/eventbus"
	"github.com/dukex/conduit/pkg/idempotency"
	"github.com/dukex/conduit/pkg/models"
)

// Port describes an input or output port of a node.
type Port struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Node is an executable node instance.
type Node interface {
	ID() string
	Type() string

	// Execute runs the node once. Results are keyed by output port; a result
	// on the error port marks the node as failed without retry. A returned
	// Go error is a transient failure and may be retried by the engine.
	Execute(ctx context.Context, executionCtx models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error)

	InputPorts() []Port
	OutputPorts() []Port
}

// NodeFactory creates node instances and provides metadata about the node type.
type NodeFactory interface {
	// Create creates a new node instance with the given configuration
	Create(ctx context.Context, id string, config map[string]any) (Node, error)

	// ID returns the unique identifier for this node type
	ID() string

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Category returns the palette category of this node type
	Category() models.CategoryType

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}

// IntegrationLookup resolves integrations referenced by nodes.
type IntegrationLookup interface {
	Get(ctx context.Context, id string) (*models.Integration, error)
}

// SampleRecorder receives health samples observed while running nodes.
type SampleRecorder interface {
	Record(sample models.Sample)
}

// Dependencies are the shared services handed to node factories.
type Dependencies struct {
	Logger         *slog.Logger
	Connector      *connector.Client
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration
	Integrations   IntegrationLookup
	Samples        SampleRecorder
	Publisher      eventbus.EventPublisher
}

// ErrorOutput returns a result on the error port.
func ErrorOutput(nodeID, message string) map[string]models.NodeResult {
	return map[string]models.NodeResult{
		models.PortError: {
			NodeID: nodeID,
			Port:   models.PortError,
			Data: map[string]any{
				"error":   message,
				"success": false,
			},
			Status:    string(models.NodeStatusError),
			Timestamp: time.Now().UTC(),
			Error:     message,
		},
	}
}

// Output returns a successful result on port.
func Output(nodeID, port string, data map[string]any) map[string]models.NodeResult {
	return map[string]models.NodeResult{
		port: {
			NodeID:    nodeID,
			Port:      port,
			Data:      data,
			Status:    string(models.NodeStatusSuccess),
			Timestamp: time.Now().UTC(),
		},
	}
}

// MainInput returns the data received on the main port, or the data of the
// only input when the node has a single one.
func MainInput(inputs map[string]models.NodeResult) map[string]any {
	if result, ok := inputs[models.PortMain]; ok {
		return result.Data
	}

	if len(inputs) == 1 {
		for _, result := range inputs {
			return result.Data
		}
	}

	return nil
}

// InputData flattens inputs into port name to data.
func InputData(inputs map[string]models.NodeResult) map[string]any {
	data := make(map[string]any, len(inputs))
	for port, result := range inputs {
		data[port] = result.Data
	}

	return data
}
