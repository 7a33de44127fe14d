// Package delay provides the node that pauses a branch.
package delay

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

const (
	OutputPortSuccess = models.PortSuccess
	InputPortMain     = models.PortMain

	// MaxDuration bounds a single delay.
	MaxDuration = 5 * time.Minute
)

// DelayNode waits for a fixed duration and forwards its input.
type DelayNode struct {
	id       string
	duration time.Duration
}

// NewDelayNode creates a new delay node.
func NewDelayNode(id string, config map[string]any) (*DelayNode, error) {
	ms := protocol.IntConfig(config, "duration_ms", 0)

	duration := time.Duration(ms) * time.Millisecond
	if duration < 0 || duration > MaxDuration {
		return nil, fmt.Errorf("duration_ms must be between 0 and %d", MaxDuration.Milliseconds())
	}

	return &DelayNode{id: id, duration: duration}, nil
}

// ID returns the node ID.
func (n *DelayNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *DelayNode) Type() string {
	return "delay"
}

// Execute waits, returning early with the context error when cancelled.
// The node timeout applies, so a delay longer than the timeout fails.
func (n *DelayNode) Execute(ctx context.Context, _ models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	timer := time.NewTimer(n.duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	data := make(map[string]any, len(protocol.MainInput(inputs))+1)
	for key, value := range protocol.MainInput(inputs) {
		data[key] = value
	}

	data["delayed_ms"] = n.duration.Milliseconds()

	return protocol.Output(n.id, OutputPortSuccess, data), nil
}

// InputPorts returns the input ports for the node.
func (n *DelayNode) InputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: InputPortMain, Description: "Data forwarded after the delay"},
	}
}

// OutputPorts returns the output ports for the node.
func (n *DelayNode) OutputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: OutputPortSuccess, Description: "The input data, once the delay elapsed"},
	}
}
