// Package merge provides merge node implementation for joining multiple execution paths.
package merge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

const (
	OutputPortMerged = "merged"
	OutputPortError  = models.PortError
	MergeModeAll     = "all"
	MergeModeAny     = "any"
	MergeModeFirst   = "first"

	CombineByPort  = "by_port"
	CombineFlatten = "flatten"
)

// MergeNode combines the data of the branches that reached it. The engine
// only runs it once every upstream node is terminal, so inputs holds exactly
// the branches that stayed active.
type MergeNode struct {
	id         string
	inputPorts []string
	mergeMode  string // "all", "any", "first"
	combine    string
}

// NewMergeNode creates a new merge node.
func NewMergeNode(id string, config map[string]any) (*MergeNode, error) {
	inputPortsAny, ok := config["input_ports"].([]any)
	if !ok {
		return nil, errors.New("missing required field 'input_ports'")
	}

	if len(inputPortsAny) < 2 {
		return nil, errors.New("merge node requires at least 2 input ports")
	}

	inputPorts := make([]string, len(inputPortsAny))
	for i, port := range inputPortsAny {
		portStr, ok := port.(string)
		if !ok {
			return nil, fmt.Errorf("input_port %d must be a string", i)
		}

		inputPorts[i] = portStr
	}

	mergeMode := protocol.StringConfig(config, "merge_mode", MergeModeAll)
	if !slices.Contains([]string{MergeModeAll, MergeModeAny, MergeModeFirst}, mergeMode) {
		return nil, fmt.Errorf("invalid merge_mode: %s (must be 'all', 'any', or 'first')", mergeMode)
	}

	combine := protocol.StringConfig(config, "combine", CombineByPort)
	if combine != CombineByPort && combine != CombineFlatten {
		return nil, fmt.Errorf("invalid combine: %s (must be 'by_port' or 'flatten')", combine)
	}

	return &MergeNode{
		id:         id,
		inputPorts: inputPorts,
		mergeMode:  mergeMode,
		combine:    combine,
	}, nil
}

// ID returns the node ID.
func (n *MergeNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *MergeNode) Type() string {
	return "merge"
}

// Execute merges inputs from multiple execution paths. Ports are visited in
// configuration order so "first" is deterministic.
func (n *MergeNode) Execute(_ context.Context, _ models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	mergedData := make(map[string]any, len(inputs))
	inputsReceived := make([]string, 0, len(inputs))

	var missing []string

	for _, port := range n.inputPorts {
		result, ok := inputs[port]
		if !ok {
			missing = append(missing, port)

			continue
		}

		mergedData[port] = result.Data
		inputsReceived = append(inputsReceived, port)
	}

	switch n.mergeMode {
	case MergeModeAll:
		if len(missing) > 0 {
			return protocol.ErrorOutput(n.id, "missing inputs: "+strings.Join(missing, ", ")), nil
		}
	case MergeModeFirst:
		if len(inputsReceived) > 1 {
			firstPort := inputsReceived[0]
			mergedData = map[string]any{firstPort: mergedData[firstPort]}
			inputsReceived = []string{firstPort}
		}
	}

	if len(inputsReceived) == 0 {
		return protocol.ErrorOutput(n.id, "no input reached the merge node"), nil
	}

	var merged any = mergedData
	if n.combine == CombineFlatten {
		merged = flatten(mergedData, inputsReceived)
	}

	return protocol.Output(n.id, OutputPortMerged, map[string]any{
		"merged_inputs":   merged,
		"inputs_received": inputsReceived,
		"merge_mode":      n.mergeMode,
	}), nil
}

// flatten merges object branches into one map. ports is in priority order,
// so it is applied backwards. Non-object branches stay under their port name.
func flatten(byPort map[string]any, ports []string) map[string]any {
	out := make(map[string]any)

	for _, port := range slices.Backward(ports) {
		data, ok := byPort[port].(map[string]any)
		if !ok {
			out[port] = byPort[port]

			continue
		}

		for key, value := range data {
			out[key] = value
		}
	}

	return out
}

// InputPorts returns the input ports for the node (dynamic based on configuration).
func (n *MergeNode) InputPorts() []protocol.Port {
	ports := make([]protocol.Port, 0, len(n.inputPorts))

	for _, port := range n.inputPorts {
		ports = append(ports, protocol.Port{
			Name:        port,
			Description: fmt.Sprintf("Input from execution path '%s'", port),
		})
	}

	return ports
}

// OutputPorts returns the output ports for the node.
func (n *MergeNode) OutputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: OutputPortMerged, Description: "Combined data from all input execution paths"},
		{Name: OutputPortError, Description: "Error information when merge operation fails"},
	}
}
