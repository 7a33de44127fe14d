// Package graph builds and validates the dependency graph of a workflow.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/conduit/pkg/models"
)

var (
	ErrCycleDetected   = errors.New("workflow graph contains a cycle")
	ErrDuplicateNode   = errors.New("duplicate node id")
	ErrUnknownNode     = errors.New("connection references an unknown node")
	ErrInvalidPort     = errors.New("invalid port id")
	ErrDuplicateTarget = errors.New("duplicate connection")
	ErrNilEntry        = errors.New("workflow contains an empty entry")
)

// CycleError reports the nodes that form a cycle.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}

// Graph is the validated node dependency structure of a workflow.
type Graph struct {
	order    []string
	nodes    map[string]*models.WorkflowNode
	incoming map[string][]*models.Connection
	outgoing map[string][]*models.Connection
	upstream map[string][]string
}

// Build validates the workflow's nodes and connections and returns its graph.
// A cycle is rejected with a *CycleError.
func Build(workflow *models.Workflow) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[string]*models.WorkflowNode, len(workflow.Nodes)),
		incoming: make(map[string][]*models.Connection),
		outgoing: make(map[string][]*models.Connection),
		upstream: make(map[string][]string),
	}

	for i, node := range workflow.Nodes {
		if node == nil {
			return nil, fmt.Errorf("%w: nodes[%d]", ErrNilEntry, i)
		}

		if _, exists := g.nodes[node.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
		}

		g.nodes[node.ID] = node
		g.order = append(g.order, node.ID)
	}

	seen := make(map[string]bool, len(workflow.Connections))

	for i, conn := range workflow.Connections {
		if conn == nil {
			return nil, fmt.Errorf("%w: connections[%d]", ErrNilEntry, i)
		}

		sourceNode, _, ok := models.ParsePortID(conn.SourcePort)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPort, conn.SourcePort)
		}

		targetNode, _, ok := models.ParsePortID(conn.TargetPort)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPort, conn.TargetPort)
		}

		if _, exists := g.nodes[sourceNode]; !exists {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, sourceNode)
		}

		if _, exists := g.nodes[targetNode]; !exists {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, targetNode)
		}

		key := conn.SourcePort + "->" + conn.TargetPort
		if seen[key] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTarget, key)
		}

		seen[key] = true

		g.outgoing[sourceNode] = append(g.outgoing[sourceNode], conn)
		g.incoming[targetNode] = append(g.incoming[targetNode], conn)

		if !slices.Contains(g.upstream[targetNode], sourceNode) {
			g.upstream[targetNode] = append(g.upstream[targetNode], sourceNode)
		}
	}

	err := g.validateAcyclic()
	if err != nil {
		return nil, err
	}

	return g, nil
}

// validateAcyclic walks the graph depth first with three-colour marking.
func (g *Graph) validateAcyclic() error {
	const (
		unvisited = iota
		visiting
		visited
	)

	state := make(map[string]int, len(g.order))
	stack := make([]string, 0, len(g.order))

	var dfs func(id string) []string

	dfs = func(id string) []string {
		state[id] = visiting
		stack = append(stack, id)

		for _, conn := range g.outgoing[id] {
			next := conn.TargetNodeID()

			switch state[next] {
			case visiting:
				return cyclePath(stack, next)
			case unvisited:
				if path := dfs(next); path != nil {
					return path
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = visited

		return nil
	}

	for _, id := range g.order {
		if state[id] == unvisited {
			if path := dfs(id); path != nil {
				return &CycleError{Path: path}
			}
		}
	}

	return nil
}

func cyclePath(stack []string, start string) []string {
	for i, id := range stack {
		if id == start {
			path := append([]string(nil), stack[i:]...)

			return append(path, start)
		}
	}

	return []string{start, start}
}

// TopologicalOrder returns node ids so that every node comes after all of its
// upstream nodes. Ties keep the declaration order of the workflow.
func (g *Graph) TopologicalOrder() []string {
	indegree := make(map[string]int, len(g.order))
	for _, id := range g.order {
		indegree[id] = len(g.upstream[id])
	}

	result := make([]string, 0, len(g.order))
	done := make(map[string]bool, len(g.order))

	for len(result) < len(g.order) {
		progressed := false

		for _, id := range g.order {
			if done[id] || indegree[id] > 0 {
				continue
			}

			done[id] = true
			progressed = true

			result = append(result, id)

			for _, next := range g.Downstream(id) {
				indegree[next]--
			}
		}

		if !progressed {
			break
		}
	}

	return result
}

// Node returns the workflow node with the given id.
func (g *Graph) Node(id string) *models.WorkflowNode {
	return g.nodes[id]
}

// NodeIDs returns every node id in declaration order.
func (g *Graph) NodeIDs() []string {
	return append([]string(nil), g.order...)
}

// Entries returns the nodes without incoming connections.
func (g *Graph) Entries() []string {
	var entries []string

	for _, id := range g.order {
		if len(g.incoming[id]) == 0 {
			entries = append(entries, id)
		}
	}

	return entries
}

// Incoming returns the connections that end at node id.
func (g *Graph) Incoming(id string) []*models.Connection {
	return g.incoming[id]
}

// Outgoing returns the connections that leave node id.
func (g *Graph) Outgoing(id string) []*models.Connection {
	return g.outgoing[id]
}

// Upstream returns the distinct nodes that feed node id.
func (g *Graph) Upstream(id string) []string {
	return g.upstream[id]
}

// Downstream returns the distinct nodes fed by node id.
func (g *Graph) Downstream(id string) []string {
	var result []string

	for _, conn := range g.outgoing[id] {
		target := conn.TargetNodeID()
		if !slices.Contains(result, target) {
			result = append(result, target)
		}
	}

	return result
}
