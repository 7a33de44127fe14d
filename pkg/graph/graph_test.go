package graph

import (
	"testing"

	"github.com/dukex/conduit/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workflowOf(nodeIDs []string, edges ...[2]string) *models.Workflow {
	workflow := &models.Workflow{ID: "wf"}

	for _, id := range nodeIDs {
		workflow.Nodes = append(workflow.Nodes, &models.WorkflowNode{ID: id, Type: "log", Name: id})
	}

	for _, edge := range edges {
		workflow.Connections = append(workflow.Connections, &models.Connection{
			SourcePort: models.MakePortID(edge[0], models.PortSuccess),
			TargetPort: models.MakePortID(edge[1], models.PortMain),
		})
	}

	return workflow
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}

	return -1
}

func TestBuild_TopologicalOrder(t *testing.T) {
	t.Parallel()

	workflow := workflowOf(
		[]string{"join", "b", "a", "start"},
		[2]string{"start", "a"},
		[2]string{"start", "b"},
		[2]string{"a", "join"},
		[2]string{"b", "join"},
	)

	g, err := Build(workflow)
	require.NoError(t, err)

	order := g.TopologicalOrder()
	require.Len(t, order, 4)
	assert.Equal(t, "start", order[0])
	assert.Equal(t, "join", order[3])
	assert.Equal(t, []string{"start"}, g.Entries())
	assert.ElementsMatch(t, []string{"a", "b"}, g.Upstream("join"))
	assert.ElementsMatch(t, []string{"a", "b"}, g.Downstream("start"))
}

func TestBuild_RejectsCycles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		nodes []string
		edges [][2]string
	}{
		{name: "self loop", nodes: []string{"a"}, edges: [][2]string{{"a", "a"}}},
		{name: "two node cycle", nodes: []string{"a", "b"}, edges: [][2]string{{"a", "b"}, {"b", "a"}}},
		{
			name:  "cycle behind entry",
			nodes: []string{"start", "a", "b", "c"},
			edges: [][2]string{{"start", "a"}, {"a", "b"}, {"b", "c"}, {"c", "a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Build(workflowOf(tt.nodes, tt.edges...))
			require.ErrorIs(t, err, ErrCycleDetected)

			var cycleErr *CycleError
			require.ErrorAs(t, err, &cycleErr)
			assert.Equal(t, cycleErr.Path[0], cycleErr.Path[len(cycleErr.Path)-1])
		})
	}
}

func TestBuild_InvalidConnections(t *testing.T) {
	t.Parallel()

	t.Run("unknown node", func(t *testing.T) {
		t.Parallel()

		_, err := Build(workflowOf([]string{"a"}, [2]string{"a", "ghost"}))
		require.ErrorIs(t, err, ErrUnknownNode)
	})

	t.Run("malformed port", func(t *testing.T) {
		t.Parallel()

		workflow := workflowOf([]string{"a", "b"})
		workflow.Connections = []*models.Connection{{SourcePort: "a", TargetPort: "b:main"}}

		_, err := Build(workflow)
		require.ErrorIs(t, err, ErrInvalidPort)
	})

	t.Run("duplicate node", func(t *testing.T) {
		t.Parallel()

		_, err := Build(workflowOf([]string{"a", "a"}))
		require.ErrorIs(t, err, ErrDuplicateNode)
	})

	t.Run("duplicate connection", func(t *testing.T) {
		t.Parallel()

		_, err := Build(workflowOf([]string{"a", "b"}, [2]string{"a", "b"}, [2]string{"a", "b"}))
		require.ErrorIs(t, err, ErrDuplicateTarget)
	})
}

func TestTopologicalOrder_DiamondWithTail(t *testing.T) {
	t.Parallel()

	g, err := Build(workflowOf(
		[]string{"tail", "d", "c", "b", "a"},
		[2]string{"a", "b"},
		[2]string{"a", "c"},
		[2]string{"b", "d"},
		[2]string{"c", "d"},
		[2]string{"d", "tail"},
	))
	require.NoError(t, err)

	order := g.TopologicalOrder()
	for _, id := range g.NodeIDs() {
		for _, up := range g.Upstream(id) {
			assert.Less(t, indexOf(order, up), indexOf(order, id), "%s must come before %s", up, id)
		}
	}
}

func TestBuild_RejectsNilEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*models.Workflow)
	}{
		{name: "nil node", modify: func(w *models.Workflow) { w.Nodes = append(w.Nodes, nil) }},
		{name: "nil connection", modify: func(w *models.Workflow) { w.Connections = append(w.Connections, nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			workflow := workflowOf([]string{"a", "b"}, [2]string{"a", "b"})
			tt.modify(workflow)

			_, err := Build(workflow)
			require.ErrorIs(t, err, ErrNilEntry)
			assert.Nil(t, workflow.Node("missing"))
		})
	}
}
