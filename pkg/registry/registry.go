// Package registry keeps the node types a workflow can use.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/schema"
)

var ErrNodeNotRegistered = errors.New("node type not registered")

type entry struct {
	factory   protocol.NodeFactory
	schema    *schema.Schema
	schemaErr error
}

type Registry struct {
	logger *slog.Logger
	mu     sync.RWMutex
	nodes  map[string]entry
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger: log,
		nodes:  make(map[string]entry),
	}
}

// RegisterNode adds factory, replacing any factory with the same ID. The
// factory's config schema is compiled once here.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	e := entry{factory: factory}
	e.schema, e.schemaErr = schema.Compile(factory.Schema())

	if e.schemaErr != nil {
		r.logger.Error("Node schema does not compile", "node_type", factory.ID(), "error", e.schemaErr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodes[factory.ID()] = e
}

// Factory returns the factory of nodeType.
func (r *Registry) Factory(nodeType string) (protocol.NodeFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.nodes[nodeType]

	return e.factory, ok
}

// ValidateConfig checks config against the schema of nodeType. Violations
// are returned as *schema.ViolationError.
func (r *Registry) ValidateConfig(nodeType string, config map[string]any) error {
	r.mu.RLock()
	e, ok := r.nodes[nodeType]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotRegistered, nodeType)
	}

	if e.schemaErr != nil {
		return e.schemaErr
	}

	if config == nil {
		config = map[string]any{}
	}

	return e.schema.Validate(config)
}

func (r *Registry) CreateNode(ctx context.Context, nodeType, id string, config map[string]any) (protocol.Node, error) {
	factory, ok := r.Factory(nodeType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotRegistered, nodeType)
	}

	return factory.Create(ctx, id, config)
}

// HealthCheck reports whether any node type is registered.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.nodes) == 0 {
		return "Registry has no node types", false
	}

	return fmt.Sprintf("Registry is healthy with %d node types", len(r.nodes)), true
}

// GetAvailableNodes returns every registered factory ordered by ID.
func (r *Registry) GetAvailableNodes() []protocol.NodeFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factories := make([]protocol.NodeFactory, 0, len(r.nodes))
	for _, e := range r.nodes {
		factories = append(factories, e.factory)
	}

	slices.SortFunc(factories, func(a, b protocol.NodeFactory) int {
		return strings.Compare(a.ID(), b.ID())
	})

	return factories
}

// LoadNodePlugins registers the node factories exported as "Node" by the
// shared objects under pluginsPath/nodes.
func (r *Registry) LoadNodePlugins(pluginsPath string) ([]protocol.NodeFactory, error) {
	factories, err := loadPlugin[protocol.NodeFactory](r.logger, pluginsPath, "Node")
	if err != nil {
		return nil, err
	}

	for _, factory := range factories {
		r.RegisterNode(factory)
	}

	return factories, nil
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: symbol %s has type %T", p, symbolName, v)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded node plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
