// Package log provides logging node implementation for workflow graph execution.
package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conduit/pkg/idempotency"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/template"
)

const (
	OutputPortSuccess = models.PortSuccess
	OutputPortError   = models.PortError
	InputPortMain     = models.PortMain
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// LogNode writes a rendered message to the service log, once per run.
type LogNode struct {
	id      string
	message string
	level   string
	deps    protocol.Dependencies
}

// NewLogNode creates a new logging node.
func NewLogNode(id string, config map[string]any, deps protocol.Dependencies) (*LogNode, error) {
	message, ok := config["message"].(string)
	if !ok {
		return nil, errors.New("missing required field 'message'")
	}

	level := protocol.StringConfig(config, "level", "info")
	if _, ok := logLevels[level]; !ok {
		return nil, fmt.Errorf("invalid level: %s (must be 'debug', 'info', 'warn', or 'error')", level)
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &LogNode{
		id:      id,
		message: message,
		level:   level,
		deps:    deps,
	}, nil
}

// ID returns the node ID.
func (n *LogNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *LogNode) Type() string {
	return "log"
}

// Execute performs the logging operation.
func (n *LogNode) Execute(ctx context.Context, executionCtx models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	renderedMessage, err := template.RenderString(n.message, template.Data(&executionCtx, protocol.InputData(inputs)))
	if err != nil {
		return protocol.ErrorOutput(n.id, fmt.Sprintf("failed to render log message template: %v", err)), nil
	}

	logger := n.deps.Logger.With(
		"node_id", n.id,
		"node_type", "log",
		"run_id", executionCtx.RunID,
		"workflow_id", executionCtx.WorkflowID,
	)

	write := func() error {
		logger.Log(ctx, logLevels[n.level], renderedMessage)

		return nil
	}

	logged := true
	if n.deps.Idempotency != nil {
		logged, err = idempotency.Once(ctx, n.deps.Idempotency, executionCtx.IdempotencyKey(), n.ttl(), write)
		if err != nil {
			return nil, err
		}
	} else {
		_ = write()
	}

	return protocol.Output(n.id, OutputPortSuccess, map[string]any{
		"message": renderedMessage,
		"level":   n.level,
		"logged":  logged,
	}), nil
}

func (n *LogNode) ttl() time.Duration {
	if n.deps.IdempotencyTTL > 0 {
		return n.deps.IdempotencyTTL
	}

	return 24 * time.Hour
}

// InputPorts returns the input ports for the node.
func (n *LogNode) InputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: InputPortMain, Description: "Main input for triggering the log operation"},
	}
}

// OutputPorts returns the output ports for the node.
func (n *LogNode) OutputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: OutputPortSuccess, Description: "Logged message information"},
		{Name: OutputPortError, Description: "Error information when logging fails"},
	}
}
