package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dukex/conduit/pkg/cmd"
	"github.com/dukex/conduit/pkg/connector"
	"github.com/dukex/conduit/pkg/idempotency"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/services"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

var errInvalidWorkflow = errors.New("workflow is invalid")

// ValidateCommand checks a workflow definition file without a running server.
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate a workflow definition (YAML or JSON)",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return errors.New("a workflow file is required")
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read workflow: %w", err)
			}

			return validateWorkflowFile(data, command.Root().Writer)
		},
	}
}

// parseWorkflow decodes a YAML (or JSON) document through its JSON field names.
func parseWorkflow(data []byte) (*models.Workflow, error) {
	var document map[string]any

	err := yaml.Unmarshal(data, &document)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow: %w", err)
	}

	encoded, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow: %w", err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(encoded, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow: %w", err)
	}

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	return &workflow, nil
}

func validateWorkflowFile(data []byte, out io.Writer) error {
	workflow, err := parseWorkflow(data)
	if err != nil {
		return err
	}

	logger := slog.New(slog.DiscardHandler)
	nodes := cmd.NewRegistry(logger, protocol.Dependencies{
		Logger:      logger,
		Connector:   connector.New(logger, nil),
		Idempotency: idempotency.NewMemoryStore(),
	})

	err = services.NewWorkflow(logger, nil, nil, nodes, nil).Validate(workflow)
	if err == nil {
		_, _ = fmt.Fprintf(out, "%s: valid (%d nodes, %d connections)\n", workflow.Name, len(workflow.Nodes), len(workflow.Connections))

		return nil
	}

	var validationErr *services.ValidationError
	if !errors.As(err, &validationErr) {
		return err
	}

	for _, field := range validationErr.Fields {
		_, _ = fmt.Fprintf(out, "%s: %s (%s)\n", field.Field, field.Message, field.Code)
	}

	return errInvalidWorkflow
}
