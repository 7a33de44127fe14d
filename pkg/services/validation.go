package services

import (
	"errors"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/dukex/conduit/pkg/graph"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/schema"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// fieldErrors translates struct tag violations into field errors.
func fieldErrors(verr *ValidationError, value any) {
	err := validate.Struct(value)
	if err == nil {
		return
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		verr.add("", CodeInvalidValue, err.Error())

		return
	}

	for _, fe := range validationErrors {
		field := fieldPath(fe.Namespace())

		switch fe.Tag() {
		case "required":
			verr.add(field, CodeMissingField, "is required")
		case "oneof":
			verr.add(field, CodeInvalidValue, "must be one of: "+fe.Param())
		case "min", "max", "gte", "lte", "gt", "lt":
			verr.add(field, CodeOutOfRange, "must be "+fe.Tag()+" "+fe.Param())
		default:
			verr.add(field, CodeInvalidValue, "fails "+fe.Tag())
		}
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	_, path, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}

	return path
}

// validateIntegration checks an integration snapshot before it is committed.
func validateIntegration(op string, integration *models.Integration) error {
	verr := &ValidationError{Op: op}

	fieldErrors(verr, integration)

	if integration.Endpoint != "" {
		endpoint, err := url.Parse(integration.Endpoint)
		if err != nil || (endpoint.Scheme != "http" && endpoint.Scheme != "https") || endpoint.Host == "" {
			verr.add("endpoint", CodeMalformedURL, "must be an absolute http or https URL")
		}
	}

	auth := integration.Auth

	switch auth.Type {
	case models.AuthTypeBearer:
		if auth.Token == "" {
			verr.add("auth.token", CodeAuthIncomplete, "bearer auth needs a token")
		}
	case models.AuthTypeBasic:
		if auth.Username == "" || auth.Password == "" {
			verr.add("auth.username", CodeAuthIncomplete, "basic auth needs a username and a password")
		}
	case models.AuthTypeAPIKey:
		if auth.KeyName == "" || auth.KeyValue == "" {
			verr.add("auth.key_name", CodeAuthIncomplete, "api key auth needs a key name and a key value")
		}
	}

	retry := integration.Retry
	if retry.MaxIntervalMs > 0 && retry.InitialIntervalMs > retry.MaxIntervalMs {
		verr.add("retry.max_interval_ms", CodeOutOfRange, "must not be below initial_interval_ms")
	}

	if integration.RateLimit.Enabled && integration.RateLimit.Requests < 1 {
		verr.add("rate_limit.requests", CodeOutOfRange, "must be at least 1 when the rate limit is enabled")
	}

	for name := range integration.Headers {
		if strings.TrimSpace(name) == "" {
			verr.add("headers", CodeInvalidValue, "header names cannot be empty")

			break
		}
	}

	return verr.orNil()
}

// NodeValidator checks node configurations against the schema of their type.
type NodeValidator interface {
	ValidateConfig(nodeType string, config map[string]any) error
}

// validateWorkflow checks the structure, the graph and every node config of
// a workflow snapshot.
func validateWorkflow(op string, workflow *models.Workflow, nodes NodeValidator) error {
	verr := &ValidationError{Op: op}

	fieldErrors(verr, workflow)

	if len(workflow.Nodes) > 0 {
		_, err := graph.Build(workflow)
		if err != nil {
			verr.add("connections", CodeInvalidValue, err.Error())
		}
	}

	for i, node := range workflow.Nodes {
		if node == nil || node.Type == "" || nodes == nil {
			continue
		}

		err := nodes.ValidateConfig(node.Type, node.Config)
		if err == nil {
			continue
		}

		field := "nodes[" + strconv.Itoa(i) + "]"

		var violations *schema.ViolationError
		if errors.As(err, &violations) {
			for _, v := range violations.Violations {
				verr.add(field+".config."+v.Field, CodeInvalidValue, v.Message)
			}

			continue
		}

		verr.add(field+".type", CodeInvalidValue, err.Error())
	}

	if workflow.TriggerSchema != nil {
		_, err := schema.Compile(workflow.TriggerSchema)
		if err != nil {
			verr.add("trigger_schema", CodeInvalidValue, err.Error())
		}
	}

	return verr.orNil()
}

// payloadErrors turns schema violations of a trigger payload into a
// validation error.
func payloadErrors(op string, err error) error {
	var violations *schema.ViolationError
	if !errors.As(err, &violations) {
		return err
	}

	verr := &ValidationError{Op: op}
	for _, v := range violations.Violations {
		verr.add("trigger."+v.Field, CodeInvalidValue, v.Message)
	}

	return errors.Join(verr, ErrInvalidPayload)
}
