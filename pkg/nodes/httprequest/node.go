// Package httprequest provides the HTTP request node. Calls go through the
// integration connector, so integrations bound by id keep their auth, retry
// and rate limit settings and feed the health monitor.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/conduit/pkg/connector"
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

// HTTPRequestConfig defines the configuration for HTTP request nodes.
type HTTPRequestConfig struct {
	IntegrationID string
	URL           string
	Path          string
	Method        string
	Headers       map[string]string
	Body          any
	Timeout       int
	Retries       models.RetryPolicy
}

// HTTPRequestNode performs one HTTP call per run.
type HTTPRequestNode struct {
	id     string
	config HTTPRequestConfig
	deps   protocol.Dependencies
}

// NewHTTPRequestNode creates a new HTTP request node.
func NewHTTPRequestNode(id string, config map[string]any, deps protocol.Dependencies) (*HTTPRequestNode, error) {
	httpConfig := HTTPRequestConfig{
		IntegrationID: protocol.StringConfig(config, "integration_id", ""),
		URL:           protocol.StringConfig(config, "url", ""),
		Path:          protocol.StringConfig(config, "path", ""),
		Method:        strings.ToUpper(protocol.StringConfig(config, "method", "")),
		Headers:       protocol.StringMapConfig(config, "headers"),
		Body:          config["body"],
		Timeout:       protocol.IntConfig(config, "timeout", 30),
	}

	if httpConfig.URL == "" && httpConfig.IntegrationID == "" {
		return nil, errors.New("missing required field 'url' or 'integration_id'")
	}

	if retries, ok := config["retries"].(map[string]any); ok {
		httpConfig.Retries = models.RetryPolicy{
			Attempts:          protocol.IntConfig(retries, "attempts", 0),
			InitialIntervalMs: protocol.IntConfig(retries, "delay", 0),
		}
	}

	if deps.Connector == nil {
		return nil, errors.New("http_request node requires a connector")
	}

	return &HTTPRequestNode{
		id:     id,
		config: httpConfig,
		deps:   deps,
	}, nil
}

// ID returns the node ID.
func (n *HTTPRequestNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *HTTPRequestNode) Type() string {
	return "http_request"
}

// Execute renders the request, sends it once per run and returns the
// response on the success port. Responses with status >= 400 go to the error
// port; transport failures are returned so the engine can retry them.
func (n *HTTPRequestNode) Execute(ctx context.Context, executionCtx models.ExecutionContext, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	data := template.Data(&executionCtx, protocol.InputData(inputs))

	integration, err := n.integration(ctx, data)
	if err != nil {
		return protocol.ErrorOutput(n.id, err.Error()), nil
	}

	request, err := n.request(integration, data)
	if err != nil {
		return protocol.ErrorOutput(n.id, err.Error()), nil
	}

	request.IdempotencyKey = executionCtx.IdempotencyKey()

	var (
		result  *connector.Result
		callErr error
	)

	call := func() error {
		result, callErr = n.deps.Connector.Do(ctx, request)
		n.recordSample(result, callErr)

		var statusErr *connector.StatusError
		if callErr != nil && !errors.As(callErr, &statusErr) {
			return callErr
		}

		return nil
	}

	ran := true

	if n.deps.Idempotency != nil {
		ran, err = idempotency.Once(ctx, n.deps.Idempotency, request.IdempotencyKey, n.ttl(), call)
	} else {
		err = call()
	}

	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", integration.Endpoint, err)
	}

	if !ran {
		return protocol.Output(n.id, OutputPortSuccess, map[string]any{
			"deduplicated":    true,
			"idempotency_key": request.IdempotencyKey,
		}), nil
	}

	var statusErr *connector.StatusError
	if errors.As(callErr, &statusErr) {
		output := protocol.ErrorOutput(n.id, statusErr.Error())
		output[OutputPortError].Data["status_code"] = statusErr.StatusCode

		return output, nil
	}

	return protocol.Output(n.id, OutputPortSuccess, responseData(result)), nil
}

func (n *HTTPRequestNode) integration(ctx context.Context, data map[string]any) (*models.Integration, error) {
	if n.config.IntegrationID == "" {
		url, err := template.RenderString(n.config.URL, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render URL template: %w", err)
		}

		return &models.Integration{
			Endpoint: url,
			Method:   defaultString(n.config.Method, http.MethodGet),
			Timeout:  n.config.Timeout,
			Retry:    n.config.Retries,
		}, nil
	}

	if n.deps.Integrations == nil {
		return nil, errors.New("integration lookup is not configured")
	}

	integration, err := n.deps.Integrations.Get(ctx, n.config.IntegrationID)
	if err != nil {
		return nil, fmt.Errorf("integration %s: %w", n.config.IntegrationID, err)
	}

	if integration.Status == models.IntegrationStatusInactive {
		return nil, fmt.Errorf("integration %s is inactive", integration.ID)
	}

	return integration, nil
}

func (n *HTTPRequestNode) request(integration *models.Integration, data map[string]any) (connector.Request, error) {
	request := connector.Request{
		Integration: integration,
		Method:      n.config.Method,
		Headers:     make(map[string]string, len(n.config.Headers)),
	}

	path, err := template.RenderString(n.config.Path, data)
	if err != nil {
		return request, fmt.Errorf("failed to render path template: %w", err)
	}

	request.Path = path

	for key, value := range n.config.Headers {
		rendered, err := template.RenderString(value, data)
		if err != nil {
			return request, fmt.Errorf("failed to render header %s: %w", key, err)
		}

		request.Headers[key] = rendered
	}

	switch body := n.config.Body.(type) {
	case nil:
	case string:
		rendered, err := template.RenderString(body, data)
		if err != nil {
			return request, fmt.Errorf("failed to render body template: %w", err)
		}

		request.Body = []byte(rendered)
	default:
		rendered, err := template.RenderValue(body, data)
		if err != nil {
			return request, fmt.Errorf("failed to render body: %w", err)
		}

		request.Body, err = json.Marshal(rendered)
		if err != nil {
			return request, fmt.Errorf("failed to encode body: %w", err)
		}
	}

	return request, nil
}

func (n *HTTPRequestNode) recordSample(result *connector.Result, err error) {
	if n.config.IntegrationID == "" || n.deps.Samples == nil {
		return
	}

	n.deps.Samples.Record(connector.Sample(n.config.IntegrationID, models.SampleSourceWorkflow, result, err))
}

func (n *HTTPRequestNode) ttl() time.Duration {
	if n.deps.IdempotencyTTL > 0 {
		return n.deps.IdempotencyTTL
	}

	return 24 * time.Hour
}

func responseData(result *connector.Result) map[string]any {
	headers := make(map[string]any, len(result.Headers))
	for key := range result.Headers {
		headers[key] = result.Headers.Get(key)
	}

	data := map[string]any{
		"status_code": result.StatusCode,
		"headers":     headers,
		"body":        string(result.Body),
		"duration_ms": result.Latency.Milliseconds(),
		"attempts":    result.Attempts,
	}

	var jsonBody any
	if err := json.Unmarshal(result.Body, &jsonBody); err == nil {
		data["json"] = jsonBody
	}

	return data
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}

// InputPorts returns the input ports for the node.
func (n *HTTPRequestNode) InputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: InputPortMain, Description: "Main input for triggering the HTTP request"},
	}
}

// OutputPorts returns the output ports for the node.
func (n *HTTPRequestNode) OutputPorts() []protocol.Port {
	return []protocol.Port{
		{Name: OutputPortSuccess, Description: "Successful HTTP response data"},
		{Name: OutputPortError, Description: "Error information when the HTTP request fails"},
	}
}
