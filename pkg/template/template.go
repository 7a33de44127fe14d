// Package template renders node configuration against the data of a run.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/conduit/pkg/models"
)

// Data builds the template data of a node execution. Templates see the
// trigger payload, workflow variables, the output of finished nodes keyed by
// node id and the inputs of the current node keyed by port.
func Data(executionCtx *models.ExecutionContext, inputs map[string]any) map[string]any {
	nodes := make(map[string]any, len(executionCtx.NodeResults))
	for id, result := range executionCtx.NodeResults {
		nodes[id] = result.Data
	}

	var input any = inputs
	if len(inputs) == 1 {
		if main, ok := inputs[models.PortMain]; ok {
			input = main
		}
	}

	return map[string]any{
		"trigger":  executionCtx.Trigger,
		"vars":     executionCtx.Variables,
		"nodes":    nodes,
		"input":    input,
		"inputs":   inputs,
		"metadata": executionCtx.Metadata,
		"run": map[string]any{
			"id":               executionCtx.RunID,
			"workflow_id":      executionCtx.WorkflowID,
			"workflow_version": executionCtx.WorkflowVersion,
			"node_id":          executionCtx.NodeID,
			"attempt":          executionCtx.Attempt,
		},
	}
}

// RenderWithContext renders input against the data of a node execution.
func RenderWithContext(input string, executionCtx *models.ExecutionContext, inputs map[string]any) (any, error) {
	return Render(input, Data(executionCtx, inputs))
}

// Render executes templateStr and decodes the output as JSON, number or
// boolean when it looks like one, falling back to the plain string.
func Render(templateStr string, data any) (any, error) {
	result, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderString executes templateStr and returns the raw output.
func RenderString(templateStr string, data any) (string, error) {
	if !NeedsTemplating(templateStr) {
		return templateStr, nil
	}

	tmpl, err := template.
		New("node").
		Option("missingkey=zero").
		Funcs(funcs).
		Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// RenderValue renders every string found in value, walking maps and slices.
func RenderValue(value any, data any) (any, error) {
	switch v := value.(type) {
	case string:
		if !NeedsTemplating(v) {
			return v, nil
		}

		return Render(v, data)
	case map[string]any:
		out := make(map[string]any, len(v))

		for key, item := range v {
			rendered, err := RenderValue(item, data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}

			out[key] = rendered
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := RenderValue(item, data)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}

// NeedsTemplating reports whether input contains template actions.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"rand": func(upper int) int {
		if upper <= 0 {
			return 0
		}

		num := make([]byte, 1)

		_, err := rand.Read(num)
		if err != nil {
			return 0
		}

		return int(num[0]) % upper
	},
	"json": func(value any) (string, error) {
		out, err := json.Marshal(value)
		if err != nil {
			return "", err
		}

		return string(out), nil
	},
	"default": func(fallback, value any) any {
		if value == nil || value == "" {
			return fallback
		}

		return value
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// Truthy converts a rendered value to a boolean. Non-empty strings,
// collections and non-zero numbers are true, unless the string parses as a
// boolean.
func Truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}

		return strings.TrimSpace(v) != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return false
	}
}

// RenderItems renders expression and requires the result to be an array.
func RenderItems(expression string, data any) ([]any, error) {
	value, err := Render(expression, data)
	if err != nil {
		return nil, err
	}

	switch v := value.(type) {
	case []any:
		return v, nil
	case nil:
		return []any{}, nil
	case string:
		if v == "" || v == "null" {
			return []any{}, nil
		}
	}

	return nil, fmt.Errorf("items must render to an array, got %T", value)
}

// WithItem returns a copy of data exposing item and index to templates.
func WithItem(data map[string]any, item any, index int) map[string]any {
	scoped := make(map[string]any, len(data)+2)
	for key, value := range data {
		scoped[key] = value
	}

	scoped["item"] = item
	scoped["index"] = index

	return scoped
}
