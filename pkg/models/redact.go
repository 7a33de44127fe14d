package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// RedactedSecret replaces credentials in everything that leaves the process.
// Writing it back through an update keeps the stored value.
const RedactedSecret = "********"

var secretAuthFields = []string{"token", "password", "key_value"}

// IsSensitiveHeader reports whether a header usually carries a credential.
func IsSensitiveHeader(name string) bool {
	name = strings.ToLower(name)

	switch name {
	case "cookie", "x-api-key", "api-key", "apikey":
		return true
	}

	return strings.Contains(name, "authorization") ||
		strings.Contains(name, "token") ||
		strings.Contains(name, "secret")
}

func mask(value string) string {
	if value == "" {
		return ""
	}

	return RedactedSecret
}

// Redacted returns a copy of a with every credential masked.
func (a Auth) Redacted() Auth {
	a.Token = mask(a.Token)
	a.Password = mask(a.Password)
	a.KeyValue = mask(a.KeyValue)

	return a
}

// Redacted returns a copy of the integration that is safe to show or
// broadcast.
func (i *Integration) Redacted() *Integration {
	if i == nil {
		return nil
	}

	out := *i
	out.Auth = i.Auth.Redacted()

	if i.Headers != nil {
		out.Headers = make(map[string]string, len(i.Headers))

		for name, value := range i.Headers {
			if IsSensitiveHeader(name) {
				value = mask(value)
			}

			out.Headers[name] = value
		}
	}

	out.Tags = append([]string(nil), i.Tags...)

	return &out
}

// KeepSecrets replaces masked credentials in i with the values stored in
// current, so a client can send back what it read.
func (i *Integration) KeepSecrets(current *Integration) {
	if current == nil {
		return
	}

	if i.Auth.Token == RedactedSecret {
		i.Auth.Token = current.Auth.Token
	}

	if i.Auth.Password == RedactedSecret {
		i.Auth.Password = current.Auth.Password
	}

	if i.Auth.KeyValue == RedactedSecret {
		i.Auth.KeyValue = current.Auth.KeyValue
	}

	if i.Headers == nil {
		return
	}

	headers := maps.Clone(i.Headers)

	for name, value := range headers {
		if value == RedactedSecret {
			headers[name] = current.Headers[name]
		}
	}

	i.Headers = headers
}

// RedactIntegrationSnapshot masks the credentials of an encoded integration.
func RedactIntegrationSnapshot(snapshot json.RawMessage) (json.RawMessage, error) {
	if len(snapshot) == 0 {
		return snapshot, nil
	}

	var doc map[string]any

	err := json.Unmarshal(snapshot, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode integration snapshot: %w", err)
	}

	redactDocument(doc)

	return json.Marshal(doc)
}

// RedactIntegrationChanges masks credential values in a diff of two
// integration snapshots.
func RedactIntegrationChanges(changes []Change) []Change {
	out := make([]Change, len(changes))

	for i, change := range changes {
		change.From = redactAt(change.Path, change.From)
		change.To = redactAt(change.Path, change.To)
		out[i] = change
	}

	return out
}

func redactAt(path string, value any) any {
	if value == nil {
		return nil
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")

	switch {
	case path == "" || path == "/":
		if doc, ok := value.(map[string]any); ok {
			doc = maps.Clone(doc)
			redactDocument(doc)

			return doc
		}
	case len(segments) == 1 && segments[0] == "auth":
		if auth, ok := value.(map[string]any); ok {
			return redactAuth(auth)
		}
	case len(segments) == 1 && segments[0] == "headers":
		if headers, ok := value.(map[string]any); ok {
			return redactHeaders(headers)
		}
	case len(segments) == 2 && segments[0] == "auth":
		for _, field := range secretAuthFields {
			if segments[1] == field {
				return maskAny(value)
			}
		}
	case len(segments) == 2 && segments[0] == "headers":
		if IsSensitiveHeader(unescapePointer(segments[1])) {
			return maskAny(value)
		}
	}

	return value
}

func redactDocument(doc map[string]any) {
	if auth, ok := doc["auth"].(map[string]any); ok {
		doc["auth"] = redactAuth(auth)
	}

	if headers, ok := doc["headers"].(map[string]any); ok {
		doc["headers"] = redactHeaders(headers)
	}
}

func redactAuth(auth map[string]any) map[string]any {
	out := maps.Clone(auth)

	for _, field := range secretAuthFields {
		if value, ok := out[field]; ok {
			out[field] = maskAny(value)
		}
	}

	return out
}

func redactHeaders(headers map[string]any) map[string]any {
	out := maps.Clone(headers)

	for name, value := range out {
		if IsSensitiveHeader(name) {
			out[name] = maskAny(value)
		}
	}

	return out
}

func maskAny(value any) any {
	if s, ok := value.(string); ok && s == "" {
		return s
	}

	return RedactedSecret
}

func unescapePointer(segment string) string {
	return strings.ReplaceAll(strings.ReplaceAll(segment, "~1", "/"), "~0", "~")
}
