package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func secretIntegration() *Integration {
	return &Integration{
		ID:   "orders",
		Name: "Orders",
		Auth: Auth{Type: AuthTypeBasic, Username: "svc", Password: "hunter2", Token: "", KeyValue: "k-123"},
		Headers: map[string]string{
			"Authorization": "Bearer abc",
			"X-Api-Key":     "xyz",
			"Accept":        "application/json",
		},
	}
}

func TestIntegration_Redacted(t *testing.T) {
	t.Parallel()

	original := secretIntegration()
	redacted := original.Redacted()

	assert.Equal(t, "svc", redacted.Auth.Username)
	assert.Equal(t, RedactedSecret, redacted.Auth.Password)
	assert.Equal(t, RedactedSecret, redacted.Auth.KeyValue)
	assert.Empty(t, redacted.Auth.Token)
	assert.Equal(t, RedactedSecret, redacted.Headers["Authorization"])
	assert.Equal(t, RedactedSecret, redacted.Headers["X-Api-Key"])
	assert.Equal(t, "application/json", redacted.Headers["Accept"])

	assert.Equal(t, "hunter2", original.Auth.Password)
	assert.Equal(t, "Bearer abc", original.Headers["Authorization"])

	var nilIntegration *Integration
	assert.Nil(t, nilIntegration.Redacted())
}

func TestIntegration_KeepSecrets(t *testing.T) {
	t.Parallel()

	current := secretIntegration()

	update := current.Redacted()
	update.Auth.KeyValue = "k-456"
	update.Headers["Accept"] = "text/plain"

	update.KeepSecrets(current)

	assert.Equal(t, "hunter2", update.Auth.Password)
	assert.Equal(t, "k-456", update.Auth.KeyValue)
	assert.Equal(t, "Bearer abc", update.Headers["Authorization"])
	assert.Equal(t, "text/plain", update.Headers["Accept"])
}

func TestRedactIntegrationSnapshot(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(secretIntegration())
	require.NoError(t, err)

	redacted, err := RedactIntegrationSnapshot(data)
	require.NoError(t, err)

	assert.NotContains(t, string(redacted), "hunter2")
	assert.NotContains(t, string(redacted), "Bearer abc")
	assert.NotContains(t, string(redacted), "k-123")
	assert.Contains(t, string(redacted), `"username":"svc"`)

	_, err = RedactIntegrationSnapshot(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestRedactIntegrationChanges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		change Change
		want   Change
	}{
		{
			name:   "password replaced",
			change: Change{Op: ChangeOpReplace, Path: "/auth/password", From: "old", To: "new"},
			want:   Change{Op: ChangeOpReplace, Path: "/auth/password", From: RedactedSecret, To: RedactedSecret},
		},
		{
			name:   "token added",
			change: Change{Op: ChangeOpAdd, Path: "/auth/token", To: "tok"},
			want:   Change{Op: ChangeOpAdd, Path: "/auth/token", To: RedactedSecret},
		},
		{
			name:   "sensitive header",
			change: Change{Op: ChangeOpReplace, Path: "/headers/Authorization", From: "a", To: "b"},
			want:   Change{Op: ChangeOpReplace, Path: "/headers/Authorization", From: RedactedSecret, To: RedactedSecret},
		},
		{
			name:   "whole auth object",
			change: Change{Op: ChangeOpReplace, Path: "/auth", From: "none", To: map[string]any{"type": "bearer", "token": "tok"}},
			want:   Change{Op: ChangeOpReplace, Path: "/auth", From: "none", To: map[string]any{"type": "bearer", "token": RedactedSecret}},
		},
		{
			name:   "plain field",
			change: Change{Op: ChangeOpReplace, Path: "/timeout", From: 10.0, To: 20.0},
			want:   Change{Op: ChangeOpReplace, Path: "/timeout", From: 10.0, To: 20.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, []Change{tt.want}, RedactIntegrationChanges([]Change{tt.change}))
		})
	}
}
