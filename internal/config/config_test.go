package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"BaseURL": "https://vault.example.com",
		"PollSeconds": 5,
		"AuditPath": "/tmp/audit.db"
	}`), 0o600))

	o := &Options{BaseURL: "http://localhost:5000", PollSeconds: 10, LogLevel: "info"}
	require.NoError(t, applyFile(o, path))

	assert.Equal(t, "https://vault.example.com", o.BaseURL)
	assert.Equal(t, 5, o.PollSeconds)
	assert.Equal(t, "/tmp/audit.db", o.AuditPath)
	// Fields absent from the file keep their previous values.
	assert.Equal(t, "info", o.LogLevel)
}

func TestApplyFileMissing(t *testing.T) {
	o := &Options{}

	assert.Error(t, applyFile(o, filepath.Join(t.TempDir(), "nope.json")))
}

func TestApplyFileInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	assert.Error(t, applyFile(&Options{}, path))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("VAULT_API", "https://env.example.com")
	t.Setenv("VAULT_AUDIT", "/var/lib/audit.db")

	o := &Options{BaseURL: "http://localhost:5000", AuditPath: "vault_audit.db"}
	applyEnv(o)

	assert.Equal(t, "https://env.example.com", o.BaseURL)
	assert.Equal(t, "/var/lib/audit.db", o.AuditPath)
}

func TestApplyEnvLeavesUnsetAlone(t *testing.T) {
	t.Setenv("VAULT_API", "")
	t.Setenv("VAULT_AUDIT", "")

	o := &Options{BaseURL: "http://localhost:5000", AuditPath: "vault_audit.db"}
	applyEnv(o)

	assert.Equal(t, "http://localhost:5000", o.BaseURL)
	assert.Equal(t, "vault_audit.db", o.AuditPath)
}
