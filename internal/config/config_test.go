package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "medassist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Router.ConfidenceThreshold)
	assert.Equal(t, 2, cfg.Router.MaxRetries)
	assert.Equal(t, 20, cfg.Session.MaxHistory)
	assert.Equal(t, 30, cfg.Session.TTLMinutes)
	assert.Equal(t, "policy_documents", cfg.VectorDB.Collection)
	assert.Equal(t, "neo4j", cfg.Graph.Database)
	assert.Equal(t, 2112, cfg.Observability.MetricsPort)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileValues(t *testing.T) {
	writeConfig(t, `
router:
  confidence_threshold: 0.85
  max_retries: 1
session:
  max_history: 10
  ttl_minutes: 60
graph:
  url: http://neo4j:7474
  password: secret
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.85, cfg.Router.ConfidenceThreshold)
	assert.Equal(t, 1, cfg.Router.MaxRetries)
	assert.Equal(t, 10, cfg.Session.MaxHistory)
	assert.Equal(t, 60, cfg.Session.TTLMinutes)
	assert.Equal(t, "http://neo4j:7474", cfg.Graph.URL)
	assert.Equal(t, "secret", cfg.Graph.Password)
	// Untouched sections keep defaults
	assert.Equal(t, 3, cfg.VectorDB.TopK)
}

func TestEnvOverrides(t *testing.T) {
	writeConfig(t, `
graph:
  password: from-file
`)
	t.Setenv("NEO4J_PASSWORD", "from-env")
	t.Setenv("CONFIDENCE_THRESH", "0.9")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Graph.Password)
	assert.Equal(t, 0.9, cfg.Router.ConfidenceThreshold)
}

func TestValidate(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Router.ConfidenceThreshold = 1.5
	assert.Error(t, cfg.Validate())
	cfg.Router.ConfidenceThreshold = 0.7

	cfg.Session.MaxHistory = 0
	assert.Error(t, cfg.Validate())
	cfg.Session.MaxHistory = 20

	cfg.EventLog.Enabled = true
	cfg.EventLog.DSN = ""
	assert.Error(t, cfg.Validate())
	cfg.EventLog.DSN = "postgres://localhost/medassist"
	assert.NoError(t, cfg.Validate())
}
