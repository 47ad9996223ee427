package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "gpt-4o", cfg.LLM.VisionModel)
	assert.Equal(t, 1024, cfg.LLM.MaxTokens)
	assert.Equal(t, FormatParagraph, cfg.Classifier.Format)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey.Value())
	assert.Equal(t, 60*time.Second, cfg.LLM.BatchTimeout.Duration())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
llm:
  model: gpt-4o-mini
  batch_timeout: 5s
classifier:
  format: line
logging:
  format: json
`)
	t.Setenv("STUDYLOG_SERVER_PORT", "9100")
	t.Setenv("STUDYLOG_LLM_API_KEY", "sk-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.VisionModel)
	assert.Equal(t, 5*time.Second, cfg.LLM.BatchTimeout.Duration())
	assert.Equal(t, FormatLine, cfg.Classifier.Format)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey.Value())
}

func TestLoadRejectsBadFormat(t *testing.T) {
	path := writeConfig(t, "classifier:\n  format: xml\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier.format")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.port", envKey("STUDYLOG_SERVER_PORT"))
	assert.Equal(t, "llm.api_key", envKey("STUDYLOG_LLM_API_KEY"))
	assert.Equal(t, "store.path", envKey("STUDYLOG_STORE_PATH"))
}

func TestSecretNeverPrinted(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))

	out, err := json.Marshal(struct{ Key Secret }{Key: s})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "sk-live")
	assert.Equal(t, "sk-live-123", s.Value())
}
