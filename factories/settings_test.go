package factories

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsConfig(t *testing.T) {
	cfg := DefaultSettingsConfig()

	assert.Equal(t, "127.0.0.1:8765", cfg.Server.Addr)
	assert.Equal(t, "/ws", cfg.Server.Path)
	assert.Equal(t, "pcm", cfg.Server.AudioEncoding)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Ollama.BaseURL)
	assert.NotEmpty(t, cfg.Ollama.Model)
	assert.NotEmpty(t, cfg.Store.Path)
	assert.Equal(t, 60*time.Second, cfg.Runner.InferenceTimeout())
}

func TestSettingsConfigFromJSON(t *testing.T) {
	data := []byte(`{
		"profile": {
			"my_profile": "Go developer, 8 years",
			"job_context": "Senior backend role"
		},
		"ollama": {
			"base_url": "http://remote:11434/v1",
			"model": "qwen2.5:7b"
		},
		"server": {"addr": "0.0.0.0:9000"},
		"runner": {"inference_timeout_seconds": 30}
	}`)

	cfg, err := SettingsConfigFromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, "Go developer, 8 years", cfg.Profile.MyProfile)
	assert.Equal(t, "Senior backend role", cfg.Profile.JobContext)
	assert.Equal(t, "http://remote:11434/v1", cfg.Ollama.BaseURL)
	assert.Equal(t, "qwen2.5:7b", cfg.Ollama.Model)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Runner.InferenceTimeout())

	// Omitted sections keep their defaults.
	assert.NotEmpty(t, cfg.Store.Path)
	assert.Equal(t, "/ws", cfg.Server.Path)
}

func TestSettingsConfigFromJSONInvalid(t *testing.T) {
	_, err := SettingsConfigFromJSON([]byte("{{{"))
	assert.Error(t, err)
}

func TestSettingsConfigFromJSONNormalizesBadValues(t *testing.T) {
	cfg, err := SettingsConfigFromJSON([]byte(`{"runner": {"inference_timeout_seconds": -5}, "server": {"addr": ""}}`))
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Runner.InferenceTimeoutSeconds)
	assert.Equal(t, "127.0.0.1:8765", cfg.Server.Addr)
}

func TestSettingsConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"addr": "127.0.0.1:7777"}}`), 0o644))

	cfg, err := SettingsConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7777", cfg.Server.Addr)
}

func TestSettingsConfigFromFileMissing(t *testing.T) {
	cfg, err := SettingsConfigFromFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
	// Defaults are still usable when the file is absent.
	assert.Equal(t, "127.0.0.1:8765", cfg.Server.Addr)
}
