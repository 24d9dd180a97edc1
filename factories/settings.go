// Package factories assembles configuration for the copilot's components
// from settings files and defaults.
package factories

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ollamallm "copilot/services/ollama/llm"
)

// ProfileConfig carries the interview context used to start a session.
type ProfileConfig struct {
	// MyProfile is the candidate's background and experience.
	MyProfile string `json:"my_profile,omitempty"`
	// JobContext describes the role being interviewed for.
	JobContext string `json:"job_context,omitempty"`
	// SystemInstruction overrides the assistant's default behavior prompt.
	SystemInstruction string `json:"system_instruction,omitempty"`
}

// ServerConfig configures the UI WebSocket listener.
type ServerConfig struct {
	Addr string `json:"addr,omitempty"`
	Path string `json:"path,omitempty"`
	// AudioEncoding describes binary frames from the UI: "pcm", "ulaw", "alaw".
	AudioEncoding   string `json:"audio_encoding,omitempty"`
	AudioSampleRate int    `json:"audio_sample_rate,omitempty"`
}

// StoreConfig configures where session state is persisted.
type StoreConfig struct {
	Path string `json:"path,omitempty"`
}

// RunnerConfig configures answer processing.
type RunnerConfig struct {
	// InferenceTimeoutSeconds bounds a single answer computation.
	InferenceTimeoutSeconds int `json:"inference_timeout_seconds,omitempty"`
}

// SettingsConfig is the top-level config loaded from settings.json.
type SettingsConfig struct {
	Profile ProfileConfig    `json:"profile,omitempty"`
	Ollama  ollamallm.Config `json:"ollama,omitempty"`
	Server  ServerConfig     `json:"server,omitempty"`
	Store   StoreConfig      `json:"store,omitempty"`
	Runner  RunnerConfig     `json:"runner,omitempty"`
}

// DefaultSettingsConfig returns a SettingsConfig pre-filled with defaults.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		Ollama: ollamallm.DefaultConfig(),
		Server: ServerConfig{
			Addr:            "127.0.0.1:8765",
			Path:            "/ws",
			AudioEncoding:   "pcm",
			AudioSampleRate: 16000,
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		Runner: RunnerConfig{
			InferenceTimeoutSeconds: 60,
		},
	}
}

// InferenceTimeout returns the configured timeout as a duration.
func (c RunnerConfig) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceTimeoutSeconds) * time.Second
}

// SettingsConfigFromJSON parses a JSON blob into a SettingsConfig, keeping
// defaults for fields the blob omits.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: %w", err)
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8765"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath()
	}
	if cfg.Runner.InferenceTimeoutSeconds <= 0 {
		cfg.Runner.InferenceTimeoutSeconds = 60
	}
	return cfg, nil
}

// SettingsConfigFromFile reads and parses a SettingsConfig from a JSON file.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	return SettingsConfigFromJSON(data)
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".interview-copilot", "session.json")
	}
	return filepath.Join(home, ".interview-copilot", "session.json")
}
