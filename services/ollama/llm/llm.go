// Package llm implements the inference collaborator against Ollama's
// OpenAI-compatible chat completions endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"copilot/core"
)

// Sentinel errors for inference calls.
var (
	// ErrNotInitialized is returned when a completion is requested before
	// Init succeeded.
	ErrNotInitialized = errors.New("llm service not initialized")
	// ErrEmptyResponse is returned when the endpoint answers with no
	// choices or a blank completion.
	ErrEmptyResponse = errors.New("empty response from llm")
)

// Config holds the configuration for the Ollama service.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint. Ollama serves this at
	// /v1 on its default port.
	BaseURL     string  `json:"base_url,omitempty"`
	APIKey      string  `json:"api_key,omitempty"` // ignored by Ollama, required non-empty by the client
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// DefaultConfig returns a Config targeting a local Ollama with a small model.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:11434/v1",
		APIKey:      "ollama",
		Model:       "llama3.2:3b",
		MaxTokens:   120,
		Temperature: 0.3,
	}
}

// OllamaLLMService implements the runner's LLMService interface using the
// OpenAI-compatible API exposed by Ollama.
type OllamaLLMService struct {
	config Config
	logger *core.Logger

	client        *openai.Client
	isInitialized bool
	mu            sync.RWMutex
}

// NewOllamaLLMService creates a new instance of OllamaLLMService.
func NewOllamaLLMService(config Config, logger *core.Logger) *OllamaLLMService {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.APIKey == "" {
		config.APIKey = def.APIKey
	}
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = def.MaxTokens
	}
	if config.Temperature == 0 {
		config.Temperature = def.Temperature
	}

	return &OllamaLLMService{
		config: config,
		logger: logger.With(map[string]interface{}{"component": "ollama"}),
	}
}

// Init creates the client and verifies the endpoint is reachable and the
// configured model is available.
func (s *OllamaLLMService) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clientConfig := openai.DefaultConfig(s.config.APIKey)
	clientConfig.BaseURL = s.config.BaseURL
	client := openai.NewClientWithConfig(clientConfig)

	models, err := client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("llm: connect %q: %w", s.config.BaseURL, err)
	}

	available := make([]string, 0, len(models.Models))
	found := false
	for _, m := range models.Models {
		available = append(available, m.ID)
		if m.ID == s.config.Model {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("llm: model %q not found, available: %s", s.config.Model, strings.Join(available, ", "))
	}

	s.client = client
	s.isInitialized = true
	s.logger.With(map[string]interface{}{"model": s.config.Model}).Info("connected to ollama")
	return nil
}

// Cleanup releases the client.
func (s *OllamaLLMService) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.isInitialized = false
	return nil
}

// Reset recreates the client with the same config.
func (s *OllamaLLMService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clientConfig := openai.DefaultConfig(s.config.APIKey)
	clientConfig.BaseURL = s.config.BaseURL
	s.client = openai.NewClientWithConfig(clientConfig)
	s.isInitialized = true
	return nil
}

// GenerateAnswer runs a non-streaming completion over the given messages and
// returns the answer text. Empty or malformed completions return
// ErrEmptyResponse rather than an empty string.
func (s *OllamaLLMService) GenerateAnswer(ctx context.Context, messages []core.LLMMessage) (string, error) {
	s.mu.RLock()
	client := s.client
	initialized := s.isInitialized
	s.mu.RUnlock()

	if !initialized {
		return "", ErrNotInitialized
	}

	req := openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    s.convertMessages(messages),
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm: completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyResponse
	}

	return answer, nil
}

// convertMessages converts core messages to OpenAI messages.
func (s *OllamaLLMService) convertMessages(messages []core.LLMMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    s.convertRole(msg.Role),
			Content: msg.Message,
		})
	}
	return out
}

// convertRole converts core role to OpenAI role.
func (s *OllamaLLMService) convertRole(role core.LLMMessageRole) string {
	switch role {
	case core.LLMMessageRoleAssistant:
		return openai.ChatMessageRoleAssistant
	case core.LLMMessageRoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
