package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaConfig configures a local Ollama backend.
type OllamaConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// OllamaClient calls Ollama's /api/chat endpoint without streaming.
type OllamaClient struct {
	endpoint string
	model    string
	client   *http.Client
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// NewOllamaClient creates an Ollama client, filling in defaults for empty fields.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OllamaClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Generate implements Provider.
func (c *OllamaClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	body, err := json.Marshal(ollamaChatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", &ProviderError{Provider: Ollama, Err: fmt.Errorf("encoding request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: Ollama, Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	var out ollamaChatResponse
	if err := doJSON(c.client, req, &out); err != nil {
		return "", &ProviderError{Provider: Ollama, Err: err}
	}
	if out.Error != "" {
		return "", &ProviderError{Provider: Ollama, Err: errors.New(out.Error)}
	}
	return out.Message.Content, nil
}
