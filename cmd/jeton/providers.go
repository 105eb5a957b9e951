package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alecgard/jeton/internal/config"
	"github.com/alecgard/jeton/internal/provider"
)

// buildProviders constructs every configured backend and selects the
// configured default.
func buildProviders(ctx context.Context, cfg *config.Config) (*provider.Switcher, error) {
	p := cfg.Providers
	backends := make(map[string]provider.Provider)

	for _, name := range cfg.ProviderNames() {
		switch name {
		case provider.OpenAI:
			backends[name] = provider.NewOpenAIClient(provider.OpenAIConfig{
				APIKey:      p.OpenAI.APIKey,
				BaseURL:     p.OpenAI.BaseURL,
				Model:       p.OpenAI.Model,
				Temperature: p.OpenAI.Temperature,
				Timeout:     p.OpenAI.Timeout,
			})
		case provider.Ollama:
			backends[name] = provider.NewOllamaClient(provider.OllamaConfig{
				Endpoint: p.Ollama.BaseURL,
				Model:    p.Ollama.Model,
				Timeout:  p.Ollama.Timeout,
			})
		case provider.Gemini:
			client, err := provider.NewGeminiClient(ctx, provider.GeminiConfig{
				APIKey: p.Gemini.APIKey,
				Model:  p.Gemini.Model,
			})
			if err != nil {
				return nil, fmt.Errorf("creating gemini client: %w", err)
			}
			backends[name] = client
		}
	}
	if len(backends) == 0 {
		return nil, errors.New("no AI provider configured")
	}

	sw, err := provider.NewSwitcher(p.Default, backends)
	if err != nil {
		return nil, err
	}
	slog.Info("providers configured", "current", sw.CurrentProvider(), "available", sw.Names())
	return sw, nil
}
