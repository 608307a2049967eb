package geminilm

import (
	"context"
	"fmt"
	"log/slog"

	"concord/pkg/config"
	"concord/pkg/llm"
)

// Factory handles creation of Gemini clients.
type Factory struct{}

// Create implements llm.ProviderFactory.
func (f *Factory) Create(group llm.ProviderGroupConfig, env *config.Env, sys *config.SystemConfig) (map[string]llm.LLMClient, error) {
	if group.APIKey == "" {
		return nil, fmt.Errorf("gemini provider requires an api_key in its group config")
	}

	useThought := false
	if v, ok := group.Options["include_thoughts"].(bool); ok {
		useThought = v
	}

	clients := make(map[string]llm.LLMClient)
	for alias, model := range group.Models {
		if model == "" {
			continue
		}
		client, err := NewClient(context.Background(), group.APIKey, model, useThought)
		if err != nil {
			slog.Error("Failed to create Gemini client", "alias", alias, "model", model, "error", err)
			continue
		}
		clients[alias] = client
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("gemini", &Factory{})
}
