package hf

import (
	"fmt"
	"log/slog"

	"concord/pkg/config"
	"concord/pkg/llm"
)

// Factory handles creation of Hugging Face router clients.
type Factory struct{}

// Create implements llm.ProviderFactory. One client is built per model
// alias; the API key falls back to the HUGGINGFACE_API_KEY environment value.
func (f *Factory) Create(group llm.ProviderGroupConfig, env *config.Env, sys *config.SystemConfig) (map[string]llm.LLMClient, error) {
	apiKey := group.APIKey
	if apiKey == "" {
		apiKey = env.HuggingFaceAPIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("hf provider requires an API key (set HUGGINGFACE_API_KEY)")
	}

	clients := make(map[string]llm.LLMClient)
	for alias, model := range group.Models {
		if model == "" {
			slog.Warn("No model configured for alias, skipping", "provider", "hf", "alias", alias)
			continue
		}
		client, err := NewClient(apiKey, model, group.BaseURL, group.Options)
		if err != nil {
			slog.Error("Failed to create HF client", "alias", alias, "model", model, "error", err)
			continue
		}
		clients[alias] = client
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("hf", &Factory{})
}
