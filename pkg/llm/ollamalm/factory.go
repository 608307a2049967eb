package ollamalm

import (
	"log/slog"

	"concord/pkg/config"
	"concord/pkg/llm"
)

// Factory handles creation of Ollama clients for local models.
type Factory struct{}

// Create implements llm.ProviderFactory.
func (f *Factory) Create(group llm.ProviderGroupConfig, env *config.Env, sys *config.SystemConfig) (map[string]llm.LLMClient, error) {
	baseURL := group.BaseURL
	if baseURL == "" {
		baseURL = sys.OllamaDefaultURL
	}

	clients := make(map[string]llm.LLMClient)
	for alias, model := range group.Models {
		if model == "" {
			continue
		}
		client, err := NewClient(model, baseURL, group.Options)
		if err != nil {
			slog.Error("Failed to create Ollama client", "alias", alias, "model", model, "error", err)
			continue
		}
		clients[alias] = client
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("ollama", &Factory{})
}
