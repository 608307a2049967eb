package llm

import (
	"fmt"
	"log/slog"
	"time"

	"concord/pkg/config"
)

// BuildClients 根據設定檔與環境變數建立以模型別名為 key 的 LLM Client 集合。
// 同一個別名出現在多個 Provider Group 時，依序包裹為 FallbackClient。
func BuildClients(cfg *config.Config, env *config.Env, system *config.SystemConfig) (map[string]LLMClient, error) {
	groups, err := resolveGroups(cfg, env)
	if err != nil {
		return nil, err
	}

	candidates := make(map[string][]LLMClient)

	for _, group := range groups {
		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			slog.Warn("Unknown provider type, skipping group", "type", group.Type)
			continue
		}

		clients, err := factory.Create(group, env, system)
		if err != nil {
			slog.Warn("Failed to create provider clients", "type", group.Type, "error", err)
			continue
		}

		for alias, client := range clients {
			candidates[alias] = append(candidates[alias], client)
			slog.Info("LLM client ready", "alias", alias,
				"provider", client.Provider(), "model", client.Model())
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no LLM clients could be initialized")
	}

	result := make(map[string]LLMClient, len(candidates))
	for alias, clients := range candidates {
		if len(clients) == 1 {
			result[alias] = clients[0]
			continue
		}
		// 多個候選者時包裹在 FallbackClient 中，代入系統層級的重試設定
		result[alias] = &FallbackClient{
			Clients:    clients,
			MaxRetries: system.MaxRetries,
			RetryDelay: time.Duration(system.RetryDelayMs) * time.Millisecond,
		}
	}

	return result, nil
}

// resolveGroups parses the raw provider group config, falling back to a
// single environment-driven Hugging Face group when config.json carries no
// llm section. Group fields left empty are filled from the environment.
func resolveGroups(cfg *config.Config, env *config.Env) ([]ProviderGroupConfig, error) {
	var groups []ProviderGroupConfig

	if len(cfg.LLM) > 0 {
		if err := json.Unmarshal(cfg.LLM, &groups); err != nil {
			return nil, fmt.Errorf("failed to parse 'llm' config: %w", err)
		}
	}

	if len(groups) == 0 {
		groups = []ProviderGroupConfig{{Type: "hf"}}
	}

	for i := range groups {
		if len(groups[i].Models) == 0 {
			groups[i].Models = map[string]string{}
			for _, alias := range config.Aliases() {
				groups[i].Models[alias] = env.ModelFor(alias)
			}
		}
	}

	return groups, nil
}
