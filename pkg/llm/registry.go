package llm

import (
	"concord/pkg/config"
)

// ProviderGroupConfig 定義一組模型的配置
// 作為 Provider Factory 的輸入標準
type ProviderGroupConfig struct {
	// Type 是提供者類型 ("hf", "ollama", "gemini")
	Type string `json:"type"`
	// APIKey 為提供者的認證金鑰；hf 類型留空時回退到
	// HUGGINGFACE_API_KEY 環境變數
	APIKey string `json:"api_key,omitempty"`
	// BaseURL 覆蓋提供者的預設端點
	BaseURL string `json:"base_url,omitempty"`
	// Models 將模型別名 (phi3/mistral/qwen) 映射到提供者端的模型識別字串。
	// 留空時由環境變數 (PHI3_MODEL_NAME 等) 補齊
	Models map[string]string `json:"models,omitempty"`
	// Options 為提供者特定的生成參數 (temperature, max_tokens...)
	Options map[string]any `json:"options,omitempty"`
}

// ProviderFactory 定義建立 LLM Client 的工廠介面
type ProviderFactory interface {
	// Create 根據配置建立一組以模型別名為 key 的 clients
	Create(group ProviderGroupConfig, env *config.Env, system *config.SystemConfig) (map[string]LLMClient, error)
}

// 全域 Provider 註冊表
var providerRegistry = make(map[string]ProviderFactory)

// RegisterProvider 註冊一個 Provider Factory
func RegisterProvider(name string, factory ProviderFactory) {
	providerRegistry[name] = factory
}

// GetProviderFactory 取得指定名稱的 Provider Factory
func GetProviderFactory(name string) (ProviderFactory, bool) {
	f, ok := providerRegistry[name]
	return f, ok
}
