package config

import (
	"fmt"
	"os"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings like channel credentials, LLM provider
// groups, and agent prompt overrides.
type Config struct {
	// Channels contains a map of channel identifiers (e.g., "web", "telegram")
	// to their specific configuration payloads in raw JSON format.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// LLM holds the provider group configuration in raw JSON. When empty,
	// the default Hugging Face provider group is synthesized from the
	// environment.
	LLM jsoniter.RawMessage `json:"llm"`
	// Agents maps agent role names ("research", "documentation", "coding")
	// to their overrides. Roles absent from the map use built-in defaults.
	Agents map[string]AgentConfig `json:"agents"`
}

// AgentConfig carries per-role overrides for one of the three agents.
type AgentConfig struct {
	// Model is the model alias the agent is bound to ("phi3", "mistral", "qwen").
	Model string `json:"model,omitempty"`
	// SystemPrompt replaces the built-in role prompt when non-empty.
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// Validate ensures the configuration structure is internally consistent.
func (c *Config) Validate() error {
	for role, ac := range c.Agents {
		switch role {
		case "research", "documentation", "coding":
		default:
			return fmt.Errorf("unknown agent role %q in config", role)
		}
		switch ac.Model {
		case "", "phi3", "mistral", "qwen":
		default:
			return fmt.Errorf("unknown model alias %q for agent %q", ac.Model, role)
		}
	}
	return nil
}

// SystemConfig defines engine-level technical parameters.
// These settings are stored in system.json and control the performance,
// reliability, and technical behavior of the engine.
type SystemConfig struct {
	// MaxRetries is the number of times the system will attempt to
	// recover from a transient LLM or network error before giving up.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the duration to wait (in milliseconds) between
	// consecutive retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for a single
	// agent turn. The context is cancelled when exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// InternalChannelBuffer defines the size of the internal Go channels
	// used for buffering stream chunks to prevent production blocking.
	InternalChannelBuffer int `json:"internal_channel_buffer"`
	// ThinkingInitDelayMs is the time to wait (in milliseconds) after a
	// user message before showing the "thinking" status in the UI.
	ThinkingInitDelayMs int `json:"thinking_init_delay_ms"`
	// ShowThinking determines whether model reasoning blocks are streamed
	// and displayed to the end user.
	ShowThinking bool `json:"show_thinking"`
	// HistoryMaxMessages caps the per-session sliding window. Older
	// messages past the cap are dropped, keeping the initial system message.
	HistoryMaxMessages int `json:"history_max_messages"`
	// SearchMaxResults is the default result count for the web search tool.
	SearchMaxResults int `json:"search_max_results"`
	// SearchCacheSize is the number of recent search queries kept in the
	// in-memory LRU cache.
	SearchCacheSize int `json:"search_cache_size"`
	// StorageDir is the directory where session histories are persisted.
	StorageDir string `json:"storage_dir"`
	// TelegramMessageLimit is the maximum character count for a single
	// Telegram message. Longer responses are split into multiple chunks.
	TelegramMessageLimit int `json:"telegram_message_limit"`
	// OllamaDefaultURL is the fallback endpoint used when connecting
	// to a local Ollama instance if no specific URL is provided.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
}

// DefaultSystemConfig returns a SystemConfig initialized with safe default
// values. Used as a fallback when system.json is missing or corrupt, so the
// engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:            3,
		RetryDelayMs:          500,
		LLMTimeoutMs:          600000,
		InternalChannelBuffer: 100,
		ThinkingInitDelayMs:   500,
		ShowThinking:          true,
		HistoryMaxMessages:    60,
		SearchMaxResults:      8,
		SearchCacheSize:       128,
		StorageDir:            "data/sessions",
		TelegramMessageLimit:  4000,
		OllamaDefaultURL:      "http://localhost:11434",
		LogLevel:              "info",
	}
}

// Env captures the process-environment boundary of the service. These are
// the variables the container contract defines; they take precedence over
// anything found in config.json.
type Env struct {
	// HuggingFaceAPIKey authenticates against the hosted inference router.
	HuggingFaceAPIKey string
	// HFHome is the model cache directory, forwarded to the serving backend.
	HFHome string
	// Phi3Model, MistralModel and QwenModel are the hosted model identifiers
	// backing the three agent roles.
	Phi3Model    string
	MistralModel string
	QwenModel    string
	// CUDAVisibleDevices and TorchAllocConf are GPU allocation knobs for the
	// serving backend. They are recorded and forwarded, never interpreted.
	CUDAVisibleDevices string
	TorchAllocConf     string
	// ServerAddress and ServerPort define the web channel bind point.
	ServerAddress string
	ServerPort    int
}

// EnvFromProcess reads the environment boundary, applying documented defaults.
func EnvFromProcess() *Env {
	e := &Env{
		HuggingFaceAPIKey:  os.Getenv("HUGGINGFACE_API_KEY"),
		HFHome:             os.Getenv("HF_HOME"),
		Phi3Model:          getenvDefault("PHI3_MODEL_NAME", "microsoft/Phi-3-mini-4k-instruct"),
		MistralModel:       getenvDefault("MISTRAL_MODEL_NAME", "mistralai/Mistral-7B-Instruct-v0.3"),
		QwenModel:          getenvDefault("QWEN_MODEL_NAME", "Qwen/Qwen2.5-7B-Instruct"),
		CUDAVisibleDevices: os.Getenv("CUDA_VISIBLE_DEVICES"),
		TorchAllocConf:     os.Getenv("PYTORCH_CUDA_ALLOC_CONF"),
		ServerAddress:      getenvDefault("STREAMLIT_SERVER_ADDRESS", "0.0.0.0"),
		ServerPort:         8501,
	}

	if raw := os.Getenv("STREAMLIT_SERVER_PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 && port < 65536 {
			e.ServerPort = port
		}
	}

	return e
}

// ModelFor resolves a model alias to the hosted model identifier configured
// for it. Unknown aliases resolve to the empty string.
func (e *Env) ModelFor(alias string) string {
	switch alias {
	case "phi3":
		return e.Phi3Model
	case "mistral":
		return e.MistralModel
	case "qwen":
		return e.QwenModel
	}
	return ""
}

// Aliases lists the supported model aliases in canonical order.
func Aliases() []string {
	return []string{"phi3", "mistral", "qwen"}
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Load reads and parses the JSON configuration files from the current
// working directory. config.json is optional for this service: when it is
// absent an empty Config is returned and everything runs off the environment
// boundary. system.json is loaded independently with defaults as fallback.
func Load() (*Config, *SystemConfig, error) {
	cfg := &Config{}

	appFile, err := os.ReadFile("config.json")
	switch {
	case os.IsNotExist(err):
		// Environment-only deployment, the common container case.
	case err != nil:
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(appFile, cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	sysCfg := LoadSystemConfig("system.json")

	return cfg, sysCfg, nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails.
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		return cfg // Parse failed, use defaults
	}

	return cfg
}
