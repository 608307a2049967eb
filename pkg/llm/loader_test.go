package llm

import (
	"errors"
	"testing"

	"concord/pkg/config"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
)

var errEveryTime = errors.New("provider down")

type fakeFactory struct{ createErr error }

func (f *fakeFactory) Create(group ProviderGroupConfig, env *config.Env, system *config.SystemConfig) (map[string]LLMClient, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	out := make(map[string]LLMClient, len(group.Models))
	for alias, model := range group.Models {
		out[alias] = &fakeClient{provider: group.Type, model: model}
	}
	return out, nil
}

func testEnv() *config.Env {
	return &config.Env{
		Phi3Model:    "org/phi",
		MistralModel: "org/mistral",
		QwenModel:    "org/qwen",
	}
}

func TestBuildClientsFillsModelsFromEnv(t *testing.T) {
	RegisterProvider("fake", &fakeFactory{})

	cfg := &config.Config{LLM: jsoniter.RawMessage(`[{"type": "fake"}]`)}
	clients, err := BuildClients(cfg, testEnv(), config.DefaultSystemConfig())
	require.NoError(t, err)
	require.Len(t, clients, 3)

	require.Equal(t, "org/phi", clients["phi3"].Model())
	require.Equal(t, "org/mistral", clients["mistral"].Model())
	require.Equal(t, "org/qwen", clients["qwen"].Model())
	require.Equal(t, "fake", clients["phi3"].Provider())
}

func TestBuildClientsExplicitModels(t *testing.T) {
	RegisterProvider("fake", &fakeFactory{})

	cfg := &config.Config{LLM: jsoniter.RawMessage(
		`[{"type": "fake", "models": {"qwen": "qwen2.5-coder:7b"}}]`)}
	clients, err := BuildClients(cfg, testEnv(), config.DefaultSystemConfig())
	require.NoError(t, err)
	require.Len(t, clients, 1)
	require.Equal(t, "qwen2.5-coder:7b", clients["qwen"].Model())
}

func TestBuildClientsWrapsDuplicateAliasesInFallback(t *testing.T) {
	RegisterProvider("fake", &fakeFactory{})
	RegisterProvider("fake2", &fakeFactory{})

	cfg := &config.Config{LLM: jsoniter.RawMessage(
		`[{"type": "fake"}, {"type": "fake2", "models": {"phi3": "local/phi"}}]`)}
	clients, err := BuildClients(cfg, testEnv(), config.DefaultSystemConfig())
	require.NoError(t, err)

	fb, ok := clients["phi3"].(*FallbackClient)
	require.True(t, ok)
	require.Len(t, fb.Clients, 2)
	// 第一組為主要提供者
	require.Equal(t, "fake", fb.Provider())
	require.Equal(t, "org/phi", fb.Model())

	// 只出現一次的別名不包裹
	_, ok = clients["mistral"].(*FallbackClient)
	require.False(t, ok)
}

func TestBuildClientsSkipsFailingGroups(t *testing.T) {
	RegisterProvider("fake", &fakeFactory{})
	RegisterProvider("broken", &fakeFactory{createErr: errEveryTime})

	cfg := &config.Config{LLM: jsoniter.RawMessage(
		`[{"type": "broken"}, {"type": "fake"}]`)}
	clients, err := BuildClients(cfg, testEnv(), config.DefaultSystemConfig())
	require.NoError(t, err)
	require.Len(t, clients, 3)
}

func TestBuildClientsNoUsableProviders(t *testing.T) {
	cfg := &config.Config{LLM: jsoniter.RawMessage(`[{"type": "does-not-exist"}]`)}
	_, err := BuildClients(cfg, testEnv(), config.DefaultSystemConfig())
	require.Error(t, err)
}

func TestBuildClientsRejectsMalformedConfig(t *testing.T) {
	cfg := &config.Config{LLM: jsoniter.RawMessage(`{"not": "an array"}`)}
	_, err := BuildClients(cfg, testEnv(), config.DefaultSystemConfig())
	require.Error(t, err)
}
