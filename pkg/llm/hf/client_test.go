package hf

import (
	"errors"
	"testing"

	"concord/pkg/llm"

	"github.com/stretchr/testify/require"
)

func TestIsTransientError(t *testing.T) {
	c, err := NewClient("key", "org/model", "", nil)
	require.NoError(t, err)

	transient := []string{
		"Get https://router.huggingface.co: context deadline exceeded",
		"dial tcp: connection refused",
		"429 Too Many Requests",
		"503 Service Unavailable",
		"model is loading, estimated 20s",
		"the server is overloaded",
	}
	for _, msg := range transient {
		require.True(t, c.IsTransientError(errors.New(msg)), msg)
	}

	permanent := []string{
		"401 Unauthorized",
		"400 Bad Request: invalid model",
		"404 Not Found",
	}
	for _, msg := range permanent {
		require.False(t, c.IsTransientError(errors.New(msg)), msg)
	}
	require.False(t, c.IsTransientError(nil))
}

func TestNormalizeStopReason(t *testing.T) {
	require.Equal(t, llm.StopReasonStop, normalizeStopReason("stop"))
	require.Equal(t, llm.StopReasonStop, normalizeStopReason("EOS_TOKEN"))
	require.Equal(t, llm.StopReasonLength, normalizeStopReason("length"))
	require.Equal(t, llm.StopReasonLength, normalizeStopReason("max_tokens"))
	require.Equal(t, "content_filter", normalizeStopReason("CONTENT_FILTER"))
}

func TestConvertMessagesSkipsEmpty(t *testing.T) {
	c, err := NewClient("key", "org/model", "", nil)
	require.NoError(t, err)

	msgs := []llm.Message{
		llm.NewSystemMessage("be helpful"),
		llm.NewUserMessage("hi"),
		{Role: llm.RoleAssistant}, // 空訊息不送給提供者
		llm.NewAssistantMessage("hello"),
	}
	require.Len(t, c.convertMessages(msgs), 3)
}
