package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LLMUsage 定義通用的用量統計結構
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ThoughtsTokens   int    `json:"thoughts_tokens,omitempty"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LLMClient 通用 LLM 客戶端介面
type LLMClient interface {
	// Provider 回傳提供者名稱 (如 "hf", "ollama", "gemini")
	Provider() string

	// Model 回傳底層模型識別字串
	Model() string

	// StreamChat 流式對話，返回 StreamChunk channel
	StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error)

	// IsTransientError 判斷是否為暫時性錯誤 (如 503, Rate Limit)
	IsTransientError(err error) bool
}

// FallbackClient 支援多個 Client 分級嘗試
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

// Provider implements LLMClient. A fallback group reports the provider of
// its primary client.
func (f *FallbackClient) Provider() string {
	if len(f.Clients) == 0 {
		return "fallback"
	}
	return f.Clients[0].Provider()
}

// Model implements LLMClient.
func (f *FallbackClient) Model() string {
	if len(f.Clients) == 0 {
		return ""
	}
	return f.Clients[0].Model()
}

// StreamChat tries each wrapped client in order, retrying transient failures
// up to MaxRetries per client before moving to the next one.
func (f *FallbackClient) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			slog.Warn("Previous provider failed, trying fallback",
				"provider", client.Provider(), "model", client.Model(), "rank", i+1)
		}

		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			ch, err := client.StreamChat(ctx, messages)
			if err == nil {
				return ch, nil
			}

			lastErr = err

			if client.IsTransientError(err) && retry < maxRetries {
				slog.Warn("Transient provider error, retrying",
					"provider", client.Provider(), "model", client.Model(),
					"attempt", fmt.Sprintf("%d/%d", retry, maxRetries), "error", err)
				continue
			}

			// 非暫時性錯誤，或者已達最大重試次數
			slog.Error("Provider failed", "provider", client.Provider(),
				"model", client.Model(), "error", err)
			break
		}
	}
	return nil, fmt.Errorf("all fallback providers failed, last error: %w", lastErr)
}

// IsTransientError 實作 LLMClient 介面
// FallbackClient 的錯誤代表所有 Child 都失敗了，因此視為非暫時性
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}
