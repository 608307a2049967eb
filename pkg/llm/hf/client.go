package hf

import (
	"context"
	"strings"

	"concord/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultRouterURL is the OpenAI-compatible endpoint of the Hugging Face
// Inference Providers router.
const DefaultRouterURL = "https://router.huggingface.co/v1"

// Client wraps the official OpenAI Go SDK pointed at the Hugging Face
// inference router, one instance per hosted model.
type Client struct {
	client  *openai.Client
	model   string
	options map[string]any
}

// NewClient creates a client for a single hosted model.
func NewClient(apiKey, model, baseURL string, options map[string]any) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultRouterURL
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)

	return &Client{
		client:  &client,
		model:   model,
		options: options,
	}, nil
}

func (c *Client) Provider() string {
	return "hf"
}

func (c *Client) Model() string {
	return c.model
}

// IsTransientError implements the llm.LLMClient interface.
func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	// Transient: server-side temporary failures. The router returns 503
	// while a cold model is loading.
	if strings.Contains(msg, "429") ||
		strings.Contains(msg, "500 internal") ||
		strings.Contains(msg, "502 bad gateway") ||
		strings.Contains(msg, "503 service unavailable") ||
		strings.Contains(msg, "model is loading") ||
		strings.Contains(msg, "overloaded") {
		return true
	}

	// Everything else (400 Bad Request, 401 Unauthorized, etc.) is non-transient
	return false
}

// StreamChat implements llm.LLMClient using the chat completions streaming API.
func (c *Client) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	chunkCh := make(chan llm.StreamChunk, 100)

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: c.convertMessages(messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	opts := []option.RequestOption{}

	// Generation options pass through as raw JSON so new knobs don't
	// require SDK type plumbing.
	if t, ok := c.options["temperature"].(float64); ok {
		opts = append(opts, option.WithJSONSet("temperature", t))
	}
	if p, ok := c.options["top_p"].(float64); ok {
		opts = append(opts, option.WithJSONSet("top_p", p))
	}
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		opts = append(opts, option.WithJSONSet("max_tokens", int(maxTok)))
	}

	go func() {
		defer close(chunkCh)

		stream := c.client.Chat.Completions.NewStreaming(ctx, params, opts...)
		defer stream.Close()

		var finishReason string
		var usage *llm.LLMUsage

		for stream.Next() {
			chunk := stream.Current()

			if chunk.Usage.TotalTokens > 0 {
				usage = &llm.LLMUsage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}

			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			// Some router backends (DeepSeek-style) emit reasoning deltas in
			// a non-standard field next to content.
			if raw, ok := choice.Delta.JSON.ExtraFields["reasoning_content"]; ok {
				var thought string
				if err := json.Unmarshal([]byte(raw.Raw()), &thought); err == nil && thought != "" {
					chunkCh <- llm.NewThinkingChunk(thought)
				}
			}

			if choice.Delta.Content != "" {
				chunkCh <- llm.NewTextChunk(choice.Delta.Content)
			}

			if choice.FinishReason != "" {
				finishReason = normalizeStopReason(choice.FinishReason)
			}
		}

		if err := stream.Err(); err != nil {
			chunkCh <- llm.NewErrorChunk("Stream error: "+err.Error(), err)
			return
		}

		if finishReason == "" {
			finishReason = llm.StopReasonStop
		}
		if usage != nil {
			usage.StopReason = finishReason
		}
		chunkCh <- llm.NewFinalChunk(finishReason, usage)
	}()

	return chunkCh, nil
}

func (c *Client) convertMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	items := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, m := range messages {
		text := m.GetTextContent()
		if text == "" {
			continue
		}
		switch m.Role {
		case llm.RoleSystem:
			items = append(items, openai.SystemMessage(text))
		case llm.RoleUser:
			items = append(items, openai.UserMessage(text))
		case llm.RoleAssistant:
			items = append(items, openai.AssistantMessage(text))
		}
	}

	return items
}

// normalizeStopReason converts the provider finish_reason to the
// standardized lowercase format.
func normalizeStopReason(reason string) string {
	switch strings.ToLower(reason) {
	case "stop", "eos", "eos_token":
		return llm.StopReasonStop
	case "length", "max_tokens":
		return llm.StopReasonLength
	default:
		return strings.ToLower(reason)
	}
}
