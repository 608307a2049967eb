package geminilm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"concord/pkg/llm"

	"google.golang.org/genai"
)

// Client is a Google Gemini API client, kept as an optional hosted provider
// selectable through the provider group config.
type Client struct {
	client     *genai.Client
	model      string
	useThought bool
}

// NewClient creates a Gemini client with a single model and API key.
func NewClient(ctx context.Context, apiKey, model string, useThought bool) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		client:     client,
		model:      model,
		useThought: useThought,
	}, nil
}

func (c *Client) Provider() string {
	return "gemini"
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

	// 503 Service Unavailable / Overloaded
	if strings.Contains(msg, "503") || strings.Contains(msg, "overloaded") {
		return true
	}
	// 429 Too Many Requests (Rate Limit)
	if strings.Contains(msg, "429") || strings.Contains(msg, "resource exhausted") {
		return true
	}
	// 500 Internal Error (occasional upstream crashes)
	if strings.Contains(msg, "500") || strings.Contains(msg, "internal error") {
		return true
	}

	return false
}

// StreamChat implements llm.LLMClient.
func (c *Client) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	contents, systemInstruction := c.convertMessages(messages)

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)

		var thinkingCfg *genai.ThinkingConfig
		if c.useThought {
			thinkingCfg = &genai.ThinkingConfig{IncludeThoughts: true}
		}

		iter := c.client.Models.GenerateContentStream(ctx, c.model, contents, &genai.GenerateContentConfig{
			SystemInstruction: systemInstruction,
			ThinkingConfig:    thinkingCfg,
		})

		started := false
		var usage *llm.LLMUsage
		finishReason := llm.StopReasonStop

		for resp, err := range iter {
			if err != nil {
				slog.Error("Gemini stream error", "model", c.model, "error", err)
				if !started {
					select {
					case startResultCh <- err:
					default:
					}
				} else {
					chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err)
				}
				return
			}

			if !started {
				started = true
				select {
				case startResultCh <- nil:
				default:
				}
			}

			// Usage metadata usually arrives with the last chunk
			if resp.UsageMetadata != nil {
				u := resp.UsageMetadata
				usage = &llm.LLMUsage{
					PromptTokens:     int(u.PromptTokenCount),
					CompletionTokens: int(u.CandidatesTokenCount),
					TotalTokens:      int(u.TotalTokenCount),
					ThoughtsTokens:   int(u.ThoughtsTokenCount),
				}
			}

			for _, candidate := range resp.Candidates {
				if candidate.FinishReason != "" {
					finishReason = normalizeStopReason(string(candidate.FinishReason))
				}
				if candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part.Text == "" {
						continue
					}
					if part.Thought {
						chunkCh <- llm.NewThinkingChunk(part.Text)
					} else {
						chunkCh <- llm.NewTextChunk(part.Text)
					}
				}
			}
		}

		if usage != nil {
			usage.StopReason = finishReason
		}
		chunkCh <- llm.NewFinalChunk(finishReason, usage)
	}()

	select {
	case err := <-startResultCh:
		if err != nil {
			return nil, err
		}
		return chunkCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// convertMessages converts the message list to GenAI format. The system
// message becomes the SystemInstruction.
func (c *Client) convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		text := msg.GetTextContent()
		if text == "" {
			continue
		}

		if msg.Role == llm.RoleSystem {
			systemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: text}},
			}
			continue
		}

		role := genai.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}

		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: text}},
		})
	}

	return contents, systemInstruction
}

func normalizeStopReason(reason string) string {
	switch {
	case strings.Contains(reason, "MAX_TOKENS"):
		return llm.StopReasonLength
	case strings.Contains(reason, "STOP"):
		return llm.StopReasonStop
	default:
		return strings.ToLower(reason)
	}
}
