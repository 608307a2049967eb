package ollamalm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"concord/pkg/llm"

	"github.com/ollama/ollama/api"
)

// Client is an Ollama API client used as the local/offline provider.
type Client struct {
	client  *api.Client
	model   string
	options map[string]any
}

// NewClient creates an Ollama client for a single local model.
func NewClient(model, baseURL string, options map[string]any) (*Client, error) {
	// Custom transport: model loading can take minutes, so no response
	// header timeout is imposed.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 0,
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   0,
	}

	var client *api.Client
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client = api.NewClient(u, httpClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	slog.Info("Ollama client initialized", "model", model, "base_url", baseURL)

	return &Client{
		client:  client,
		model:   model,
		options: options,
	}, nil
}

func (c *Client) Provider() string {
	return "ollama"
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
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "loading model") ||
		strings.Contains(msg, "server busy")
}

// StreamChat implements llm.LLMClient via the Ollama chat streaming API.
func (c *Client) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	streamVal := true
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: c.convertMessages(messages),
		Options:  c.options,
		Stream:   &streamVal,
	}

	go func() {
		defer close(chunkCh)

		started := false
		var thoughtsCount int

		err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			// First callback indicates a successful stream start
			if !started {
				started = true
				select {
				case startResultCh <- nil:
				default:
				}
			}

			if resp.Message.Thinking != "" {
				thoughtsCount++
				chunkCh <- llm.NewThinkingChunk(resp.Message.Thinking)
			}

			if resp.Message.Content != "" {
				chunkCh <- llm.NewTextChunk(resp.Message.Content)
			}

			if resp.Done {
				usage := &llm.LLMUsage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
					ThoughtsTokens:   thoughtsCount,
					StopReason:       resp.DoneReason,
				}
				if resp.DoneReason == llm.StopReasonLength {
					slog.Warn("Response truncated due to length", "provider", "ollama", "model", c.model)
				}
				chunkCh <- llm.NewFinalChunk(resp.DoneReason, usage)
			}

			return nil
		})

		if err != nil {
			if !started {
				select {
				case startResultCh <- err:
				default:
					// Waiter already gone, surface the error on the stream
					chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Error loading model %s: %v", c.model, err), err)
				}
			} else {
				chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err)
			}
		} else if !started {
			select {
			case startResultCh <- nil:
			default:
			}
		}
	}()

	// Wait for the stream to actually start so connection errors surface
	// as a synchronous error instead of a broken channel.
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

func (c *Client) convertMessages(messages []llm.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		text := m.GetTextContent()
		if text == "" {
			continue
		}
		out = append(out, api.Message{
			Role:    m.Role,
			Content: text,
		})
	}
	return out
}
