package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"concord/pkg/api"
	"concord/pkg/llm"
	"concord/pkg/utils"
)

// runAgent executes one streaming model call with retry on transient
// failures. The assistant message is returned even on failure so the caller
// can inspect what was produced before the error.
func (o *Orchestrator) runAgent(ctx context.Context, ag *Agent, msg *api.UnifiedMessage, messages []llm.Message) llm.Message {
	var reply llm.Message
	for attempt := 0; ; attempt++ {
		var retry bool
		reply, retry = o.streamOnce(ctx, ag, msg, messages)
		if !retry || attempt >= o.sysCfg.MaxRetries {
			return reply
		}
		slog.Warn("Transient stream failure, retrying",
			"role", ag.Role, "attempt", attempt+1, "max", o.sysCfg.MaxRetries)
		time.Sleep(time.Duration(o.sysCfg.RetryDelayMs) * time.Millisecond)
	}
}

// streamOnce performs a single StreamChat call, forwarding content blocks to
// the channel as they arrive. It returns the collected assistant message and
// whether the failure is worth retrying.
func (o *Orchestrator) streamOnce(ctx context.Context, ag *Agent, msg *api.UnifiedMessage, messages []llm.Message) (llm.Message, bool) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(o.sysCfg.LLMTimeoutMs)*time.Millisecond)
	defer cancel()

	reply := llm.Message{
		ID:        utils.GenerateID(),
		Role:      llm.RoleAssistant,
		Agent:     ag.Role,
		Timestamp: time.Now().Unix(),
	}

	chunkCh, err := ag.Client.StreamChat(callCtx, messages)
	if err != nil {
		if ag.Client.IsTransientError(err) {
			return reply, true
		}
		slog.Error("Stream start failed", "role", ag.Role, "error", err)
		o.responder.SendReply(msg.Session, fmt.Sprintf("❌ %s agent failed: %v", ag.Role, err))
		return reply, false
	}

	blockCh := make(chan llm.ContentBlock, o.sysCfg.InternalChannelBuffer)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := o.responder.StreamReply(msg.Session, blockCh); err != nil {
			slog.Error("Stream delivery failed", "role", ag.Role, "error", err)
		}
	}()

	// 第一個 chunk 遲到時先給使用者一個思考中的提示
	thinkTimer := time.AfterFunc(time.Duration(o.sysCfg.ThinkingInitDelayMs)*time.Millisecond, func() {
		o.responder.SendSignal(msg.Session, "thinking")
	})

	var streamErr error
	truncated := false
	for chunk := range chunkCh {
		thinkTimer.Stop()

		if chunk.Error != "" {
			streamErr = chunk.RawError
			if streamErr == nil {
				streamErr = errors.New(chunk.Error)
			}
			continue
		}

		for _, block := range chunk.ContentBlocks {
			reply.AddContentBlock(block)
			if block.Type == llm.BlockTypeThinking && !o.sysCfg.ShowThinking {
				continue
			}
			blockCh <- block
		}

		if chunk.IsFinal {
			reply.Usage = chunk.Usage
			if chunk.FinishReason == llm.StopReasonLength {
				truncated = true
			}
		}
	}
	thinkTimer.Stop()
	close(blockCh)
	wg.Wait()

	if streamErr != nil {
		if ag.Client.IsTransientError(streamErr) && reply.GetTextContent() == "" {
			return reply, true
		}
		slog.Error("Stream failed", "role", ag.Role, "error", streamErr)
		o.responder.SendReply(msg.Session, fmt.Sprintf("❌ %s agent error: %v", ag.Role, streamErr))
		reply.AddContentBlock(llm.NewErrorBlock(streamErr.Error()))
		return reply, false
	}

	if reply.Usage != nil {
		slog.Info("Agent response complete", "role", ag.Role, "model", ag.Client.Model(),
			"prompt_tokens", reply.Usage.PromptTokens, "completion_tokens", reply.Usage.CompletionTokens)
	}
	if truncated {
		o.responder.SendReply(msg.Session, "⚠️ Response truncated due to length limit.")
	}
	return reply, false
}
