package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"concord/pkg/api"
	"concord/pkg/config"
	"concord/pkg/llm"

	"github.com/stretchr/testify/require"
)

type stubLLM struct {
	mu       sync.Mutex
	requests [][]llm.Message
	reply    string
	startErr error
	finish   string
}

func (s *stubLLM) Provider() string { return "stub" }
func (s *stubLLM) Model() string    { return "stub-model" }

func (s *stubLLM) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	s.mu.Lock()
	s.requests = append(s.requests, messages)
	s.mu.Unlock()

	if s.startErr != nil {
		return nil, s.startErr
	}

	finish := s.finish
	if finish == "" {
		finish = llm.StopReasonStop
	}

	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.NewTextChunk(s.reply)
	ch <- llm.NewFinalChunk(finish, &llm.LLMUsage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8})
	close(ch)
	return ch, nil
}

func (s *stubLLM) IsTransientError(err error) bool { return false }

func (s *stubLLM) lastRequest() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

type stubResponder struct {
	mu       sync.Mutex
	replies  []string
	signals  []string
	streamed []string
}

func (r *stubResponder) SendReply(session api.SessionContext, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, content)
	return nil
}

func (r *stubResponder) StreamReply(session api.SessionContext, blocks <-chan llm.ContentBlock) error {
	var sb strings.Builder
	for block := range blocks {
		if block.Type == llm.BlockTypeText {
			sb.WriteString(block.Text)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamed = append(r.streamed, sb.String())
	return nil
}

func (r *stubResponder) SendSignal(session api.SessionContext, signal string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal)
	return nil
}

func testSystemConfig() *config.SystemConfig {
	sys := config.DefaultSystemConfig()
	sys.RetryDelayMs = 1
	sys.ThinkingInitDelayMs = 60000 // keep the thinking signal out of tests
	return sys
}

func testOrchestrator(clients map[string]llm.LLMClient) (*Orchestrator, *stubResponder, *llm.SessionManager) {
	agents := BuildAgents(&config.Config{}, clients)
	sessions := llm.NewSessionManager("", 20)
	orch := NewOrchestrator(agents, testSystemConfig(), sessions)
	responder := &stubResponder{}
	orch.SetResponder(responder)
	return orch, responder, sessions
}

func webMessage(content string, agents ...string) *api.UnifiedMessage {
	return &api.UnifiedMessage{
		Session: api.SessionContext{ChannelID: "web", ChatID: "global", Username: "WebUser"},
		Content: content,
		Agents:  agents,
	}
}

func TestOrchestratorPipelineFeedsResearchIntoDocumentation(t *testing.T) {
	research := &stubLLM{reply: "the findings"}
	doc := &stubLLM{reply: "the manual"}
	orch, responder, sessions := testOrchestrator(map[string]llm.LLMClient{
		"phi3": research, "mistral": doc, "qwen": &stubLLM{reply: "code"},
	})

	orch.OnMessage(webMessage("Research Go channels and document the findings"))

	require.Equal(t, []string{"agent:research", "agent:documentation", "complete"}, responder.signals)
	require.Equal(t, []string{"the findings", "the manual"}, responder.streamed)

	// documentation 代理的提示詞要帶上 research 的報告
	docReq := doc.lastRequest()
	require.NotEmpty(t, docReq)
	lastPrompt := docReq[len(docReq)-1].GetTextContent()
	require.Contains(t, lastPrompt, "the findings")

	h, err := sessions.GetHistory("web_global")
	require.NoError(t, err)
	msgs := h.GetMessages()
	require.Len(t, msgs, 3) // user + 兩個 assistant
	require.Equal(t, "research", msgs[1].Agent)
	require.Equal(t, "documentation", msgs[2].Agent)
}

func TestOrchestratorExplicitAgentSelection(t *testing.T) {
	coding := &stubLLM{reply: "func main() {}"}
	orch, responder, _ := testOrchestrator(map[string]llm.LLMClient{
		"phi3": &stubLLM{reply: "unused"}, "mistral": &stubLLM{reply: "unused"}, "qwen": coding,
	})

	orch.OnMessage(webMessage("hello", "coding"))

	require.Equal(t, []string{"agent:coding", "complete"}, responder.signals)
	require.Equal(t, []string{"func main() {}"}, responder.streamed)
}

func TestOrchestratorIsolatesAgentFailures(t *testing.T) {
	research := &stubLLM{startErr: errors.New("model unavailable")}
	doc := &stubLLM{reply: "still documented"}
	orch, responder, _ := testOrchestrator(map[string]llm.LLMClient{
		"phi3": research, "mistral": doc, "qwen": &stubLLM{},
	})

	orch.OnMessage(webMessage("Research and document the thing"))

	// research 失敗後 documentation 仍照常執行
	require.Equal(t, []string{"still documented"}, responder.streamed)

	var failureReported bool
	for _, r := range responder.replies {
		if strings.Contains(r, "research agent") {
			failureReported = true
		}
	}
	require.True(t, failureReported)

	entries := orch.History(1)
	require.Len(t, entries, 1)
	require.Equal(t, "failed", entries[0].Results[RoleResearch])
	require.Equal(t, "completed", entries[0].Results[RoleDocumentation])
}

func TestOrchestratorReportsTruncation(t *testing.T) {
	orch, responder, _ := testOrchestrator(map[string]llm.LLMClient{
		"phi3": &stubLLM{reply: "partial answer", finish: llm.StopReasonLength},
		"mistral": &stubLLM{}, "qwen": &stubLLM{},
	})

	orch.OnMessage(webMessage("Find information about something long"))

	require.Contains(t, responder.replies, "⚠️ Response truncated due to length limit.")
	require.Equal(t, []string{"partial answer"}, responder.streamed)
}

func TestOrchestratorIgnoresEmptyMessages(t *testing.T) {
	orch, responder, _ := testOrchestrator(map[string]llm.LLMClient{
		"phi3": &stubLLM{}, "mistral": &stubLLM{}, "qwen": &stubLLM{},
	})

	orch.OnMessage(webMessage("   "))
	require.Empty(t, responder.signals)
	require.Empty(t, responder.streamed)
}

func TestOrchestratorStatus(t *testing.T) {
	orch, _, _ := testOrchestrator(map[string]llm.LLMClient{
		"phi3": &stubLLM{}, "mistral": &stubLLM{}, "qwen": &stubLLM{},
	})

	st := orch.Status()
	agents, ok := st["agents"].([]AgentStatus)
	require.True(t, ok)
	require.Len(t, agents, 3)
	for _, ag := range agents {
		require.True(t, ag.Ready)
		require.Equal(t, "stub-model", ag.Model)
	}
	require.Equal(t, 0, st["conversation_count"])
}
