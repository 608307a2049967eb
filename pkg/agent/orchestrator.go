package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"concord/pkg/api"
	"concord/pkg/config"
	"concord/pkg/llm"
	"concord/pkg/tools"
	"concord/pkg/utils"
)

// Orchestrator coordinates the three role-specialized agents. It implements
// api.MessageProcessor: every incoming message is routed to one or more
// agents, executed in sequence, and streamed back through the responder.
type Orchestrator struct {
	agents       []Agent
	sysCfg       *config.SystemConfig
	responder    api.MessageResponder
	toolRegistry api.ToolRegistry
	sessions     *llm.SessionManager

	mu           sync.Mutex
	conversation []ConversationEntry
}

// ConversationEntry records one processed request for the status surface.
type ConversationEntry struct {
	ID        string            `json:"id"`
	Request   string            `json:"request"`
	Agents    []string          `json:"agents"`
	Results   map[string]string `json:"results"` // role -> "completed" | "failed"
	Timestamp int64             `json:"timestamp"`
}

// NewOrchestrator initializes the orchestrator with its agent set.
func NewOrchestrator(agents []Agent, sysCfg *config.SystemConfig, sessions *llm.SessionManager) *Orchestrator {
	return &Orchestrator{
		agents:   agents,
		sysCfg:   sysCfg,
		sessions: sessions,
	}
}

// SetResponder implements api.ResponderAware.
func (o *Orchestrator) SetResponder(responder api.MessageResponder) {
	o.responder = responder
}

// RegisterTool adds one or more tools to the orchestrator's registry,
// initializing the registry on first use.
func (o *Orchestrator) RegisterTool(tl ...api.Tool) {
	if o.toolRegistry == nil {
		o.toolRegistry = tools.NewRegistry()
	}
	for _, t := range tl {
		o.toolRegistry.Register(t)
	}
}

// OnMessage implements api.MessageProcessor. It is the primary entry point
// for a user request coming from any channel.
func (o *Orchestrator) OnMessage(msg *api.UnifiedMessage) {
	if strings.TrimSpace(msg.Content) == "" {
		return
	}

	ctx := context.Background()
	sessionID := msg.Session.SessionID()

	history, err := o.sessions.GetHistory(sessionID)
	if err != nil {
		slog.Error("Failed to load session history", "session", sessionID, "error", err)
		o.responder.SendReply(msg.Session, "❌ Failed to load conversation history.")
		return
	}

	roles := o.selectRoles(msg)
	slog.Info("Processing request", "session", sessionID, "agents", roles)

	userMsg := llm.NewUserMessage(msg.Content)
	userMsg.ID = utils.GenerateID()
	history.Add(userMsg)
	o.sessions.SaveSession(sessionID)

	entry := ConversationEntry{
		ID:        utils.GenerateID(),
		Request:   msg.Content,
		Agents:    roles,
		Results:   make(map[string]string),
		Timestamp: time.Now().Unix(),
	}

	// Agents run in sequence; the research report feeds the documentation
	// agent. A failing agent is reported inline and does not abort the rest.
	var researchReport string
	for _, role := range roles {
		ag, ok := o.agentByRole(role)
		if !ok || ag.Client == nil {
			slog.Warn("Agent unavailable, skipping", "role", role)
			entry.Results[role] = "failed"
			continue
		}

		o.responder.SendSignal(msg.Session, "agent:"+role)

		prompt, err := o.buildPrompt(ctx, role, msg.Content, researchReport)
		if err != nil {
			slog.Error("Failed to prepare agent prompt", "role", role, "error", err)
			o.responder.SendReply(msg.Session, fmt.Sprintf("❌ %s agent failed: %v", role, err))
			entry.Results[role] = "failed"
			continue
		}

		messages := o.assembleMessages(ag, history, prompt)
		assistantMsg := o.runAgent(ctx, ag, msg, messages)

		text := assistantMsg.GetTextContent()
		if text == "" && assistantMsg.GetThinkingContent() == "" {
			entry.Results[role] = "failed"
			continue
		}

		if role == RoleResearch {
			researchReport = text
		}

		history.Add(assistantMsg)
		o.sessions.SaveSession(sessionID)
		entry.Results[role] = "completed"
	}

	o.mu.Lock()
	o.conversation = append(o.conversation, entry)
	o.mu.Unlock()

	o.responder.SendSignal(msg.Session, "complete")
}

// selectRoles honors an explicit agent selection from the channel, falling
// back to keyword routing over the request content.
func (o *Orchestrator) selectRoles(msg *api.UnifiedMessage) []string {
	if len(msg.Agents) > 0 {
		var roles []string
		for _, r := range canonicalOrder() {
			for _, want := range msg.Agents {
				if r == want {
					roles = append(roles, r)
				}
			}
		}
		if len(roles) > 0 {
			return roles
		}
	}
	return DetermineAgents(msg.Content)
}

// buildPrompt produces the role-specific user prompt, running the web
// search tool for the research agent and chaining the research report into
// the documentation agent.
func (o *Orchestrator) buildPrompt(ctx context.Context, role, request, researchReport string) (string, error) {
	switch role {
	case RoleResearch:
		searchBlock := o.runSearch(ctx, request)
		if searchBlock == "" {
			return fmt.Sprintf("Research Query: %s\n\nPlease provide a comprehensive research report.", request), nil
		}
		return fmt.Sprintf("Based on the following search results:\n%s\n\nResearch Query: %s\n\nPlease provide a comprehensive research report.",
			searchBlock, request), nil

	case RoleDocumentation:
		content := researchReport
		if content == "" {
			content = request
		}
		return fmt.Sprintf("Documentation Task: %s\n\nContent to Document:\n%s\n\nPlease create comprehensive documentation.",
			request, content), nil

	case RoleCoding:
		return fmt.Sprintf("Coding Task: %s\n\nPlease provide the implementation with explanations.", request), nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}

// runSearch executes the web search tool if registered. Search failures are
// logged and degrade to an empty block; the research agent still answers
// from model knowledge.
func (o *Orchestrator) runSearch(ctx context.Context, query string) string {
	if o.toolRegistry == nil {
		return ""
	}
	tool, ok := o.toolRegistry.Get("web_search")
	if !ok {
		return ""
	}

	res, err := tool.Execute(ctx, map[string]any{"query": query})
	if err != nil {
		slog.Warn("Web search failed, continuing without results", "error", err)
		return ""
	}
	return res.Content
}

// assembleMessages builds the provider message list: the agent's system
// prompt, the recent conversation window, and the prepared user prompt.
// The stored user message for this turn is replaced by the role-specific
// prompt, so it is excluded from the replayed window.
func (o *Orchestrator) assembleMessages(ag *Agent, history *llm.ChatHistory, prompt string) []llm.Message {
	msgs := []llm.Message{llm.NewSystemMessage(ag.SystemPrompt)}

	prior := history.GetMessages()
	if n := len(prior); n > 0 && prior[n-1].Role == llm.RoleUser {
		prior = prior[:n-1]
	}
	msgs = append(msgs, prior...)

	msgs = append(msgs, llm.NewUserMessage(prompt))
	return msgs
}

func (o *Orchestrator) agentByRole(role string) (*Agent, bool) {
	for i := range o.agents {
		if o.agents[i].Role == role {
			return &o.agents[i], true
		}
	}
	return nil, false
}

// AgentStatus describes one agent for the status surface.
type AgentStatus struct {
	Role     string `json:"role"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Alias    string `json:"alias"`
	Ready    bool   `json:"ready"`
}

// Status reports the orchestrator state for the web status endpoint.
func (o *Orchestrator) Status() map[string]any {
	o.mu.Lock()
	count := len(o.conversation)
	o.mu.Unlock()

	agents := make([]AgentStatus, 0, len(o.agents))
	for _, ag := range o.agents {
		st := AgentStatus{Role: ag.Role, Alias: ag.ModelAlias}
		if ag.Client != nil {
			st.Model = ag.Client.Model()
			st.Provider = ag.Client.Provider()
			st.Ready = true
		}
		agents = append(agents, st)
	}

	var toolNames []string
	if o.toolRegistry != nil {
		for _, t := range o.toolRegistry.GetAll() {
			toolNames = append(toolNames, t.Name())
		}
	}

	return map[string]any{
		"agents":             agents,
		"tools":              toolNames,
		"conversation_count": count,
	}
}

// History returns the most recent conversation entries, newest last.
func (o *Orchestrator) History(limit int) []ConversationEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	if limit <= 0 || limit > len(o.conversation) {
		limit = len(o.conversation)
	}
	out := make([]ConversationEntry, limit)
	copy(out, o.conversation[len(o.conversation)-limit:])
	return out
}
