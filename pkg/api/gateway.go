package api

import (
	"concord/pkg/llm"
)

// Channel defines the standardized lifecycle interface for communication platforms.
type Channel interface {
	ID() string
	Start(ctx ChannelContext) error
	Stop() error
	Send(session SessionContext, message string) error
	Stream(session SessionContext, blocks <-chan llm.ContentBlock) error
}

// SignalingChannel is an optional extension of the Channel interface for
// platforms that support control signals (e.g., typing indicators, agent
// role switches).
type SignalingChannel interface {
	Channel
	// SendSignal transmits a control signal (e.g., "thinking",
	// "agent:research") to the target session to change UI state.
	SendSignal(session SessionContext, signal string) error
}

// ChannelContext provides the interface for a Channel implementation to
// communicate back with the Gateway core.
type ChannelContext interface {
	MessageResponder
	OnMessage(channelID string, msg *UnifiedMessage)
}

// MessageResponder defines the capabilities for sending responses back to a channel.
type MessageResponder interface {
	SendReply(session SessionContext, content string) error
	StreamReply(session SessionContext, blocks <-chan llm.ContentBlock) error
	SendSignal(session SessionContext, signal string) error
}

// UnifiedMessage defines the standardized internal data structure for all
// incoming messages.
type UnifiedMessage struct {
	Session SessionContext // Contextual information about the source (user, chat)
	Content string         // Standardized text content of the message
	// Agents optionally pins the request to specific agent roles. When
	// empty, the orchestrator routes by request content.
	Agents     []string
	Raw        any // Optional storage for the original platform-specific payload
	RetryCount int // Counter for automatic recovery attempts during stream failures
}

// SessionContext encapsulates identity and routing information for a specific
// conversation unit on a specific communication channel.
type SessionContext struct {
	ChannelID string // Identifier of the channel that originated the session (e.g., "web")
	UserID    string // Platform-specific unique identifier for the user
	ChatID    string // Platform-specific identifier for the chat or group
	Username  string // Display name of the user as provided by the platform
}

// SessionID derives the storage key used to isolate conversation histories.
func (s SessionContext) SessionID() string {
	return s.ChannelID + "_" + s.ChatID
}

// MessageHandler defines the function signature for processing incoming messages.
// It implements the MessageProcessor interface.
type MessageHandler func(*UnifiedMessage)

// OnMessage allows MessageHandler to satisfy the MessageProcessor interface.
func (h MessageHandler) OnMessage(msg *UnifiedMessage) {
	h(msg)
}

// MessageProcessor defines the interface for components that can process
// incoming messages.
type MessageProcessor interface {
	OnMessage(msg *UnifiedMessage)
}

// ResponderAware defines an interface for components that require a
// MessageResponder to be injected.
type ResponderAware interface {
	SetResponder(responder MessageResponder)
}
