package gateway

import (
	"concord/pkg/api"
)

// Re-export api types via aliases so channel implementations and the main
// package can work against a single import.
type Channel = api.Channel
type SignalingChannel = api.SignalingChannel
type MessageResponder = api.MessageResponder
type ChannelContext = api.ChannelContext
type UnifiedMessage = api.UnifiedMessage
type SessionContext = api.SessionContext
type MessageHandler = api.MessageHandler
