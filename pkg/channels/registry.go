package channels

import (
	"concord/pkg/api"
	"concord/pkg/config"
	"concord/pkg/llm"

	jsoniter "github.com/json-iterator/go"
)

// Channel re-exports the gateway channel contract for factory implementations.
type Channel = api.Channel

// Resources bundles the shared system dependencies handed to every channel
// factory: session storage, the environment boundary, engine settings, and
// the status snapshot used by diagnostic surfaces.
type Resources struct {
	Sessions *llm.SessionManager
	Env      *config.Env
	System   *config.SystemConfig
	// Status returns a snapshot of orchestrator state for status endpoints.
	// May be nil when no status provider is wired.
	Status func() map[string]any
}

// ChannelFactory defines the abstract interface for platform-specific
// channel creators. This allows the system to support new platforms
// (e.g., Line, Discord) without modifying the core gateway logic.
type ChannelFactory interface {
	// Create instantiates a concrete Channel implementation using the
	// provided configuration and shared system resources. Returning a nil
	// channel without error means the channel is not applicable and should
	// be skipped.
	Create(rawConfig jsoniter.RawMessage, res *Resources) (Channel, error)
}

// channelRegistry is an internal global map stores the mapping between
// platform names (e.g., "web") and their factory implementations.
var channelRegistry = make(map[string]ChannelFactory)

// RegisterChannel adds a new ChannelFactory to the global internal registry.
// This is typically called during the package's init() phase.
func RegisterChannel(name string, factory ChannelFactory) {
	channelRegistry[name] = factory
}

// GetChannelFactory retrieves a registered ChannelFactory by platform name.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	f, ok := channelRegistry[name]
	return f, ok
}
