package channels

import (
	"log/slog"

	"concord/pkg/gateway"

	jsoniter "github.com/json-iterator/go"
)

// LoadFromConfig acts as the central orchestration point for dynamic
// channel initialization. It iterates through the provided configuration
// map, resolves factories, and registers the resulting channels with the
// gateway Manager. The web channel is always created, even without a
// config entry, since it carries the primary chat surface and the health
// endpoint for the container contract.
func LoadFromConfig(gw *gateway.Manager, configs map[string]jsoniter.RawMessage, res *Resources) {
	if configs == nil {
		configs = make(map[string]jsoniter.RawMessage)
	}
	if _, ok := configs["web"]; !ok {
		configs["web"] = nil
	}

	for name, rawConfig := range configs {
		factory, ok := GetChannelFactory(name)
		if !ok {
			slog.Warn("Unknown channel type", "name", name)
			continue
		}

		channel, err := factory.Create(rawConfig, res)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}

		// If Create returns nil (e.g., certain conditions not met but not an error), skip
		if channel == nil {
			continue
		}

		gw.Register(channel)
		slog.Info("Channel registered", "name", name)
	}
}
