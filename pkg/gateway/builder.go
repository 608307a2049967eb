package gateway

import (
	"fmt"

	"concord/pkg/api"
	"concord/pkg/config"
	"concord/pkg/monitor"
)

// Builder provides a fluent interface for constructing and starting a
// Manager with all its dependencies. Channels and the handler are pre-built
// and injected as instances; the Builder assembles and starts them.
type Builder struct {
	gw           *Manager
	monitor      monitor.Monitor
	systemConfig *config.SystemConfig
	handler      api.MessageProcessor
	channels     []api.Channel
	loader       func(*Manager)
}

// NewBuilder creates a fresh Builder with an internal Manager to configure.
func NewBuilder() *Builder {
	return &Builder{
		gw: NewManager(),
	}
}

// WithMonitor injects a monitoring implementation. The monitor is started
// automatically during Build().
func (b *Builder) WithMonitor(m monitor.Monitor) *Builder {
	b.monitor = m
	return b
}

// WithSystemConfig provides engine-level technical parameters used to size
// internal buffers.
func (b *Builder) WithSystemConfig(cfg *config.SystemConfig) *Builder {
	b.systemConfig = cfg
	return b
}

// WithChannel adds pre-built channel instances to the gateway.
func (b *Builder) WithChannel(channels ...api.Channel) *Builder {
	b.channels = append(b.channels, channels...)
	return b
}

// WithChannelLoader registers a callback that builds channels from
// configuration and registers them on the Manager during Build(), before
// the channels are started.
func (b *Builder) WithChannelLoader(loader func(*Manager)) *Builder {
	b.loader = loader
	return b
}

// WithHandler injects the message handler instance. If the handler
// implements api.ResponderAware, the gateway is wired in as its responder.
func (b *Builder) WithHandler(h api.MessageProcessor) *Builder {
	b.handler = h
	return b
}

// Build finalizes the configuration, registers all channels, and starts
// everything. Returns the fully operational Manager or an error if any
// stage fails.
func (b *Builder) Build() (*Manager, error) {
	if b.systemConfig != nil {
		b.gw.SetChannelBuffer(b.systemConfig.InternalChannelBuffer)
	}

	if b.monitor != nil {
		b.gw.SetMonitor(b.monitor)
		if err := b.monitor.Start(); err != nil {
			return nil, fmt.Errorf("failed to start monitor: %w", err)
		}
	}

	for _, c := range b.channels {
		b.gw.Register(c)
	}

	if b.loader != nil {
		b.loader(b.gw)
	}

	if b.handler != nil {
		if aware, ok := b.handler.(api.ResponderAware); ok {
			aware.SetResponder(b.gw)
		}
		b.gw.SetMessageHandler(b.handler.OnMessage)
	}

	if err := b.gw.StartAll(); err != nil {
		return nil, fmt.Errorf("failed to start channels: %w", err)
	}

	return b.gw, nil
}
