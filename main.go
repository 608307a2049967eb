package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"concord/pkg/agent"
	"concord/pkg/channels"
	_ "concord/pkg/channels/autoload" // 自動註冊 Channels
	"concord/pkg/config"
	"concord/pkg/gateway"
	"concord/pkg/llm"
	_ "concord/pkg/llm/autoload" // 自動註冊 LLM Providers
	"concord/pkg/monitor"
	"concord/pkg/tools"
)

func main() {
	monitor.PrintBanner()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// 設定檔變更時整組重建（channels 需要重新啟動）
	reloadCh := config.Watch(ctx, "config.json", "system.json")

	for {
		gw, err := buildGateway()
		if err != nil {
			slog.Error("Failed to start services", "error", err)
			os.Exit(1)
		}

		select {
		case <-sigChan:
			slog.Info("Received shutdown signal, stopping services")
			gw.StopAll()
			slog.Info("Bye!")
			return
		case <-reloadCh:
			slog.Info("Configuration changed, reloading services")
			gw.StopAll()
		}
	}
}

// buildGateway assembles one full service generation: configuration, LLM
// clients, the agent orchestrator, tools, and all channels.
func buildGateway() (*gateway.Manager, error) {
	cfg, sysCfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = &config.Config{}
		sysCfg = config.DefaultSystemConfig()
	}

	monitor.SetupSlog(sysCfg.LogLevel)

	env := config.EnvFromProcess()
	if env.HuggingFaceAPIKey == "" {
		slog.Warn("HUGGINGFACE_API_KEY not set, hosted models will be unavailable")
	}

	clients, err := llm.BuildClients(cfg, env, sysCfg)
	if err != nil {
		return nil, err
	}

	agents := agent.BuildAgents(cfg, clients)
	for _, ag := range agents {
		if ag.Client != nil {
			slog.Info("Agent ready", "role", ag.Role, "model", ag.Client.Model(), "provider", ag.Client.Provider())
		} else {
			slog.Warn("Agent has no model client", "role", ag.Role, "alias", ag.ModelAlias)
		}
	}

	sessions := llm.NewSessionManager(sysCfg.StorageDir, sysCfg.HistoryMaxMessages)

	orch := agent.NewOrchestrator(agents, sysCfg, sessions)
	orch.RegisterTool(tools.NewWebSearch(sysCfg.SearchMaxResults, sysCfg.SearchCacheSize))

	res := &channels.Resources{
		Sessions: sessions,
		Env:      env,
		System:   sysCfg,
		Status:   orch.Status,
	}

	return gateway.NewBuilder().
		WithSystemConfig(sysCfg).
		WithMonitor(monitor.NewCLIMonitor()).
		WithChannelLoader(func(g *gateway.Manager) {
			channels.LoadFromConfig(g, cfg.Channels, res)
		}).
		WithHandler(orch).
		Build()
}
