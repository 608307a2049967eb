package gateway

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"concord/pkg/llm"
	"concord/pkg/monitor"
)

// Manager 負責管理所有的 Channels 並統一路由訊息
type Manager struct {
	channels      map[string]Channel
	msgHandler    MessageHandler
	monitor       monitor.Monitor
	channelBuffer int // 內部 Channel 緩衝大小
	mu            sync.RWMutex
}

// NewManager 建立一個新的 Manager
func NewManager() *Manager {
	return &Manager{
		channels:      make(map[string]Channel),
		channelBuffer: 100, // 預設值
	}
}

// SetChannelBuffer 設定內部的 Channel 緩衝大小
func (g *Manager) SetChannelBuffer(size int) {
	if size > 0 {
		g.channelBuffer = size
	}
}

// SetMessageHandler 設定處理訊息的核心邏輯 (通常是 Orchestrator)
func (g *Manager) SetMessageHandler(handler MessageHandler) {
	g.msgHandler = handler
}

// SetMonitor 設定監控器
func (g *Manager) SetMonitor(m monitor.Monitor) {
	g.monitor = m
}

// Register 註冊一個 Channel
func (g *Manager) Register(c Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
}

// GetChannel 取得特定的 Channel (通常用於主動發送訊息)
func (g *Manager) GetChannel(id string) (Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

// StartAll 啟動所有已註冊的 Channels
func (g *Manager) StartAll() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Starting channel", "channel", id)
		if err := c.Start(g); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", id, err)
		}
	}
	return nil
}

// StopAll 停止所有 Channels
func (g *Manager) StopAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Stopping channel", "channel", id)
		if err := c.Stop(); err != nil {
			slog.Error("Error stopping channel", "channel", id, "error", err)
		}
	}
}

// SendReply 統一的回覆介面，透過 Channel 介面送回訊息
func (g *Manager) SendReply(session SessionContext, content string) error {
	if g.monitor != nil {
		g.monitor.OnMessage(monitor.MonitorMessage{
			Timestamp:   time.Now(),
			MessageType: "ASSISTANT",
			ChannelID:   session.ChannelID,
			Username:    session.Username,
			Content:     content,
		})
	}

	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}
	return c.Send(session, content)
}

// SendSignal 發送一個控制訊號 (如 thinking) 到 Channel
func (g *Manager) SendSignal(session SessionContext, signal string) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}

	if sc, ok := c.(SignalingChannel); ok {
		return sc.SendSignal(session, signal)
	}

	// 不支援的通道安靜地忽略
	return nil
}

// StreamReply 統一的串流回覆介面
func (g *Manager) StreamReply(session SessionContext, blocks <-chan llm.ContentBlock) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}

	// 包裝原始 blocks，收集完整內容廣播到監控器
	wrappedBlocks := make(chan llm.ContentBlock, g.channelBuffer)
	var fullContent string

	go func() {
		defer close(wrappedBlocks)
		for block := range blocks {
			if block.Type == llm.BlockTypeText {
				fullContent += block.Text
			}
			wrappedBlocks <- block
		}
		if fullContent != "" && g.monitor != nil {
			g.monitor.OnMessage(monitor.MonitorMessage{
				Timestamp:   time.Now(),
				MessageType: "ASSISTANT",
				ChannelID:   session.ChannelID,
				Username:    session.Username,
				Content:     fullContent,
			})
		}
	}()

	return c.Stream(session, wrappedBlocks)
}

// OnMessage 實作 ChannelContext 介面，接收來自 Channel 的訊息
func (g *Manager) OnMessage(channelID string, msg *UnifiedMessage) {
	slog.Info("Message received", "channel", channelID,
		"user", msg.Session.Username, "content", msg.Content, "agents", msg.Agents)

	if g.monitor != nil {
		g.monitor.OnMessage(monitor.MonitorMessage{
			Timestamp:   time.Now(),
			MessageType: "USER",
			ChannelID:   channelID,
			Username:    msg.Session.Username,
			Content:     msg.Content,
		})
	}

	if g.msgHandler != nil {
		g.msgHandler(msg)
	} else {
		slog.Warn("No message handler set, dropping message", "channel", channelID)
	}
}
