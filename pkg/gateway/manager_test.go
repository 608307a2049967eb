package gateway

import (
	"sync"
	"testing"

	"concord/pkg/api"
	"concord/pkg/llm"
	"concord/pkg/monitor"

	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	id       string
	started  bool
	stopped  bool
	sent     []string
	signals  []string
	streamed string
}

func (c *fakeChannel) ID() string                        { return c.id }
func (c *fakeChannel) Start(ctx api.ChannelContext) error { c.started = true; return nil }
func (c *fakeChannel) Stop() error                        { c.stopped = true; return nil }

func (c *fakeChannel) Send(session api.SessionContext, message string) error {
	c.sent = append(c.sent, message)
	return nil
}

func (c *fakeChannel) Stream(session api.SessionContext, blocks <-chan llm.ContentBlock) error {
	for block := range blocks {
		c.streamed += block.Text
	}
	return nil
}

// signalChannel additionally implements SignalingChannel.
type signalChannel struct{ fakeChannel }

func (c *signalChannel) SendSignal(session api.SessionContext, signal string) error {
	c.signals = append(c.signals, signal)
	return nil
}

type recordingMonitor struct {
	mu       sync.Mutex
	messages []monitor.MonitorMessage
}

func (m *recordingMonitor) Start() error { return nil }
func (m *recordingMonitor) Stop() error  { return nil }
func (m *recordingMonitor) OnMessage(msg monitor.MonitorMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func webSession() api.SessionContext {
	return api.SessionContext{ChannelID: "web", ChatID: "global", Username: "WebUser"}
}

func TestManagerLifecycle(t *testing.T) {
	gw := NewManager()
	ch := &fakeChannel{id: "web"}
	gw.Register(ch)

	require.NoError(t, gw.StartAll())
	require.True(t, ch.started)

	got, ok := gw.GetChannel("web")
	require.True(t, ok)
	require.Same(t, ch, got)

	gw.StopAll()
	require.True(t, ch.stopped)
}

func TestManagerSendReply(t *testing.T) {
	gw := NewManager()
	mon := &recordingMonitor{}
	gw.SetMonitor(mon)

	ch := &fakeChannel{id: "web"}
	gw.Register(ch)

	require.NoError(t, gw.SendReply(webSession(), "hello"))
	require.Equal(t, []string{"hello"}, ch.sent)

	require.Len(t, mon.messages, 1)
	require.Equal(t, "ASSISTANT", mon.messages[0].MessageType)
	require.Equal(t, "hello", mon.messages[0].Content)

	err := gw.SendReply(api.SessionContext{ChannelID: "missing"}, "x")
	require.Error(t, err)
}

func TestManagerSendSignal(t *testing.T) {
	gw := NewManager()
	sig := &signalChannel{fakeChannel{id: "web"}}
	plain := &fakeChannel{id: "cli"}
	gw.Register(sig)
	gw.Register(plain)

	require.NoError(t, gw.SendSignal(webSession(), "thinking"))
	require.Equal(t, []string{"thinking"}, sig.signals)

	// 不支援訊號的通道安靜地忽略
	require.NoError(t, gw.SendSignal(api.SessionContext{ChannelID: "cli"}, "thinking"))
}

func TestManagerStreamReplyBroadcastsToMonitor(t *testing.T) {
	gw := NewManager()
	mon := &recordingMonitor{}
	gw.SetMonitor(mon)

	ch := &fakeChannel{id: "web"}
	gw.Register(ch)

	blocks := make(chan llm.ContentBlock, 3)
	blocks <- llm.NewThinkingBlock("hmm ")
	blocks <- llm.NewTextBlock("hello ")
	blocks <- llm.NewTextBlock("world")
	close(blocks)

	require.NoError(t, gw.StreamReply(webSession(), blocks))
	require.Equal(t, "hmm hello world", ch.streamed)

	// 只有文字內容進入監控廣播
	require.Len(t, mon.messages, 1)
	require.Equal(t, "hello world", mon.messages[0].Content)
}

func TestManagerOnMessageForwardsToHandler(t *testing.T) {
	gw := NewManager()
	mon := &recordingMonitor{}
	gw.SetMonitor(mon)

	var received *api.UnifiedMessage
	gw.SetMessageHandler(func(msg *api.UnifiedMessage) { received = msg })

	msg := &api.UnifiedMessage{Session: webSession(), Content: "hi there"}
	gw.OnMessage("web", msg)

	require.Same(t, msg, received)
	require.Len(t, mon.messages, 1)
	require.Equal(t, "USER", mon.messages[0].MessageType)
}
