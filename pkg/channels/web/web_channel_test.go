package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"concord/pkg/api"
	"concord/pkg/llm"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type stubContext struct {
	messages chan *api.UnifiedMessage
}

func newStubContext() *stubContext {
	return &stubContext{messages: make(chan *api.UnifiedMessage, 8)}
}

func (s *stubContext) SendReply(session api.SessionContext, content string) error { return nil }
func (s *stubContext) StreamReply(session api.SessionContext, blocks <-chan llm.ContentBlock) error {
	return nil
}
func (s *stubContext) SendSignal(session api.SessionContext, signal string) error { return nil }
func (s *stubContext) OnMessage(channelID string, msg *api.UnifiedMessage) {
	s.messages <- msg
}

func newTestServer(t *testing.T) (*WebChannel, *stubContext, *httptest.Server) {
	t.Helper()

	ch := NewWebChannel(WebConfig{}, llm.NewSessionManager("", 10), func() map[string]any {
		return map[string]any{"conversation_count": 4}
	})
	ctx := newStubContext()

	mux, err := ch.buildMux(ctx)
	require.NoError(t, err)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return ch, ctx, srv
}

func TestHealthEndpoint(t *testing.T) {
	_, _, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/_stcore/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
}

func TestStatusEndpoint(t *testing.T) {
	_, _, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "running", payload["status"])
	require.EqualValues(t, 4, payload["conversation_count"])
}

func TestServesEmbeddedUI(t *testing.T) {
	_, _, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "Concord")
	require.Contains(t, string(body), "Agent Selection")
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func receiveMessage(t *testing.T, ctx *stubContext) *api.UnifiedMessage {
	t.Helper()
	select {
	case msg := <-ctx.messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestWebSocketIncomingJSON(t *testing.T) {
	_, ctx, srv := newTestServer(t)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"text":"write docs","agents":["documentation"]}`)))

	msg := receiveMessage(t, ctx)
	require.Equal(t, "write docs", msg.Content)
	require.Equal(t, []string{"documentation"}, msg.Agents)
	require.Equal(t, "web", msg.Session.ChannelID)
	require.Equal(t, "global", msg.Session.ChatID)
	require.Equal(t, "web_global", msg.Session.SessionID())
}

func TestWebSocketIncomingPlainText(t *testing.T) {
	_, ctx, srv := newTestServer(t)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("plain request")))

	msg := receiveMessage(t, ctx)
	require.Equal(t, "plain request", msg.Content)
	require.Empty(t, msg.Agents)
}

func TestWebSocketOutgoingFrames(t *testing.T) {
	ch, ctx, srv := newTestServer(t)
	conn := dialWS(t, srv)

	// 先送一則訊息取得伺服器視角的 session (UserID 為遠端位址)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	session := receiveMessage(t, ctx).Session

	require.NoError(t, ch.SendSignal(session, "agent:research"))
	frame := readFrame(t, conn)
	require.Equal(t, "signal", frame["type"])
	require.Equal(t, "agent:research", frame["value"])

	require.NoError(t, ch.Send(session, "direct reply"))
	frame = readFrame(t, conn)
	require.Equal(t, "text", frame["type"])
	require.Equal(t, "direct reply", frame["text"])

	blocks := make(chan llm.ContentBlock, 3)
	blocks <- llm.NewThinkingBlock("mulling")
	blocks <- llm.NewTextBlock("streamed answer")
	close(blocks)
	require.NoError(t, ch.Stream(session, blocks))

	frame = readFrame(t, conn)
	require.Equal(t, "thinking", frame["type"])
	require.Equal(t, "mulling", frame["text"])

	frame = readFrame(t, conn)
	require.Equal(t, "text", frame["type"])
	require.Equal(t, "streamed answer", frame["text"])

	frame = readFrame(t, conn)
	require.Equal(t, "done", frame["type"])
}

func TestSendToDisconnectedUser(t *testing.T) {
	ch, _, _ := newTestServer(t)
	err := ch.Send(api.SessionContext{ChannelID: "web", UserID: "nobody"}, "hi")
	require.Error(t, err)
}
