package web

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"

	"concord/pkg/api"
	"concord/pkg/llm"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed static
var staticFS embed.FS

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for decoupled UI
	},
}

type WebConfig struct {
	// Address and Port define the bind point. Zero values fall back to the
	// environment boundary (STREAMLIT_SERVER_ADDRESS / STREAMLIT_SERVER_PORT).
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// IncomingMessage is the JSON payload sent by the browser over the websocket.
type IncomingMessage struct {
	Text string `json:"text"`
	// Agents optionally pins the request to specific roles, mirroring the
	// sidebar selection in the UI. Empty means automatic routing.
	Agents []string `json:"agents"`
}

// SafeConn serializes websocket writes; gorilla/websocket allows only one
// concurrent writer per connection.
type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteMessage(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(messageType, data)
}

type WebChannel struct {
	config      WebConfig
	server      *http.Server
	sessions    *llm.SessionManager
	status      func() map[string]any
	connections map[string]*SafeConn // Map UserID -> WS Connection
	mu          sync.RWMutex
}

func NewWebChannel(cfg WebConfig, sessions *llm.SessionManager, status func() map[string]any) *WebChannel {
	return &WebChannel{
		config:      cfg,
		sessions:    sessions,
		status:      status,
		connections: make(map[string]*SafeConn),
	}
}

func (c *WebChannel) ID() string {
	return "web"
}

func (c *WebChannel) Start(ctx api.ChannelContext) error {
	mux, err := c.buildMux(ctx)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", c.config.Address, c.config.Port)
	c.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	slog.Info("Web channel listening", "address", addr)

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Web server error", "error", err)
		}
	}()

	return nil
}

func (c *WebChannel) buildMux(ctx api.ChannelContext) (*http.ServeMux, error) {
	mux := http.NewServeMux()

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("embedded UI unavailable: %w", err)
	}
	mux.Handle("/", http.FileServer(http.FS(static)))

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		c.handleWebSocket(w, r, ctx)
	})

	// Health probe path kept compatible with the previous deployment's
	// container checks.
	mux.HandleFunc("/_stcore/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	mux.HandleFunc("/api/status", c.handleStatus)

	return mux, nil
}

func (c *WebChannel) Stop() error {
	if c.server != nil {
		return c.server.Close()
	}
	return nil
}

func (c *WebChannel) Send(session api.SessionContext, message string) error {
	conn, ok := c.getConn(session.UserID)
	if !ok {
		return fmt.Errorf("web user %s not connected", session.UserID)
	}

	msg := map[string]string{
		"type": llm.BlockTypeText,
		"text": message,
	}
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, jsonData)
}

// SendSignal implements the gateway.SignalingChannel interface
func (c *WebChannel) SendSignal(session api.SessionContext, signal string) error {
	conn, ok := c.getConn(session.UserID)
	if !ok {
		return fmt.Errorf("web user %s not connected", session.UserID)
	}

	msg := map[string]string{
		"type":  "signal",
		"value": signal,
	}
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, jsonData)
}

// Stream implements gateway.Channel.Stream
func (c *WebChannel) Stream(session api.SessionContext, blocks <-chan llm.ContentBlock) error {
	conn, ok := c.getConn(session.UserID)
	if !ok {
		return fmt.Errorf("web user %s not connected", session.UserID)
	}

	for block := range blocks {
		msg := map[string]any{
			"type": block.Type,
			"text": block.Text,
		}

		jsonData, err := json.Marshal(msg)
		if err != nil {
			slog.Error("Failed to marshal stream block", "error", err)
			continue
		}

		if err := conn.WriteMessage(websocket.TextMessage, jsonData); err != nil {
			return err
		}
	}

	// Send finish flag
	return conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"done"}`))
}

func (c *WebChannel) getConn(userID string) (*SafeConn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.connections[userID]
	return conn, ok
}

func (c *WebChannel) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	payload := map[string]any{"status": "running"}
	if c.status != nil {
		for k, v := range c.status() {
			payload[k] = v
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode status", http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS Upgrade failed", "error", err)
		return
	}

	conn := &SafeConn{Conn: rawConn}
	userID := r.RemoteAddr

	c.mu.Lock()
	c.connections[userID] = conn
	c.mu.Unlock()

	// Web UI 目前共用一條 global 對話，新連線先同步既有歷史
	h, err := c.sessions.GetHistory("web_global")
	if err == nil {
		historyMsgs := h.GetMessagesForUI()
		if len(historyMsgs) > 0 {
			historyData := map[string]any{
				"type": "history",
				"data": historyMsgs,
			}
			historyJSON, err := json.Marshal(historyData)
			if err != nil {
				slog.Error("Failed to marshal history", "error", err)
			} else {
				conn.WriteMessage(websocket.TextMessage, historyJSON)
			}
		}
	}

	defer func() {
		c.mu.Lock()
		delete(c.connections, userID)
		c.mu.Unlock()
		conn.Close()
	}()

	session := api.SessionContext{
		ChannelID: "web",
		UserID:    userID,
		ChatID:    "global",
		Username:  "WebUser",
	}

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var content string
		var agents []string

		var incoming IncomingMessage
		if err := json.Unmarshal(msgBytes, &incoming); err == nil && incoming.Text != "" {
			content = incoming.Text
			agents = incoming.Agents
		} else {
			// Fallback: treat as plain text (backward compatibility)
			content = string(msgBytes)
		}

		unifiedMsg := &api.UnifiedMessage{
			Session: session,
			Content: content,
			Agents:  agents,
			Raw:     msgBytes,
		}
		ctx.OnMessage(c.ID(), unifiedMsg)
	}
}
