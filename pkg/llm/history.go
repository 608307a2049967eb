package llm

import (
	"fmt"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ChatHistory 管理對話歷史，支援滑動窗口 (Sliding Window) 限制長度
type ChatHistory struct {
	messages []Message
	maxLen   int
	mu       sync.RWMutex
}

// NewChatHistory 建立一個新的歷史管理員
// maxLen <= 0 表示不限制長度
func NewChatHistory(maxLen int) *ChatHistory {
	return &ChatHistory{
		messages: make([]Message, 0),
		maxLen:   maxLen,
	}
}

// Add 加入一則新訊息，若超過窗口長度則移除最舊的非系統訊息
func (h *ChatHistory) Add(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)

	if h.maxLen <= 0 || len(h.messages) <= h.maxLen {
		return
	}

	// 保留開頭的 system 訊息，從其後開始丟棄
	start := 0
	if h.messages[0].Role == RoleSystem {
		start = 1
	}
	drop := len(h.messages) - h.maxLen
	h.messages = append(h.messages[:start], h.messages[start+drop:]...)
}

// EnsureSystemMessage 確保歷史以指定的系統提示詞開頭
func (h *ChatHistory) EnsureSystemMessage(prompt string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.messages) > 0 && h.messages[0].Role == RoleSystem {
		h.messages[0] = NewSystemMessage(prompt)
		return
	}
	h.messages = append([]Message{NewSystemMessage(prompt)}, h.messages...)
}

// GetMessages 取得目前的對話歷史副本
func (h *ChatHistory) GetMessages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cp := make([]Message, len(h.messages))
	copy(cp, h.messages)
	return cp
}

// Len 回傳目前歷史長度
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// UIMessage 是傳給前端的精簡訊息格式
type UIMessage struct {
	Role  string `json:"role"`
	Agent string `json:"agent,omitempty"`
	Text  string `json:"text"`
}

// GetMessagesForUI 回傳適合前端重播的歷史（排除系統訊息與空訊息）
func (h *ChatHistory) GetMessagesForUI() []UIMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]UIMessage, 0, len(h.messages))
	for _, m := range h.messages {
		if m.Role == RoleSystem {
			continue
		}
		text := m.GetTextContent()
		if text == "" {
			continue
		}
		out = append(out, UIMessage{Role: m.Role, Agent: m.Agent, Text: text})
	}
	return out
}

// Save 將歷史序列化為 JSON 檔案
func (h *ChatHistory) Save(path string) error {
	h.mu.RLock()
	data, err := json.MarshalIndent(h.messages, "", "  ")
	h.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Load 從 JSON 檔案載入歷史，檔案不存在時視為空歷史
func (h *ChatHistory) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return fmt.Errorf("failed to parse history: %w", err)
	}

	h.mu.Lock()
	h.messages = msgs
	h.mu.Unlock()
	return nil
}
