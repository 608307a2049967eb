package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var filenameSafeRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// SessionManager manages multiple conversation histories isolated by session ID.
type SessionManager struct {
	histories map[string]*ChatHistory
	storage   string
	maxLen    int
	mu        sync.RWMutex
}

// NewSessionManager initializes a SessionManager with a specific storage
// directory. An empty storage directory disables persistence. maxLen bounds
// every managed history's sliding window.
func NewSessionManager(storage string, maxLen int) *SessionManager {
	if storage != "" {
		os.MkdirAll(storage, 0755)
	}
	return &SessionManager{
		histories: make(map[string]*ChatHistory),
		storage:   storage,
		maxLen:    maxLen,
	}
}

// GetHistory retrieves an existing ChatHistory for a session or creates/loads
// a new one from disk.
func (sm *SessionManager) GetHistory(sessionID string) (*ChatHistory, error) {
	sm.mu.RLock()
	h, ok := sm.histories[sessionID]
	sm.mu.RUnlock()

	if ok {
		return h, nil
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Double check under lock
	if h, ok = sm.histories[sessionID]; ok {
		return h, nil
	}

	h = NewChatHistory(sm.maxLen)
	if sm.storage != "" {
		if err := h.Load(sm.historyPath(sessionID)); err != nil {
			return nil, err
		}
	}

	sm.histories[sessionID] = h
	return h, nil
}

// SaveSession persists a specific session's history to disk.
func (sm *SessionManager) SaveSession(sessionID string) error {
	sm.mu.RLock()
	h, ok := sm.histories[sessionID]
	sm.mu.RUnlock()

	if !ok || sm.storage == "" {
		return nil
	}

	return h.Save(sm.historyPath(sessionID))
}

// Sessions returns the IDs of all in-memory sessions.
func (sm *SessionManager) Sessions() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	ids := make([]string, 0, len(sm.histories))
	for id := range sm.histories {
		ids = append(ids, id)
	}
	return ids
}

func (sm *SessionManager) historyPath(sessionID string) string {
	safeID := filenameSafeRegex.ReplaceAllString(sessionID, "_")
	return filepath.Join(sm.storage, fmt.Sprintf("history_%s.json", safeID))
}
