package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fetchctl/fetch/pkg/models"
)

// maxMessagesPerThread limits messages stored per thread to prevent unbounded memory growth.
// When exceeded, old messages are trimmed to maintain the limit.
const maxMessagesPerThread = 1000

// MemoryStore provides an in-memory Store implementation for testing and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	byUser   map[string]string
	threads  map[string]*models.Thread
	messages map[string][]*models.Message
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*models.Session{},
		byUser:   map[string]string{},
		threads:  map[string]*models.Thread{},
		messages: map[string][]*models.Message{},
	}
}

// GetOrCreate returns the existing session for a user, creating one (with a
// primary thread) on first contact, per spec section 4.8.
func (m *MemoryStore) GetOrCreate(ctx context.Context, userID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byUser[userID]; ok {
		if session, ok := m.sessions[id]; ok {
			return cloneSession(session), nil
		}
	}

	now := time.Now()
	thread := &models.Thread{
		ID:        models.NewThreadID(),
		Status:    models.ThreadActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	session := &models.Session{
		ID:             models.NewSessionID(),
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
		Preferences:    models.DefaultPreferences(),
		ActiveThreadID: thread.ID,
	}
	thread.SessionID = session.ID

	m.sessions[session.ID] = session
	m.byUser[userID] = session.ID
	m.threads[thread.ID] = thread
	return cloneSession(session), nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	return cloneSession(session), nil
}

func (m *MemoryStore) Update(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sessions[session.ID]
	if !ok {
		return errors.New("session not found")
	}
	clone := cloneSession(session)
	clone.CreatedAt = existing.CreatedAt
	m.sessions[clone.ID] = clone
	return nil
}

func (m *MemoryStore) CreateThread(ctx context.Context, sessionID string) (*models.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, errors.New("session not found")
	}
	now := time.Now()
	thread := &models.Thread{
		ID:        models.NewThreadID(),
		SessionID: sessionID,
		Status:    models.ThreadActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.threads[thread.ID] = thread
	return cloneThread(thread), nil
}

func (m *MemoryStore) GetThread(ctx context.Context, threadID string) (*models.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	thread, ok := m.threads[threadID]
	if !ok {
		return nil, errors.New("thread not found")
	}
	return cloneThread(thread), nil
}

func (m *MemoryStore) UpdateThread(ctx context.Context, thread *models.Thread) error {
	if thread == nil {
		return errors.New("thread is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.threads[thread.ID]
	if !ok {
		return errors.New("thread not found")
	}
	clone := cloneThread(thread)
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now()
	m.threads[clone.ID] = clone
	return nil
}

func (m *MemoryStore) ListThreads(ctx context.Context, sessionID string) ([]*models.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Thread
	for _, thread := range m.threads {
		if thread.SessionID == sessionID {
			out = append(out, cloneThread(thread))
		}
	}
	return out, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, threadID string, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	thread, ok := m.threads[threadID]
	if !ok {
		return errors.New("thread not found")
	}
	clone := cloneMessage(msg)
	if clone.ID == "" {
		clone.ID = models.NewMessageID()
	}
	clone.ThreadID = threadID
	if clone.Timestamp.IsZero() {
		clone.Timestamp = time.Now()
	}
	m.messages[threadID] = append(m.messages[threadID], clone)
	thread.UpdatedAt = clone.Timestamp

	// Trim old messages if limit is exceeded to prevent unbounded memory growth.
	if len(m.messages[threadID]) > maxMessagesPerThread {
		excess := len(m.messages[threadID]) - maxMessagesPerThread
		m.messages[threadID] = m.messages[threadID][excess:]
	}
	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, threadID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := m.messages[threadID]
	if len(messages) == 0 {
		return []*models.Message{}, nil
	}
	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}
	out := make([]*models.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		out = append(out, cloneMessage(msg))
	}
	return out, nil
}

func (m *MemoryStore) SetPendingApproval(ctx context.Context, sessionID string, approval *models.PendingApproval) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return errors.New("session not found")
	}
	session.PendingApproval = approval
	return nil
}

func (m *MemoryStore) AddActiveFile(ctx context.Context, sessionID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return errors.New("session not found")
	}
	for _, existing := range session.ActiveFiles {
		if existing == path {
			return nil
		}
	}
	session.ActiveFiles = append(session.ActiveFiles, path)
	return nil
}

func (m *MemoryStore) RemoveActiveFile(ctx context.Context, sessionID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return errors.New("session not found")
	}
	filtered := session.ActiveFiles[:0]
	for _, existing := range session.ActiveFiles {
		if existing != path {
			filtered = append(filtered, existing)
		}
	}
	session.ActiveFiles = filtered
	return nil
}

func (m *MemoryStore) SetGitStartCommit(ctx context.Context, sessionID, commit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return errors.New("session not found")
	}
	session.GitStartCommit = commit
	return nil
}

// deepCloneMap creates a deep copy of a map[string]any to prevent shared references.
func deepCloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = deepCloneValue(v)
	}
	return clone
}

// deepCloneValue recursively clones a value, handling nested maps and slices.
func deepCloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCloneMap(val)
	case []any:
		cloned := make([]any, len(val))
		for i, item := range val {
			cloned[i] = deepCloneValue(item)
		}
		return cloned
	case []string:
		cloned := make([]string, len(val))
		copy(cloned, val)
		return cloned
	default:
		// Primitives (string, int, bool, float64, etc.) are safe to copy by value.
		return v
	}
}

func cloneSession(session *models.Session) *models.Session {
	if session == nil {
		return nil
	}
	clone := *session
	if session.ActiveFiles != nil {
		clone.ActiveFiles = append([]string{}, session.ActiveFiles...)
	}
	if session.PendingApproval != nil {
		approval := *session.PendingApproval
		clone.PendingApproval = &approval
	}
	return &clone
}

func cloneThread(thread *models.Thread) *models.Thread {
	if thread == nil {
		return nil
	}
	clone := *thread
	return &clone
}

func cloneMessage(msg *models.Message) *models.Message {
	if msg == nil {
		return nil
	}
	clone := *msg
	if msg.Metadata != nil {
		clone.Metadata = deepCloneMap(msg.Metadata)
	}
	if len(msg.Attachments) > 0 {
		clone.Attachments = append([]models.Attachment{}, msg.Attachments...)
	}
	if len(msg.ToolCalls) > 0 {
		clone.ToolCalls = append([]models.ToolCall{}, msg.ToolCalls...)
	}
	if len(msg.ToolResults) > 0 {
		clone.ToolResults = append([]models.ToolResult{}, msg.ToolResults...)
	}
	return &clone
}
