package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatrelay/internal/models"
)

// Memory is an in-process implementation of every store interface.
type Memory struct {
	mu            sync.RWMutex
	keys          map[string]map[string]string
	users         map[string]struct{}
	conversations map[string]models.Conversation
	messages      map[string][]models.Message

	now func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		keys:          make(map[string]map[string]string),
		users:         make(map[string]struct{}),
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.Message),
		now:           time.Now,
	}
}

// SetKey records a user's key for a provider. An empty key removes it.
func (m *Memory) SetKey(userID, providerID, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key == "" {
		delete(m.keys[userID], providerID)
		return
	}
	if m.keys[userID] == nil {
		m.keys[userID] = make(map[string]string)
	}
	m.keys[userID][providerID] = key
}

// AddUser registers a user id in the directory.
func (m *Memory) AddUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = struct{}{}
}

func (m *Memory) GetKey(_ context.Context, userID, providerID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.keys[userID][providerID]
	return key, ok && key != "", nil
}

func (m *Memory) Exists(_ context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.users[userID]
	return ok, nil
}

func (m *Memory) CreateConversation(_ context.Context, conv models.Conversation) (models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if _, exists := m.conversations[conv.ID]; exists {
		return models.Conversation{}, fmt.Errorf("conversation %s already exists", conv.ID)
	}
	now := m.now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	m.conversations[conv.ID] = conv
	return conv, nil
}

func (m *Memory) GetConversation(_ context.Context, conversationID string) (models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return models.Conversation{}, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	return conv, nil
}

func (m *Memory) AppendMessage(_ context.Context, msg models.Message) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[msg.ConversationID]
	if !ok {
		return models.Message{}, fmt.Errorf("conversation %s: %w", msg.ConversationID, ErrNotFound)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)

	conv.UpdatedAt = msg.CreatedAt
	m.conversations[conv.ID] = conv
	return msg, nil
}

func (m *Memory) RecentHistory(_ context.Context, conversationID string, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[conversationID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]models.Message, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}
