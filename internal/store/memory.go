package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore holds anonymous chat sessions in process memory. Each owner
// (anonymous session token) gets its own chat list, kept most-recently-updated
// first. State lives only as long as the server process; durable history is
// the SQLiteStore's job.
type MemoryStore struct {
	mu    sync.RWMutex
	chats map[string][]*Chat // ownerID -> chats, newest updatedAt first
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chats: make(map[string][]*Chat)}
}

func (s *MemoryStore) CreateChat(_ context.Context, ownerID, title string) (*Chat, error) {
	if title == "" {
		title = DefaultChatTitle
	}

	now := time.Now().UTC()
	chat := &Chat{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]Message, 0, 8),
	}

	s.mu.Lock()
	// New chats go to the front: they carry the newest updatedAt.
	s.chats[ownerID] = append([]*Chat{chat}, s.chats[ownerID]...)
	s.mu.Unlock()

	return cloneChat(chat), nil
}

func (s *MemoryStore) ListChats(_ context.Context, ownerID string) ([]*Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := s.chats[ownerID]
	out := make([]*Chat, len(chats))
	for i, c := range chats {
		out[i] = cloneChat(c)
	}
	return out, nil
}

func (s *MemoryStore) GetChat(_ context.Context, ownerID, chatID string) (*Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.chats[ownerID] {
		if c.ID == chatID {
			return cloneChat(c), nil
		}
	}
	return nil, ErrChatNotFound
}

func (s *MemoryStore) AppendMessage(_ context.Context, ownerID, chatID, role, content string) (*Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats := s.chats[ownerID]
	idx := -1
	for i, c := range chats {
		if c.ID == chatID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrChatNotFound
	}

	chat := chats[idx]
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	chat.Messages = append(chat.Messages, msg)
	chat.UpdatedAt = msg.CreatedAt
	applyTitleRule(chat, msg)

	// The touched chat now has the newest updatedAt, so moving it to the
	// front keeps the list ordered without a full resort.
	if idx != 0 {
		copy(chats[1:idx+1], chats[:idx])
		chats[0] = chat
	}

	return cloneChat(chat), nil
}

func (s *MemoryStore) DeleteChat(_ context.Context, ownerID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats := s.chats[ownerID]
	for i, c := range chats {
		if c.ID == chatID {
			s.chats[ownerID] = append(chats[:i], chats[i+1:]...)
			return nil
		}
	}
	return nil
}

// Drain removes the owner's entire session and returns its chats in listed
// order. Migration consumes the anonymous session through this, so a second
// migration attempt for the same token finds nothing to copy.
func (s *MemoryStore) Drain(_ context.Context, ownerID string) ([]*Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats := s.chats[ownerID]
	delete(s.chats, ownerID)
	return chats, nil
}

func cloneChat(c *Chat) *Chat {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}
