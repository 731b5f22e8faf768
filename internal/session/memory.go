package session

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/domain"
)

type memoryEntry struct {
	messages  []domain.ChatMessage
	expiresAt time.Time
	elem      *list.Element
}

// MemoryStore is the in-process Store used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*memoryEntry
	// order lists user ids least recently touched first.
	order *list.List
	now   func() time.Time
}

func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*memoryEntry),
		order:   list.New(),
		now:     time.Now,
	}
}

func (s *MemoryStore) History(ctx context.Context, userID string, n int) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(userID)
	if !ok {
		return []domain.ChatMessage{}, nil
	}
	return tail(e.messages, n), nil
}

func (s *MemoryStore) Append(ctx context.Context, userID string, msgs ...domain.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(userID)
	if !ok {
		for len(s.entries) >= s.cfg.MaxUsers {
			s.remove(s.order.Front().Value.(string))
		}
		e = &memoryEntry{}
		e.elem = s.order.PushBack(userID)
		s.entries[userID] = e
	} else {
		s.order.MoveToBack(e.elem)
	}

	e.messages = tail(append(e.messages, msgs...), s.cfg.MaxMessages)
	e.expiresAt = s.now().Add(s.cfg.TTL)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(userID)
	return nil
}

// Len returns the number of users currently held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// live returns the entry for userID, dropping it if expired. Callers hold mu.
func (s *MemoryStore) live(userID string) (*memoryEntry, bool) {
	e, ok := s.entries[userID]
	if !ok {
		return nil, false
	}
	if !s.now().Before(e.expiresAt) {
		s.remove(userID)
		return nil, false
	}
	return e, true
}

func (s *MemoryStore) remove(userID string) {
	e, ok := s.entries[userID]
	if !ok {
		return
	}
	s.order.Remove(e.elem)
	delete(s.entries, userID)
}
