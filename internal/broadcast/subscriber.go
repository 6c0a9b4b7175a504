// Package broadcast owns the subscriber list and the newsletter send path.
package broadcast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Subscriber statuses.
const (
	StatusSubscribed   = "subscribed"
	StatusUnsubscribed = "unsubscribed"
)

var (
	ErrNotFound     = errors.New("broadcast: subscriber not found")
	ErrInvalidEmail = errors.New("broadcast: invalid email")
)

// Subscriber is keyed by email; re-subscription upserts.
type Subscriber struct {
	ID        int64
	Email     string
	Name      string
	Status    string
	CreatedAt time.Time
}

// Store persists subscribers.
type Store interface {
	UpsertSubscriber(ctx context.Context, sub *Subscriber) error
	ListSubscribed(ctx context.Context) ([]Subscriber, error)
}

// InMemory is a Store for tests and storage-less deployments.
type InMemory struct {
	mu      sync.RWMutex
	byEmail map[string]*Subscriber
	nextID  int64
}

// NewInMemory creates an empty in-memory subscriber store.
func NewInMemory() *InMemory {
	return &InMemory{byEmail: make(map[string]*Subscriber), nextID: 1}
}

func (s *InMemory) UpsertSubscriber(ctx context.Context, sub *Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(sub.Email)
	if existing, ok := s.byEmail[key]; ok {
		existing.Name = sub.Name
		existing.Status = sub.Status
		*sub = *existing
		return nil
	}
	sub.ID = s.nextID
	s.nextID++
	sub.CreatedAt = time.Now().UTC()
	cp := *sub
	s.byEmail[key] = &cp
	return nil
}

func (s *InMemory) ListSubscribed(ctx context.Context) ([]Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Subscriber
	for _, sub := range s.byEmail {
		if sub.Status == StatusSubscribed {
			out = append(out, *sub)
		}
	}
	return out, nil
}
