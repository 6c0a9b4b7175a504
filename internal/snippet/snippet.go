// Package snippet stores and replays small user-supplied code fragments at
// host lifecycle execution points.
package snippet

import (
	"context"
	"sync"
)

// Snippet kinds.
const (
	KindStyle  = "css"   // markup/style block, emitted verbatim
	KindScript = "js"    // script block, emitted verbatim
	KindLogic  = "logic" // server-side logic, run in the sandbox
)

// Snippet statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Snippet is a stored, replayable code fragment bound to an execution point.
type Snippet struct {
	ID       int64
	Name     string
	Code     string
	Kind     string
	Point    string
	Status   string
	Priority int
	// Seq preserves insertion order so equal priorities replay stably.
	Seq int64
}

// Store persists snippets keyed by unique name.
type Store interface {
	Upsert(ctx context.Context, s *Snippet) (created bool, err error)
	SetStatus(ctx context.Context, name, status string) error
	Delete(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (Snippet, error)
	// ListActive returns active snippets in insertion order.
	ListActive(ctx context.Context) ([]Snippet, error)
}

// InMemory is a Store for tests and storage-less deployments.
type InMemory struct {
	mu      sync.RWMutex
	byName  map[string]*Snippet
	nextID  int64
	nextSeq int64
}

// NewInMemory creates an empty in-memory snippet store.
func NewInMemory() *InMemory {
	return &InMemory{byName: make(map[string]*Snippet), nextID: 1}
}

func (s *InMemory) Upsert(ctx context.Context, sn *Snippet) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byName[sn.Name]; ok {
		existing.Code = sn.Code
		existing.Kind = sn.Kind
		existing.Point = sn.Point
		existing.Status = sn.Status
		existing.Priority = sn.Priority
		*sn = *existing
		return false, nil
	}
	sn.ID = s.nextID
	s.nextID++
	sn.Seq = s.nextSeq
	s.nextSeq++
	cp := *sn
	s.byName[sn.Name] = &cp
	return true, nil
}

func (s *InMemory) SetStatus(ctx context.Context, name, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.byName[name]
	if !ok {
		return ErrNotFound
	}
	sn.Status = status
	return nil
}

func (s *InMemory) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; !ok {
		return ErrNotFound
	}
	delete(s.byName, name)
	return nil
}

func (s *InMemory) Get(ctx context.Context, name string) (Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sn, ok := s.byName[name]
	if !ok {
		return Snippet{}, ErrNotFound
	}
	return *sn, nil
}

func (s *InMemory) ListActive(ctx context.Context) ([]Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snippet, 0, len(s.byName))
	for _, sn := range s.byName {
		if sn.Status == StatusActive {
			out = append(out, *sn)
		}
	}
	sortBySeq(out)
	return out, nil
}

func sortBySeq(list []Snippet) {
	// Insertion sort; active snippet counts are tiny.
	for i := 1; i < len(list); i++ {
		for j := i; j > 0 && list[j].Seq < list[j-1].Seq; j-- {
			list[j], list[j-1] = list[j-1], list[j]
		}
	}
}
