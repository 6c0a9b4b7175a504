// Package host abstracts the managed content platform the agent operates
// against: named options, content records, and the lifecycle points snippets
// replay at. The platform itself is an external collaborator; the agent only
// depends on these interfaces.
package host

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Option keys the agent reads and writes on the platform.
const (
	OptionMaintenanceStatus = "steward_maintenance_status"
	OptionFrontPageID       = "page_on_front"
	OptionPostsPageID       = "page_for_posts"
	OptionSMTPHost          = "steward_smtp_host"
	OptionSMTPPort          = "steward_smtp_port"
	OptionSMTPUser          = "steward_smtp_user"
	OptionSMTPPass          = "steward_smtp_pass"
)

// Options is the platform's named configuration value store.
type Options interface {
	GetOption(ctx context.Context, name string) (string, bool, error)
	SetOption(ctx context.Context, name, value string) error
}

// Record is a content record (page or post).
type Record struct {
	ID        int64
	Title     string
	Slug      string
	Kind      string // "page" or "post"
	Body      string
	UpdatedAt time.Time
}

// Content provides lookup and mutation over content records.
type Content interface {
	FindRecord(ctx context.Context, id int64) (Record, error)
	FindRecordByTitle(ctx context.Context, title string) (Record, error)
	FindRecordBySlug(ctx context.Context, slug string) (Record, error)
	CreateRecord(ctx context.Context, rec Record) (int64, error)
	UpdateRecordBody(ctx context.Context, id int64, body string) error
	// Cleanup removes expendable platform data for the given scope
	// (revisions, spam, transients, or full) and returns deletion counts.
	Cleanup(ctx context.Context, scope string) (map[string]int, error)
}

// Platform bundles the host capabilities the agent consumes.
type Platform interface {
	Options
	Content
}

// Memory is an in-process Platform used by tests and storage-less runs.
type Memory struct {
	mu      sync.RWMutex
	options map[string]string
	records map[int64]Record
	nextID  int64
}

// NewMemory creates an empty in-memory platform.
func NewMemory() *Memory {
	return &Memory{
		options: make(map[string]string),
		records: make(map[int64]Record),
		nextID:  1,
	}
}

// AddRecord inserts a record and returns its assigned id.
func (m *Memory) AddRecord(rec Record) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.nextID
	m.nextID++
	rec.UpdatedAt = time.Now().UTC()
	m.records[rec.ID] = rec
	return rec.ID
}

func (m *Memory) GetOption(ctx context.Context, name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.options[name]
	return v, ok, nil
}

func (m *Memory) SetOption(ctx context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[name] = value
	return nil
}

func (m *Memory) FindRecord(ctx context.Context, id int64) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) FindRecordByTitle(ctx context.Context, title string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if strings.EqualFold(rec.Title, title) {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (m *Memory) FindRecordBySlug(ctx context.Context, slug string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if strings.EqualFold(rec.Slug, slug) {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (m *Memory) CreateRecord(ctx context.Context, rec Record) (int64, error) {
	return m.AddRecord(rec), nil
}

func (m *Memory) UpdateRecordBody(ctx context.Context, id int64, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Body = body
	rec.UpdatedAt = time.Now().UTC()
	m.records[id] = rec
	return nil
}

func (m *Memory) Cleanup(ctx context.Context, scope string) (map[string]int, error) {
	// The in-memory platform has nothing to expire; report zero counts so the
	// cleanup tool stays exercisable without a database.
	counts := map[string]int{}
	switch scope {
	case "revisions", "spam", "transients":
		counts[scope] = 0
	case "", "full":
		counts["revisions"] = 0
		counts["spam"] = 0
		counts["transients"] = 0
	default:
		return nil, ErrInvalidScope
	}
	return counts, nil
}
