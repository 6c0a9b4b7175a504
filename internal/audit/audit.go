// Package audit owns the append-only trail of tool invocations. Records are
// created PENDING before a tool runs and updated exactly once on completion;
// the core never deletes them.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"
	"unicode/utf8"

	"steward.run/internal/ids"
)

// Record statuses. A record transitions PENDING -> SUCCESS or PENDING -> FAILED.
const (
	StatusPending = "PENDING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// MaxDetails bounds the serialized details payload stored per record.
const MaxDetails = 500

// Record is a single audit trail entry.
type Record struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Operator string    `json:"operator"`
	Action   string    `json:"action"`
	Details  string    `json:"details"`
	Status   string    `json:"status"`
}

// Store persists audit records. Implementations must support concurrent
// append and per-record update without cross-record coordination.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	// Update rewrites status and details of the record with rec.ID.
	Update(ctx context.Context, rec *Record) error
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}

// NewRecord builds a PENDING record for the given operator and action.
func NewRecord(operator, action string, details any) *Record {
	return &Record{
		ID:       ids.New(),
		Time:     time.Now().UTC(),
		Operator: operator,
		Action:   action,
		Details:  BoundDetails(details),
		Status:   StatusPending,
	}
}

// BoundDetails serializes v and truncates it to at most MaxDetails bytes,
// cutting on a rune boundary so the stored value stays valid UTF-8.
func BoundDetails(v any) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	default:
		data, err := json.Marshal(v)
		if err != nil {
			s = "unserializable details"
		} else {
			s = string(data)
		}
	}
	if len(s) > MaxDetails {
		cut := MaxDetails
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// InMemory is a Store for tests and storage-less deployments.
type InMemory struct {
	mu   sync.RWMutex
	recs []Record
	byID map[string]int
}

// NewInMemory creates an empty in-memory audit store.
func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[string]int)}
}

func (s *InMemory) Append(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[rec.ID] = len(s.recs)
	s.recs = append(s.recs, *rec)
	return nil
}

func (s *InMemory) Update(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[rec.ID]
	if !ok {
		return ErrNotFound
	}
	s.recs[idx].Status = rec.Status
	s.recs[idx].Details = rec.Details
	return nil
}

func (s *InMemory) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.recs) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Record, 0, len(s.recs)-start)
	for i := len(s.recs) - 1; i >= start; i-- {
		out = append(out, s.recs[i])
	}
	return out, nil
}
