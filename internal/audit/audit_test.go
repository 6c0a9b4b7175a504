package audit

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestLifecycleTransitions(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	rec := NewRecord("op-1", "toggle_maintenance_mode", map[string]any{"state": "on"})
	if rec.Status != StatusPending {
		t.Fatalf("new record status = %q, want %q", rec.Status, StatusPending)
	}
	if err := s.Append(ctx, rec); err != nil {
		t.Fatal(err)
	}

	rec.Status = StatusSuccess
	rec.Details = BoundDetails("Result: Maintenance Mode is now ON (503).")
	if err := s.Update(ctx, rec); err != nil {
		t.Fatal(err)
	}

	recent, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recent))
	}
	if recent[0].Status != StatusSuccess {
		t.Fatalf("status = %q, want %q", recent[0].Status, StatusSuccess)
	}
}

func TestUpdateUnknownRecord(t *testing.T) {
	s := NewInMemory()
	rec := NewRecord("op-1", "x", nil)
	if err := s.Update(context.Background(), rec); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBoundDetailsTruncates(t *testing.T) {
	long := strings.Repeat("a", 2*MaxDetails)
	got := BoundDetails(long)
	if len(got) != MaxDetails {
		t.Fatalf("details length = %d, want %d", len(got), MaxDetails)
	}

	// Non-string details are serialized before truncation.
	got = BoundDetails(map[string]any{"limit": 20})
	if got != `{"limit":20}` {
		t.Fatalf("unexpected serialized details: %q", got)
	}
}

func TestBoundDetailsKeepsValidUTF8(t *testing.T) {
	// Three-byte runes that do not divide MaxDetails evenly, so a byte cut
	// would land mid-rune.
	long := strings.Repeat("日", MaxDetails)
	got := BoundDetails(long)
	if len(got) > MaxDetails {
		t.Fatalf("details length = %d, want <= %d", len(got), MaxDetails)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated details are not valid UTF-8: %q", got[len(got)-6:])
	}
	if len(got) != MaxDetails-MaxDetails%3 {
		t.Fatalf("details length = %d, want cut on a rune boundary", len(got))
	}
}

func TestListRecentNewestFirst(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	first := NewRecord("op-1", "first", nil)
	second := NewRecord("op-1", "second", nil)
	_ = s.Append(ctx, first)
	_ = s.Append(ctx, second)

	recent, err := s.ListRecent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Action != "second" {
		t.Fatalf("expected newest record first, got %+v", recent)
	}
}
