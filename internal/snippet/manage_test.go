package snippet

import (
	"context"
	"testing"

	"steward.run/internal/host"
)

func TestStripWrapping(t *testing.T) {
	cases := map[string]string{
		`<script>alert(1)</script>`:            "alert(1)",
		`<style media="all">body{}</style>`:    "body{}",
		"plain code":                           "plain code",
		"  <script type=\"x\">a()</script>  ": "a()",
	}
	for in, want := range cases {
		if got := StripWrapping(in); got != want {
			t.Fatalf("StripWrapping(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestManageLifecycle(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	msg, err := Manage(ctx, s, ManageRequest{Action: ActionAdd, Name: "hdr", Code: "emit(1)"})
	if err != nil {
		t.Fatal(err)
	}
	if msg != "Created 'hdr'." {
		t.Fatalf("msg = %q", msg)
	}

	sn, err := s.Get(ctx, "hdr")
	if err != nil {
		t.Fatal(err)
	}
	if sn.Kind != KindLogic || sn.Point != host.PointHead {
		t.Fatalf("defaults not applied: kind=%q point=%q", sn.Kind, sn.Point)
	}

	msg, err = Manage(ctx, s, ManageRequest{Action: ActionUpdate, Name: "hdr", Code: "emit(2)"})
	if err != nil {
		t.Fatal(err)
	}
	if msg != "Updated 'hdr'." {
		t.Fatalf("msg = %q", msg)
	}

	msg, err = Manage(ctx, s, ManageRequest{Action: ActionDeactivate, Name: "hdr"})
	if err != nil {
		t.Fatal(err)
	}
	if msg != "Snippet 'hdr' is now inactive." {
		t.Fatalf("msg = %q", msg)
	}

	msg, err = Manage(ctx, s, ManageRequest{Action: ActionDelete, Name: "hdr"})
	if err != nil {
		t.Fatal(err)
	}
	if msg != "Deleted 'hdr'." {
		t.Fatalf("msg = %q", msg)
	}

	if _, err = Manage(ctx, s, ManageRequest{Action: ActionDelete, Name: "hdr"}); err == nil {
		t.Fatal("expected delete of missing snippet to fail")
	}
}

func TestManageRejectsUnknownAction(t *testing.T) {
	s := NewInMemory()
	if _, err := Manage(context.Background(), s, ManageRequest{Action: "explode", Name: "x"}); err == nil {
		t.Fatal("expected unknown action to fail")
	}
}
