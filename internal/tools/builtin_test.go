package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"steward.run/internal/auth"
	"steward.run/internal/broadcast"
	"steward.run/internal/host"
	"steward.run/internal/maintenance"
	"steward.run/internal/snippet"
)

type sentMail struct {
	to, subject string
}

type fakeMailer struct {
	sent []sentMail
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	m.sent = append(m.sent, sentMail{to: to, subject: subject})
	return nil
}

type fixture struct {
	deps     Deps
	registry *Registry
	platform *host.Memory
	marker   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	platform := host.NewMemory()
	marker := filepath.Join(t.TempDir(), ".maintenance")
	deps := Deps{
		Platform:  platform,
		Resolver:  host.NewResolver(platform),
		Snippets:  snippet.NewInMemory(),
		Engine:    snippet.NewEngine(0),
		Gate:      maintenance.NewGate(platform, marker),
		Broadcast: broadcast.NewService(broadcast.NewInMemory(), &fakeMailer{}),
	}
	registry := NewRegistry()
	if err := RegisterBuiltins(registry, deps); err != nil {
		t.Fatal(err)
	}
	return &fixture{deps: deps, registry: registry, platform: platform, marker: marker}
}

func (f *fixture) dispatch(t *testing.T, name string, args Args) Result {
	t.Helper()
	res, found := f.registry.Dispatch(context.Background(), name, args)
	if !found {
		t.Fatalf("tool %q not registered", name)
	}
	return res
}

func adminContext() context.Context {
	return auth.ContextWithOperator(context.Background(), auth.Operator{ID: "op-1", Roles: []string{auth.RoleAdmin}})
}

func TestAuditPageSEOFindsIssues(t *testing.T) {
	f := newFixture(t)
	id := f.platform.AddRecord(host.Record{
		Title: "Landing",
		Slug:  "landing",
		Kind:  "page",
		Body:  `<h1>a</h1><h1>b</h1><img src="x.png"><input type="text" autofocus>`,
	})

	res := f.dispatch(t, "audit_page_seo", Args{"target": "Landing"})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	var audit struct {
		PostID int64    `json:"post_id"`
		Issues []string `json:"list_of_issues"`
	}
	if err := json.Unmarshal([]byte(res.Text), &audit); err != nil {
		t.Fatalf("audit result not json: %v", err)
	}
	if audit.PostID != id {
		t.Fatalf("post_id = %d, want %d", audit.PostID, id)
	}
	want := []string{"H1_Check_Failed", "Missing_Image_Dimensions", "Autofocus_Input_Detected"}
	if len(audit.Issues) != len(want) {
		t.Fatalf("issues = %v, want %v", audit.Issues, want)
	}
	for i := range want {
		if audit.Issues[i] != want[i] {
			t.Fatalf("issues = %v, want %v", audit.Issues, want)
		}
	}
}

func TestAuditPageSEOUnresolvableTargetIsText(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch(t, "audit_page_seo", Args{"target": "Ghost Page"})
	if res.Err != nil {
		t.Fatalf("resolver miss must be text, got error %v", res.Err)
	}
	if res.Text != "Error: Could not find any post or page named 'Ghost Page'." {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestFixPageIssuesAutoScan(t *testing.T) {
	f := newFixture(t)
	f.platform.AddRecord(host.Record{
		Title: "Clean",
		Slug:  "clean",
		Kind:  "page",
		Body:  "<h1>Only One</h1><p>fine</p>",
	})

	res := f.dispatch(t, "fix_page_issues", Args{"target": "Clean"})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if !strings.Contains(res.Text, "Nothing to fix") {
		t.Fatalf("unexpected text: %q", res.Text)
	}

	// A broken page gets repaired in place.
	brokenID := f.platform.AddRecord(host.Record{
		Title: "Broken",
		Slug:  "broken",
		Kind:  "page",
		Body:  `<h1>a</h1><h1>b</h1><input type="text" autofocus>`,
	})
	res = f.dispatch(t, "fix_page_issues", Args{"target": "Broken"})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	rec, err := f.platform.FindRecord(context.Background(), brokenID)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(rec.Body, "<h1>") != 1 {
		t.Fatalf("expected exactly one h1 after fix, body: %q", rec.Body)
	}
	if strings.Contains(rec.Body, "autofocus") {
		t.Fatalf("autofocus not removed: %q", rec.Body)
	}
}

func TestScanComplianceMarkers(t *testing.T) {
	f := newFixture(t)
	f.platform.AddRecord(host.Record{
		Title: "Legal",
		Slug:  "legal",
		Kind:  "page",
		Body:  "Our Privacy Policy and Cookie notice.",
	})

	res := f.dispatch(t, "scan_compliance_markers", Args{"target": "Legal"})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	var report map[string][]string
	if err := json.Unmarshal([]byte(res.Text), &report); err != nil {
		t.Fatal(err)
	}
	if len(report["found"]) != 2 {
		t.Fatalf("found = %v", report["found"])
	}
	if len(report["missing"]) != 4 {
		t.Fatalf("missing = %v", report["missing"])
	}
}

func TestOptionTools(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch(t, "get_option", Args{"option_name": "nope"})
	if res.Text != "Option 'nope' does not exist." {
		t.Fatalf("unexpected text: %q", res.Text)
	}

	res = f.dispatch(t, "set_option", Args{"option_name": "site_tagline", "option_value": "hello"})
	if res.Text != "Updated 'site_tagline'." {
		t.Fatalf("unexpected text: %q", res.Text)
	}

	res = f.dispatch(t, "get_option", Args{"option_name": "site_tagline"})
	if res.Text != "Value for 'site_tagline': hello" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestToggleMaintenanceMode(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch(t, "toggle_maintenance_mode", Args{"state": "on"})
	if res.Text != "Maintenance Mode is now ON (503)." {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	if _, err := os.Stat(f.marker); err != nil {
		t.Fatalf("marker file missing: %v", err)
	}

	res = f.dispatch(t, "toggle_maintenance_mode", Args{"state": "off"})
	if res.Text != "Maintenance Mode is now OFF. Site is live." {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	if _, err := os.Stat(f.marker); !os.IsNotExist(err) {
		t.Fatalf("marker file still present: %v", err)
	}

	res = f.dispatch(t, "toggle_maintenance_mode", Args{"state": "maybe"})
	if res.Text != "Invalid state. Please use 'on' or 'off'." {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestManageCodeSnippet(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch(t, "manage_code_snippet", Args{
		"action": "add",
		"name":   "banner",
		"code":   "<style>body{background:red}</style>",
		"type":   "css",
	})
	if res.Text != "Created 'banner'." {
		t.Fatalf("unexpected text: %q", res.Text)
	}

	sn, err := f.deps.Snippets.Get(context.Background(), "banner")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(sn.Code, "<style>") {
		t.Fatalf("wrapping tags not stripped: %q", sn.Code)
	}
	if sn.Priority != 10 {
		t.Fatalf("priority = %d, want default 10", sn.Priority)
	}

	res = f.dispatch(t, "manage_code_snippet", Args{"action": "delete", "name": "banner"})
	if res.Text != "Deleted 'banner'." {
		t.Fatalf("unexpected text: %q", res.Text)
	}

	res = f.dispatch(t, "manage_code_snippet", Args{"action": "delete", "name": "banner"})
	if res.Err == nil {
		t.Fatal("expected contained failure for missing snippet")
	}
}

func TestExecuteSystemCodeRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch(t, "execute_system_code", Args{"code": "emit(1)", "type": "js"})
	if res.Text != "Access Denied" {
		t.Fatalf("unexpected text: %q", res.Text)
	}

	res2, found := f.registry.Dispatch(adminContext(), "execute_system_code", Args{"code": `emit("hi")`, "type": "js"})
	if !found {
		t.Fatal("tool not registered")
	}
	if res2.Err != nil {
		t.Fatal(res2.Err)
	}
	if res2.Text != "hi" {
		t.Fatalf("unexpected output: %q", res2.Text)
	}

	res3, _ := f.registry.Dispatch(adminContext(), "execute_system_code", Args{"code": "select 1", "type": "sql"})
	if res3.Text != "SQL execution requires a database-backed deployment." {
		t.Fatalf("unexpected text: %q", res3.Text)
	}
}

func TestBroadcastNewsletterNoSubscribers(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch(t, "broadcast_newsletter", Args{"subject": "Hi", "body": "<p>hello</p>"})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.Text != "No subscribers found." {
		t.Fatalf("unexpected text: %q", res.Text)
	}
}

func TestConfigureSMTP(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch(t, "configure_smtp", Args{
		"host": "smtp.example.com",
		"user": "agent@example.com",
		"pass": "secret",
	})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.Text != "SMTP Configured. Emails will now route through smtp.example.com." {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	port, _, _ := f.platform.GetOption(context.Background(), host.OptionSMTPPort)
	if port != "587" {
		t.Fatalf("default port = %q", port)
	}
}

func TestCreateContentAndLayout(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch(t, "create_content", Args{"title": "Hello World", "outline": "intro"})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	rec, err := f.platform.FindRecordBySlug(context.Background(), "hello-world")
	if err != nil {
		t.Fatalf("content record missing: %v", err)
	}
	if rec.Kind != "post" {
		t.Fatalf("kind = %q", rec.Kind)
	}

	res = f.dispatch(t, "build_layout", Args{"title": "Pricing", "layout_desc": "three tiers"})
	if res.Text != "Created layout: Pricing" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	if _, err := f.platform.FindRecordBySlug(context.Background(), "pricing"); err != nil {
		t.Fatalf("layout record missing: %v", err)
	}
}

func TestManagePlugins(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch(t, "manage_plugins", Args{"action": "activate", "slug": "cache-warmer"})
	if res.Text != "Activated 'cache-warmer'." {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	state, _, _ := f.platform.GetOption(context.Background(), "steward_extension_cache-warmer")
	if state != "active" {
		t.Fatalf("extension state = %q", state)
	}
}

func TestRunDBCleanup(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch(t, "run_db_cleanup", Args{})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if !strings.HasPrefix(res.Text, "Cleanup Complete. Deleted 0 items.") {
		t.Fatalf("unexpected text: %q", res.Text)
	}

	res = f.dispatch(t, "run_db_cleanup", Args{"scope": "bogus"})
	if res.Err == nil {
		t.Fatal("expected invalid scope to fail")
	}
}
