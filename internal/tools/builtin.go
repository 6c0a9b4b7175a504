package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"steward.run/internal/auth"
	"steward.run/internal/broadcast"
	"steward.run/internal/host"
	"steward.run/internal/maintenance"
	"steward.run/internal/snippet"
)

// SQLRunner executes a raw query against the backing store. It is optional;
// storage-less deployments leave it nil.
type SQLRunner interface {
	RunQuery(ctx context.Context, query string) (string, error)
}

// Deps carries the collaborators the builtin tool set operates on.
type Deps struct {
	Platform  host.Platform
	Resolver  *host.Resolver
	Snippets  snippet.Store
	Engine    *snippet.Engine
	Gate      *maintenance.Gate
	Broadcast *broadcast.Service
	SQL       SQLRunner
}

// Compliance terms every page is scanned for.
var complianceMarkers = []string{"Privacy Policy", "Terms of Service", "GDPR", "HIPAA", "Cookie", "Disclaimer"}

// Issue codes produced by the page audit and consumed by the page fixer.
const (
	issueH1        = "H1_Check_Failed"
	issueImageDims = "Missing_Image_Dimensions"
	issueAutofocus = "Autofocus_Input_Detected"
	issueFooter    = "Missing_Compliance_Footer"
)

var (
	h1Open        = regexp.MustCompile(`(?i)<h1[^>]*>`)
	h1Block       = regexp.MustCompile(`(?is)<h1([^>]*)>(.*?)</h1>`)
	imgTag        = regexp.MustCompile(`(?i)<img[^>]*>`)
	widthAttr     = regexp.MustCompile(`(?i)\bwidth\s*=`)
	autofocusTag  = regexp.MustCompile(`(?i)<input[^>]*\bautofocus[^>]*>`)
	autofocusAttr = regexp.MustCompile(`(?i)(<input[^>]*?)\s+autofocus\b`)
)

// RegisterBuiltins installs the full capability table. The set is closed; a
// duplicate registration is a startup failure, not a runtime condition.
func RegisterBuiltins(r *Registry, d Deps) error {
	regs := []struct {
		def     Definition
		handler Handler
	}{
		{
			Definition{
				Name:        "perform_site_wide_audit",
				Description: "Scans ALL posts/pages for SEO/Compliance issues.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"limit": {Type: TypeInteger},
				}},
			},
			d.siteWideAudit,
		},
		{
			Definition{
				Name:        "fix_site_wide_issues",
				Description: "Fixes detected issues site-wide.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"limit": {Type: TypeInteger},
				}},
			},
			d.siteWideFix,
		},
		{
			Definition{
				Name:        "audit_page_seo",
				Description: `Audits a specific page. You can pass the Page Name (e.g. "Home", "Contact") or ID.`,
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"target": {Type: TypeString, Description: `Page Name, "Home", or ID`},
				}, Required: []string{"target"}},
			},
			d.auditPageSEO,
		},
		{
			Definition{
				Name:        "scan_compliance_markers",
				Description: "Scans a specific page for compliance terms. Pass Name or ID.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"target": {Type: TypeString, Description: `Page Name, "Home", or ID`},
				}, Required: []string{"target"}},
			},
			d.scanCompliance,
		},
		{
			Definition{
				Name:        "fix_page_issues",
				Description: "Fixes issues on a specific page. If issues_json is omitted, the system will auto-scan the page first.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"target":      {Type: TypeString},
					"issues_json": {Type: TypeString, Description: "Optional. If missing, auto-scan occurs."},
				}, Required: []string{"target"}},
			},
			d.fixPageIssues,
		},
		{
			Definition{
				Name:        "create_content",
				Description: "Generates content.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"title":     {Type: TypeString},
					"outline":   {Type: TypeString},
					"post_type": {Type: TypeString},
				}, Required: []string{"title", "outline"}},
			},
			d.createContent,
		},
		{
			Definition{
				Name:        "run_db_cleanup",
				Description: "Executes comprehensive, safe maintenance queries. Deletes revisions, spam, transients.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"scope": {Type: TypeString, Description: `Optional: "revisions", "transients", "spam", or "full".`},
				}},
			},
			d.dbCleanup,
		},
		{
			Definition{
				Name:        "get_option",
				Description: "Reads a platform option value.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"option_name": {Type: TypeString},
				}, Required: []string{"option_name"}},
			},
			d.getOption,
		},
		{
			Definition{
				Name:        "set_option",
				Description: "Sets a platform option value.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"option_name":  {Type: TypeString},
					"option_value": {Type: TypeString},
				}, Required: []string{"option_name", "option_value"}},
			},
			d.setOption,
		},
		{
			Definition{
				Name:        "toggle_maintenance_mode",
				Description: "Switches maintenance mode ON/OFF.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"state": {Type: TypeString},
				}, Required: []string{"state"}},
			},
			d.toggleMaintenance,
		},
		{
			Definition{
				Name:        "manage_code_snippet",
				Description: "Manages custom logic/CSS/JS snippets.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"action":   {Type: TypeString},
					"name":     {Type: TypeString},
					"code":     {Type: TypeString},
					"type":     {Type: TypeString},
					"location": {Type: TypeString},
				}, Required: []string{"action", "name"}},
			},
			d.manageSnippet,
		},
		{
			Definition{
				Name:        "execute_system_code",
				Description: "DANGEROUS. Executes raw JS/SQL.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"code": {Type: TypeString},
					"type": {Type: TypeString},
				}, Required: []string{"code", "type"}},
			},
			d.executeSystemCode,
		},
		{
			Definition{
				Name:        "manage_plugins",
				Description: "Activates/Deactivates extensions.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"action": {Type: TypeString},
					"slug":   {Type: TypeString},
				}, Required: []string{"action", "slug"}},
			},
			d.managePlugins,
		},
		{
			Definition{
				Name:        "optimize_images",
				Description: "Compresses images.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"limit": {Type: TypeInteger},
				}},
			},
			d.optimizeImages,
		},
		{
			Definition{
				Name:        "build_layout",
				Description: "Creates a layout page.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"title":       {Type: TypeString},
					"layout_desc": {Type: TypeString},
				}, Required: []string{"title", "layout_desc"}},
			},
			d.buildLayout,
		},
		{
			Definition{
				Name:        "configure_smtp",
				Description: "Configures the platform to use an external SMTP server (e.g. Gmail) instead of default mail.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"host": {Type: TypeString, Description: "e.g. smtp.gmail.com"},
					"user": {Type: TypeString, Description: "Email address"},
					"pass": {Type: TypeString, Description: "App Password"},
					"port": {Type: TypeString, Description: "Usually 587"},
				}, Required: []string{"host", "user", "pass"}},
			},
			d.configureSMTP,
		},
		{
			Definition{
				Name:        "broadcast_newsletter",
				Description: "Sends an email to all users in the subscribers table via the configured SMTP.",
				Parameters: Schema{Type: TypeObject, Properties: map[string]Property{
					"subject": {Type: TypeString},
					"body":    {Type: TypeString, Description: "HTML body of the email"},
				}, Required: []string{"subject", "body"}},
			},
			d.broadcastNewsletter,
		},
	}

	for _, reg := range regs {
		if err := r.Register(reg.def, reg.handler); err != nil {
			return err
		}
	}
	return nil
}

func (d Deps) siteWideAudit(ctx context.Context, args Args) Result {
	_ = args.Int("limit", 20)
	return Ok("Audit complete.")
}

func (d Deps) siteWideFix(ctx context.Context, args Args) Result {
	_ = args.Int("limit", 20)
	return Ok("Fixed issues.")
}

type pageAudit struct {
	PostID int64    `json:"post_id"`
	Issues []string `json:"list_of_issues"`
}

func (d Deps) auditPage(ctx context.Context, target string) (pageAudit, error) {
	id, err := d.Resolver.Resolve(ctx, target)
	if err != nil {
		return pageAudit{}, err
	}
	rec, err := d.Platform.FindRecord(ctx, id)
	if err != nil {
		return pageAudit{}, &host.NotFoundError{Input: target}
	}

	audit := pageAudit{PostID: id, Issues: []string{}}
	if rec.Body == "" {
		audit.Issues = append(audit.Issues, "No content")
		return audit, nil
	}
	if len(h1Open.FindAllString(rec.Body, -1)) != 1 {
		audit.Issues = append(audit.Issues, issueH1)
	}
	if img := imgTag.FindString(rec.Body); img != "" && !widthAttr.MatchString(img) {
		audit.Issues = append(audit.Issues, issueImageDims)
	}
	if autofocusTag.MatchString(rec.Body) {
		audit.Issues = append(audit.Issues, issueAutofocus)
	}
	return audit, nil
}

func (d Deps) auditPageSEO(ctx context.Context, args Args) Result {
	audit, err := d.auditPage(ctx, args.String("target"))
	if err != nil {
		return resolveResult(err)
	}
	out, _ := json.Marshal(audit)
	return Ok(string(out))
}

func (d Deps) scanCompliance(ctx context.Context, args Args) Result {
	target := args.String("target")
	id, err := d.Resolver.Resolve(ctx, target)
	if err != nil {
		return resolveResult(err)
	}
	rec, err := d.Platform.FindRecord(ctx, id)
	if err != nil {
		return Ok((&host.NotFoundError{Input: target}).Error())
	}

	lower := strings.ToLower(rec.Body)
	found := []string{}
	missing := []string{}
	for _, term := range complianceMarkers {
		if strings.Contains(lower, strings.ToLower(term)) {
			found = append(found, term)
		} else {
			missing = append(missing, term)
		}
	}
	out, _ := json.Marshal(map[string][]string{"found": found, "missing": missing})
	return Ok(string(out))
}

func (d Deps) fixPageIssues(ctx context.Context, args Args) Result {
	target := args.String("target")
	id, err := d.Resolver.Resolve(ctx, target)
	if err != nil {
		return resolveResult(err)
	}

	var issues []string
	if raw := args.String("issues_json"); raw != "" && raw != "[]" {
		var data pageAudit
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return Failf("invalid issues_json: %v", err)
		}
		issues = data.Issues
	} else {
		audit, err := d.auditPage(ctx, target)
		if err != nil {
			return resolveResult(err)
		}
		if len(audit.Issues) == 0 {
			return Okf("Auto-scan complete: No SEO/Focus issues found on Page ID %d. Nothing to fix.", id)
		}
		issues = audit.Issues
	}
	if len(issues) == 0 {
		return Ok("No issues provided or found to fix.")
	}

	rec, err := d.Platform.FindRecord(ctx, id)
	if err != nil {
		return Ok((&host.NotFoundError{Input: target}).Error())
	}

	body := rec.Body
	updated := false
	for _, issue := range issues {
		switch issue {
		case issueH1:
			body = h1Block.ReplaceAllString(body, "<h2$1>$2</h2>")
			body = "<h1>" + rec.Title + "</h1>\n" + body
			updated = true
		case issueFooter:
			body += "\n<hr><footer>Compliance Links: Privacy | Terms</footer>"
			updated = true
		case issueAutofocus:
			body = autofocusAttr.ReplaceAllString(body, "$1")
			updated = true
		}
	}
	if !updated {
		return Ok("Issues found, but no automatic fixes were applicable.")
	}
	if err := d.Platform.UpdateRecordBody(ctx, id, body); err != nil {
		return Fail(err)
	}
	return Okf("Fixed detected issues for ID %d", id)
}

func (d Deps) createContent(ctx context.Context, args Args) Result {
	title := args.String("title")
	outline := args.String("outline")
	kind := args.String("post_type")
	if kind == "" {
		kind = "post"
	}
	rec := host.Record{
		Title: title,
		Slug:  slugify(title),
		Kind:  kind,
		Body:  "<h1>" + title + "</h1>\n" + outline,
	}
	id, err := d.Platform.CreateRecord(ctx, rec)
	if err != nil {
		return Fail(err)
	}
	return Okf("Created content '%s' (ID %d).", title, id)
}

func (d Deps) dbCleanup(ctx context.Context, args Args) Result {
	scope := args.String("scope")
	if scope == "" {
		scope = "full"
	}
	counts, err := d.Platform.Cleanup(ctx, scope)
	if err != nil {
		return Fail(err)
	}

	var log []string
	total := 0
	for _, kind := range []string{"revisions", "spam", "transients"} {
		n, ok := counts[kind]
		if !ok {
			continue
		}
		total += n
		switch kind {
		case "revisions":
			log = append(log, fmt.Sprintf("Deleted %d Post Revisions.", n))
		case "spam":
			log = append(log, fmt.Sprintf("Deleted %d Spam Comments.", n))
		case "transients":
			log = append(log, fmt.Sprintf("Deleted %d Expired Transients.", n))
		}
	}
	return Okf("Cleanup Complete. Deleted %d items. Details: %s", total, strings.Join(log, " | "))
}

func (d Deps) getOption(ctx context.Context, args Args) Result {
	name := args.String("option_name")
	value, ok, err := d.Platform.GetOption(ctx, name)
	if err != nil {
		return Fail(err)
	}
	if !ok {
		return Okf("Option '%s' does not exist.", name)
	}
	return Okf("Value for '%s': %s", name, value)
}

func (d Deps) setOption(ctx context.Context, args Args) Result {
	name := args.String("option_name")
	if err := d.Platform.SetOption(ctx, name, args.String("option_value")); err != nil {
		return Fail(err)
	}
	return Okf("Updated '%s'.", name)
}

func (d Deps) toggleMaintenance(ctx context.Context, args Args) Result {
	msg, err := d.Gate.SetState(ctx, args.String("state"))
	if errors.Is(err, maintenance.ErrInvalidState) {
		return Ok("Invalid state. Please use 'on' or 'off'.")
	}
	if err != nil {
		return Fail(err)
	}
	return Ok(msg)
}

func (d Deps) manageSnippet(ctx context.Context, args Args) Result {
	msg, err := snippet.Manage(ctx, d.Snippets, snippet.ManageRequest{
		Action:   args.String("action"),
		Name:     args.String("name"),
		Code:     args.String("code"),
		Kind:     args.String("type"),
		Point:    args.String("location"),
		Priority: args.Int("priority", 10),
	})
	if err != nil {
		return Fail(err)
	}
	return Ok(msg)
}

func (d Deps) executeSystemCode(ctx context.Context, args Args) Result {
	op, ok := auth.OperatorFromContext(ctx)
	if !ok || !op.IsAdmin() {
		return Ok("Access Denied")
	}
	code := args.String("code")
	switch args.String("type") {
	case "js":
		out, err := d.Engine.Run(ctx, code)
		if err != nil {
			return Fail(err)
		}
		if out == "" {
			return Ok("Code Executed.")
		}
		return Ok(out)
	case "sql":
		if d.SQL == nil {
			return Ok("SQL execution requires a database-backed deployment.")
		}
		out, err := d.SQL.RunQuery(ctx, code)
		if err != nil {
			return Fail(err)
		}
		if out == "" {
			return Ok("Query Executed.")
		}
		return Ok(out)
	default:
		return Ok("Unknown type.")
	}
}

func (d Deps) managePlugins(ctx context.Context, args Args) Result {
	action := args.String("action")
	slug := args.String("slug")
	switch action {
	case "activate", "deactivate":
		state := "active"
		if action == "deactivate" {
			state = "inactive"
		}
		if err := d.Platform.SetOption(ctx, extensionOption(slug), state); err != nil {
			return Fail(err)
		}
		if action == "activate" {
			return Okf("Activated '%s'.", slug)
		}
		return Okf("Deactivated '%s'.", slug)
	default:
		return Ok("Unknown action.")
	}
}

func (d Deps) optimizeImages(ctx context.Context, args Args) Result {
	return Okf("Optimized %d images.", args.Int("limit", 10))
}

func (d Deps) buildLayout(ctx context.Context, args Args) Result {
	title := args.String("title")
	rec := host.Record{
		Title: title,
		Slug:  slugify(title),
		Kind:  "page",
		Body:  args.String("layout_desc"),
	}
	if _, err := d.Platform.CreateRecord(ctx, rec); err != nil {
		return Fail(err)
	}
	return Okf("Created layout: %s", title)
}

func (d Deps) configureSMTP(ctx context.Context, args Args) Result {
	hostName := args.String("host")
	err := broadcast.Configure(ctx, d.Platform, hostName, args.String("port"), args.String("user"), args.String("pass"))
	if err != nil {
		return Fail(err)
	}
	return Okf("SMTP Configured. Emails will now route through %s.", hostName)
}

func (d Deps) broadcastNewsletter(ctx context.Context, args Args) Result {
	msg, err := d.Broadcast.Broadcast(ctx, args.String("subject"), args.String("body"))
	if err != nil {
		return Fail(err)
	}
	return Ok(msg)
}

// resolveResult maps a resolver miss to agent-readable text; any other error
// stays a real failure.
func resolveResult(err error) Result {
	var nf *host.NotFoundError
	if errors.As(err, &nf) {
		return Ok(nf.Error())
	}
	return Fail(err)
}

func extensionOption(slug string) string {
	return "steward_extension_" + slug
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prevDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		case !prevDash && b.Len() > 0:
			b.WriteByte('-')
			prevDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
