package host

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Aliases understood as the configured front page.
var homeAliases = map[string]struct{}{
	"home":       {},
	"homepage":   {},
	"home page":  {},
	"front page": {},
	"frontpage":  {},
	"main page":  {},
	"main":       {},
	"root":       {},
}

const blogAlias = "blog"

// NotFoundError carries the agent-readable message for an unresolvable name.
// It is a result, not a failure: calling tools surface Error() as text.
type NotFoundError struct {
	Input string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Error: Could not find any post or page named '%s'.", e.Input)
}

// Resolver maps a human-readable name or alias to a stable record id.
type Resolver struct {
	platform Platform
}

// NewResolver constructs a Resolver over the given platform.
func NewResolver(platform Platform) *Resolver {
	return &Resolver{platform: platform}
}

// Resolve applies the lookup order: numeric id, home aliases, blog alias,
// exact title, slug. A miss returns *NotFoundError.
func (r *Resolver) Resolve(ctx context.Context, input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return id, nil
	}

	lower := strings.ToLower(trimmed)
	if _, ok := homeAliases[lower]; ok {
		if id, ok := r.configuredPage(ctx, OptionFrontPageID); ok {
			return id, nil
		}
	}
	if lower == blogAlias {
		if id, ok := r.configuredPage(ctx, OptionPostsPageID); ok {
			return id, nil
		}
	}

	if rec, err := r.platform.FindRecordByTitle(ctx, trimmed); err == nil {
		return rec.ID, nil
	}
	if rec, err := r.platform.FindRecordBySlug(ctx, trimmed); err == nil {
		return rec.ID, nil
	}
	return 0, &NotFoundError{Input: trimmed}
}

func (r *Resolver) configuredPage(ctx context.Context, option string) (int64, bool) {
	v, ok, err := r.platform.GetOption(ctx, option)
	if err != nil || !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
