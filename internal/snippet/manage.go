package snippet

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"steward.run/internal/host"
)

// Management actions accepted by Manage.
const (
	ActionAdd        = "add"
	ActionUpdate     = "update"
	ActionActivate   = "activate"
	ActionDeactivate = "deactivate"
	ActionDelete     = "delete"
)

// Submitted code sometimes arrives already wrapped in script/style tags; the
// runtime adds its own wrapping, so outer tags are stripped on ingest to
// prevent double-wrapping.
var wrappingTags = regexp.MustCompile(`(?i)^<script[^>]*>|</script>\s*$|^<style[^>]*>|</style>\s*$`)

// ManageRequest is the parsed input of the snippet management tool.
type ManageRequest struct {
	Action   string
	Name     string
	Code     string
	Kind     string
	Point    string
	Priority int
}

// Manage applies one management action and returns a human-readable
// confirmation, or a descriptive failure when the named snippet is missing.
func Manage(ctx context.Context, store Store, req ManageRequest) (string, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", fmt.Errorf("snippet name is required")
	}

	switch req.Action {
	case ActionDelete:
		if err := store.Delete(ctx, name); err != nil {
			return "", fmt.Errorf("error deleting '%s': snippet does not exist", name)
		}
		return fmt.Sprintf("Deleted '%s'.", name), nil

	case ActionActivate, ActionDeactivate:
		status := StatusActive
		if req.Action == ActionDeactivate {
			status = StatusInactive
		}
		if err := store.SetStatus(ctx, name, status); err != nil {
			return "", fmt.Errorf("error updating '%s': snippet does not exist", name)
		}
		return fmt.Sprintf("Snippet '%s' is now %s.", name, status), nil

	case ActionAdd, ActionUpdate:
		kind := req.Kind
		if kind == "" {
			kind = KindLogic
		}
		point := req.Point
		if point == "" {
			point = host.PointHead
		}
		sn := &Snippet{
			Name:     name,
			Code:     StripWrapping(req.Code),
			Kind:     kind,
			Point:    point,
			Status:   StatusActive,
			Priority: req.Priority,
		}
		created, err := store.Upsert(ctx, sn)
		if err != nil {
			return "", err
		}
		if created {
			return fmt.Sprintf("Created '%s'.", name), nil
		}
		return fmt.Sprintf("Updated '%s'.", name), nil

	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, req.Action)
	}
}

// StripWrapping removes accidental outer script/style tags from code.
func StripWrapping(code string) string {
	return wrappingTags.ReplaceAllString(strings.TrimSpace(code), "")
}
