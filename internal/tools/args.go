package tools

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Args is the argument map carried by a provider function call. Validation
// beyond field presence is the concern of each handler.
type Args map[string]any

// String returns the named argument as a trimmed string, or "" when absent.
func (a Args) String(name string) string {
	v, ok := a[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// Int returns the named argument as an int, or fallback when absent or
// unparseable.
func (a Args) Int(name string, fallback int) int {
	v, ok := a[name]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return i
		}
	}
	return fallback
}

// Has reports whether the named argument is present and non-empty.
func (a Args) Has(name string) bool {
	v, ok := a[name]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	return true
}
