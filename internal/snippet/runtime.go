package snippet

import (
	"context"
	"sort"
	"strings"

	"steward.run/internal/obs"
)

// Runtime replays active snippets at host lifecycle points. It loads once per
// process lifecycle; snippet mutations become visible on the next load, never
// retroactively for callbacks already registered.
type Runtime struct {
	engine *Engine

	// Populated by Load, read-only afterwards.
	byPoint map[string][]Snippet
}

// NewRuntime creates a runtime using the given sandbox engine.
func NewRuntime(engine *Engine) *Runtime {
	if engine == nil {
		engine = NewEngine(0)
	}
	return &Runtime{engine: engine, byPoint: make(map[string][]Snippet)}
}

// Load reads all active snippets and registers them per execution point,
// ordered by ascending priority with insertion order breaking ties.
func (r *Runtime) Load(ctx context.Context, store Store) error {
	active, err := store.ListActive(ctx)
	if err != nil {
		return err
	}

	byPoint := make(map[string][]Snippet)
	for _, sn := range active {
		byPoint[sn.Point] = append(byPoint[sn.Point], sn)
	}
	for point := range byPoint {
		list := byPoint[point]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority < list[j].Priority
		})
		byPoint[point] = list
	}
	r.byPoint = byPoint
	return nil
}

// Replay fires every callback registered at the point and returns the
// combined emitted output. A failing server-logic snippet is logged and
// skipped; it cannot blank the page or abort the host request.
func (r *Runtime) Replay(ctx context.Context, point string) string {
	var out strings.Builder
	for _, sn := range r.byPoint[point] {
		switch sn.Kind {
		case KindStyle:
			out.WriteString("\n<style>")
			out.WriteString(sn.Code)
			out.WriteString("</style>\n")
		case KindScript:
			out.WriteString("\n<script>")
			out.WriteString(sn.Code)
			out.WriteString("</script>\n")
		case KindLogic:
			emitted, err := r.engine.Run(ctx, sn.Code)
			if err != nil {
				obs.LogEvent(map[string]any{
					"type":    "snippet",
					"event":   "snippet.eval_failed",
					"snippet": sn.Name,
					"point":   point,
					"error":   err.Error(),
				})
				continue
			}
			out.WriteString(emitted)
		}
	}
	return out.String()
}

// Registered returns the replay order at a point; used by tests and the
// readiness surface.
func (r *Runtime) Registered(point string) []string {
	names := make([]string, 0, len(r.byPoint[point]))
	for _, sn := range r.byPoint[point] {
		names = append(names, sn.Name)
	}
	return names
}
