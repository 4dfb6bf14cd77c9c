package graph

import (
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

// History carries one stream of previous-frame output across frame
// boundaries. Each temporal technique owns its histories: it imports the
// previous frame's resource at declaration time (tolerating "no history
// yet" on the first frame), and captures this frame's fresh output so the
// next build can import it. Exactly one generation is retained.
type History struct {
	handle resource.Handle
}

func NewHistory() *History {
	return &History{}
}

// Valid reports whether a previous frame's output exists. False on the
// first frame; consumers skip their temporal path and bind the sentinel.
func (h *History) Valid() bool {
	return h.handle.Valid()
}

// Handle returns the pinned backing resource of the previous frame.
func (h *History) Handle() resource.Handle {
	return h.handle
}

// Import brings the previous frame's output into this frame's graph.
// Returns the invalid sentinel tag and false when no history exists yet.
func (h *History) Import(g *RenderGraph) (ResourceTag, bool) {
	if !h.Valid() {
		return ResourceTag{}, false
	}
	return g.Import(h.handle), true
}

// Capture rebinds the history to this frame's output tag. The swap happens
// during Build, once the tag's backing resource is resolved; the previous
// generation returns to the transient pool.
func (h *History) Capture(g *RenderGraph, tag ResourceTag) {
	g.captures = append(g.captures, historyCapture{history: h, tag: tag})
}

// Release drops the pinned backing. Called at technique teardown and on
// resolution changes, after which the next frame starts without history.
func (h *History) Release(r *Registry) {
	if !h.Valid() {
		return
	}
	r.unpin(h.handle)
	h.handle = resource.Handle{}
}
