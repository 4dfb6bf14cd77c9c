package graph

import (
	"testing"

	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

// runHistoryFrame declares one producer/consumer frame around a history
// stream and returns the resolved handle of this frame's fresh output.
func runHistoryFrame(t *testing.T, registry *Registry, history *History) resource.Handle {
	t.Helper()
	g := New(registry)

	old, hasOld := history.Import(g)

	p := g.AddPass("Temporal", QueueCompute)
	fresh := p.Create(smallTexture(), "temporal output")
	if hasOld {
		p.Read(old, BindShaderResource)
	}
	p.Bind(noop)

	history.Capture(g, fresh)
	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return registry.Handle(fresh)
}

func TestHistoryStartsInvalid(t *testing.T) {
	history := NewHistory()
	if history.Valid() {
		t.Fatal("fresh history reports a previous frame")
	}

	registry := newTestRegistry(t)
	g := New(registry)
	tag, ok := history.Import(g)
	if ok {
		t.Fatal("fresh history imported successfully")
	}
	if tag.Valid() {
		t.Fatal("fresh history import returned a valid tag")
	}
}

func TestHistoryRoundTripAcrossFrames(t *testing.T) {
	registry := newTestRegistry(t)
	history := NewHistory()

	first := runHistoryFrame(t, registry, history)
	if !history.Valid() {
		t.Fatal("history invalid after first capture")
	}
	if history.Handle() != first {
		t.Fatalf("history holds %s, want the captured %s", history.Handle(), first)
	}

	// The second frame must read the first frame's backing while producing
	// into a different one; the pin blocks recycling.
	g := New(registry)
	old, ok := history.Import(g)
	if !ok {
		t.Fatal("second frame found no history")
	}
	p := g.AddPass("Temporal", QueueCompute)
	fresh := p.Create(smallTexture(), "temporal output")
	p.Read(old, BindShaderResource)
	p.Bind(noop)
	history.Capture(g, fresh)
	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if registry.Handle(old) != first {
		t.Fatalf("imported history resolved to %s, want %s", registry.Handle(old), first)
	}
	second := registry.Handle(fresh)
	if second == first {
		t.Fatal("fresh output aliased the pinned history backing")
	}
	if history.Handle() != second {
		t.Fatalf("history holds %s after swap, want %s", history.Handle(), second)
	}
}

func TestHistoryRetainsExactlyOneGeneration(t *testing.T) {
	registry := newTestRegistry(t)
	history := NewHistory()

	first := runHistoryFrame(t, registry, history)
	_ = runHistoryFrame(t, registry, history)

	// Only one generation stays pinned, so the first backing is free again
	// and a matching transient picks it up.
	g := New(registry)
	p := g.AddPass("Other", QueueCompute)
	tag := p.Create(smallTexture(), "other transient")
	p.Bind(noop)
	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if registry.Handle(tag) != first {
		t.Fatalf("released generation %s was not recycled, got %s", first, registry.Handle(tag))
	}

	info := registry.Manager().QueryMemoryInfo()
	if info.TextureCount != 2 {
		t.Fatalf("%d textures alive, want 2 (one pinned, one pooled)", info.TextureCount)
	}
}

func TestHistoryReleaseDropsPin(t *testing.T) {
	registry := newTestRegistry(t)
	history := NewHistory()

	backing := runHistoryFrame(t, registry, history)
	history.Release(registry)

	if history.Valid() {
		t.Fatal("history valid after release")
	}

	// The backing is poolable again.
	g := New(registry)
	p := g.AddPass("P", QueueCompute)
	tag := p.Create(smallTexture(), "reuse")
	p.Bind(noop)
	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if registry.Handle(tag) != backing {
		t.Fatalf("released backing was not recycled")
	}
}
