package graph

import (
	"testing"

	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/renderer/commands"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	manager := resource.NewManager(&resource.ManagerConfig{})
	registry := NewRegistry(manager, config.NewCvarStore())
	registry.SetResolution(1920, 1080)
	return registry
}

func noop(list commands.List, resources *PassResources) {}

func smallTexture() TransientTextureDescription {
	return TransientTextureDescription{
		Width:  64,
		Height: 64,
		Depth:  1,
		Format: resource.FormatRGBA8Unorm,
	}
}

func scheduleNames(g *RenderGraph) []string {
	var names []string
	for _, p := range g.Scheduled() {
		names = append(names, p.name)
	}
	return names
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected a panic", name)
		}
	}()
	fn()
}

func TestBuildOrdersWriterBeforeReader(t *testing.T) {
	registry := newTestRegistry(t)
	g := New(registry)

	producer := g.AddPass("Producer", QueueGraphics)
	target := producer.Create(smallTexture(), "target")
	producer.Bind(noop)

	unrelated := g.AddPass("Unrelated", QueueGraphics)
	unrelated.Create(smallTexture(), "scratch")
	unrelated.Bind(noop)

	consumer := g.AddPass("Consumer", QueueGraphics)
	consumer.Read(target, BindShaderResource)
	consumer.Bind(noop)

	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	names := scheduleNames(g)
	want := []string{"Producer", "Unrelated", "Consumer"}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("schedule = %v, want %v", names, want)
		}
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	declare := func(registry *Registry) *RenderGraph {
		g := New(registry)
		a := g.AddPass("A", QueueCompute)
		shared := a.Create(smallTexture(), "shared")
		a.Bind(noop)

		b := g.AddPass("B", QueueGraphics)
		b.Create(smallTexture(), "b only")
		b.Bind(noop)

		c := g.AddPass("C", QueueGraphics)
		c.Read(shared, BindShaderResource)
		c.Bind(noop)

		if err := g.Build(); err != nil {
			t.Fatalf("Build: %v", err)
		}
		return g
	}

	registry := newTestRegistry(t)
	first := scheduleNames(declare(registry))
	second := scheduleNames(declare(registry))

	if len(first) != len(second) {
		t.Fatalf("schedules differ in length: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("schedules differ: %v vs %v", first, second)
		}
	}
}

func TestDisabledPassExcludedFromSchedule(t *testing.T) {
	registry := newTestRegistry(t)
	g := New(registry)

	enabled := false

	base := g.AddPass("Base", QueueGraphics)
	baseTarget := base.Create(smallTexture(), "base target")
	base.Bind(noop)

	optional := g.AddPass("Optional", QueueCompute, enabled)
	optionalTarget := optional.Create(smallTexture(), "optional target")
	optional.Read(baseTarget, BindShaderResource)
	optional.Write(optionalTarget, BindUnorderedAccess)
	optional.Bind(noop)

	final := g.AddPass("Final", QueueGraphics)
	final.Read(baseTarget, BindShaderResource)
	// The guarded read mirrors how techniques consume optional outputs.
	if enabled {
		final.Read(optionalTarget, BindShaderResource)
	}
	final.Bind(noop)

	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, p := range g.Scheduled() {
		if p.name == "Optional" {
			t.Fatal("disabled pass was scheduled")
		}
	}
	if len(g.Scheduled()) != 2 {
		t.Fatalf("scheduled %d passes, want 2", len(g.Scheduled()))
	}
}

func TestReadOfDisabledOutputPanics(t *testing.T) {
	registry := newTestRegistry(t)
	g := New(registry)

	optional := g.AddPass("Optional", QueueCompute, false)
	optionalTarget := optional.Create(smallTexture(), "optional target")
	optional.Bind(noop)

	final := g.AddPass("Final", QueueGraphics)
	final.Read(optionalTarget, BindShaderResource)
	final.Bind(noop)

	mustPanic(t, "read of a tag with no active writer", func() {
		_ = g.Build()
	})
}

func TestImportedResourceNeedsNoWriter(t *testing.T) {
	registry := newTestRegistry(t)
	lut, err := registry.Manager().CreateTexture(resource.TextureDescription{
		Width: 64, Height: 64, Depth: 1,
		Format:    resource.FormatRGBA16Float,
		BindFlags: resource.BindShaderResource,
	}, "lut")
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}

	for frame := 0; frame < 2; frame++ {
		g := New(registry)
		tag := g.Import(lut)

		p := g.AddPass("Sample LUT", QueueGraphics)
		p.Read(tag, BindShaderResource)
		p.Bind(noop)

		if err := g.Build(); err != nil {
			t.Fatalf("frame %d Build: %v", frame, err)
		}
		if got := registry.Handle(tag); got != lut {
			t.Fatalf("frame %d: imported tag resolved to %s, want %s", frame, got, lut)
		}
	}
}

func TestCrossQueueWaitInserted(t *testing.T) {
	registry := newTestRegistry(t)
	g := New(registry)

	cull := g.AddPass("Cull", QueueCompute)
	args := cull.Create(smallTexture(), "args")
	cull.Bind(noop)

	refine := g.AddPass("Refine", QueueCompute)
	refine.Write(args, BindUnorderedAccess)
	refine.Bind(noop)

	draw := g.AddPass("Draw", QueueGraphics)
	draw.Read(args, BindIndirect)
	draw.Bind(noop)

	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	var drawPass *RenderPass
	for _, p := range g.Scheduled() {
		if p.name == "Draw" {
			drawPass = p
		}
	}
	if drawPass == nil {
		t.Fatal("draw pass not scheduled")
	}
	if len(drawPass.waits) != 1 {
		t.Fatalf("draw pass has %d waits, want 1", len(drawPass.waits))
	}
	w := drawPass.waits[0]
	if w.Queue != QueueCompute || w.Pass != "Refine" {
		t.Fatalf("draw waits on %s/'%s', want Compute/'Refine'", w.Queue, w.Pass)
	}

	// Same-queue dependencies are ordered by submission, not by waits.
	for _, p := range g.Scheduled() {
		if p.name == "Refine" && len(p.waits) != 0 {
			t.Fatalf("same-queue consumer has %d waits, want 0", len(p.waits))
		}
	}
}

func TestDoubleWriteKeepsLastWriterOrder(t *testing.T) {
	registry := newTestRegistry(t)
	g := New(registry)

	first := g.AddPass("First Writer", QueueGraphics)
	target := first.Create(smallTexture(), "contested")
	first.Bind(noop)

	second := g.AddPass("Second Writer", QueueGraphics)
	second.Write(target, BindUnorderedAccess)
	second.Bind(noop)

	reader := g.AddPass("Reader", QueueGraphics)
	reader.Read(target, BindShaderResource)
	reader.Bind(noop)

	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	pos := make(map[string]int)
	for i, p := range g.Scheduled() {
		pos[p.name] = i
	}
	if !(pos["First Writer"] < pos["Second Writer"] && pos["Second Writer"] < pos["Reader"]) {
		t.Fatalf("schedule %v does not preserve writer ordering", scheduleNames(g))
	}
}

func TestStaleTagPanics(t *testing.T) {
	registry := newTestRegistry(t)

	g1 := New(registry)
	p1 := g1.AddPass("P1", QueueGraphics)
	stale := p1.Create(smallTexture(), "stale")
	p1.Bind(noop)
	if err := g1.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	g2 := New(registry)
	p2 := g2.AddPass("P2", QueueGraphics)
	p2.Read(stale, BindShaderResource)
	p2.Bind(noop)

	mustPanic(t, "tag reused across builds", func() {
		_ = g2.Build()
	})
}

func TestInvalidTagPanics(t *testing.T) {
	registry := newTestRegistry(t)
	g := New(registry)
	p := g.AddPass("P", QueueGraphics)

	mustPanic(t, "read of the invalid sentinel", func() {
		p.Read(ResourceTag{}, BindShaderResource)
	})
}

func TestReadWriteSameResourcePanics(t *testing.T) {
	registry := newTestRegistry(t)
	g := New(registry)

	producer := g.AddPass("Producer", QueueGraphics)
	target := producer.Create(smallTexture(), "target")
	producer.Bind(noop)

	broken := g.AddPass("Broken", QueueCompute)
	broken.Read(target, BindShaderResource)
	broken.Write(target, BindUnorderedAccess)
	broken.Bind(noop)

	mustPanic(t, "read and write of one resource in one pass", func() {
		_ = g.Build()
	})
}

func TestPassWithoutCallbackPanics(t *testing.T) {
	registry := newTestRegistry(t)
	g := New(registry)
	g.AddPass("No Callback", QueueGraphics)

	mustPanic(t, "pass without a callback", func() {
		_ = g.Build()
	})
}

func TestBuildTwicePanics(t *testing.T) {
	registry := newTestRegistry(t)
	g := New(registry)
	p := g.AddPass("P", QueueGraphics)
	p.Create(smallTexture(), "t")
	p.Bind(noop)

	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	mustPanic(t, "second build", func() {
		_ = g.Build()
	})
}

func TestDeclareAfterBuildPanics(t *testing.T) {
	registry := newTestRegistry(t)
	g := New(registry)
	p := g.AddPass("P", QueueGraphics)
	p.Create(smallTexture(), "t")
	p.Bind(noop)

	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	mustPanic(t, "pass added after build", func() {
		g.AddPass("Late", QueueGraphics)
	})
}
