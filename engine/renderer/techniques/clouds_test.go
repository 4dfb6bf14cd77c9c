package techniques

import (
	"reflect"
	"testing"

	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/renderer/commands"
	"github.com/spaghettifunk/aurora/engine/renderer/graph"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

type cloudsHarness struct {
	cvars    *config.CvarStore
	manager  *resource.Manager
	registry *graph.Registry
	clouds   *Clouds

	camera     resource.Handle
	irradiance resource.Handle
}

func newCloudsHarness(t *testing.T) *cloudsHarness {
	t.Helper()
	manager := resource.NewManager(nil)
	cvars := config.NewCvarStore()
	registry := graph.NewRegistry(manager, cvars)
	registry.SetResolution(1920, 1080)

	clouds, err := NewClouds(manager, cvars)
	if err != nil {
		t.Fatalf("NewClouds: %v", err)
	}

	camera, err := manager.CreateBuffer(resource.BufferDescription{Size: 512}, "camera")
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	irradiance, err := manager.CreateTexture(resource.TextureDescription{
		Width: 64, Height: 16, Depth: 1,
		Format:    resource.FormatRGBA16Float,
		BindFlags: resource.BindShaderResource,
	}, "irradiance")
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}

	return &cloudsHarness{
		cvars:      cvars,
		manager:    manager,
		registry:   registry,
		clouds:     clouds,
		camera:     camera,
		irradiance: irradiance,
	}
}

// renderFrame declares a minimal frame around the cloud passes: a depth
// prepass stub plus the technique itself.
func (h *cloudsHarness) renderFrame(t *testing.T, frame uint64) (*graph.RenderGraph, CloudResources) {
	t.Helper()
	g := graph.New(h.registry)

	camera := g.Import(h.camera)
	irradiance := g.Import(h.irradiance)

	prepass := g.AddPass("Prepass", graph.QueueGraphics)
	depth := prepass.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: 1,
		Format:          resource.FormatD24S8,
	}, "depth")
	prepass.Output(depth, graph.OutputDepthStencil, graph.LoadClear)
	prepass.Bind(func(list commands.List, resources *graph.PassResources) {})

	res := h.clouds.Render(g, FrameContext{
		Frame:        frame,
		Time:         float64(frame) / 60,
		OutputWidth:  1920,
		OutputHeight: 1080,
	}, camera, depth, irradiance)

	if err := g.Build(); err != nil {
		t.Fatalf("frame %d Build: %v", frame, err)
	}
	return g, res
}

func hasPass(g *graph.RenderGraph, name string) bool {
	for _, p := range g.Scheduled() {
		if p.Name() == name {
			return true
		}
	}
	return false
}

func TestCloudsFirstFrameHasNoHistory(t *testing.T) {
	h := newCloudsHarness(t)

	if h.clouds.LastFrameScattering().Valid() {
		t.Fatal("fresh clouds report scattering history")
	}

	g, res := h.renderFrame(t, 0)

	// The upscale output is full resolution even though the march runs at
	// the render scale.
	upscaled, err := h.registry.Texture(res.ScatteringTransmittance)
	if err != nil {
		t.Fatalf("Texture: %v", err)
	}
	if upscaled.Description.Width != 1920 || upscaled.Description.Height != 1080 {
		t.Fatalf("upscaled output is %dx%d", upscaled.Description.Width, upscaled.Description.Height)
	}

	if !hasPass(g, "Clouds Noise Pass") {
		t.Fatal("first frame skipped noise generation")
	}
	if !h.clouds.LastFrameScattering().Valid() {
		t.Fatal("history not captured after the first frame")
	}
}

func TestCloudsHistoryFlowsAcrossFrames(t *testing.T) {
	h := newCloudsHarness(t)

	h.renderFrame(t, 0)
	first := h.clouds.LastFrameScattering().Handle()

	h.renderFrame(t, 1)
	second := h.clouds.LastFrameScattering().Handle()

	if first == second {
		t.Fatal("history backing did not advance between frames")
	}
	if !second.Valid() {
		t.Fatal("history lost after second frame")
	}
}

func TestCloudsNoisePassRunsOnlyWhenDirty(t *testing.T) {
	h := newCloudsHarness(t)

	g, _ := h.renderFrame(t, 0)
	if !hasPass(g, "Clouds Noise Pass") {
		t.Fatal("dirty frame skipped the noise pass")
	}

	g, _ = h.renderFrame(t, 1)
	if hasPass(g, "Clouds Noise Pass") {
		t.Fatal("clean frame regenerated noise")
	}

	h.clouds.MarkDirty()
	g, _ = h.renderFrame(t, 2)
	if !hasPass(g, "Clouds Noise Pass") {
		t.Fatal("MarkDirty did not schedule the noise pass")
	}
}

func TestCloudsVisibilityDisabledByCvar(t *testing.T) {
	h := newCloudsHarness(t)
	if err := h.cvars.Set("clouds.lightShafts", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	g, res := h.renderFrame(t, 0)

	if hasPass(g, "Clouds Sky Visibility Pass") {
		t.Fatal("visibility pass scheduled while disabled")
	}
	if res.Visibility.Valid() {
		t.Fatal("disabled visibility returned a valid tag")
	}

	// Re-enabling restores the pass and its output.
	if err := h.cvars.Set("clouds.lightShafts", 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	g, res = h.renderFrame(t, 1)
	if !hasPass(g, "Clouds Sky Visibility Pass") {
		t.Fatal("visibility pass missing while enabled")
	}
	if !res.Visibility.Valid() {
		t.Fatal("enabled visibility returned the sentinel")
	}
}

func TestCloudsRenderScaleCvar(t *testing.T) {
	h := newCloudsHarness(t)
	if err := h.cvars.Set("clouds.renderScale", 0.5); err != nil {
		t.Fatalf("Set: %v", err)
	}

	g, _ := h.renderFrame(t, 0)

	target := graph.NewCaptureTarget()
	if err := graph.NewExecutor(target, nil).Execute(g); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	sub := target.Find("Clouds Pass")
	if sub == nil {
		t.Fatal("clouds pass not submitted")
	}
	found := false
	for _, cmd := range sub.List.Commands {
		if cmd.Op != commands.OpBindConstants {
			continue
		}
		v := reflect.ValueOf(cmd.Constants)
		width := v.FieldByName("OutputWidth")
		height := v.FieldByName("OutputHeight")
		if !width.IsValid() || !height.IsValid() {
			continue
		}
		found = true
		if width.Uint() != 960 || height.Uint() != 540 {
			t.Fatalf("ray march target is %dx%d, want 960x540", width.Uint(), height.Uint())
		}
	}
	if !found {
		t.Fatal("clouds pass recorded no sized constants")
	}
}
