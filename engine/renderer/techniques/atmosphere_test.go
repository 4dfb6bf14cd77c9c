package techniques

import (
	"testing"

	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/renderer/commands"
	"github.com/spaghettifunk/aurora/engine/renderer/graph"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

func runAtmosphereFrame(t *testing.T, registry *graph.Registry, atmosphere *Atmosphere, camera resource.Handle) *graph.RenderGraph {
	t.Helper()
	g := graph.New(registry)

	cameraTag := g.Import(camera)
	luts := atmosphere.Precompute(g)

	prepass := g.AddPass("Prepass", graph.QueueGraphics)
	depth := prepass.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: 1,
		Format:          resource.FormatD24S8,
	}, "depth")
	prepass.Output(depth, graph.OutputDepthStencil, graph.LoadClear)
	prepass.Bind(func(list commands.List, resources *graph.PassResources) {})

	// Stand-ins for the forward and cloud outputs the sky pass composes.
	scene := g.AddPass("Scene Stub", graph.QueueGraphics)
	hdr := scene.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: 1,
		Format:          resource.FormatRGBA16Float,
	}, "hdr")
	cloudScattering := scene.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: 1,
		Format:          resource.FormatRGBA16Float,
	}, "cloud scattering")
	cloudDepth := scene.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: 1,
		Format:          resource.FormatR32Float,
	}, "cloud depth")
	scene.Output(hdr, graph.OutputRenderTarget, graph.LoadClear)
	scene.Write(cloudScattering, graph.BindUnorderedAccess)
	scene.Write(cloudDepth, graph.BindUnorderedAccess)
	scene.Bind(func(list commands.List, resources *graph.PassResources) {})

	atmosphere.Render(g, luts, cameraTag, depth, hdr, CloudResources{
		ScatteringTransmittance: cloudScattering,
		Depth:                   cloudDepth,
	})

	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestAtmospherePrecomputeRunsOnlyWhenDirty(t *testing.T) {
	manager := resource.NewManager(nil)
	cvars := config.NewCvarStore()
	registry := graph.NewRegistry(manager, cvars)
	registry.SetResolution(1920, 1080)

	atmosphere, err := NewAtmosphere(manager, cvars)
	if err != nil {
		t.Fatalf("NewAtmosphere: %v", err)
	}
	camera, err := manager.CreateBuffer(resource.BufferDescription{Size: 512}, "camera")
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}

	g := runAtmosphereFrame(t, registry, atmosphere, camera)
	if !hasPass(g, "Atmosphere LUT Pass") {
		t.Fatal("first frame skipped the LUT precompute")
	}

	// Clean frames import the tables with no writer pass at all; the sky
	// pass reads them as-is.
	g = runAtmosphereFrame(t, registry, atmosphere, camera)
	if hasPass(g, "Atmosphere LUT Pass") {
		t.Fatal("clean frame recomputed the LUTs")
	}
	if !hasPass(g, "Atmosphere Sky Pass") {
		t.Fatal("sky pass missing")
	}

	atmosphere.MarkDirty()
	g = runAtmosphereFrame(t, registry, atmosphere, camera)
	if !hasPass(g, "Atmosphere LUT Pass") {
		t.Fatal("MarkDirty did not schedule the precompute")
	}
}
