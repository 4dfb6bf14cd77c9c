package techniques

import (
	"testing"

	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/renderer/commands"
	"github.com/spaghettifunk/aurora/engine/renderer/graph"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

func runBloomFrame(t *testing.T, cvars *config.CvarStore, bloom *Bloom) *graph.RenderGraph {
	t.Helper()
	manager := resource.NewManager(nil)
	registry := graph.NewRegistry(manager, cvars)
	registry.SetResolution(1920, 1080)

	g := graph.New(registry)

	scene := g.AddPass("Scene Stub", graph.QueueGraphics)
	hdr := scene.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: 1,
		Format:          resource.FormatRGBA16Float,
	}, "hdr")
	scene.Output(hdr, graph.OutputRenderTarget, graph.LoadClear)
	scene.Bind(func(list commands.List, resources *graph.PassResources) {})

	bloom.Render(g, hdr)

	toneMap := g.AddPass("Tone Map Stub", graph.QueueGraphics)
	toneMap.Read(hdr, graph.BindShaderResource)
	toneMap.Bind(func(list commands.List, resources *graph.PassResources) {})

	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func passIndex(g *graph.RenderGraph, name string) int {
	for i, p := range g.Scheduled() {
		if p.Name() == name {
			return i
		}
	}
	return -1
}

func TestBloomRunsBetweenSceneAndToneMap(t *testing.T) {
	cvars := config.NewCvarStore()
	g := runBloomFrame(t, cvars, NewBloom(cvars))

	scene := passIndex(g, "Scene Stub")
	downsample := passIndex(g, "Bloom Downsample Pass")
	apply := passIndex(g, "Bloom Apply Pass")
	toneMap := passIndex(g, "Tone Map Stub")
	if downsample < 0 || apply < 0 {
		t.Fatal("bloom passes not scheduled")
	}
	if !(scene < downsample && downsample < apply && apply < toneMap) {
		t.Fatalf("bloom scheduled out of order: scene=%d downsample=%d apply=%d toneMap=%d",
			scene, downsample, apply, toneMap)
	}
}

func TestBloomDisabledByCvar(t *testing.T) {
	cvars := config.NewCvarStore()
	bloom := NewBloom(cvars)
	if err := cvars.Set("bloom.enabled", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	g := runBloomFrame(t, cvars, bloom)
	if passIndex(g, "Bloom Downsample Pass") >= 0 || passIndex(g, "Bloom Apply Pass") >= 0 {
		t.Fatal("disabled bloom still scheduled passes")
	}
	if !(passIndex(g, "Scene Stub") < passIndex(g, "Tone Map Stub")) {
		t.Fatal("tone map lost its scene dependency")
	}
}
