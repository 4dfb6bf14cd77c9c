package techniques

import (
	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/math"
	"github.com/spaghettifunk/aurora/engine/renderer/commands"
	"github.com/spaghettifunk/aurora/engine/renderer/graph"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

// Bloom bleeds bright scene luminance into neighbouring pixels: the HDR
// target is reduced into a half-resolution mip chain, which a final pass
// blends back onto the target ahead of tone mapping.
type Bloom struct {
	cvars *config.CvarStore

	// Intensity scales the contribution blended onto the scene.
	Intensity float32
	// InternalBlend weighs neighbouring mips during the chain walk.
	InternalBlend float32
}

func NewBloom(cvars *config.CvarStore) *Bloom {
	cvars.RegisterInt("bloom.enabled", "Controls the bloom effect over the HDR scene", 1)
	cvars.RegisterInt("bloom.passes", "Controls the bloom mip chain length. Longer chains spread highlights wider", 5)

	return &Bloom{
		cvars:         cvars,
		Intensity:     0.04,
		InternalBlend: 0.65,
	}
}

// Render declares the bloom passes over the HDR target. A no-op while the
// effect is disabled.
func (b *Bloom) Render(g *graph.RenderGraph, hdrTarget graph.ResourceTag) {
	if b.cvars.Int("bloom.enabled") < 1 {
		return
	}

	downsamplePass := g.AddPass("Bloom Downsample Pass", graph.QueueCompute)
	chain := downsamplePass.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: 0.5,
		Format:          resource.FormatRGBA16Float,
		MipMapping:      true,
	}, "Bloom chain")
	downsamplePass.Read(hdrTarget, graph.BindShaderResource)
	downsamplePass.Write(chain, graph.BindUnorderedAccess)
	downsamplePass.Bind(func(list commands.List, resources *graph.PassResources) {
		output := resources.Texture(chain)
		levels := math.Clamp(uint32(b.cvars.Int("bloom.passes")), 1, output.Description.MipLevels())

		list.BindPipeline("Bloom/Downsample")
		list.BindConstants("bindData", struct {
			HDRTexture    uint32
			ChainTexture  uint32
			Levels        uint32
			InternalBlend float32
		}{
			HDRTexture:    resources.Get(hdrTarget),
			ChainTexture:  resources.Get(chain),
			Levels:        levels,
			InternalBlend: b.InternalBlend,
		})
		// Each level filters the one above it.
		w, h := output.Description.Width, output.Description.Height
		for level := uint32(0); level < levels; level++ {
			list.Dispatch(math.DispatchGroups(w, 8), math.DispatchGroups(h, 8), 1)
			list.UAVBarrier(output.Handle)
			list.FlushBarriers()
			w = math.Max(w/2, 1)
			h = math.Max(h/2, 1)
		}
	})

	applyPass := g.AddPass("Bloom Apply Pass", graph.QueueGraphics)
	applyPass.Read(chain, graph.BindShaderResource)
	applyPass.Output(hdrTarget, graph.OutputRenderTarget, graph.LoadPreserve)
	applyPass.Bind(func(list commands.List, resources *graph.PassResources) {
		list.BindPipeline("Bloom/Apply")
		list.BindConstants("bindData", struct {
			ChainTexture uint32
			Intensity    float32
		}{
			ChainTexture: resources.Get(chain),
			Intensity:    b.Intensity,
		})
		list.DrawFullscreenQuad()
	})
}
