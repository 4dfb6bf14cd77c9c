package techniques

import (
	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/math"
	"github.com/spaghettifunk/aurora/engine/renderer/commands"
	"github.com/spaghettifunk/aurora/engine/renderer/graph"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

// Occlusion builds a hierarchical depth pyramid from this frame's depth
// buffer and retains it across the frame boundary, so the next frame's mesh
// culling can test bounding volumes against last frame's occluders.
type Occlusion struct {
	cvars *config.CvarStore

	history *graph.History
}

func NewOcclusion(cvars *config.CvarStore) *Occlusion {
	cvars.RegisterInt("occlusion.hiZLevels", "Controls the mip chain length of the hierarchical depth pyramid", 8)

	return &Occlusion{
		cvars:   cvars,
		history: graph.NewHistory(),
	}
}

// LastFrameHiZ imports the previous frame's pyramid into this frame's
// graph. Returns false on the first frame and after resolution changes;
// culling then falls back to accepting everything.
func (o *Occlusion) LastFrameHiZ(g *graph.RenderGraph) (graph.ResourceTag, bool) {
	return o.history.Import(g)
}

// Render reduces the depth buffer into the pyramid and captures it for the
// next frame.
func (o *Occlusion) Render(g *graph.RenderGraph, cameraBuffer, depthStencil graph.ResourceTag) graph.ResourceTag {
	hiZPass := g.AddPass("Occlusion Hi-Z Pass", graph.QueueCompute)
	pyramid := hiZPass.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: 1,
		Format:          resource.FormatR32Float,
		MipMapping:      true,
	}, "Hi-Z depth pyramid")
	hiZPass.Read(cameraBuffer, graph.BindShaderResource)
	hiZPass.Read(depthStencil, graph.BindShaderResource)
	hiZPass.Write(pyramid, graph.BindUnorderedAccess)
	hiZPass.Bind(func(list commands.List, resources *graph.PassResources) {
		output := resources.Texture(pyramid)
		levels := math.Clamp(uint32(o.cvars.Int("occlusion.hiZLevels")), 1, output.Description.MipLevels())

		list.BindPipeline("Occlusion/HiZReduce")
		list.BindConstants("bindData", struct {
			DepthTexture   uint32
			PyramidTexture uint32
			Levels         uint32
		}{
			DepthTexture:   resources.Get(depthStencil),
			PyramidTexture: resources.Get(pyramid),
			Levels:         levels,
		})
		// One dispatch per level, each consuming the one above.
		w, h := output.Description.Width, output.Description.Height
		for level := uint32(0); level < levels; level++ {
			list.Dispatch(math.DispatchGroups(w, 8), math.DispatchGroups(h, 8), 1)
			list.UAVBarrier(output.Handle)
			list.FlushBarriers()
			w = math.Max(w/2, 1)
			h = math.Max(h/2, 1)
		}
	})

	o.history.Capture(g, pyramid)
	return pyramid
}

// DiscardHistory drops the retained pyramid. Called on resolution changes,
// since the pyramid is sized to the old resolution.
func (o *Occlusion) DiscardHistory(registry *graph.Registry) {
	o.history.Release(registry)
}

// Destroy releases the retained pyramid.
func (o *Occlusion) Destroy(registry *graph.Registry) {
	o.DiscardHistory(registry)
}
