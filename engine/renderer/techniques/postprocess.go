package techniques

import (
	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/renderer/commands"
	"github.com/spaghettifunk/aurora/engine/renderer/graph"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

// PostProcess collapses the HDR scene into the display-ready LDR image.
type PostProcess struct {
	cvars *config.CvarStore

	// Exposure scales scene luminance ahead of the tone curve.
	Exposure float32
}

func NewPostProcess(cvars *config.CvarStore) *PostProcess {
	cvars.RegisterInt("postprocess.toneMapping", "Selects the tone mapping operator. 0=clamp, 1=filmic", 1)

	return &PostProcess{
		cvars:    cvars,
		Exposure: 1,
	}
}

// Render tone maps the HDR target into a fresh full-resolution LDR target
// and returns its tag.
func (p *PostProcess) Render(g *graph.RenderGraph, cameraBuffer, hdrTarget graph.ResourceTag) graph.ResourceTag {
	toneMapPass := g.AddPass("Tone Map Pass", graph.QueueGraphics)
	ldrTarget := toneMapPass.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: 1,
		Format:          resource.FormatRGBA8UnormSRGB,
	}, "Tone mapped LDR target")
	toneMapPass.Read(cameraBuffer, graph.BindShaderResource)
	toneMapPass.Read(hdrTarget, graph.BindShaderResource)
	toneMapPass.Output(ldrTarget, graph.OutputRenderTarget, graph.LoadClear)
	toneMapPass.Bind(func(list commands.List, resources *graph.PassResources) {
		pipeline := "PostProcess/ToneMap"
		if p.cvars.Int("postprocess.toneMapping") < 1 {
			pipeline = "PostProcess/ToneMap+TONEMAP_CLAMP"
		}
		list.BindPipeline(pipeline)
		list.BindConstants("bindData", struct {
			CameraBuffer uint32
			HDRTexture   uint32
			Exposure     float32
		}{
			CameraBuffer: resources.Get(cameraBuffer),
			HDRTexture:   resources.Get(hdrTarget),
			Exposure:     p.Exposure,
		})
		list.DrawFullscreenQuad()
	})

	return ldrTarget
}
