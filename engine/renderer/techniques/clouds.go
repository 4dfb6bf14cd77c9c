package techniques

import (
	"fmt"

	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/math"
	"github.com/spaghettifunk/aurora/engine/renderer/commands"
	"github.com/spaghettifunk/aurora/engine/renderer/graph"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

const weatherSize = 512

// Clouds renders the volumetric cloud layer: a procedural weather map and
// shape noise feed a scaled-resolution ray march, which a temporal upscale
// reprojects to full resolution using the previous frame's results.
type Clouds struct {
	manager *resource.Manager
	cvars   *config.CvarStore

	weather          resource.Handle
	baseShapeNoise   resource.Handle
	detailShapeNoise resource.Handle

	historyScattering *graph.History
	historyDepth      *graph.History
	historyVisibility *graph.History

	// Weather simulation parameters, editor-tunable.
	Coverage      float32
	Precipitation float32
	WindX, WindY  float32

	dirty bool
}

// CloudResources are the tags the rest of the frame consumes. Visibility
// is the invalid sentinel when the sky visibility pass is disabled.
type CloudResources struct {
	ScatteringTransmittance graph.ResourceTag
	Depth                   graph.ResourceTag
	Visibility              graph.ResourceTag
	Weather                 graph.ResourceTag
}

func NewClouds(manager *resource.Manager, cvars *config.CvarStore) (*Clouds, error) {
	cvars.RegisterInt("clouds.rayMarchQuality", "Controls the ray march quality of the clouds. Increasing quality degrades performance. 0=lowDetail, 1=default, 2=groundTruth", 1)
	cvars.RegisterFloat("clouds.renderScale", "Controls the render scale of the volumetric clouds", 0.25)
	cvars.RegisterInt("clouds.lightShafts", "Controls the cloud sky visibility map used by light shafts", 1)

	c := &Clouds{
		manager:           manager,
		cvars:             cvars,
		historyScattering: graph.NewHistory(),
		historyDepth:      graph.NewHistory(),
		historyVisibility: graph.NewHistory(),
		Coverage:          0.5,
		WindX:             1,
		dirty:             true,
	}

	var err error
	c.weather, err = manager.CreateTexture(resource.TextureDescription{
		Width:     weatherSize,
		Height:    weatherSize,
		Depth:     1,
		Format:    resource.FormatRG11B10Float,
		BindFlags: resource.BindShaderResource | resource.BindUnorderedAccess,
	}, "Clouds weather")
	if err != nil {
		return nil, fmt.Errorf("failed to create clouds weather map: %w", err)
	}

	c.baseShapeNoise, err = manager.CreateTexture(resource.TextureDescription{
		Width:      128,
		Height:     128,
		Depth:      128,
		Format:     resource.FormatR8Unorm,
		MipMapping: true,
		BindFlags:  resource.BindShaderResource | resource.BindUnorderedAccess,
	}, "Clouds base shape noise")
	if err != nil {
		return nil, fmt.Errorf("failed to create clouds base shape noise: %w", err)
	}

	c.detailShapeNoise, err = manager.CreateTexture(resource.TextureDescription{
		Width:     32,
		Height:    32,
		Depth:     32,
		Format:    resource.FormatR8Unorm,
		BindFlags: resource.BindShaderResource | resource.BindUnorderedAccess,
	}, "Clouds detail shape noise")
	if err != nil {
		return nil, fmt.Errorf("failed to create clouds detail shape noise: %w", err)
	}

	return c, nil
}

// LastFrameScattering exposes the temporal history for debug views.
func (c *Clouds) LastFrameScattering() *graph.History {
	return c.historyScattering
}

// MarkDirty forces shape noise regeneration on the next frame.
func (c *Clouds) MarkDirty() {
	c.dirty = true
}

func (c *Clouds) Render(g *graph.RenderGraph, frame FrameContext, cameraBuffer, depthStencil, atmosphereIrradiance graph.ResourceTag) CloudResources {
	weatherTag := g.Import(c.weather)
	baseShapeTag := g.Import(c.baseShapeNoise)
	detailShapeTag := g.Import(c.detailShapeNoise)

	if c.dirty {
		noisePass := g.AddPass("Clouds Noise Pass", graph.QueueCompute)
		noisePass.Write(baseShapeTag, graph.BindUnorderedAccess)
		noisePass.Write(detailShapeTag, graph.BindUnorderedAccess)
		noisePass.Bind(func(list commands.List, resources *graph.PassResources) {
			list.BindPipeline("Clouds/Shapes/BaseShapeMain")
			list.BindConstants("bindData", struct{ OutputTexture uint32 }{resources.Get(baseShapeTag)})
			list.Dispatch(1, 1, 1)

			list.BindPipeline("Clouds/Shapes/DetailShapeMain")
			list.BindConstants("bindData", struct{ OutputTexture uint32 }{resources.Get(detailShapeTag)})
			list.Dispatch(1, 1, 1)

			list.UAVBarrier(c.baseShapeNoise)
			list.FlushBarriers()

			// Mipmap the base shape noise for local density information.
			if err := c.manager.GenerateMipmaps(list, c.baseShapeNoise); err != nil {
				panic(err)
			}
		})
		c.dirty = false
	}

	weatherPass := g.AddPass("Clouds Weather Pass", graph.QueueCompute)
	weatherPass.Write(weatherTag, graph.BindUnorderedAccess)
	weatherPass.Bind(func(list commands.List, resources *graph.PassResources) {
		list.BindPipeline("Clouds/Weather")
		list.BindConstants("bindData", struct {
			WeatherTexture uint32
			GlobalCoverage float32
			Precipitation  float32
			Time           float32
			WindX, WindY   float32
		}{
			WeatherTexture: resources.Get(weatherTag),
			GlobalCoverage: c.Coverage,
			Precipitation:  c.Precipitation,
			Time:           float32(frame.Time),
			WindX:          c.WindX,
			WindY:          c.WindY,
		})
		groups := math.DispatchGroups(weatherSize, 8)
		list.Dispatch(groups, groups, 1)
	})

	renderScale := c.cvars.Float("clouds.renderScale")

	cloudsPass := g.AddPass("Clouds Pass", graph.QueueGraphics)
	cloudOutput := cloudsPass.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: renderScale,
		Format:          resource.FormatRGBA16Float,
	}, "Clouds scattering transmittance")
	cloudDepth := cloudsPass.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: renderScale,
		Format:          resource.FormatR32Float,
	}, "Clouds depth")
	cloudsPass.Read(cameraBuffer, graph.BindShaderResource)
	cloudsPass.Read(weatherTag, graph.BindShaderResource)
	cloudsPass.Read(baseShapeTag, graph.BindShaderResource)
	cloudsPass.Read(detailShapeTag, graph.BindShaderResource)
	cloudsPass.Read(depthStencil, graph.BindShaderResource)
	cloudsPass.Read(atmosphereIrradiance, graph.BindShaderResource)
	cloudsPass.Output(cloudOutput, graph.OutputRenderTarget, graph.LoadPreserve)
	cloudsPass.Write(cloudDepth, graph.BindUnorderedAccess)
	cloudsPass.Bind(func(list commands.List, resources *graph.PassResources) {
		pipeline := "Clouds/Main"
		switch quality := c.cvars.Int("clouds.rayMarchQuality"); {
		case quality < 1:
			pipeline = "Clouds/Main+CLOUDS_LOW_DETAIL"
		case quality > 1:
			pipeline = "Clouds/Main+CLOUDS_MARCH_GROUND_TRUTH_DETAIL"
		}
		list.BindPipeline(pipeline)

		output := resources.Texture(cloudOutput)
		list.BindConstants("bindData", struct {
			WeatherTexture          uint32
			BaseShapeNoiseTexture   uint32
			DetailShapeNoiseTexture uint32
			CameraBuffer            uint32
			TimeSlice               uint32
			DepthTexture            uint32
			GeometryDepthTexture    uint32
			AtmosphereIrradiance    uint32
			Time                    float32
			WindX, WindY            float32
			OutputWidth             uint32
			OutputHeight            uint32
			UpscaledWidth           uint32
			UpscaledHeight          uint32
		}{
			WeatherTexture:          resources.Get(weatherTag),
			BaseShapeNoiseTexture:   resources.Get(baseShapeTag),
			DetailShapeNoiseTexture: resources.Get(detailShapeTag),
			CameraBuffer:            resources.Get(cameraBuffer),
			TimeSlice:               frame.TimeSlice(),
			DepthTexture:            resources.Get(cloudDepth),
			GeometryDepthTexture:    resources.Get(depthStencil),
			AtmosphereIrradiance:    resources.Get(atmosphereIrradiance),
			Time:                    float32(frame.Time),
			WindX:                   c.WindX,
			WindY:                   c.WindY,
			OutputWidth:             output.Description.Width,
			OutputHeight:            output.Description.Height,
			UpscaledWidth:           frame.OutputWidth,
			UpscaledHeight:          frame.OutputHeight,
		})
		list.DrawFullscreenQuad()
	})

	visibilityEnabled := c.cvars.Int("clouds.lightShafts") > 0

	visibilityPass := g.AddPass("Clouds Sky Visibility Pass", graph.QueueCompute, visibilityEnabled)
	cloudVisibility := visibilityPass.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: renderScale,
		Format:          resource.FormatR16Float,
	}, "Clouds visibility map")
	visibilityPass.Read(cameraBuffer, graph.BindShaderResource)
	visibilityPass.Read(weatherTag, graph.BindShaderResource)
	visibilityPass.Read(baseShapeTag, graph.BindShaderResource)
	visibilityPass.Read(depthStencil, graph.BindShaderResource)
	visibilityPass.Read(atmosphereIrradiance, graph.BindShaderResource)
	visibilityPass.Write(cloudVisibility, graph.BindUnorderedAccess)
	visibilityPass.Bind(func(list commands.List, resources *graph.PassResources) {
		// Always low detail, no matter the quality setting.
		list.BindPipeline("Clouds/Visibility+CLOUDS_LOW_DETAIL")

		output := resources.Texture(cloudVisibility)
		list.BindConstants("bindData", struct {
			OutputTexture         uint32
			WeatherTexture        uint32
			BaseShapeNoiseTexture uint32
			CameraBuffer          uint32
			TimeSlice             uint32
			GeometryDepthTexture  uint32
			AtmosphereIrradiance  uint32
			WindX, WindY          float32
			Time                  float32
		}{
			OutputTexture:         resources.Get(cloudVisibility),
			WeatherTexture:        resources.Get(weatherTag),
			BaseShapeNoiseTexture: resources.Get(baseShapeTag),
			CameraBuffer:          resources.Get(cameraBuffer),
			TimeSlice:             frame.TimeSlice(),
			GeometryDepthTexture:  resources.Get(depthStencil),
			AtmosphereIrradiance:  resources.Get(atmosphereIrradiance),
			WindX:                 c.WindX,
			WindY:                 c.WindY,
			Time:                  float32(frame.Time),
		})
		list.Dispatch(math.DispatchGroups(output.Description.Width, 8), math.DispatchGroups(output.Description.Height, 8), 1)
	})

	oldScattering, hasOldScattering := c.historyScattering.Import(g)
	oldDepth, hasOldDepth := c.historyDepth.Import(g)

	upscalePass := g.AddPass("Clouds Upscale Pass", graph.QueueCompute)
	scatteringUpscaled := upscalePass.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: 1,
		Format:          resource.FormatRGBA16Float,
	}, "Clouds upscaled scattering transmittance")
	depthUpscaled := upscalePass.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: 1,
		Format:          resource.FormatR32Float,
	}, "Clouds upscaled depth")
	upscalePass.Read(cameraBuffer, graph.BindShaderResource)
	upscalePass.Read(depthStencil, graph.BindShaderResource)
	upscalePass.Read(cloudOutput, graph.BindShaderResource)
	upscalePass.Read(cloudDepth, graph.BindShaderResource)
	upscalePass.Write(scatteringUpscaled, graph.BindUnorderedAccess)
	upscalePass.Write(depthUpscaled, graph.BindUnorderedAccess)
	if hasOldScattering {
		upscalePass.Read(oldScattering, graph.BindShaderResource)
	}
	if hasOldDepth {
		upscalePass.Read(oldDepth, graph.BindShaderResource)
	}

	var visibilityUpscaled graph.ResourceTag
	var oldVisibility graph.ResourceTag
	var hasOldVisibility bool
	if visibilityEnabled {
		visibilityUpscaled = upscalePass.Create(graph.TransientTextureDescription{
			Depth:           1,
			ResolutionScale: 1,
			Format:          resource.FormatR16Float,
		}, "Clouds upscaled sky visibility")
		upscalePass.Read(cloudVisibility, graph.BindShaderResource)
		upscalePass.Write(visibilityUpscaled, graph.BindUnorderedAccess)
		oldVisibility, hasOldVisibility = c.historyVisibility.Import(g)
		if hasOldVisibility {
			upscalePass.Read(oldVisibility, graph.BindShaderResource)
		}
	}

	upscalePass.Bind(func(list commands.List, resources *graph.PassResources) {
		list.BindPipeline("Clouds/Upscale")

		bindData := struct {
			CameraBuffer         uint32
			TimeSlice            uint32
			GeometryDepthTexture uint32
			NewScattering        uint32
			NewDepth             uint32
			NewVisibility        uint32
			OldScattering        uint32
			OldDepth             uint32
			OldVisibility        uint32
			OutputScattering     uint32
			OutputDepth          uint32
			OutputVisibility     uint32
		}{
			CameraBuffer:         resources.Get(cameraBuffer),
			TimeSlice:            frame.TimeSlice(),
			GeometryDepthTexture: resources.Get(depthStencil),
			NewScattering:        resources.Get(cloudOutput),
			NewDepth:             resources.Get(cloudDepth),
			OutputScattering:     resources.Get(scatteringUpscaled),
			OutputDepth:          resources.Get(depthUpscaled),
		}
		// Histories bind the zero sentinel on the first frame; the shader
		// skips the temporal blend for sentinel inputs.
		if hasOldScattering {
			bindData.OldScattering = resources.Get(oldScattering)
		}
		if hasOldDepth {
			bindData.OldDepth = resources.Get(oldDepth)
		}
		if visibilityEnabled {
			bindData.NewVisibility = resources.Get(cloudVisibility)
			bindData.OutputVisibility = resources.Get(visibilityUpscaled)
			if hasOldVisibility {
				bindData.OldVisibility = resources.Get(oldVisibility)
			}
		}
		list.BindConstants("bindData", bindData)

		output := resources.Texture(scatteringUpscaled)
		list.Dispatch(math.DispatchGroups(output.Description.Width, 8), math.DispatchGroups(output.Description.Height, 8), 1)
	})

	c.historyScattering.Capture(g, scatteringUpscaled)
	c.historyDepth.Capture(g, depthUpscaled)
	if visibilityEnabled {
		c.historyVisibility.Capture(g, visibilityUpscaled)
	}

	return CloudResources{
		ScatteringTransmittance: scatteringUpscaled,
		Depth:                   depthUpscaled,
		Visibility:              visibilityUpscaled,
		Weather:                 weatherTag,
	}
}

// DiscardHistory drops the retained previous-frame outputs. Called on
// resolution changes, since the backings are sized to the old resolution.
func (c *Clouds) DiscardHistory(registry *graph.Registry) {
	c.historyScattering.Release(registry)
	c.historyDepth.Release(registry)
	c.historyVisibility.Release(registry)
}

// Destroy releases the persistent cloud resources and the history pins.
func (c *Clouds) Destroy(registry *graph.Registry) {
	c.DiscardHistory(registry)
	for _, h := range []resource.Handle{c.weather, c.baseShapeNoise, c.detailShapeNoise} {
		if err := c.manager.Destroy(h); err != nil {
			panic(err)
		}
	}
}
