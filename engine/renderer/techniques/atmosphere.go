package techniques

import (
	"fmt"

	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/math"
	"github.com/spaghettifunk/aurora/engine/renderer/commands"
	"github.com/spaghettifunk/aurora/engine/renderer/graph"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

// Atmosphere precomputes the scattering lookup tables once and applies the
// sky to the lit scene each frame. The LUTs are persistent: most frames
// import them with no writer pass at all.
type Atmosphere struct {
	manager *resource.Manager
	cvars   *config.CvarStore

	transmittance resource.Handle
	scattering    resource.Handle
	irradiance    resource.Handle

	// SunAzimuth/SunAltitude drive the directional light, in radians.
	SunAzimuth  float32
	SunAltitude float32

	dirty bool
}

// AtmosphereResources are the imported lookup table tags for the frame.
type AtmosphereResources struct {
	Transmittance graph.ResourceTag
	Scattering    graph.ResourceTag
	Irradiance    graph.ResourceTag
}

func NewAtmosphere(manager *resource.Manager, cvars *config.CvarStore) (*Atmosphere, error) {
	cvars.RegisterInt("atmosphere.lutQuality", "Controls the sample count of the atmosphere lookup table precompute. 0=fast, 1=default", 1)

	a := &Atmosphere{
		manager:     manager,
		cvars:       cvars,
		SunAltitude: 0.5,
		dirty:       true,
	}

	var err error
	a.transmittance, err = manager.CreateTexture(resource.TextureDescription{
		Width:     256,
		Height:    64,
		Depth:     1,
		Format:    resource.FormatRGBA16Float,
		BindFlags: resource.BindShaderResource | resource.BindUnorderedAccess,
	}, "Atmosphere transmittance LUT")
	if err != nil {
		return nil, fmt.Errorf("failed to create atmosphere transmittance LUT: %w", err)
	}

	a.scattering, err = manager.CreateTexture(resource.TextureDescription{
		Width:     256,
		Height:    128,
		Depth:     32,
		Format:    resource.FormatRGBA16Float,
		BindFlags: resource.BindShaderResource | resource.BindUnorderedAccess,
	}, "Atmosphere scattering LUT")
	if err != nil {
		return nil, fmt.Errorf("failed to create atmosphere scattering LUT: %w", err)
	}

	a.irradiance, err = manager.CreateTexture(resource.TextureDescription{
		Width:     64,
		Height:    16,
		Depth:     1,
		Format:    resource.FormatRGBA16Float,
		BindFlags: resource.BindShaderResource | resource.BindUnorderedAccess,
	}, "Atmosphere irradiance LUT")
	if err != nil {
		return nil, fmt.Errorf("failed to create atmosphere irradiance LUT: %w", err)
	}

	return a, nil
}

// MarkDirty forces the lookup tables to be regenerated on the next frame.
// Call after changing the planet or media parameters.
func (a *Atmosphere) MarkDirty() {
	a.dirty = true
}

// Precompute declares the LUT generation pass when the tables are stale and
// returns the imported LUT tags for downstream passes. On clean frames the
// tags have no writer; imported resources are readable as-is.
func (a *Atmosphere) Precompute(g *graph.RenderGraph) AtmosphereResources {
	transmittanceTag := g.Import(a.transmittance)
	scatteringTag := g.Import(a.scattering)
	irradianceTag := g.Import(a.irradiance)

	if a.dirty {
		lutPass := g.AddPass("Atmosphere LUT Pass", graph.QueueCompute)
		lutPass.Write(transmittanceTag, graph.BindUnorderedAccess)
		lutPass.Write(scatteringTag, graph.BindUnorderedAccess)
		lutPass.Write(irradianceTag, graph.BindUnorderedAccess)
		lutPass.Bind(func(list commands.List, resources *graph.PassResources) {
			pipeline := "Atmosphere/PrecomputeLuts"
			if a.cvars.Int("atmosphere.lutQuality") < 1 {
				pipeline = "Atmosphere/PrecomputeLuts+ATMOSPHERE_FAST"
			}
			list.BindPipeline(pipeline)
			list.BindConstants("bindData", struct {
				TransmittanceTexture uint32
				ScatteringTexture    uint32
				IrradianceTexture    uint32
			}{
				TransmittanceTexture: resources.Get(transmittanceTag),
				ScatteringTexture:    resources.Get(scatteringTag),
				IrradianceTexture:    resources.Get(irradianceTag),
			})
			list.Dispatch(math.DispatchGroups(256, 8), math.DispatchGroups(128, 8), 32)
		})
		a.dirty = false
	}

	return AtmosphereResources{
		Transmittance: transmittanceTag,
		Scattering:    scatteringTag,
		Irradiance:    irradianceTag,
	}
}

// Render applies the sky onto the lit HDR target behind the geometry,
// blended with the cloud layer.
func (a *Atmosphere) Render(g *graph.RenderGraph, luts AtmosphereResources, cameraBuffer, depthStencil, hdrTarget graph.ResourceTag, clouds CloudResources) {
	skyPass := g.AddPass("Atmosphere Sky Pass", graph.QueueGraphics)
	skyPass.Read(cameraBuffer, graph.BindShaderResource)
	skyPass.Read(depthStencil, graph.BindShaderResource)
	skyPass.Read(luts.Transmittance, graph.BindShaderResource)
	skyPass.Read(luts.Scattering, graph.BindShaderResource)
	skyPass.Read(luts.Irradiance, graph.BindShaderResource)
	skyPass.Read(clouds.ScatteringTransmittance, graph.BindShaderResource)
	skyPass.Read(clouds.Depth, graph.BindShaderResource)
	skyPass.Output(hdrTarget, graph.OutputRenderTarget, graph.LoadPreserve)
	skyPass.Bind(func(list commands.List, resources *graph.PassResources) {
		list.BindPipeline("Atmosphere/Sky")
		list.BindConstants("bindData", struct {
			CameraBuffer         uint32
			GeometryDepthTexture uint32
			TransmittanceTexture uint32
			ScatteringTexture    uint32
			IrradianceTexture    uint32
			CloudsScattering     uint32
			CloudsDepth          uint32
			SunAzimuth           float32
			SunAltitude          float32
		}{
			CameraBuffer:         resources.Get(cameraBuffer),
			GeometryDepthTexture: resources.Get(depthStencil),
			TransmittanceTexture: resources.Get(luts.Transmittance),
			ScatteringTexture:    resources.Get(luts.Scattering),
			IrradianceTexture:    resources.Get(luts.Irradiance),
			CloudsScattering:     resources.Get(clouds.ScatteringTransmittance),
			CloudsDepth:          resources.Get(clouds.Depth),
			SunAzimuth:           a.SunAzimuth,
			SunAltitude:          a.SunAltitude,
		})
		list.DrawFullscreenQuad()
	})
}

// Destroy releases the persistent lookup tables.
func (a *Atmosphere) Destroy() {
	for _, h := range []resource.Handle{a.transmittance, a.scattering, a.irradiance} {
		if err := a.manager.Destroy(h); err != nil {
			panic(err)
		}
	}
}
