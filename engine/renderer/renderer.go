package renderer

import (
	"fmt"
	stdmath "math"

	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/math"
	"github.com/spaghettifunk/aurora/engine/renderer/commands"
	"github.com/spaghettifunk/aurora/engine/renderer/graph"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
	"github.com/spaghettifunk/aurora/engine/renderer/techniques"
)

const (
	maxInstances = 65536
	maxLights    = 1024
)

type Config struct {
	Width  uint32
	Height uint32
	// MemoryBudget caps GPU resource memory. Zero means unlimited.
	MemoryBudget uint64
	// Executor tunes command recording. Nil uses defaults.
	Executor *graph.ExecutorConfig
}

// Renderer assembles and runs the frame. Each Render call declares the full
// pass set against a fresh graph, builds it and executes the resolved
// schedule against the submission target.
type Renderer struct {
	config   Config
	cvars    *config.CvarStore
	manager  *resource.Manager
	registry *graph.Registry
	executor *graph.Executor
	metrics  *core.Metrics

	clouds      *techniques.Clouds
	atmosphere  *techniques.Atmosphere
	occlusion   *techniques.Occlusion
	lights      *techniques.Lights
	bloom       *techniques.Bloom
	postProcess *techniques.PostProcess

	cameraBuffer   resource.Handle
	instanceBuffer resource.Handle
	lightBuffer    resource.Handle
	drawArgsBuffer resource.Handle
	backBuffer     resource.Handle

	frame       uint64
	elapsedTime float64
	// InstanceCount is the number of scene instances submitted for culling.
	InstanceCount uint32
}

func New(target graph.Target, cvars *config.CvarStore, cfg Config) (*Renderer, error) {
	core.Assert(cfg.Width > 0 && cfg.Height > 0, "renderer requires a non-zero resolution")

	cvars.RegisterInt("mesh.culling", "Controls GPU occlusion culling of scene meshes against last frame's depth", 1)

	manager := resource.NewManager(&resource.ManagerConfig{MemoryBudget: cfg.MemoryBudget})
	registry := graph.NewRegistry(manager, cvars)
	registry.SetResolution(cfg.Width, cfg.Height)

	r := &Renderer{
		config:   cfg,
		cvars:    cvars,
		manager:  manager,
		registry: registry,
		executor: graph.NewExecutor(target, cfg.Executor),
		metrics:  core.NewMetrics(),
	}

	var err error
	r.cameraBuffer, err = manager.CreateBuffer(resource.BufferDescription{
		Size:      512,
		BindFlags: resource.BindShaderResource,
	}, "Camera buffer")
	if err != nil {
		return nil, fmt.Errorf("failed to create camera buffer: %w", err)
	}
	r.instanceBuffer, err = manager.CreateBuffer(resource.BufferDescription{
		Size:      maxInstances,
		Stride:    64,
		BindFlags: resource.BindShaderResource,
	}, "Instance buffer")
	if err != nil {
		return nil, fmt.Errorf("failed to create instance buffer: %w", err)
	}
	r.lightBuffer, err = manager.CreateBuffer(resource.BufferDescription{
		Size:      maxLights,
		Stride:    48,
		BindFlags: resource.BindShaderResource,
	}, "Light buffer")
	if err != nil {
		return nil, fmt.Errorf("failed to create light buffer: %w", err)
	}
	r.drawArgsBuffer, err = manager.CreateBuffer(resource.BufferDescription{
		Size:       maxInstances,
		Stride:     32,
		UAVCounter: true,
		BindFlags:  resource.BindShaderResource | resource.BindUnorderedAccess,
	}, "Indirect draw arguments")
	if err != nil {
		return nil, fmt.Errorf("failed to create indirect draw arguments: %w", err)
	}

	if err := r.createBackBuffer(); err != nil {
		return nil, err
	}

	r.clouds, err = techniques.NewClouds(manager, cvars)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize clouds: %w", err)
	}
	r.atmosphere, err = techniques.NewAtmosphere(manager, cvars)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize atmosphere: %w", err)
	}
	r.lights, err = techniques.NewLights(manager, cvars)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize light culling: %w", err)
	}
	r.occlusion = techniques.NewOcclusion(cvars)
	r.bloom = techniques.NewBloom(cvars)
	r.postProcess = techniques.NewPostProcess(cvars)

	core.LogInfo("renderer initialized at %dx%d", cfg.Width, cfg.Height)
	return r, nil
}

func (r *Renderer) createBackBuffer() error {
	backBuffer, err := r.manager.CreateTexture(resource.TextureDescription{
		Width:     r.config.Width,
		Height:    r.config.Height,
		Depth:     1,
		Format:    resource.FormatRGBA8UnormSRGB,
		BindFlags: resource.BindRenderTarget,
	}, "Back buffer")
	if err != nil {
		return fmt.Errorf("failed to create back buffer: %w", err)
	}
	r.backBuffer = backBuffer
	return nil
}

// Metrics exposes the rolling frame timings.
func (r *Renderer) Metrics() *core.Metrics {
	return r.metrics
}

// Registry exposes the transient resource registry, mainly for tooling.
func (r *Renderer) Registry() *graph.Registry {
	return r.registry
}

// SetResolution rebuilds everything sized against the output resolution:
// pooled transients, retained histories and the back buffer.
func (r *Renderer) SetResolution(width, height uint32) error {
	core.Assert(width > 0 && height > 0, "resolution must be non-zero")

	r.clouds.DiscardHistory(r.registry)
	r.occlusion.DiscardHistory(r.registry)
	r.lights.MarkDirty()
	r.registry.DiscardTransients()
	r.registry.SetResolution(width, height)

	if err := r.manager.Destroy(r.backBuffer); err != nil {
		return fmt.Errorf("failed to destroy back buffer: %w", err)
	}
	r.config.Width, r.config.Height = width, height
	if err := r.createBackBuffer(); err != nil {
		return err
	}

	core.LogInfo("renderer resized to %dx%d", width, height)
	return nil
}

// Render declares, builds and executes one frame. Build failures (resource
// exhaustion) skip the frame and are returned; the renderer stays usable.
func (r *Renderer) Render(deltaTime float64) error {
	r.elapsedTime += deltaTime
	frame := techniques.FrameContext{
		Frame:        r.frame,
		Time:         r.elapsedTime,
		OutputWidth:  r.config.Width,
		OutputHeight: r.config.Height,
	}

	g := graph.New(r.registry)

	camera := g.Import(r.cameraBuffer)
	instances := g.Import(r.instanceBuffer)
	lights := g.Import(r.lightBuffer)
	drawArgs := g.Import(r.drawArgsBuffer)
	backBuffer := g.Import(r.backBuffer)

	lastFrameHiZ, hasHiZ := r.occlusion.LastFrameHiZ(g)
	cullingEnabled := r.cvars.Int("mesh.culling") > 0 && hasHiZ

	cullPass := g.AddPass("Mesh Cull Pass", graph.QueueCompute)
	cullPass.Read(camera, graph.BindShaderResource)
	cullPass.Read(instances, graph.BindShaderResource)
	if cullingEnabled {
		cullPass.Read(lastFrameHiZ, graph.BindShaderResource)
	}
	cullPass.Write(drawArgs, graph.BindUnorderedAccess)
	cullPass.Bind(func(list commands.List, resources *graph.PassResources) {
		pipeline := "Geometry/Cull"
		if !cullingEnabled {
			pipeline = "Geometry/Cull+CULL_ACCEPT_ALL"
		}
		list.BindPipeline(pipeline)
		bindData := struct {
			CameraBuffer   uint32
			InstanceBuffer uint32
			DrawArgsBuffer uint32
			HiZTexture     uint32
			InstanceCount  uint32
		}{
			CameraBuffer:   resources.Get(camera),
			InstanceBuffer: resources.Get(instances),
			DrawArgsBuffer: resources.Get(drawArgs),
			InstanceCount:  r.InstanceCount,
		}
		if cullingEnabled {
			bindData.HiZTexture = resources.Get(lastFrameHiZ)
		}
		list.BindConstants("bindData", bindData)
		list.Dispatch(math.DispatchGroups(math.Max(r.InstanceCount, 1), 64), 1, 1)
	})

	prepass := g.AddPass("Prepass", graph.QueueGraphics)
	depthStencil := prepass.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: 1,
		Format:          resource.FormatD24S8,
	}, "Depth stencil")
	prepass.Read(camera, graph.BindShaderResource)
	prepass.Read(instances, graph.BindShaderResource)
	prepass.Read(drawArgs, graph.BindIndirect)
	prepass.Output(depthStencil, graph.OutputDepthStencil, graph.LoadClear)
	prepass.Bind(func(list commands.List, resources *graph.PassResources) {
		list.BindPipeline("Geometry/Prepass")
		list.BindConstants("bindData", struct {
			CameraBuffer   uint32
			InstanceBuffer uint32
		}{
			CameraBuffer:   resources.Get(camera),
			InstanceBuffer: resources.Get(instances),
		})
		list.DrawIndirect(resources.GetBuffer(drawArgs), r.InstanceCount)
	})

	lightResources := r.lights.Render(g, frame, camera, depthStencil, lights, instances, drawArgs, r.InstanceCount)

	luts := r.atmosphere.Precompute(g)

	// The pyramid has no consumer this frame; its capture feeds the next
	// frame's cull pass.
	r.occlusion.Render(g, camera, depthStencil)

	cloudResources := r.clouds.Render(g, frame, camera, depthStencil, luts.Irradiance)

	forwardPass := g.AddPass("Forward Pass", graph.QueueGraphics)
	hdrTarget := forwardPass.Create(graph.TransientTextureDescription{
		Depth:           1,
		ResolutionScale: 1,
		Format:          resource.FormatRGBA16Float,
	}, "HDR scene target")
	forwardPass.Read(camera, graph.BindShaderResource)
	forwardPass.Read(instances, graph.BindShaderResource)
	forwardPass.Read(lights, graph.BindShaderResource)
	forwardPass.Read(lightResources.LightList, graph.BindShaderResource)
	forwardPass.Read(lightResources.LightInfo, graph.BindShaderResource)
	forwardPass.Read(drawArgs, graph.BindIndirect)
	forwardPass.Read(luts.Irradiance, graph.BindShaderResource)
	forwardPass.Output(hdrTarget, graph.OutputRenderTarget, graph.LoadClear)
	forwardPass.Output(depthStencil, graph.OutputDepthStencil, graph.LoadPreserve)
	forwardPass.Bind(func(list commands.List, resources *graph.PassResources) {
		grid := lightResources.Grid
		list.BindPipeline("Geometry/Forward")
		list.BindConstants("bindData", struct {
			CameraBuffer        uint32
			InstanceBuffer      uint32
			LightBuffer         uint32
			LightListBuffer     uint32
			LightInfoBuffer     uint32
			FroxelSize          uint32
			GridX, GridY, GridZ uint32
			InvLogDepthFactor   float32
			IrradianceLut       uint32
		}{
			CameraBuffer:      resources.Get(camera),
			InstanceBuffer:    resources.Get(instances),
			LightBuffer:       resources.Get(lights),
			LightListBuffer:   resources.Get(lightResources.LightList),
			LightInfoBuffer:   resources.Get(lightResources.LightInfo),
			FroxelSize:        grid.FroxelSize,
			GridX:             grid.X,
			GridY:             grid.Y,
			GridZ:             grid.Z,
			InvLogDepthFactor: float32(1 / stdmath.Log(grid.DepthFactor)),
			IrradianceLut:     resources.Get(luts.Irradiance),
		})
		list.DrawIndirect(resources.GetBuffer(drawArgs), r.InstanceCount)
	})

	r.atmosphere.Render(g, luts, camera, depthStencil, hdrTarget, cloudResources)

	r.bloom.Render(g, hdrTarget)

	ldrTarget := r.postProcess.Render(g, camera, hdrTarget)

	compositePass := g.AddPass("Composite Pass", graph.QueueGraphics)
	compositePass.Read(ldrTarget, graph.BindShaderResource)
	compositePass.Output(backBuffer, graph.OutputRenderTarget, graph.LoadDiscard)
	compositePass.Bind(func(list commands.List, resources *graph.PassResources) {
		list.BindPipeline("PostProcess/Composite")
		list.BindConstants("bindData", struct{ SourceTexture uint32 }{resources.Get(ldrTarget)})
		list.DrawFullscreenQuad()
	})

	// Transitions the back buffer to the common state for handover to the
	// swap chain. No commands of its own.
	presentPass := g.AddPass("Present Pass", graph.QueueGraphics)
	presentPass.Read(backBuffer, graph.BindCommon)
	presentPass.Bind(func(list commands.List, resources *graph.PassResources) {})

	if err := g.Build(); err != nil {
		core.LogError("frame %d skipped: %v", r.frame, err)
		return fmt.Errorf("frame %d skipped: %w", r.frame, err)
	}
	if err := r.executor.Execute(g); err != nil {
		return fmt.Errorf("frame %d failed: %w", r.frame, err)
	}

	r.metrics.Update(deltaTime)
	r.frame++
	return nil
}

// Shutdown tears down techniques, pooled transients and the persistent
// frame resources. The renderer is unusable afterwards.
func (r *Renderer) Shutdown() {
	r.clouds.Destroy(r.registry)
	r.atmosphere.Destroy()
	r.occlusion.Destroy(r.registry)
	r.lights.Destroy()
	r.registry.DiscardTransients()

	for _, h := range []resource.Handle{
		r.cameraBuffer, r.instanceBuffer, r.lightBuffer, r.drawArgsBuffer, r.backBuffer,
	} {
		if err := r.manager.Destroy(h); err != nil {
			core.LogWarn("shutdown: %v", err)
		}
	}
	r.manager.Shutdown()
	core.LogInfo("renderer shut down after %d frames", r.frame)
}
