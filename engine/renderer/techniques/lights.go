package techniques

import (
	"fmt"
	stdmath "math"

	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/math"
	"github.com/spaghettifunk/aurora/engine/renderer/commands"
	"github.com/spaghettifunk/aurora/engine/renderer/graph"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

// Worst-case froxel subdivision the persistent bounds buffer is sized for.
const (
	maxFroxelsX = 60
	maxFroxelsY = 34
	maxFroxelsZ = 280

	clusterBoundsStride = 32
)

// Lights bins the scene lights into view-space froxels so the forward pass
// only shades the lights overlapping each cluster. The froxel grid depends
// on the output resolution and camera projection, so its bounds are
// recomputed when either changes.
type Lights struct {
	manager *resource.Manager
	cvars   *config.CvarStore

	clusterBounds resource.Handle
	grid          FroxelGrid

	// Projection parameters the grid subdivision is derived from.
	NearPlane   float32
	FarPlane    float32
	FieldOfView float32

	dirty bool
}

// FroxelGrid is the cluster subdivision for the current output resolution
// and camera projection.
type FroxelGrid struct {
	X, Y, Z     uint32
	FroxelSize  uint32
	DepthFactor float64
}

// Clusters is the total froxel count.
func (f FroxelGrid) Clusters() uint32 {
	return f.X * f.Y * f.Z
}

// LightResources are the per-froxel binning outputs the forward pass
// consumes.
type LightResources struct {
	// LightList holds the light indices of every froxel, maxPerFroxel
	// entries apart.
	LightList graph.ResourceTag
	// LightInfo holds the offset and count into LightList per froxel.
	LightInfo graph.ResourceTag
	Grid      FroxelGrid
}

func NewLights(manager *resource.Manager, cvars *config.CvarStore) (*Lights, error) {
	cvars.RegisterInt("lights.froxelSize", "Width and height of a froxel bin in light culling, in pixels", 64)
	cvars.RegisterInt("lights.maxPerFroxel", "Max number of lights per froxel bin in light culling", 256)

	l := &Lights{
		manager:     manager,
		cvars:       cvars,
		NearPlane:   0.1,
		FarPlane:    10000,
		FieldOfView: stdmath.Pi / 2,
		dirty:       true,
	}

	var err error
	l.clusterBounds, err = manager.CreateBuffer(resource.BufferDescription{
		Size:      maxFroxelsX * maxFroxelsY * maxFroxelsZ,
		Stride:    clusterBoundsStride,
		BindFlags: resource.BindShaderResource | resource.BindUnorderedAccess,
	}, "Cluster bounds")
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster bounds: %w", err)
	}

	return l, nil
}

// MarkDirty forces cluster bounds regeneration on the next frame. Called on
// resolution and projection changes, since the grid is derived from both.
func (l *Lights) MarkDirty() {
	l.dirty = true
}

// Grid exposes the subdivision of the last rendered frame.
func (l *Lights) Grid() FroxelGrid {
	return l.grid
}

func (l *Lights) computeGrid(frame FrameContext) FroxelGrid {
	froxelSize := math.Max(uint32(l.cvars.Int("lights.froxelSize")), 1)
	x := math.DispatchGroups(frame.OutputWidth, froxelSize)
	y := math.DispatchGroups(frame.OutputHeight, froxelSize)
	depthFactor := 1 + 2*stdmath.Tan(float64(l.FieldOfView)/4)/float64(y)
	z := uint32(stdmath.Floor(stdmath.Log(float64(l.FarPlane/l.NearPlane)) / stdmath.Log(depthFactor)))

	return FroxelGrid{
		X:           math.Min(x, maxFroxelsX),
		Y:           math.Min(y, maxFroxelsY),
		Z:           math.Min(z, maxFroxelsZ),
		FroxelSize:  froxelSize,
		DepthFactor: depthFactor,
	}
}

func (l *Lights) Render(g *graph.RenderGraph, frame FrameContext, cameraBuffer, depthStencil, lightBuffer, instanceBuffer, drawArguments graph.ResourceTag, drawCount uint32) LightResources {
	l.grid = l.computeGrid(frame)
	grid := l.grid
	clusters := grid.Clusters()
	maxPerFroxel := uint32(l.cvars.Int("lights.maxPerFroxel"))

	boundsTag := g.Import(l.clusterBounds)

	if l.dirty {
		gridPass := g.AddPass("Cluster Grid Pass", graph.QueueCompute)
		gridPass.Read(cameraBuffer, graph.BindShaderResource)
		gridPass.Write(boundsTag, graph.BindUnorderedAccess)
		gridPass.Bind(func(list commands.List, resources *graph.PassResources) {
			list.BindPipeline("Lights/ClusterBounds")
			list.BindConstants("bindData", struct {
				GridX, GridY, GridZ uint32
				DepthFactor         float32
				ResolutionX         uint32
				ResolutionY         uint32
				CameraBuffer        uint32
				BoundsBuffer        uint32
			}{
				GridX:        grid.X,
				GridY:        grid.Y,
				GridZ:        grid.Z,
				DepthFactor:  float32(grid.DepthFactor),
				ResolutionX:  frame.OutputWidth,
				ResolutionY:  frame.OutputHeight,
				CameraBuffer: resources.Get(cameraBuffer),
				BoundsBuffer: resources.Get(boundsTag),
			})
			list.Dispatch(math.DispatchGroups(clusters, 64), 1, 1)
		})
		l.dirty = false
	}

	// Rasterizes the culled scene against the existing depth buffer,
	// flagging every froxel that contains visible geometry.
	depthCullPass := g.AddPass("Cluster Depth Culling Pass", graph.QueueGraphics)
	visibility := depthCullPass.CreateBuffer(graph.TransientBufferDescription{
		Size:   uint64(clusters),
		Stride: 4,
	}, "Cluster visibility")
	depthCullPass.Read(cameraBuffer, graph.BindShaderResource)
	depthCullPass.Read(instanceBuffer, graph.BindShaderResource)
	depthCullPass.Read(depthStencil, graph.BindDepthStencil)
	depthCullPass.Read(drawArguments, graph.BindIndirect)
	depthCullPass.Write(visibility, graph.BindUnorderedAccess)
	depthCullPass.Bind(func(list commands.List, resources *graph.PassResources) {
		clearBuffer(list, resources, visibility, clusters)

		list.BindPipeline("Lights/ClusterDepthCulling")
		list.BindConstants("bindData", struct {
			CameraBuffer     uint32
			InstanceBuffer   uint32
			VisibilityBuffer uint32
			FroxelSize       uint32
			GridZ            uint32
			LogDepthFactor   float32
		}{
			CameraBuffer:     resources.Get(cameraBuffer),
			InstanceBuffer:   resources.Get(instanceBuffer),
			VisibilityBuffer: resources.Get(visibility),
			FroxelSize:       grid.FroxelSize,
			GridZ:            grid.Z,
			LogDepthFactor:   float32(stdmath.Log(grid.DepthFactor)),
		})
		list.DrawIndirect(resources.GetBuffer(drawArguments), drawCount)
	})

	// Compacts the sparse visibility flags into a dense cluster list, then
	// sizes an indirect dispatch off the list's counter so binning only
	// touches occupied froxels.
	compactionPass := g.AddPass("Cluster Compaction Pass", graph.QueueCompute)
	denseClusters := compactionPass.CreateBuffer(graph.TransientBufferDescription{
		Size:       uint64(clusters),
		Stride:     4,
		UAVCounter: true,
	}, "Dense cluster list")
	binningArgs := compactionPass.CreateBuffer(graph.TransientBufferDescription{
		Size:   1,
		Stride: 12,
	}, "Light binning dispatch arguments")
	compactionPass.Read(visibility, graph.BindShaderResource)
	compactionPass.Write(denseClusters, graph.BindUnorderedAccess)
	compactionPass.Write(binningArgs, graph.BindUnorderedAccess)
	compactionPass.Bind(func(list commands.List, resources *graph.PassResources) {
		list.BindPipeline("Lights/ClusterCompaction")
		list.BindConstants("bindData", struct {
			VisibilityBuffer   uint32
			DenseClusterBuffer uint32
		}{
			VisibilityBuffer:   resources.Get(visibility),
			DenseClusterBuffer: resources.Get(denseClusters),
		})
		list.Dispatch(math.DispatchGroups(clusters, 64), 1, 1)

		list.UAVBarrier(resources.GetBuffer(denseClusters))
		list.FlushBarriers()

		list.BindPipeline("Lights/BinningIndirectArgs")
		list.BindConstants("bindData", struct {
			DenseClusterBuffer uint32
			ArgumentsBuffer    uint32
		}{
			DenseClusterBuffer: resources.Get(denseClusters),
			ArgumentsBuffer:    resources.Get(binningArgs),
		})
		list.Dispatch(1, 1, 1)
	})

	binningPass := g.AddPass("Light Binning Pass", graph.QueueCompute)
	lightCounter := binningPass.CreateBuffer(graph.TransientBufferDescription{
		Size:   1,
		Stride: 4,
	}, "Light binning counter")
	lightList := binningPass.CreateBuffer(graph.TransientBufferDescription{
		Size:   uint64(clusters) * uint64(maxPerFroxel),
		Stride: 4,
	}, "Cluster light list")
	lightInfo := binningPass.CreateBuffer(graph.TransientBufferDescription{
		Size:   uint64(clusters),
		Stride: 8,
	}, "Cluster light info")
	binningPass.Read(denseClusters, graph.BindShaderResource)
	binningPass.Read(boundsTag, graph.BindShaderResource)
	binningPass.Read(lightBuffer, graph.BindShaderResource)
	binningPass.Read(cameraBuffer, graph.BindShaderResource)
	binningPass.Read(binningArgs, graph.BindIndirect)
	binningPass.Write(lightCounter, graph.BindUnorderedAccess)
	binningPass.Write(lightList, graph.BindUnorderedAccess)
	binningPass.Write(lightInfo, graph.BindUnorderedAccess)
	binningPass.Bind(func(list commands.List, resources *graph.PassResources) {
		clearBuffer(list, resources, lightCounter, 1)
		clearBuffer(list, resources, lightInfo, clusters*2)

		list.BindPipeline("Lights/ClusterLightBinning")
		list.BindConstants("bindData", struct {
			CameraBuffer       uint32
			DenseClusterBuffer uint32
			BoundsBuffer       uint32
			LightBuffer        uint32
			LightCounterBuffer uint32
			LightListBuffer    uint32
			LightInfoBuffer    uint32
			MaxPerFroxel       uint32
		}{
			CameraBuffer:       resources.Get(cameraBuffer),
			DenseClusterBuffer: resources.Get(denseClusters),
			BoundsBuffer:       resources.Get(boundsTag),
			LightBuffer:        resources.Get(lightBuffer),
			LightCounterBuffer: resources.Get(lightCounter),
			LightListBuffer:    resources.Get(lightList),
			LightInfoBuffer:    resources.Get(lightInfo),
			MaxPerFroxel:       maxPerFroxel,
		})
		list.DispatchIndirect(resources.GetBuffer(binningArgs))
	})

	return LightResources{
		LightList: lightList,
		LightInfo: lightInfo,
		Grid:      grid,
	}
}

// Destroy releases the persistent cluster bounds.
func (l *Lights) Destroy() {
	if err := l.manager.Destroy(l.clusterBounds); err != nil {
		panic(err)
	}
}

// clearBuffer zeroes a buffer through a compute dispatch and fences the
// write before later commands in the same pass read or append to it.
func clearBuffer(list commands.List, resources *graph.PassResources, tag graph.ResourceTag, elements uint32) {
	list.BindPipeline("Utils/ClearBuffer")
	list.BindConstants("bindData", struct {
		TargetBuffer uint32
		Elements     uint32
	}{resources.Get(tag), elements})
	list.Dispatch(math.DispatchGroups(math.Max(elements, 1), 64), 1, 1)
	list.UAVBarrier(resources.GetBuffer(tag))
	list.FlushBarriers()
}
