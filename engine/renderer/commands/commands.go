package commands

import (
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

// ResourceState is the GPU state a resource must be in for an access.
type ResourceState uint8

const (
	StateCommon ResourceState = iota
	StateShaderResource
	StateUnorderedAccess
	StateRenderTarget
	StateDepthWrite
	StateIndirectArgument
	StateCopySource
	StateCopyDest
)

func (s ResourceState) String() string {
	switch s {
	case StateCommon:
		return "Common"
	case StateShaderResource:
		return "ShaderResource"
	case StateUnorderedAccess:
		return "UnorderedAccess"
	case StateRenderTarget:
		return "RenderTarget"
	case StateDepthWrite:
		return "DepthWrite"
	case StateIndirectArgument:
		return "IndirectArgument"
	case StateCopySource:
		return "CopySource"
	case StateCopyDest:
		return "CopyDest"
	}
	return "Unknown"
}

// List is the command recording surface pass callbacks run against.
// Implementations translate these into API calls; the graph only relies on
// commands being orderable and barriers being flushable.
type List interface {
	BindPipeline(name string)
	BindConstants(name string, data interface{})
	Dispatch(x, y, z uint32)
	DrawFullscreenQuad()
	DrawIndirect(arguments resource.Handle, maxDraws uint32)
	DispatchIndirect(arguments resource.Handle)
	Copy(destination, source resource.Handle)
	SetRenderTargets(targets []resource.Handle, depthStencil resource.Handle)
	ClearTarget(target resource.Handle)
	UAVBarrier(h resource.Handle)
	TransitionBarrier(h resource.Handle, to ResourceState)
	FlushBarriers()
}
