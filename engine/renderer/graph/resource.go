package graph

import (
	"github.com/google/uuid"

	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

// ExecutionQueue selects which GPU queue a pass is submitted to.
type ExecutionQueue uint8

const (
	QueueGraphics ExecutionQueue = iota
	QueueCompute
)

func (q ExecutionQueue) String() string {
	if q == QueueCompute {
		return "Compute"
	}
	return "Graphics"
}

// ResourceBind is the view a pass needs on a resource it reads or writes.
type ResourceBind uint8

const (
	BindCommon ResourceBind = iota
	BindShaderResource
	BindUnorderedAccess
	BindIndirect
	BindDepthStencil
)

// OutputBind is the attachment slot for pass outputs.
type OutputBind uint8

const (
	OutputRenderTarget OutputBind = iota
	OutputDepthStencil
)

// LoadPolicy controls whether prior contents survive into the pass.
type LoadPolicy uint8

const (
	LoadPreserve LoadPolicy = iota
	LoadClear
	LoadDiscard
)

// ResourceTag is an opaque per-frame reference to a logical resource inside
// one graph build. The zero value is the invalid sentinel. Tags from a
// previous frame's build are rejected by the registry.
type ResourceTag struct {
	index uint32
	build uuid.UUID
}

func (t ResourceTag) Valid() bool {
	return t.build != uuid.Nil
}

// TransientTextureDescription describes a frame-scoped texture. Zero width
// or height means "derive from ResolutionScale against the current output
// resolution".
type TransientTextureDescription struct {
	Width           uint32
	Height          uint32
	Depth           uint32
	ResolutionScale float64
	Format          resource.Format
	MipMapping      bool
}

// TransientBufferDescription describes a frame-scoped buffer.
type TransientBufferDescription struct {
	Size       uint64
	Stride     uint32
	UAVCounter bool
}
