package resource

import (
	"fmt"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/math"
)

type Kind uint8

const (
	KindInvalid Kind = iota
	KindTexture
	KindBuffer
)

// Handle is an opaque reference to a GPU-resident resource. The zero value
// is the invalid sentinel ("no resource", also "no history yet").
type Handle struct {
	id         uint32
	generation uint32
	kind       Kind
}

func (h Handle) Valid() bool {
	return h.kind != KindInvalid
}

func (h Handle) Kind() Kind {
	return h.kind
}

// ID returns the bindless descriptor index for the resource. Zero is
// reserved for the invalid sentinel so shaders can branch on "no texture".
func (h Handle) ID() uint32 {
	return h.id
}

func (h Handle) String() string {
	switch h.kind {
	case KindTexture:
		return fmt.Sprintf("texture:%d.%d", h.id, h.generation)
	case KindBuffer:
		return fmt.Sprintf("buffer:%d.%d", h.id, h.generation)
	}
	return "invalid"
}

type Texture struct {
	Handle      Handle
	Description TextureDescription
	DebugName   string
}

type Buffer struct {
	Handle      Handle
	Description BufferDescription
	DebugName   string
}

type MemoryInfo struct {
	BufferCount  uint32
	BufferBytes  uint64
	TextureCount uint32
	TextureBytes uint64
}

type textureSlot struct {
	texture    *Texture
	generation uint32
	live       bool
}

type bufferSlot struct {
	buffer     *Buffer
	generation uint32
	live       bool
}

type ManagerConfig struct {
	// MemoryBudget caps the total tracked bytes. Zero means unlimited.
	MemoryBudget uint64
}

// Manager owns the GPU-resident texture and buffer objects, keyed by
// opaque handles. Stale handles are caught through generation counters.
type Manager struct {
	Config *ManagerConfig

	textures    []textureSlot
	buffers     []bufferSlot
	freeTexture []uint32
	freeBuffer  []uint32

	memory MemoryInfo
}

func NewManager(config *ManagerConfig) *Manager {
	if config == nil {
		config = &ManagerConfig{}
	}
	m := &Manager{
		Config: config,
	}
	// Slot 0 stays unused so that handle id 0 remains the sentinel.
	m.textures = append(m.textures, textureSlot{})
	m.buffers = append(m.buffers, bufferSlot{})
	return m
}

func (m *Manager) CreateTexture(description TextureDescription, debugName string) (Handle, error) {
	if description.Width == 0 || description.Height == 0 {
		return Handle{}, fmt.Errorf("texture '%s' has zero dimensions", debugName)
	}
	size := description.ByteSize()
	if err := m.chargeBudget(size); err != nil {
		return Handle{}, fmt.Errorf("texture '%s' (%d bytes): %w", debugName, size, err)
	}

	var id uint32
	if n := len(m.freeTexture); n > 0 {
		id = m.freeTexture[n-1]
		m.freeTexture = m.freeTexture[:n-1]
	} else {
		id = uint32(len(m.textures))
		m.textures = append(m.textures, textureSlot{})
	}

	slot := &m.textures[id]
	slot.generation++
	slot.live = true
	handle := Handle{id: id, generation: slot.generation, kind: KindTexture}
	slot.texture = &Texture{
		Handle:      handle,
		Description: description,
		DebugName:   debugName,
	}

	m.memory.TextureCount++
	m.memory.TextureBytes += size

	core.LogDebug("created texture '%s' %dx%dx%d %s (%d bytes)",
		debugName, description.Width, description.Height, max(description.Depth, 1),
		description.Format.String(), size)

	return handle, nil
}

func (m *Manager) CreateBuffer(description BufferDescription, debugName string) (Handle, error) {
	size := description.ByteSize()
	if size == 0 {
		return Handle{}, fmt.Errorf("buffer '%s' has zero size", debugName)
	}
	if err := m.chargeBudget(size); err != nil {
		return Handle{}, fmt.Errorf("buffer '%s' (%d bytes): %w", debugName, size, err)
	}

	var id uint32
	if n := len(m.freeBuffer); n > 0 {
		id = m.freeBuffer[n-1]
		m.freeBuffer = m.freeBuffer[:n-1]
	} else {
		id = uint32(len(m.buffers))
		m.buffers = append(m.buffers, bufferSlot{})
	}

	slot := &m.buffers[id]
	slot.generation++
	slot.live = true
	handle := Handle{id: id, generation: slot.generation, kind: KindBuffer}
	slot.buffer = &Buffer{
		Handle:      handle,
		Description: description,
		DebugName:   debugName,
	}

	m.memory.BufferCount++
	m.memory.BufferBytes += size

	return handle, nil
}

func (m *Manager) chargeBudget(size uint64) error {
	if m.Config.MemoryBudget == 0 {
		return nil
	}
	used := m.memory.TextureBytes + m.memory.BufferBytes
	if used+size > m.Config.MemoryBudget {
		return core.ErrOutOfMemory
	}
	return nil
}

func (m *Manager) Destroy(h Handle) error {
	switch h.kind {
	case KindTexture:
		slot, err := m.textureSlot(h)
		if err != nil {
			return err
		}
		m.memory.TextureCount--
		m.memory.TextureBytes -= slot.texture.Description.ByteSize()
		slot.texture = nil
		slot.live = false
		m.freeTexture = append(m.freeTexture, h.id)
		return nil
	case KindBuffer:
		slot, err := m.bufferSlot(h)
		if err != nil {
			return err
		}
		m.memory.BufferCount--
		m.memory.BufferBytes -= slot.buffer.Description.ByteSize()
		slot.buffer = nil
		slot.live = false
		m.freeBuffer = append(m.freeBuffer, h.id)
		return nil
	}
	return fmt.Errorf("destroy of invalid handle")
}

func (m *Manager) Texture(h Handle) (*Texture, error) {
	slot, err := m.textureSlot(h)
	if err != nil {
		return nil, err
	}
	return slot.texture, nil
}

func (m *Manager) Buffer(h Handle) (*Buffer, error) {
	slot, err := m.bufferSlot(h)
	if err != nil {
		return nil, err
	}
	return slot.buffer, nil
}

func (m *Manager) textureSlot(h Handle) (*textureSlot, error) {
	if h.kind != KindTexture || h.id == 0 || h.id >= uint32(len(m.textures)) {
		return nil, fmt.Errorf("handle %s is not a texture", h.String())
	}
	slot := &m.textures[h.id]
	if !slot.live || slot.generation != h.generation {
		return nil, fmt.Errorf("handle %s is stale", h.String())
	}
	return slot, nil
}

func (m *Manager) bufferSlot(h Handle) (*bufferSlot, error) {
	if h.kind != KindBuffer || h.id == 0 || h.id >= uint32(len(m.buffers)) {
		return nil, fmt.Errorf("handle %s is not a buffer", h.String())
	}
	slot := &m.buffers[h.id]
	if !slot.live || slot.generation != h.generation {
		return nil, fmt.Errorf("handle %s is stale", h.String())
	}
	return slot, nil
}

func (m *Manager) QueryMemoryInfo() MemoryInfo {
	return m.memory
}

// CommandRecorder is the slice of the command-list surface mip generation
// needs. Accepting the interface here keeps the manager free of any
// dependency on a concrete command backend.
type CommandRecorder interface {
	BindPipeline(name string)
	BindConstants(name string, data interface{})
	Dispatch(x, y, z uint32)
	UAVBarrier(h Handle)
	FlushBarriers()
}

// GenerateMipmaps records a downsample dispatch per mip level.
func (m *Manager) GenerateMipmaps(list CommandRecorder, h Handle) error {
	texture, err := m.Texture(h)
	if err != nil {
		return err
	}
	levels := texture.Description.MipLevels()
	if levels <= 1 {
		return nil
	}

	list.BindPipeline("GenerateMipmaps")

	w, h32 := texture.Description.Width, texture.Description.Height
	for level := uint32(1); level < levels; level++ {
		w = max(w/2, 1)
		h32 = max(h32/2, 1)

		list.BindConstants("bindData", struct {
			Texture   uint32
			SourceMip uint32
		}{Texture: h.ID(), SourceMip: level - 1})
		list.Dispatch(math.DispatchGroups(w, 8), math.DispatchGroups(h32, 8), max(texture.Description.Depth, 1))
		list.UAVBarrier(h)
		list.FlushBarriers()
	}
	return nil
}

// Shutdown destroys every live resource. Leaks are reported since imported
// persistent resources should have been destroyed by their owning technique.
func (m *Manager) Shutdown() {
	for i := range m.textures {
		if m.textures[i].live {
			core.LogWarn("texture '%s' leaked at shutdown", m.textures[i].texture.DebugName)
			m.memory.TextureCount--
			m.memory.TextureBytes -= m.textures[i].texture.Description.ByteSize()
			m.textures[i].live = false
			m.textures[i].texture = nil
		}
	}
	for i := range m.buffers {
		if m.buffers[i].live {
			core.LogWarn("buffer '%s' leaked at shutdown", m.buffers[i].buffer.DebugName)
			m.memory.BufferCount--
			m.memory.BufferBytes -= m.buffers[i].buffer.Description.ByteSize()
			m.buffers[i].live = false
			m.buffers[i].buffer = nil
		}
	}
}
