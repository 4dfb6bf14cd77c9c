package graph

import (
	"fmt"
	stdmath "math"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/math"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

const aliasingCvar = "rg.transientAliasing"

type registryEntry struct {
	imported  bool
	handle    resource.Handle
	texture   *TransientTextureDescription
	buffer    *TransientBufferDescription
	debugName string
	resolved  bool
}

// poolEntry is one backing resource in the transient pool. Entries are
// recycled across frames and, when aliasing is enabled, shared within a
// frame between tags whose live ranges do not overlap.
type poolEntry struct {
	handle resource.Handle
	key    uint64

	pinned        bool
	usedThisFrame bool
	busyUntil     int
}

// Registry is the single source of truth mapping ResourceTag to concrete
// backing resources for the current frame. It is exclusively owned and
// mutated by the render graph during one frame's build+execute cycle.
type Registry struct {
	manager *resource.Manager
	cvars   *config.CvarStore

	outputWidth  uint32
	outputHeight uint32

	pool []*poolEntry

	build   uuid.UUID
	entries []*registryEntry
}

func NewRegistry(manager *resource.Manager, cvars *config.CvarStore) *Registry {
	cvars.RegisterBool(aliasingCvar, "Controls transient resource memory aliasing, an optimization only", true)
	return &Registry{
		manager: manager,
		cvars:   cvars,
	}
}

// SetResolution records the authoritative output resolution used to resolve
// relative-size transients. Must be called before the first build that
// creates a dimension-dependent resource.
func (r *Registry) SetResolution(width, height uint32) {
	r.outputWidth = width
	r.outputHeight = height
}

func (r *Registry) Resolution() (uint32, uint32) {
	return r.outputWidth, r.outputHeight
}

func (r *Registry) Manager() *resource.Manager {
	return r.manager
}

// beginBuild resets the per-frame tag table. Tags handed out by a previous
// build become invalid here.
func (r *Registry) beginBuild(build uuid.UUID) {
	r.build = build
	r.entries = r.entries[:0]
}

func (r *Registry) importResource(h resource.Handle) ResourceTag {
	core.Assert(h.Valid(), "cannot import an invalid resource handle")
	return r.addEntry(&registryEntry{imported: true, handle: h, resolved: true})
}

func (r *Registry) createTexture(description TransientTextureDescription, debugName string) ResourceTag {
	desc := description
	return r.addEntry(&registryEntry{texture: &desc, debugName: debugName})
}

func (r *Registry) createBuffer(description TransientBufferDescription, debugName string) ResourceTag {
	desc := description
	return r.addEntry(&registryEntry{buffer: &desc, debugName: debugName})
}

func (r *Registry) addEntry(e *registryEntry) ResourceTag {
	r.entries = append(r.entries, e)
	return ResourceTag{index: uint32(len(r.entries) - 1), build: r.build}
}

func (r *Registry) entry(tag ResourceTag) *registryEntry {
	core.Assert(tag.Valid(), "use of the invalid sentinel tag")
	core.Assertf(tag.build == r.build, "tag %d used outside the graph build that produced it", tag.index)
	core.Assertf(int(tag.index) < len(r.entries), "tag %d out of range", tag.index)
	return r.entries[tag.index]
}

// Handle returns the concrete handle behind a tag. Valid only once the
// graph has finalized resolution for that tag.
func (r *Registry) Handle(tag ResourceTag) resource.Handle {
	e := r.entry(tag)
	core.Assertf(e.resolved, "tag %d ('%s') resolved before the graph was built", tag.index, e.debugName)
	return e.handle
}

func (r *Registry) Texture(tag ResourceTag) (*resource.Texture, error) {
	return r.manager.Texture(r.Handle(tag))
}

func (r *Registry) Buffer(tag ResourceTag) (*resource.Buffer, error) {
	return r.manager.Buffer(r.Handle(tag))
}

// liveRange spans from a transient's first writer to its last reader in
// scheduled order. Captured history resources extend past the frame.
type liveRange struct {
	tag   ResourceTag
	first int
	last  int
}

// resolveTransients materializes every transient used this frame, reusing
// pooled backings across frames and aliasing within the frame when enabled.
// Ranges must arrive ordered by first use.
func (r *Registry) resolveTransients(ranges []liveRange) error {
	aliasing := r.cvars.Bool(aliasingCvar)

	for _, pe := range r.pool {
		pe.usedThisFrame = false
		pe.busyUntil = -1
	}

	for _, lr := range ranges {
		e := r.entry(lr.tag)
		if e.imported || e.resolved {
			continue
		}

		var (
			key    uint64
			create func() (resource.Handle, error)
		)
		switch {
		case e.texture != nil:
			concrete, err := r.concreteTexture(*e.texture, e.debugName)
			if err != nil {
				return err
			}
			key = hashTextureDescription(concrete)
			create = func() (resource.Handle, error) {
				return r.manager.CreateTexture(concrete, e.debugName)
			}
		case e.buffer != nil:
			concrete := concreteBuffer(*e.buffer)
			key = hashBufferDescription(concrete)
			create = func() (resource.Handle, error) {
				return r.manager.CreateBuffer(concrete, e.debugName)
			}
		default:
			core.Assertf(false, "transient '%s' has no description", e.debugName)
		}

		pe := r.findPooled(key, lr.first, aliasing)
		if pe == nil {
			handle, err := create()
			if err != nil {
				return fmt.Errorf("failed to materialize transient '%s': %w", e.debugName, err)
			}
			pe = &poolEntry{handle: handle, key: key}
			r.pool = append(r.pool, pe)
		}
		pe.usedThisFrame = true
		pe.busyUntil = lr.last

		e.handle = pe.handle
		e.resolved = true
	}
	return nil
}

func (r *Registry) findPooled(key uint64, first int, aliasing bool) *poolEntry {
	for _, pe := range r.pool {
		if pe.key != key || pe.pinned {
			continue
		}
		if !pe.usedThisFrame {
			return pe
		}
		// Schedule positions are global across both queues and the executor
		// submits in that single order, so a backing whose last use ends
		// before the next first use cannot overlap even when the two tags
		// live on different queues. A device that ran the queues out of
		// order would need a dependency-path check here instead.
		if aliasing && pe.busyUntil < first {
			return pe
		}
	}
	return nil
}

// concreteTexture resolves relative dimensions against the output
// resolution, exactly once per frame per tag.
func (r *Registry) concreteTexture(d TransientTextureDescription, debugName string) (resource.TextureDescription, error) {
	width, height := d.Width, d.Height
	if width == 0 || height == 0 {
		if r.outputWidth == 0 || r.outputHeight == 0 {
			return resource.TextureDescription{}, fmt.Errorf("transient '%s' is resolution-relative: %w", debugName, core.ErrResolutionUnknown)
		}
		scale := d.ResolutionScale
		if scale == 0 {
			scale = 1
		}
		width = math.ScaleDimension(r.outputWidth, scale)
		height = math.ScaleDimension(r.outputHeight, scale)
	}

	bindFlags := resource.BindShaderResource | resource.BindUnorderedAccess | resource.BindRenderTarget
	if d.Format == resource.FormatD24S8 {
		bindFlags = resource.BindShaderResource | resource.BindDepthStencil
	}

	return resource.TextureDescription{
		Width:      width,
		Height:     height,
		Depth:      max(d.Depth, 1),
		Format:     d.Format,
		MipMapping: d.MipMapping,
		BindFlags:  bindFlags,
	}, nil
}

func concreteBuffer(d TransientBufferDescription) resource.BufferDescription {
	return resource.BufferDescription{
		Size:       d.Size,
		Stride:     d.Stride,
		UAVCounter: d.UAVCounter,
		BindFlags:  resource.BindShaderResource | resource.BindUnorderedAccess,
	}
}

func hashTextureDescription(d resource.TextureDescription) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("tex:%d:%d:%d:%d:%t", d.Width, d.Height, d.Depth, d.Format, d.MipMapping))
}

func hashBufferDescription(d resource.BufferDescription) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("buf:%d:%d:%t", d.Size, d.Stride, d.UAVCounter))
}

// pin keeps a transient's backing out of the pool across frames. Used by
// the history mechanism; a pinned resource is never handed to another tag.
func (r *Registry) pin(h resource.Handle) {
	for _, pe := range r.pool {
		if pe.handle == h {
			pe.pinned = true
			return
		}
	}
	core.Assertf(false, "pin of %s which is not a pooled transient", h.String())
}

func (r *Registry) unpin(h resource.Handle) {
	for _, pe := range r.pool {
		if pe.handle == h {
			pe.pinned = false
			return
		}
	}
}

// DiscardTransients drops the transient pool, destroying every unpinned
// backing resource. Called when the output resolution changes.
func (r *Registry) DiscardTransients() {
	kept := r.pool[:0]
	discarded := 0
	for _, pe := range r.pool {
		if pe.pinned {
			kept = append(kept, pe)
			continue
		}
		if err := r.manager.Destroy(pe.handle); err != nil {
			core.LogError("failed to discard transient: %s", err.Error())
		}
		discarded++
	}
	r.pool = kept
	core.LogDebug("discarded %d pooled transient resources", discarded)
}

const liveForever = stdmath.MaxInt
