package graph

import (
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/commands"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

type passState uint8

const (
	passDeclared passState = iota
	passScheduled
	passResolved
	passExecuted
)

type resourceAccess struct {
	tag  ResourceTag
	bind ResourceBind
}

type outputAccess struct {
	tag  ResourceTag
	bind OutputBind
	load LoadPolicy
}

type transition struct {
	tag ResourceTag
	to  commands.ResourceState
}

// PassCallback records the pass's GPU work. It runs once scheduling is
// finalized, against resolved concrete handles. Callbacks must not touch
// state they do not own; everything they need arrives through the list and
// the resources accessor.
type PassCallback func(list commands.List, resources *PassResources)

// RenderPass is the mutable builder returned by RenderGraph.AddPass.
// Declarations are only valid during the graph's build phase.
type RenderPass struct {
	graph   *RenderGraph
	name    string
	queue   ExecutionQueue
	enabled bool
	index   int

	state    passState
	reads    []resourceAccess
	writes   []resourceAccess
	outputs  []outputAccess
	creates  []ResourceTag
	callback PassCallback

	// Filled during scheduling.
	schedulePos int
	barriers    []transition
	waits       []CrossQueueWait
}

func (p *RenderPass) Name() string {
	return p.name
}

func (p *RenderPass) Queue() ExecutionQueue {
	return p.queue
}

// Create allocates a new logical transient texture scoped to this frame's
// graph. The pass counts as its first writer.
func (p *RenderPass) Create(description TransientTextureDescription, debugName string) ResourceTag {
	p.assertDeclaring()
	tag := p.graph.registry.createTexture(description, debugName)
	p.creates = append(p.creates, tag)
	return tag
}

// CreateBuffer allocates a new logical transient buffer scoped to this
// frame's graph.
func (p *RenderPass) CreateBuffer(description TransientBufferDescription, debugName string) ResourceTag {
	p.assertDeclaring()
	tag := p.graph.registry.createBuffer(description, debugName)
	p.creates = append(p.creates, tag)
	return tag
}

// Read declares a dependency edge from the last writer of tag to this pass.
func (p *RenderPass) Read(tag ResourceTag, bind ResourceBind) {
	p.assertDeclaring()
	core.Assertf(tag.Valid(), "pass '%s' reads an invalid tag", p.name)
	p.reads = append(p.reads, resourceAccess{tag: tag, bind: bind})
}

// Write declares this pass as the new writer of tag.
func (p *RenderPass) Write(tag ResourceTag, bind ResourceBind) {
	p.assertDeclaring()
	core.Assertf(tag.Valid(), "pass '%s' writes an invalid tag", p.name)
	p.writes = append(p.writes, resourceAccess{tag: tag, bind: bind})
}

// Output declares tag as an attachment written by this pass. The load
// policy determines whether prior contents are retained going in.
func (p *RenderPass) Output(tag ResourceTag, bind OutputBind, load LoadPolicy) {
	p.assertDeclaring()
	core.Assertf(tag.Valid(), "pass '%s' outputs an invalid tag", p.name)
	p.outputs = append(p.outputs, outputAccess{tag: tag, bind: bind, load: load})
}

// Bind attaches the command-recording callback.
func (p *RenderPass) Bind(callback PassCallback) {
	p.assertDeclaring()
	p.callback = callback
}

func (p *RenderPass) assertDeclaring() {
	core.Assertf(p.state == passDeclared, "pass '%s' mutated after scheduling", p.name)
	core.Assertf(!p.graph.built, "pass '%s' declared against an already-built graph", p.name)
}

// validate checks the conditions that must hold after a pass's setup is
// complete. Violations are programming errors in the declaring technique.
func (p *RenderPass) validate() {
	core.Assertf(p.callback != nil, "pass validation failed in '%s': render passes must have a Bind()'ing set", p.name)

	written := make(map[ResourceTag]struct{}, len(p.writes)+len(p.outputs))
	for _, w := range p.writes {
		written[w.tag] = struct{}{}
	}
	for _, o := range p.outputs {
		written[o.tag] = struct{}{}
	}
	for _, r := range p.reads {
		_, overlap := written[r.tag]
		core.Assertf(!overlap, "pass validation failed in '%s': cannot read and write a single resource", p.name)
	}

	created := make(map[ResourceTag]struct{}, len(p.creates))
	for _, c := range p.creates {
		created[c] = struct{}{}
	}
	for _, r := range p.reads {
		_, overlap := created[r.tag]
		core.Assertf(!overlap, "pass validation failed in '%s': cannot read resources created in the same pass", p.name)
	}

	depthStencilCount := 0
	for _, o := range p.outputs {
		if o.bind == OutputDepthStencil {
			depthStencilCount++
		}
	}
	core.Assertf(depthStencilCount <= 1, "pass validation failed in '%s': cannot have more than one depth stencil output", p.name)
}

// writtenTags returns every tag this pass writes, outputs or creates,
// deduplicated, in declaration order.
func (p *RenderPass) writtenTags() []ResourceTag {
	seen := make(map[ResourceTag]struct{}, len(p.writes)+len(p.outputs)+len(p.creates))
	var out []ResourceTag
	add := func(tag ResourceTag) {
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	for _, c := range p.creates {
		add(c)
	}
	for _, w := range p.writes {
		add(w.tag)
	}
	for _, o := range p.outputs {
		add(o.tag)
	}
	return out
}

// PassResources resolves tags into concrete resources for a pass callback.
type PassResources struct {
	registry *Registry
	pass     *RenderPass
}

// Get returns the bindless descriptor index for the resource.
func (r *PassResources) Get(tag ResourceTag) uint32 {
	r.assertAccess(tag)
	return r.registry.Handle(tag).ID()
}

// GetTexture returns the concrete texture handle behind the tag.
func (r *PassResources) GetTexture(tag ResourceTag) resource.Handle {
	r.assertAccess(tag)
	h := r.registry.Handle(tag)
	core.Assertf(h.Kind() == resource.KindTexture, "pass '%s': tag does not resolve to a texture", r.pass.name)
	return h
}

// GetBuffer returns the concrete buffer handle behind the tag.
func (r *PassResources) GetBuffer(tag ResourceTag) resource.Handle {
	r.assertAccess(tag)
	h := r.registry.Handle(tag)
	core.Assertf(h.Kind() == resource.KindBuffer, "pass '%s': tag does not resolve to a buffer", r.pass.name)
	return h
}

// Texture returns the full texture object, for callbacks that need the
// resolved dimensions (dispatch sizing).
func (r *PassResources) Texture(tag ResourceTag) *resource.Texture {
	r.assertAccess(tag)
	texture, err := r.registry.Texture(tag)
	core.Assertf(err == nil, "pass '%s': %v", r.pass.name, err)
	return texture
}

func (r *PassResources) assertAccess(tag ResourceTag) {
	for _, a := range r.pass.reads {
		if a.tag == tag {
			return
		}
	}
	for _, a := range r.pass.writes {
		if a.tag == tag {
			return
		}
	}
	for _, o := range r.pass.outputs {
		if o.tag == tag {
			return
		}
	}
	for _, c := range r.pass.creates {
		if c == tag {
			return
		}
	}
	core.Assertf(false, "pass '%s' resolves a tag it never declared", r.pass.name)
}
