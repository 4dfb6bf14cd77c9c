package graph

import (
	"fmt"

	dgraph "github.com/dominikbraun/graph"
	"github.com/google/uuid"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/commands"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

// RenderGraph is the per-frame pass declaration and scheduling engine.
// Techniques declare passes in arbitrary order during the build phase;
// Build resolves dependencies into an ordered, barrier-annotated schedule.
// A graph instance lives for exactly one frame.
type RenderGraph struct {
	registry *Registry
	build    uuid.UUID

	passes   []*RenderPass
	captures []historyCapture

	scheduled []*RenderPass
	built     bool
}

type historyCapture struct {
	history *History
	tag     ResourceTag
}

func New(registry *Registry) *RenderGraph {
	build := uuid.New()
	registry.beginBuild(build)
	return &RenderGraph{
		registry: registry,
		build:    build,
	}
}

// AddPass registers a new pass on the given queue and returns its builder.
// An optional enabled predicate, evaluated here at build time, excludes the
// pass and all its declared accesses from scheduling when false.
func (g *RenderGraph) AddPass(name string, queue ExecutionQueue, enabled ...bool) *RenderPass {
	core.Assertf(!g.built, "pass '%s' added to an already-built graph", name)
	isEnabled := true
	if len(enabled) > 0 {
		isEnabled = enabled[0]
	}
	pass := &RenderPass{
		graph:   g,
		name:    name,
		queue:   queue,
		enabled: isEnabled,
		index:   len(g.passes),
	}
	g.passes = append(g.passes, pass)
	return pass
}

// Import wraps an existing long-lived resource as a tag usable in this
// frame's graph. The graph borrows the resource; it never destroys it.
func (g *RenderGraph) Import(h resource.Handle) ResourceTag {
	core.Assert(!g.built, "import into an already-built graph")
	return g.registry.importResource(h)
}

// Registry exposes the resource registry backing this build.
func (g *RenderGraph) Registry() *Registry {
	return g.registry
}

// Scheduled returns the resolved execution order. Valid after Build.
func (g *RenderGraph) Scheduled() []*RenderPass {
	core.Assert(g.built, "schedule requested before Build")
	return g.scheduled
}

// Build compiles the declared passes into the final schedule: it filters
// disabled passes, resolves read-after-write, write-after-read and
// write-after-write dependencies, fixes the execution order, inserts
// cross-queue waits and state transitions, and materializes transients.
//
// Contract violations (reading a tag with no writer, cycles, stale tags)
// abort via assertion; resource exhaustion is returned as an error so the
// frame can be skipped gracefully.
func (g *RenderGraph) Build() error {
	core.Assert(!g.built, "graph built twice")

	active := make([]*RenderPass, 0, len(g.passes))
	for _, p := range g.passes {
		if p.enabled {
			active = append(active, p)
		}
	}

	for _, p := range active {
		p.validate()
	}

	edges := g.resolveDependencies(active)
	scheduled := g.schedule(active, edges)

	g.insertCrossQueueWaits(scheduled, edges)
	g.insertTransitions(scheduled)

	if err := g.registry.resolveTransients(g.liveRanges(scheduled)); err != nil {
		return fmt.Errorf("render graph build failed: %w", err)
	}

	g.resolveCaptures()

	for _, p := range scheduled {
		p.state = passScheduled
	}
	g.scheduled = scheduled
	g.built = true
	return nil
}

type edge struct {
	from int
	to   int
}

// resolveDependencies walks the active passes in declaration order and
// produces the dependency edges. Declaration order is a topological hint;
// the edges are authoritative.
func (g *RenderGraph) resolveDependencies(active []*RenderPass) map[edge]struct{} {
	edges := make(map[edge]struct{})
	lastWriter := make(map[uint32]*RenderPass)
	readersSinceWrite := make(map[uint32][]*RenderPass)
	readSinceWrite := make(map[uint32]bool)

	addEdge := func(from, to *RenderPass) {
		if from == to {
			return
		}
		edges[edge{from: from.index, to: to.index}] = struct{}{}
	}

	for _, p := range active {
		for _, rd := range p.reads {
			e := g.registry.entry(rd.tag)
			writer, hasWriter := lastWriter[rd.tag.index]
			if hasWriter {
				addEdge(writer, p)
			} else {
				// Imported resources carry externally-initialized state and
				// need no local writer.
				core.Assertf(e.imported,
					"pass '%s' reads '%s' which has no writer and is not imported", p.name, e.debugName)
			}
			readersSinceWrite[rd.tag.index] = append(readersSinceWrite[rd.tag.index], p)
			readSinceWrite[rd.tag.index] = true
		}

		for _, tag := range p.writtenTags() {
			e := g.registry.entry(tag)
			if writer, hasWriter := lastWriter[tag.index]; hasWriter {
				if !readSinceWrite[tag.index] && !e.imported {
					core.LogWarn("pass '%s' overwrites '%s' before anyone read pass '%s', last write wins",
						p.name, e.debugName, writer.name)
				}
				addEdge(writer, p)
			}
			for _, reader := range readersSinceWrite[tag.index] {
				addEdge(reader, p)
			}
			lastWriter[tag.index] = p
			readersSinceWrite[tag.index] = nil
			readSinceWrite[tag.index] = false
		}
	}

	return edges
}

// schedule computes the final execution order: a stable topological sort
// that preserves declaration order wherever dependencies allow, making two
// identical builds produce identical schedules.
func (g *RenderGraph) schedule(active []*RenderPass, edges map[edge]struct{}) []*RenderPass {
	dg := dgraph.New(func(i int) int { return i }, dgraph.Directed(), dgraph.PreventCycles())

	byIndex := make(map[int]*RenderPass, len(active))
	for _, p := range active {
		byIndex[p.index] = p
		if err := dg.AddVertex(p.index); err != nil {
			core.Assertf(false, "failed to add pass '%s' to the dependency graph: %v", p.name, err)
		}
	}
	for e := range edges {
		if err := dg.AddEdge(e.from, e.to); err != nil {
			core.Assertf(false, "cyclic dependency between passes '%s' and '%s': %v",
				byIndex[e.from].name, byIndex[e.to].name, err)
		}
	}

	order, err := dgraph.StableTopologicalSort(dg, func(a, b int) bool { return a < b })
	core.Assertf(err == nil, "failed to compute pass execution order: %v", err)

	scheduled := make([]*RenderPass, 0, len(order))
	for pos, index := range order {
		p := byIndex[index]
		p.schedulePos = pos
		scheduled = append(scheduled, p)
	}
	return scheduled
}

// insertCrossQueueWaits adds a synchronization point on every dependency
// edge that crosses queues, keeping only the latest producer per queue so
// each consumer waits at most once per foreign queue.
func (g *RenderGraph) insertCrossQueueWaits(scheduled []*RenderPass, edges map[edge]struct{}) {
	byIndex := make(map[int]*RenderPass, len(scheduled))
	for _, p := range scheduled {
		byIndex[p.index] = p
	}

	latest := make(map[*RenderPass]map[ExecutionQueue]*RenderPass)
	for e := range edges {
		producer, consumer := byIndex[e.from], byIndex[e.to]
		if producer.queue == consumer.queue {
			continue
		}
		perQueue := latest[consumer]
		if perQueue == nil {
			perQueue = make(map[ExecutionQueue]*RenderPass)
			latest[consumer] = perQueue
		}
		if current, ok := perQueue[producer.queue]; !ok || producer.schedulePos > current.schedulePos {
			perQueue[producer.queue] = producer
		}
	}

	for _, p := range scheduled {
		for queue, producer := range latest[p] {
			p.waits = append(p.waits, CrossQueueWait{Queue: queue, Pass: producer.name})
		}
	}
}

// insertTransitions tracks each resource's state across the schedule and
// records the minimal transition set per pass. Resources start in Common:
// imported resources are handed over in that state, fresh transients decay
// to it.
func (g *RenderGraph) insertTransitions(scheduled []*RenderPass) {
	states := make(map[uint32]commands.ResourceState)
	transitionTo := func(p *RenderPass, tag ResourceTag, required commands.ResourceState) {
		if states[tag.index] == required {
			return
		}
		p.barriers = append(p.barriers, transition{tag: tag, to: required})
		states[tag.index] = required
	}

	for _, p := range scheduled {
		for _, rd := range p.reads {
			transitionTo(p, rd.tag, readState(rd.bind))
		}
		for _, w := range p.writes {
			transitionTo(p, w.tag, writeState(w.bind))
		}
		for _, o := range p.outputs {
			transitionTo(p, o.tag, outputState(o.bind))
		}
	}
}

func readState(bind ResourceBind) commands.ResourceState {
	switch bind {
	case BindIndirect:
		return commands.StateIndirectArgument
	case BindCommon:
		return commands.StateCommon
	case BindDepthStencil:
		return commands.StateDepthWrite
	default:
		return commands.StateShaderResource
	}
}

// All declared writes go through unordered access; attachment writes use
// Output and get their state from the output bind.
func writeState(_ ResourceBind) commands.ResourceState {
	return commands.StateUnorderedAccess
}

func outputState(bind OutputBind) commands.ResourceState {
	if bind == OutputDepthStencil {
		return commands.StateDepthWrite
	}
	return commands.StateRenderTarget
}

func (g *RenderGraph) liveRanges(scheduled []*RenderPass) []liveRange {
	captured := make(map[uint32]bool, len(g.captures))
	for _, c := range g.captures {
		captured[c.tag.index] = true
	}

	firstUse := make(map[uint32]int)
	lastUse := make(map[uint32]int)
	var order []ResourceTag

	touch := func(tag ResourceTag, pos int) {
		if _, ok := firstUse[tag.index]; !ok {
			firstUse[tag.index] = pos
			order = append(order, tag)
		}
		lastUse[tag.index] = pos
	}

	for _, p := range scheduled {
		for _, c := range p.creates {
			touch(c, p.schedulePos)
		}
		for _, w := range p.writes {
			touch(w.tag, p.schedulePos)
		}
		for _, o := range p.outputs {
			touch(o.tag, p.schedulePos)
		}
		for _, rd := range p.reads {
			touch(rd.tag, p.schedulePos)
		}
	}

	ranges := make([]liveRange, 0, len(order))
	for _, tag := range order {
		last := lastUse[tag.index]
		if captured[tag.index] {
			last = liveForever
		}
		ranges = append(ranges, liveRange{tag: tag, first: firstUse[tag.index], last: last})
	}
	return ranges
}

// resolveCaptures rebinds each history handle to this frame's resolved
// output, pinning the new backing and returning the previous one to the
// pool. Exactly one generation of history is retained per stream.
func (g *RenderGraph) resolveCaptures() {
	for _, c := range g.captures {
		newHandle := g.registry.Handle(c.tag)
		old := c.history.handle
		g.registry.pin(newHandle)
		c.history.handle = newHandle
		if old.Valid() && old != newHandle {
			g.registry.unpin(old)
		}
	}
}
