package graph

import (
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/spaghettifunk/aurora/engine/containers"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/commands"
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

// CrossQueueWait orders a submission after a producer pass on another
// queue, guaranteeing write visibility before the consumer executes.
type CrossQueueWait struct {
	Queue ExecutionQueue
	Pass  string
}

// Submission is one pass's recorded commands, handed to the device layer
// in resolved order.
type Submission struct {
	Pass  string
	Queue ExecutionQueue
	List  *commands.Capture
	Waits []CrossQueueWait
}

// Target consumes ordered submissions. The real implementation wraps the
// GPU device; tests and headless runs use CaptureTarget.
type Target interface {
	Submit(s Submission) error
}

type ExecutorConfig struct {
	// RecordWorkers bounds the goroutines recording pass commands.
	// Default: 4.
	RecordWorkers int
	// ListPoolSize bounds the recycled command list pool. Default: 64.
	ListPoolSize int
}

// Executor walks a built graph's schedule: per pass it transitions
// resources, invokes the recording callback and submits to the pass's
// queue. Recording runs in parallel across passes; submission is strictly
// in resolved order.
type Executor struct {
	target Target
	config ExecutorConfig

	free     *containers.RingQueue[*commands.Capture]
	inFlight []*commands.Capture
}

func NewExecutor(target Target, config *ExecutorConfig) *Executor {
	cfg := ExecutorConfig{RecordWorkers: 4, ListPoolSize: 64}
	if config != nil {
		if config.RecordWorkers > 0 {
			cfg.RecordWorkers = config.RecordWorkers
		}
		if config.ListPoolSize > 0 {
			cfg.ListPoolSize = config.ListPoolSize
		}
	}
	return &Executor{
		target: target,
		config: cfg,
		free:   containers.NewRingQueue[*commands.Capture](cfg.ListPoolSize),
	}
}

// Execute runs the graph. Submitted lists stay valid until the next
// Execute call, mirroring the one-frame lifetime a frame fence would give
// them on a real device.
func (e *Executor) Execute(g *RenderGraph) error {
	core.Assert(g.built, "graph must be built before execution")

	e.recycleInFlight()

	scheduled := g.scheduled
	lists := make([]*commands.Capture, len(scheduled))
	for i := range lists {
		lists[i] = e.acquireList()
	}

	for _, p := range scheduled {
		core.Assertf(p.state == passScheduled, "pass '%s' executed twice", p.name)
		p.state = passResolved
	}

	workers := pool.New().WithMaxGoroutines(e.config.RecordWorkers).WithErrors()
	for i, p := range scheduled {
		i, p := i, p
		workers.Go(func() error {
			return e.record(g, p, lists[i])
		})
	}
	if err := workers.Wait(); err != nil {
		return fmt.Errorf("pass recording failed: %w", err)
	}

	for i, p := range scheduled {
		sub := Submission{
			Pass:  p.name,
			Queue: p.queue,
			List:  lists[i],
			Waits: p.waits,
		}
		if err := e.target.Submit(sub); err != nil {
			return fmt.Errorf("failed to submit pass '%s': %w", p.name, err)
		}
		p.state = passExecuted
	}

	e.inFlight = lists
	return nil
}

// record prepares one pass's command list: state transitions first, then
// output binding, then the pass callback.
func (e *Executor) record(g *RenderGraph, p *RenderPass, list *commands.Capture) error {
	core.Assertf(p.state == passResolved, "pass '%s' callback invoked before its resources were resolved", p.name)

	for _, t := range p.barriers {
		list.TransitionBarrier(g.registry.Handle(t.tag), t.to)
	}
	if len(p.barriers) > 0 {
		list.FlushBarriers()
	}

	if len(p.outputs) > 0 {
		var targets []resource.Handle
		var depthStencil resource.Handle
		for _, o := range p.outputs {
			h := g.registry.Handle(o.tag)
			if o.bind == OutputDepthStencil {
				depthStencil = h
			} else {
				targets = append(targets, h)
			}
		}
		list.SetRenderTargets(targets, depthStencil)
		for _, o := range p.outputs {
			if o.load == LoadClear {
				list.ClearTarget(g.registry.Handle(o.tag))
			}
		}
	}

	p.callback(list, &PassResources{registry: g.registry, pass: p})
	return nil
}

func (e *Executor) acquireList() *commands.Capture {
	if list, err := e.free.Dequeue(); err == nil {
		return list
	}
	return commands.NewCapture()
}

func (e *Executor) recycleInFlight() {
	for _, list := range e.inFlight {
		list.Reset()
		if err := e.free.Enqueue(list); err != nil {
			break
		}
	}
	e.inFlight = nil
}

// CaptureTarget collects submissions in order. Backs the headless demo and
// the scheduler tests.
type CaptureTarget struct {
	Submissions []Submission
}

func NewCaptureTarget() *CaptureTarget {
	return &CaptureTarget{}
}

func (t *CaptureTarget) Submit(s Submission) error {
	t.Submissions = append(t.Submissions, s)
	return nil
}

func (t *CaptureTarget) Reset() {
	t.Submissions = t.Submissions[:0]
}

// Find returns the submission for a pass name, or nil.
func (t *CaptureTarget) Find(pass string) *Submission {
	for i := range t.Submissions {
		if t.Submissions[i].Pass == pass {
			return &t.Submissions[i]
		}
	}
	return nil
}
