package commands

import (
	"github.com/spaghettifunk/aurora/engine/renderer/resource"
)

type Op uint8

const (
	OpBindPipeline Op = iota
	OpBindConstants
	OpDispatch
	OpDrawFullscreenQuad
	OpDrawIndirect
	OpDispatchIndirect
	OpCopy
	OpSetRenderTargets
	OpClearTarget
	OpUAVBarrier
	OpTransitionBarrier
	OpFlushBarriers
)

// Command is one recorded entry. Which fields are meaningful depends on Op.
type Command struct {
	Op Op

	Pipeline      string
	ConstantsName string
	Constants     interface{}

	X, Y, Z uint32

	Destination resource.Handle
	Source      resource.Handle

	Targets      []resource.Handle
	DepthStencil resource.Handle

	Resource resource.Handle
	State    ResourceState
}

// Capture is a List that records into memory. It backs the headless target
// and every graph test; a device backend would replay or translate it.
type Capture struct {
	Commands []Command

	pendingBarriers int
}

func NewCapture() *Capture {
	return &Capture{}
}

// Reset clears the recording so the list can be recycled.
func (c *Capture) Reset() {
	c.Commands = c.Commands[:0]
	c.pendingBarriers = 0
}

func (c *Capture) BindPipeline(name string) {
	c.Commands = append(c.Commands, Command{Op: OpBindPipeline, Pipeline: name})
}

func (c *Capture) BindConstants(name string, data interface{}) {
	c.Commands = append(c.Commands, Command{Op: OpBindConstants, ConstantsName: name, Constants: data})
}

func (c *Capture) Dispatch(x, y, z uint32) {
	c.Commands = append(c.Commands, Command{Op: OpDispatch, X: x, Y: y, Z: z})
}

func (c *Capture) DrawFullscreenQuad() {
	c.Commands = append(c.Commands, Command{Op: OpDrawFullscreenQuad})
}

func (c *Capture) DrawIndirect(arguments resource.Handle, maxDraws uint32) {
	c.Commands = append(c.Commands, Command{Op: OpDrawIndirect, Resource: arguments, X: maxDraws})
}

func (c *Capture) DispatchIndirect(arguments resource.Handle) {
	c.Commands = append(c.Commands, Command{Op: OpDispatchIndirect, Resource: arguments})
}

func (c *Capture) Copy(destination, source resource.Handle) {
	c.Commands = append(c.Commands, Command{Op: OpCopy, Destination: destination, Source: source})
}

func (c *Capture) SetRenderTargets(targets []resource.Handle, depthStencil resource.Handle) {
	c.Commands = append(c.Commands, Command{Op: OpSetRenderTargets, Targets: targets, DepthStencil: depthStencil})
}

func (c *Capture) ClearTarget(target resource.Handle) {
	c.Commands = append(c.Commands, Command{Op: OpClearTarget, Resource: target})
}

func (c *Capture) UAVBarrier(h resource.Handle) {
	c.pendingBarriers++
	c.Commands = append(c.Commands, Command{Op: OpUAVBarrier, Resource: h})
}

func (c *Capture) TransitionBarrier(h resource.Handle, to ResourceState) {
	c.pendingBarriers++
	c.Commands = append(c.Commands, Command{Op: OpTransitionBarrier, Resource: h, State: to})
}

func (c *Capture) FlushBarriers() {
	c.pendingBarriers = 0
	c.Commands = append(c.Commands, Command{Op: OpFlushBarriers})
}

// Transitions returns the recorded state transitions, for inspection.
func (c *Capture) Transitions() []Command {
	var out []Command
	for _, cmd := range c.Commands {
		if cmd.Op == OpTransitionBarrier {
			out = append(out, cmd)
		}
	}
	return out
}
