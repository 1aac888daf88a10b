package core

import (
	"github.com/sarchlab/akita/v4/sim"
)

// Component runs a Core as an akita ticking component, one core cycle per
// component tick.
type Component struct {
	*sim.TickingComponent

	core *Core
}

// NewComponent wraps c in a component clocked at the core's configured
// frequency.
func NewComponent(name string, engine sim.Engine, c *Core) *Component {
	comp := &Component{core: c}
	freq := sim.Freq(c.cfg.FrequencyGHz) * sim.GHz
	comp.TickingComponent = sim.NewTickingComponent(name, engine, freq, comp)
	return comp
}

// Core returns the wrapped core.
func (comp *Component) Core() *Core {
	return comp.core
}

// Tick advances the core by one cycle. It reports no progress once the core
// has halted or reached its cycle limit, which lets the engine run out of
// events.
func (comp *Component) Tick() bool {
	if comp.core.Halted() || comp.core.cycleLimitReached() {
		return false
	}
	comp.core.Tick()
	return true
}

// RunWithEngine runs c on a serial akita engine until it halts and returns
// the simulated time in seconds.
func RunWithEngine(c *Core) (sim.VTimeInSec, error) {
	engine := sim.NewSerialEngine()
	comp := NewComponent("Core", engine, c)
	comp.TickLater()

	if err := engine.Run(); err != nil {
		return engine.CurrentTime(), err
	}
	if !c.Halted() {
		return engine.CurrentTime(), ErrMaxCycles
	}
	return engine.CurrentTime(), c.Err()
}
