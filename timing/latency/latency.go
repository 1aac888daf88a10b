// Package latency provides execution latencies for the timing model.
//
// The latencies are configured via TimingConfig and looked up per decoded
// instruction through a Table.
package latency

import (
	"github.com/sarchlab/rvooo/insts"
)

// Table provides instruction latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// GetLatency returns the execution latency in cycles for the given
// instruction, never less than 1.
func (t *Table) GetLatency(inst *insts.Instruction) uint64 {
	if inst == nil {
		return 1
	}

	var l uint64
	switch inst.Class {
	case insts.ClassALU:
		l = t.config.ALULatency
	case insts.ClassBranch, insts.ClassJump:
		l = t.config.BranchLatency
	case insts.ClassLoad:
		l = t.config.LoadLatency
	case insts.ClassStore:
		l = t.config.StoreLatency
	case insts.ClassMulDiv:
		if isDivide(inst.Op) {
			l = t.config.DivideLatency
		} else {
			l = t.config.MultiplyLatency
		}
	case insts.ClassSystem, insts.ClassFence:
		l = t.config.SystemLatency
	}

	if l == 0 {
		return 1
	}
	return l
}

// MispredictPenalty returns the front-end bubble after a redirect.
func (t *Table) MispredictPenalty() uint64 {
	return t.config.BranchMispredictPenalty
}

func isDivide(op insts.Op) bool {
	switch op {
	case insts.OpDIV, insts.OpDIVU, insts.OpREM, insts.OpREMU,
		insts.OpDIVW, insts.OpDIVUW, insts.OpREMW, insts.OpREMUW:
		return true
	}
	return false
}

// Config returns the timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
