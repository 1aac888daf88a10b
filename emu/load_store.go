package emu

import "github.com/sarchlab/rvooo/insts"

// ExtendLoad sign- or zero-extends the raw bytes returned by a load to 64
// bits according to the load's width and signedness.
func ExtendLoad(op insts.Op, raw uint64) uint64 {
	switch op {
	case insts.OpLB:
		return uint64(int64(int8(raw)))
	case insts.OpLH:
		return uint64(int64(int16(raw)))
	case insts.OpLW:
		return uint64(int64(int32(raw)))
	case insts.OpLBU:
		return raw & 0xFF
	case insts.OpLHU:
		return raw & 0xFFFF
	case insts.OpLWU:
		return raw & 0xFFFFFFFF
	default:
		return raw
	}
}

// LoadStoreUnit performs RV64 loads and stores against a memory.
type LoadStoreUnit struct {
	memory *Memory
}

// NewLoadStoreUnit creates a new LoadStoreUnit connected to the given
// memory.
func NewLoadStoreUnit(memory *Memory) *LoadStoreUnit {
	return &LoadStoreUnit{memory: memory}
}

// Load reads the value a load instruction produces from addr.
func (lsu *LoadStoreUnit) Load(inst *insts.Instruction, addr uint64) uint64 {
	raw := lsu.memory.Read(addr, inst.MemSize())
	return ExtendLoad(inst.Op, raw)
}

// Store writes the low bytes of value at addr according to the store width.
func (lsu *LoadStoreUnit) Store(inst *insts.Instruction, addr, value uint64) {
	lsu.memory.Write(addr, inst.MemSize(), value)
}
