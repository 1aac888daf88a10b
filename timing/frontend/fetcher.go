// Package frontend provides the fetch stage of the timing model: a bimodal
// branch predictor with a BTB and a fetcher that decodes along the predicted
// path.
package frontend

import (
	"fmt"

	"github.com/sarchlab/rvooo/emu"
	"github.com/sarchlab/rvooo/insts"
	"github.com/sarchlab/rvooo/timing/cache"
)

// FetcherConfig sizes the fetch stage.
type FetcherConfig struct {
	// Width is the maximum number of instructions fetched per cycle.
	Width int `json:"width" yaml:"width"`
	// QueueSize bounds the decoded instructions waiting for dispatch.
	QueueSize int `json:"queue_size" yaml:"queue_size"`
	// ICache configures the instruction cache. A zero size disables it.
	ICache cache.Config `json:"icache" yaml:"icache"`
}

// DefaultFetcherConfig returns a 4-wide fetcher with a 16-entry queue and the
// default instruction cache.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Width:     4,
		QueueSize: 16,
		ICache:    cache.DefaultL1IConfig(),
	}
}

// Validate checks the fetcher configuration.
func (c FetcherConfig) Validate() error {
	if c.Width < 1 {
		return fmt.Errorf("width must be > 0")
	}
	if c.QueueSize < c.Width {
		return fmt.Errorf("queue_size must be >= width")
	}
	if err := c.ICache.Validate(); err != nil {
		return fmt.Errorf("icache: %w", err)
	}
	return nil
}

// Fetched is one instruction delivered to dispatch.
type Fetched struct {
	PC   uint64
	Word uint32

	// Inst is nil when the word failed to decode; Err then holds the
	// *insts.DecodeError.
	Inst *insts.Instruction
	Err  error

	// PredictedNext is the PC the fetcher continued from.
	PredictedNext uint64
}

// FetcherStats holds fetch statistics.
type FetcherStats struct {
	Fetched     uint64
	Redirects   uint64
	StallCycles uint64
}

// Fetcher reads, decodes and predicts instructions into a queue.
type Fetcher struct {
	cfg       FetcherConfig
	memory    *emu.Memory
	decoder   *insts.Decoder
	predictor *BranchPredictor
	icache    *cache.Cache

	pc      uint64
	stall   uint64
	blocked bool
	queue   []Fetched

	stats FetcherStats
}

// NewFetcher creates a fetcher reading instructions from memory. It panics
// on an invalid configuration.
func NewFetcher(cfg FetcherConfig, memory *emu.Memory, predictor *BranchPredictor) *Fetcher {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("frontend: invalid fetcher config: %v", err))
	}

	f := &Fetcher{
		cfg:       cfg,
		memory:    memory,
		decoder:   insts.NewDecoder(),
		predictor: predictor,
		queue:     make([]Fetched, 0, cfg.QueueSize),
	}
	if cfg.ICache.Enabled() {
		f.icache = cache.New(cfg.ICache)
	}

	return f
}

// SetPC points the fetcher at pc without a redirect penalty.
func (f *Fetcher) SetPC(pc uint64) {
	f.pc = pc
	f.blocked = false
	f.queue = f.queue[:0]
}

// PC returns the next fetch address.
func (f *Fetcher) PC() uint64 {
	return f.pc
}

// Predictor returns the branch predictor.
func (f *Fetcher) Predictor() *BranchPredictor {
	return f.predictor
}

// ICache returns the instruction cache, or nil when disabled.
func (f *Fetcher) ICache() *cache.Cache {
	return f.icache
}

// Stats returns fetch statistics.
func (f *Fetcher) Stats() FetcherStats {
	return f.stats
}

// Len returns the number of queued instructions.
func (f *Fetcher) Len() int {
	return len(f.queue)
}

// Peek returns the oldest queued instruction.
func (f *Fetcher) Peek() (Fetched, bool) {
	if len(f.queue) == 0 {
		return Fetched{}, false
	}
	return f.queue[0], true
}

// Pop removes the oldest queued instruction.
func (f *Fetcher) Pop() {
	if len(f.queue) == 0 {
		panic("frontend: pop from empty fetch queue")
	}
	f.queue = f.queue[1:]
}

// Redirect drops every queued instruction and restarts fetch at pc after
// penalty bubble cycles.
func (f *Fetcher) Redirect(pc, penalty uint64) {
	f.queue = f.queue[:0]
	f.pc = pc
	f.stall = penalty
	f.blocked = false
	f.stats.Redirects++
}

// Tick fetches up to Width instructions. A fetch group ends after a
// predicted-taken control transfer, at an instruction cache miss, or at a
// word that does not decode. After an undecodable word fetch stops until the
// next redirect.
func (f *Fetcher) Tick() {
	if f.stall > 0 {
		f.stall--
		f.stats.StallCycles++
		return
	}
	if f.blocked {
		return
	}

	for n := 0; n < f.cfg.Width && len(f.queue) < f.cfg.QueueSize; n++ {
		pc := f.pc

		if f.icache != nil && (n == 0 || pc%uint64(f.cfg.ICache.BlockSize) == 0) {
			if res := f.icache.Read(pc); !res.Hit {
				f.stall = res.Penalty
				return
			}
		}

		word := f.memory.Read32(pc)
		inst, err := f.decoder.Decode(word)
		if err != nil {
			f.queue = append(f.queue, Fetched{PC: pc, Word: word, Err: err})
			f.stats.Fetched++
			f.blocked = true
			return
		}

		next := f.predict(inst, pc)
		f.queue = append(f.queue, Fetched{PC: pc, Word: word, Inst: inst, PredictedNext: next})
		f.stats.Fetched++
		f.pc = next

		if next != pc+4 {
			return
		}
	}
}

func (f *Fetcher) predict(inst *insts.Instruction, pc uint64) uint64 {
	switch {
	case inst.Op == insts.OpJAL:
		return pc + uint64(inst.Imm)
	case inst.Op == insts.OpJALR:
		if p := f.predictor.Predict(pc); p.TargetKnown {
			return p.Target
		}
	case inst.Class == insts.ClassBranch:
		if f.predictor.Predict(pc).Taken {
			return pc + uint64(inst.Imm)
		}
	}
	return pc + 4
}
