// Package benchmarks runs RV64IM programs on the out-of-order core and the
// functional emulator, checks that both retire the same state and reports
// timing results.
package benchmarks

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/rvooo/emu"
	"github.com/sarchlab/rvooo/timing/core"
)

// Memory layout shared by all benchmarks.
const (
	ProgramBase = uint64(0x1000)
	DataBase    = uint64(0x8000)
	StackTop    = uint64(0x10000)
)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the total cycle count from the core
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// InstructionsRetired is the number of committed instructions
	InstructionsRetired uint64 `json:"instructions_retired"`

	CPI float64 `json:"cpi"`
	IPC float64 `json:"ipc"`

	Dispatched uint64 `json:"dispatched"`
	Issued     uint64 `json:"issued"`

	// Dispatch stall cycles by cause
	StallROBFull        uint64 `json:"stall_rob_full"`
	StallIssueQueueFull uint64 `json:"stall_issue_queue_full"`
	StallIssuePort      uint64 `json:"stall_issue_port"`
	StallNoRegister     uint64 `json:"stall_no_register"`
	StallNoStoreID      uint64 `json:"stall_no_store_id"`
	StallNoCheckpoint   uint64 `json:"stall_no_checkpoint"`
	StallSerialize      uint64 `json:"stall_serialize"`

	// FetchStalls counts cycles the front end spent waiting on the I-cache
	// or a redirect penalty
	FetchStalls uint64 `json:"fetch_stalls"`

	// PipelineFlushes counts misprediction recoveries and exception rollbacks
	PipelineFlushes uint64 `json:"pipeline_flushes"`

	ICacheHits   uint64 `json:"icache_hits,omitempty"`
	ICacheMisses uint64 `json:"icache_misses,omitempty"`
	DCacheHits   uint64 `json:"dcache_hits,omitempty"`
	DCacheMisses uint64 `json:"dcache_misses,omitempty"`

	BranchesResolved      uint64  `json:"branches_resolved"`
	BranchMispredictions  uint64  `json:"branch_mispredictions"`
	BranchAccuracyPercent float64 `json:"branch_accuracy_percent"`

	// ExitCode is the program's exit code
	ExitCode int64 `json:"exit_code"`

	// WallTime is the actual time taken to run the core
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Setup prepares the initial register and memory state. The stack
	// pointer is already set to StackTop when it runs.
	Setup func(regFile *emu.RegFile, memory *emu.Memory)

	// Program is the RV64IM machine code, loaded at ProgramBase
	Program []byte

	// ExpectedExit is checked when non-nil
	ExpectedExit *int64

	// DataSize bytes from DataBase are compared after the run
	DataSize uint64
}

// MismatchError reports a benchmark whose core run disagrees with the
// emulator.
type MismatchError struct {
	Benchmark string
	What      string
	Diff      string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s mismatch (-emulator +core):\n%s", e.Benchmark, e.What, e.Diff)
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Core configures the out-of-order core
	Core core.Config

	// MaxCycles bounds each core run; 0 means unbounded
	MaxCycles uint64

	// Verify runs every benchmark on the emulator as well and fails on
	// any difference in retired state
	Verify bool

	// Parallelism bounds concurrent runs; 0 means GOMAXPROCS
	Parallelism int

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Logger receives one line per finished benchmark
	Logger logr.Logger
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Core:      core.DefaultConfig(),
		MaxCycles: 10_000_000,
		Verify:    true,
		Output:    os.Stdout,
		Logger:    logr.Discard(),
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
	}
	if config.Parallelism <= 0 {
		config.Parallelism = runtime.GOMAXPROCS(0)
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks concurrently and returns their results in
// the order they were added. It stops at the first failing benchmark.
func (h *Harness) RunAll(ctx context.Context) ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, len(h.benchmarks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Parallelism)

	for i, bench := range h.benchmarks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			result, err := h.Run(bench)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

type initialState struct {
	regs   emu.RegFile
	memory *emu.Memory
}

func (h *Harness) prepare(bench Benchmark) initialState {
	s := initialState{memory: emu.NewMemory()}
	s.regs.X[emu.RegSP] = StackTop

	if bench.Setup != nil {
		bench.Setup(&s.regs, s.memory)
	}

	s.memory.LoadProgram(ProgramBase, bench.Program)
	s.regs.PC = ProgramBase

	return s
}

// Run executes a single benchmark on the core and, when verification is
// enabled, on the emulator.
func (h *Harness) Run(bench Benchmark) (BenchmarkResult, error) {
	init := h.prepare(bench)

	var refMemory *emu.Memory
	if h.config.Verify {
		refMemory = init.memory.Clone()
	}

	var stdout bytes.Buffer
	opts := []core.Option{
		core.WithStdout(&stdout),
		core.WithStderr(io.Discard),
	}
	if h.config.MaxCycles > 0 {
		opts = append(opts, core.WithMaxCycles(h.config.MaxCycles))
	}

	c := core.NewCore(h.config.Core, init.memory, opts...)
	for r := uint8(1); r < 32; r++ {
		if v := init.regs.X[r]; v != 0 {
			c.SetReg(r, v)
		}
	}
	c.SetPC(init.regs.PC)

	start := time.Now()
	exitCode, err := c.Run()
	wallTime := time.Since(start)
	if err != nil {
		return BenchmarkResult{}, fmt.Errorf("%s: %w", bench.Name, err)
	}

	result := h.collect(bench, c, exitCode, wallTime)

	if bench.ExpectedExit != nil && *bench.ExpectedExit != exitCode {
		return result, &MismatchError{
			Benchmark: bench.Name,
			What:      "expected exit code",
			Diff:      cmp.Diff(*bench.ExpectedExit, exitCode),
		}
	}

	if h.config.Verify {
		if err := h.verify(bench, init, refMemory, c, stdout.Bytes()); err != nil {
			return result, err
		}
	}

	h.config.Logger.V(1).Info("benchmark finished",
		"name", result.Name,
		"cycles", result.SimulatedCycles,
		"instructions", result.InstructionsRetired,
		"cpi", result.CPI)

	return result, nil
}

func (h *Harness) verify(
	bench Benchmark,
	init initialState,
	refMemory *emu.Memory,
	c *core.Core,
	coreStdout []byte,
) error {
	var refStdout bytes.Buffer
	e := emu.NewEmulator(
		emu.WithMemory(refMemory),
		emu.WithStdout(&refStdout),
		emu.WithStderr(io.Discard),
	)
	*e.RegFile() = init.regs
	refExit := e.Run()

	mismatch := func(what, diff string) error {
		return &MismatchError{Benchmark: bench.Name, What: what, Diff: diff}
	}

	if diff := cmp.Diff(refExit, c.ExitCode()); diff != "" {
		return mismatch("exit code", diff)
	}
	if diff := cmp.Diff(*e.RegFile(), c.RegFile()); diff != "" {
		return mismatch("register", diff)
	}
	if diff := cmp.Diff(e.InstructionCount(), c.Stats().Instructions); diff != "" {
		return mismatch("instruction count", diff)
	}
	if diff := cmp.Diff(refStdout.String(), string(coreStdout)); diff != "" {
		return mismatch("stdout", diff)
	}
	if bench.DataSize > 0 {
		want := refMemory.ReadBytes(DataBase, bench.DataSize)
		got := init.memory.ReadBytes(DataBase, bench.DataSize)
		if diff := cmp.Diff(want, got); diff != "" {
			return mismatch("memory", diff)
		}
	}

	return nil
}

func (h *Harness) collect(
	bench Benchmark,
	c *core.Core,
	exitCode int64,
	wallTime time.Duration,
) BenchmarkResult {
	stats := c.Stats()
	result := BenchmarkResult{
		Name:                 bench.Name,
		Description:          bench.Description,
		SimulatedCycles:      stats.Cycles,
		InstructionsRetired:  stats.Instructions,
		CPI:                  stats.CPI(),
		IPC:                  stats.IPC(),
		Dispatched:           stats.Dispatched,
		Issued:               stats.Issued,
		StallROBFull:         stats.StallROBFull,
		StallIssueQueueFull:  stats.StallIssueQueueFull,
		StallIssuePort:       stats.StallIssuePort,
		StallNoRegister:      stats.StallNoRegister,
		StallNoStoreID:       stats.StallNoStoreID,
		StallNoCheckpoint:    stats.StallNoCheckpoint,
		StallSerialize:       stats.StallSerialize,
		FetchStalls:          c.Fetcher().Stats().StallCycles,
		PipelineFlushes:      stats.Flushes,
		BranchesResolved:     stats.BranchesResolved,
		BranchMispredictions: stats.Mispredictions,
		ExitCode:             exitCode,
		WallTime:             wallTime,
	}
	if stats.BranchesResolved > 0 {
		result.BranchAccuracyPercent = 100 - stats.MispredictRate()
	}

	if ic := c.Fetcher().ICache(); ic != nil {
		s := ic.Stats()
		result.ICacheHits = s.Hits
		result.ICacheMisses = s.Misses
	}
	if dc := c.DCache(); dc != nil {
		s := dc.Stats()
		result.DCacheHits = s.Hits
		result.DCacheMisses = s.Misses
	}

	return result
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	w := h.config.Output
	_, _ = fmt.Fprintln(w, "=== RV64 Out-of-Order Core Benchmark Results ===")
	_, _ = fmt.Fprintln(w, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(w, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(w, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(w, "  Exit Code: %d\n", r.ExitCode)
		_, _ = fmt.Fprintln(w, "  --- Timing ---")
		_, _ = fmt.Fprintf(w, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(w, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(w, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(w, "  IPC:                  %.3f\n", r.IPC)
		_, _ = fmt.Fprintf(w, "  Dispatched:           %d\n", r.Dispatched)
		_, _ = fmt.Fprintf(w, "  Issued:               %d\n", r.Issued)
		_, _ = fmt.Fprintf(w, "  Pipeline Flushes:     %d\n", r.PipelineFlushes)
		_, _ = fmt.Fprintf(w, "  Fetch Stalls:         %d\n", r.FetchStalls)

		_, _ = fmt.Fprintln(w, "  --- Dispatch Stalls ---")
		_, _ = fmt.Fprintf(w, "  ROB Full:          %d\n", r.StallROBFull)
		_, _ = fmt.Fprintf(w, "  Issue Queue Full:  %d\n", r.StallIssueQueueFull)
		_, _ = fmt.Fprintf(w, "  Issue Port:        %d\n", r.StallIssuePort)
		_, _ = fmt.Fprintf(w, "  No Register:       %d\n", r.StallNoRegister)
		_, _ = fmt.Fprintf(w, "  No Store ID:       %d\n", r.StallNoStoreID)
		_, _ = fmt.Fprintf(w, "  No Checkpoint:     %d\n", r.StallNoCheckpoint)
		_, _ = fmt.Fprintf(w, "  Serialize:         %d\n", r.StallSerialize)

		if r.ICacheHits > 0 || r.ICacheMisses > 0 {
			_, _ = fmt.Fprintln(w, "  --- I-Cache ---")
			_, _ = fmt.Fprintf(w, "  Hits:   %d\n", r.ICacheHits)
			_, _ = fmt.Fprintf(w, "  Misses: %d\n", r.ICacheMisses)
		}

		if r.DCacheHits > 0 || r.DCacheMisses > 0 {
			_, _ = fmt.Fprintln(w, "  --- D-Cache ---")
			_, _ = fmt.Fprintf(w, "  Hits:   %d\n", r.DCacheHits)
			_, _ = fmt.Fprintf(w, "  Misses: %d\n", r.DCacheMisses)
		}

		if r.BranchesResolved > 0 {
			_, _ = fmt.Fprintln(w, "  --- Branches ---")
			_, _ = fmt.Fprintf(w, "  Resolved:        %d\n", r.BranchesResolved)
			_, _ = fmt.Fprintf(w, "  Mispredictions:  %d\n", r.BranchMispredictions)
			_, _ = fmt.Fprintf(w, "  Accuracy:        %.1f%%\n", r.BranchAccuracyPercent)
		}

		_, _ = fmt.Fprintf(w, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(w, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,instructions,cpi,ipc,flushes,fetch_stalls,branches,mispredictions,icache_hits,icache_misses,dcache_hits,dcache_misses,exit_code")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%.3f,%d,%d,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.CPI,
			r.IPC,
			r.PipelineFlushes,
			r.FetchStalls,
			r.BranchesResolved,
			r.BranchMispredictions,
			r.ICacheHits,
			r.ICacheMisses,
			r.DCacheHits,
			r.DCacheMisses,
			r.ExitCode,
		)
	}
}

// PrintJSON outputs benchmark results as an indented JSON array.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	enc := json.NewEncoder(h.config.Output)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// BuildProgram assembles instruction words into a little-endian byte slice.
func BuildProgram(words ...uint32) []byte {
	program := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(program[4*i:], w)
	}
	return program
}

func exitCode(v int64) *int64 {
	return &v
}
