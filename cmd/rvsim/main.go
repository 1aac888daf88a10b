// Package main provides the entry point for rvsim, a functional and
// cycle-level simulator for RV64IM programs.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/pprof"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvooo/emu"
	"github.com/sarchlab/rvooo/loader"
	"github.com/sarchlab/rvooo/timing/core"
	"github.com/sarchlab/rvooo/timing/latency"
	"github.com/sarchlab/rvooo/timing/trace"
)

var (
	timing      = flag.Bool("timing", false, "Enable timing simulation mode")
	configPath  = flag.String("config", "", "Path to core configuration JSON or YAML file")
	latencyPath = flag.String("latency", "", "Path to latency configuration JSON or YAML file")
	useEngine   = flag.Bool("engine", false, "Run the core as an akita component on a serial engine")
	maxCycles   = flag.Uint64("max-cycles", 0, "Stop the timing simulation after this many cycles (0 = unlimited)")
	traceLevel  = flag.Int("trace", 0, "Pipeline trace verbosity (1 = recoveries, 2 = retirements, 3 = everything)")
	verbose     = flag.Bool("v", false, "Verbose output")
	cpuProfile  = flag.String("cpuprofile", "", "Write a CPU profile to file")
	memProfile  = flag.String("memprofile", "", "Write a heap profile to file")
)

// options are the parsed command line settings for one run.
type options struct {
	config     core.Config
	useEngine  bool
	maxCycles  uint64
	traceLevel int
	verbose    bool

	stdout io.Writer
	stderr io.Writer
}

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: rvsim [options] <program.elf>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		return 1
	}

	programPath := flag.Arg(0)

	prog, err := loader.Load(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		return 1
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", programPath)
		fmt.Printf("Entry point: 0x%X\n", prog.EntryPoint)
		fmt.Printf("Segments: %d\n", len(prog.Segments))
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}
	defer writeHeapProfile()

	if !*timing {
		return int(runEmulation(prog, os.Stdout, os.Stderr, *verbose))
	}

	opts, err := parseOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	exitCode, err := runTiming(prog, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Simulation error: %v\n", err)
		return 1
	}
	return int(exitCode)
}

func writeHeapProfile() {
	if *memProfile == "" {
		return
	}

	f, err := os.Create(*memProfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
		return
	}
	defer func() { _ = f.Close() }()

	if err := pprof.WriteHeapProfile(f); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
	}
}

func parseOptions() (options, error) {
	opts := options{
		config:     core.DefaultConfig(),
		useEngine:  *useEngine,
		maxCycles:  *maxCycles,
		traceLevel: *traceLevel,
		verbose:    *verbose,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}

	if *configPath != "" {
		cfg, err := core.LoadConfig(*configPath)
		if err != nil {
			return opts, err
		}
		opts.config = *cfg
	}

	if *latencyPath != "" {
		lat, err := latency.LoadConfig(*latencyPath)
		if err != nil {
			return opts, err
		}
		opts.config.Latency = *lat
	}

	return opts, opts.config.Validate()
}

// runEmulation runs the program in functional emulation mode.
func runEmulation(prog *loader.Program, stdout, stderr io.Writer, verbose bool) int64 {
	memory := emu.NewMemory()
	prog.LoadInto(memory)

	emulator := emu.NewEmulator(
		emu.WithMemory(memory),
		emu.WithStdout(stdout),
		emu.WithStderr(stderr),
		emu.WithStackPointer(prog.InitialSP),
	)
	emulator.RegFile().PC = prog.EntryPoint

	exitCode := emulator.Run()

	if verbose {
		_, _ = fmt.Fprintf(stdout, "\nExit code: %d\n", exitCode)
		_, _ = fmt.Fprintf(stdout, "Instructions executed: %d\n", emulator.InstructionCount())
	}

	return exitCode
}

// runTiming runs the program on the out-of-order core.
func runTiming(prog *loader.Program, opts options) (int64, error) {
	memory := emu.NewMemory()
	prog.LoadInto(memory)

	coreOpts := []core.Option{
		core.WithStdout(opts.stdout),
		core.WithStderr(opts.stderr),
	}
	if opts.maxCycles > 0 {
		coreOpts = append(coreOpts, core.WithMaxCycles(opts.maxCycles))
	}

	var hook *trace.LogHook
	if opts.traceLevel > 0 {
		hook = trace.NewLogHook(trace.NewLogger(opts.stderr, opts.traceLevel))
		coreOpts = append(coreOpts, core.WithHook(hook))
	}

	c := core.NewCore(opts.config, memory, coreOpts...)
	if hook != nil {
		hook.SetClock(c.Cycle)
	}
	c.SetReg(emu.RegSP, prog.InitialSP)
	c.SetPC(prog.EntryPoint)

	var err error
	if opts.useEngine {
		var t sim.VTimeInSec
		t, err = core.RunWithEngine(c)
		if opts.verbose {
			_, _ = fmt.Fprintf(opts.stdout, "Simulated time: %.9fs\n", float64(t))
		}
	} else {
		_, err = c.Run()
	}

	if opts.verbose || err != nil {
		printReport(opts.stdout, c)
	}
	if err != nil {
		return -1, err
	}

	return c.ExitCode(), nil
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}

func printReport(w io.Writer, c *core.Core) {
	stats := c.Stats()

	_, _ = fmt.Fprintf(w, "\n")
	_, _ = fmt.Fprintf(w, "Exit code: %d\n", c.ExitCode())
	_, _ = fmt.Fprintf(w, "Total Instructions: %d\n", stats.Instructions)
	_, _ = fmt.Fprintf(w, "Total Cycles: %d\n", stats.Cycles)
	_, _ = fmt.Fprintf(w, "CPI: %.2f\n", stats.CPI())
	_, _ = fmt.Fprintf(w, "\n")

	_, _ = fmt.Fprintf(w, "Dispatch stalls:\n")
	for _, s := range []struct {
		name   string
		cycles uint64
	}{
		{"ROB full", stats.StallROBFull},
		{"Issue queue full", stats.StallIssueQueueFull},
		{"Issue port", stats.StallIssuePort},
		{"No register", stats.StallNoRegister},
		{"No store id", stats.StallNoStoreID},
		{"No checkpoint", stats.StallNoCheckpoint},
		{"Serialize", stats.StallSerialize},
	} {
		_, _ = fmt.Fprintf(w, "  %-17s %6d cycles (%5.1f%%)\n",
			s.name+":", s.cycles, percent(s.cycles, stats.Cycles))
	}
	_, _ = fmt.Fprintf(w, "\n")

	_, _ = fmt.Fprintf(w, "Pipeline Events:\n")
	_, _ = fmt.Fprintf(w, "  Dispatched:     %d\n", stats.Dispatched)
	_, _ = fmt.Fprintf(w, "  Issued:         %d\n", stats.Issued)
	_, _ = fmt.Fprintf(w, "  Branches:       %d\n", stats.BranchesResolved)
	_, _ = fmt.Fprintf(w, "  Mispredictions: %d (%.1f%%)\n", stats.Mispredictions, stats.MispredictRate())
	_, _ = fmt.Fprintf(w, "  Flushes:        %d\n", stats.Flushes)

	if ic := c.Fetcher().ICache(); ic != nil {
		s := ic.Stats()
		_, _ = fmt.Fprintf(w, "  I-Cache:        %d hits, %d misses (%.1f%%)\n", s.Hits, s.Misses, s.HitRate())
	}
	if dc := c.DCache(); dc != nil {
		s := dc.Stats()
		_, _ = fmt.Fprintf(w, "  D-Cache:        %d hits, %d misses (%.1f%%)\n", s.Hits, s.Misses, s.HitRate())
	}
}
