// Command benchmark runs the core benchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv        Output results in CSV format (default: human-readable)
//	-json       Output results as JSON
//	-no-icache  Disable instruction cache simulation
//	-no-dcache  Disable data cache simulation
//	-random N   Add N random programs to the microbenchmarks
//	-seed S     Seed for the random programs
//	-config F   Core configuration JSON or YAML file
//
// Example:
//
//	# Run all microbenchmarks with human-readable output
//	go run ./cmd/benchmark
//
//	# Check 200 random programs against the emulator and keep a CSV
//	go run ./cmd/benchmark -random 200 -csv > results.csv
//
// Every benchmark is also run on the functional emulator; any difference in
// retired state fails the run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/sarchlab/rvooo/benchmarks"
	"github.com/sarchlab/rvooo/timing/cache"
	"github.com/sarchlab/rvooo/timing/core"
	"github.com/sarchlab/rvooo/timing/trace"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results as JSON")
	noICache := flag.Bool("no-icache", false, "Disable instruction cache simulation")
	noDCache := flag.Bool("no-dcache", false, "Disable data cache simulation")
	random := flag.Int("random", 0, "Number of random programs to add")
	seed := flag.String("seed", "rvooo", "Seed for the random programs")
	length := flag.Int("length", 500, "Body length of each random program")
	configPath := flag.String("config", "", "Path to core configuration JSON or YAML file")
	parallel := flag.Int("parallel", 0, "Benchmarks run concurrently (0 = GOMAXPROCS)")
	verbose := flag.Bool("v", false, "Log each finished benchmark")
	flag.Parse()

	config := benchmarks.DefaultConfig()
	config.Output = os.Stdout
	config.Parallelism = *parallel

	if *configPath != "" {
		cfg, err := core.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		config.Core = *cfg
	}
	if *noICache {
		config.Core.Fetch.ICache = cache.Config{}
	}
	if *noDCache {
		config.Core.DCache = cache.Config{}
	}
	if err := config.Core.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		config.Logger = trace.NewLogger(os.Stderr, 1)
	}

	harness := benchmarks.NewHarness(config)
	harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	if *random > 0 {
		harness.AddBenchmarks(benchmarks.GetRandomBenchmarks(*seed, *random, *length))
	}

	if !*csvOutput && !*jsonOutput {
		fmt.Println("RV64 Out-of-Order Core Benchmark Harness")
		fmt.Println("========================================")
		fmt.Printf("I-Cache: %v\n", config.Core.Fetch.ICache.Enabled())
		fmt.Printf("D-Cache: %v\n", config.Core.DCache.Enabled())
		fmt.Printf("Dispatch width: %d, ROB: %d\n", config.Core.DispatchWidth, config.Core.ROBSize)
		fmt.Println("")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := harness.RunAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Benchmark failed: %v\n", err)
		stop()
		os.Exit(1)
	}

	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing JSON: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)
	}
}
