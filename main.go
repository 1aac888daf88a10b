// Package main provides the entry point for rvsim.
// rvsim simulates RV64IM programs on a functional emulator or on an
// out-of-order core built on Akita.
//
// For the full CLI, use: go run ./cmd/rvsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rvsim - RV64IM Out-of-Order Core Simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: rvsim [options] <program.elf>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -timing    Run on the out-of-order core")
	fmt.Println("  -config    Path to core configuration JSON or YAML file")
	fmt.Println("  -latency   Path to latency configuration JSON or YAML file")
	fmt.Println("  -engine    Run the core on the akita serial engine")
	fmt.Println("  -trace     Pipeline trace verbosity")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rvsim' for the full CLI.")
	fmt.Println("Run 'go run ./cmd/benchmark' for the benchmark harness.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rvsim' instead.")
	}
}
