// Command fileq-bench runs configurable push/pop workloads against a
// filequeue engine and prints throughput, latency, and queue-depth results.
package main

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/intellect4all/filequeue"
	"github.com/intellect4all/filequeue/common/benchmark"
)

func main() {
	quick := flag.Bool("quick", false, "run quick benchmarks (shorter duration)")
	workload := flag.String("workload", "all", "workload to run (all, push-heavy, balanced, pop-heavy, push-only-delayed)")
	duration := flag.Duration("duration", 60*time.Second, "duration for each benchmark")
	concurrency := flag.Int("concurrency", 8, "number of concurrent workers")
	folder := flag.String("folder", "", "queue root directory (defaults to a temp dir)")
	topic := flag.String("topic", "bench", "topic name")
	flag.Parse()

	fmt.Println("filequeue Benchmark Suite")
	fmt.Println("=========================")
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Workload: %s\n\n", *workload)

	var configs []benchmark.Config
	if *quick {
		configs = benchmark.QuickWorkloads(*topic)
	} else {
		configs = benchmark.StandardWorkloads(*topic)
	}

	durationSet := flag.Lookup("duration").Changed
	concurrencySet := flag.Lookup("concurrency").Changed
	for i := range configs {
		if durationSet {
			configs[i].Duration = *duration
		}
		if concurrencySet {
			configs[i].Concurrency = *concurrency
		}
	}

	if *workload != "all" {
		filtered := make([]benchmark.Config, 0, 1)
		for _, c := range configs {
			if c.Name == *workload {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) == 0 {
			fmt.Printf("unknown workload: %s\n", *workload)
			os.Exit(1)
		}
		configs = filtered
	}

	dir := *folder
	if dir == "" {
		tmp, err := os.MkdirTemp("", "fileq-bench-*")
		if err != nil {
			fmt.Printf("failed to create temp dir: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	cfg := filequeue.DefaultConfig(dir)
	cfg.Logger = zap.NewNop()

	engine, err := filequeue.New(cfg)
	if err != nil {
		fmt.Printf("failed to create engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	results := make([]*benchmark.Result, 0, len(configs))
	for _, c := range configs {
		fmt.Printf("\n=== Running: %s ===\n", c.Name)
		bench := benchmark.NewBenchmark(engine, c)
		result, err := bench.Run()
		if err != nil {
			fmt.Printf("benchmark failed: %v\n", err)
			continue
		}
		results = append(results, result)
		benchmark.PrintResult(result)
	}

	benchmark.PrintSummaryTable(results)
}
