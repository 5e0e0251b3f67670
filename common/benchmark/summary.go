package benchmark

import (
	"fmt"
	"strings"
)

// PrintResult prints one scenario's throughput, latency, and queue-depth
// results in long form.
func PrintResult(r *Result) {
	fmt.Printf("\n--- %s ---\n", r.Config.Name)
	fmt.Printf("Throughput: %.0f ops/sec\n", r.OpsPerSec)
	fmt.Printf("Total Ops: %d (pushes: %d, pops: %d)\n", r.TotalOps, r.PushOps, r.PopOps)

	if r.PushOps > 0 {
		fmt.Printf("\nPush Latency:\n")
		printLatency(r.PushLatency)
	}
	if r.PopOps > 0 {
		fmt.Printf("\nPop Latency:\n")
		printLatency(r.PopLatency)
	}

	fmt.Printf("\nQueue depth at end: %d\n", r.QueueLength)
	fmt.Printf("Segments: %d, rollovers: %d, promotions: %d\n",
		r.EngineStats.SegmentCount, r.EngineStats.RolloverCount, r.EngineStats.PromoteCount)
}

func printLatency(s LatencyStats) {
	fmt.Printf("  Min:  %8s\n", s.Min)
	fmt.Printf("  Mean: %8s\n", s.Mean)
	fmt.Printf("  P50:  %8s\n", s.P50)
	fmt.Printf("  P95:  %8s\n", s.P95)
	fmt.Printf("  P99:  %8s\n", s.P99)
	fmt.Printf("  Max:  %8s\n", s.Max)
}

// PrintSummaryTable prints a one-line-per-scenario table of push/pop
// throughput and latency.
func PrintSummaryTable(results []*Result) {
	if len(results) == 0 {
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 72))
	fmt.Println("BENCHMARK SUMMARY")
	fmt.Println(strings.Repeat("=", 72))

	fmt.Printf("\n%-25s %12s %12s %12s %10s\n",
		"Workload", "Throughput", "Push P99", "Pop P99", "Depth")
	fmt.Println(strings.Repeat("-", 72))

	for _, r := range results {
		pushP99 := "N/A"
		if r.PushOps > 0 {
			pushP99 = r.PushLatency.P99.String()
		}
		popP99 := "N/A"
		if r.PopOps > 0 {
			popP99 = r.PopLatency.P99.String()
		}

		fmt.Printf("%-25s %10.0f/s %12s %12s %10d\n",
			r.Config.Name, r.OpsPerSec, pushP99, popP99, r.QueueLength)
	}
}
