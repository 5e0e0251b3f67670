// Package benchmark drives configurable push/pop workloads against a
// filequeue engine and reports throughput, latency, and queue depth. A
// benchmark run preloads messages, warms up, then measures a fixed-duration
// worker pool driving a configurable push/pop mix.
package benchmark

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intellect4all/filequeue"
)

// WorkloadType defines the push/pop mix a worker pool drives.
type WorkloadType string

const (
	WorkloadPushHeavy WorkloadType = "push-heavy" // 95% pushes
	WorkloadPopHeavy  WorkloadType = "pop-heavy"  // 95% pops
	WorkloadBalanced  WorkloadType = "balanced"   // 50/50
	WorkloadPushOnly  WorkloadType = "push-only"  // 100% pushes
)

// Config defines a benchmark scenario against one topic.
type Config struct {
	Name string

	WorkloadType WorkloadType
	Topic        string

	PayloadSize int     // bytes
	DelayFrac   float64 // fraction of pushes routed through the delay log

	Duration    time.Duration
	Concurrency int

	PreloadMessages int // messages pushed before measurement starts

	Seed int64
}

type Result struct {
	Config Config

	TotalOps  int64
	PushOps   int64
	PopOps    int64
	Duration  time.Duration
	OpsPerSec float64

	PushLatency LatencyStats
	PopLatency  LatencyStats

	EngineStats filequeue.Stats
	QueueLength int64
}

type Benchmark struct {
	engine *filequeue.Engine
	config Config

	pushLatencies *LatencyHistogram
	popLatencies  *LatencyHistogram

	pushCount  atomic.Int64
	popCount   atomic.Int64
	errorCount atomic.Int64

	payloads *PayloadGenerator

	randSeed atomic.Int64
}

func NewBenchmark(engine *filequeue.Engine, config Config) *Benchmark {
	return &Benchmark{
		engine:        engine,
		config:        config,
		pushLatencies: NewLatencyHistogram(),
		popLatencies:  NewLatencyHistogram(),
		payloads:      NewPayloadGenerator(config.PayloadSize, config.Seed),
	}
}

// Run executes the benchmark: optional preload, a warm-up pass, then the
// measured run.
func (b *Benchmark) Run() (*Result, error) {
	if b.config.PreloadMessages > 0 {
		fmt.Printf("Preloading %d messages...\n", b.config.PreloadMessages)
		if err := b.preload(); err != nil {
			return nil, err
		}
		fmt.Println("Preload complete")
	}

	fmt.Println("Warming up...")
	b.runWorkload(3 * time.Second)

	b.pushLatencies = NewLatencyHistogram()
	b.popLatencies = NewLatencyHistogram()
	b.pushCount.Store(0)
	b.popCount.Store(0)
	b.errorCount.Store(0)

	fmt.Printf("Running benchmark for %v...\n", b.config.Duration)
	startTime := time.Now()

	b.runWorkload(b.config.Duration)

	endTime := time.Now()
	duration := endTime.Sub(startTime)

	stats, err := b.engine.Stats(b.config.Topic)
	if err != nil {
		return nil, err
	}
	length, err := b.engine.Length(b.config.Topic)
	if err != nil {
		return nil, err
	}

	return b.calculateResults(duration, stats, length), nil
}

func (b *Benchmark) preload() error {
	for i := 0; i < b.config.PreloadMessages; i++ {
		payload := b.payloads.Next()
		if err := b.engine.Push(payload, 0, b.config.Topic); err != nil {
			return err
		}
		if i > 0 && i%10000 == 0 {
			fmt.Printf("  pushed %d messages\n", i)
		}
	}
	return nil
}

func (b *Benchmark) runWorkload(duration time.Duration) {
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < b.config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			b.worker(workerID, stop)
		}(i)
	}

	time.Sleep(duration)

	close(stop)
	wg.Wait()
}

func (b *Benchmark) worker(id int, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
			if b.shouldPush() {
				b.doPush()
			} else {
				b.doPop()
			}
		}
	}
}

func (b *Benchmark) shouldPush() bool {
	switch b.config.WorkloadType {
	case WorkloadPushOnly:
		return true
	case WorkloadPushHeavy:
		return b.randFloat() < 0.95
	case WorkloadPopHeavy:
		return b.randFloat() < 0.05
	case WorkloadBalanced:
		return b.randFloat() < 0.50
	default:
		return b.randFloat() < 0.50
	}
}

func (b *Benchmark) doPush() {
	payload := b.payloads.Next()
	var delay int32
	if b.config.DelayFrac > 0 && b.randFloat() < b.config.DelayFrac {
		delay = 1
	}

	start := time.Now()
	err := b.engine.Push(payload, delay, b.config.Topic)
	latency := time.Since(start)

	if err != nil {
		b.errorCount.Add(1)
		return
	}

	b.pushLatencies.Record(latency)
	b.pushCount.Add(1)
}

func (b *Benchmark) doPop() {
	start := time.Now()
	_, err := b.engine.Pop(b.config.Topic, true)
	latency := time.Since(start)

	if err != nil {
		b.errorCount.Add(1)
		return
	}

	b.popLatencies.Record(latency)
	b.popCount.Add(1)
}

func (b *Benchmark) calculateResults(duration time.Duration, stats filequeue.Stats, length int64) *Result {
	pushOps := b.pushCount.Load()
	popOps := b.popCount.Load()
	totalOps := pushOps + popOps

	return &Result{
		Config:      b.config,
		TotalOps:    totalOps,
		PushOps:     pushOps,
		PopOps:      popOps,
		Duration:    duration,
		OpsPerSec:   float64(totalOps) / duration.Seconds(),
		PushLatency: b.pushLatencies.Stats(),
		PopLatency:  b.popLatencies.Stats(),
		EngineStats: stats,
		QueueLength: length,
	}
}

func (b *Benchmark) randFloat() float64 {
	return float64(b.randSeed.Add(1)%10000) / 10000.0
}
