// Package filequeue implements a durable, file-backed FIFO message queue
// engine: multiple named topics, immediate and time-delayed messages, and
// crash-safe append semantics under multi-process concurrency via advisory
// file locks.
//
// Engine is the façade: it coordinates the binary codec, handle cache,
// segment store, delay log, cursor, and generation manager underneath it,
// exposing Push/PushMulti/Pop/GetQueue/GetMessage/Length/MaxOffset/
// CurrentOffset.
package filequeue

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// DefaultTopic is used by Push/Pop callers that omit a topic name.
const DefaultTopic = "default"

const (
	defaultPartitionSizeMiB = 500
	minPartitionSizeMiB     = 1
	maxPartitionSizeMiB     = 2000

	defaultLabelSize int32 = 1<<31 - 1
	minLabelSize     int32 = 10
)

// Config configures an Engine.
type Config struct {
	// Folder is the root directory holding one subdirectory per topic. Required.
	Folder string

	// PartitionSizeMiB bounds each segment's .dat file size before rotation.
	// Clamped to [1, 2000]; default 500.
	PartitionSizeMiB int

	// LabelSize bounds the number of sequence numbers in one generation
	// before rollover triggers. Test-only: production should leave this at
	// its default (2^31-1, the full signed 32-bit range). Clamped to
	// [10, 2^31-1] when set.
	LabelSize int32

	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultConfig returns a Config with sensible production defaults: a 500
// MiB partition size and the full signed 32-bit generation label range.
func DefaultConfig(folder string) Config {
	return Config{
		Folder:           folder,
		PartitionSizeMiB: defaultPartitionSizeMiB,
		LabelSize:        defaultLabelSize,
		Logger:           zap.NewNop(),
	}
}

func (c Config) normalized() Config {
	if c.PartitionSizeMiB < minPartitionSizeMiB {
		c.PartitionSizeMiB = minPartitionSizeMiB
	} else if c.PartitionSizeMiB > maxPartitionSizeMiB {
		c.PartitionSizeMiB = maxPartitionSizeMiB
	}
	if c.LabelSize == 0 {
		c.LabelSize = defaultLabelSize
	} else if c.LabelSize < minLabelSize {
		c.LabelSize = minLabelSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c Config) partitionSizeBytes() int64 {
	return int64(c.PartitionSizeMiB) << 20
}

func validateConfig(c Config) error {
	if c.Folder == "" {
		return fmt.Errorf("filequeue: Folder is required")
	}
	return nil
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
