// Package delaylog implements the delay-message log: an append-only,
// time-sorted-by-arrival file of not-yet-due messages that gets scanned and
// promoted into the segment store on every read, and periodically
// compacted to drop its tombstoned prefix. Compaction follows a
// read-compact-rewrite shape applied to a single append-only file instead
// of a segment set.
package delaylog

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/intellect4all/filequeue/internal/codec"
	"github.com/intellect4all/filequeue/internal/handlecache"
	"github.com/intellect4all/filequeue/internal/segment"
)

// headerSize is the minimum valid_start value: the header field itself.
const headerSize = int32(codec.Int32Size)

func wrapErr(op string, kind error, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// Item is one not-yet-due message, as submitted to Write.
type Item struct {
	DelaySeconds int32
	Payload      []byte
}

// Log manages one topic's delay-message log.
type Log struct {
	topicDir         string
	topic            string
	cache            *handlecache.Cache
	store            *segment.Store
	partitionSizeMax int64 // mirrors segment.Store's rotation threshold; also gates compaction
	logger           *zap.Logger

	now func() time.Time // overridable for tests
}

// New creates a delay log bound to one topic directory. store is the
// segment store matured messages are promoted into.
func New(topicDir, topic string, cache *handlecache.Cache, store *segment.Store, partitionSizeMax int64, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		topicDir:         topicDir,
		topic:            topic,
		cache:            cache,
		store:            store,
		partitionSizeMax: partitionSizeMax,
		logger:           logger,
		now:              time.Now,
	}
}

func (l *Log) path(name string) string { return filepath.Join(l.topicDir, name) }

func (l *Log) messagePath() string { return l.path("delayMessage") }
func (l *Log) readPath() string    { return l.path("delayRead") }
func (l *Log) rebuildPath() string { return l.path("delayRebuild") }
func (l *Log) tempPath() string    { return l.path("delayTemp") }
