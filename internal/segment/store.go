// Package segment implements the append-only, size-bounded segment store:
// the partitionIndex manifest plus the <stem>.dat/<stem>.index pairs it
// points at, with a directory-scan repair path for a torn partitionIndex
// manifest.
package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/intellect4all/filequeue/common"
	"github.com/intellect4all/filequeue/internal/handlecache"
)

// ErrSaturated is returned by CurrentPartition when the active generation's
// sequence space is exhausted and a generation rollover is required before
// any further write can proceed; Append passes it through. It is a signal,
// not a surfaced user error; the topic façade catches it and drives
// internal/generation.Rollover.
var ErrSaturated = errors.New("generation saturated")

// ErrNoSegments is returned by FindSegment when the topic has no segments
// yet (an empty queue never pushed to).
var ErrNoSegments = errors.New("no segments")

const stemWidth = 10

// Stem formats a starting sequence number as the zero-padded segment name.
func Stem(seq int32) string {
	return fmt.Sprintf("%0*d", stemWidth, seq)
}

// Store manages one topic's segment files. It holds no mutable state beyond
// its dependencies; all coordination is via advisory locks on disk. There
// are no background threads or goroutines inside the store.
type Store struct {
	topicDir         string
	topic            string
	cache            *handlecache.Cache
	partitionSizeMax int64 // bytes; rotate when the active .dat exceeds this
	labelSize        int32 // sequence numbers per generation
	logger           *zap.Logger
}

// New creates a segment store bound to one topic directory.
func New(topicDir, topic string, cache *handlecache.Cache, partitionSizeMax int64, labelSize int32, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		topicDir:         topicDir,
		topic:            topic,
		cache:            cache,
		partitionSizeMax: partitionSizeMax,
		labelSize:        labelSize,
		logger:           logger,
	}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.topicDir, name)
}

func (s *Store) datPath(stem int32) string   { return s.path(Stem(stem) + ".dat") }
func (s *Store) indexPath(stem int32) string { return s.path(Stem(stem) + ".index") }
func (s *Store) partitionIndexPath() string  { return s.path("partitionIndex") }
func (s *Store) lockPath() string            { return s.path("lock") }

// LabelSize returns the configured per-generation sequence capacity.
func (s *Store) LabelSize() int32 { return s.labelSize }

// SegmentCount returns the number of segments currently tracked, including
// the active one, for Stats reporting.
func (s *Store) SegmentCount() (int, error) {
	entries, err := s.loadPartitionIndex()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func wrapIo(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, common.ErrIo, err)
}

func wrapFile(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, common.ErrFile, err)
}

func wrapCreateFailed(op string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", op, common.ErrCreateFailed)
	}
	return fmt.Errorf("%s: %w: %w", op, common.ErrCreateFailed, err)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
