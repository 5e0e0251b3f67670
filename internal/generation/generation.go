// Package generation implements the rollover of a saturated topic
// directory into a suffixed backup and promotion of its successor: a
// whole-directory rename discipline rather than in-process segment
// bookkeeping.
package generation

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/intellect4all/filequeue/common"
	"github.com/intellect4all/filequeue/internal/codec"
	"github.com/intellect4all/filequeue/internal/handlecache"
	"github.com/intellect4all/filequeue/internal/lockfile"
)

const (
	rolloverRetries  = 100
	rolloverInterval = 10 * time.Millisecond
)

// ReadLabel reads a topic directory's generation counter; absence means
// generation 0.
func ReadLabel(topicDir string) (int32, error) {
	data, err := os.ReadFile(filepath.Join(topicDir, "label"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading label: %w: %w", common.ErrIo, err)
	}
	if len(data) < codec.Int32Size {
		return 0, nil
	}
	return codec.UnpackI32(data), nil
}

func writeLabel(topicDir string, label int32) error {
	path := filepath.Join(topicDir, "label")
	if err := atomic.WriteFile(path, bytes.NewReader(codec.PackI32(label))); err != nil {
		return fmt.Errorf("writing label: %w: %w", common.ErrIo, err)
	}
	return nil
}

// Rollover performs one generation promotion for topic under root, retrying
// up to 100 times at 10ms on a recoverable error. cache is evicted of every
// handle for this topic before the directory rename, since a stale
// descriptor pinned to the old inode would otherwise keep writing into a
// directory that no longer has this name.
func Rollover(root, topic string, cache *handlecache.Cache, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 0; attempt < rolloverRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(rolloverInterval)
		}
		if err := rolloverOnce(root, topic, cache, logger); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("rollover exhausted retries: %w", lastErr)
}

func rolloverOnce(root, topic string, cache *handlecache.Cache, logger *zap.Logger) error {
	topicDir := filepath.Join(root, topic)

	label, err := ReadLabel(topicDir)
	if err != nil {
		return err
	}
	newGen := label + 1

	crossLock := filepath.Join(root, topic+".lock")
	if err := lockfile.Touch(crossLock); err != nil {
		return fmt.Errorf("touching cross-topic lock: %w: %w", common.ErrIo, err)
	}
	defer lockfile.Remove(crossLock)

	cache.Close(topic, "")

	if err := changeTopicStore(root, topic, newGen); err != nil {
		return err
	}

	logger.Info("generation rollover complete",
		zap.String("topic", topic), zap.Int32("generation", newGen))
	return nil
}

// changeTopicStore seals the active directory, migrates delay-log state
// into the successor, and promotes the successor into place. Every
// completed step is reversed in LIFO order on failure so the directory
// tree never ends up half-migrated.
func changeTopicStore(root, topic string, newGen int32) error {
	topicDir := filepath.Join(root, topic)
	successorDir := filepath.Join(root, fmt.Sprintf("%s_%d", topic, newGen))
	sealedDir := filepath.Join(root, fmt.Sprintf("%s_h_%d", topic, newGen))

	if !dirExists(successorDir) {
		// Nothing else creates the successor ahead of time; the rollover
		// path that discovers the need for a new generation is the one
		// responsible for materializing it.
		if err := os.MkdirAll(successorDir, 0755); err != nil {
			return fmt.Errorf("creating successor dir: %w: %w", common.ErrIo, err)
		}
	}

	var undo []func() error
	rollback := func(cause error) error {
		for i := len(undo) - 1; i >= 0; i-- {
			_ = undo[i]()
		}
		return fmt.Errorf("changing topic store: %w: %w", common.ErrIo, cause)
	}

	if err := os.Rename(topicDir, sealedDir); err != nil {
		return fmt.Errorf("sealing generation: %w: %w", common.ErrIo, err)
	}
	undo = append(undo, func() error { return os.Rename(sealedDir, topicDir) })

	if err := moveIfPresent(sealedDir, successorDir, "delayMessage"); err != nil {
		return rollback(err)
	}
	undo = append(undo, func() error { return moveIfPresent(successorDir, sealedDir, "delayMessage") })

	if err := moveIfPresent(sealedDir, successorDir, "delayRead"); err != nil {
		return rollback(err)
	}
	undo = append(undo, func() error { return moveIfPresent(successorDir, sealedDir, "delayRead") })

	if err := os.Rename(successorDir, topicDir); err != nil {
		return rollback(err)
	}

	if err := writeLabel(topicDir, newGen); err != nil {
		// The rename already succeeded and is not rolled back; a missing
		// label file only means ReadLabel falls back to 0 on next read. The
		// write error is returned to the caller.
		return err
	}

	return nil
}

func moveIfPresent(fromDir, toDir, name string) error {
	src := filepath.Join(fromDir, name)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w: %w", name, common.ErrIo, err)
	}
	if err := os.Rename(src, filepath.Join(toDir, name)); err != nil {
		return fmt.Errorf("moving %s: %w: %w", name, common.ErrIo, err)
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
