package filequeue

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/intellect4all/filequeue/common"
	"github.com/intellect4all/filequeue/internal/cursor"
	"github.com/intellect4all/filequeue/internal/delaylog"
	"github.com/intellect4all/filequeue/internal/generation"
	"github.com/intellect4all/filequeue/internal/handlecache"
	"github.com/intellect4all/filequeue/internal/lockfile"
	"github.com/intellect4all/filequeue/internal/segment"
)

// maxRolloverAttempts bounds the retry loop a writer or reader runs when it
// hits a saturated generation: up to 100 retries before giving up.
const maxRolloverAttempts = 100

// Topic is one topic directory's worth of state: the segment store, delay
// log, and cursor, plus a same-process mutex. Cross-process coordination is
// purely via file locks; this mutex only avoids redundant in-process
// contention on top of that, it never replaces the file locks.
type Topic struct {
	root string
	name string
	dir  string

	cache  *handlecache.Cache
	store  *segment.Store
	delay  *delaylog.Log
	cur    *cursor.Cursor
	logger *zap.Logger

	mu sync.Mutex

	pushCount     atomic.Int64
	popCount      atomic.Int64
	promoteCount  atomic.Int64
	rolloverCount atomic.Int64
}

func newTopic(root, name, dir string, cache *handlecache.Cache, cfg Config) *Topic {
	store := segment.New(dir, name, cache, cfg.partitionSizeBytes(), cfg.LabelSize, cfg.Logger)
	delay := delaylog.New(dir, name, cache, store, cfg.partitionSizeBytes(), cfg.Logger)
	return &Topic{
		root:   root,
		name:   name,
		dir:    dir,
		cache:  cache,
		store:  store,
		delay:  delay,
		cur:    cursor.New(dir),
		logger: cfg.Logger,
	}
}

func (t *Topic) lockPath() string { return filepath.Join(t.dir, "lock") }

// Push routes a single message to the delay log (delaySeconds > 0) or the
// segment store (delaySeconds <= 0).
func (t *Topic) Push(payload []byte, delaySeconds int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if delaySeconds > 0 {
		if err := t.delay.Write([]delaylog.Item{{DelaySeconds: delaySeconds, Payload: payload}}); err != nil {
			return err
		}
		t.pushCount.Add(1)
		return nil
	}

	if _, err := t.appendWithRollover([][]byte{payload}); err != nil {
		return err
	}
	t.pushCount.Add(1)
	return nil
}

// PushMulti appends payloads to the segment store as one contiguous batch.
func (t *Topic) PushMulti(payloads [][]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.appendWithRollover(payloads); err != nil {
		return err
	}
	t.pushCount.Add(int64(len(payloads)))
	return nil
}

func (t *Topic) sendBuffered(items []bufferedItem) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var immediate [][]byte
	var delayed []delaylog.Item
	for _, it := range items {
		if it.delaySeconds > 0 {
			delayed = append(delayed, delaylog.Item{DelaySeconds: it.delaySeconds, Payload: it.payload})
		} else {
			immediate = append(immediate, it.payload)
		}
	}

	if len(immediate) > 0 {
		if _, err := t.appendWithRollover(immediate); err != nil {
			return err
		}
		t.pushCount.Add(int64(len(immediate)))
	}
	if len(delayed) > 0 {
		if err := t.delay.Write(delayed); err != nil {
			return err
		}
		t.pushCount.Add(int64(len(delayed)))
	}
	return nil
}

// appendWithRollover appends payloads, transparently driving a generation
// rollover and retrying if the current generation turns out to be
// saturated (segment.ErrSaturated).
func (t *Topic) appendWithRollover(payloads [][]byte) ([]segment.Appended, error) {
	for attempt := 0; attempt < maxRolloverAttempts; attempt++ {
		results, err := t.store.Append(payloads)
		if err == nil {
			return results, nil
		}
		if errors.Is(err, segment.ErrSaturated) {
			if rerr := generation.Rollover(t.root, t.name, t.cache, t.logger); rerr != nil {
				return nil, rerr
			}
			t.rolloverCount.Add(1)
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("push: %w: exhausted rollover retries", common.ErrCreateFailed)
}

// Pop reads the cursor under its exclusive lock, fetches the message at
// that sequence, and advances the cursor on success. If nothing is there
// and the saturation sentinel is set, it drives a generation rollover and
// retries.
func (t *Topic) Pop() (*common.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.delay.Promote(); err != nil {
		return nil, err
	}
	t.promoteCount.Add(1)

	for attempt := 0; attempt < maxRolloverAttempts; attempt++ {
		var msg *common.Message
		var fetchErr error

		handled, err := t.cur.Advance(func(current int32) (bool, int32, error) {
			rec, rerr := t.store.ReadAt(current)
			if rerr != nil {
				fetchErr = rerr
				return false, 0, rerr
			}
			if rec == nil {
				return false, 0, nil
			}
			label, lerr := generation.ReadLabel(t.dir)
			if lerr != nil {
				fetchErr = lerr
				return false, 0, lerr
			}
			msg = &common.Message{
				Offset:  int64(rec.Seq),
				Hash:    rec.CRC,
				Len:     rec.Len,
				Time:    rec.Time,
				Payload: rec.Payload,
				Label:   label,
			}
			return true, rec.Seq + 1, nil
		})
		if err != nil {
			return nil, err
		}
		if handled {
			t.popCount.Add(1)
			return msg, nil
		}
		if fetchErr != nil {
			return nil, fetchErr
		}

		if lockfile.Exists(t.lockPath()) {
			if rerr := generation.Rollover(t.root, t.name, t.cache, t.logger); rerr != nil {
				return nil, rerr
			}
			t.rolloverCount.Add(1)
			continue
		}

		return nil, nil
	}

	return nil, fmt.Errorf("pop: %w: exhausted rollover retries", common.ErrCreateFailed)
}

// GetQueue performs a non-destructive range read across segment
// boundaries, without touching the cursor.
func (t *Topic) GetQueue(offset int64, limit int) ([]common.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	label, err := generation.ReadLabel(t.dir)
	if err != nil {
		return nil, err
	}

	recs, err := t.store.ReadRange(int32(offset), int32(limit))
	if err != nil {
		return nil, err
	}

	msgs := make([]common.Message, len(recs))
	for i, rec := range recs {
		msgs[i] = common.Message{
			Offset:  int64(rec.Seq),
			Hash:    rec.CRC,
			Len:     rec.Len,
			Time:    rec.Time,
			Payload: rec.Payload,
			Label:   label,
		}
	}
	return msgs, nil
}

// Length returns max(0, MaxOffset(fromStart=true) - CurrentOffset(fromStart=true)).
func (t *Topic) Length() (int64, error) {
	maxOff, err := t.MaxOffset(true)
	if err != nil {
		return 0, err
	}
	curOff, err := t.CurrentOffset(true)
	if err != nil {
		return 0, err
	}
	length := maxOff - curOff
	if length < 0 {
		return 0, nil
	}
	return length, nil
}

// MaxOffset runs delay promotion, then reads the last entry in
// partitionIndex plus its segment's record count.
func (t *Topic) MaxOffset(fromStart bool) (int64, error) {
	t.mu.Lock()
	promoteErr := t.delay.Promote()
	t.mu.Unlock()
	if promoteErr != nil {
		return 0, promoteErr
	}
	t.promoteCount.Add(1)

	seq, err := t.store.MaxSequence()
	if err != nil {
		return 0, err
	}
	return t.globalOffset(int64(seq), fromStart)
}

// CurrentOffset reads the `current` cursor file.
func (t *Topic) CurrentOffset(fromStart bool) (int64, error) {
	cur, err := t.cur.Read()
	if err != nil {
		return 0, err
	}
	return t.globalOffset(int64(cur), fromStart)
}

// globalOffset folds the per-generation offset into the full cross-
// generation sequence space: offset_in_gen + labelSize * label. Sequence
// numbers are signed 32-bit on disk, but the folded global offset can
// exceed 32 bits across many generations, so this arithmetic is entirely
// int64.
func (t *Topic) globalOffset(offsetInGen int64, fromStart bool) (int64, error) {
	if !fromStart {
		return offsetInGen, nil
	}
	label, err := generation.ReadLabel(t.dir)
	if err != nil {
		return 0, err
	}
	return offsetInGen + int64(label)*int64(t.labelSize()), nil
}

func (t *Topic) labelSize() int32 {
	return t.store.LabelSize()
}

// Label returns the topic's current generation counter.
func (t *Topic) Label() (int32, error) {
	return generation.ReadLabel(t.dir)
}

// Stats reports this topic's operation counters.
func (t *Topic) Stats() common.Stats {
	segCount, _ := t.store.SegmentCount()
	return common.Stats{
		PushCount:     t.pushCount.Load(),
		PopCount:      t.popCount.Load(),
		PromoteCount:  t.promoteCount.Load(),
		RolloverCount: t.rolloverCount.Load(),
		SegmentCount:  segCount,
	}
}
