package segment

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/intellect4all/filequeue/internal/codec"
	"github.com/intellect4all/filequeue/internal/handlecache"
	"github.com/intellect4all/filequeue/internal/lockfile"
)

const (
	lockSpinAttempts = 500
	lockSpinInterval = 10 * time.Millisecond
)

// CurrentPartition determines the segment stem to append padCount messages
// into: sentinel wait, empty-topic bootstrap, tail lookup, saturation
// detection, and size-triggered rotation.
func (s *Store) CurrentPartition(padCount int) (int32, error) {
	if lockfile.Exists(s.lockPath()) {
		if !lockfile.SpinWait(s.lockPath(), lockSpinAttempts, lockSpinInterval) {
			return 0, wrapCreateFailed("waiting for rollover lock", nil)
		}
	}

	piPath := s.partitionIndexPath()
	if !fileExists(piPath) {
		if err := atomic.WriteFile(piPath, bytes.NewReader(codec.PackI32(0))); err != nil {
			return 0, wrapIo("bootstrapping partitionIndex", err)
		}
		return 0, nil
	}

	f, err := s.cache.Get(handlecache.Write, s.topic, handlecache.RolePartitionIndex, piPath, os.O_RDWR, 0644)
	if err != nil {
		return 0, wrapIo("opening partitionIndex", err)
	}

	lock, err := lockfile.LockFile(f)
	if err != nil {
		return 0, wrapIo("locking partitionIndex", err)
	}
	defer lock.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, wrapIo("stat partitionIndex", err)
	}

	if stat.Size()%codec.Int32Size != 0 {
		if err := s.repairPartitionIndexLocked(); err != nil {
			return 0, err
		}
		stat, err = f.Stat()
		if err != nil {
			return 0, wrapIo("stat partitionIndex after repair", err)
		}
	}

	if stat.Size() == 0 {
		return 0, wrapFile("empty partitionIndex after repair", nil)
	}

	currentStart, err := codec.ReadI32At(f, stat.Size()-codec.Int32Size)
	if err != nil {
		return 0, wrapIo("reading partitionIndex tail", err)
	}

	datPath := s.datPath(currentStart)
	if !fileExists(datPath) {
		return currentStart, nil
	}

	idxPath := s.indexPath(currentStart)
	idxStat, err := os.Stat(idxPath)
	if err != nil {
		return 0, wrapIo("stat segment index", err)
	}
	lastSeq := currentStart + int32(idxStat.Size()/codec.Int32Size)

	if int64(lastSeq)+int64(padCount) > int64(s.labelSize) {
		if err := lockfile.Touch(s.lockPath()); err != nil {
			return 0, wrapIo("creating rollover lock", err)
		}
		return 0, ErrSaturated
	}

	datStat, err := os.Stat(datPath)
	if err != nil {
		return 0, wrapIo("stat segment data", err)
	}

	if datStat.Size() > s.partitionSizeMax {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return 0, wrapIo("seeking partitionIndex", err)
		}
		if _, err := f.Write(codec.PackI32(lastSeq)); err != nil {
			return 0, wrapIo("appending new segment stem", err)
		}
		return lastSeq, nil
	}

	return currentStart, nil
}

// loadPartitionIndex reads every segment stem, ascending, without holding
// any lock — callers only use this for read paths (binary search, stats),
// which can retry past a concurrent writer. A missing partitionIndex is
// repaired from whatever <stem>.index files are actually on disk before
// being treated as empty: the manifest can be deleted out from under a
// topic that still has its segment data intact. A genuinely fresh topic
// (no .index files at all) is left without a partitionIndex file, so
// CurrentPartition's own bootstrap still runs on the first push.
func (s *Store) loadPartitionIndex() ([]int32, error) {
	piPath := s.partitionIndexPath()
	if !fileExists(piPath) {
		stems, err := s.scanIndexStems()
		if err != nil {
			return nil, err
		}
		if len(stems) == 0 {
			return nil, nil
		}
		if err := s.writePartitionIndex(stems); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(piPath)
	if err != nil {
		return nil, wrapIo("reading partitionIndex", err)
	}
	if len(data)%codec.Int32Size != 0 {
		if err := s.RepairPartitionIndex(); err != nil {
			return nil, err
		}
		data, err = os.ReadFile(piPath)
		if err != nil {
			return nil, wrapIo("reading repaired partitionIndex", err)
		}
	}
	entries := make([]int32, len(data)/codec.Int32Size)
	for i := range entries {
		entries[i] = codec.UnpackI32(data[i*codec.Int32Size:])
	}
	return entries, nil
}

// FindSegment binary-searches the partition index for the segment s such
// that s <= offset < s_next (exact match wins; no successor overflows into
// the last entry).
func (s *Store) FindSegment(offset int32) (stem int32, idx int, all []int32, err error) {
	entries, err := s.loadPartitionIndex()
	if err != nil {
		return 0, 0, nil, err
	}
	if len(entries) == 0 {
		return 0, 0, nil, ErrNoSegments
	}

	low, high, ans := 0, len(entries)-1, -1
	for low <= high {
		mid := (low + high) / 2
		if entries[mid] <= offset {
			ans = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	if ans == -1 {
		ans = 0
	}
	return entries[ans], ans, entries, nil
}

// RepairPartitionIndex rebuilds partitionIndex from the <stem>.index files
// present on disk after a torn (odd-sized) manifest is detected: scan the
// directory, sort stems, rewrite from scratch.
func (s *Store) RepairPartitionIndex() error {
	s.logger.Warn("repairing corrupted partitionIndex", zap.String("topic", s.topic))
	return s.repairPartitionIndexLocked()
}

func (s *Store) repairPartitionIndexLocked() error {
	stems, err := s.scanIndexStems()
	if err != nil {
		return err
	}
	return s.writePartitionIndex(stems)
}

// scanIndexStems lists the topic directory for <stem>.index files and
// returns their stems, ascending.
func (s *Store) scanIndexStems() ([]int32, error) {
	files, err := os.ReadDir(s.topicDir)
	if err != nil {
		return nil, wrapIo("reading topic dir for repair", err)
	}

	stems := make([]int32, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		if !strings.HasSuffix(name, ".index") {
			continue
		}
		stemStr := strings.TrimSuffix(name, ".index")
		if len(stemStr) != stemWidth {
			continue
		}
		v, err := strconv.ParseInt(stemStr, 10, 32)
		if err != nil {
			continue
		}
		stems = append(stems, int32(v))
	}

	sort.Slice(stems, func(i, j int) bool { return stems[i] < stems[j] })
	return stems, nil
}

func (s *Store) writePartitionIndex(stems []int32) error {
	buf := make([]byte, 0, len(stems)*codec.Int32Size)
	for _, v := range stems {
		buf = append(buf, codec.PackI32(v)...)
	}
	if err := atomic.WriteFile(s.partitionIndexPath(), bytes.NewReader(buf)); err != nil {
		return wrapIo("rewriting partitionIndex", err)
	}
	return nil
}
