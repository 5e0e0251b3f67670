package delaylog

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/intellect4all/filequeue/internal/codec"
	"github.com/intellect4all/filequeue/internal/handlecache"
	"github.com/intellect4all/filequeue/internal/lockfile"
)

const compactionRetries = 100

// rebuildWindowOpen reports whether compaction is allowed to run right
// now: hour < 2 || hour > 6, i.e. compaction runs *outside* the 02:00-06:00
// window rather than during it. See DESIGN.md for why the window is kept
// this way round.
func rebuildWindowOpen(t time.Time) bool {
	h := t.Hour()
	return h < 2 || h > 6
}

// Promote runs at the start of every Pop and length query. It replays any
// spillover from an interrupted prior pass, scans newly matured messages,
// batch-appends them into the segment store, and tombstones everything it
// consumed by advancing delayMessage's valid_start.
func (l *Log) Promote() error {
	for {
		done, err := l.promoteOnce()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		// a compaction pass ran; restart promotion against the rebuilt file
	}
}

func (l *Log) promoteOnce() (done bool, err error) {
	if !lockfile.Exists(l.messagePath()) {
		return true, nil
	}

	f, err := l.cache.Get(handlecache.Write, l.topic, handlecache.RoleDelayMessage, l.messagePath(), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return false, wrapIo("opening delayMessage", err)
	}

	lock, err := lockfile.LockFile(f)
	if err != nil {
		return false, wrapIo("locking delayMessage", err)
	}
	defer lock.Close()

	validStart, err := codec.ReadI32At(f, 0)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		return false, wrapIo("reading valid_start", err)
	}

	stat, err := f.Stat()
	if err != nil {
		return false, wrapIo("stat delayMessage", err)
	}

	if int64(validStart) > l.partitionSizeMax && rebuildWindowOpen(l.now()) {
		if err := l.compact(f, validStart, stat.Size(), lock); err != nil {
			return false, err
		}
		return false, nil // restart promotion against the rebuilt file
	}

	now := int32(l.now().Unix())

	tempPath := l.tempPath()
	tempFile, err := os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return false, wrapIo("creating delayTemp", err)
	}
	tempLock, err := lockfile.LockFile(tempFile)
	if err != nil {
		tempFile.Close()
		return false, wrapIo("locking delayTemp", err)
	}
	defer tempLock.Close()

	var matured [][]byte
	var tempBuf []byte

	if lockfile.Exists(l.readPath()) {
		spill, err := l.replaySpillover(now, &tempBuf)
		if err != nil {
			return false, err
		}
		matured = append(matured, spill...)
	}

	scanned, newValidStart, err := l.scanMessage(f, validStart, stat.Size(), now, &tempBuf)
	if err != nil {
		return false, err
	}
	matured = append(matured, scanned...)

	if len(matured) > 0 {
		if _, err := l.store.Append(matured); err != nil {
			return false, err
		}
	}

	if err := l.rewriteValidStart(f, newValidStart); err != nil {
		return false, err
	}

	if len(tempBuf) > 0 {
		if _, err := tempFile.WriteAt(tempBuf, 0); err != nil {
			return false, wrapIo("writing delayTemp", err)
		}
		if err := tempFile.Truncate(int64(len(tempBuf))); err != nil {
			return false, wrapIo("truncating delayTemp", err)
		}
		tempLock.Close()
		if err := os.Rename(tempPath, l.readPath()); err != nil {
			return false, wrapIo("renaming delayTemp to delayRead", err)
		}
	} else {
		tempLock.Close()
		os.Remove(tempPath)
	}

	return true, nil
}

// replaySpillover replays delayRead left over from an interrupted pass:
// records still not due are appended to tempBuf, due ones are returned for
// segment promotion. delayRead is removed afterward.
func (l *Log) replaySpillover(now int32, tempBuf *[]byte) ([][]byte, error) {
	f, err := os.OpenFile(l.readPath(), os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapIo("opening delayRead", err)
	}
	defer f.Close()

	lock, err := lockfile.LockFile(f)
	if err != nil {
		return nil, wrapIo("locking delayRead", err)
	}
	defer lock.Close()

	var matured [][]byte
	offset := int64(0)
	stat, err := f.Stat()
	if err != nil {
		return nil, wrapIo("stat delayRead", err)
	}

	for offset < stat.Size() {
		rec, next, err := readDelayRecord(f, offset)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if rec.due > now {
			*tempBuf = append(*tempBuf, codec.EncodeDelayRecord(rec.due, rec.length, rec.payload)...)
		} else {
			matured = append(matured, rec.payload)
		}
		offset = next
	}

	lock.Close()
	if err := os.Remove(l.readPath()); err != nil && !os.IsNotExist(err) {
		return nil, wrapIo("removing delayRead", err)
	}

	return matured, nil
}

// scanMessage scans delayMessage from validStart to EOF, splitting matured
// from not-yet-due records, and returns the new valid_start (the scan
// cursor, which tombstones everything consumed).
func (l *Log) scanMessage(f *os.File, validStart int32, size int64, now int32, tempBuf *[]byte) ([][]byte, int32, error) {
	var matured [][]byte
	offset := int64(validStart)

	for offset < size {
		rec, next, err := readDelayRecord(f, offset)
		if err != nil {
			if err == io.EOF {
				// Header-only short read at the EOF boundary is treated as a
				// clean end, not corruption.
				break
			}
			return nil, 0, err
		}
		if rec.due > now {
			*tempBuf = append(*tempBuf, codec.EncodeDelayRecord(rec.due, rec.length, rec.payload)...)
		} else {
			matured = append(matured, rec.payload)
		}
		offset = next
	}

	return matured, int32(offset), nil
}

type delayRecord struct {
	due     int32
	length  int32
	payload []byte
}

// readDelayRecord reads one due_time|len|payload record at offset. A short
// read of the fixed header at the very end of the file is reported as
// io.EOF (treated as a clean end, not corruption); any other mismatch
// (length extends past EOF) is a FileError.
func readDelayRecord(f *os.File, offset int64) (delayRecord, int64, error) {
	header := make([]byte, codec.DelayRecordHeaderSize)
	n, err := f.ReadAt(header, offset)
	if err != nil {
		if err == io.EOF && n < codec.DelayRecordHeaderSize {
			return delayRecord{}, 0, io.EOF
		}
		return delayRecord{}, 0, wrapIo("reading delay record header", err)
	}

	due, ln, err := codec.DecodeDelayRecordHeader(header)
	if err != nil {
		return delayRecord{}, 0, wrapFile("decoding delay record header", err)
	}

	payload := make([]byte, ln)
	if ln > 0 {
		if _, err := f.ReadAt(payload, offset+codec.DelayRecordHeaderSize); err != nil {
			// A short payload read is a length mismatch against the header
			// we already parsed, not a clean end-of-file, so it is reported
			// as a FileError rather than EOF, unlike a short header read.
			return delayRecord{}, 0, wrapFile("delay record payload shorter than header length", err)
		}
	}

	next := offset + codec.DelayRecordHeaderSize + int64(ln)
	return delayRecord{due: due, length: ln, payload: payload}, next, nil
}

func (l *Log) rewriteValidStart(f *os.File, newValidStart int32) error {
	if _, err := f.WriteAt(codec.PackI32(newValidStart), 0); err != nil {
		return wrapIo("rewriting valid_start", err)
	}
	return nil
}

// compact rebuilds delayMessage, dropping its tombstoned prefix. Copies
// [validStart, EOF) to delayRebuild prefixed with a fresh header, then
// atomically swaps it in for delayMessage. delayRebuild's mere existence is
// a lock-free barrier: concurrent Write calls poll for its absence before
// opening delayMessage (see waitForRebuildBarrier).
func (l *Log) compact(f *os.File, validStart int32, size int64, lock *lockfile.Lock) error {
	body := make([]byte, size-int64(validStart))
	if len(body) > 0 {
		if _, err := f.ReadAt(body, int64(validStart)); err != nil {
			return wrapIo("reading delayMessage body for compaction", err)
		}
	}

	var buf bytes.Buffer
	buf.Write(codec.PackI32(headerSize))
	buf.Write(body)

	if err := atomic.WriteFile(l.rebuildPath(), bytes.NewReader(buf.Bytes())); err != nil {
		return wrapIo("writing delayRebuild", err)
	}

	lock.Close()
	l.cache.Evict(handlecache.Write, l.topic, handlecache.RoleDelayMessage)
	l.cache.Evict(handlecache.Read, l.topic, handlecache.RoleDelayMessage)

	var lastErr error
	for attempt := 0; attempt < compactionRetries; attempt++ {
		if err := os.Remove(l.messagePath()); err != nil && !os.IsNotExist(err) {
			lastErr = err
			continue
		}
		if err := os.Rename(l.rebuildPath(), l.messagePath()); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return wrapIo("swapping in compacted delayMessage", lastErr)
	}

	l.logger.Info("compacted delay log", zap.String("topic", l.topic))
	return nil
}
