package delaylog

import (
	"io"
	"os"
	"time"

	"github.com/intellect4all/filequeue/common"
	"github.com/intellect4all/filequeue/internal/codec"
	"github.com/intellect4all/filequeue/internal/handlecache"
	"github.com/intellect4all/filequeue/internal/lockfile"
)

const (
	barrierInitial   = 1 * time.Microsecond
	barrierMax       = 8192 * time.Microsecond
	barrierDoublings = 14
)

// waitForRebuildBarrier polls for delayRebuild's absence with exponential
// backoff (1µs doubling up to 8192µs, 14 doublings total), closing any
// cached delayMessage write handle between polls to release its lock
// window — compaction needs that window to swap the file out from under us.
func (l *Log) waitForRebuildBarrier() error {
	backoff := barrierInitial
	for i := 0; i < barrierDoublings; i++ {
		if !lockfile.Exists(l.rebuildPath()) {
			return nil
		}
		l.cache.Evict(handlecache.Write, l.topic, handlecache.RoleDelayMessage)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > barrierMax {
			backoff = barrierMax
		}
	}
	if lockfile.Exists(l.rebuildPath()) {
		return wrapCreateFailed("waiting for delay rebuild barrier", nil)
	}
	return nil
}

// Write appends delay items to delayMessage, assigning each a due time of
// now + delaySeconds: barrier-wait, open+lock, prepend a fresh header on an
// empty file, append a single concatenated buffer.
func (l *Log) Write(items []Item) error {
	if len(items) == 0 {
		return nil
	}

	if err := l.waitForRebuildBarrier(); err != nil {
		return err
	}

	f, err := l.cache.Get(handlecache.Write, l.topic, handlecache.RoleDelayMessage, l.messagePath(), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return wrapIo("opening delayMessage", err)
	}

	lock, err := lockfile.LockFile(f)
	if err != nil {
		return wrapIo("locking delayMessage", err)
	}
	defer lock.Close()

	stat, err := f.Stat()
	if err != nil {
		return wrapIo("stat delayMessage", err)
	}

	buf := make([]byte, 0, 8+len(items)*32)
	if stat.Size() == 0 {
		buf = append(buf, codec.PackI32(headerSize)...)
	}

	now := int32(l.now().Unix())
	for _, item := range items {
		due := now + item.DelaySeconds
		buf = append(buf, codec.EncodeDelayRecord(due, int32(len(item.Payload)), item.Payload)...)
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return wrapIo("seeking delayMessage", err)
	}
	if _, err := f.Write(buf); err != nil {
		return wrapIo("writing delayMessage", err)
	}

	return nil
}

func wrapIo(op string, err error) error {
	if err == nil {
		return nil
	}
	return wrapErr(op, common.ErrIo, err)
}

func wrapFile(op string, err error) error {
	if err == nil {
		return nil
	}
	return wrapErr(op, common.ErrFile, err)
}

func wrapCreateFailed(op string, err error) error {
	return wrapErr(op, common.ErrCreateFailed, err)
}
