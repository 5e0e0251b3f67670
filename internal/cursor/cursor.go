// Package cursor manages the per-topic consumer position stored in the
// `current` file: the next sequence number to read in the active
// generation. All advancement happens under the file's own exclusive lock,
// guaranteeing that multiple processes sharing one cursor each see a
// disjoint, gap-free subset of the sequence space.
package cursor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/intellect4all/filequeue/common"
	"github.com/intellect4all/filequeue/internal/codec"
	"github.com/intellect4all/filequeue/internal/lockfile"
)

// Cursor wraps the `current` file for one topic directory.
type Cursor struct {
	path string
}

// New binds a cursor to a topic directory.
func New(topicDir string) *Cursor {
	return &Cursor{path: filepath.Join(topicDir, "current")}
}

// Read returns the current cursor value without locking, for
// Topic.CurrentOffset-style queries that tolerate a momentarily stale read.
func (c *Cursor) Read() (int32, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading cursor: %w: %w", common.ErrIo, err)
	}
	if len(data) < codec.Int32Size {
		return 0, nil
	}
	return codec.UnpackI32(data), nil
}

// Advance acquires an exclusive lock on `current`, reads its value, and
// calls fn with it. If fn reports handled=true, the returned next value is
// written back before the lock releases; the write and the fetch fn
// performs are thus atomic with respect to every other process sharing this
// cursor.
func (c *Cursor) Advance(fn func(current int32) (handled bool, next int32, err error)) (bool, error) {
	f, err := os.OpenFile(c.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return false, fmt.Errorf("opening cursor: %w: %w", common.ErrIo, err)
	}
	defer f.Close()

	lock, err := lockfile.LockFile(f)
	if err != nil {
		return false, fmt.Errorf("locking cursor: %w: %w", common.ErrIo, err)
	}
	defer lock.Close()

	current, err := readLocked(f)
	if err != nil {
		return false, err
	}

	handled, next, err := fn(current)
	if err != nil {
		return false, err
	}
	if !handled {
		return false, nil
	}

	if _, err := f.WriteAt(codec.PackI32(next), 0); err != nil {
		return false, fmt.Errorf("writing cursor: %w: %w", common.ErrIo, err)
	}
	return true, nil
}

func readLocked(f *os.File) (int32, error) {
	stat, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat cursor: %w: %w", common.ErrIo, err)
	}
	if stat.Size() < codec.Int32Size {
		return 0, nil
	}
	v, err := codec.ReadI32At(f, 0)
	if err != nil {
		return 0, fmt.Errorf("reading cursor: %w: %w", common.ErrIo, err)
	}
	return v, nil
}
