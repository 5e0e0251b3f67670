// Package lockfile provides advisory file locking via flock(2). The engine
// uses it both to lock the actual data files it appends to (.index, .dat,
// partitionIndex, delayMessage, current) and to poll sentinel marker files
// (lock, delayRebuild, <topic>.lock) that implement small cross-process
// state machines.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by TryLockExclusive when the lock is held by
// another process.
var ErrWouldBlock = errors.New("lock would block")

// Lock represents a held advisory lock. Call Close to release it.
type Lock struct {
	file *os.File
}

// File returns the underlying open file, for callers that need to read or
// write through the same descriptor the lock was taken on.
func (lk *Lock) File() *os.File { return lk.file }

// Close releases the flock and closes the descriptor. Idempotent.
func (lk *Lock) Close() error {
	if lk.file == nil {
		return nil
	}
	fd := int(lk.file.Fd())
	unlockErr := flockRetryEINTR(fd, unix.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil
	if unlockErr != nil {
		return fmt.Errorf("unlocking: %w", unlockErr)
	}
	return closeErr
}

// Open opens path (creating it if absent) without locking it. Useful for
// callers that want to hold the descriptor across multiple locked sections.
func Open(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
}

// LockExclusive opens path and blocks until an exclusive lock is acquired.
func LockExclusive(path string) (*Lock, error) {
	f, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := flockRetryEINTR(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return &Lock{file: f}, nil
}

// LockFile acquires an exclusive lock on an already-open file.
func LockFile(f *os.File) (*Lock, error) {
	if err := flockRetryEINTR(int(f.Fd()), unix.LOCK_EX); err != nil {
		return nil, fmt.Errorf("locking %s: %w", f.Name(), err)
	}
	return &Lock{file: f}, nil
}

// TryLockExclusive attempts a non-blocking exclusive lock. Returns
// ErrWouldBlock if another process holds it.
func TryLockExclusive(path string) (*Lock, error) {
	f, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	err = flockNonBlocking(int(f.Fd()), unix.LOCK_EX)
	if err == nil {
		return &Lock{file: f}, nil
	}
	f.Close()
	if isWouldBlock(err) {
		return nil, ErrWouldBlock
	}
	return nil, fmt.Errorf("locking %s: %w", path, err)
}

func flockNonBlocking(fd, how int) error {
	return flockRetryEINTR(fd, how|unix.LOCK_NB)
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}

// flockRetryEINTR wraps unix.Flock, retrying on EINTR — a signal can
// interrupt any blocking syscall, and it did not fail, it just needs
// retrying.
func flockRetryEINTR(fd, how int) error {
	const maxEINTRRetries = 10000
	var err error
	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}
	return err
}

// Exists reports whether a sentinel marker file is present.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Touch creates an empty sentinel file if it does not already exist.
func Touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	return f.Close()
}

// Remove deletes a sentinel file; absence is not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SpinWait polls for path's absence, sleeping interval between checks, up to
// attempts times. Returns false if the sentinel is still present after the
// budget is exhausted. os.Stat always reads fresh kernel state, so no
// explicit cache-clear step is needed between polls.
func SpinWait(path string, attempts int, interval time.Duration) bool {
	for i := 0; i < attempts; i++ {
		if !Exists(path) {
			return true
		}
		time.Sleep(interval)
	}
	return !Exists(path)
}

// ExponentialSpinWait polls for path's absence with a doubling backoff,
// starting at initial and capped at max, giving up after maxElapsed.
func ExponentialSpinWait(path string, initial, max, maxElapsed time.Duration) bool {
	deadline := time.Now().Add(maxElapsed)
	backoff := initial
	for {
		if !Exists(path) {
			return true
		}
		if time.Now().After(deadline) {
			return !Exists(path)
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > max {
			backoff = max
		}
	}
}
