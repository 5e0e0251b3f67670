package lockfile

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockExclusiveExcludesTryLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")

	lk, err := LockExclusive(path)
	require.NoError(t, err)

	_, err = TryLockExclusive(path)
	require.ErrorIs(t, err, ErrWouldBlock)

	require.NoError(t, lk.Close())

	lk2, err := TryLockExclusive(path)
	require.NoError(t, err)
	require.NoError(t, lk2.Close())
}

func TestLockExclusiveSerializesConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	const n = 20

	var mu sync.Mutex
	order := make([]int, 0, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			lk, err := LockExclusive(path)
			require.NoError(t, err)
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			require.NoError(t, lk.Close())
		}(i)
	}
	wg.Wait()

	require.Len(t, order, n)
}

func TestTouchExistsRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel")

	require.False(t, Exists(path))
	require.NoError(t, Touch(path))
	require.True(t, Exists(path))
	require.NoError(t, Touch(path)) // idempotent
	require.NoError(t, Remove(path))
	require.False(t, Exists(path))
	require.NoError(t, Remove(path)) // idempotent
}

func TestSpinWait(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel")
	require.NoError(t, Touch(path))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = Remove(path)
	}()

	require.True(t, SpinWait(path, 50, 5*time.Millisecond))
}

func TestSpinWaitTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel")
	require.NoError(t, Touch(path))

	require.False(t, SpinWait(path, 3, time.Millisecond))
}

func TestExponentialSpinWait(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel")
	require.NoError(t, Touch(path))

	go func() {
		time.Sleep(15 * time.Millisecond)
		_ = Remove(path)
	}()

	require.True(t, ExponentialSpinWait(path, time.Millisecond, 10*time.Millisecond, 200*time.Millisecond))
}
