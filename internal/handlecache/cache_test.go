package handlecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetReusesHandleOnMatchingFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.dat")
	c := New()

	f1, err := c.Get(Write, "orders", RoleDat, path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)

	f2, err := c.Get(Write, "orders", RoleDat, path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)

	require.Same(t, f1, f2)
}

func TestGetEvictsOnFingerprintMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.dat")
	c := New()

	f1, err := c.Get(Write, "orders", RoleDat, path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)

	f2, err := c.Get(Write, "orders", RoleDat, path, os.O_RDONLY, 0644)
	require.NoError(t, err)

	require.NotSame(t, f1, f2)
	// f1 should now be closed; writing to it must fail.
	_, writeErr := f1.WriteString("x")
	require.Error(t, writeErr)
}

func TestReadAndWritePoolsAreIndependent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.dat")
	c := New()

	rf, err := c.Get(Read, "orders", RoleDat, path, os.O_RDONLY|os.O_CREATE, 0644)
	require.NoError(t, err)
	wf, err := c.Get(Write, "orders", RoleDat, path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)

	require.NotSame(t, rf, wf)
}

func TestEvictClosesAndForcesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.dat")
	c := New()

	f1, err := c.Get(Write, "orders", RoleDat, path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)

	c.Evict(Write, "orders", RoleDat)

	f2, err := c.Get(Write, "orders", RoleDat, path, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	require.NotSame(t, f1, f2)
}

func TestCloseMatchesTopicAndRoleWildcards(t *testing.T) {
	dir := t.TempDir()
	c := New()

	pathA := filepath.Join(dir, "a.dat")
	pathB := filepath.Join(dir, "b.index")
	_, err := c.Get(Write, "topicA", RoleDat, pathA, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	_, err = c.Get(Write, "topicB", RoleIndex, pathB, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)

	c.Close("topicA", "")

	// topicA's handle is gone; fetching it again yields a new descriptor.
	fNew, err := c.Get(Write, "topicA", RoleDat, pathA, os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	require.NotNil(t, fNew)

	c.CloseAll()
}
