package cursor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestReadOnAbsentFileReturnsZero(t *testing.T) {
	c := New(t.TempDir())
	v, err := c.Read()
	require.NoError(t, err)
	require.Equal(t, int32(0), v)
}

func TestAdvanceWritesBackWhenHandled(t *testing.T) {
	c := New(t.TempDir())

	handled, err := c.Advance(func(current int32) (bool, int32, error) {
		require.Equal(t, int32(0), current)
		return true, 5, nil
	})
	require.NoError(t, err)
	require.True(t, handled)

	v, err := c.Read()
	require.NoError(t, err)
	require.Equal(t, int32(5), v)
}

func TestAdvanceLeavesValueOnNotHandled(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	_, err := c.Advance(func(current int32) (bool, int32, error) { return true, 3, nil })
	require.NoError(t, err)

	handled, err := c.Advance(func(current int32) (bool, int32, error) {
		require.Equal(t, int32(3), current)
		return false, 0, nil
	})
	require.NoError(t, err)
	require.False(t, handled)

	v, err := c.Read()
	require.NoError(t, err)
	require.Equal(t, int32(3), v)
}

func TestAdvancePropagatesCallbackError(t *testing.T) {
	c := New(t.TempDir())

	_, err := c.Advance(func(current int32) (bool, int32, error) {
		return false, 0, errBoom
	})
	require.ErrorIs(t, err, errBoom)
}
