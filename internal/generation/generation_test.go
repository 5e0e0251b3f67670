package generation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intellect4all/filequeue/internal/handlecache"
)

func TestReadLabelAbsentIsZero(t *testing.T) {
	label, err := ReadLabel(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, int32(0), label)
}

func TestRolloverPromotesSuccessorAndBumpsLabel(t *testing.T) {
	root := t.TempDir()
	topicDir := filepath.Join(root, "orders")
	require.NoError(t, os.MkdirAll(topicDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(topicDir, "0000000000.dat"), []byte("data"), 0644))

	cache := handlecache.New()
	require.NoError(t, Rollover(root, "orders", cache, nil))

	label, err := ReadLabel(topicDir)
	require.NoError(t, err)
	require.Equal(t, int32(1), label)

	// The sealed prior generation's directory exists under its _h_ name.
	sealedDir := filepath.Join(root, "orders_h_1")
	info, err := os.Stat(sealedDir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
	_, err = os.Stat(filepath.Join(sealedDir, "0000000000.dat"))
	require.NoError(t, err)

	// The active topic directory is fresh (no leftover segment data).
	_, err = os.Stat(filepath.Join(topicDir, "0000000000.dat"))
	require.True(t, os.IsNotExist(err))
}

func TestRolloverMigratesDelayLogState(t *testing.T) {
	root := t.TempDir()
	topicDir := filepath.Join(root, "orders")
	require.NoError(t, os.MkdirAll(topicDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(topicDir, "delayMessage"), []byte("pending"), 0644))

	cache := handlecache.New()
	require.NoError(t, Rollover(root, "orders", cache, nil))

	data, err := os.ReadFile(filepath.Join(topicDir, "delayMessage"))
	require.NoError(t, err)
	require.Equal(t, "pending", string(data))
}

func TestRolloverTwiceIncrementsLabelAgain(t *testing.T) {
	root := t.TempDir()
	topicDir := filepath.Join(root, "orders")
	require.NoError(t, os.MkdirAll(topicDir, 0755))

	cache := handlecache.New()
	require.NoError(t, Rollover(root, "orders", cache, nil))
	require.NoError(t, Rollover(root, "orders", cache, nil))

	label, err := ReadLabel(topicDir)
	require.NoError(t, err)
	require.Equal(t, int32(2), label)
}
