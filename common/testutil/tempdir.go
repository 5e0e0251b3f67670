// Package testutil holds small test helpers shared across the engine's
// internal packages and the root filequeue package.
package testutil

import (
	"os"
	"testing"
)

// TempDir creates a temporary directory for a test, cleaned up automatically
// when the test finishes.
func TempDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "fileq-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}
