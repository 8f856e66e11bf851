package testutil

import (
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// GenerateTestKeyFile creates a temporary text key file with numKeys random
// 32-bit keys, one per line. Returns the file path and the keys in file order.
func GenerateTestKeyFile(t testing.TB, numKeys int, seed int64) (string, []uint32) {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	keys := make([]uint32, numKeys)
	var content strings.Builder
	for i := range keys {
		keys[i] = rng.Uint32()
		content.WriteString(strconv.FormatUint(uint64(keys[i]), 10))
		content.WriteString("\n")
	}

	path := WriteTestFile(t, "keys_*.txt", []byte(content.String()))
	return path, keys
}

// WriteTestFile writes content to a new file in the test's temp directory.
// pattern follows os.CreateTemp.
func WriteTestFile(t testing.TB, pattern string, content []byte) string {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if _, err := tmpFile.Write(content); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("Failed to close temp file: %v", err)
	}
	return tmpFile.Name()
}

// TempFilePath returns a path in the test's temp directory. Does not create
// the file.
func TempFilePath(t testing.TB, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}
