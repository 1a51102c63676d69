package finalize

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// §8 scenario 3: BLAKE3/SHA-256 of "hello world".
func TestHashFunctions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greeting")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	b3, err := blake3File(path)
	require.NoError(t, err)
	require.Equal(t, "d74981efa70a0c880b8d8c1985d075dbcbf679b99a5f9914e5aaf96b831a9e24", b3)

	sha, err := sha256File(path)
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", sha)
}

func TestWriteChecksumsExcludesSelf(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte("content-a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.bin"), []byte("content-b"), 0o644))

	require.NoError(t, WriteChecksums(dir))

	data, err := os.ReadFile(filepath.Join(dir, "CHECKSUM"))
	require.NoError(t, err)
	contents := string(data)
	require.True(t, strings.Contains(contents, "a.bin:"))
	require.True(t, strings.Contains(contents, "b.bin:"))
	require.False(t, strings.Contains(contents, "CHECKSUM:"))
}

func TestWriteSidecarsSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte("content-a"), 0o644))

	require.NoError(t, WriteSidecars(dir))

	_, err := os.Stat(filepath.Join(dir, "a.bin.b3sum"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "a.bin.sha256"))
	require.NoError(t, err)

	// Re-running must not try to hash the sidecars themselves.
	require.NoError(t, WriteSidecars(dir))
	_, err = os.Stat(filepath.Join(dir, "a.bin.b3sum.b3sum"))
	require.True(t, os.IsNotExist(err))
}
