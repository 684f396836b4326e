package record

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapturedFillsFileMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reads.bam")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	ref := Input(path).Captured(quietHasher(), true, nil)
	require.Len(t, ref.Files, 1)

	fi := ref.Files[0]
	assert.True(t, fi.HasHash)
	assert.NotEmpty(t, fi.Hash)
	assert.True(t, fi.HasStat)
	assert.Equal(t, int64(7), fi.Size)
	assert.NotZero(t, fi.Mtime)
}

func TestCapturedDegradesOnMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.written")

	// The hash attempt is recorded even though both it and the stat came
	// up empty.
	ref := Output(path).Captured(quietHasher(), true, quietHasher().Log)
	require.Len(t, ref.Files, 1)

	fi := ref.Files[0]
	assert.True(t, fi.HasHash)
	assert.Empty(t, fi.Hash)
	assert.False(t, fi.HasStat)
	assert.Zero(t, fi.Ctime)
	assert.Zero(t, fi.Inode)
}

func TestCapturedSkipsOutputsOfFailedSteps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.fasta")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	ref := Output(path).Captured(quietHasher(), false, nil)
	require.Len(t, ref.Files, 1)
	assert.False(t, ref.Files[0].HasHash)
	assert.False(t, ref.Files[0].HasStat)
}
