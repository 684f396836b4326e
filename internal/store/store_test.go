package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirStoreWriteReadList(t *testing.T) {
	ctx := context.Background()
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	names, err := st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, st.Write(ctx, "a.crc32_00000001.json", []byte(`{"a":1}`)))
	require.NoError(t, st.Write(ctx, "b.crc32_00000002.json", []byte(`{"b":2}`)))

	names, err = st.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"a.crc32_00000001.json", "b.crc32_00000002.json"}, names)

	data, err := st.Read(ctx, "a.crc32_00000001.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestDirStoreListSkipsNonRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))
	require.NoError(t, st.Write(ctx, "s.crc32_deadbeef.json", []byte(`{}`)))

	names, err := st.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s.crc32_deadbeef.json"}, names)
}

func TestDirStoreWriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, st.Write(ctx, "s.crc32_00000000.json", []byte(`{}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "s.crc32_00000000.json", entries[0].Name())
}

func TestDirStoreHonorsContext(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = st.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	err = st.Write(ctx, "x.json", []byte(`{}`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestArtifactCache(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenCache(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, c.Dir())

	assert.False(t, c.Exists("sha1_aa"))
	require.NoError(t, c.Save("sha1_aa", []byte("payload")))
	assert.True(t, c.Exists("sha1_aa"))

	data, err := c.Fetch("sha1_aa")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	dest := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, c.FetchTo("sha1_aa", dest))
	restored, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(restored))

	_, err = c.Fetch("sha1_missing")
	assert.Error(t, err)
}

func TestArtifactCacheSaveFile(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0o644))

	require.NoError(t, c.SaveFile(src, "sha1_bb"))
	data, err := c.Fetch("sha1_bb")
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	// Already-present entries are not rewritten, even from a changed file.
	require.NoError(t, os.WriteFile(src, []byte("changed"), 0o644))
	require.NoError(t, c.SaveFile(src, "sha1_bb"))
	data, err = c.Fetch("sha1_bb")
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestArtifactCacheRejectsEmptyHash(t *testing.T) {
	c, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, c.Save("", []byte("x")))
}
