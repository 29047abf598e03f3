package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecording_PublishesOnClose(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out", "feed.mp4")

	rec, err := CreateRecording(target)
	require.NoError(t, err)
	assert.Equal(t, target, rec.Path())

	_, err = rec.Write([]byte("ftyp"))
	require.NoError(t, err)
	_, err = rec.Write([]byte("moov"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), rec.Written())

	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err), "target must not exist before close")

	require.NoError(t, rec.Close())

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "ftypmoov", string(data))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must be gone")
}

func TestRecording_WriteAfterClose(t *testing.T) {
	rec, err := CreateRecording(filepath.Join(t.TempDir(), "feed.mp4"))
	require.NoError(t, err)
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	_, err = rec.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrRecordingClosed)
}

func TestRecording_Abort(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "feed.mp4")

	rec, err := CreateRecording(target)
	require.NoError(t, err)
	_, err = rec.Write([]byte("partial"))
	require.NoError(t, err)

	require.NoError(t, rec.Abort())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecording_EmptyPath(t *testing.T) {
	_, err := CreateRecording("")
	assert.Error(t, err)
}

func TestTempName(t *testing.T) {
	name := TempName("feed.mp4")
	assert.True(t, IsTempName(name))
	assert.NotEqual(t, name, TempName("feed.mp4"))

	assert.False(t, IsTempName("feed.mp4"))
	assert.False(t, IsTempName("feed.tmp"))
}
