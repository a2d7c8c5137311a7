package frames

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"videoredact/internal/apperr"

	"github.com/stretchr/testify/require"
)

func writeFrame(t *testing.T, dir string, fileNumber int) {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("frame_%06d.jpg", fileNumber))
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0o644))
}

func TestListAndFrameIndexMapping(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, dir, 1) // frame_index 0
	writeFrame(t, dir, 2) // frame_index 1
	writeFrame(t, dir, 3) // frame_index 2

	store := Open(dir)
	indices, err := store.List()
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, indices)

	total, err := store.TotalFrames()
	require.NoError(t, err)
	require.Equal(t, 3, total)

	max, err := store.MaxIndex()
	require.NoError(t, err)
	require.Equal(t, 2, max)
}

func TestReadMissingFrameIsStorageError(t *testing.T) {
	store := Open(t.TempDir())
	_, err := store.Read(5)
	require.ErrorIs(t, err, apperr.ErrStorage)
}

func TestReadReturnsBytes(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, dir, 1)

	store := Open(dir)
	data, err := store.Read(0)
	require.NoError(t, err)
	require.Equal(t, []byte("jpeg-bytes"), data)
}
