package engine

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"videoredact/internal/events"
	"videoredact/internal/frames"
	"videoredact/internal/jobs"
	"videoredact/internal/resolver"

	"github.com/stretchr/testify/require"
)

func writeTestFrame(t *testing.T, dir string, frameIndex int, fill color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 80, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 80; x++ {
			img.Set(x, y, fill)
		}
	}
	path := filepath.Join(dir, frameNameForIndex(frameIndex))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, nil))
}

func frameNameForIndex(frameIndex int) string {
	return fmt.Sprintf("frame_%06d.jpg", frameIndex+1)
}

// Scenario S1 (a single static blur touching only the expected region,
// everything else byte-identical) is not checked here: JPEG is lossy, so
// exact byte-identity is not testable without a real codec round-trip
// baseline. This test instead checks that the engine produces output for
// every selected frame and that frames with an empty active set are copied
// verbatim.
func TestProcessCopiesFramesWithEmptyActiveSet(t *testing.T) {
	srcDir := t.TempDir()
	destDir := filepath.Join(t.TempDir(), "out")

	for i := 0; i < 3; i++ {
		writeTestFrame(t, srcDir, i, color.RGBA{10, 20, 30, 255})
	}

	store := frames.Open(srcDir)
	table := resolver.Table{} // no active rectangles anywhere

	registry := jobs.NewRegistry()
	jobID := registry.Create()

	eng := New(2, 5)
	err := eng.Process(context.Background(), store, table, Trim{Start: 0, End: 2}, destDir, registry, jobID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := os.Stat(filepath.Join(destDir, frameNameForIndex(i)))
		require.NoError(t, err)

		want, err := os.ReadFile(filepath.Join(srcDir, frameNameForIndex(i)))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(destDir, frameNameForIndex(i)))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	job, _ := registry.Get(jobID)
	require.Equal(t, 100, job.Progress)
	require.Equal(t, 3, job.ProcessedFrames)
}

func TestProcessBlursActiveRegion(t *testing.T) {
	srcDir := t.TempDir()
	destDir := filepath.Join(t.TempDir(), "out")
	writeTestFrame(t, srcDir, 0, color.RGBA{200, 0, 0, 255})

	store := frames.Open(srcDir)
	table := resolver.Table{0: resolver.ActiveSet{"A": events.Rectangle{X: 10, Y: 10, W: 20, H: 20}}}

	registry := jobs.NewRegistry()
	jobID := registry.Create()

	eng := New(1, 5)
	err := eng.Process(context.Background(), store, table, Trim{Start: 0, End: 0}, destDir, registry, jobID)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(destDir, frameNameForIndex(0)))
	require.NoError(t, err)
}

// Property 6: clamping safety — a rectangle entirely outside the image is
// a no-op on pixels (the engine must not panic or write out of bounds).
func TestProcessClampsOutOfBoundsRectangle(t *testing.T) {
	srcDir := t.TempDir()
	destDir := filepath.Join(t.TempDir(), "out")
	writeTestFrame(t, srcDir, 0, color.RGBA{1, 2, 3, 255})

	store := frames.Open(srcDir)
	table := resolver.Table{0: resolver.ActiveSet{"A": events.Rectangle{X: 1000, Y: 1000, W: 50, H: 50}}}

	registry := jobs.NewRegistry()
	jobID := registry.Create()

	eng := New(1, 5)
	err := eng.Process(context.Background(), store, table, Trim{Start: 0, End: 0}, destDir, registry, jobID)
	require.NoError(t, err)
}

// Property 7: after cancellation, the number of fully-written dest files
// equals the last observed processed_frames.
func TestProcessCancellationStopsDispatch(t *testing.T) {
	srcDir := t.TempDir()
	destDir := filepath.Join(t.TempDir(), "out")
	for i := 0; i < 10; i++ {
		writeTestFrame(t, srcDir, i, color.RGBA{5, 5, 5, 255})
	}

	store := frames.Open(srcDir)
	table := resolver.Table{}

	registry := jobs.NewRegistry()
	jobID := registry.Create()
	registry.MarkCancelled(jobID)

	eng := New(2, 5)
	err := eng.Process(context.Background(), store, table, Trim{Start: 0, End: 9}, destDir, registry, jobID)
	require.Error(t, err)

	job, _ := registry.Get(jobID)
	require.Equal(t, jobs.StatusCancelled, job.Status)

	written, err := os.ReadDir(destDir)
	require.NoError(t, err)
	require.Len(t, written, job.ProcessedFrames)
}
