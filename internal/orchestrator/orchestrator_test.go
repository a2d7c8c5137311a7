package orchestrator

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"videoredact/internal/config"
	"videoredact/internal/engine"
	"videoredact/internal/events"
	"videoredact/internal/jobs"
	"videoredact/internal/muxer"

	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	info muxer.StreamInfo
	err  error
}

func (f fakeProber) Probe(ctx context.Context, path string) (muxer.StreamInfo, error) {
	return f.info, f.err
}

// fakeMuxer always succeeds, recording every spec it was asked to mux.
type fakeMuxer struct {
	calls []muxer.MuxSpec
}

func (f *fakeMuxer) Mux(ctx context.Context, spec muxer.MuxSpec, onProgress func(muxer.MuxProgress)) error {
	f.calls = append(f.calls, spec)
	if onProgress != nil {
		onProgress(muxer.MuxProgress{Frame: 1, Done: true})
	}
	return nil
}

func writeFrame(t *testing.T, dir string, fileNumber int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{10, 10, 10, 255})
		}
	}
	name := fmt.Sprintf("frame_%06d.jpg", fileNumber)
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, nil))
}

func newTestOrchestrator(t *testing.T, info muxer.StreamInfo, mux muxer.Muxer) (*Orchestrator, string, string) {
	t.Helper()
	root := t.TempDir()
	videoStem := "clip"
	framesDir := filepath.Join(root, videoStem)
	require.NoError(t, os.MkdirAll(framesDir, 0o755))
	for i := 1; i <= 5; i++ {
		writeFrame(t, framesDir, i)
	}

	cfg := &config.Config{FramesRoot: root, BlurRadius: 8, MaxWorkers: 2, TrackingFrameCap: 900, OCRLanguage: "eng", AppDir: root}
	registry := jobs.NewRegistry()
	eventStore := events.NewStore(root)

	o := New(cfg, registry, eventStore, fakeProber{info: info}, mux, nil)
	return o, root, videoStem
}

func TestExportFullVideoCompletes(t *testing.T) {
	mux := &fakeMuxer{}
	o, root, stem := newTestOrchestrator(t, muxer.StreamInfo{FPS: 30, HasAudio: true}, mux)

	sourcePath := filepath.Join(root, stem+".mp4")
	require.NoError(t, os.WriteFile(sourcePath, []byte("fake video bytes"), 0o644))

	jobID := o.Export(ExportRequest{VideoPath: sourcePath, VideoName: stem + ".mp4", VideoStem: stem})

	waitForTerminal(t, o.Registry, jobID)
	job, ok := o.Registry.Get(jobID)
	require.True(t, ok)
	require.Equal(t, jobs.StatusCompleted, job.Status)
	require.Len(t, mux.calls, 1)
	require.Equal(t, sourcePath, mux.calls[0].SourceAudioFrom)
}

func TestExportTrimWindowOnlyProcessesSelectedFrames(t *testing.T) {
	mux := &fakeMuxer{}
	o, root, stem := newTestOrchestrator(t, muxer.StreamInfo{FPS: 24}, mux)

	sourcePath := filepath.Join(root, stem+".mp4")
	require.NoError(t, os.WriteFile(sourcePath, []byte("fake"), 0o644))

	trim := engine.Trim{Start: 1, End: 3}
	jobID := o.Export(ExportRequest{VideoPath: sourcePath, VideoName: stem + ".mp4", VideoStem: stem, Trim: &trim})

	waitForTerminal(t, o.Registry, jobID)
	job, ok := o.Registry.Get(jobID)
	require.True(t, ok)
	require.Equal(t, jobs.StatusCompleted, job.Status)
	require.Equal(t, 3, job.ProcessedFrames)
}

// The stderr-sniffing retry-without-audio behavior itself lives in
// muxer.ffmpegMuxer.Mux (tested directly in muxer/mux_test.go); here we
// only confirm the orchestrator forwards SourceAudioFrom based on the
// probed HasAudio flag, and omits it when the source has no audio stream.
func TestExportOmitsAudioMappingWhenSourceHasNoAudio(t *testing.T) {
	mux := &fakeMuxer{}
	o, root, stem := newTestOrchestrator(t, muxer.StreamInfo{FPS: 30, HasAudio: false}, mux)

	sourcePath := filepath.Join(root, stem+".mp4")
	require.NoError(t, os.WriteFile(sourcePath, []byte("fake"), 0o644))

	jobID := o.Export(ExportRequest{VideoPath: sourcePath, VideoName: stem + ".mp4", VideoStem: stem})
	waitForTerminal(t, o.Registry, jobID)

	job, ok := o.Registry.Get(jobID)
	require.True(t, ok)
	require.Equal(t, jobs.StatusCompleted, job.Status)
	require.Len(t, mux.calls, 1)
	require.Equal(t, "", mux.calls[0].SourceAudioFrom)
}

func TestCancelMidExportStopsJobAsCancelled(t *testing.T) {
	mux := &fakeMuxer{}
	o, root, stem := newTestOrchestrator(t, muxer.StreamInfo{FPS: 30}, mux)

	sourcePath := filepath.Join(root, stem+".mp4")
	require.NoError(t, os.WriteFile(sourcePath, []byte("fake"), 0o644))

	jobID := o.Registry.Create()
	o.Cancel(jobID)

	o.run(jobID, ExportRequest{VideoPath: sourcePath, VideoName: stem + ".mp4", VideoStem: stem})

	job, ok := o.Registry.Get(jobID)
	require.True(t, ok)
	require.True(t, job.Cancelled)
	require.Equal(t, jobs.StatusCancelled, job.Status)
}

func waitForTerminal(t *testing.T, registry *jobs.Registry, jobID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := registry.Get(jobID)
		if ok {
			switch job.Status {
			case jobs.StatusCompleted, jobs.StatusError, jobs.StatusCancelled:
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status in time")
}
