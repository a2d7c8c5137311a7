// Package engine implements the Frame Processing Engine: a bounded worker
// pool that renders blurred frames with progress reporting, cancellation,
// and back-pressure against the external muxer. Grounded on
// server/webrtc/batch_manager.go's "mutate under lock, dispatch outside
// it" discipline and relay/cv/worker_registry.go's channel-driven worker
// loops, adapted from network-event dispatch to CPU-bound frame rendering;
// the cancellation-before-dequeue check mirrors original_source/app.py's
// process_frames_multithreaded (ThreadPoolExecutor + cancelled flag).
package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"os"
	"sync"

	"videoredact/internal/apperr"
	"videoredact/internal/events"
	"videoredact/internal/frames"
	"videoredact/internal/jobs"
	"videoredact/internal/resolver"

	"github.com/disintegration/imaging"
)

// Trim bounds an export to a [Start, End] inclusive frame-index window.
type Trim struct {
	Start int
	End   int
}

// Engine renders blurred frames from a Frame Store using a bounded worker
// pool.
type Engine struct {
	MaxWorkers int
	BlurRadius float64
}

// New returns an Engine with the given worker count and default blur
// radius (spec default: 4 workers).
func New(maxWorkers int, blurRadius float64) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &Engine{MaxWorkers: maxWorkers, BlurRadius: blurRadius}
}

type task struct {
	frameIndex int
	active     resolver.ActiveSet
}

// Process renders every frame in [trim.Start, trim.End] ∩ store.List()
// into destDir, reporting progress on jobID via registry, and honoring
// job.cancelled. It returns apperr.ErrCancelled if cancellation was
// observed before all frames completed, or the first per-frame failure
// (apperr.ErrEngine-wrapped for decode/encode failures,
// apperr.ErrStorage-wrapped for read/copy failures); once a failure is
// reported no further tasks are dispatched.
func (e *Engine) Process(ctx context.Context, store *frames.Store, table resolver.Table, trim Trim, destDir string, registry *jobs.Registry, jobID string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("%w: create dest dir %s: %v", apperr.ErrStorage, destDir, err)
	}

	allIndices, err := store.List()
	if err != nil {
		return err
	}

	var selected []int
	for _, idx := range allIndices {
		if idx >= trim.Start && idx <= trim.End {
			selected = append(selected, idx)
		}
	}

	total := len(selected)
	registry.Update(jobID, func(j *jobs.Job) {
		j.TotalFrames = total
		j.ProcessedFrames = 0
		j.Status = jobs.StatusProcessingFrames
	})

	taskCh := make(chan task)
	errCh := make(chan error, e.MaxWorkers)
	var wg sync.WaitGroup

	for w := 0; w < e.MaxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskCh {
				if registry.IsCancelled(jobID) {
					continue // drain remaining tasks without processing them
				}
				if err := e.renderFrame(store, destDir, t); err != nil {
					select {
					case errCh <- err:
					default:
					}
					continue
				}
				// Increment and derive Progress inside the locked Update
				// closure so concurrent workers can never apply their
				// updates out of order (property 9: progress is
				// non-decreasing).
				registry.Update(jobID, func(j *jobs.Job) {
					j.ProcessedFrames++
					if j.TotalFrames > 0 {
						j.Progress = int(100 * int64(j.ProcessedFrames) / int64(j.TotalFrames))
					}
				})
			}
		}()
	}

dispatch:
	for _, idx := range selected {
		if registry.IsCancelled(jobID) || len(errCh) > 0 {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case taskCh <- task{frameIndex: idx, active: table.At(idx)}:
		}
	}
	close(taskCh)
	wg.Wait()
	close(errCh)

	if err, ok := <-errCh; ok {
		registry.Update(jobID, func(j *jobs.Job) {
			j.Status = jobs.StatusError
			j.Err = err
			j.Message = err.Error()
		})
		return err
	}

	if registry.IsCancelled(jobID) {
		processed, _ := registry.Get(jobID)
		log.Printf("[Engine] job %s cancelled after %d/%d frames", jobID, processed.ProcessedFrames, total)
		registry.Update(jobID, func(j *jobs.Job) {
			j.Status = jobs.StatusCancelled
		})
		return apperr.ErrCancelled
	}

	return nil
}

func (e *Engine) renderFrame(store *frames.Store, destDir string, t task) error {
	destPath := destPathFor(destDir, t.frameIndex)

	if len(t.active) == 0 {
		return copyBytes(store.Path(t.frameIndex), destPath)
	}

	src, err := store.Read(t.frameIndex)
	if err != nil {
		return err
	}

	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("%w: decode frame %d: %v", apperr.ErrEngine, t.frameIndex, err)
	}

	out := blurRectangles(img, t.active, e.BlurRadius)

	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("%w: create dest for frame %d: %v", apperr.ErrEngine, t.frameIndex, err)
	}
	defer destFile.Close()

	if err := jpeg.Encode(destFile, out, &jpeg.Options{Quality: 95}); err != nil {
		return fmt.Errorf("%w: encode frame %d: %v", apperr.ErrEngine, t.frameIndex, err)
	}
	return nil
}

// blurRectangles clamps each rectangle to the image bounds, and for every
// surviving non-degenerate rectangle, blurs that region in place and pastes
// it back (spec.md §4.D step 4, property 6 clamping safety).
func blurRectangles(img image.Image, active resolver.ActiveSet, radius float64) image.Image {
	bounds := img.Bounds()
	canvas := imaging.Clone(img)

	for _, rect := range active {
		clamped := clampRect(rect, bounds.Dx(), bounds.Dy())
		if clamped.Dx() <= 0 || clamped.Dy() <= 0 {
			continue // degenerate after clamping: silently skipped
		}
		region := imaging.Crop(canvas, clamped)
		blurred := imaging.Blur(region, radius)
		canvas = imaging.Paste(canvas, blurred, clamped.Min)
	}

	return canvas
}

func clampRect(r events.Rectangle, imgW, imgH int) image.Rectangle {
	x0 := clampInt(r.X, 0, imgW)
	y0 := clampInt(r.Y, 0, imgH)
	x1 := clampInt(r.X+r.W, 0, imgW)
	y1 := clampInt(r.Y+r.H, 0, imgH)
	return image.Rect(x0, y0, x1, y1)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func destPathFor(destDir string, frameIndex int) string {
	return fmt.Sprintf("%s/frame_%06d.jpg", destDir, frameIndex+1)
}

func copyBytes(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("%w: open source %s: %v", apperr.ErrStorage, srcPath, err)
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("%w: create dest %s: %v", apperr.ErrStorage, destPath, err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return fmt.Errorf("%w: copy %s to %s: %v", apperr.ErrStorage, srcPath, destPath, err)
	}
	return nil
}
