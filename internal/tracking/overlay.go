package tracking

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"videoredact/internal/apperr"
	"videoredact/internal/frames"
)

// drawOverlay draws the tracked rectangle and every matched-text box onto
// a copy of frame, for the `track --debug-overlay` diagnostic path.
// Grounded directly on server/webrtc/annotate.go's DrawLabel/hashToBrightColor,
// repurposed from annotating VLM-detected objects to annotating tracker
// state.
func drawOverlay(frame image.Image, tracked image.Rectangle, matched []image.Rectangle, label string) *image.RGBA {
	bounds := frame.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, frame, bounds.Min, draw.Src)

	drawBox(out, tracked, hashToBrightColor(label))
	for _, box := range matched {
		drawBox(out, box, color.RGBA{R: 0, G: 200, B: 255, A: 255})
	}
	drawLabel(out, label, tracked.Min.X, tracked.Min.Y-4, hashToBrightColor(label))

	return out
}

func drawBox(img *image.RGBA, r image.Rectangle, c color.Color) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}

func drawLabel(img *image.RGBA, text string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// SaveDebugOverlays renders one annotated JPEG per TrackingResult into
// outDir, for the `videoredact track --debug-overlay` CLI path. Matched-text
// boxes are omitted since TrackingResult only carries matched text strings,
// not their frame-relative boxes.
func SaveDebugOverlays(store *frames.Store, results []TrackingResult, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("%w: create debug overlay dir %s: %v", apperr.ErrStorage, outDir, err)
	}

	for _, r := range results {
		data, err := store.Read(r.Frame)
		if err != nil {
			return err
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%w: decode frame %d for overlay: %v", apperr.ErrEngine, r.Frame, err)
		}

		tracked := image.Rect(r.Rect.X, r.Rect.Y, r.Rect.X+r.Rect.W, r.Rect.Y+r.Rect.H)
		label := fmt.Sprintf("%s %.2f", r.Method, r.Confidence)
		overlay := drawOverlay(img, tracked, nil, label)

		destPath := filepath.Join(outDir, fmt.Sprintf("frame_%06d.jpg", r.Frame+1))
		destFile, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("%w: create overlay file %s: %v", apperr.ErrStorage, destPath, err)
		}
		err = jpeg.Encode(destFile, overlay, &jpeg.Options{Quality: 95})
		destFile.Close()
		if err != nil {
			return fmt.Errorf("%w: encode overlay for frame %d: %v", apperr.ErrEngine, r.Frame, err)
		}
	}

	return nil
}


// hashToBrightColor derives a deterministic, visually bright color from a
// label string, so equal labels always get the same color.
func hashToBrightColor(s string) color.RGBA {
	sum := md5.Sum([]byte(s))
	return color.RGBA{
		R: 128 + sum[0]/2,
		G: 128 + sum[1]/2,
		B: 128 + sum[2]/2,
		A: 255,
	}
}
