package tracking

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TextHit is one OCR-recognized word/line with its confidence and bounding
// box, in the coordinate space of the image passed to Recognize.
type TextHit struct {
	Text       string
	Confidence float64 // [0,1]
	Box        image.Rectangle
}

// OCR runs text recognition over an image region. Implementations must be
// safe for concurrent use.
type OCR interface {
	Recognize(img image.Image) ([]TextHit, error)
}

// tesseractOCR wraps a single *gosseract.Client behind a mutex: the
// underlying Tesseract C API is lazily initialized once per process and is
// not safe for concurrent Recognize calls on one client (spec.md §5), so
// every call is serialized rather than spun up per-call (client
// construction is the expensive part).
type tesseractOCR struct {
	mu       sync.Mutex
	client   *gosseract.Client
	language string
}

// NewTesseractOCR returns an OCR backed by Tesseract via gosseract, the de
// facto standard Go/Tesseract binding (no pack example repo binds OCR, so
// this dependency is named directly rather than grounded on a pack file —
// see DESIGN.md).
func NewTesseractOCR(language string) *tesseractOCR {
	client := gosseract.NewClient()
	if language != "" {
		client.SetLanguage(language)
	}
	return &tesseractOCR{client: client, language: language}
}

func (o *tesseractOCR) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.client.Close()
}

func (o *tesseractOCR) Recognize(img image.Image) ([]TextHit, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encode region for OCR: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set OCR image: %w", err)
	}

	boxes, err := o.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("OCR recognize: %w", err)
	}

	hits := make([]TextHit, 0, len(boxes))
	for _, b := range boxes {
		hits = append(hits, TextHit{
			Text:       b.Word,
			Confidence: b.Confidence / 100,
			Box:        b.Box,
		})
	}
	return hits, nil
}
