// Package tracking implements the Tracking Pipeline: a two-stage OCR scan
// (local region, then whole-frame fallback) with fuzzy text matching,
// position stabilization, and a template-matching fallback. Grounded
// directly on spec.md §4.E — no prior implementation of this algorithm
// exists in the teacher or the wider example pack (original_source/app.py
// contains no OCR or template-matching code at all) — with bbox/overlay
// conventions borrowed from server/webrtc/annotate.go.
package tracking

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log"

	"videoredact/internal/apperr"
	"videoredact/internal/events"
	"videoredact/internal/frames"
	"videoredact/internal/jobs"
)

// Method identifies which stage of the pipeline produced a TrackingResult.
type Method string

const (
	MethodOCRStage1 Method = "OCR_Stage1"
	MethodOCRStage2 Method = "OCR_Stage2"
	MethodTemplate  Method = "Template"
)

// TrackingResult is one emitted position update (spec.md §3). The sequence
// is strictly forward in frame order, finite, and non-restartable.
type TrackingResult struct {
	Frame        int
	Rect         events.Rectangle
	Confidence   float64
	Method       Method
	MatchedTexts []string
}

const (
	localPaddingPx      = 15
	boxPaddingPx        = 5
	stabilityThreshold  = 3
	ocrConfidenceFloor  = 0.5
	ocrMinUsefulTextLen = 2
	fuzzyMatchFloor     = 70.0
	stage1CoverageFloor = 0.8
	templateAcceptFloor = 0.6
	templateDriftFloor  = 0.8
)

// Tracker runs the tracking pipeline against a Frame Store.
type Tracker struct {
	Store    *frames.Store
	OCR      OCR
	FrameCap int // safety cap applied to the "all remaining" sentinel (spec default: 900)
}

// NewTracker returns a Tracker. frameCap should come from config
// (TrackingFrameCap).
func NewTracker(store *frames.Store, ocr OCR, frameCap int) *Tracker {
	return &Tracker{Store: store, OCR: ocr, FrameCap: frameCap}
}

type targetText struct {
	text       string
	confidence float64
}

// Track implements spec.md §4.E. frameLimit of 0 selects the "all
// remaining" sentinel, capped at t.FrameCap. Cancellation is checked once
// per frame via registry.
func (t *Tracker) Track(ctx context.Context, initial events.Rectangle, startFrame, frameLimit int, registry *jobs.Registry, jobID string) ([]TrackingResult, error) {
	maxIdx, err := t.Store.MaxIndex()
	if err != nil {
		return nil, err
	}

	effectiveLimit := frameLimit
	if effectiveLimit <= 0 || effectiveLimit > t.FrameCap {
		effectiveLimit = t.FrameCap
	}
	lastFrame := startFrame + effectiveLimit
	if lastFrame > maxIdx {
		lastFrame = maxIdx
	}

	startImg, err := t.decodeFrame(startFrame)
	if err != nil {
		return nil, err
	}

	templateImg := cropPadded(startImg, initial, 0)
	rawHits, err := t.OCR.Recognize(templateImg)
	if err != nil {
		return nil, fmt.Errorf("%w: initial OCR: %v", apperr.ErrInput, err)
	}

	var targets []targetText
	ocrUsable := false
	for _, h := range rawHits {
		if h.Confidence < ocrConfidenceFloor {
			continue
		}
		targets = append(targets, targetText{text: h.Text, confidence: h.Confidence})
		if len(h.Text) > ocrMinUsefulTextLen {
			ocrUsable = true
		}
	}

	current := initial
	var results []TrackingResult

	for frame := startFrame + 1; frame <= lastFrame; frame++ {
		if registry != nil && registry.IsCancelled(jobID) {
			log.Printf("[Tracker] job %s cancelled at frame %d", jobID, frame)
			break
		}

		img, err := t.decodeFrame(frame)
		if err != nil {
			break // store exhaustion ends the sequence, not an error
		}

		result, newTemplate, accepted := t.trackOneFrame(img, templateImg, current, targets, ocrUsable, frame)
		if !accepted {
			log.Printf("[Tracker] frame %d: tracking lost", frame)
			break
		}

		current = stabilize(current, result.Rect)
		result.Rect = current
		results = append(results, result)
		if newTemplate != nil {
			templateImg = newTemplate
		}
	}

	return results, nil
}

func (t *Tracker) trackOneFrame(img, templateImg image.Image, current events.Rectangle, targets []targetText, ocrUsable bool, frame int) (TrackingResult, image.Image, bool) {
	if ocrUsable {
		if res, ok := t.tryOCRStage1(img, current, targets, frame); ok {
			return res, nil, true
		}
		if res, ok := t.tryOCRStage2(img, current, targets, frame); ok {
			return res, nil, true
		}
	}

	return t.tryTemplate(img, templateImg, current, frame)
}

func (t *Tracker) tryOCRStage1(img image.Image, current events.Rectangle, targets []targetText, frame int) (TrackingResult, bool) {
	// Same clamping as cropPadded, so localRegion.Min is the crop's origin.
	localRegion := expand(current, localPaddingPx).Intersect(img.Bounds())
	if localRegion.Empty() {
		localRegion = img.Bounds()
	}
	localImg := cropPadded(img, current, localPaddingPx)

	hits, err := t.OCR.Recognize(localImg)
	if err != nil {
		return TrackingResult{}, false
	}

	matched, texts, meanScore := matchTargets(targets, hits)
	coverage := coverageRatio(len(matched), len(targets))
	if coverage < stage1CoverageFloor || len(matched) == 0 {
		return TrackingResult{}, false
	}

	box := boundingBoxOf(matched, localRegion.Min)
	box = expandRect(box, boxPaddingPx)

	return TrackingResult{
		Frame:        frame,
		Rect:         rectFromBoxPreserveSize(box, current),
		Confidence:   clamp01(0.7*meanScore/100 + 0.3*coverage),
		Method:       MethodOCRStage1,
		MatchedTexts: texts,
	}, true
}

func (t *Tracker) tryOCRStage2(img image.Image, current events.Rectangle, targets []targetText, frame int) (TrackingResult, bool) {
	hits, err := t.OCR.Recognize(img)
	if err != nil {
		return TrackingResult{}, false
	}

	matched, texts, meanScore := matchTargets(targets, hits)
	if len(matched) == 0 {
		return TrackingResult{}, false
	}

	coverage := coverageRatio(len(matched), len(targets))
	box := boundingBoxOf(matched, image.Point{})
	box = expandRect(box, boxPaddingPx)

	return TrackingResult{
		Frame:        frame,
		Rect:         rectFromBoxPreserveSize(box, current),
		Confidence:   clamp01(0.7*meanScore/100 + 0.3*coverage),
		Method:       MethodOCRStage2,
		MatchedTexts: texts,
	}, true
}

func (t *Tracker) tryTemplate(img, templateImg image.Image, current events.Rectangle, frame int) (TrackingResult, image.Image, bool) {
	peak, loc, err := matchTemplate(img, templateImg)
	if err != nil || peak < templateAcceptFloor {
		return TrackingResult{}, nil, false
	}

	rect := events.Rectangle{X: loc.X, Y: loc.Y, W: current.W, H: current.H}
	result := TrackingResult{
		Frame:      frame,
		Rect:       rect,
		Confidence: clamp01(peak),
		Method:     MethodTemplate,
	}

	var newTemplate image.Image
	if peak > templateDriftFloor {
		newTemplate = cropPadded(img, rect, 0)
	}

	return result, newTemplate, true
}

// stabilize keeps the current tracked position if the new one differs by
// at most stabilityThreshold pixels in each axis (spec.md §4.E step 5,
// property 8).
func stabilize(current, next events.Rectangle) events.Rectangle {
	dx := next.X - current.X
	dy := next.Y - current.Y
	if abs(dx) <= stabilityThreshold && abs(dy) <= stabilityThreshold {
		return events.Rectangle{X: current.X, Y: current.Y, W: next.W, H: next.H}
	}
	return next
}

func (t *Tracker) decodeFrame(frameIndex int) (image.Image, error) {
	data, err := t.Store.Read(frameIndex)
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode frame %d: %v", apperr.ErrEngine, frameIndex, err)
	}
	return img, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func coverageRatio(matched, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}
