package tracking

import (
	"image"
	"image/draw"

	"videoredact/internal/events"
)

// expand returns r padded by pad pixels on every side, in image.Rectangle
// form so it composes with OCR bounding boxes.
func expand(r events.Rectangle, pad int) image.Rectangle {
	return image.Rect(r.X-pad, r.Y-pad, r.X+r.W+pad, r.Y+r.H+pad)
}

// expandRect pads an already-computed image.Rectangle.
func expandRect(r image.Rectangle, pad int) image.Rectangle {
	return image.Rect(r.Min.X-pad, r.Min.Y-pad, r.Max.X+pad, r.Max.Y+pad)
}

// cropPadded extracts the region around r (expanded by pad, clamped to the
// image bounds) as a standalone image, so OCR/template operations never
// see out-of-bounds coordinates.
func cropPadded(img image.Image, r events.Rectangle, pad int) image.Image {
	region := expand(r, pad).Intersect(img.Bounds())
	if region.Empty() {
		region = img.Bounds()
	}

	out := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(out, out.Bounds(), img, region.Min, draw.Src)
	return out
}

// matchTargets finds, for every target text, the best-scoring OCR hit by
// the combined fuzzy score, keeping it only if the score clears
// fuzzyMatchFloor. Returns the matched hits, the matched target texts
// (for TrackingResult.MatchedTexts), and the mean score over matches.
func matchTargets(targets []targetText, hits []TextHit) ([]TextHit, []string, float64) {
	var matched []TextHit
	var texts []string
	var totalScore float64

	for _, tgt := range targets {
		bestScore := 0.0
		var bestHit TextHit
		found := false
		for _, h := range hits {
			s := combinedScore(tgt.text, h.Text)
			if s > bestScore {
				bestScore = s
				bestHit = h
				found = true
			}
		}
		if found && bestScore >= fuzzyMatchFloor {
			matched = append(matched, bestHit)
			texts = append(texts, tgt.text)
			totalScore += bestScore
		}
	}

	mean := 0.0
	if len(matched) > 0 {
		mean = totalScore / float64(len(matched))
	}
	return matched, texts, mean
}

// boundingBoxOf returns the minimum bounding rectangle over hits' boxes,
// translated by offset (the local region's origin, for stage-1 hits whose
// boxes are relative to the cropped region rather than the full frame).
func boundingBoxOf(hits []TextHit, offset image.Point) image.Rectangle {
	var box image.Rectangle
	for i, h := range hits {
		b := h.Box.Add(offset)
		if i == 0 {
			box = b
		} else {
			box = box.Union(b)
		}
	}
	return box
}

// rectFromBoxPreserveSize takes a bounding box's position but preserves
// original's width/height: tracking moves the rectangle but never resizes
// it (spec.md §4.E step 5).
func rectFromBoxPreserveSize(box image.Rectangle, original events.Rectangle) events.Rectangle {
	return events.Rectangle{X: box.Min.X, Y: box.Min.Y, W: original.W, H: original.H}
}
