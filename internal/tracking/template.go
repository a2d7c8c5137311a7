package tracking

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"gocv.io/x/gocv"
)

// matchTemplate runs normalized cross-correlation of template against
// frame and returns the peak score in [0,1] (clamped) and the top-left
// location of the best match, grounded on gocv usage in the example pack
// (MiFaceDEV-miface, n0remac-robot-webrtc's cvpipe/pipeline.go, both of
// which decode frames via gocv.IMDecode before running CV operations).
func matchTemplate(frame, template image.Image) (float64, image.Point, error) {
	frameMat, err := toMat(frame)
	if err != nil {
		return 0, image.Point{}, fmt.Errorf("decode frame for template match: %w", err)
	}
	defer frameMat.Close()

	templMat, err := toMat(template)
	if err != nil {
		return 0, image.Point{}, fmt.Errorf("decode template for template match: %w", err)
	}
	defer templMat.Close()

	result := gocv.NewMat()
	defer result.Close()

	gocv.MatchTemplate(frameMat, templMat, &result, gocv.TmCcoeffNormed, gocv.NewMat())

	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)

	score := float64(maxVal)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, maxLoc, nil
}

func toMat(img image.Image) (gocv.Mat, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return gocv.Mat{}, err
	}
	mat, err := gocv.IMDecode(buf.Bytes(), gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, err
	}
	return mat, nil
}
