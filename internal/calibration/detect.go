package calibration

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/paperbeat/internal/config"
	"github.com/ayusman/paperbeat/internal/zone"
)

// Detector finds the paper surface in a frame.
type Detector interface {
	Detect(frame gocv.Mat, cfg config.SurfaceConfig) (zone.Quad, error)
}

// SurfaceDetector finds a bright rectangular sheet in the lower part of a
// frame from the outline of its edges. It holds no state; identical frames
// and settings always give identical results.
type SurfaceDetector struct{}

// NewSurfaceDetector creates a SurfaceDetector.
func NewSurfaceDetector() *SurfaceDetector {
	return &SurfaceDetector{}
}

// Detect returns the quad of the best scoring surface candidate.
//
// Algorithm:
//  1. Downsample by cfg.Downsample (area interpolation)
//  2. Convert to grayscale
//  3. Apply a 3x3 Gaussian blur
//  4. Sobel x/y gradients, magnitude, binary threshold at cfg.EdgeThreshold
//  5. 4-connected components of the edge mask in the lower cfg.LowerFraction
//  6. Score each component's bounding box (size, aspect, height, luminance
//     from the full-resolution frame) and keep the best
func (d *SurfaceDetector) Detect(frame gocv.Mat, cfg config.SurfaceConfig) (zone.Quad, error) {
	if frame.Empty() {
		return zone.Quad{}, ErrEmptyFrame
	}

	factor := cfg.Downsample
	if factor < 1 {
		factor = 1
	}
	smallW, smallH := frame.Cols()/factor, frame.Rows()/factor
	if smallW < 3 || smallH < 3 {
		return zone.Quad{}, fmt.Errorf("%w: frame %dx%d too small", ErrCalibrationFailure, frame.Cols(), frame.Rows())
	}

	fullGray := gocv.NewMat()
	defer fullGray.Close()
	toGray(frame, &fullGray)

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(frame, &small, image.Point{X: smallW, Y: smallH}, 0, 0, gocv.InterpolationArea)

	gray := gocv.NewMat()
	defer gray.Close()
	toGray(small, &gray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: 3, Y: 3}, 0, 0, gocv.BorderDefault)

	edges := edgeMask(blurred, cfg.EdgeThreshold)
	defer edges.Close()

	top := int(float64(smallH) * (1 - cfg.LowerFraction))
	if top < 0 {
		top = 0
	}
	if top >= smallH-1 {
		return zone.Quad{}, fmt.Errorf("%w: empty search region", ErrCalibrationFailure)
	}
	searchSmall := image.Rect(0, top, smallW, smallH)

	roi := edges.Region(searchSmall)
	defer roi.Close()
	mask := roi.Clone()
	defer mask.Close()

	frameBounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	cands := components(mask, top, factor, frameBounds, fullGray)

	searchFull := image.Rect(0, top*factor, smallW*factor, smallH*factor).Intersect(frameBounds)
	best, ok := selectCandidate(cands, cfg, searchFull, frame.Rows())
	if !ok {
		return zone.Quad{}, fmt.Errorf("%w: %d candidates rejected", ErrCalibrationFailure, len(cands))
	}

	q := QuadFromRect(best.Box)
	if err := ValidateQuad(q, cfg.MinQuadArea); err != nil {
		return zone.Quad{}, fmt.Errorf("%w: %w", ErrCalibrationFailure, err)
	}
	return q, nil
}

func toGray(src gocv.Mat, dst *gocv.Mat) {
	if src.Channels() > 1 {
		gocv.CvtColor(src, dst, gocv.ColorBGRToGray)
	} else {
		src.CopyTo(dst)
	}
}

// edgeMask returns an 8-bit mask of pixels whose Sobel gradient magnitude is
// at least threshold. The caller closes the result.
func edgeMask(gray gocv.Mat, threshold float64) gocv.Mat {
	gx := gocv.NewMat()
	defer gx.Close()
	gy := gocv.NewMat()
	defer gy.Close()
	gocv.Sobel(gray, &gx, gocv.MatTypeCV32F, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(gray, &gy, gocv.MatTypeCV32F, 0, 1, 3, 1, 0, gocv.BorderDefault)

	mag := gocv.NewMat()
	defer mag.Close()
	gocv.Magnitude(gx, gy, &mag)

	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(mag, &bin, float32(threshold), 255, gocv.ThresholdBinary)

	mask := gocv.NewMat()
	bin.ConvertTo(&mask, gocv.MatTypeCV8U)
	return mask
}

// components labels the 4-connected components of mask and maps their
// bounding boxes back to full-resolution coordinates. offsetY is the row of
// the mask within the downsampled frame.
func components(mask gocv.Mat, offsetY, factor int, bounds image.Rectangle, fullGray gocv.Mat) []Candidate {
	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStatsWithParams(mask, &labels, &stats, &centroids,
		4, gocv.MatTypeCV32S, gocv.CCL_DEFAULT)

	var cands []Candidate
	// Label 0 is the background.
	for label := 1; label < n; label++ {
		left := int(stats.GetIntAt(label, int(gocv.CC_STAT_LEFT)))
		top := int(stats.GetIntAt(label, int(gocv.CC_STAT_TOP)))
		width := int(stats.GetIntAt(label, int(gocv.CC_STAT_WIDTH)))
		height := int(stats.GetIntAt(label, int(gocv.CC_STAT_HEIGHT)))

		box := image.Rect(
			left*factor,
			(top+offsetY)*factor,
			(left+width)*factor,
			(top+offsetY+height)*factor,
		).Intersect(bounds)
		if box.Empty() {
			continue
		}

		cands = append(cands, Candidate{
			Label:     label,
			Box:       box,
			Luminance: meanLuminance(fullGray, box),
		})
	}
	return cands
}

func meanLuminance(gray gocv.Mat, box image.Rectangle) float64 {
	roi := gray.Region(box)
	defer roi.Close()
	return roi.Mean().Val1
}
