package calibration

import (
	"image"
	"math"

	"github.com/ayusman/paperbeat/internal/config"
)

// Candidate is one connected edge component considered as the paper.
type Candidate struct {
	Label int
	// Box is the component's bounding box in full-resolution pixels.
	Box image.Rectangle
	// Luminance is the mean grayscale value inside Box, sampled from the
	// full-resolution frame.
	Luminance float64
}

// scoreCandidate rates a candidate found inside region of a frame that is
// frameHeight pixels tall. It returns false when a hard filter rejects it.
func scoreCandidate(c Candidate, cfg config.SurfaceConfig, region image.Rectangle, frameHeight int) (float64, bool) {
	w, h := c.Box.Dx(), c.Box.Dy()
	if w <= 0 || h <= 0 || region.Empty() || frameHeight <= 0 {
		return 0, false
	}

	areaFrac := float64(w*h) / float64(region.Dx()*region.Dy())
	if areaFrac < cfg.MinAreaFraction || areaFrac > cfg.MaxAreaFraction {
		return 0, false
	}

	aspect := float64(w) / float64(h)
	if aspect < cfg.MinAspect {
		return 0, false
	}

	if c.Luminance < cfg.MinLuminance {
		return 0, false
	}

	aspectScore := 1 / (1 + math.Abs(aspect-cfg.PreferredAspect))
	centerY := float64(c.Box.Min.Y+c.Box.Max.Y) / 2
	verticalScore := 0.5 + 0.5*math.Min(1, centerY/float64(frameHeight))
	luminanceScore := c.Luminance / 255

	return areaFrac * aspectScore * verticalScore * luminanceScore, true
}

// selectCandidate returns the best scoring candidate. Earlier candidates
// win ties.
func selectCandidate(cands []Candidate, cfg config.SurfaceConfig, region image.Rectangle, frameHeight int) (Candidate, bool) {
	var (
		best      Candidate
		bestScore float64
		found     bool
	)
	for _, c := range cands {
		score, ok := scoreCandidate(c, cfg, region, frameHeight)
		if !ok {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = c, score, true
		}
	}
	return best, found
}
