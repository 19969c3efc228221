package screencast

import "time"

// fpsTier maps a total-pixel ceiling to the highest sustainable frame
// rate. Larger frames cost more to encode, ship, and blit, so the floor
// drops as resolution grows.
type fpsTier struct {
	maxPixels int
	fps       int
}

var fpsTiers = []fpsTier{
	{480_000, 60},
	{921_600, 45},
	{2_073_600, 30},
	{3_686_400, 24},
}

const minFPS = 15

// FPSForPixels returns the frame-rate cap for a viewport of the given
// total pixel count.
func FPSForPixels(pixels int) int {
	for _, t := range fpsTiers {
		if pixels <= t.maxPixels {
			return t.fps
		}
	}
	return minFPS
}

// MinInterval returns the minimum time between rendered frames for the
// given viewport, optionally clamped by a user FPS cap.
func MinInterval(pixels, fpsCap int) time.Duration {
	fps := FPSForPixels(pixels)
	if fpsCap > 0 && fpsCap < fps {
		fps = fpsCap
	}
	return time.Second / time.Duration(fps)
}

// QualityTier selects the encoder quality / frame-thinning trade-off.
// Tier 0 is the cheapest, tier 3 the best-looking.
type QualityTier int

const (
	QualityLowest QualityTier = iota
	QualityLow
	QualityMedium
	QualityHigh
)

// Params returns the JPEG quality and every-nth-frame setting for the
// tier.
func (t QualityTier) Params() (quality, everyNth int) {
	switch t {
	case QualityLowest:
		return 25, 3
	case QualityLow:
		return 35, 2
	case QualityMedium:
		return 50, 2
	default:
		return 70, 1
	}
}

// Clamp keeps the tier in its defined range.
func (t QualityTier) Clamp() QualityTier {
	if t < QualityLowest {
		return QualityLowest
	}
	if t > QualityHigh {
		return QualityHigh
	}
	return t
}
