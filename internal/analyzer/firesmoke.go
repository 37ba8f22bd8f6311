package analyzer

import (
	"context"

	"go.uber.org/zap"

	"github.com/argusvision/framesched/internal/model"
)

// FireSmokeDetector is a color-mass heuristic stand-in for a fire/smoke
// classification model. It treats the frame as packed RGB triplets and
// measures the fraction of pixels in the warm band (red dominant over blue).
type FireSmokeDetector struct {
	logger   *zap.Logger
	fraction float64
}

// NewFireSmokeDetector creates a fire/smoke detector triggering when the
// warm-pixel fraction exceeds the given value (e.g. 0.25).
func NewFireSmokeDetector(logger *zap.Logger, fraction float64) *FireSmokeDetector {
	return &FireSmokeDetector{
		logger:   logger.Named("firesmoke"),
		fraction: fraction,
	}
}

// Execute implements the algorithm executor contract.
func (d *FireSmokeDetector) Execute(ctx context.Context, frame []byte, timestamp float64, sequence uint64) (*model.DetectionResult, error) {
	pixels := len(frame) / 3
	if pixels == 0 {
		return nil, nil
	}

	var warm int
	for i := 0; i+2 < len(frame); i += 3 {
		r, g, b := int(frame[i]), int(frame[i+1]), int(frame[i+2])
		if r > 160 && r > b+40 && g > b {
			warm++
		}
	}

	frac := float64(warm) / float64(pixels)
	if frac < d.fraction {
		return nil, nil
	}

	d.logger.Debug("Fire/smoke signature detected",
		zap.Uint64("sequence", sequence),
		zap.Float64("warm_fraction", frac))

	return &model.DetectionResult{
		Algorithm:  "firesmoke",
		Timestamp:  timestamp,
		Sequence:   sequence,
		Label:      "fire_smoke",
		Confidence: clamp01(frac / (d.fraction * 3)),
		Details:    map[string]float64{"warm_fraction": frac},
	}, nil
}
