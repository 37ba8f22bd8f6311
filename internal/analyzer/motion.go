package analyzer

import (
	"context"

	"go.uber.org/zap"

	"github.com/argusvision/framesched/internal/model"
)

// MotionDetector is a pixel-activity heuristic standing in for a real
// optical-flow model. It measures mean absolute deviation from the frame's
// mean intensity; flat frames (empty scene, lens covered) score near zero.
// Stateless, so one instance may serve any number of concurrent streams.
type MotionDetector struct {
	logger    *zap.Logger
	threshold float64
}

// NewMotionDetector creates a motion detector with the given activity
// threshold (mean absolute deviation, 0-255 scale).
func NewMotionDetector(logger *zap.Logger, threshold float64) *MotionDetector {
	return &MotionDetector{
		logger:    logger.Named("motion"),
		threshold: threshold,
	}
}

// Execute implements the algorithm executor contract.
func (d *MotionDetector) Execute(ctx context.Context, frame []byte, timestamp float64, sequence uint64) (*model.DetectionResult, error) {
	if len(frame) == 0 {
		return nil, nil
	}

	var sum int64
	for _, b := range frame {
		sum += int64(b)
	}
	mean := float64(sum) / float64(len(frame))

	var dev float64
	for _, b := range frame {
		delta := float64(b) - mean
		if delta < 0 {
			delta = -delta
		}
		dev += delta
	}
	activity := dev / float64(len(frame))

	if activity < d.threshold {
		return nil, nil
	}

	d.logger.Debug("Motion detected",
		zap.Uint64("sequence", sequence),
		zap.Float64("activity", activity))

	return &model.DetectionResult{
		Algorithm:  "motion",
		Timestamp:  timestamp,
		Sequence:   sequence,
		Label:      "motion",
		Confidence: clamp01(activity / (d.threshold * 4)),
		Details:    map[string]float64{"activity": activity},
	}, nil
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
