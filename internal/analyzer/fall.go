package analyzer

import (
	"context"

	"go.uber.org/zap"

	"github.com/argusvision/framesched/internal/model"
)

// FallDetector is a heuristic stand-in for a pose-estimation fall model.
// It interprets the frame as rows of a fixed width and flags frames whose
// intensity mass is concentrated in the lower band of the image, the
// signature a floor-level subject leaves in a ceiling-mounted camera.
type FallDetector struct {
	logger   *zap.Logger
	rowWidth int
	ratio    float64
}

// NewFallDetector creates a fall detector. rowWidth is the assumed frame
// width in bytes; ratio is the lower-band mass fraction that triggers a
// detection (e.g. 0.6).
func NewFallDetector(logger *zap.Logger, rowWidth int, ratio float64) *FallDetector {
	return &FallDetector{
		logger:   logger.Named("fall"),
		rowWidth: rowWidth,
		ratio:    ratio,
	}
}

// Execute implements the algorithm executor contract.
func (d *FallDetector) Execute(ctx context.Context, frame []byte, timestamp float64, sequence uint64) (*model.DetectionResult, error) {
	rows := len(frame) / d.rowWidth
	if rows < 4 {
		return nil, nil
	}

	var total, lower int64
	split := rows * 2 / 3
	for r := 0; r < rows; r++ {
		var rowSum int64
		for _, b := range frame[r*d.rowWidth : (r+1)*d.rowWidth] {
			rowSum += int64(b)
		}
		total += rowSum
		if r >= split {
			lower += rowSum
		}
	}
	if total == 0 {
		return nil, nil
	}

	mass := float64(lower) / float64(total)
	if mass < d.ratio {
		return nil, nil
	}

	d.logger.Debug("Fall signature detected",
		zap.Uint64("sequence", sequence),
		zap.Float64("lower_mass", mass))

	return &model.DetectionResult{
		Algorithm:  "fall",
		Timestamp:  timestamp,
		Sequence:   sequence,
		Label:      "fall",
		Confidence: clamp01((mass - d.ratio) / (1 - d.ratio)),
		Details:    map[string]float64{"lower_mass": mass},
	}, nil
}
