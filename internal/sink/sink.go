// Package sink delivers detection results to downstream consumers. The
// scheduler forwards every task that produced at least one result; sinks
// take it from there (logging, messaging, persistence).
package sink

import (
	"go.uber.org/zap"

	"github.com/argusvision/framesched/internal/model"
)

// LogSink writes detections to the structured log. Useful on its own in
// development and as a tee alongside the NATS sink in production.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a logging sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("log-sink")}
}

// Deliver implements the scheduler's ResultSink contract.
func (s *LogSink) Deliver(task *model.ProcessingTask, results []*model.DetectionResult) error {
	for _, r := range results {
		s.logger.Info("Detection",
			zap.String("stream_id", r.StreamID),
			zap.String("algorithm", r.Algorithm),
			zap.String("label", r.Label),
			zap.Float64("confidence", r.Confidence),
			zap.Uint64("sequence", r.Sequence))
	}
	return nil
}

// Multi fans one delivery out to several sinks. A failing sink is logged
// and skipped; the remaining sinks still receive the results.
type Multi struct {
	logger *zap.Logger
	sinks  []Sink
}

// Sink is the delivery contract shared by all sink implementations.
type Sink interface {
	Deliver(task *model.ProcessingTask, results []*model.DetectionResult) error
}

// NewMulti composes sinks into one.
func NewMulti(logger *zap.Logger, sinks ...Sink) *Multi {
	return &Multi{logger: logger.Named("multi-sink"), sinks: sinks}
}

// Deliver forwards to every sink.
func (m *Multi) Deliver(task *model.ProcessingTask, results []*model.DetectionResult) error {
	for _, s := range m.sinks {
		if err := s.Deliver(task, results); err != nil {
			m.logger.Error("Sink delivery failed", zap.Error(err))
		}
	}
	return nil
}
