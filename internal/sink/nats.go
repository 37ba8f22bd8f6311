package sink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/argusvision/framesched/internal/model"
)

const (
	detectionStreamName   = "DETECTIONS"
	detectionSubjectScope = "detection.result.*"
	detectionSubjectFmt   = "detection.result.%s"

	detectionMaxAge = 24 * time.Hour
)

// DetectionEvent is the wire format published for each task with results.
// The alerting pipeline consumes these subjects.
type DetectionEvent struct {
	StreamID    string                   `json:"stream_id"`
	Sequence    uint64                   `json:"sequence"`
	Timestamp   float64                  `json:"timestamp"`
	Priority    model.PriorityClass      `json:"priority"`
	Results     []*model.DetectionResult `json:"results"`
	PublishedAt time.Time                `json:"published_at"`
}

// NATSSink publishes detection events to a JetStream stream, one subject
// per camera stream.
type NATSSink struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewNATSSink creates the sink and ensures the DETECTIONS stream exists.
func NewNATSSink(js nats.JetStreamContext, logger *zap.Logger) (*NATSSink, error) {
	info, err := js.StreamInfo(detectionStreamName)
	if err != nil && err != nats.ErrStreamNotFound {
		return nil, fmt.Errorf("failed to get stream info: %w", err)
	}

	if info == nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     detectionStreamName,
			Subjects: []string{detectionSubjectScope},
			Storage:  nats.FileStorage,
			MaxAge:   detectionMaxAge,
			Discard:  nats.DiscardOld,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream %s: %w", detectionStreamName, err)
		}
	}

	return &NATSSink{
		logger: logger.Named("nats-sink"),
		js:     js,
	}, nil
}

// Deliver publishes one detection event.
func (s *NATSSink) Deliver(task *model.ProcessingTask, results []*model.DetectionResult) error {
	event := DetectionEvent{
		StreamID:    task.StreamID,
		Sequence:    task.Sequence,
		Timestamp:   task.Timestamp,
		Priority:    task.Priority,
		Results:     results,
		PublishedAt: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal detection event: %w", err)
	}

	if _, err := s.js.Publish(fmt.Sprintf(detectionSubjectFmt, task.StreamID), data); err != nil {
		return fmt.Errorf("failed to publish detection event: %w", err)
	}

	s.logger.Debug("Detection event published",
		zap.String("stream_id", task.StreamID),
		zap.Uint64("sequence", task.Sequence),
		zap.Int("results", len(results)))

	return nil
}
