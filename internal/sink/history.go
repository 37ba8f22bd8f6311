package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argusvision/framesched/internal/model"
	"github.com/argusvision/framesched/internal/storage"
)

// HistorySink persists detection events for operator forensics.
type HistorySink struct {
	logger  *zap.Logger
	history storage.DetectionHistory
}

// NewHistorySink creates a sink writing to the given history store.
func NewHistorySink(history storage.DetectionHistory, logger *zap.Logger) *HistorySink {
	return &HistorySink{
		logger:  logger.Named("history-sink"),
		history: history,
	}
}

// Deliver records one detection event.
func (s *HistorySink) Deliver(task *model.ProcessingTask, results []*model.DetectionResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	labels := make([]string, 0, len(results))
	for _, r := range results {
		labels = append(labels, r.Label)
	}

	event := &storage.DetectionEvent{
		ID:         uuid.New().String(),
		StreamID:   task.StreamID,
		Sequence:   task.Sequence,
		Timestamp:  task.Timestamp,
		Labels:     strings.Join(labels, ","),
		Results:    data,
		RecordedAt: time.Now(),
	}

	if err := s.history.Store(context.Background(), event); err != nil {
		return fmt.Errorf("failed to store detection event: %w", err)
	}
	return nil
}
