package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/argusvision/framesched/internal/model"
)

// streamEntry pairs a stream's config with its live metrics. Metrics are
// guarded by a per-stream mutex so concurrent completions for different
// streams never contend.
type streamEntry struct {
	mu      sync.Mutex
	config  model.StreamConfig
	metrics model.StreamMetrics
}

// recordCompletion folds one finished task into the stream's metrics.
func (e *streamEntry) recordCompletion(latency float64, errs int, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.metrics.FramesProcessed++
	e.metrics.Errors += int64(errs)

	// Exponential moving average, same weight as processor durations.
	if e.metrics.AvgLatency == 0 {
		e.metrics.AvgLatency = latency
	} else {
		e.metrics.AvgLatency = e.metrics.AvgLatency*(1-ewmaWeight) + latency*ewmaWeight
	}

	if !e.metrics.LastFrameAt.IsZero() {
		if gap := now.Sub(e.metrics.LastFrameAt).Seconds(); gap > 0 {
			e.metrics.CurrentFPS = 1 / gap
		}
	}
	e.metrics.LastFrameAt = now
}

// StreamRegistry is the admission-control table of active streams.
type StreamRegistry struct {
	logger     *zap.Logger
	maxStreams int

	mu      sync.RWMutex
	streams map[string]*streamEntry
}

// NewStreamRegistry creates a registry admitting at most maxStreams streams.
func NewStreamRegistry(maxStreams int, logger *zap.Logger) *StreamRegistry {
	return &StreamRegistry{
		logger:     logger.Named("stream-registry"),
		maxStreams: maxStreams,
		streams:    make(map[string]*streamEntry),
	}
}

// Add registers a stream and a zeroed metrics record. It has no side
// effects on failure.
func (r *StreamRegistry) Add(config model.StreamConfig) error {
	if !config.Priority.Valid() {
		return ErrInvalidPriority
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.streams) >= r.maxStreams {
		return ErrCapacityExceeded
	}
	if _, exists := r.streams[config.ID]; exists {
		return ErrDuplicateStream
	}

	r.streams[config.ID] = &streamEntry{
		config:  config,
		metrics: model.StreamMetrics{StreamID: config.ID},
	}

	r.logger.Info("Stream registered",
		zap.String("stream_id", config.ID),
		zap.String("priority", config.Priority.String()),
		zap.Int("stream_count", len(r.streams)))

	return nil
}

// Remove deletes a stream's config and metrics. Tasks already queued for
// the stream are not purged; they complete or drop normally.
func (r *StreamRegistry) Remove(streamID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.streams[streamID]; !exists {
		return ErrStreamNotFound
	}
	delete(r.streams, streamID)

	r.logger.Info("Stream removed", zap.String("stream_id", streamID))
	return nil
}

// AdjustPriority changes a stream's priority class for future submissions.
// Already-queued tasks keep the class they were admitted with.
func (r *StreamRegistry) AdjustPriority(streamID string, priority model.PriorityClass) error {
	if !priority.Valid() {
		return ErrInvalidPriority
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.streams[streamID]
	if !exists {
		return ErrStreamNotFound
	}

	old := entry.config.Priority
	entry.config.Priority = priority

	r.logger.Info("Stream priority adjusted",
		zap.String("stream_id", streamID),
		zap.String("old_priority", old.String()),
		zap.String("new_priority", priority.String()))

	return nil
}

// lookup returns the live entry for a stream, or nil if unregistered.
func (r *StreamRegistry) lookup(streamID string) *streamEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.streams[streamID]
}

// Config returns a copy of a stream's config.
func (r *StreamRegistry) Config(streamID string) (model.StreamConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.streams[streamID]
	if !exists {
		return model.StreamConfig{}, ErrStreamNotFound
	}
	return entry.config, nil
}

// Metrics returns a copy of a stream's metrics.
func (r *StreamRegistry) Metrics(streamID string) (model.StreamMetrics, error) {
	r.mu.RLock()
	entry, exists := r.streams[streamID]
	r.mu.RUnlock()

	if !exists {
		return model.StreamMetrics{}, ErrStreamNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.metrics, nil
}

// Count returns the number of registered streams.
func (r *StreamRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// countByPriority returns stream counts and summed fps per priority class.
func (r *StreamRegistry) countByPriority() (map[model.PriorityClass]int, map[model.PriorityClass]float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[model.PriorityClass]int)
	fps := make(map[model.PriorityClass]float64)
	for _, entry := range r.streams {
		entry.mu.Lock()
		counts[entry.config.Priority]++
		fps[entry.config.Priority] += entry.metrics.CurrentFPS
		entry.mu.Unlock()
	}
	return counts, fps
}
