package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/argusvision/framesched/internal/model"
)

func streamConfig(id string, priority model.PriorityClass) model.StreamConfig {
	return model.StreamConfig{
		ID:         id,
		Source:     "rtsp://example/" + id,
		Priority:   priority,
		TargetFPS:  10,
		Resolution: "640x480",
		Algorithms: []string{"motion"},
	}
}

func TestStreamRegistryAdd(t *testing.T) {
	r := NewStreamRegistry(2, zaptest.NewLogger(t))

	require.NoError(t, r.Add(streamConfig("cam-1", model.PriorityNormal)))

	t.Run("Duplicate", func(t *testing.T) {
		err := r.Add(streamConfig("cam-1", model.PriorityHigh))
		assert.ErrorIs(t, err, ErrDuplicateStream)
		assert.Equal(t, 1, r.Count())

		// The original config is untouched.
		cfg, err := r.Config("cam-1")
		require.NoError(t, err)
		assert.Equal(t, model.PriorityNormal, cfg.Priority)
	})

	t.Run("Capacity", func(t *testing.T) {
		require.NoError(t, r.Add(streamConfig("cam-2", model.PriorityLow)))
		err := r.Add(streamConfig("cam-3", model.PriorityLow))
		assert.ErrorIs(t, err, ErrCapacityExceeded)
		assert.Equal(t, 2, r.Count())
	})

	t.Run("InvalidPriority", func(t *testing.T) {
		err := r.Add(streamConfig("cam-4", model.PriorityClass(9)))
		assert.ErrorIs(t, err, ErrInvalidPriority)
	})
}

func TestStreamRegistryRemove(t *testing.T) {
	r := NewStreamRegistry(4, zaptest.NewLogger(t))

	require.NoError(t, r.Add(streamConfig("cam-1", model.PriorityNormal)))
	require.NoError(t, r.Remove("cam-1"))
	assert.ErrorIs(t, r.Remove("cam-1"), ErrStreamNotFound)

	_, err := r.Metrics("cam-1")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestStreamRegistryAdjustPriority(t *testing.T) {
	r := NewStreamRegistry(4, zaptest.NewLogger(t))

	require.NoError(t, r.Add(streamConfig("cam-1", model.PriorityNormal)))
	require.NoError(t, r.AdjustPriority("cam-1", model.PriorityCritical))

	cfg, err := r.Config("cam-1")
	require.NoError(t, err)
	assert.Equal(t, model.PriorityCritical, cfg.Priority)

	assert.ErrorIs(t, r.AdjustPriority("ghost", model.PriorityHigh), ErrStreamNotFound)
	assert.ErrorIs(t, r.AdjustPriority("cam-1", model.PriorityClass(0)), ErrInvalidPriority)
}

func TestStreamMetricsRecording(t *testing.T) {
	r := NewStreamRegistry(4, zaptest.NewLogger(t))
	require.NoError(t, r.Add(streamConfig("cam-1", model.PriorityNormal)))

	entry := r.lookup("cam-1")
	require.NotNil(t, entry)

	now := time.Now()
	entry.recordCompletion(0.05, 0, now)
	entry.recordCompletion(0.10, 1, now.Add(100*time.Millisecond))

	m, err := r.Metrics("cam-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.FramesProcessed)
	assert.Equal(t, int64(1), m.Errors)
	assert.InDelta(t, 0.055, m.AvgLatency, 1e-9)
	assert.InDelta(t, 10.0, m.CurrentFPS, 0.5)
}
