package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/argusvision/framesched/internal/algorithm"
	"github.com/argusvision/framesched/internal/model"
)

// countingSink records every delivery it receives.
type countingSink struct {
	mu         sync.Mutex
	deliveries int
	results    []*model.DetectionResult
}

func (s *countingSink) Deliver(task *model.ProcessingTask, results []*model.DetectionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries++
	s.results = append(s.results, results...)
	return nil
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveries
}

func testConfig(resources ...ResourceConfig) Config {
	cfg := DefaultConfig()
	cfg.QueueCapacity = 16
	cfg.DispatchIdleWait = time.Millisecond
	cfg.HealthInterval = 50 * time.Millisecond
	cfg.DrainTimeout = 2 * time.Second
	cfg.Resources = resources
	return cfg
}

// detectAlways registers an executor that always yields a result.
func detectAlways(reg *algorithm.Registry, name string) {
	for _, rtype := range model.ResourceTypes {
		reg.Register(rtype, name, algorithm.ExecutorFunc(
			func(ctx context.Context, frame []byte, ts float64, seq uint64) (*model.DetectionResult, error) {
				return &model.DetectionResult{Algorithm: name, Label: name, Confidence: 1}, nil
			}))
	}
}

func TestSubmitFrameUnknownStream(t *testing.T) {
	s := New(testConfig(ResourceConfig{Type: model.ResourceCPU, Count: 1, MaxConcurrent: 1}),
		algorithm.NewRegistry(zaptest.NewLogger(t)), nil, zaptest.NewLogger(t))

	accepted, err := s.SubmitFrame("ghost", []byte{1}, 1.0, 1)
	assert.False(t, accepted)
	assert.ErrorIs(t, err, ErrUnknownStream)
}

func TestSubmitFrameOverflow(t *testing.T) {
	cfg := testConfig(ResourceConfig{Type: model.ResourceCPU, Count: 1, MaxConcurrent: 1})
	cfg.QueueCapacity = 2
	s := New(cfg, algorithm.NewRegistry(zaptest.NewLogger(t)), nil, zaptest.NewLogger(t))

	require.NoError(t, s.AddStream(streamConfig("cam-1", model.PriorityNormal)))

	ok, err := s.SubmitFrame("cam-1", []byte{1}, 1.0, 1)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.SubmitFrame("cam-1", []byte{2}, 2.0, 2)
	require.NoError(t, err)
	require.True(t, ok)

	// Third frame is the newcomer; it is rejected, counted, and the queue
	// keeps [T1, T2] in timestamp order.
	ok, err = s.SubmitFrame("cam-1", []byte{3}, 3.0, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Global.QueueOverflows)
	assert.Equal(t, 2, stats.QueueDepths[model.PriorityNormal])

	assert.Equal(t, uint64(1), s.queues[model.PriorityNormal].Pop().Sequence)
	assert.Equal(t, uint64(2), s.queues[model.PriorityNormal].Pop().Sequence)
}

func TestStrictPriorityOrdering(t *testing.T) {
	s := New(testConfig(ResourceConfig{Type: model.ResourceCPU, Count: 1, MaxConcurrent: 1}),
		algorithm.NewRegistry(zaptest.NewLogger(t)), nil, zaptest.NewLogger(t))

	require.NoError(t, s.AddStream(streamConfig("cam-normal", model.PriorityNormal)))
	require.NoError(t, s.AddStream(streamConfig("cam-critical", model.PriorityCritical)))

	// Normal frame arrives first, critical second, same capture instant.
	_, err := s.SubmitFrame("cam-normal", []byte{1}, 1.0, 1)
	require.NoError(t, err)
	_, err = s.SubmitFrame("cam-critical", []byte{1}, 1.0, 1)
	require.NoError(t, err)

	first := s.nextTask()
	require.NotNil(t, first)
	assert.Equal(t, "cam-critical", first.StreamID)

	second := s.nextTask()
	require.NotNil(t, second)
	assert.Equal(t, "cam-normal", second.StreamID)
}

func TestAdmissionCopiesPriority(t *testing.T) {
	s := New(testConfig(ResourceConfig{Type: model.ResourceCPU, Count: 1, MaxConcurrent: 1}),
		algorithm.NewRegistry(zaptest.NewLogger(t)), nil, zaptest.NewLogger(t))

	require.NoError(t, s.AddStream(streamConfig("cam-1", model.PriorityLow)))
	_, err := s.SubmitFrame("cam-1", []byte{1}, 1.0, 1)
	require.NoError(t, err)

	// Raising the stream's priority must not reorder the queued task.
	require.NoError(t, s.AdjustStreamPriority("cam-1", model.PriorityCritical))
	assert.Equal(t, 1, s.queues[model.PriorityLow].Len())
	assert.Equal(t, 0, s.queues[model.PriorityCritical].Len())

	// The next submission carries the new class.
	_, err = s.SubmitFrame("cam-1", []byte{1}, 2.0, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, s.queues[model.PriorityCritical].Len())
}

func TestRetryCeiling(t *testing.T) {
	cfg := testConfig(ResourceConfig{Type: model.ResourceCPU, Count: 1, MaxConcurrent: 1})
	cfg.RetryWait = 5 * time.Millisecond
	reg := algorithm.NewRegistry(zaptest.NewLogger(t))
	s := New(cfg, reg, nil, zaptest.NewLogger(t))

	require.NoError(t, s.AddStream(streamConfig("cam-1", model.PriorityNormal)))
	require.NoError(t, s.SetProcessorFault("cpu-0", true))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	_, err := s.SubmitFrame("cam-1", []byte{1}, 1.0, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.Stats().Global.RetriesExceeded == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Dropped, not requeued, and distinct from the overflow counter.
	stats := s.Stats()
	assert.Equal(t, int64(0), stats.Global.QueueOverflows)
	assert.Equal(t, 0, stats.QueueDepths[model.PriorityNormal])
	assert.Equal(t, int64(0), stats.Global.TotalFramesProcessed)
}

func TestConcurrencyCeilingAndCompletion(t *testing.T) {
	cfg := testConfig(ResourceConfig{Type: model.ResourceCPU, Count: 2, MaxConcurrent: 2})
	reg := algorithm.NewRegistry(zaptest.NewLogger(t))

	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	for _, rtype := range model.ResourceTypes {
		reg.Register(rtype, "slow", algorithm.ExecutorFunc(
			func(ctx context.Context, frame []byte, ts float64, seq uint64) (*model.DetectionResult, error) {
				cur := inFlight.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				defer inFlight.Add(-1)
				select {
				case <-release:
				case <-ctx.Done():
				}
				return &model.DetectionResult{Algorithm: "slow", Label: "ok", Confidence: 1}, nil
			}))
	}

	sink := &countingSink{}
	s := New(cfg, reg, sink, zaptest.NewLogger(t))

	stream := streamConfig("cam-1", model.PriorityNormal)
	stream.Algorithms = []string{"slow"}
	require.NoError(t, s.AddStream(stream))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	for i := 1; i <= 5; i++ {
		ok, err := s.SubmitFrame("cam-1", []byte{byte(i)}, float64(i), uint64(i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Total pool capacity is 4: the first four frames run concurrently,
	// the fifth waits for a slot.
	require.Eventually(t, func() bool {
		return inFlight.Load() == 4
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(4), inFlight.Load())
	for _, id := range []string{"cpu-0", "cpu-1"} {
		m, err := s.ProcessorMetrics(id)
		require.NoError(t, err)
		assert.LessOrEqual(t, m.CurrentTasks, 2)
	}

	close(release)

	require.Eventually(t, func() bool {
		return s.Stats().Global.TotalFramesProcessed == 5
	}, 2*time.Second, 5*time.Millisecond)

	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.Equal(t, 5, sink.count())

	m, err := s.StreamMetrics("cam-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), m.FramesProcessed)
}

func TestProcessingTimeoutDegradesTask(t *testing.T) {
	cfg := testConfig(ResourceConfig{Type: model.ResourceCPU, Count: 1, MaxConcurrent: 1})
	cfg.ProcessingTimeout = 50 * time.Millisecond
	reg := algorithm.NewRegistry(zaptest.NewLogger(t))

	for _, rtype := range model.ResourceTypes {
		reg.Register(rtype, "stuck", algorithm.ExecutorFunc(
			func(ctx context.Context, frame []byte, ts float64, seq uint64) (*model.DetectionResult, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}))
	}
	detectAlways(reg, "motion")

	sink := &countingSink{}
	s := New(cfg, reg, sink, zaptest.NewLogger(t))

	stream := streamConfig("cam-1", model.PriorityNormal)
	stream.Algorithms = []string{"stuck", "motion"}
	require.NoError(t, s.AddStream(stream))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	_, err := s.SubmitFrame("cam-1", []byte{1}, 1.0, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.Stats().Global.TotalFramesProcessed == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The stuck algorithm errors; the remaining one is abandoned under the
	// expired deadline. The task itself still completes and is accounted.
	stats := s.Stats()
	assert.GreaterOrEqual(t, stats.Global.Errors, int64(1))
	assert.Equal(t, 0, sink.count())

	// The processor slot was freed.
	m, err := s.ProcessorMetrics("cpu-0")
	require.NoError(t, err)
	assert.Equal(t, 0, m.CurrentTasks)
}

func TestPartialAlgorithmFailure(t *testing.T) {
	cfg := testConfig(ResourceConfig{Type: model.ResourceCPU, Count: 1, MaxConcurrent: 1})
	reg := algorithm.NewRegistry(zaptest.NewLogger(t))

	for _, rtype := range model.ResourceTypes {
		reg.Register(rtype, "broken", algorithm.ExecutorFunc(
			func(ctx context.Context, frame []byte, ts float64, seq uint64) (*model.DetectionResult, error) {
				panic("algorithm bug")
			}))
	}
	detectAlways(reg, "motion")

	sink := &countingSink{}
	s := New(cfg, reg, sink, zaptest.NewLogger(t))

	stream := streamConfig("cam-1", model.PriorityNormal)
	stream.Algorithms = []string{"broken", "motion"}
	require.NoError(t, s.AddStream(stream))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	_, err := s.SubmitFrame("cam-1", []byte{1}, 1.0, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return sink.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// One algorithm failed, the other still produced a result: a degraded
	// but delivered task.
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.results, 1)
	assert.Equal(t, "motion", sink.results[0].Algorithm)
	assert.Equal(t, "cam-1", sink.results[0].StreamID)
}

func TestStatsSnapshotShape(t *testing.T) {
	cfg := testConfig(
		ResourceConfig{Type: model.ResourceCPU, Count: 2, MaxConcurrent: 2},
		ResourceConfig{Type: model.ResourceGPU, Count: 1, MaxConcurrent: 4},
	)
	s := New(cfg, algorithm.NewRegistry(zaptest.NewLogger(t)), nil, zaptest.NewLogger(t))

	require.NoError(t, s.AddStream(streamConfig("cam-1", model.PriorityCritical)))
	require.NoError(t, s.AddStream(streamConfig("cam-2", model.PriorityCritical)))
	require.NoError(t, s.AddStream(streamConfig("cam-3", model.PriorityLow)))

	snap := s.Stats()
	assert.Len(t, snap.Processors, 3)
	assert.Equal(t, 2, snap.ProcessorTypes[model.ResourceCPU].Count)
	assert.Equal(t, 1, snap.ProcessorTypes[model.ResourceGPU].Count)
	assert.Equal(t, 3, snap.ProcessorStatus[model.ProcessorStatusIdle])
	assert.Equal(t, 2, snap.Streams[model.PriorityCritical].Streams)
	assert.Equal(t, 1, snap.Streams[model.PriorityLow].Streams)
	for _, class := range model.PriorityClasses {
		assert.Equal(t, 0, snap.QueueDepths[class])
	}
}

func TestRemoveStreamLeavesQueuedTasks(t *testing.T) {
	s := New(testConfig(ResourceConfig{Type: model.ResourceCPU, Count: 1, MaxConcurrent: 1}),
		algorithm.NewRegistry(zaptest.NewLogger(t)), nil, zaptest.NewLogger(t))

	require.NoError(t, s.AddStream(streamConfig("cam-1", model.PriorityNormal)))
	_, err := s.SubmitFrame("cam-1", []byte{1}, 1.0, 1)
	require.NoError(t, err)

	require.NoError(t, s.RemoveStream("cam-1"))
	assert.Equal(t, 1, s.queues[model.PriorityNormal].Len())
}
