package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/argusvision/framesched/internal/algorithm"
	"github.com/argusvision/framesched/internal/model"
)

// ResultSink receives every task that produced at least one detection.
// Implementations must be safe for concurrent calls.
type ResultSink interface {
	Deliver(task *model.ProcessingTask, results []*model.DetectionResult) error
}

// Config holds the scheduler tunables, supplied once at startup.
type Config struct {
	MaxStreams        int
	QueueCapacity     int
	MaxRetries        int
	ProcessingTimeout time.Duration
	DispatchIdleWait  time.Duration
	RetryWait         time.Duration
	DrainTimeout      time.Duration

	HealthInterval  time.Duration
	OverloadEnter   float64
	OverloadExit    float64
	CriticalBacklog int
	HighBacklog     int

	Resources []ResourceConfig
	Weights   Weights
}

// DefaultConfig returns the stock tunables: 4 CPU + 2 GPU + 2 NPU units,
// a 0.9/0.7 hysteresis band, three dispatch attempts per task.
func DefaultConfig() Config {
	return Config{
		MaxStreams:        64,
		QueueCapacity:     200,
		MaxRetries:        3,
		ProcessingTimeout: 5 * time.Second,
		DispatchIdleWait:  10 * time.Millisecond,
		RetryWait:         500 * time.Millisecond,
		DrainTimeout:      10 * time.Second,
		HealthInterval:    2 * time.Second,
		OverloadEnter:     0.9,
		OverloadExit:      0.7,
		CriticalBacklog:   50,
		HighBacklog:       100,
		Resources: []ResourceConfig{
			{Type: model.ResourceCPU, Count: 4, MaxConcurrent: 2},
			{Type: model.ResourceGPU, Count: 2, MaxConcurrent: 4},
			{Type: model.ResourceNPUA, Count: 1, MaxConcurrent: 4},
			{Type: model.ResourceNPUB, Count: 1, MaxConcurrent: 4},
		},
		Weights: DefaultWeights(),
	}
}

// dispatched pairs a task with the processor it was assigned to.
type dispatched struct {
	task *model.ProcessingTask
	proc *processor
}

// Scheduler admits frames from registered streams, queues them per priority
// class, and dispatches each to the best available processor resource.
type Scheduler struct {
	logger     *zap.Logger
	cfg        Config
	registry   *StreamRegistry
	pool       *processorPool
	algorithms *algorithm.Registry
	sink       ResultSink

	queues map[model.PriorityClass]*frameQueue
	global *globalStats

	wake    chan struct{}
	execCh  chan dispatched
	stop    chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New creates a scheduler. The sink may be nil, in which case results are
// discarded after accounting.
func New(cfg Config, algorithms *algorithm.Registry, sink ResultSink, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		logger:     logger.Named("scheduler"),
		cfg:        cfg,
		registry:   NewStreamRegistry(cfg.MaxStreams, logger),
		pool:       newProcessorPool(cfg.Resources, logger),
		algorithms: algorithms,
		sink:       sink,
		queues:     make(map[model.PriorityClass]*frameQueue),
		global:     newGlobalStats(),
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}

	for _, class := range model.PriorityClasses {
		s.queues[class] = newFrameQueue(cfg.QueueCapacity)
	}
	s.execCh = make(chan dispatched, s.pool.capacity)

	return s
}

// Start launches the dispatch loop, the execution workers (one slot per
// unit of pool capacity) and the health monitor.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.dispatchLoop(ctx)

	for i := 0; i < s.pool.capacity; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.wg.Add(1)
	go s.healthLoop(ctx)

	s.logger.Info("Scheduler started",
		zap.Int("workers", s.pool.capacity),
		zap.Int("queue_capacity", s.cfg.QueueCapacity))

	return nil
}

// Stop halts dispatch and waits up to DrainTimeout for in-flight tasks.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	s.logger.Info("Stopping scheduler")
	close(s.stop)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
	case <-time.After(s.cfg.DrainTimeout):
		s.logger.Warn("Drain timeout reached, abandoning in-flight tasks")
	}
}

// AddStream registers a stream for admission.
func (s *Scheduler) AddStream(config model.StreamConfig) error {
	return s.registry.Add(config)
}

// RemoveStream deletes a stream. Callers should stop upstream frame
// production first; already-queued tasks complete or drop normally.
func (s *Scheduler) RemoveStream(streamID string) error {
	return s.registry.Remove(streamID)
}

// AdjustStreamPriority changes a stream's class for future submissions.
func (s *Scheduler) AdjustStreamPriority(streamID string, priority model.PriorityClass) error {
	return s.registry.AdjustPriority(streamID, priority)
}

// SubmitFrame admits one decoded frame. It returns (false, nil) when the
// stream's queue is full: the frame is dropped and the caller must not
// retry synchronously. Never blocks.
func (s *Scheduler) SubmitFrame(streamID string, frame []byte, timestamp float64, sequence uint64) (bool, error) {
	config, err := s.registry.Config(streamID)
	if err != nil {
		return false, ErrUnknownStream
	}

	task := &model.ProcessingTask{
		StreamID:   streamID,
		Frame:      frame,
		Timestamp:  timestamp,
		Sequence:   sequence,
		Priority:   config.Priority,
		Algorithms: config.Algorithms,
	}

	if !s.queues[task.Priority].TryPush(task) {
		s.global.overflows.Add(1)
		s.logger.Debug("Frame dropped, queue full",
			zap.String("stream_id", streamID),
			zap.Uint64("sequence", sequence),
			zap.String("priority", task.Priority.String()))
		return false, nil
	}

	// Nudge the dispatch loop without blocking the producer.
	select {
	case s.wake <- struct{}{}:
	default:
	}

	return true, nil
}

// Stats returns a read-only snapshot of the scheduler's observable state.
func (s *Scheduler) Stats() StatsSnapshot {
	return buildSnapshot(s.global, s.pool, s.registry, s.queues)
}

// StreamMetrics returns the metrics for one stream.
func (s *Scheduler) StreamMetrics(streamID string) (model.StreamMetrics, error) {
	return s.registry.Metrics(streamID)
}

// ProcessorMetrics returns the metrics for one processor resource.
func (s *Scheduler) ProcessorMetrics(processorID string) (model.ProcessorMetrics, error) {
	p, ok := s.pool.get(processorID)
	if !ok {
		return model.ProcessorMetrics{}, ErrProcessorNotFound
	}
	return p.snapshot(), nil
}

// SetProcessorFault applies or clears the external Error signal on a
// processor. Faulted processors are excluded from dispatch until cleared.
func (s *Scheduler) SetProcessorFault(processorID string, faulted bool) error {
	return s.pool.setFault(processorID, faulted)
}

// nextTask takes the head of the first non-empty queue in rank order.
func (s *Scheduler) nextTask() *model.ProcessingTask {
	for _, class := range model.PriorityClasses {
		if task := s.queues[class].Pop(); task != nil {
			return task
		}
	}
	return nil
}

// dispatchLoop is the single consumer of the priority queues. Strict
// rank-order scanning means sustained Critical load can starve lower
// classes; that is the documented contract.
func (s *Scheduler) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()

	idle := time.NewTimer(s.cfg.DispatchIdleWait)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		default:
		}

		task := s.nextTask()
		if task == nil {
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.DispatchIdleWait)
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-s.wake:
			case <-idle.C:
			}
			continue
		}

		proc := selectProcessor(s.pool, task, s.cfg.Weights)
		if proc == nil {
			s.handleDispatchFailure(task)
			// Wait for a completion to free a slot before the next
			// attempt; the timer bounds the wait so a fully faulted
			// pool still walks tasks to the retry ceiling.
			select {
			case <-s.stop:
				return
			case <-s.wake:
			case <-time.After(s.cfg.RetryWait):
			}
			continue
		}

		proc.begin()
		select {
		case s.execCh <- dispatched{task: task, proc: proc}:
		case <-s.stop:
			proc.complete(0)
			return
		}
	}
}

// handleDispatchFailure re-enqueues a task that found no processor, or
// drops it once the retry ceiling is hit.
func (s *Scheduler) handleDispatchFailure(task *model.ProcessingTask) {
	task.Retries++
	if task.Retries < s.cfg.MaxRetries {
		s.queues[task.Priority].Requeue(task)
		return
	}

	s.global.retriesExceeded.Add(1)
	s.logger.Warn("Task dropped, retry ceiling exceeded",
		zap.String("stream_id", task.StreamID),
		zap.Uint64("sequence", task.Sequence),
		zap.Int("retries", task.Retries),
		zap.Error(ErrNoProcessorAvailable))
}

// worker runs dispatched tasks one at a time until the scheduler stops.
func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case d := <-s.execCh:
			s.execute(ctx, d.task, d.proc)
		}
	}
}

// execute runs every requested algorithm for the task on the assigned
// processor. A failure in one algorithm degrades the result set but never
// aborts the task.
func (s *Scheduler) execute(ctx context.Context, task *model.ProcessingTask, proc *processor) {
	start := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, s.cfg.ProcessingTimeout)
	defer cancel()

	var results []*model.DetectionResult
	var errs int

	for _, name := range task.Algorithms {
		if execCtx.Err() != nil {
			errs++
			s.logger.Warn("Task processing timeout, abandoning remaining algorithms",
				zap.String("stream_id", task.StreamID),
				zap.Uint64("sequence", task.Sequence),
				zap.String("algorithm", name))
			break
		}

		executor, ok := s.algorithms.Lookup(proc.rtype, name)
		if !ok {
			errs++
			s.logger.Warn("No executor for algorithm on resource type",
				zap.String("algorithm", name),
				zap.String("resource_type", string(proc.rtype)))
			continue
		}

		result, err := algorithm.SafeExecute(execCtx, executor, task.Frame, task.Timestamp, task.Sequence)
		if err != nil {
			errs++
			s.logger.Warn("Algorithm execution failed",
				zap.String("algorithm", name),
				zap.String("stream_id", task.StreamID),
				zap.Uint64("sequence", task.Sequence),
				zap.Error(err))
			continue
		}
		if result != nil {
			result.StreamID = task.StreamID
			result.Sequence = task.Sequence
			result.Timestamp = task.Timestamp
			results = append(results, result)
		}
	}

	duration := time.Since(start).Seconds()
	now := time.Now()

	proc.complete(duration)

	// A slot just freed; nudge the dispatch loop in case it is waiting
	// out a failed selection.
	select {
	case s.wake <- struct{}{}:
	default:
	}

	if entry := s.registry.lookup(task.StreamID); entry != nil {
		entry.recordCompletion(duration, errs, now)
	}
	s.global.recordCompletion(duration, errs)

	if len(results) > 0 && s.sink != nil {
		if err := s.sink.Deliver(task, results); err != nil {
			s.logger.Error("Failed to deliver detection results",
				zap.String("stream_id", task.StreamID),
				zap.Uint64("sequence", task.Sequence),
				zap.Error(err))
		}
	}
}
