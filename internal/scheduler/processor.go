package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/argusvision/framesched/internal/model"
)

// ewmaWeight is the smoothing factor applied to new latency samples.
const ewmaWeight = 0.1

// processor is one unit of the heterogeneous compute pool. The in-flight
// counter is atomic (read on every scoring pass); status and the smoothed
// duration are guarded by a per-processor mutex so completions on different
// processors never serialize against each other.
type processor struct {
	id            string
	rtype         model.ResourceType
	maxConcurrent int

	current        atomic.Int32
	totalProcessed atomic.Int64

	mu          sync.Mutex
	status      model.ProcessorStatus
	avgDuration float64
}

func (p *processor) load() float64 {
	return float64(p.current.Load()) / float64(p.maxConcurrent)
}

// available reports whether the processor can accept one more task.
func (p *processor) available() bool {
	p.mu.Lock()
	faulted := p.status == model.ProcessorStatusError
	p.mu.Unlock()
	return !faulted && int(p.current.Load()) < p.maxConcurrent
}

// begin claims one execution slot and marks the processor busy.
func (p *processor) begin() {
	p.current.Add(1)
	p.mu.Lock()
	if p.status == model.ProcessorStatusIdle {
		p.status = model.ProcessorStatusProcessing
	}
	p.mu.Unlock()
}

// complete releases one slot and folds the sample duration (seconds) into
// the smoothed average.
func (p *processor) complete(duration float64) {
	for {
		cur := p.current.Load()
		if cur <= 0 {
			break
		}
		if p.current.CompareAndSwap(cur, cur-1) {
			break
		}
	}
	p.totalProcessed.Add(1)

	p.mu.Lock()
	if p.avgDuration == 0 {
		p.avgDuration = duration
	} else {
		p.avgDuration = p.avgDuration*(1-ewmaWeight) + duration*ewmaWeight
	}
	if p.current.Load() == 0 && p.status != model.ProcessorStatusError {
		p.status = model.ProcessorStatusIdle
	}
	p.mu.Unlock()
}

// snapshot returns a copy of the processor's observable state.
func (p *processor) snapshot() model.ProcessorMetrics {
	p.mu.Lock()
	status := p.status
	avg := p.avgDuration
	p.mu.Unlock()

	current := int(p.current.Load())
	return model.ProcessorMetrics{
		ID:             p.id,
		Type:           p.rtype,
		Status:         status,
		CurrentTasks:   current,
		MaxConcurrent:  p.maxConcurrent,
		Load:           float64(current) / float64(p.maxConcurrent),
		TotalProcessed: p.totalProcessed.Load(),
		AvgDuration:    avg,
	}
}

// ResourceConfig describes one slice of the fixed pool composition.
type ResourceConfig struct {
	Type          model.ResourceType
	Count         int
	MaxConcurrent int
}

// processorPool holds the fixed set of processors for the scheduler's
// lifetime. The slice is immutable after construction; only the processors'
// own counters mutate.
type processorPool struct {
	logger     *zap.Logger
	processors []*processor
	byID       map[string]*processor
	capacity   int
}

func newProcessorPool(configs []ResourceConfig, logger *zap.Logger) *processorPool {
	pool := &processorPool{
		logger: logger.Named("processor-pool"),
		byID:   make(map[string]*processor),
	}

	for _, cfg := range configs {
		for i := 0; i < cfg.Count; i++ {
			p := &processor{
				id:            fmt.Sprintf("%s-%d", cfg.Type, i),
				rtype:         cfg.Type,
				maxConcurrent: cfg.MaxConcurrent,
				status:        model.ProcessorStatusIdle,
			}
			pool.processors = append(pool.processors, p)
			pool.byID[p.id] = p
			pool.capacity += cfg.MaxConcurrent
		}
	}

	pool.logger.Info("Processor pool initialized",
		zap.Int("processors", len(pool.processors)),
		zap.Int("total_capacity", pool.capacity))

	return pool
}

func (pool *processorPool) get(id string) (*processor, bool) {
	p, ok := pool.byID[id]
	return p, ok
}

// setFault applies or clears the external Error fault signal.
func (pool *processorPool) setFault(id string, faulted bool) error {
	p, ok := pool.byID[id]
	if !ok {
		return ErrProcessorNotFound
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if faulted {
		p.status = model.ProcessorStatusError
		pool.logger.Warn("Processor faulted", zap.String("processor_id", id))
		return nil
	}
	if p.status == model.ProcessorStatusError {
		if p.current.Load() > 0 {
			p.status = model.ProcessorStatusProcessing
		} else {
			p.status = model.ProcessorStatusIdle
		}
		pool.logger.Info("Processor fault cleared", zap.String("processor_id", id))
	}
	return nil
}
