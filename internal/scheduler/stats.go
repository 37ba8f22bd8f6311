package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/argusvision/framesched/internal/model"
)

// globalStats accumulates scheduler-wide counters. Counters are atomic so
// concurrent completions never contend; the smoothed latency takes a small
// dedicated mutex.
type globalStats struct {
	totalFrames     atomic.Int64
	overflows       atomic.Int64
	retriesExceeded atomic.Int64
	errors          atomic.Int64

	mu            sync.Mutex
	totalTime     float64
	avgLatency    float64
	startedAt     time.Time
}

func newGlobalStats() *globalStats {
	return &globalStats{startedAt: time.Now()}
}

func (g *globalStats) recordCompletion(duration float64, errs int) {
	g.totalFrames.Add(1)
	g.errors.Add(int64(errs))

	g.mu.Lock()
	g.totalTime += duration
	if g.avgLatency == 0 {
		g.avgLatency = duration
	} else {
		g.avgLatency = g.avgLatency*(1-ewmaWeight) + duration*ewmaWeight
	}
	g.mu.Unlock()
}

func (g *globalStats) snapshot() model.GlobalStats {
	g.mu.Lock()
	totalTime := g.totalTime
	avgLatency := g.avgLatency
	startedAt := g.startedAt
	g.mu.Unlock()

	frames := g.totalFrames.Load()
	var throughput float64
	if elapsed := time.Since(startedAt).Seconds(); elapsed > 0 {
		throughput = float64(frames) / elapsed
	}

	return model.GlobalStats{
		TotalFramesProcessed: frames,
		TotalProcessingTime:  totalTime,
		QueueOverflows:       g.overflows.Load(),
		RetriesExceeded:      g.retriesExceeded.Load(),
		Errors:               g.errors.Load(),
		AvgLatency:           avgLatency,
		Throughput:           throughput,
	}
}

// TypeStats summarizes the processors of one resource type.
type TypeStats struct {
	Count   int     `json:"count"`
	AvgLoad float64 `json:"avg_load"`
}

// PriorityStats summarizes the streams of one priority class.
type PriorityStats struct {
	Streams  int     `json:"streams"`
	TotalFPS float64 `json:"total_fps"`
}

// StatsSnapshot is the read-only view returned by Scheduler.Stats.
type StatsSnapshot struct {
	Global          model.GlobalStats                   `json:"global"`
	Processors      []model.ProcessorMetrics            `json:"processors"`
	ProcessorTypes  map[model.ResourceType]TypeStats    `json:"processor_types"`
	ProcessorStatus map[model.ProcessorStatus]int       `json:"processor_status"`
	Streams         map[model.PriorityClass]PriorityStats `json:"streams"`
	QueueDepths     map[model.PriorityClass]int         `json:"queue_depths"`
}

// buildSnapshot assembles a consistent-enough view for operators. Individual
// entries are snapshotted atomically; the whole is not a transaction.
func buildSnapshot(global *globalStats, pool *processorPool, streams *StreamRegistry, queues map[model.PriorityClass]*frameQueue) StatsSnapshot {
	snap := StatsSnapshot{
		Global:          global.snapshot(),
		ProcessorTypes:  make(map[model.ResourceType]TypeStats),
		ProcessorStatus: make(map[model.ProcessorStatus]int),
		Streams:         make(map[model.PriorityClass]PriorityStats),
		QueueDepths:     make(map[model.PriorityClass]int),
	}

	loadSums := make(map[model.ResourceType]float64)
	for _, p := range pool.processors {
		m := p.snapshot()
		snap.Processors = append(snap.Processors, m)

		ts := snap.ProcessorTypes[m.Type]
		ts.Count++
		snap.ProcessorTypes[m.Type] = ts
		loadSums[m.Type] += m.Load
		snap.ProcessorStatus[m.Status]++
	}
	for rtype, ts := range snap.ProcessorTypes {
		ts.AvgLoad = loadSums[rtype] / float64(ts.Count)
		snap.ProcessorTypes[rtype] = ts
	}

	counts, fps := streams.countByPriority()
	for _, class := range model.PriorityClasses {
		snap.Streams[class] = PriorityStats{Streams: counts[class], TotalFPS: fps[class]}
		snap.QueueDepths[class] = queues[class].Len()
	}

	return snap
}
