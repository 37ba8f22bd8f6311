package scheduler

import "github.com/argusvision/framesched/internal/model"

// Weights tunes processor selection. Lower weight means more preferred.
type Weights struct {
	// Hardware biases selection toward specialized silicon.
	Hardware map[model.ResourceType]float64

	// Priority steers urgent tasks onto strong resources.
	Priority map[model.PriorityClass]float64

	// LatencyNorm divides the smoothed duration into the same scale as load.
	LatencyNorm float64
}

// DefaultWeights returns the stock weight tables: accelerators over GPU
// over CPU, and Critical tasks most strongly drawn to preferred hardware.
func DefaultWeights() Weights {
	return Weights{
		Hardware: map[model.ResourceType]float64{
			model.ResourceNPUA: 0.1,
			model.ResourceNPUB: 0.1,
			model.ResourceGPU:  0.3,
			model.ResourceCPU:  1.0,
		},
		Priority: map[model.PriorityClass]float64{
			model.PriorityCritical: 0.1,
			model.PriorityHigh:     0.3,
			model.PriorityNormal:   0.7,
			model.PriorityLow:      1.0,
		},
		LatencyNorm: 100,
	}
}

func (w Weights) hardware(t model.ResourceType) float64 {
	if v, ok := w.Hardware[t]; ok {
		return v
	}
	return 1.0
}

func (w Weights) priority(p model.PriorityClass) float64 {
	if v, ok := w.Priority[p]; ok {
		return v
	}
	return 1.0
}

// score ranks one candidate processor for one task. Lower wins.
func (w Weights) score(p *processor, task *model.ProcessingTask) float64 {
	p.mu.Lock()
	avg := p.avgDuration
	p.mu.Unlock()

	loadComponent := p.load()
	latencyComponent := avg / w.LatencyNorm

	return (loadComponent + latencyComponent) * w.hardware(p.rtype) * w.priority(task.Priority)
}

// selectProcessor picks the minimum-score processor that is not faulted and
// has a free slot. Returns nil when every processor is faulted or full.
func selectProcessor(pool *processorPool, task *model.ProcessingTask, weights Weights) *processor {
	var best *processor
	var bestScore float64

	for _, p := range pool.processors {
		if !p.available() {
			continue
		}
		s := weights.score(p, task)
		if best == nil || s < bestScore {
			best = p
			bestScore = s
		}
	}
	return best
}
