package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/argusvision/framesched/internal/model"
)

// healthLoop periodically inspects processor load and queue depth. It is
// observational: it flips health status and logs, nothing else.
func (s *Scheduler) healthLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.checkProcessorHealth()
			s.checkQueueBacklog()
		}
	}
}

// checkProcessorHealth applies the overload hysteresis. Load above
// OverloadEnter trips a processor into Overloaded; it recovers only once
// load falls below OverloadExit. The band between the two is inert, which
// keeps status from flapping under oscillating load.
func (s *Scheduler) checkProcessorHealth() {
	for _, p := range s.pool.processors {
		load := p.load()

		p.mu.Lock()
		switch p.status {
		case model.ProcessorStatusIdle, model.ProcessorStatusProcessing:
			if load > s.cfg.OverloadEnter {
				p.status = model.ProcessorStatusOverloaded
				p.mu.Unlock()
				s.logger.Warn("Processor overloaded",
					zap.String("processor_id", p.id),
					zap.Float64("load", load))
				continue
			}
		case model.ProcessorStatusOverloaded:
			if load < s.cfg.OverloadExit {
				if p.current.Load() > 0 {
					p.status = model.ProcessorStatusProcessing
				} else {
					p.status = model.ProcessorStatusIdle
				}
				p.mu.Unlock()
				s.logger.Info("Processor recovered from overload",
					zap.String("processor_id", p.id),
					zap.Float64("load", load))
				continue
			}
		}
		p.mu.Unlock()
	}
}

// checkQueueBacklog warns when the urgent queues grow beyond their
// thresholds. Capacity decisions stay with the operator.
func (s *Scheduler) checkQueueBacklog() {
	if depth := s.queues[model.PriorityCritical].Len(); depth > s.cfg.CriticalBacklog {
		s.logger.Warn("Critical queue backlog",
			zap.Int("depth", depth),
			zap.Int("threshold", s.cfg.CriticalBacklog))
	}
	if depth := s.queues[model.PriorityHigh].Len(); depth > s.cfg.HighBacklog {
		s.logger.Warn("High queue backlog",
			zap.Int("depth", depth),
			zap.Int("threshold", s.cfg.HighBacklog))
	}
}
