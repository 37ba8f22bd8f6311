package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/argusvision/framesched/internal/algorithm"
	"github.com/argusvision/framesched/internal/model"
)

func overloadScheduler(t *testing.T) (*Scheduler, *processor) {
	t.Helper()
	cfg := testConfig(ResourceConfig{Type: model.ResourceCPU, Count: 1, MaxConcurrent: 20})
	s := New(cfg, algorithm.NewRegistry(zaptest.NewLogger(t)), nil, zaptest.NewLogger(t))
	return s, s.pool.processors[0]
}

func setStatus(p *processor, status model.ProcessorStatus) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
}

func status(p *processor) model.ProcessorStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func TestOverloadHysteresis(t *testing.T) {
	s, p := overloadScheduler(t)

	// Load 0.95 trips the processor into Overloaded.
	p.current.Store(19)
	setStatus(p, model.ProcessorStatusProcessing)
	s.checkProcessorHealth()
	assert.Equal(t, model.ProcessorStatusOverloaded, status(p))

	// Load 0.80 sits in the dead band: still Overloaded.
	p.current.Store(16)
	s.checkProcessorHealth()
	assert.Equal(t, model.ProcessorStatusOverloaded, status(p))

	// Below 0.70 it recovers; in-flight work means Processing.
	p.current.Store(10)
	s.checkProcessorHealth()
	assert.Equal(t, model.ProcessorStatusProcessing, status(p))
}

func TestOverloadRecoversToIdleWhenDrained(t *testing.T) {
	s, p := overloadScheduler(t)

	p.current.Store(19)
	setStatus(p, model.ProcessorStatusProcessing)
	s.checkProcessorHealth()
	assert.Equal(t, model.ProcessorStatusOverloaded, status(p))

	p.current.Store(0)
	s.checkProcessorHealth()
	assert.Equal(t, model.ProcessorStatusIdle, status(p))
}

func TestNoOverloadBelowEnterThreshold(t *testing.T) {
	s, p := overloadScheduler(t)

	// Load 0.80 from Idle: inside the dead band, no transition ever.
	p.current.Store(16)
	s.checkProcessorHealth()
	assert.Equal(t, model.ProcessorStatusIdle, status(p))

	s.checkProcessorHealth()
	assert.Equal(t, model.ProcessorStatusIdle, status(p))
}

func TestHealthLeavesFaultedProcessorsAlone(t *testing.T) {
	s, p := overloadScheduler(t)

	setStatus(p, model.ProcessorStatusError)
	p.current.Store(19)
	s.checkProcessorHealth()
	assert.Equal(t, model.ProcessorStatusError, status(p))
}
