package monitor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/argusvision/framesched/internal/model"
	"github.com/argusvision/framesched/internal/scheduler"
)

// fakeStatsSource returns a fixed snapshot and counts reads.
type fakeStatsSource struct {
	reads int
	snap  scheduler.StatsSnapshot
}

func (f *fakeStatsSource) Stats() scheduler.StatsSnapshot {
	f.reads++
	return f.snap
}

func sampleSnapshot() scheduler.StatsSnapshot {
	return scheduler.StatsSnapshot{
		Global: model.GlobalStats{
			TotalFramesProcessed: 120,
			QueueOverflows:       3,
			RetriesExceeded:      1,
			Errors:               2,
			AvgLatency:           0.042,
			Throughput:           24.5,
		},
		ProcessorTypes: map[model.ResourceType]scheduler.TypeStats{
			model.ResourceCPU: {Count: 2, AvgLoad: 0.5},
			model.ResourceGPU: {Count: 1, AvgLoad: 0.25},
		},
		ProcessorStatus: map[model.ProcessorStatus]int{
			model.ProcessorStatusIdle:       2,
			model.ProcessorStatusProcessing: 1,
		},
		QueueDepths: map[model.PriorityClass]int{
			model.PriorityCritical: 0,
			model.PriorityHigh:     2,
			model.PriorityNormal:   5,
			model.PriorityLow:      0,
		},
	}
}

func TestExporterServesMetrics(t *testing.T) {
	source := &fakeStatsSource{snap: sampleSnapshot()}
	exporter := NewExporter(source)

	srv := httptest.NewServer(exporter.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, "framesched_frames_processed_total 120")
	assert.Contains(t, text, "framesched_queue_overflows_total 3")
	assert.Contains(t, text, "framesched_retries_exceeded_total 1")
	assert.Contains(t, text, "framesched_errors_total 2")
	assert.Contains(t, text, "framesched_avg_latency_seconds 0.042")
	assert.Contains(t, text, "framesched_throughput_fps 24.5")
	assert.Contains(t, text, `framesched_queue_depth{priority="normal"} 5`)
	assert.Contains(t, text, `framesched_processor_load{resource_type="cpu"} 0.5`)

	assert.Greater(t, source.reads, 0)
}

func TestReporterStatsJob(t *testing.T) {
	source := &fakeStatsSource{snap: sampleSnapshot()}
	reporter := NewReporter(source, nil, ReporterConfig{
		StatsSpec:   "* * * * * *",
		CleanupSpec: "0 0 * * * *",
		Retention:   24 * time.Hour,
	}, zaptest.NewLogger(t))

	// Run the job body directly; cron scheduling itself is not under test.
	reporter.reportStats()
	assert.Equal(t, 1, source.reads)
}

func TestReporterStartStop(t *testing.T) {
	source := &fakeStatsSource{snap: sampleSnapshot()}
	reporter := NewReporter(source, nil, ReporterConfig{
		StatsSpec:   "* * * * * *",
		CleanupSpec: "0 0 * * * *",
		Retention:   24 * time.Hour,
	}, zaptest.NewLogger(t))

	require.NoError(t, reporter.Start(context.Background()))
	reporter.Stop()
}

func TestReporterRejectsBadSpec(t *testing.T) {
	source := &fakeStatsSource{snap: sampleSnapshot()}
	reporter := NewReporter(source, nil, ReporterConfig{
		StatsSpec: "not a cron spec",
	}, zaptest.NewLogger(t))

	assert.Error(t, reporter.Start(context.Background()))
}

// recordingSignaler records every fault transition it receives.
type recordingSignaler struct {
	calls []struct {
		id      string
		faulted bool
	}
}

func (r *recordingSignaler) SetProcessorFault(id string, faulted bool) error {
	r.calls = append(r.calls, struct {
		id      string
		faulted bool
	}{id, faulted})
	return nil
}

func TestSystemMonitorEdgeTriggeredFaults(t *testing.T) {
	signal := &recordingSignaler{}
	m := NewSystemMonitor(signal, SystemMonitorConfig{
		Interval:        time.Second,
		CPUFaultPercent: 90,
		MemFaultPercent: 90,
		Processors:      []string{"cpu-0", "cpu-1"},
	}, zaptest.NewLogger(t))

	// Below both thresholds: nothing happens.
	m.apply(50, 40)
	assert.Empty(t, signal.calls)

	// CPU crosses: both processors faulted once.
	m.apply(95, 40)
	require.Len(t, signal.calls, 2)
	assert.Equal(t, "cpu-0", signal.calls[0].id)
	assert.True(t, signal.calls[0].faulted)
	assert.True(t, signal.calls[1].faulted)

	// Still pressured: no repeat signaling.
	m.apply(97, 40)
	assert.Len(t, signal.calls, 2)

	// Pressure clears: both restored.
	m.apply(30, 40)
	require.Len(t, signal.calls, 4)
	assert.False(t, signal.calls[2].faulted)
	assert.False(t, signal.calls[3].faulted)
}

func TestSystemMonitorMemoryPressure(t *testing.T) {
	signal := &recordingSignaler{}
	m := NewSystemMonitor(signal, SystemMonitorConfig{
		Interval:        time.Second,
		CPUFaultPercent: 90,
		MemFaultPercent: 85,
		Processors:      []string{"cpu-0"},
	}, zaptest.NewLogger(t))

	m.apply(10, 92)
	require.Len(t, signal.calls, 1)
	assert.True(t, signal.calls[0].faulted)
}
