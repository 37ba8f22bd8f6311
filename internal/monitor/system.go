package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// FaultSignaler is the scheduler surface the host monitor drives: the
// external Error signal on processor resources.
type FaultSignaler interface {
	SetProcessorFault(processorID string, faulted bool) error
}

// SystemMonitorConfig tunes the host pressure monitor.
type SystemMonitorConfig struct {
	Interval time.Duration

	// CPUFaultPercent marks CPU-class processors faulted when host CPU
	// usage stays above this value.
	CPUFaultPercent float64

	// MemFaultPercent does the same for host memory usage.
	MemFaultPercent float64

	// Processors lists the processor ids to fault under host pressure
	// (the CPU-backed units share the host's cores).
	Processors []string
}

// SystemMonitor samples host CPU and memory usage and raises the external
// fault signal on CPU-backed processors while the host is saturated. The
// GPU and accelerator units have their own silicon and are left alone.
type SystemMonitor struct {
	logger  *zap.Logger
	signal  FaultSignaler
	cfg     SystemMonitorConfig
	faulted bool
	stop    chan struct{}
}

// NewSystemMonitor creates a host pressure monitor.
func NewSystemMonitor(signal FaultSignaler, cfg SystemMonitorConfig, logger *zap.Logger) *SystemMonitor {
	return &SystemMonitor{
		logger: logger.Named("system-monitor"),
		signal: signal,
		cfg:    cfg,
		stop:   make(chan struct{}),
	}
}

// Start starts the sampling loop.
func (m *SystemMonitor) Start(ctx context.Context) error {
	m.logger.Info("Starting system monitor",
		zap.Duration("interval", m.cfg.Interval),
		zap.Float64("cpu_fault_percent", m.cfg.CPUFaultPercent),
		zap.Float64("mem_fault_percent", m.cfg.MemFaultPercent))

	go m.loop(ctx)
	return nil
}

// Stop stops the sampling loop.
func (m *SystemMonitor) Stop() {
	m.logger.Info("Stopping system monitor")
	close(m.stop)
}

func (m *SystemMonitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *SystemMonitor) sample() {
	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		m.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}
	memInfo, err := mem.VirtualMemory()
	if err != nil {
		m.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	var cpuPct float64
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	m.apply(cpuPct, memInfo.UsedPercent)
}

// apply raises or clears the fault signal on the configured processors when
// host pressure crosses the thresholds. Edge-triggered: repeated samples on
// the same side are ignored.
func (m *SystemMonitor) apply(cpuPct, memPct float64) {
	pressured := cpuPct > m.cfg.CPUFaultPercent || memPct > m.cfg.MemFaultPercent

	if pressured == m.faulted {
		return
	}
	m.faulted = pressured

	if pressured {
		m.logger.Warn("Host under pressure, faulting CPU processors",
			zap.Float64("cpu_percent", cpuPct),
			zap.Float64("mem_percent", memPct))
	} else {
		m.logger.Info("Host pressure cleared, restoring CPU processors")
	}

	for _, id := range m.cfg.Processors {
		if err := m.signal.SetProcessorFault(id, pressured); err != nil {
			m.logger.Error("Failed to set processor fault",
				zap.String("processor_id", id),
				zap.Error(err))
		}
	}
}
