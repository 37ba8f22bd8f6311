package monitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/argusvision/framesched/internal/model"
	"github.com/argusvision/framesched/internal/storage"
)

// ReporterConfig holds the cron expressions and retention for the
// operational reporter.
type ReporterConfig struct {
	// StatsSpec is the cron spec for stats report logging (with seconds).
	StatsSpec string

	// CleanupSpec is the cron spec for history cleanup (with seconds).
	CleanupSpec string

	// Retention bounds how long detection events are kept.
	Retention time.Duration
}

// Reporter periodically logs a stats summary and prunes old detection
// history on cron schedules.
type Reporter struct {
	logger  *zap.Logger
	cron    *cron.Cron
	source  StatsSource
	history storage.DetectionHistory
	cfg     ReporterConfig
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewReporter creates a reporter. history may be nil when persistence is
// disabled; the cleanup job is then skipped.
func NewReporter(source StatsSource, history storage.DetectionHistory, cfg ReporterConfig, logger *zap.Logger) *Reporter {
	cl := &cronLogger{logger: logger.Named("cron")}
	return &Reporter{
		logger:  logger.Named("reporter"),
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cl))),
		source:  source,
		history: history,
		cfg:     cfg,
	}
}

// Start schedules the jobs and starts the cron runner.
func (r *Reporter) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.cfg.StatsSpec, r.reportStats); err != nil {
		return err
	}

	if r.history != nil {
		if _, err := r.cron.AddFunc(r.cfg.CleanupSpec, func() {
			cutoff := time.Now().Add(-r.cfg.Retention)
			if err := r.history.DeleteBefore(context.Background(), cutoff); err != nil {
				r.logger.Error("Failed to prune detection history", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	r.cron.Start()
	r.logger.Info("Reporter started",
		zap.String("stats_spec", r.cfg.StatsSpec),
		zap.String("cleanup_spec", r.cfg.CleanupSpec))

	return nil
}

// Stop stops the cron runner and waits for running jobs.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("Reporter stopped")
}

// reportStats logs a one-line operational summary.
func (r *Reporter) reportStats() {
	snap := r.source.Stats()

	depths := make(map[string]int, len(snap.QueueDepths))
	for _, class := range model.PriorityClasses {
		depths[class.String()] = snap.QueueDepths[class]
	}

	r.logger.Info("Scheduler stats",
		zap.Int64("frames_processed", snap.Global.TotalFramesProcessed),
		zap.Int64("overflows", snap.Global.QueueOverflows),
		zap.Int64("retries_exceeded", snap.Global.RetriesExceeded),
		zap.Int64("errors", snap.Global.Errors),
		zap.Float64("avg_latency", snap.Global.AvgLatency),
		zap.Float64("throughput_fps", snap.Global.Throughput),
		zap.Any("queue_depths", depths),
		zap.Any("processor_status", snap.ProcessorStatus))
}
