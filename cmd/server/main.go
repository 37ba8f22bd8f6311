package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/argusvision/framesched/internal/algorithm"
	"github.com/argusvision/framesched/internal/analyzer"
	"github.com/argusvision/framesched/internal/model"
	"github.com/argusvision/framesched/internal/monitor"
	"github.com/argusvision/framesched/internal/scheduler"
	"github.com/argusvision/framesched/internal/sink"
	"github.com/argusvision/framesched/internal/storage"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		logger.Fatal("Failed to read config file", zap.Error(err))
	}

	cfg := schedulerConfig()

	// Register algorithm executors for every resource type. Real model
	// bindings would register here instead of the bundled heuristics.
	algorithms := algorithm.NewRegistry(logger)
	motion := analyzer.NewMotionDetector(logger, 12.0)
	fall := analyzer.NewFallDetector(logger, 320, 0.6)
	fire := analyzer.NewFireSmokeDetector(logger, 0.25)
	for _, rtype := range model.ResourceTypes {
		algorithms.Register(rtype, "motion", motion)
		algorithms.Register(rtype, "fall", fall)
		algorithms.Register(rtype, "firesmoke", fire)
	}

	// Assemble the result sink chain
	sinks := []sink.Sink{sink.NewLogSink(logger)}

	var history storage.DetectionHistory
	if viper.GetBool("history.enabled") {
		store, err := storage.NewSQLiteDetectionHistory(logger, viper.GetString("history.path"))
		if err != nil {
			logger.Fatal("Failed to open detection history", zap.Error(err))
		}
		defer store.Close()
		history = store
		sinks = append(sinks, sink.NewHistorySink(store, logger))
	}

	if viper.GetBool("nats.enabled") {
		js := connectJetStream(logger)
		natsSink, err := sink.NewNATSSink(js, logger)
		if err != nil {
			logger.Fatal("Failed to create NATS sink", zap.Error(err))
		}
		sinks = append(sinks, natsSink)
	}

	sched := scheduler.New(cfg, algorithms, sink.NewMulti(logger, sinks...), logger)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := sched.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Operational reporter: periodic stats summary + history retention
	reporter := monitor.NewReporter(sched, history, monitor.ReporterConfig{
		StatsSpec:   viper.GetString("reporter.stats_spec"),
		CleanupSpec: viper.GetString("reporter.cleanup_spec"),
		Retention:   viper.GetDuration("history.retention"),
	}, logger)
	if err := reporter.Start(ctx); err != nil {
		logger.Fatal("Failed to start reporter", zap.Error(err))
	}

	// Host pressure monitor drives the external fault signal on the
	// CPU-backed processors.
	var cpuIDs []string
	for i := 0; i < viper.GetInt("scheduler.resources.cpu.count"); i++ {
		cpuIDs = append(cpuIDs, fmt.Sprintf("%s-%d", model.ResourceCPU, i))
	}
	sysmon := monitor.NewSystemMonitor(sched, monitor.SystemMonitorConfig{
		Interval:        viper.GetDuration("system_monitor.interval"),
		CPUFaultPercent: viper.GetFloat64("system_monitor.cpu_fault_percent"),
		MemFaultPercent: viper.GetFloat64("system_monitor.mem_fault_percent"),
		Processors:      cpuIDs,
	}, logger)
	if err := sysmon.Start(ctx); err != nil {
		logger.Fatal("Failed to start system monitor", zap.Error(err))
	}

	// Prometheus metrics endpoint
	exporter := monitor.NewExporter(sched)
	go func() {
		addr := viper.GetString("metrics.listen")
		mux := http.NewServeMux()
		mux.Handle("/metrics", exporter.Handler())
		logger.Info("Metrics endpoint listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics endpoint failed", zap.Error(err))
		}
	}()

	if viper.GetBool("demo.enabled") {
		go runDemoStreams(ctx, sched, logger)
	}

	// Wait for shutdown signal
	<-ctx.Done()

	sysmon.Stop()
	reporter.Stop()
	sched.Stop()

	logger.Info("Server shutting down gracefully")
}

// schedulerConfig builds the scheduler config from viper keys, falling back
// to the stock defaults for anything unset.
func schedulerConfig() scheduler.Config {
	cfg := scheduler.DefaultConfig()

	if v := viper.GetInt("scheduler.max_streams"); v > 0 {
		cfg.MaxStreams = v
	}
	if v := viper.GetInt("scheduler.queue_capacity"); v > 0 {
		cfg.QueueCapacity = v
	}
	if v := viper.GetInt("scheduler.max_retries"); v > 0 {
		cfg.MaxRetries = v
	}
	if v := viper.GetDuration("scheduler.processing_timeout"); v > 0 {
		cfg.ProcessingTimeout = v
	}
	if v := viper.GetDuration("scheduler.dispatch_idle_wait"); v > 0 {
		cfg.DispatchIdleWait = v
	}
	if v := viper.GetDuration("scheduler.retry_wait"); v > 0 {
		cfg.RetryWait = v
	}
	if v := viper.GetDuration("scheduler.drain_timeout"); v > 0 {
		cfg.DrainTimeout = v
	}
	if v := viper.GetDuration("scheduler.health_interval"); v > 0 {
		cfg.HealthInterval = v
	}
	if v := viper.GetFloat64("scheduler.overload_enter"); v > 0 {
		cfg.OverloadEnter = v
	}
	if v := viper.GetFloat64("scheduler.overload_exit"); v > 0 {
		cfg.OverloadExit = v
	}
	if v := viper.GetInt("scheduler.critical_backlog"); v > 0 {
		cfg.CriticalBacklog = v
	}
	if v := viper.GetInt("scheduler.high_backlog"); v > 0 {
		cfg.HighBacklog = v
	}

	resources := []struct {
		key   string
		rtype model.ResourceType
	}{
		{"cpu", model.ResourceCPU},
		{"gpu", model.ResourceGPU},
		{"npu_a", model.ResourceNPUA},
		{"npu_b", model.ResourceNPUB},
	}
	var pool []scheduler.ResourceConfig
	for _, r := range resources {
		count := viper.GetInt("scheduler.resources." + r.key + ".count")
		if count == 0 {
			continue
		}
		pool = append(pool, scheduler.ResourceConfig{
			Type:          r.rtype,
			Count:         count,
			MaxConcurrent: viper.GetInt("scheduler.resources." + r.key + ".max_concurrent"),
		})
	}
	if len(pool) > 0 {
		cfg.Resources = pool
	}

	return cfg
}

// runDemoStreams registers synthetic camera streams and pumps random frames
// at the configured rate. Useful for exercising the pipeline without a real
// ingest layer.
func runDemoStreams(ctx context.Context, sched *scheduler.Scheduler, logger *zap.Logger) {
	count := viper.GetInt("demo.streams")
	fps := viper.GetInt("demo.fps")
	frameBytes := viper.GetInt("demo.frame_bytes")

	for i := 0; i < count; i++ {
		id := fmt.Sprintf("demo-%d", i)
		err := sched.AddStream(model.StreamConfig{
			ID:         id,
			Source:     "synthetic://" + id,
			Priority:   model.PriorityNormal,
			TargetFPS:  fps,
			Resolution: "320x240",
			Algorithms: []string{"motion", "fall", "firesmoke"},
			Region:     "demo",
		})
		if err != nil {
			logger.Error("Failed to register demo stream", zap.String("stream_id", id), zap.Error(err))
		}
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq++
			frame := make([]byte, frameBytes)
			rand.Read(frame)
			ts := float64(time.Now().UnixNano()) / float64(time.Second)
			for i := 0; i < count; i++ {
				id := fmt.Sprintf("demo-%d", i)
				if _, err := sched.SubmitFrame(id, frame, ts, seq); err != nil {
					logger.Error("Demo frame rejected", zap.String("stream_id", id), zap.Error(err))
				}
			}
		}
	}
}

// connectJetStream connects to NATS with retries and returns a JetStream
// context.
func connectJetStream(logger *zap.Logger) nats.JetStreamContext {
	opts := []nats.Option{
		nats.Name(viper.GetString("app.name")),
		nats.MaxReconnects(viper.GetInt("nats.max_reconnects")),
		nats.ReconnectWait(viper.GetDuration("nats.reconnect_wait")),
		nats.Timeout(viper.GetDuration("nats.connect_timeout")),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(viper.GetString("nats.urls.0"), opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return js
}
