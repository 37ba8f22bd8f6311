package model

import "time"

// StreamConfig describes one registered camera stream.
type StreamConfig struct {
	ID         string        `json:"id"`
	Source     string        `json:"source"`
	Priority   PriorityClass `json:"priority"`
	TargetFPS  int           `json:"target_fps"`
	Resolution string        `json:"resolution"`
	Algorithms []string      `json:"algorithms"`
	Region     string        `json:"region,omitempty"`
}

// StreamMetrics tracks per-stream processing statistics.
// All fields are maintained by the scheduler; callers receive copies.
type StreamMetrics struct {
	StreamID        string    `json:"stream_id"`
	FramesProcessed int64     `json:"frames_processed"`
	Errors          int64     `json:"errors"`
	AvgLatency      float64   `json:"avg_latency_seconds"`
	LastFrameAt     time.Time `json:"last_frame_at"`
	CurrentFPS      float64   `json:"current_fps"`
}
