package model

// ResourceType identifies the hardware class of a processor resource.
type ResourceType string

const (
	ResourceCPU  ResourceType = "cpu"
	ResourceGPU  ResourceType = "gpu"
	ResourceNPUA ResourceType = "npu-a"
	ResourceNPUB ResourceType = "npu-b"
)

// ResourceTypes lists all resource types in a stable order.
var ResourceTypes = []ResourceType{ResourceCPU, ResourceGPU, ResourceNPUA, ResourceNPUB}

// ProcessorStatus represents the lifecycle status of a processor resource.
type ProcessorStatus string

const (
	ProcessorStatusIdle       ProcessorStatus = "idle"
	ProcessorStatusProcessing ProcessorStatus = "processing"
	ProcessorStatusOverloaded ProcessorStatus = "overloaded"
	ProcessorStatusError      ProcessorStatus = "error"
)

// ProcessorMetrics is a point-in-time snapshot of one processor resource.
type ProcessorMetrics struct {
	ID             string          `json:"id"`
	Type           ResourceType    `json:"type"`
	Status         ProcessorStatus `json:"status"`
	CurrentTasks   int             `json:"current_tasks"`
	MaxConcurrent  int             `json:"max_concurrent"`
	Load           float64         `json:"load"`
	TotalProcessed int64           `json:"total_processed"`
	AvgDuration    float64         `json:"avg_duration_seconds"`
}

// GlobalStats accumulates scheduler-wide counters.
type GlobalStats struct {
	TotalFramesProcessed int64   `json:"total_frames_processed"`
	TotalProcessingTime  float64 `json:"total_processing_time_seconds"`
	QueueOverflows       int64   `json:"queue_overflows"`
	RetriesExceeded      int64   `json:"retries_exceeded"`
	Errors               int64   `json:"errors"`
	AvgLatency           float64 `json:"avg_latency_seconds"`
	Throughput           float64 `json:"throughput_fps"`
}
