package model

// ProcessingTask is one admitted unit of work: a single frame from a single
// stream awaiting or undergoing analysis.
type ProcessingTask struct {
	StreamID   string        `json:"stream_id"`
	Frame      []byte        `json:"-"`
	Timestamp  float64       `json:"timestamp"`
	Sequence   uint64        `json:"sequence"`
	Priority   PriorityClass `json:"priority"`
	Algorithms []string      `json:"algorithms"`
	Retries    int           `json:"retries"`
}

// DetectionResult is the output of one algorithm executor for one frame.
type DetectionResult struct {
	Algorithm  string             `json:"algorithm"`
	StreamID   string             `json:"stream_id"`
	Sequence   uint64             `json:"sequence"`
	Timestamp  float64            `json:"timestamp"`
	Label      string             `json:"label"`
	Confidence float64            `json:"confidence"`
	Details    map[string]float64 `json:"details,omitempty"`
}
