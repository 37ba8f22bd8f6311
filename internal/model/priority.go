package model

// PriorityClass represents the urgency tier of a stream or task.
// Lower rank dispatches strictly before higher rank.
type PriorityClass int

const (
	PriorityCritical PriorityClass = 1
	PriorityHigh     PriorityClass = 2
	PriorityNormal   PriorityClass = 3
	PriorityLow      PriorityClass = 4
)

// PriorityClasses lists all classes in dispatch order (most urgent first).
var PriorityClasses = []PriorityClass{
	PriorityCritical,
	PriorityHigh,
	PriorityNormal,
	PriorityLow,
}

// String returns the human-readable name of the priority class.
func (p PriorityClass) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the four defined classes.
func (p PriorityClass) Valid() bool {
	return p >= PriorityCritical && p <= PriorityLow
}
