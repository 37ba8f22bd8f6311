package algorithm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/argusvision/framesched/internal/model"
)

// Executor analyzes a single frame. Implementations are registered per
// resource type so the same algorithm name can bind to different backends
// (e.g. a CPU heuristic vs. an NPU model).
//
// A nil result with a nil error means "nothing detected" and is valid.
type Executor interface {
	Execute(ctx context.Context, frame []byte, timestamp float64, sequence uint64) (*model.DetectionResult, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, frame []byte, timestamp float64, sequence uint64) (*model.DetectionResult, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, frame []byte, timestamp float64, sequence uint64) (*model.DetectionResult, error) {
	return f(ctx, frame, timestamp, sequence)
}

type executorKey struct {
	resource model.ResourceType
	name     string
}

// Registry is the capability table mapping (resource type, algorithm name)
// to a concrete executor.
type Registry struct {
	logger    *zap.Logger
	mu        sync.RWMutex
	executors map[executorKey]Executor
}

// NewRegistry creates an empty algorithm registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:    logger.Named("algorithm-registry"),
		executors: make(map[executorKey]Executor),
	}
}

// Register binds an executor to a resource type and algorithm name,
// replacing any previous binding.
func (r *Registry) Register(resource model.ResourceType, name string, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.executors[executorKey{resource, name}] = executor

	r.logger.Info("Algorithm registered",
		zap.String("resource_type", string(resource)),
		zap.String("algorithm", name))
}

// Lookup returns the executor bound to (resource, name), or false if none.
func (r *Registry) Lookup(resource model.ResourceType, name string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[executorKey{resource, name}]
	return executor, ok
}

// Names returns the algorithm names registered for a resource type.
func (r *Registry) Names(resource model.ResourceType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for key := range r.executors {
		if key.resource == resource {
			names = append(names, key.name)
		}
	}
	return names
}

// SafeExecute invokes an executor, converting panics into errors so a
// misbehaving algorithm can never take down an execution worker.
func SafeExecute(ctx context.Context, executor Executor, frame []byte, timestamp float64, sequence uint64) (result *model.DetectionResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("algorithm panicked: %v", rec)
		}
	}()

	return executor.Execute(ctx, frame, timestamp, sequence)
}
