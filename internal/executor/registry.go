package executor

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/me/govm/pkg/model"
)

// Registry maps unit types to their Executor implementations.
// Registration happens at startup before concurrent access, so no mutex is needed.
type Registry struct {
	executors map[model.UnitType]Executor
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		executors: make(map[model.UnitType]Executor),
		logger:    logger.With("component", "executor-registry"),
	}
}

// Register adds an Executor to the registry, keyed by its Type().
func (r *Registry) Register(exec Executor) {
	t := exec.Type()
	r.executors[t] = exec
	r.logger.Info("executor registered", "unit_type", t)
}

// Get returns the Executor for the given type or an error if none is registered.
func (r *Registry) Get(t model.UnitType) (Executor, error) {
	exec, ok := r.executors[t]
	if !ok {
		return nil, fmt.Errorf("no executor registered for unit type %q", t)
	}
	return exec, nil
}

// Types returns the registered unit types in sorted order.
func (r *Registry) Types() []model.UnitType {
	types := make([]model.UnitType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
