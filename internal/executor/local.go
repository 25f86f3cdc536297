package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/me/govm/pkg/model"
)

// ErrExecutorClosed is returned by Launch after Close.
var ErrExecutorClosed = errors.New("executor closed")

// LocalExecutor runs packages in-process. Each execution unit gets its own
// worker goroutine, so packages on one unit run and complete in submission
// order while different units run concurrently.
type LocalExecutor struct {
	unitType model.UnitType
	kernels  *Kernels
	sem      *semaphore
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	workers map[model.ParallelID]*unitWorker
	results map[Handle]*localResult
}

type localResult struct {
	done atomic.Bool
	err  error // written before done is set
}

type localJob struct {
	handle Handle
	pkg    *model.Package
	result *localResult
}

// unitWorker is an unbounded FIFO drained by one goroutine.
type unitWorker struct {
	mu    sync.Mutex
	queue []localJob
	wake  chan struct{}
}

// LocalOption configures a LocalExecutor.
type LocalOption func(*LocalExecutor)

// WithMaxConcurrency caps how many units of this executor run kernels at
// once. n <= 0 means unlimited.
func WithMaxConcurrency(n int) LocalOption {
	return func(e *LocalExecutor) {
		e.sem = newSemaphore(n)
	}
}

// NewLocalExecutor creates a LocalExecutor for unitType. If kernels is nil,
// the builtin kernel table is used.
func NewLocalExecutor(unitType model.UnitType, kernels *Kernels, logger *slog.Logger, opts ...LocalOption) *LocalExecutor {
	if kernels == nil {
		kernels = NewKernels()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &LocalExecutor{
		unitType: unitType,
		kernels:  kernels,
		logger:   logger.With("component", "local-executor", "unit_type", unitType),
		ctx:      ctx,
		cancel:   cancel,
		workers:  make(map[model.ParallelID]*unitWorker),
		results:  make(map[Handle]*localResult),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Type returns the unit type this executor serves.
func (e *LocalExecutor) Type() model.UnitType {
	return e.unitType
}

// Launch queues pkg on its unit's worker and returns immediately.
func (e *LocalExecutor) Launch(_ context.Context, pkg *model.Package) (Handle, error) {
	if pkg.Unit.Type != e.unitType {
		return "", fmt.Errorf("local executor %s: package %s targets unit type %s", e.unitType, pkg.ID, pkg.Unit.Type)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrExecutorClosed
	}
	h := Handle("run_" + uuid.New().String())
	res := &localResult{}
	e.results[h] = res
	w, ok := e.workers[pkg.Unit.Parallel]
	if !ok {
		w = &unitWorker{wake: make(chan struct{}, 1)}
		e.workers[pkg.Unit.Parallel] = w
		e.wg.Add(1)
		go e.run(pkg.Unit, w)
	}
	// Enqueue before releasing e.mu so Close cannot drain the worker
	// between the closed check and the append.
	w.mu.Lock()
	w.queue = append(w.queue, localJob{handle: h, pkg: pkg, result: res})
	w.mu.Unlock()
	e.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}

	e.logger.Debug("package accepted", "package_id", pkg.ID, "handle", h, "unit", pkg.Unit.String(), "size", len(pkg.Instructions))
	return h, nil
}

// IsDone reports whether the package behind h has finished.
func (e *LocalExecutor) IsDone(h Handle) bool {
	e.mu.Lock()
	res, ok := e.results[h]
	e.mu.Unlock()
	return ok && res.done.Load()
}

// Err returns the first kernel error of a finished package, or nil.
func (e *LocalExecutor) Err(h Handle) error {
	e.mu.Lock()
	res, ok := e.results[h]
	e.mu.Unlock()
	if !ok || !res.done.Load() {
		return nil
	}
	return res.err
}

// Forget drops the result of a reaped package.
func (e *LocalExecutor) Forget(h Handle) {
	e.mu.Lock()
	delete(e.results, h)
	e.mu.Unlock()
}

// Close stops all workers. Packages still queued finish with
// context.Canceled.
func (e *LocalExecutor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	return nil
}

func (e *LocalExecutor) run(unit model.UnitID, w *unitWorker) {
	defer e.wg.Done()
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.mu.Unlock()
			select {
			case <-w.wake:
				continue
			case <-e.ctx.Done():
				e.drain(w)
				return
			}
		}
		job := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		job.result.err = e.execute(job.pkg)
		job.result.done.Store(true)
		if job.result.err != nil {
			e.logger.Warn("package failed", "package_id", job.pkg.ID, "unit", unit.String(), "error", job.result.err)
		}
	}
}

// drain completes whatever is left in the queue after Close.
func (e *LocalExecutor) drain(w *unitWorker) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, job := range w.queue {
		job.result.err = context.Canceled
		job.result.done.Store(true)
	}
	w.queue = nil
}

// execute runs every instruction of pkg in order and returns the first error.
// Later instructions still run: they were admitted independently.
func (e *LocalExecutor) execute(pkg *model.Package) error {
	if !e.sem.acquire(e.ctx) {
		return e.ctx.Err()
	}
	defer e.sem.release()

	var first error
	for _, ins := range pkg.Instructions {
		kernel, ok := e.kernels.Lookup(ins.Opcode)
		if !ok {
			err := fmt.Errorf("instruction %s: no kernel for opcode %q", ins.ID, ins.Opcode)
			if first == nil {
				first = err
			}
			continue
		}
		if err := kernel(e.ctx, ins); err != nil && first == nil {
			first = fmt.Errorf("instruction %s (%s): %w", ins.ID, ins.Opcode, err)
		}
	}
	return first
}
