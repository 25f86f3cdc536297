package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/me/govm/internal/executor"
	"github.com/me/govm/pkg/model"
)

// testLoop returns a Loop over one "cpu" unit backed by a LocalExecutor.
func testLoop(t *testing.T, interval time.Duration) *Loop {
	t.Helper()
	logger := testLogger()

	local := executor.NewLocalExecutor("cpu", executor.NewKernels(), logger)
	t.Cleanup(func() { local.Close() })
	reg := executor.NewRegistry(logger)
	reg.Register(local)

	sched, err := New(Config{Units: []model.UnitSpec{{Type: "cpu", Count: 1}}}, reg, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return NewLoop(sched, LoopConfig{TickInterval: interval}, logger)
}

// waitIdle polls the loop until its snapshot shows no outstanding work.
func waitIdle(t *testing.T, l *Loop) model.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := l.Snapshot()
		if snap.Inbound == 0 && snap.WaitingContexts == 0 && snap.InFlight == 0 && snap.Counters.PackagesLaunched > 0 {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("loop did not go idle: %+v", l.Snapshot())
	return model.Snapshot{}
}

// TestLoop_RunsToCompletion submits a writer and two readers to a running
// loop and waits for every context to be released.
func TestLoop_RunsToCompletion(t *testing.T) {
	l := testLoop(t, 2*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	l.Receive([]*model.InstructionMessage{
		createObject(1, 1),
		{UnitType: "cpu", Opcode: "sleep", Operands: []model.Operand{model.MutableOperand(1), model.ValueOperand(5)}},
		{UnitType: "cpu", Opcode: "noop", Operands: []model.Operand{model.ConstOperand(1)}},
		{UnitType: "cpu", Opcode: "noop", Operands: []model.Operand{model.ConstOperand(1)}},
	})

	snap := waitIdle(t, l)
	if snap.Counters.ContextsReleased != 3 {
		t.Errorf("ContextsReleased = %d, want 3", snap.Counters.ContextsReleased)
	}
	if snap.Counters.PackagesLaunched != 2 {
		t.Errorf("PackagesLaunched = %d, want 2 (writer, then both readers)", snap.Counters.PackagesLaunched)
	}
	obj, ok := l.Object(1)
	if !ok {
		t.Fatal("object 1 missing")
	}
	if obj.Replicas[0].Mode != model.AccessNone {
		t.Errorf("mode = %s, want none", obj.Replicas[0].Mode)
	}

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Start returned %v, want nil after Stop", err)
	}
}

// TestLoop_HaltsOnViolation checks that Start returns the contract
// violation that halted the scheduler.
func TestLoop_HaltsOnViolation(t *testing.T) {
	l := testLoop(t, 2*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- l.Start(context.Background()) }()
	l.Receive([]*model.InstructionMessage{{UnitType: "cpu", Operands: []model.Operand{model.ConstOperand(99)}}})

	select {
	case err := <-done:
		if !errors.Is(err, model.ErrUnknownObject) {
			t.Fatalf("Start returned %v, want ErrUnknownObject", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after a contract violation")
	}
	if !errors.Is(l.Err(), model.ErrUnknownObject) {
		t.Errorf("Err() = %v", l.Err())
	}
}

// TestLoop_ConcurrentReceive submits from several goroutines while the loop
// ticks; every message must be admitted exactly once.
func TestLoop_ConcurrentReceive(t *testing.T) {
	l := testLoop(t, time.Millisecond)
	l.Receive([]*model.InstructionMessage{createObject(1, 1)})
	if err := l.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Start(ctx)

	const producers, perProducer = 4, 25
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				l.Receive([]*model.InstructionMessage{{UnitType: "cpu", Operands: []model.Operand{model.MutableOperand(1)}}})
				_ = l.Backpressure()
			}
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := l.Snapshot()
		if snap.Counters.ContextsReleased == producers*perProducer {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap := l.Snapshot()
	if snap.Counters.ContextsCreated != producers*perProducer || snap.Counters.ContextsReleased != producers*perProducer {
		t.Fatalf("counters = %+v, want %d contexts created and released", snap.Counters, producers*perProducer)
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// TestLoop_StopsOnContextCancel verifies that Start returns when its context
// is cancelled.
func TestLoop_StopsOnContextCancel(t *testing.T) {
	l := testLoop(t, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Start returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return within 5 seconds after context cancellation")
	}
}

func TestLoop_DefaultInterval(t *testing.T) {
	l := testLoop(t, 0)
	if l.config.TickInterval != DefaultLoopConfig().TickInterval {
		t.Errorf("TickInterval = %v, want default", l.config.TickInterval)
	}
}
