package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/me/govm/internal/executor"
	"github.com/me/govm/internal/scheduler"
	"github.com/me/govm/pkg/model"
)

var _ scheduler.Journal = (*AsyncJournal)(nil)

// stallingStore blocks RecordLaunch until release is closed.
type stallingStore struct {
	Store
	started chan struct{}
	release chan struct{}

	mu       sync.Mutex
	launched []string
}

func (s *stallingStore) RecordLaunch(_ context.Context, rec *model.PackageRecord) error {
	s.mu.Lock()
	first := len(s.launched) == 0
	s.launched = append(s.launched, rec.ID)
	s.mu.Unlock()
	if first {
		close(s.started)
		<-s.release
	}
	return nil
}

func TestAsyncJournal_WritesInOrder(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	j := NewAsyncJournal(st, st.logger, 16)
	defer j.Close()

	// The release only succeeds if the launch was written first.
	if err := j.RecordLaunch(ctx, samplePackage("pkg_1", "gpu", 1, "a")); err != nil {
		t.Fatalf("RecordLaunch: %v", err)
	}
	if err := j.RecordRelease(ctx, "pkg_1", 2, ""); err != nil {
		t.Fatalf("RecordRelease: %v", err)
	}
	if err := j.RecordIdle(ctx, &model.IdleEvent{Object: 4, Tick: 2, At: time.Now().UTC()}); err != nil {
		t.Fatalf("RecordIdle: %v", err)
	}
	if err := j.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	rec, err := st.GetPackage(ctx, "pkg_1")
	if err != nil || rec == nil {
		t.Fatalf("GetPackage = %v, %v", rec, err)
	}
	if !rec.IsReleased() || rec.ReleasedTick == nil || *rec.ReleasedTick != 2 {
		t.Errorf("package = %+v, want released at tick 2", rec)
	}
	if _, total, _ := st.ListIdleEvents(ctx, model.DefaultListOptions()); total != 1 {
		t.Errorf("idle events = %d, want 1", total)
	}
	if j.Failed() != 0 {
		t.Errorf("Failed() = %d, want 0", j.Failed())
	}
}

func TestAsyncJournal_FullQueueDoesNotBlock(t *testing.T) {
	st := &stallingStore{started: make(chan struct{}), release: make(chan struct{})}
	ctx := context.Background()
	j := NewAsyncJournal(st, testStore(t).logger, 1)

	if err := j.RecordLaunch(ctx, samplePackage("p1", "gpu", 1)); err != nil {
		t.Fatalf("first: %v", err)
	}
	<-st.started // writer is stuck on p1
	if err := j.RecordLaunch(ctx, samplePackage("p2", "gpu", 1)); err != nil {
		t.Fatalf("second: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- j.RecordLaunch(ctx, samplePackage("p3", "gpu", 1)) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrJournalFull) {
			t.Fatalf("third: err = %v, want ErrJournalFull", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RecordLaunch blocked on a full queue")
	}

	close(st.release)
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if j.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", j.Dropped())
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.launched) != 2 || st.launched[1] != "p2" {
		t.Errorf("written = %v, want [p1 p2]", st.launched)
	}
}

func TestAsyncJournal_Closed(t *testing.T) {
	st := testStore(t)
	j := NewAsyncJournal(st, st.logger, 4)
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := j.RecordIdle(context.Background(), &model.IdleEvent{Object: 1}); !errors.Is(err, ErrJournalClosed) {
		t.Errorf("RecordIdle after Close: err = %v, want ErrJournalClosed", err)
	}
	if err := j.Flush(context.Background()); !errors.Is(err, ErrJournalClosed) {
		t.Errorf("Flush after Close: err = %v, want ErrJournalClosed", err)
	}
}

func TestAsyncJournal_SchedulerIntegration(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	j := NewAsyncJournal(st, st.logger, 64)
	defer j.Close()

	manual := executor.NewManualExecutor("gpu")
	reg := executor.NewRegistry(st.logger)
	reg.Register(manual)
	sched, err := scheduler.New(scheduler.Config{Units: []model.UnitSpec{{Type: "gpu", Count: 1}}}, reg, st.logger, scheduler.WithJournal(j))
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	sched.Receive([]*model.InstructionMessage{
		{UnitType: model.ControlUnitType, Control: &model.ControlPayload{Op: model.ControlCreateObject, Object: 1, Replicas: 1}},
		{ID: "w", UnitType: "gpu", Opcode: "noop", Operands: []model.Operand{model.MutableOperand(1)}},
	})
	for i := 0; i < 2; i++ {
		if err := sched.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
		manual.CompleteAll()
	}
	if err := j.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	recs, total, err := st.ListPackages(ctx, model.DefaultListOptions())
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || !recs[0].IsReleased() {
		t.Fatalf("packages = %+v, want one released package", recs)
	}
}
