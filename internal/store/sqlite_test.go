package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/me/govm/internal/executor"
	"github.com/me/govm/internal/scheduler"
	"github.com/me/govm/pkg/model"
)

var _ scheduler.Journal = (*SQLiteStore)(nil)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func samplePackage(id string, unit model.UnitType, tick uint64, ins ...string) *model.PackageRecord {
	rec := &model.PackageRecord{
		ID:             id,
		Unit:           model.UnitID{Type: unit, Parallel: 1},
		Size:           len(ins),
		InstructionIDs: ins,
		Opcodes:        make([]string, len(ins)),
		LaunchedTick:   tick,
		LaunchedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}
	for i := range ins {
		rec.Opcodes[i] = "noop"
	}
	return rec
}

// --- Migration tests ---

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	// Migrate a second time; should not error.
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	ok, err := columnExists(context.Background(), st.db, "packages", "failure")
	if err != nil || !ok {
		t.Fatalf("failure column exists = %v, err = %v", ok, err)
	}
}

// --- Package journal tests ---

func TestRecordLaunchAndGetPackage(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	rec := samplePackage("pkg_1", "gpu", 4, "ins_a", "ins_b")

	if err := st.RecordLaunch(ctx, rec); err != nil {
		t.Fatalf("record launch: %v", err)
	}

	got, err := st.GetPackage(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("got nil package")
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("package (-want +got):\n%s", diff)
	}
	if got.IsReleased() {
		t.Error("fresh package reported released")
	}
}

func TestGetPackage_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetPackage(context.Background(), "pkg_nonexistent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestRecordLaunch_DuplicateID(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	if err := st.RecordLaunch(ctx, samplePackage("pkg_1", "gpu", 1, "a")); err != nil {
		t.Fatal(err)
	}
	if err := st.RecordLaunch(ctx, samplePackage("pkg_1", "gpu", 2, "b")); err == nil {
		t.Fatal("expected error on duplicate package id")
	}
	// The failed transaction must not leave instructions behind.
	got, _ := st.GetPackage(ctx, "pkg_1")
	if diff := cmp.Diff([]string{"a"}, got.InstructionIDs); diff != "" {
		t.Errorf("instructions (-want +got):\n%s", diff)
	}
}

func TestRecordRelease(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	if err := st.RecordLaunch(ctx, samplePackage("pkg_1", "gpu", 1, "a")); err != nil {
		t.Fatal(err)
	}

	if err := st.RecordRelease(ctx, "pkg_1", 3, "kernel crashed"); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, _ := st.GetPackage(ctx, "pkg_1")
	if !got.IsReleased() || *got.ReleasedTick != 3 {
		t.Errorf("released tick = %v, want 3", got.ReleasedTick)
	}
	if got.ReleasedAt == nil {
		t.Error("released_at not set")
	}
	if got.Failure != "kernel crashed" {
		t.Errorf("failure = %q", got.Failure)
	}

	if err := st.RecordRelease(ctx, "pkg_1", 4, ""); err == nil {
		t.Error("expected error releasing twice")
	}
	if err := st.RecordRelease(ctx, "pkg_missing", 4, ""); err == nil {
		t.Error("expected error releasing unknown package")
	}
}

func TestListPackages(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		unit := model.UnitType("gpu")
		if i%2 == 0 {
			unit = "cpu"
		}
		if err := st.RecordLaunch(ctx, samplePackage(fmt.Sprintf("pkg_%d", i), unit, uint64(i), fmt.Sprintf("ins_%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	recs, total, err := st.ListPackages(ctx, model.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(recs) != 2 || recs[0].ID != "pkg_5" || recs[1].ID != "pkg_4" {
		t.Fatalf("first page = %v, want pkg_5, pkg_4", ids(recs))
	}
	if diff := cmp.Diff([]string{"ins_5"}, recs[0].InstructionIDs); diff != "" {
		t.Errorf("instructions (-want +got):\n%s", diff)
	}

	recs, total, err = st.ListPackages(ctx, model.ListOptions{Limit: 10, Unit: "cpu"})
	if err != nil {
		t.Fatalf("list cpu: %v", err)
	}
	if total != 2 {
		t.Errorf("cpu total = %d, want 2", total)
	}
	if diff := cmp.Diff([]string{"pkg_4", "pkg_2"}, ids(recs)); diff != "" {
		t.Errorf("cpu packages (-want +got):\n%s", diff)
	}

	recs, _, err = st.ListPackages(ctx, model.ListOptions{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"pkg_1"}, ids(recs)); diff != "" {
		t.Errorf("last page (-want +got):\n%s", diff)
	}
}

func ids(recs []*model.PackageRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

// --- Idle event tests ---

func TestRecordAndListIdleEvents(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)
	for i := 1; i <= 3; i++ {
		ev := &model.IdleEvent{Object: model.LogicalObjectID(i), Parallel: 0, Tick: uint64(10 + i), At: at}
		if err := st.RecordIdle(ctx, ev); err != nil {
			t.Fatalf("record idle: %v", err)
		}
	}

	events, total, err := st.ListIdleEvents(ctx, model.DefaultListOptions())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(events) != 3 {
		t.Fatalf("total = %d, len = %d, want 3", total, len(events))
	}
	want := &model.IdleEvent{Object: 3, Parallel: 0, Tick: 13, At: at}
	if diff := cmp.Diff(want, events[0]); diff != "" {
		t.Errorf("newest event (-want +got):\n%s", diff)
	}
}

// TestJournal_SchedulerIntegration runs a scheduler with the store as its
// journal and checks the recorded history.
func TestJournal_SchedulerIntegration(t *testing.T) {
	st := testStore(t)
	logger := st.logger
	ctx := context.Background()

	manual := executor.NewManualExecutor("gpu")
	reg := executor.NewRegistry(logger)
	reg.Register(manual)
	sched, err := scheduler.New(scheduler.Config{Units: []model.UnitSpec{{Type: "gpu", Count: 1}}}, reg, logger, scheduler.WithJournal(st))
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}

	sched.Receive([]*model.InstructionMessage{
		{UnitType: model.ControlUnitType, Control: &model.ControlPayload{Op: model.ControlCreateObject, Object: 1, Replicas: 1}},
		{ID: "w", UnitType: "gpu", Opcode: "noop", Operands: []model.Operand{model.MutableOperand(1)}},
		{ID: "r", UnitType: "gpu", Opcode: "noop", Operands: []model.Operand{model.ConstOperand(1)}},
	})
	for i := 0; i < 4; i++ {
		if err := sched.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
		manual.CompleteAll()
	}

	recs, total, err := st.ListPackages(ctx, model.DefaultListOptions())
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Fatalf("total packages = %d, want 2", total)
	}
	if diff := cmp.Diff([]string{"r"}, recs[0].InstructionIDs); diff != "" {
		t.Errorf("newest package (-want +got):\n%s", diff)
	}
	for _, rec := range recs {
		if !rec.IsReleased() {
			t.Errorf("package %s not released", rec.ID)
		}
	}
	events, _, err := st.ListIdleEvents(ctx, model.DefaultListOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Object != 1 {
		t.Errorf("idle events = %+v, want one for object 1", events)
	}
}
