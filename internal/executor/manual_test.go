package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/me/govm/pkg/model"
)

func TestManualExecutor_Lifecycle(t *testing.T) {
	e := NewManualExecutor("cpu")
	unit := model.UnitID{Type: "cpu"}

	h1, err := e.Launch(context.Background(), testPackage("p1", unit, "noop"))
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	h2, _ := e.Launch(context.Background(), testPackage("p2", unit, "noop"))

	if e.IsDone(h1) || e.IsDone(h2) {
		t.Fatal("packages done before Complete")
	}
	if got := e.Pending(); len(got) != 2 || got[0] != h1 || got[1] != h2 {
		t.Fatalf("Pending() = %v, want [%s %s]", got, h1, h2)
	}

	boom := errors.New("boom")
	if err := e.Complete(h1, boom); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !e.IsDone(h1) {
		t.Error("h1 not done after Complete")
	}
	if !errors.Is(e.Err(h1), boom) {
		t.Errorf("Err(h1) = %v, want boom", e.Err(h1))
	}

	if n := e.CompleteAll(); n != 1 {
		t.Errorf("CompleteAll() = %d, want 1", n)
	}
	if len(e.Pending()) != 0 {
		t.Errorf("Pending() = %v after CompleteAll", e.Pending())
	}

	e.Forget(h1)
	if _, ok := e.Package(h1); ok {
		t.Error("Package(h1) still present after Forget")
	}
	if got := len(e.Launched()); got != 2 {
		t.Errorf("Launched() has %d entries, want 2 (history survives Forget)", got)
	}
}

func TestManualExecutor_CompleteUnknown(t *testing.T) {
	e := NewManualExecutor("cpu")
	if err := e.Complete("nope", nil); err == nil {
		t.Fatal("Complete(unknown) returned nil error")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(newTestLogger())
	reg.Register(NewManualExecutor("gpu"))
	reg.Register(NewManualExecutor("cpu"))

	if _, err := reg.Get("gpu"); err != nil {
		t.Errorf("Get(gpu): %v", err)
	}
	if _, err := reg.Get("tpu"); err == nil {
		t.Error("Get(tpu) returned nil error")
	}
	types := reg.Types()
	if len(types) != 2 || types[0] != "cpu" || types[1] != "gpu" {
		t.Errorf("Types() = %v, want [cpu gpu]", types)
	}
}
