package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/me/govm/pkg/model"
)

// Kernel executes one instruction. The scheduler guarantees that the
// instruction holds the accesses its operands declared while it runs.
type Kernel func(ctx context.Context, ins *model.InstructionMessage) error

// Kernels maps opcodes to kernels. It is safe for concurrent use.
type Kernels struct {
	mu      sync.RWMutex
	kernels map[string]Kernel
}

// NewKernels returns a kernel table preloaded with the builtin kernels.
func NewKernels() *Kernels {
	k := &Kernels{kernels: make(map[string]Kernel)}
	k.Register("", noopKernel)
	k.Register("noop", noopKernel)
	k.Register("sleep", sleepKernel)
	k.Register("fail", failKernel)
	return k
}

// Register binds opcode to fn, replacing any previous kernel.
func (k *Kernels) Register(opcode string, fn Kernel) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.kernels[opcode] = fn
}

// Lookup returns the kernel for opcode.
func (k *Kernels) Lookup(opcode string) (Kernel, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	fn, ok := k.kernels[opcode]
	return fn, ok
}

func noopKernel(context.Context, *model.InstructionMessage) error {
	return nil
}

// sleepKernel sleeps for the sum of its value operands, in milliseconds.
func sleepKernel(ctx context.Context, ins *model.InstructionMessage) error {
	var ms int64
	for _, op := range ins.Operands {
		if op.Kind == model.OperandValue {
			ms += op.Value
		}
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func failKernel(_ context.Context, ins *model.InstructionMessage) error {
	return fmt.Errorf("instruction %s: fail kernel invoked", ins.ID)
}
