// Package taskdom is the reference task/syscall domain, grounded on
// domains/task/src/kthread.rs and kernel/src/task/mod.rs: a minimal
// cooperative scheduler that spawns a goroutine per task (standing in
// for a kernel thread with its own stack and context) and drives
// switch_task through the syscall surface's TaskSwitcher.
package taskdom

import (
	"fmt"
	"sync"

	"github.com/oriys/domaincore/internal/capsurface"
	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/loader"
)

func init() {
	loader.RegisterDriver("taskdom.cooperative", New)
}

// Device implements domain.Task. Each Spawn starts a goroutine that
// blocks on its own turn channel, woken only when SwitchTask names it as
// the next task to run — the cooperative-scheduling shape kthread.rs's
// ktread_create/TaskContext pair models with a real kernel stack.
type Device struct {
	*domain.ActiveFlag
	surface *capsurface.Surface

	mu     sync.Mutex
	nextID uint64
	tasks  map[uint64]chan struct{}
}

// New is the loader.Constructor registered under "taskdom.cooperative".
func New(id domain.ID, image domain.Image, shims loader.Shims) (domain.Base, error) {
	surface, ok := shims.Syscall.(*capsurface.Surface)
	if !ok {
		return nil, fmt.Errorf("taskdom: syscall shim is not a *capsurface.Surface")
	}
	return &Device{
		ActiveFlag: domain.NewActiveFlag(),
		surface:    surface,
		tasks:      make(map[uint64]chan struct{}),
	}, nil
}

func (d *Device) HandleIRQ() error { return nil }

// Spawn starts entry on its own goroutine, gated on a turn channel so it
// only runs between SwitchTask calls naming it, and returns the task ID
// SwitchTask will use to resume it.
func (d *Device) Spawn(entry func()) (uint64, error) {
	d.mu.Lock()
	d.nextID++
	tid := d.nextID
	turn := make(chan struct{}, 1)
	d.tasks[tid] = turn
	d.mu.Unlock()

	go func() {
		<-turn
		entry()
	}()
	return tid, nil
}

// SwitchTask wakes next's goroutine via its turn channel and then invokes
// the syscall surface's TaskSwitcher so the kernel's own trap-return
// bookkeeping (register save/restore) happens consistently with a real
// context switch. If the surface has no TaskSwitcher configured, that
// call fails and SwitchTask returns its error.
func (d *Device) SwitchTask(prev, next uint64) error {
	d.mu.Lock()
	turn, ok := d.tasks[next]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("taskdom: no such task %d", next)
	}

	select {
	case turn <- struct{}{}:
	default:
	}

	return d.surface.SwitchTask(prev, next)
}

var _ domain.Task = (*Device)(nil)
