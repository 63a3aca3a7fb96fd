package proxy

import (
	"context"

	"github.com/oriys/domaincore/internal/domain"
)

// TaskProxy guards the task-management domain.
type TaskProxy struct {
	slot *Slot[domain.Task]
	ctx  context.Context
}

func NewTaskProxy(ctx context.Context, slot *Slot[domain.Task]) *TaskProxy {
	return &TaskProxy{slot: slot, ctx: ctx}
}

func (p *TaskProxy) Slot() *Slot[domain.Task] { return p.slot }

func (p *TaskProxy) IsActive() bool { return p.slot.IsActive() }

func (p *TaskProxy) HandleIRQ() error {
	return Do(p.ctx, p.slot, "task.handle_irq", func(d domain.Task) error {
		return d.HandleIRQ()
	})
}

func (p *TaskProxy) Spawn(entry func()) (uint64, error) {
	return Get(p.ctx, p.slot, "task.spawn", func(d domain.Task) (uint64, error) {
		return d.Spawn(entry)
	})
}

func (p *TaskProxy) SwitchTask(prev, next uint64) error {
	return Do(p.ctx, p.slot, "task.switch_task", func(d domain.Task) error {
		return d.SwitchTask(prev, next)
	})
}

var _ domain.Task = (*TaskProxy)(nil)
