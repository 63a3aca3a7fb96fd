// Package capsurface implements the syscall / capability surface: the
// only way a loaded domain interacts with the kernel. One Surface is
// constructed per domain at activation time and handed to the domain's
// entry point as its syscall shim.
package capsurface

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/domaincore/internal/continuation"
	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/kerrors"
	"github.com/oriys/domaincore/internal/klog"
	"github.com/oriys/domaincore/internal/ledger"
	"github.com/oriys/domaincore/internal/pages"
	"github.com/oriys/domaincore/internal/registry"
)

// KernelConstants are the fixed addresses a domain needs to build
// user-mode trap returns. This Go core does not itself run in S-mode, so
// these are opaque placeholders threaded through unchanged rather than
// real RISC-V addresses — see SPEC_FULL.md §6.
type KernelConstants struct {
	TrampolineAddr uintptr
	KernelSATP     uintptr
	TrapFromUser   uintptr
	TrapToUser     uintptr
}

// TaskSwitcher is the thread-context-switch primitive used by the task
// domain, injected at boot to avoid a dependency from this package onto
// a particular scheduler implementation.
type TaskSwitcher func(prev, next uint64) error

// Deps bundles the process-wide services every Surface is built from.
type Deps struct {
	Registry  *registry.Registry
	Ledger    *ledger.Ledger
	Pages     *pages.Allocator
	Console   *klog.Console
	Constants KernelConstants
	Switcher  TaskSwitcher
	BootTime  time.Time
}

// Surface is the concrete syscall shim bound to one domain ID.
type Surface struct {
	id   domain.ID
	name string
	deps Deps
}

// New constructs a Surface bound to id. name is used in console/crash
// lines.
func New(id domain.ID, name string, deps Deps) *Surface {
	return &Surface{id: id, name: name, deps: deps}
}

// AllocPages rounds n up to a power of two, allocates physically
// contiguous pages, and records the allocation in the ledger.
func (s *Surface) AllocPages(n uint64) (pages.PageRange, error) {
	r, err := s.deps.Pages.Alloc(n)
	if err != nil {
		return pages.PageRange{}, kerrors.New(kerrors.IOFailure, "alloc_pages", s.name, err)
	}
	s.deps.Ledger.RecordAlloc(s.id, r)
	return r, nil
}

// FreePages drops the matching ledger entry and returns the pages to the
// allocator. It returns a not-found error if the domain has no ledger
// entry at all; otherwise it is a no-op unless a prior AllocPages
// produced a range (p, m) with m >= n for the same first page.
func (s *Surface) FreePages(p uint64, n uint64) error {
	e := s.deps.Ledger.Get(s.id)
	if e == nil {
		return kerrors.New(kerrors.NotFound, "free_pages", s.name, fmt.Errorf("no ledger entry for domain"))
	}
	want := pages.RoundUpPow2(n)
	if !s.deps.Ledger.RecordFree(s.id, p, want) {
		return nil
	}
	s.deps.Pages.Free(pages.PageRange{First: p, Count: want})
	return nil
}

// WriteConsole writes s to the kernel console, unsynchronized w.r.t.
// other domains.
func (s *Surface) WriteConsole(text string) {
	s.deps.Console.Write(text)
}

// Backtrace dumps a trace line to the console, reclaims the crashing
// domain's ledger entry, marks it inactive, and hands control to the
// unwind path. It never returns to its caller: the call propagates as a
// panic carrying kerrors.UnwoundPanic, which the owning proxy's recover
// translates into the domain-crashed error without reclaiming a second
// time.
func (s *Surface) Backtrace(ctx context.Context, crashed domain.ID) {
	s.deps.Console.CrashLine(s.name, fmt.Errorf("backtrace requested for domain %d", crashed))

	e := s.deps.Ledger.Get(crashed)
	if e != nil {
		if e.Active != nil {
			e.Active.MarkCrashed()
		}
		s.deps.Ledger.Reclaim(crashed, s.deps.Pages.Free, func(ledger.ShimSet) {})
	}

	hart := continuation.HartFrom(ctx)
	var err error
	if hart != nil {
		err = hart.Unwind()
	} else {
		err = kerrors.Crashed("backtrace", s.name)
	}
	panic(kerrors.UnwoundPanic{Err: err})
}

// CheckKernelSpace reports whether [a, a+n) lies entirely within the
// kernel's own address space. The kernel-space bounds are passed in by
// the caller as kernelBase and kernelSize, so the predicate stays pure
// and testable.
func (s *Surface) CheckKernelSpace(a, n uint64, kernelBase, kernelSize uint64) bool {
	if n == 0 {
		return a >= kernelBase && a < kernelBase+kernelSize
	}
	end := a + n
	return a >= kernelBase && end <= kernelBase+kernelSize && end > a
}

// GetDomain is the generic peer-lookup operation: returns the proxy
// (guarding capability) registered under name, or ok=false if none.
// get_<kind>_domain in spec.md is this operation specialized per kind by
// the caller's own type assertion, mirroring how every capsurface.GetXDomain
// helper below is implemented.
func (s *Surface) GetDomain(name string) (any, bool) {
	return s.deps.Registry.Lookup(name)
}

// GetBlockDomain resolves a peer block-device domain by name.
func (s *Surface) GetBlockDomain(name string) (domain.BlockDevice, bool) {
	v, ok := s.GetDomain(name)
	if !ok {
		return nil, false
	}
	bd, ok := v.(domain.BlockDevice)
	return bd, ok
}

// GetRTCDomain resolves a peer RTC domain by name.
func (s *Surface) GetRTCDomain(name string) (domain.RTC, bool) {
	v, ok := s.GetDomain(name)
	if !ok {
		return nil, false
	}
	rtc, ok := v.(domain.RTC)
	return rtc, ok
}

// GetGPUDomain resolves a peer GPU domain by name.
func (s *Surface) GetGPUDomain(name string) (domain.GPU, bool) {
	v, ok := s.GetDomain(name)
	if !ok {
		return nil, false
	}
	g, ok := v.(domain.GPU)
	return g, ok
}

// GetDTB returns the platform device-tree blob.
func (s *Surface) GetDTB() []byte {
	return s.deps.Registry.DTB()
}

// DeviceSpace returns the static device-space table installed at boot,
// backing the devices-enumeration domain's Enumerate operation.
func (s *Surface) DeviceSpace() []domain.DeviceSpaceEntry {
	return s.deps.Registry.DeviceSpace()
}

// ReadTimerMS returns monotonic milliseconds since boot.
func (s *Surface) ReadTimerMS() int64 {
	return time.Since(s.deps.BootTime).Milliseconds()
}

// SwitchTask performs the thread-context switch primitive used by the
// task domain.
func (s *Surface) SwitchTask(prev, next uint64) error {
	if s.deps.Switcher == nil {
		return kerrors.New(kerrors.Unsupported, "switch_task", s.name, fmt.Errorf("no task switcher configured"))
	}
	return s.deps.Switcher(prev, next)
}

// TrampolineAddr, KernelSATP, TrapFromUser, TrapToUser are the fixed
// kernel constants a domain needs to build user-mode trap returns.
func (s *Surface) TrampolineAddr() uintptr { return s.deps.Constants.TrampolineAddr }
func (s *Surface) KernelSATP() uintptr     { return s.deps.Constants.KernelSATP }
func (s *Surface) TrapFromUser() uintptr   { return s.deps.Constants.TrapFromUser }
func (s *Surface) TrapToUser() uintptr     { return s.deps.Constants.TrapToUser }
