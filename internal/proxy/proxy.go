// Package proxy implements the guarding layer every capability a domain
// hands out is wrapped in before it reaches a caller. A proxy checks the
// domain's liveness flag before forwarding a call, wraps the call in a
// continuation frame so a crash mid-call unwinds the caller cleanly
// instead of leaving it blocked forever, and holds enough state (the
// loader, the replay log of init-style calls) to rebuild the domain from
// scratch on Restart without the peer-visible name ever changing.
//
// No caller outside this package ever holds a bare, unguarded capability:
// internal/registry stores exactly the values this package constructs.
package proxy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oriys/domaincore/internal/continuation"
	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/kerrors"
	"github.com/oriys/domaincore/internal/ledger"
	"github.com/oriys/domaincore/internal/loader"
	"github.com/oriys/domaincore/internal/metrics"
	"github.com/oriys/domaincore/internal/pages"
)

// ShimFactory builds the loader.Shims bundle a freshly activated domain
// receives, given the ID it has been assigned. It is supplied by the
// wiring code that owns the capability surface and shared heap, keeping
// this package free of a dependency on internal/capsurface.
type ShimFactory func(id domain.ID) loader.Shims

// Cast narrows the domain.Base an entry point returns to the specific
// capability kind K a proxy guards, reporting failure if the domain
// returned the wrong shape.
type Cast[K domain.Base] func(domain.Base) (K, bool)

// Slot is the generic guarded holder for one domain's capability. K is
// the capability interface this slot guards (domain.BlockDevice,
// domain.RTC, ...).
type Slot[K domain.Base] struct {
	id     domain.ID
	name   string
	kind   domain.Kind
	ledger *ledger.Ledger
	pages  *pages.Allocator
	shimFn ShimFactory
	cast   Cast[K]

	mu     sync.RWMutex
	cap    K
	ld     *loader.Loader
	active *domain.ActiveFlag

	replayMu sync.Mutex
	replay   []func(K) error
}

// NewSlot loads image, activates it under a freshly minted active flag,
// casts the resulting capability to K, and registers its ledger entry.
func NewSlot[K domain.Base](
	id domain.ID,
	name string,
	image domain.Image,
	led *ledger.Ledger,
	alloc *pages.Allocator,
	shimFn ShimFactory,
	cast Cast[K],
) (*Slot[K], error) {
	ld, err := loader.Load(image)
	if err != nil {
		return nil, kerrors.New(kerrors.Other, "proxy.NewSlot", name, err)
	}

	s := &Slot[K]{
		id:     id,
		name:   name,
		kind:   image.Kind,
		ledger: led,
		pages:  alloc,
		shimFn: shimFn,
		cast:   cast,
		ld:     ld,
	}
	if err := s.activate(); err != nil {
		return nil, err
	}
	metrics.Global().RecordDomainLoaded()
	return s, nil
}

// activate calls the loader's entry point, casts the result, and
// installs a fresh active flag and ledger entry. Called once from
// NewSlot and again, under the write lock, from Restart.
func (s *Slot[K]) activate() error {
	active := domain.NewActiveFlag()
	shims := s.shimFn(s.id)

	capBase, err := s.ld.Call(s.id, shims)
	if err != nil {
		return kerrors.New(kerrors.Other, "proxy.activate", s.name, err)
	}
	capT, ok := s.cast(capBase)
	if !ok {
		return kerrors.New(kerrors.InvalidArgument, "proxy.activate", s.name,
			fmt.Errorf("entry point returned a capability of the wrong kind"))
	}

	s.ledger.Register(s.id, active, ledger.ShimSet{
		Syscall:   shims.Syscall,
		Allocator: shims.Allocator,
		Task:      shims.Task,
	})

	s.cap = capT
	s.active = active
	return nil
}

// current returns a consistent snapshot of the live capability and its
// active flag.
func (s *Slot[K]) current() (K, *domain.ActiveFlag) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cap, s.active
}

// IsActive reports whether the guarded domain is presently live.
func (s *Slot[K]) IsActive() bool {
	_, active := s.current()
	return active != nil && active.IsActive()
}

// Capability returns the slot's current capability value directly,
// unguarded. It exists for wiring code and tests that need to reach a
// concrete driver type (e.g. to arm a test-only hook); ordinary call
// sites must go through Do/Get instead.
func (s *Slot[K]) Capability() K {
	c, _ := s.current()
	return c
}

// ID returns the domain ID this slot guards.
func (s *Slot[K]) ID() domain.ID { return s.id }

// Name returns the domain name this slot guards.
func (s *Slot[K]) Name() string { return s.name }

// RecordReplay appends an init-style call to the replay log, so Restart
// repeats it verbatim against the freshly loaded capability before
// returning. Use this for calls a real driver would otherwise need to
// re-issue by hand after every restart (e.g. "attach to backing device
// X").
func (s *Slot[K]) RecordReplay(fn func(K) error) {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()
	s.replay = append(s.replay, fn)
}

// Restart reloads the domain from the same image (or a new one, for a
// hot-swap) and replays every recorded init call against the new
// capability. The name under which peers look this slot up in the
// registry never changes, so no peer reference needs to be updated. The
// previous capability value is not torn down: a crashed domain's
// in-process state is treated as unreachable garbage, not something with
// a destructor to run, so the old value is simply dropped.
func (s *Slot[K]) Restart(newImage *domain.Image) error {
	started := time.Now()
	err := s.restart(newImage)
	metrics.Global().RecordRestart(s.name, string(s.kind), err == nil, time.Since(started))
	return err
}

func (s *Slot[K]) restart(newImage *domain.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if newImage != nil {
		ld, err := loader.Load(*newImage)
		if err != nil {
			return kerrors.New(kerrors.Other, "proxy.Restart", s.name, err)
		}
		s.ld = ld
	} else if err := s.ld.Reload(); err != nil {
		return kerrors.New(kerrors.Other, "proxy.Restart", s.name, err)
	}

	if err := s.activate(); err != nil {
		return err
	}

	s.replayMu.Lock()
	records := append([]func(K) error(nil), s.replay...)
	s.replayMu.Unlock()

	for _, rec := range records {
		if err := rec(s.cap); err != nil {
			return kerrors.New(kerrors.Other, "proxy.Restart.replay", s.name, err)
		}
	}
	return nil
}

// forceCrash is invoked by Do when a call panics with something other
// than kerrors.UnwoundPanic: the domain never reached capsurface.Backtrace,
// so this proxy performs the reclaim backtrace would otherwise have done.
func (s *Slot[K]) forceCrash() {
	s.mu.RLock()
	active := s.active
	s.mu.RUnlock()
	if active != nil {
		active.MarkCrashed()
	}
	s.ledger.Reclaim(s.id, s.pages.Free, func(ledger.ShimSet) {})
	metrics.Global().RecordCrash(s.name, string(s.kind))
}

// Do invokes fn against the slot's current capability under full
// guarding: an inactive domain short-circuits to a domain-crashed error
// without calling fn at all; a live call is wrapped in a continuation
// frame pushed onto the hart attached to ctx (if any) so a crash unwinds
// through Hart.Unwind instead of leaving the frame stranded.
func Do[K domain.Base](ctx context.Context, s *Slot[K], siteID string, fn func(K) error) (err error) {
	started := time.Now()
	cap, active := s.current()
	if active != nil && !active.IsActive() {
		metrics.Global().RecordCall(siteID, time.Since(started), true)
		return kerrors.Crashed(siteID, s.name)
	}

	hart := continuation.HartFrom(ctx)
	var token int
	if hart != nil {
		token = hart.Push(continuation.Frame{
			CallerDomain: s.name,
			SiteID:       siteID,
			Stub:         func() error { return kerrors.Crashed(siteID, s.name) },
		})
	}

	defer func() {
		if r := recover(); r != nil {
			if unwound, ok := r.(kerrors.UnwoundPanic); ok {
				err = unwound.Err
			} else {
				s.forceCrash()
				if hart != nil {
					err = hart.Unwind()
				} else {
					err = kerrors.Crashed(siteID, s.name)
				}
			}
			metrics.Global().RecordCall(siteID, time.Since(started), true)
			return
		}
		metrics.Global().RecordCall(siteID, time.Since(started), err != nil)
	}()

	err = fn(cap)
	if hart != nil {
		hart.Pop(token)
	}
	return err
}

// Controllable is the non-generic view of a Slot the control plane
// operates on: every Slot[K], for any capability kind K, satisfies this
// interface without the control plane ever needing to know K.
type Controllable interface {
	ID() domain.ID
	Name() string
	IsActive() bool
	Restart(newImage *domain.Image) error
}

// Get is Do for calls that also return a value: fn's result is captured
// before Do's own error-only signature collapses it, so a crash mid-call
// still yields the zero value of R alongside the crash error.
func Get[K domain.Base, R any](ctx context.Context, s *Slot[K], siteID string, fn func(K) (R, error)) (R, error) {
	var result R
	err := Do(ctx, s, siteID, func(cap K) error {
		r, e := fn(cap)
		result = r
		return e
	})
	return result, err
}
