// Package loader turns a domain image byte slice plus a known entry
// symbol name into a live capability.
//
// Binary relocation and ELF symbol resolution are out of scope here:
// this Go port treats a domain image as an opaque blob whose header
// names a registered constructor — the same self-registration idiom the
// standard library uses for database/sql drivers and image codecs —
// rather than performing real relocation. Swapping this package's
// internals for one that actually parses a relocatable image and
// resolves `main` by symbol name would not change any other package in
// this repo, since every other package only talks to the Capability
// interface the constructor returns.
package loader

import (
	"fmt"
	"sync"

	"github.com/oriys/domaincore/internal/domain"
)

// Constructor builds a fresh capability for a domain, given everything
// the image's exported `main` symbol is contracted to receive: the
// domain's own ID, the image it was resolved from (a reference driver may
// read Image.Bytes as its own opaque configuration blob, e.g. the name of
// a peer domain to delegate to), and the three shim objects (syscall
// surface, page allocator, task shim) bound to that ID, plus the shared
// heap handle. Shims are passed as `any` here to avoid a dependency cycle
// between loader and the packages (capsurface, heap) that build them;
// concrete drivers type-assert to the shapes they need.
type Constructor func(id domain.ID, image domain.Image, shims Shims) (domain.Base, error)

// Shims bundles the objects a loaded domain receives at activation: the
// syscall surface, the shared heap, the page allocator and the task shim.
type Shims struct {
	Syscall   any
	Heap      any
	Allocator any
	Task      any
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// RegisterDriver registers a constructor under the name a domain image's
// header will carry as domain.Image.Driver. Driver packages call this
// from an init() function, mirroring sql.Register / image.RegisterFormat.
func RegisterDriver(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

func lookupDriver(name string) (Constructor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ctor, ok := registry[name]
	return ctor, ok
}

// Loader holds the laid-out state for one domain: its image and the
// resolved constructor. A Loader is retained by the owning proxy so
// Restart can re-materialize a domain without re-fetching its image.
type Loader struct {
	mu      sync.Mutex
	image   domain.Image
	ctor    Constructor
	laidOut bool
}

// Load parses image, lays out code and data (here: resolves the
// registered constructor), and retains state for a later Reload. It
// never leaves the loader in a partially laid-out state: on failure,
// the Loader is unchanged from before the call.
func Load(image domain.Image) (*Loader, error) {
	ctor, ok := lookupDriver(image.Driver)
	if !ok {
		return nil, fmt.Errorf("load domain image: unresolved entry symbol %q (driver %q not registered)", domain.EntrySymbol, image.Driver)
	}
	return &Loader{image: image, ctor: ctor, laidOut: true}, nil
}

// Call invokes the entry, passing the shims bound to id. The returned
// capability must satisfy whatever capability interface the caller
// expects; callers type-assert accordingly.
func (l *Loader) Call(id domain.ID, shims Shims) (domain.Base, error) {
	l.mu.Lock()
	ctor := l.ctor
	laidOut := l.laidOut
	l.mu.Unlock()

	if !laidOut {
		return nil, fmt.Errorf("call: loader has no laid-out image")
	}
	cap, err := ctor(id, l.image, shims)
	if err != nil {
		return nil, fmt.Errorf("domain entry point failed: %w", err)
	}
	return cap, nil
}

// Reload discards the current layout, re-resolves the entry, and is
// idempotent: calling it repeatedly without an intervening Call leaves
// the loader in the same laid-out state.
func (l *Loader) Reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctor, ok := lookupDriver(l.image.Driver)
	if !ok {
		l.laidOut = false
		return fmt.Errorf("reload domain image: driver %q no longer registered", l.image.Driver)
	}
	l.ctor = ctor
	l.laidOut = true
	return nil
}

// Image returns the image this loader was constructed from.
func (l *Loader) Image() domain.Image {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.image
}
