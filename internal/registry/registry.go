// Package registry holds the process-wide, read-mostly tables the core
// needs: the monotonic domain-ID counter, the domain name -> capability
// map used for peer lookup, and the static device-space table. All of it
// is populated at boot and mutated only during restart: these are
// explicit services constructed once and passed by handle into anything
// that needs them, not package-level globals.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/oriys/domaincore/internal/domain"
)

// Registry is the process-wide domain directory. The zero value is not
// usable; construct with New.
type Registry struct {
	nextID atomic.Uint64

	mu     sync.RWMutex
	byName map[string]any // domain name -> capability interface (the proxy, guarding every call)

	devMu     sync.RWMutex
	deviceTbl []domain.DeviceSpaceEntry

	dtb []byte
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byName: make(map[string]any)}
}

// NextID mints a fresh, never-reused domain ID.
func (r *Registry) NextID() domain.ID {
	return domain.ID(r.nextID.Add(1))
}

// Register publishes a capability (in practice, always a guarding proxy
// — see internal/proxy) under a name so peers can look it up. Re-registering
// the same name is how restart swaps in a freshly loaded instance without
// changing what peers hold: peers always look up by name, never cache the
// capability value across calls.
func (r *Registry) Register(name string, cap any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = cap
}

// Lookup returns the capability registered under name, or ok=false if
// no domain is registered under that name.
func (r *Registry) Lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byName[name]
	return v, ok
}

// Names returns every registered domain name, for the devices-enumeration
// and `domains list` CLI surfaces.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	return out
}

// SetDeviceSpace installs the static device-space table, read once at
// boot from config.
func (r *Registry) SetDeviceSpace(entries []domain.DeviceSpaceEntry) {
	r.devMu.Lock()
	defer r.devMu.Unlock()
	r.deviceTbl = append([]domain.DeviceSpaceEntry(nil), entries...)
}

// DeviceSpace returns the static device-space table.
func (r *Registry) DeviceSpace() []domain.DeviceSpaceEntry {
	r.devMu.RLock()
	defer r.devMu.RUnlock()
	return append([]domain.DeviceSpaceEntry(nil), r.deviceTbl...)
}

// DeviceByType returns the first device-space entry of the given type,
// backing get_<kind>_domain's address-level lookup (as distinct from the
// name-based Lookup above, which resolves to a live capability).
func (r *Registry) DeviceByType(t domain.DeviceType) (domain.DeviceSpaceEntry, bool) {
	r.devMu.RLock()
	defer r.devMu.RUnlock()
	for _, e := range r.deviceTbl {
		if e.Type == t {
			return e, true
		}
	}
	return domain.DeviceSpaceEntry{}, false
}

// SetDTB installs the platform device-tree blob returned by get_dtb.
func (r *Registry) SetDTB(dtb []byte) {
	r.dtb = dtb
}

// DTB returns the platform device-tree blob.
func (r *Registry) DTB() []byte {
	return r.dtb
}
