package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// EntrySymbol is the single exported symbol every domain image must
// resolve, per the external-interfaces contract: main(syscall_shim,
// domain_id, shared_heap, task_shim) -> capability.
const EntrySymbol = "main"

// Image is the opaque byte blob the loader lays out and re-lays-out. The
// on-disk/on-wire encoding beyond this shape — real ELF parsing and
// relocation — is out of scope; Driver names the registered constructor
// the image's header resolves to, standing in for symbol resolution
// against a real relocatable binary.
type Image struct {
	Bytes  []byte
	Driver string
	Kind   Kind
}

// ContentHash returns the SHA-256 hash of the image bytes, used to detect
// a code change across a restart/hot-swap.
func (img Image) ContentHash() string {
	h := sha256.Sum256(img.Bytes)
	return hex.EncodeToString(h[:])
}
