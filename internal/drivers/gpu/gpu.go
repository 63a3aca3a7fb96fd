// Package gpu is the reference GPU domain. Unlike every other reference
// driver in this tree, its domain.GPU implementation does not live in
// this process: the image names a vsock "contextID:port" endpoint and
// every Flush/Fill call is forwarded across internal/boundary to
// whatever implementation is listening there. This is the one capability
// kind the external-interfaces design deliberately runs out-of-process,
// to exercise a boundary crossing that can block or fail independently
// of the guarding proxy's own liveness tracking.
package gpu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oriys/domaincore/internal/boundary"
	"github.com/oriys/domaincore/internal/capsurface"
	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/loader"
)

func init() {
	loader.RegisterDriver("gpu.vsock", New)
}

// New is the loader.Constructor registered under "gpu.vsock". The image
// bytes carry "contextID:port" as a UTF-8 string.
func New(id domain.ID, image domain.Image, shims loader.Shims) (domain.Base, error) {
	surface, ok := shims.Syscall.(*capsurface.Surface)
	if !ok {
		return nil, fmt.Errorf("gpu: syscall shim is not a *capsurface.Surface")
	}
	contextID, port, err := parseEndpoint(string(image.Bytes))
	if err != nil {
		return nil, fmt.Errorf("gpu: %w", err)
	}
	surface.WriteConsole(fmt.Sprintf("gpu domain %d bound to vsock %d:%d\n", id, contextID, port))
	return boundary.NewGPUClient(contextID, port), nil
}

func parseEndpoint(s string) (contextID, port uint32, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed vsock endpoint %q, want contextID:port", s)
	}
	c, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed context ID in %q: %w", s, err)
	}
	p, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed port in %q: %w", s, err)
	}
	return uint32(c), uint32(p), nil
}
