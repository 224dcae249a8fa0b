// Package capability describes the acceleration backends compiled into the
// native engine. The set is fixed at build time through build tags and is
// resolved once; callers only ever read it.
package capability

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Backend is a single acceleration strategy.
type Backend uint8

const (
	// Auto requests the preferred compiled-in backend. It is never a member of a Set.
	Auto Backend = 0

	CPU Backend = 1 << (iota - 1)
	Accelerate
	Metal
	CUDA
	Vulkan
)

// ErrUnknownBackend is returned by ParseBackend for unrecognised names.
var ErrUnknownBackend = errors.New("capability: unknown backend")

// ErrUnsupported indicates that a requested backend is not compiled in.
var ErrUnsupported = errors.New("capability: backend not compiled in")

var backendNames = map[Backend]string{
	Auto:       "auto",
	CPU:        "cpu",
	Accelerate: "accelerate",
	Metal:      "metal",
	CUDA:       "cuda",
	Vulkan:     "vulkan",
}

// preference orders backends from most to least preferred for Auto selection.
var preference = []Backend{CUDA, Vulkan, Metal, Accelerate, CPU}

func (b Backend) String() string {
	if name, ok := backendNames[b]; ok {
		return name
	}
	return fmt.Sprintf("backend(%d)", uint8(b))
}

// GPU reports whether the backend offloads work to a GPU device.
func (b Backend) GPU() bool {
	return b == Metal || b == CUDA || b == Vulkan
}

// ParseBackend maps a configuration value to a Backend. Empty means Auto.
func ParseBackend(value string) (Backend, error) {
	name := strings.ToLower(strings.TrimSpace(value))
	if name == "" {
		return Auto, nil
	}
	for b, n := range backendNames {
		if n == name {
			return b, nil
		}
	}
	return Auto, fmt.Errorf("%w: %q", ErrUnknownBackend, value)
}

// Set is an immutable bit set of backends.
type Set uint8

// Of builds a Set from the given backends. Auto is ignored.
func Of(backends ...Backend) Set {
	var s Set
	for _, b := range backends {
		s |= Set(b)
	}
	return s
}

// Has reports whether b is in the set. Auto is never a member.
func (s Set) Has(b Backend) bool {
	return b != Auto && s&Set(b) == Set(b)
}

// List returns the members in preference order.
func (s Set) List() []Backend {
	out := make([]Backend, 0, len(preference))
	for _, b := range preference {
		if s.Has(b) {
			out = append(out, b)
		}
	}
	return out
}

// Strings returns member names in preference order.
func (s Set) Strings() []string {
	list := s.List()
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = b.String()
	}
	return out
}

func (s Set) String() string {
	if s == 0 {
		return "none"
	}
	return strings.Join(s.Strings(), ",")
}

// Preferred returns the best member of the set.
func (s Set) Preferred() (Backend, bool) {
	for _, b := range preference {
		if s.Has(b) {
			return b, true
		}
	}
	return Auto, false
}

// Select resolves requested against the set. Auto picks the preferred member;
// any other backend must be present.
func (s Set) Select(requested Backend) (Backend, error) {
	if requested == Auto {
		if b, ok := s.Preferred(); ok {
			return b, nil
		}
		return Auto, fmt.Errorf("%w: no backends available", ErrUnsupported)
	}
	if !s.Has(requested) {
		return Auto, fmt.Errorf("%w: %s (available: %s)", ErrUnsupported, requested, s)
	}
	return requested, nil
}

var compiled = sync.OnceValue(func() Set {
	s := Of(CPU)
	if accelerateCompiled {
		s |= Set(Accelerate)
	}
	if metalCompiled {
		s |= Set(Metal)
	}
	if cudaCompiled {
		s |= Set(CUDA)
	}
	if vulkanCompiled {
		s |= Set(Vulkan)
	}
	return s
})

// Compiled returns the backends the native engine was built with.
func Compiled() Set {
	return compiled()
}
