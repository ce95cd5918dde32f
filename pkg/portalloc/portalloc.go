package portalloc

import (
	"errors"
	"fmt"
	"sort"
)

// ErrExhausted is returned when a port cannot be satisfied: an explicitly
// requested port is already taken, or the dynamic range has no free port
// left. Callers treat this as non-fatal and retry on a later reconciliation
// tick (see pkg/agent).
var ErrExhausted = errors.New("portalloc: no port available")

// Spec describes one logical port a job wants exposed.
type Spec struct {
	// Internal is the port inside the container. Allocation does not use
	// it directly, but callers keep it alongside the allocation result to
	// build the full internal->host mapping.
	Internal int
	Protocol string
	// Requested, if non-nil, pins the host port. If it is already in use
	// (or reused earlier in the same call), allocation fails entirely.
	Requested *int
}

// Range is the inclusive bound dynamic allocation draws from.
type Range struct {
	Lo, Hi int
}

func (r Range) valid() bool {
	return r.Lo > 0 && r.Hi >= r.Lo
}

// Allocator picks free host ports for a job's named ports, avoiding a
// given used-set. It holds no state: every call is independent and
// deterministic for identical inputs.
type Allocator struct {
	dynamic Range
}

// New returns an Allocator that draws dynamically-assigned ports from
// [lo, hi].
func New(dynamic Range) *Allocator {
	return &Allocator{dynamic: dynamic}
}

// Allocate assigns one host port per entry in ports, pairwise disjoint from
// each other and from used. It returns ErrExhausted (wrapped with the
// offending port name) if any single port cannot be satisfied; in that
// case the returned map is nil and used is left unmodified by the caller's
// perspective (Allocate never mutates its arguments).
//
// Iteration is in sorted port-name order so that, for the same inputs, the
// same ports are always chosen in the same order.
func (a *Allocator) Allocate(ports map[string]Spec, used map[int]bool) (map[string]int, error) {
	names := make([]string, 0, len(ports))
	for name := range ports {
		names = append(names, name)
	}
	sort.Strings(names)

	taken := make(map[int]bool, len(used)+len(ports))
	for p := range used {
		taken[p] = true
	}

	result := make(map[string]int, len(ports))

	// Explicit pass: honor caller-requested host ports first.
	for _, name := range names {
		spec := ports[name]
		if spec.Requested == nil {
			continue
		}
		p := *spec.Requested
		if taken[p] {
			return nil, fmt.Errorf("port %q: requested host port %d unavailable: %w", name, p, ErrExhausted)
		}
		taken[p] = true
		result[name] = p
	}

	// Dynamic pass: fill in everything left from the configured range.
	if !a.dynamic.valid() {
		for _, name := range names {
			if ports[name].Requested == nil {
				return nil, fmt.Errorf("port %q: no dynamic range configured: %w", name, ErrExhausted)
			}
		}
		return result, nil
	}

	for _, name := range names {
		spec := ports[name]
		if spec.Requested != nil {
			continue
		}
		port, ok := lowestFree(a.dynamic, taken)
		if !ok {
			return nil, fmt.Errorf("port %q: dynamic range [%d,%d] exhausted: %w", name, a.dynamic.Lo, a.dynamic.Hi, ErrExhausted)
		}
		taken[port] = true
		result[name] = port
	}

	return result, nil
}

func lowestFree(r Range, taken map[int]bool) (int, bool) {
	for p := r.Lo; p <= r.Hi; p++ {
		if !taken[p] {
			return p, true
		}
	}
	return 0, false
}
