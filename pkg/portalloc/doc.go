// Package portalloc allocates host ports for a job's logical port map
// without colliding with ports already in use, and does so deterministically:
// the same inputs always produce the same outputs.
//
// Allocation runs in two passes. The explicit pass honors any
// caller-requested host port, failing the whole call if that port is
// already taken. The dynamic pass then fills in every remaining port from
// the lowest free port in a configured range. Either pass failing fails the
// entire allocation -- callers never see a partial assignment.
package portalloc
