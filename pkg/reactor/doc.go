// Package reactor implements a single-worker, level-triggered, coalescing
// task runner with a timed refresh.
//
// A Reactor runs one callback on one goroutine. Update() asks for the
// callback to run at least once more; any number of Update() calls that
// land while a callback is already running collapse into exactly one
// further run, so the callback never falls behind a flood of requests. The
// callback also runs on its own whenever the configured interval elapses,
// independent of Update().
package reactor
