// Package agent implements the node-local reconciliation core: it diffs
// desired jobs published by a control-plane Model against the set of
// running Supervisors, allocates host ports without collision, persists
// its intermediate state atomically so a crash-restart resumes where it
// left off, and ensures no two Supervisors ever manage the same job
// concurrently.
//
// The Agent owns three pieces of state:
//
//   - executions: a durable JobID -> Execution map in a cell.Cell, the
//     committed decision of "run this job with these ports".
//   - supervisors: an in-memory JobID -> supervisor.Supervisor map,
//     rebuilt from executions on startup and never persisted.
//   - a reactor.Reactor that serializes every invocation of the
//     reconciliation cycle (Update) onto a single worker.
//
// See Agent.tick for the nine-phase reconciliation algorithm.
package agent
