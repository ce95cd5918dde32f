package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cuemby/warren-agent/pkg/cell"
	"github.com/cuemby/warren-agent/pkg/log"
	"github.com/cuemby/warren-agent/pkg/metrics"
	"github.com/cuemby/warren-agent/pkg/portalloc"
	"github.com/cuemby/warren-agent/pkg/reactor"
	"github.com/cuemby/warren-agent/pkg/supervisor"
	"github.com/rs/zerolog"
)

// DefaultReactorInterval is the timed-refresh period used when Config does
// not override it.
const DefaultReactorInterval = 30 * time.Second

// PortAllocator is the subset of portalloc.Allocator the Agent needs,
// expressed as an interface so tests can substitute a fake.
type PortAllocator interface {
	Allocate(ports map[string]portalloc.Spec, used map[int]bool) (map[string]int, error)
}

// Config configures an Agent.
type Config struct {
	// ReactorInterval is the timed-refresh period. Defaults to
	// DefaultReactorInterval.
	ReactorInterval time.Duration
}

// Agent is the reconciler: it owns the supervisor map and the executions
// cell, and orchestrates the Model, PortAllocator, cell.Cell, and
// supervisor.Factory collaborators to drive observed state toward desired
// state.
type Agent struct {
	model             Model
	supervisorFactory supervisor.Factory
	executions        cell.Cell[ExecutionSet]
	portAllocator     PortAllocator

	logger  zerolog.Logger
	reactor *reactor.Reactor

	mu             sync.Mutex
	supervisors    map[JobID]supervisor.Supervisor
	current        ExecutionSet
	reportedStatus map[JobID]string
}

// New constructs an Agent. Startup must be called before it does any work.
func New(model Model, factory supervisor.Factory, executions cell.Cell[ExecutionSet], allocator PortAllocator, cfg Config) *Agent {
	if cfg.ReactorInterval <= 0 {
		cfg.ReactorInterval = DefaultReactorInterval
	}

	a := &Agent{
		model:             model,
		supervisorFactory: factory,
		executions:        executions,
		portAllocator:     allocator,
		logger:            log.WithComponent("agent"),
		supervisors:       make(map[JobID]supervisor.Supervisor),
		reportedStatus:    make(map[JobID]string),
	}
	a.reactor = reactor.New("agent", a.tick, cfg.ReactorInterval)
	return a
}

// Startup reconstructs supervisors for every already-ported Execution in
// the persistent cell (without starting them -- the first Update tick
// commands goals), registers the Agent as a Model listener, and starts the
// Reactor.
func (a *Agent) Startup() error {
	a.mu.Lock()
	a.current = a.executions.Get()
	if a.current == nil {
		a.current = ExecutionSet{}
	}
	for id, e := range a.current {
		if e.Ports == nil {
			continue
		}
		sup, err := a.supervisorFactory.Create(string(id), toSupervisorJob(e.Job), e.Ports)
		if err != nil {
			a.logger.Error().Err(err).Str("job_id", string(id)).Msg("failed to reconstruct supervisor on startup")
			continue
		}
		a.supervisors[id] = sup
	}
	a.mu.Unlock()

	a.model.AddListener(ListenerFunc(func() { a.reactor.Update() }))

	a.reactor.Start()
	a.reactor.Update()
	return nil
}

// Shutdown stops the Reactor (awaiting worker termination) and closes every
// supervisor the Agent holds. It does not wait for containers to stop on
// their own -- that is the supervisor implementation's decision.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.reactor.Stop()

	a.mu.Lock()
	sups := a.supervisors
	a.supervisors = make(map[JobID]supervisor.Supervisor)
	a.mu.Unlock()

	var errs []error
	for id, sup := range sups {
		if err := sup.Close(ctx); err != nil {
			a.logger.Error().Err(err).Str("job_id", string(id)).Msg("failed to close supervisor during shutdown")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Snapshot returns a copy of the current in-memory executions view, for
// observability and tests. It never returns the live map.
func (a *Agent) Snapshot() ExecutionSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.Clone()
}

// SupervisorCount returns the number of supervisors currently held, for
// tests asserting the no-ghost-supervisors and no-duplicate-ownership
// invariants.
func (a *Agent) SupervisorCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.supervisors)
}

// ExecutionCount returns the number of durable executions currently held,
// for metrics.Collector.
func (a *Agent) ExecutionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.current)
}

// SupervisorStatusCounts returns the number of supervisors in each
// lifecycle status, for metrics.Collector.
func (a *Agent) SupervisorStatusCounts() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	counts := make(map[string]int)
	for _, sup := range a.supervisors {
		counts[string(sup.Status())]++
	}
	return counts
}

func toSupervisorJob(j Job) supervisor.Job {
	ports := make(map[string]supervisor.PortSpec, len(j.Ports))
	for name, spec := range j.Ports {
		ports[name] = supervisor.PortSpec{Internal: spec.Internal, Protocol: spec.Protocol}
	}
	return supervisor.Job{Image: j.Image, Command: j.Command, Env: j.Env, Ports: ports}
}

// tick is the Reactor callback: the nine-phase reconciliation algorithm,
// executed single-threaded by the Reactor worker.
func (a *Agent) tick(ctx context.Context) reactor.Result {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	if ctx.Err() != nil {
		return reactor.Interrupted
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Phase 1: snapshot.
	tasks, err := a.model.GetTasks()
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to read desired tasks from model")
		return reactor.Completed
	}
	current := a.current
	if current == nil {
		current = ExecutionSet{}
	}

	// Phase 2: merge goals & introduce new executions.
	next := current.Clone()
	for id, task := range tasks {
		if e, ok := next[id]; ok {
			if e.Goal != task.Goal {
				next[id] = e.WithGoal(task.Goal)
			}
			continue
		}
		if task.Goal != GoalUndeploy {
			next[id] = Execution{Job: task.Job, Goal: task.Goal, Ports: nil}
		}
	}

	// Phase 3: port allocation.
	a.allocatePorts(next)

	if ctx.Err() != nil {
		return reactor.Interrupted
	}

	// Phase 4: persist.
	if !next.Equal(current) {
		if err := a.executions.Set(next); err != nil {
			a.logger.Error().Err(err).Msg("failed to persist executions; aborting this tick")
			metrics.PersistenceFailuresTotal.Inc()
			return reactor.Completed
		}
		a.current = next
	} else {
		a.current = next
	}

	// Phase 5: release stopped supervisors.
	for id, sup := range snapshotSupervisors(a.supervisors) {
		if sup.IsDone() && sup.Status() == supervisor.StatusStopped {
			delete(a.supervisors, id)
			delete(a.reportedStatus, id)
			if err := sup.Close(ctx); err != nil {
				a.logger.Error().Err(err).Str("job_id", string(id)).Msg("failed to close stopped supervisor")
			}
			a.reactor.Update()
		}
	}

	// Phase 6: spawn missing supervisors.
	for id, e := range a.current {
		if _, exists := a.supervisors[id]; exists {
			continue
		}
		if e.Goal != GoalStart || e.Ports == nil {
			continue
		}
		sup, err := a.supervisorFactory.Create(string(id), toSupervisorJob(e.Job), e.Ports)
		if err != nil {
			a.logger.Error().Err(err).Str("job_id", string(id)).Msg("failed to create supervisor")
			continue
		}
		a.supervisors[id] = sup
		metrics.SupervisorsTotal.Inc()
	}

	// Phase 7: command goals.
	for id, sup := range a.supervisors {
		e, ok := a.current[id]
		if !ok {
			continue
		}
		switch e.Goal {
		case GoalStart:
			if !sup.IsStarting() {
				startTimer := metrics.NewTimer()
				err := sup.Start(ctx)
				startTimer.ObserveDuration(metrics.SupervisorStartDuration)
				if err != nil {
					a.logger.Error().Err(err).Str("job_id", string(id)).Msg("supervisor start failed")
				}
			}
		case GoalStop, GoalUndeploy:
			if !sup.IsStopping() {
				stopTimer := metrics.NewTimer()
				err := sup.Stop(ctx)
				stopTimer.ObserveDuration(metrics.SupervisorStopDuration)
				if err != nil {
					a.logger.Error().Err(err).Str("job_id", string(id)).Msg("supervisor stop failed")
				}
			}
		}
	}

	// Report observed status transitions back to the model.
	for id, sup := range a.supervisors {
		status := string(sup.Status())
		if a.reportedStatus[id] == status {
			continue
		}
		if err := a.model.ReportStatus(id, status); err != nil {
			a.logger.Warn().Err(err).Str("job_id", string(id)).Str("status", status).Msg("failed to report observed status")
			continue
		}
		a.reportedStatus[id] = status
	}

	// Phase 8: reap tombstones.
	var reaped []JobID
	for id, e := range a.current {
		if e.Goal != GoalUndeploy {
			continue
		}
		if _, exists := a.supervisors[id]; exists {
			continue
		}
		if err := a.model.RemoveUndeployTombstone(id); err != nil {
			a.logger.Error().Err(err).Str("job_id", string(id)).Msg("failed to remove undeploy tombstone")
			continue
		}
		if err := a.model.RemoveTaskStatus(id); err != nil {
			a.logger.Error().Err(err).Str("job_id", string(id)).Msg("failed to remove task status")
			continue
		}
		reaped = append(reaped, id)
	}

	// Phase 9: persist reap.
	if len(reaped) > 0 {
		afterReap := a.current.Clone()
		for _, id := range reaped {
			delete(afterReap, id)
		}
		if err := a.executions.Set(afterReap); err != nil {
			a.logger.Error().Err(err).Msg("failed to persist reap; tombstones will be retried next tick")
			metrics.PersistenceFailuresTotal.Inc()
		} else {
			a.current = afterReap
		}
	}

	if ctx.Err() != nil {
		return reactor.Interrupted
	}
	return reactor.Completed
}

// allocatePorts mutates next in place: every Execution with nil Ports is
// either given an allocation (in deterministic JobID order) or left
// untouched with a logged warning, to be retried next tick.
func (a *Agent) allocatePorts(next ExecutionSet) {
	used := map[int]bool{}
	var pendingIDs []JobID
	for id, e := range next {
		if e.Ports == nil {
			pendingIDs = append(pendingIDs, id)
			continue
		}
		for _, p := range e.Ports {
			used[p] = true
		}
	}
	pendingIDs = SortJobIDs(pendingIDs)

	for _, id := range pendingIDs {
		e := next[id]
		specs := make(map[string]portalloc.Spec, len(e.Job.Ports))
		for name, spec := range e.Job.Ports {
			specs[name] = portalloc.Spec{Internal: spec.Internal, Protocol: spec.Protocol, Requested: spec.Requested}
		}
		ports, err := a.portAllocator.Allocate(specs, used)
		if err != nil {
			a.logger.Warn().Err(err).Str("job_id", string(id)).Msg("port allocation failed, will retry next tick")
			metrics.PortAllocationFailuresTotal.Inc()
			continue
		}
		next[id] = e.WithPorts(ports)
		for _, p := range ports {
			used[p] = true
		}
	}
}

func snapshotSupervisors(m map[JobID]supervisor.Supervisor) map[JobID]supervisor.Supervisor {
	out := make(map[JobID]supervisor.Supervisor, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
