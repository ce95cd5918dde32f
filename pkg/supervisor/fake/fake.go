// Package fake provides a deterministic, synchronous Supervisor used by the
// agent's property and scenario tests. It never talks to a real runtime:
// transitions happen immediately on Start/Stop/Close unless the test asks it
// to hang in an intermediate state first.
package fake

import (
	"context"
	"sync"

	"github.com/cuemby/warren-agent/pkg/supervisor"
)

// Supervisor is a test double recording every call it receives.
type Supervisor struct {
	mu sync.Mutex

	starting bool
	stopping bool
	status   supervisor.Status
	closed   bool

	StartCalls int
	StopCalls  int
	CloseCalls int

	// StopStatus is the status Stop() moves the supervisor to once called.
	// Defaults to StatusStopped when left unset, which settles the stop
	// synchronously. Tests that want to exercise a stop-then-observe-later
	// sequence can set it to StatusStopping and call SetStatus later.
	StopStatus supervisor.Status
}

// New returns a Supervisor that starts out pending (not starting, not
// stopping, status StatusPullingImage until Start moves it to
// StatusRunning).
func New() *Supervisor {
	return &Supervisor{status: supervisor.StatusPullingImage}
}

func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls++
	s.starting = true
	s.stopping = false
	s.status = supervisor.StatusRunning
	return nil
}

func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	s.stopping = true
	s.starting = false
	if s.StopStatus != "" {
		s.status = s.StopStatus
	} else {
		s.status = supervisor.StatusStopped
	}
	return nil
}

func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	s.closed = true
	return nil
}

func (s *Supervisor) IsStarting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starting
}

func (s *Supervisor) IsStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *Supervisor) IsDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == supervisor.StatusStopped || s.status == supervisor.StatusFailed
}

func (s *Supervisor) Status() supervisor.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Closed reports whether Close has been called, for test assertions.
func (s *Supervisor) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SetStatus lets a test move the supervisor directly into an observed state,
// simulating the runtime settling independently of agent commands.
func (s *Supervisor) SetStatus(status supervisor.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Factory hands out Supervisor fakes and records every Create call so tests
// can assert on how many supervisors the agent spawned and for which job.
type Factory struct {
	mu       sync.Mutex
	Created  []string
	bySupID  map[string]*Supervisor
	OnCreate func(jobID string) error
}

// NewFactory returns an empty Factory.
func NewFactory() *Factory {
	return &Factory{bySupID: make(map[string]*Supervisor)}
}

func (f *Factory) Create(jobID string, job supervisor.Job, ports map[string]int) (supervisor.Supervisor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OnCreate != nil {
		if err := f.OnCreate(jobID); err != nil {
			return nil, err
		}
	}
	f.Created = append(f.Created, jobID)
	sup := New()
	f.bySupID[jobID] = sup
	return sup, nil
}

// Get returns the most recently created fake Supervisor for a job id, or nil.
func (f *Factory) Get(jobID string) *Supervisor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bySupID[jobID]
}
