package localmodel

import (
	"maps"
	"sync"

	"github.com/cuemby/warren-agent/pkg/agent"
	"github.com/google/uuid"
)

// Model is an in-memory agent.Model. The zero value is not usable; use New.
type Model struct {
	mu        sync.RWMutex
	tasks     map[agent.JobID]agent.Task
	status    map[agent.JobID]string
	listeners []agent.Listener
}

// New returns an empty Model.
func New() *Model {
	return &Model{
		tasks:  make(map[agent.JobID]agent.Task),
		status: make(map[agent.JobID]string),
	}
}

// NewJobID returns a fresh, randomly generated JobID.
func NewJobID() agent.JobID {
	return agent.JobID(uuid.NewString())
}

// GetTasks returns a copy of the current desired Task set.
func (m *Model) GetTasks() (map[agent.JobID]agent.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.tasks), nil
}

// AddListener registers l to be notified on every subsequent mutation.
func (m *Model) AddListener(l agent.Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// RemoveUndeployTombstone is a no-op: this Model has no separate tombstone
// record, since Undeploy already expresses the desired-removal state
// directly in the Task's Goal.
func (m *Model) RemoveUndeployTombstone(jobID agent.JobID) error {
	return nil
}

// RemoveTaskStatus drops jobID's desired Task entirely, completing the
// undeploy -> reap -> forget lifecycle.
func (m *Model) RemoveTaskStatus(jobID agent.JobID) error {
	m.mu.Lock()
	delete(m.tasks, jobID)
	delete(m.status, jobID)
	m.mu.Unlock()
	return nil
}

// ReportStatus records jobID's last-observed supervisor status, retrievable
// via Status for tests and standalone-mode observability.
func (m *Model) ReportStatus(jobID agent.JobID, status string) error {
	m.mu.Lock()
	m.status[jobID] = status
	m.mu.Unlock()
	return nil
}

// Status returns the last status reported for jobID, if any.
func (m *Model) Status(jobID agent.JobID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.status[jobID]
	return s, ok
}

// SetTask upserts the desired Task for jobID and notifies listeners.
func (m *Model) SetTask(jobID agent.JobID, task agent.Task) {
	m.mu.Lock()
	m.tasks[jobID] = task
	listeners := m.listeners
	m.mu.Unlock()
	notify(listeners)
}

// Undeploy sets jobID's Goal to GoalUndeploy, leaving Job unchanged, and
// notifies listeners. It is a no-op if jobID is not present.
func (m *Model) Undeploy(jobID agent.JobID) {
	m.mu.Lock()
	task, ok := m.tasks[jobID]
	if ok {
		task.Goal = agent.GoalUndeploy
		m.tasks[jobID] = task
	}
	listeners := m.listeners
	m.mu.Unlock()
	if ok {
		notify(listeners)
	}
}

func notify(listeners []agent.Listener) {
	for _, l := range listeners {
		l.TasksChanged()
	}
}
