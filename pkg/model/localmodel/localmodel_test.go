package localmodel

import (
	"sync/atomic"
	"testing"

	"github.com/cuemby/warren-agent/pkg/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTaskAppearsInGetTasks(t *testing.T) {
	m := New()
	id := NewJobID()
	m.SetTask(id, agent.Task{Job: agent.Job{Image: "nginx:latest"}, Goal: agent.GoalStart})

	tasks, err := m.GetTasks()
	require.NoError(t, err)
	require.Contains(t, tasks, id)
	assert.Equal(t, agent.GoalStart, tasks[id].Goal)
}

func TestGetTasksReturnsIndependentCopy(t *testing.T) {
	m := New()
	id := NewJobID()
	m.SetTask(id, agent.Task{Job: agent.Job{Image: "nginx:latest"}, Goal: agent.GoalStart})

	tasks, err := m.GetTasks()
	require.NoError(t, err)
	delete(tasks, id)

	tasks2, err := m.GetTasks()
	require.NoError(t, err)
	assert.Contains(t, tasks2, id, "mutating a returned snapshot must not affect the Model")
}

func TestAddListenerNotifiedOnSetTask(t *testing.T) {
	m := New()
	var notified int32
	m.AddListener(agent.ListenerFunc(func() { atomic.AddInt32(&notified, 1) }))

	m.SetTask(NewJobID(), agent.Task{Job: agent.Job{Image: "nginx:latest"}, Goal: agent.GoalStart})
	assert.Equal(t, int32(1), atomic.LoadInt32(&notified))
}

func TestUndeploySetsGoal(t *testing.T) {
	m := New()
	id := NewJobID()
	m.SetTask(id, agent.Task{Job: agent.Job{Image: "nginx:latest"}, Goal: agent.GoalStart})

	m.Undeploy(id)

	tasks, err := m.GetTasks()
	require.NoError(t, err)
	assert.Equal(t, agent.GoalUndeploy, tasks[id].Goal)
}

func TestUndeployUnknownJobIsNoop(t *testing.T) {
	m := New()
	var notified int32
	m.AddListener(agent.ListenerFunc(func() { atomic.AddInt32(&notified, 1) }))

	m.Undeploy(NewJobID())
	assert.Equal(t, int32(0), atomic.LoadInt32(&notified))
}

func TestRemoveTaskStatusDeletesTask(t *testing.T) {
	m := New()
	id := NewJobID()
	m.SetTask(id, agent.Task{Job: agent.Job{Image: "nginx:latest"}, Goal: agent.GoalUndeploy})

	require.NoError(t, m.RemoveTaskStatus(id))

	tasks, err := m.GetTasks()
	require.NoError(t, err)
	assert.NotContains(t, tasks, id)
}

func TestReportStatusRecordsLatestStatus(t *testing.T) {
	m := New()
	id := NewJobID()

	require.NoError(t, m.ReportStatus(id, "running"))
	status, ok := m.Status(id)
	require.True(t, ok)
	assert.Equal(t, "running", status)

	require.NoError(t, m.ReportStatus(id, "stopped"))
	status, ok = m.Status(id)
	require.True(t, ok)
	assert.Equal(t, "stopped", status)
}

func TestStatusUnknownJobNotOK(t *testing.T) {
	m := New()
	_, ok := m.Status(NewJobID())
	assert.False(t, ok)
}

func TestRemoveTaskStatusClearsReportedStatus(t *testing.T) {
	m := New()
	id := NewJobID()
	require.NoError(t, m.ReportStatus(id, "running"))

	require.NoError(t, m.RemoveTaskStatus(id))

	_, ok := m.Status(id)
	assert.False(t, ok, "RemoveTaskStatus must also clear any reported supervisor status")
}
