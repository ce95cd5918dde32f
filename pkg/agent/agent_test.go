package agent

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/warren-agent/pkg/cell/filecell"
	"github.com/cuemby/warren-agent/pkg/model/localmodel"
	"github.com/cuemby/warren-agent/pkg/portalloc"
	"github.com/cuemby/warren-agent/pkg/supervisor"
	"github.com/cuemby/warren-agent/pkg/supervisor/fake"
	"github.com/stretchr/testify/require"
)

func newTestAgent(t *testing.T) (*Agent, *localmodel.Model, *fake.Factory) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "executions.json")
	c, err := filecell.Open[ExecutionSet](path, ExecutionSet{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	model := localmodel.New()
	factory := fake.NewFactory()
	allocator := portalloc.New(portalloc.Range{Lo: 31000, Hi: 31999})

	a := New(model, factory, c, allocator, Config{})
	a.current = ExecutionSet{}
	return a, model, factory
}

func simplePortJob() Job {
	return Job{
		Image: "nginx:latest",
		Ports: map[string]PortSpec{"http": {Internal: 80, Protocol: "tcp"}},
	}
}

func TestAgentIntroducesAndStartsNewJob(t *testing.T) {
	a, model, factory := newTestAgent(t)
	id := localmodel.NewJobID()
	model.SetTask(id, Task{Job: simplePortJob(), Goal: GoalStart})

	ctx := context.Background()
	a.tick(ctx) // phase 2+3+4: introduce, allocate, persist
	a.tick(ctx) // phase 6+7: spawn, command start

	snap := a.Snapshot()
	require.Contains(t, snap, id)
	require.NotNil(t, snap[id].Ports)
	port, ok := snap[id].Ports["http"]
	require.True(t, ok)
	require.GreaterOrEqual(t, port, 31000)
	require.LessOrEqual(t, port, 31999)

	sup := factory.Get(string(id))
	require.NotNil(t, sup)
	require.Equal(t, 1, sup.StartCalls)
}

func TestAgentReportsObservedStatusToModel(t *testing.T) {
	a, model, factory := newTestAgent(t)
	id := localmodel.NewJobID()
	model.SetTask(id, Task{Job: simplePortJob(), Goal: GoalStart})

	ctx := context.Background()
	a.tick(ctx) // phase 2+3+4: introduce, allocate, persist
	a.tick(ctx) // phase 6+7: spawn, command start, report status

	status, ok := model.Status(id)
	require.True(t, ok)
	require.Equal(t, "running", status)

	sup := factory.Get(string(id))
	sup.SetStatus(supervisor.StatusStopping)
	a.tick(ctx) // observes the externally-settled status and reports it

	status, ok = model.Status(id)
	require.True(t, ok)
	require.Equal(t, "stopping", status)
}

func TestAgentDoesNotReportUnchangedStatusTwice(t *testing.T) {
	a, model, _ := newTestAgent(t)
	id := localmodel.NewJobID()
	model.SetTask(id, Task{Job: simplePortJob(), Goal: GoalStart})

	ctx := context.Background()
	a.tick(ctx)
	a.tick(ctx)
	require.Equal(t, 1, len(a.reportedStatus))

	a.tick(ctx)
	status, ok := model.Status(id)
	require.True(t, ok)
	require.Equal(t, "running", status)
}

func TestAgentHonorsRequestedPort(t *testing.T) {
	a, model, _ := newTestAgent(t)
	requested := 31500
	id := localmodel.NewJobID()
	model.SetTask(id, Task{
		Job: Job{
			Image: "redis:7",
			Ports: map[string]PortSpec{"redis": {Internal: 6379, Protocol: "tcp", Requested: &requested}},
		},
		Goal: GoalStart,
	})

	ctx := context.Background()
	a.tick(ctx)

	snap := a.Snapshot()
	require.Equal(t, requested, snap[id].Ports["redis"])
}

func TestAgentPortStableAcrossGoalChange(t *testing.T) {
	a, model, factory := newTestAgent(t)
	id := localmodel.NewJobID()
	model.SetTask(id, Task{Job: simplePortJob(), Goal: GoalStart})

	ctx := context.Background()
	a.tick(ctx)
	a.tick(ctx)

	originalPort := a.Snapshot()[id].Ports["http"]
	require.NotZero(t, originalPort)

	model.SetTask(id, Task{Job: simplePortJob(), Goal: GoalStop})
	a.tick(ctx)

	require.Equal(t, originalPort, a.Snapshot()[id].Ports["http"], "a goal change must never trigger reallocation")

	sup := factory.Get(string(id))
	require.Equal(t, 1, sup.StopCalls)
}

// TestAgentJobChangeIgnoredWithoutGoalChange pins the decision that changing
// a Job's definition on an already-running JobID is not re-reflected into
// the Execution unless the Goal also changes: only Goal transitions drive
// WithGoal, so an image change alone is invisible to the agent until the
// job is undeployed and redeployed under a new JobID.
func TestAgentJobChangeIgnoredWithoutGoalChange(t *testing.T) {
	a, model, _ := newTestAgent(t)
	id := localmodel.NewJobID()
	model.SetTask(id, Task{Job: simplePortJob(), Goal: GoalStart})

	ctx := context.Background()
	a.tick(ctx)
	a.tick(ctx)

	changed := simplePortJob()
	changed.Image = "nginx:1.27-alpine"
	model.SetTask(id, Task{Job: changed, Goal: GoalStart})
	a.tick(ctx)

	require.Equal(t, "nginx:latest", a.Snapshot()[id].Job.Image, "Job fields must not be refreshed by an unchanged Goal")
}

func TestAgentReleasesSupervisorOnceStopped(t *testing.T) {
	a, model, factory := newTestAgent(t)
	id := localmodel.NewJobID()
	model.SetTask(id, Task{Job: simplePortJob(), Goal: GoalStart})

	ctx := context.Background()
	a.tick(ctx)
	a.tick(ctx)
	require.Equal(t, 1, a.SupervisorCount())

	model.SetTask(id, Task{Job: simplePortJob(), Goal: GoalStop})
	a.tick(ctx) // commands Stop; fake.Supervisor settles to StatusStopped synchronously
	sup := factory.Get(string(id))
	require.Equal(t, 1, sup.StopCalls)

	a.tick(ctx) // phase 5: release now-stopped supervisor
	require.Equal(t, 0, a.SupervisorCount())
	require.True(t, sup.Closed())
}

func TestAgentReapsTombstoneAfterSupervisorGone(t *testing.T) {
	a, model, _ := newTestAgent(t)
	id := localmodel.NewJobID()
	model.SetTask(id, Task{Job: simplePortJob(), Goal: GoalStart})

	ctx := context.Background()
	a.tick(ctx)
	a.tick(ctx)

	model.Undeploy(id)
	a.tick(ctx) // commands Stop; fake.Supervisor settles to StatusStopped synchronously
	a.tick(ctx) // phase 5 releases the supervisor; phase 8 reaps the tombstone and persists its removal
	a.tick(ctx) // nothing left to do for id

	snap := a.Snapshot()
	require.NotContains(t, snap, id, "a fully stopped undeploy must be reaped from the persisted execution set")

	tasks, err := model.GetTasks()
	require.NoError(t, err)
	require.NotContains(t, tasks, id, "RemoveTaskStatus must clear the Model's desired Task once reaped")
}

func TestAgentDoesNotIntroduceExecutionForUnknownUndeploy(t *testing.T) {
	a, model, factory := newTestAgent(t)
	id := localmodel.NewJobID()
	// Undeploy of a job the agent never saw in a start/stop goal: no
	// Execution should ever be created for it.
	model.SetTask(id, Task{Job: simplePortJob(), Goal: GoalUndeploy})

	ctx := context.Background()
	a.tick(ctx)
	a.tick(ctx)

	require.NotContains(t, a.Snapshot(), id)
	require.Nil(t, factory.Get(string(id)))
}

func TestAgentNoDuplicateSupervisorOnRepeatedTicks(t *testing.T) {
	a, model, factory := newTestAgent(t)
	id := localmodel.NewJobID()
	model.SetTask(id, Task{Job: simplePortJob(), Goal: GoalStart})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		a.tick(ctx)
	}

	require.Equal(t, 1, a.SupervisorCount())
	sup := factory.Get(string(id))
	require.Equal(t, 1, sup.StartCalls, "Start must not be re-issued once a supervisor reports IsStarting")
}

func TestAgentTwoJobsGetDistinctPorts(t *testing.T) {
	a, model, _ := newTestAgent(t)
	idA := localmodel.NewJobID()
	idB := localmodel.NewJobID()
	model.SetTask(idA, Task{Job: simplePortJob(), Goal: GoalStart})
	model.SetTask(idB, Task{Job: simplePortJob(), Goal: GoalStart})

	ctx := context.Background()
	a.tick(ctx)

	snap := a.Snapshot()
	require.NotEqual(t, snap[idA].Ports["http"], snap[idB].Ports["http"])
}

func TestAgentRebuildsSupervisorsFromPersistedExecutionsOnStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.json")
	c, err := filecell.Open[ExecutionSet](path, ExecutionSet{})
	require.NoError(t, err)

	id := JobID("restored-job")
	seeded := ExecutionSet{
		id: {
			Job:  simplePortJob(),
			Goal: GoalStart,
			Ports: map[string]int{
				"http": 31234,
			},
		},
	}
	require.NoError(t, c.Set(seeded))
	require.NoError(t, c.Close())

	c2, err := filecell.Open[ExecutionSet](path, ExecutionSet{})
	require.NoError(t, err)
	defer c2.Close()

	model := localmodel.New()
	factory := fake.NewFactory()
	allocator := portalloc.New(portalloc.Range{Lo: 31000, Hi: 31999})
	a := New(model, factory, c2, allocator, Config{})

	require.NoError(t, a.Startup())
	defer a.Shutdown(context.Background())

	require.Eventually(t, func() bool {
		return factory.Get(string(id)) != nil
	}, time.Second, 5*time.Millisecond)

	snap := a.Snapshot()
	require.Equal(t, 31234, snap[id].Ports["http"], "ports committed before a crash must never be reallocated on restart")
}

func TestAgentShutdownClosesAllSupervisors(t *testing.T) {
	a, model, factory := newTestAgent(t)
	id := localmodel.NewJobID()
	model.SetTask(id, Task{Job: simplePortJob(), Goal: GoalStart})

	ctx := context.Background()
	a.tick(ctx)
	a.tick(ctx)

	require.NoError(t, a.Shutdown(ctx))
	sup := factory.Get(string(id))
	require.True(t, sup.Closed())
}
