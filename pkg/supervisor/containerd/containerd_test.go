package containerd

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/warren-agent/pkg/network"
	"github.com/cuemby/warren-agent/pkg/supervisor"
	"github.com/stretchr/testify/require"
)

func newBareSupervisor(jobID string) *Supervisor {
	return &Supervisor{
		jobID:     jobID,
		status:    supervisor.StatusPullingImage,
		stopCh:    make(chan struct{}),
		publisher: network.NewHostPortPublisher(),
	}
}

func TestSupervisorInitialState(t *testing.T) {
	s := newBareSupervisor("job-1")
	require.False(t, s.IsStarting())
	require.False(t, s.IsStopping())
	require.False(t, s.IsDone())
	require.Equal(t, supervisor.StatusPullingImage, s.Status())
}

func TestSupervisorStopBeforeStartIsSafe(t *testing.T) {
	s := newBareSupervisor("job-1")
	require.NoError(t, s.Stop(context.Background()))
	require.True(t, s.IsStopping())
	require.Eventually(t, s.IsDone, time.Second, 5*time.Millisecond)
	require.Equal(t, supervisor.StatusStopped, s.Status())
}

func TestSupervisorStopDoesNotBlockCaller(t *testing.T) {
	s := newBareSupervisor("job-1")
	start := time.Now()
	require.NoError(t, s.Stop(context.Background()))
	require.Less(t, time.Since(start), 50*time.Millisecond, "Stop must dispatch and return without waiting for teardown")
}

func TestSupervisorStopIsIdempotent(t *testing.T) {
	s := newBareSupervisor("job-1")
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	require.Eventually(t, s.IsDone, time.Second, 5*time.Millisecond)
}

func TestSupervisorCloseWithoutContainerIsNoop(t *testing.T) {
	s := newBareSupervisor("job-1")
	require.NoError(t, s.Close(context.Background()))
}

func TestFactoryCreateDoesNotTouchRuntime(t *testing.T) {
	f := &Factory{logger: newBareSupervisor("x").logger, publisher: network.NewHostPortPublisher()}
	job := supervisor.Job{
		Image: "nginx:latest",
		Ports: map[string]supervisor.PortSpec{"http": {Internal: 80, Protocol: "tcp"}},
	}
	sup, err := f.Create("job-2", job, map[string]int{"http": 31000})
	require.NoError(t, err)
	require.NotNil(t, sup)
	require.False(t, sup.IsStarting())
	require.Equal(t, supervisor.StatusPullingImage, sup.Status())
}
