package rpcmodel

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/warren-agent/pkg/agent"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// fakeService is an in-memory control-plane Service for tests.
type fakeService struct {
	mu    sync.Mutex
	tasks map[string][]wireTask // nodeID -> tasks
	subs  map[string][]chan taskChangeEvent

	removedTombstones []string
	removedStatuses   []string
	reported          []reportedStatus
}

func newFakeService() *fakeService {
	return &fakeService{
		tasks: make(map[string][]wireTask),
		subs:  make(map[string][]chan taskChangeEvent),
	}
}

func (f *fakeService) GetTasks(ctx context.Context, nodeID string) ([]wireTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wireTask(nil), f.tasks[nodeID]...), nil
}

func (f *fakeService) setTasks(nodeID string, tasks []wireTask) {
	f.mu.Lock()
	f.tasks[nodeID] = tasks
	subs := append([]chan taskChangeEvent(nil), f.subs[nodeID]...)
	f.mu.Unlock()

	for _, ch := range subs {
		ch <- taskChangeEvent{Reason: "updated"}
	}
}

func (f *fakeService) RemoveUndeployTombstone(ctx context.Context, nodeID, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedTombstones = append(f.removedTombstones, jobID)
	return nil
}

func (f *fakeService) RemoveTaskStatus(ctx context.Context, nodeID, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedStatuses = append(f.removedStatuses, jobID)
	return nil
}

type reportedStatus struct {
	nodeID, jobID, status string
}

func (f *fakeService) ReportStatus(ctx context.Context, nodeID, jobID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reported = append(f.reported, reportedStatus{nodeID: nodeID, jobID: jobID, status: status})
	return nil
}

func (f *fakeService) Subscribe(ctx context.Context, nodeID string) <-chan taskChangeEvent {
	ch := make(chan taskChangeEvent, 8)
	f.mu.Lock()
	f.subs[nodeID] = append(f.subs[nodeID], ch)
	f.mu.Unlock()
	return ch
}

func startTestServer(t *testing.T, svc Service) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := grpc.NewServer()
	RegisterService(s, svc)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	return lis.Addr().String()
}

func dialTestClient(t *testing.T, addr, nodeID string) *Client {
	t.Helper()
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return newClient(conn, nodeID)
}

func TestClientGetTasksEmpty(t *testing.T) {
	svc := newFakeService()
	addr := startTestServer(t, svc)
	client := dialTestClient(t, addr, "node-1")

	tasks, err := client.GetTasks()
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestClientGetTasksReturnsDecodedTask(t *testing.T) {
	svc := newFakeService()
	addr := startTestServer(t, svc)
	client := dialTestClient(t, addr, "node-1")

	requested := 31000
	svc.setTasks("node-1", []wireTask{
		{
			JobID: "job-a",
			Image: "nginx:latest",
			Goal:  "start",
			Ports: map[string]wirePortSpec{
				"http": {Internal: 80, Protocol: "tcp", Requested: &requested},
			},
		},
	})

	tasks, err := client.GetTasks()
	require.NoError(t, err)
	require.Contains(t, tasks, agent.JobID("job-a"))
	task := tasks[agent.JobID("job-a")]
	require.Equal(t, agent.GoalStart, task.Goal)
	require.Equal(t, "nginx:latest", task.Job.Image)
	require.Equal(t, 80, task.Job.Ports["http"].Internal)
	require.Equal(t, 31000, *task.Job.Ports["http"].Requested)
}

func TestClientRemoveUndeployTombstone(t *testing.T) {
	svc := newFakeService()
	addr := startTestServer(t, svc)
	client := dialTestClient(t, addr, "node-1")

	require.NoError(t, client.RemoveUndeployTombstone(agent.JobID("job-a")))
	require.Contains(t, svc.removedTombstones, "job-a")
}

func TestClientRemoveTaskStatus(t *testing.T) {
	svc := newFakeService()
	addr := startTestServer(t, svc)
	client := dialTestClient(t, addr, "node-1")

	require.NoError(t, client.RemoveTaskStatus(agent.JobID("job-b")))
	require.Contains(t, svc.removedStatuses, "job-b")
}

func TestClientReportStatus(t *testing.T) {
	svc := newFakeService()
	addr := startTestServer(t, svc)
	client := dialTestClient(t, addr, "node-1")

	require.NoError(t, client.ReportStatus(agent.JobID("job-c"), "running"))
	require.Contains(t, svc.reported, reportedStatus{nodeID: "node-1", jobID: "job-c", status: "running"})
}

func TestClientListenerNotifiedOnTaskChange(t *testing.T) {
	svc := newFakeService()
	addr := startTestServer(t, svc)
	client := dialTestClient(t, addr, "node-1")

	var calls int
	var mu sync.Mutex
	client.AddListener(agent.ListenerFunc(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}))

	// Give the watch loop time to establish its stream before we publish.
	require.Eventually(t, func() bool {
		svc.mu.Lock()
		n := len(svc.subs["node-1"])
		svc.mu.Unlock()
		return n > 0
	}, 2*time.Second, 10*time.Millisecond)

	svc.setTasks("node-1", []wireTask{{JobID: "job-a", Image: "nginx", Goal: "start"}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	}, 2*time.Second, 10*time.Millisecond)
}
