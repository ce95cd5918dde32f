package containerd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/warren-agent/pkg/log"
	"github.com/cuemby/warren-agent/pkg/network"
	"github.com/cuemby/warren-agent/pkg/runtime"
	"github.com/cuemby/warren-agent/pkg/supervisor"
	"github.com/rs/zerolog"
)

// pollInterval is how often a running Supervisor checks its container's
// observed status between commands.
const pollInterval = 5 * time.Second

// stopTimeout bounds how long Stop waits for a graceful SIGTERM exit before
// the runtime escalates to SIGKILL.
const stopTimeout = 10 * time.Second

// Factory builds Supervisors backed by a shared containerd client and host
// port publisher.
type Factory struct {
	runtime   *runtime.ContainerdRuntime
	publisher *network.HostPortPublisher
	logger    zerolog.Logger
}

// NewFactory dials containerd at socketPath and returns a Factory ready to
// create Supervisors.
func NewFactory(socketPath string) (*Factory, error) {
	rt, err := runtime.NewContainerdRuntime(socketPath)
	if err != nil {
		return nil, fmt.Errorf("containerd factory: %w", err)
	}
	return &Factory{
		runtime:   rt,
		publisher: network.NewHostPortPublisher(),
		logger:    log.WithComponent("supervisor.containerd"),
	}, nil
}

// Close releases the underlying containerd client connection.
func (f *Factory) Close() error {
	return f.runtime.Close()
}

// Create builds a Supervisor for jobID. It does not pull or start anything
// until Start is called.
func (f *Factory) Create(jobID string, job supervisor.Job, ports map[string]int) (supervisor.Supervisor, error) {
	return &Supervisor{
		jobID:     jobID,
		job:       job,
		ports:     ports,
		runtime:   f.runtime,
		publisher: f.publisher,
		logger:    f.logger.With().Str("job_id", jobID).Logger(),
		status:    supervisor.StatusPullingImage,
		stopCh:    make(chan struct{}),
	}, nil
}

// Supervisor owns one container's lifecycle against a real containerd
// daemon: pull, create, start, publish host ports, then poll status on a
// ticker until Stop is requested or the container exits on its own.
type Supervisor struct {
	jobID     string
	job       supervisor.Job
	ports     map[string]int
	runtime   *runtime.ContainerdRuntime
	publisher *network.HostPortPublisher
	logger    zerolog.Logger

	mu          sync.Mutex
	starting    bool
	stopping    bool
	done        bool
	status      supervisor.Status
	containerID string
	runDone     chan struct{}
	stopCh      chan struct{}
}

// Start launches the background goroutine that pulls the image, creates and
// starts the container, publishes ports, and then monitors it. Idempotent.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.starting && !s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.starting = true
	s.stopping = false
	s.done = false
	s.status = supervisor.StatusPullingImage
	s.stopCh = make(chan struct{})
	s.runDone = make(chan struct{})
	stopCh := s.stopCh
	runDone := s.runDone
	s.mu.Unlock()

	go s.run(stopCh, runDone)
	return nil
}

func (s *Supervisor) run(stopCh, runDone chan struct{}) {
	defer close(runDone)

	ctx := context.Background()
	containerSpec := runtime.ContainerSpec{
		ID:      s.jobID,
		Image:   s.job.Image,
		Command: s.job.Command,
		Env:     s.job.Env,
	}

	s.logger.Info().Str("image", s.job.Image).Msg("pulling image")
	if err := s.runtime.PullImage(ctx, s.job.Image); err != nil {
		s.fail(err, "failed to pull image")
		return
	}

	containerID, err := s.runtime.CreateContainer(ctx, containerSpec)
	if err != nil {
		s.fail(err, "failed to create container")
		return
	}

	s.mu.Lock()
	s.containerID = containerID
	s.status = supervisor.StatusStarting
	s.mu.Unlock()

	if err := s.runtime.StartContainer(ctx, containerID); err != nil {
		s.fail(err, "failed to start container")
		return
	}

	s.mu.Lock()
	s.status = supervisor.StatusRunning
	s.mu.Unlock()
	s.logger.Info().Str("container_id", containerID).Msg("container running")

	s.publishPorts(ctx, containerID)

	s.monitor(ctx, containerID, stopCh)
}

func (s *Supervisor) publishPorts(ctx context.Context, containerID string) {
	if len(s.job.Ports) == 0 {
		return
	}

	containerIP, err := s.runtime.GetContainerIP(ctx, containerID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to get container IP, ports not published")
		return
	}

	var bindings []network.PortBinding
	for name, spec := range s.job.Ports {
		hostPort, ok := s.ports[name]
		if !ok {
			continue
		}
		bindings = append(bindings, network.PortBinding{
			Name:          name,
			HostPort:      hostPort,
			ContainerPort: spec.Internal,
			Protocol:      spec.Protocol,
		})
	}

	if err := s.publisher.Publish(s.jobID, containerIP, bindings); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish host ports")
	}
}

// monitor polls container status every pollInterval until the container
// exits on its own or stopCh is closed by Stop.
func (s *Supervisor) monitor(ctx context.Context, containerID string, stopCh chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			status, err := s.runtime.GetContainerStatus(ctx, containerID)
			if err != nil {
				s.logger.Warn().Err(err).Msg("failed to poll container status")
				continue
			}
			if status == runtime.StateComplete || status == runtime.StateFailed {
				s.mu.Lock()
				if status == runtime.StateFailed {
					s.status = supervisor.StatusFailed
				} else {
					s.status = supervisor.StatusStopped
				}
				s.done = true
				s.mu.Unlock()
				s.logger.Info().Str("state", string(status)).Msg("container exited")
				return
			}
		}
	}
}

func (s *Supervisor) fail(err error, msg string) {
	s.logger.Error().Err(err).Msg(msg)
	s.mu.Lock()
	s.status = supervisor.StatusFailed
	s.done = true
	s.mu.Unlock()
}

// Stop signals the monitor loop to exit and dispatches the container
// teardown (unpublish, then SIGTERM, escalating to SIGKILL after
// stopTimeout) on a background goroutine. It returns as soon as the signal
// is sent, without waiting for the container to actually stop — the agent
// observes completion via IsDone()/Status() on a later tick, matching how
// Start already dispatches onto its own goroutine instead of blocking the
// caller. Idempotent.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	s.status = supervisor.StatusStopping
	stopCh := s.stopCh
	runDone := s.runDone
	s.mu.Unlock()

	if stopCh != nil {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}

	go s.finishStop(runDone)
	return nil
}

// finishStop waits for the monitor goroutine to exit, then unpublishes the
// container's ports and stops it. It runs independently of the
// context passed to Stop, the same way run() uses its own background
// context, so a caller returning from Stop can never cut the teardown
// short.
func (s *Supervisor) finishStop(runDone chan struct{}) {
	if runDone != nil {
		<-runDone
	}

	s.publisher.Unpublish(s.jobID)

	s.mu.Lock()
	containerID := s.containerID
	s.mu.Unlock()

	if containerID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout+5*time.Second)
		defer cancel()
		if err := s.runtime.StopContainer(ctx, containerID, stopTimeout); err != nil {
			s.logger.Error().Err(err).Msg("failed to stop container")
			s.mu.Lock()
			s.status = supervisor.StatusFailed
			s.done = true
			s.mu.Unlock()
			return
		}
	}

	s.mu.Lock()
	s.status = supervisor.StatusStopped
	s.done = true
	s.mu.Unlock()
}

// Close deletes the container and its snapshot. Called only after the agent
// has observed IsDone() && Status() == StatusStopped.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	containerID := s.containerID
	s.mu.Unlock()

	if containerID == "" {
		return nil
	}
	return s.runtime.DeleteContainer(ctx, containerID)
}

func (s *Supervisor) IsStarting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starting && !s.stopping
}

func (s *Supervisor) IsStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *Supervisor) IsDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Supervisor) Status() supervisor.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
