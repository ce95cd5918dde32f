package agent

// Model is the control-plane collaborator the Agent consumes: the source
// of desired Tasks and the sink for observed-state cleanup and reporting.
// Implementations
// live outside this package (see pkg/model/rpcmodel for the gRPC-backed
// production implementation and pkg/model/localmodel for an in-memory one);
// the Agent depends only on this interface.
type Model interface {
	// GetTasks returns a snapshot of the desired Task set, keyed by JobID.
	GetTasks() (map[JobID]Task, error)

	// AddListener registers l to be notified after any mutation to the
	// desired Task set. Notifications may arrive from arbitrary
	// goroutines and carry no ordering guarantee with respect to the
	// Agent's reconciliation cycle other than: at least one cycle will
	// run after the notification returns.
	AddListener(l Listener)

	// RemoveUndeployTombstone clears the undeploy marker for jobID.
	// Idempotent.
	RemoveUndeployTombstone(jobID JobID) error

	// RemoveTaskStatus clears any observed-state status recorded for
	// jobID. Idempotent.
	RemoveTaskStatus(jobID JobID) error

	// ReportStatus records jobID's current observed supervisor status.
	// Called whenever the Agent sees a status transition; implementations
	// may persist it, forward it to a control plane, or ignore it.
	ReportStatus(jobID JobID, status string) error
}

// Listener receives a notification whenever the Model's desired Task set
// changes. It is a one-method capability, not an interface requiring
// inheritance from any base type.
type Listener interface {
	TasksChanged()
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func()

func (f ListenerFunc) TasksChanged() { f() }
