package rpcmodel

// wirePortSpec is the JSON-wire form of agent.PortSpec.
type wirePortSpec struct {
	Internal  int  `json:"internal"`
	Protocol  string `json:"protocol"`
	Requested *int `json:"requested,omitempty"`
}

// wireTask is the JSON-wire form of an agent.JobID-keyed agent.Task.
type wireTask struct {
	JobID   string                  `json:"job_id"`
	Image   string                  `json:"image"`
	Command []string                `json:"command,omitempty"`
	Env     []string                `json:"env,omitempty"`
	Ports   map[string]wirePortSpec `json:"ports,omitempty"`
	Goal    string                  `json:"goal"`
}

type getTasksRequest struct {
	NodeID string `json:"node_id"`
}

type getTasksResponse struct {
	Tasks []wireTask `json:"tasks"`
}

// taskChangeEvent is pushed on the StreamTaskChanges feed whenever the
// desired task set changes. It carries no task data, only an optional
// Reason that the client does not read: receivers react by calling GetTasks
// again, matching the Model interface's notify-then-pull contract.
type taskChangeEvent struct {
	Reason string `json:"reason,omitempty"`
}

type removeUndeployTombstoneRequest struct {
	NodeID string `json:"node_id"`
	JobID  string `json:"job_id"`
}

type removeTaskStatusRequest struct {
	NodeID string `json:"node_id"`
	JobID  string `json:"job_id"`
}

type reportStatusRequest struct {
	NodeID string `json:"node_id"`
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type emptyResponse struct{}
