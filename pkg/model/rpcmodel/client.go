package rpcmodel

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cuemby/warren-agent/pkg/agent"
	"github.com/cuemby/warren-agent/pkg/log"
	"github.com/cuemby/warren-agent/pkg/security"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// requestTimeout bounds every unary call the Client makes.
const requestTimeout = 10 * time.Second

// Client implements agent.Model over a gRPC connection to a control plane.
type Client struct {
	conn   *grpc.ClientConn
	nodeID string
	logger zerolog.Logger

	mu        sync.Mutex
	listeners []agent.Listener
	watching  bool
}

// Dial connects to a control plane at addr using the mTLS material found in
// certDir, generalizing the node worker's connectWithMTLS.
func Dial(addr, nodeID, certDir string) (*Client, error) {
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("rpcmodel: load client certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("rpcmodel: load CA certificate: %w", err)
	}

	certPool := x509.NewCertPool()
	certPool.AddCert(caCert)

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      certPool,
		MinVersion:   tls.VersionTLS13,
	}
	creds := credentials.NewTLS(tlsConfig)

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("rpcmodel: dial %s: %w", addr, err)
	}

	return newClient(conn, nodeID), nil
}

func newClient(conn *grpc.ClientConn, nodeID string) *Client {
	return &Client{
		conn:   conn,
		nodeID: nodeID,
		logger: log.WithComponent("rpcmodel").With().Str("node_id", nodeID).Logger(),
	}
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// GetTasks implements agent.Model.
func (c *Client) GetTasks() (map[agent.JobID]agent.Task, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req := &getTasksRequest{NodeID: c.nodeID}
	resp := new(getTasksResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/GetTasks", req, resp); err != nil {
		return nil, fmt.Errorf("rpcmodel: GetTasks: %w", err)
	}

	out := make(map[agent.JobID]agent.Task, len(resp.Tasks))
	for _, wt := range resp.Tasks {
		out[agent.JobID(wt.JobID)] = taskFromWire(wt)
	}
	return out, nil
}

// AddListener implements agent.Model. The first listener registered starts
// the background StreamTaskChanges watch loop.
func (c *Client) AddListener(l agent.Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	start := !c.watching
	c.watching = true
	c.mu.Unlock()

	if start {
		go c.watchLoop()
	}
}

// RemoveUndeployTombstone implements agent.Model.
func (c *Client) RemoveUndeployTombstone(jobID agent.JobID) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req := &removeUndeployTombstoneRequest{NodeID: c.nodeID, JobID: string(jobID)}
	resp := new(emptyResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/RemoveUndeployTombstone", req, resp); err != nil {
		return fmt.Errorf("rpcmodel: RemoveUndeployTombstone: %w", err)
	}
	return nil
}

// RemoveTaskStatus implements agent.Model.
func (c *Client) RemoveTaskStatus(jobID agent.JobID) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req := &removeTaskStatusRequest{NodeID: c.nodeID, JobID: string(jobID)}
	resp := new(emptyResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/RemoveTaskStatus", req, resp); err != nil {
		return fmt.Errorf("rpcmodel: RemoveTaskStatus: %w", err)
	}
	return nil
}

// ReportStatus implements agent.Model. It pushes jobID's observed
// supervisor status to the control plane.
func (c *Client) ReportStatus(jobID agent.JobID, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req := &reportStatusRequest{NodeID: c.nodeID, JobID: string(jobID), Status: status}
	resp := new(emptyResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/ReportStatus", req, resp); err != nil {
		return fmt.Errorf("rpcmodel: ReportStatus: %w", err)
	}
	return nil
}

// watchLoop holds a StreamTaskChanges call open, reconnecting with
// exponential backoff (capped at 30s) on any stream error.
func (c *Client) watchLoop() {
	backoff := time.Second
	for {
		if err := c.watchOnce(); err != nil {
			c.logger.Warn().Err(err).Msg("task-change stream ended, reconnecting")
		}

		time.Sleep(backoff)
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (c *Client) watchOnce() error {
	ctx := context.Background()
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{StreamName: "StreamTaskChanges", ServerStreams: true},
		"/"+serviceName+"/StreamTaskChanges", grpc.CallContentSubtype(codecName))
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}

	if err := stream.SendMsg(&getTasksRequest{NodeID: c.nodeID}); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close send: %w", err)
	}

	for {
		evt := new(taskChangeEvent)
		if err := stream.RecvMsg(evt); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		c.notify()
	}
}

func (c *Client) notify() {
	c.mu.Lock()
	listeners := append([]agent.Listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l.TasksChanged()
	}
}

func taskFromWire(wt wireTask) agent.Task {
	ports := make(map[string]agent.PortSpec, len(wt.Ports))
	for name, p := range wt.Ports {
		ports[name] = agent.PortSpec{Internal: p.Internal, Protocol: p.Protocol, Requested: p.Requested}
	}
	return agent.Task{
		Job: agent.Job{
			Image:   wt.Image,
			Command: wt.Command,
			Env:     wt.Env,
			Ports:   ports,
		},
		Goal: agent.Goal(wt.Goal),
	}
}
