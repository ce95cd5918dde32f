package rpcmodel

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "warren.agent.v1.AgentService"

// Service is what a control plane registers to serve this package's agents.
// It is the server-side counterpart to Client.
type Service interface {
	GetTasks(ctx context.Context, nodeID string) ([]wireTask, error)
	RemoveUndeployTombstone(ctx context.Context, nodeID, jobID string) error
	RemoveTaskStatus(ctx context.Context, nodeID, jobID string) error
	ReportStatus(ctx context.Context, nodeID, jobID, status string) error

	// Subscribe registers a channel to receive a taskChangeEvent whenever
	// nodeID's desired task set changes, until ctx is done.
	Subscribe(ctx context.Context, nodeID string) <-chan taskChangeEvent
}

// RegisterService attaches svc to a *grpc.Server under this package's
// hand-written ServiceDesc.
func RegisterService(s *grpc.Server, svc Service) {
	s.RegisterService(&serviceDesc, svc)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Service)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetTasks",
			Handler:    handleGetTasks,
		},
		{
			MethodName: "RemoveUndeployTombstone",
			Handler:    handleRemoveUndeployTombstone,
		},
		{
			MethodName: "RemoveTaskStatus",
			Handler:    handleRemoveTaskStatus,
		},
		{
			MethodName: "ReportStatus",
			Handler:    handleReportStatus,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamTaskChanges",
			Handler:       handleStreamTaskChanges,
			ServerStreams: true,
		},
	},
}

func handleGetTasks(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(getTasksRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return callGetTasks(srv.(Service), ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetTasks"}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return callGetTasks(srv.(Service), ctx, req.(*getTasksRequest))
	})
}

func callGetTasks(svc Service, ctx context.Context, req *getTasksRequest) (*getTasksResponse, error) {
	tasks, err := svc.GetTasks(ctx, req.NodeID)
	if err != nil {
		return nil, err
	}
	return &getTasksResponse{Tasks: tasks}, nil
}

func handleRemoveUndeployTombstone(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(removeUndeployTombstoneRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	fn := func(ctx context.Context, req any) (any, error) {
		r := req.(*removeUndeployTombstoneRequest)
		if err := srv.(Service).RemoveUndeployTombstone(ctx, r.NodeID, r.JobID); err != nil {
			return nil, err
		}
		return &emptyResponse{}, nil
	}
	if interceptor == nil {
		return fn(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/RemoveUndeployTombstone"}
	return interceptor(ctx, req, info, fn)
}

func handleRemoveTaskStatus(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(removeTaskStatusRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	fn := func(ctx context.Context, req any) (any, error) {
		r := req.(*removeTaskStatusRequest)
		if err := srv.(Service).RemoveTaskStatus(ctx, r.NodeID, r.JobID); err != nil {
			return nil, err
		}
		return &emptyResponse{}, nil
	}
	if interceptor == nil {
		return fn(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/RemoveTaskStatus"}
	return interceptor(ctx, req, info, fn)
}

func handleReportStatus(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(reportStatusRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	fn := func(ctx context.Context, req any) (any, error) {
		r := req.(*reportStatusRequest)
		if err := srv.(Service).ReportStatus(ctx, r.NodeID, r.JobID, r.Status); err != nil {
			return nil, err
		}
		return &emptyResponse{}, nil
	}
	if interceptor == nil {
		return fn(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ReportStatus"}
	return interceptor(ctx, req, info, fn)
}

func handleStreamTaskChanges(srv any, stream grpc.ServerStream) error {
	req := new(getTasksRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}

	ch := srv.(Service).Subscribe(stream.Context(), req.NodeID)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(&evt); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}
