// Package rpcmodel implements agent.Model over gRPC against a control
// plane, generalizing the node worker's mTLS dial pattern and heartbeat/
// poll loop into a server-streamed change feed: GetTasks snapshots desired
// state, StreamTaskChanges notifies registered listeners whenever it moves,
// and RemoveUndeployTombstone/RemoveTaskStatus report cleanup back.
//
// No .proto file is compiled here -- there is no protoc in this build
// environment -- so the wire service is a hand-written grpc.ServiceDesc
// carrying plain JSON-tagged Go structs over a registered "json" grpc
// codec, instead of generated protobuf message types.
package rpcmodel
