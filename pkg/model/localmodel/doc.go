// Package localmodel provides an in-memory agent.Model, grounded on the
// mutex-guarded apply-to-map pattern of the cluster manager's FSM but
// without Raft: there is no log, no consensus, and no persistence -- it
// exists for standalone runs and for tests that need a working Model
// without a control-plane connection.
package localmodel
