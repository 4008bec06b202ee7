package dag

import (
	"time"

	"github.com/kbukum/dagflow/errors"
	"github.com/kbukum/dagflow/validation"
)

// NodeID identifies a node. Values outside ^[a-zA-Z][a-zA-Z0-9_]*$ are only
// produced by ParseNodeID failing, never by a successful conversion.
type NodeID string

// ParseNodeID validates s against the node id grammar.
func ParseNodeID(s string) (NodeID, error) {
	if !validation.IsNodeID(s) {
		return "", errors.InvalidNodeID(s)
	}
	return NodeID(s), nil
}

// MustNodeID is ParseNodeID for literals; it panics on invalid input.
func MustNodeID(s string) NodeID {
	id, err := ParseNodeID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id NodeID) String() string { return string(id) }

// Kind is the discriminant of a Node.
type Kind string

const (
	KindTask    Kind = "task"
	KindGate    Kind = "gate"
	KindFanout  Kind = "fanout"
	KindFanin   Kind = "fanin"
	KindCollect Kind = "collect"
)

// Node is one of *TaskNode, *GateNode, *FanoutNode, *FaninNode or
// *CollectNode. The set is closed.
type Node interface {
	NodeID() NodeID
	Kind() Kind
	node()
}

// TaskNode does work through a TaskRunner. Exactly one of Uses and Run is set.
type TaskNode struct {
	ID      NodeID            `json:"id" validate:"nodeid"`
	Uses    string            `json:"uses,omitempty"`
	Run     string            `json:"run,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Secrets []string          `json:"secrets,omitempty" validate:"dive,required"`
	Retry   *RetryPolicy      `json:"retry,omitempty"`
}

// GateNode permits its successors only when Condition holds.
type GateNode struct {
	ID        NodeID `json:"id" validate:"nodeid"`
	Condition string `json:"condition" validate:"required"`
}

// FanoutNode marks the start of a set of parallel branches.
type FanoutNode struct {
	ID NodeID `json:"id" validate:"nodeid"`
}

// FaninNode marks the join of parallel branches.
type FaninNode struct {
	ID NodeID `json:"id" validate:"nodeid"`
}

// CollectNode pauses for external input identified by FormID.
type CollectNode struct {
	ID      NodeID        `json:"id" validate:"nodeid"`
	FormID  string        `json:"formId" validate:"required"`
	Timeout time.Duration `json:"timeout,omitempty" validate:"gte=0"`
}

func (n *TaskNode) NodeID() NodeID    { return n.ID }
func (n *GateNode) NodeID() NodeID    { return n.ID }
func (n *FanoutNode) NodeID() NodeID  { return n.ID }
func (n *FaninNode) NodeID() NodeID   { return n.ID }
func (n *CollectNode) NodeID() NodeID { return n.ID }

func (*TaskNode) Kind() Kind    { return KindTask }
func (*GateNode) Kind() Kind    { return KindGate }
func (*FanoutNode) Kind() Kind  { return KindFanout }
func (*FaninNode) Kind() Kind   { return KindFanin }
func (*CollectNode) Kind() Kind { return KindCollect }

func (*TaskNode) node()    {}
func (*GateNode) node()    {}
func (*FanoutNode) node()  {}
func (*FaninNode) node()   {}
func (*CollectNode) node() {}

// TaskConfig is the payload of a task node.
type TaskConfig struct {
	Uses    string
	Run     string
	Env     map[string]string
	Secrets []string
	Retry   *RetryPolicy
}

// Task builds a task node. It does not validate.
func Task(id NodeID, cfg TaskConfig) *TaskNode {
	return &TaskNode{
		ID:      id,
		Uses:    cfg.Uses,
		Run:     cfg.Run,
		Env:     cfg.Env,
		Secrets: cfg.Secrets,
		Retry:   cfg.Retry,
	}
}

// Gate builds a gate node.
func Gate(id NodeID, condition string) *GateNode {
	return &GateNode{ID: id, Condition: condition}
}

// Fanout builds a fanout node.
func Fanout(id NodeID) *FanoutNode { return &FanoutNode{ID: id} }

// Fanin builds a fanin node.
func Fanin(id NodeID) *FaninNode { return &FaninNode{ID: id} }

// Collect builds a collect node. A zero timeout means none.
func Collect(id NodeID, formID string, timeout time.Duration) *CollectNode {
	return &CollectNode{ID: id, FormID: formID, Timeout: timeout}
}
