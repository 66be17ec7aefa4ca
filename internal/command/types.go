// Package command holds the transaction's deferred operation log and the
// planner that turns it into the batch request sequence `commit` sends.
//
// DeferredCmd is a tagged variant rather than a generic dispatch table: each
// kind is its own case with its own fields, so a Patch entry simply cannot
// be missing a Pointer the way a mistyped dict key in a loosely typed
// payload could silently be.
package command

import "encoding/json"

// Kind tags one entry in the deferred log.
type Kind int

const (
	Push Kind = iota
	Delete
	Patch
)

func (k Kind) String() string {
	switch k {
	case Push:
		return "push"
	case Delete:
		return "delete"
	case Patch:
		return "patch"
	default:
		return "unknown"
	}
}

// DeferredCmd is one operation recorded against a transaction, mirroring
// the push/delete/jp handler contracts. Only the fields that apply to
// Kind are meaningful:
//
//   - Push:   Resource, Body
//   - Delete: Resource
//   - Patch:  Resource, Op, Pointer, Value
type DeferredCmd struct {
	Kind     Kind
	Resource string
	Body     json.RawMessage
	Op       string
	Pointer  string
	Value    json.RawMessage
}

// NewPush builds a Push entry.
func NewPush(resource string, body json.RawMessage) DeferredCmd {
	return DeferredCmd{Kind: Push, Resource: resource, Body: body}
}

// NewDelete builds a Delete entry.
func NewDelete(resource string) DeferredCmd {
	return DeferredCmd{Kind: Delete, Resource: resource}
}

// NewPatch builds a Patch entry.
func NewPatch(resource, op, pointer string, value json.RawMessage) DeferredCmd {
	return DeferredCmd{Kind: Patch, Resource: resource, Op: op, Pointer: pointer, Value: value}
}

// Log is the transaction's ordered deferred operation list.
type Log []DeferredCmd

// Append records cmd at the end of the log.
func (l *Log) Append(cmd DeferredCmd) {
	*l = append(*l, cmd)
}

// Reset empties the log (abort, or commit once it has built its batch
// body, before the batch POST is sent).
func (l *Log) Reset() {
	*l = nil
}
