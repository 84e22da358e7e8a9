package queue

import (
	"encoding/json"
	"errors"
)

// Signature is a deferred invocation descriptor: a task name with its
// positional arguments already bound. Signatures are built at publish time
// and either persisted as tasks (asynchronous dispatch) or executed in the
// calling context (synchronous application).
type Signature struct {
	TaskName string `json:"task_name"`
	Args     []any  `json:"args,omitempty"`
}

// NewSignature binds args to the named task.
func NewSignature(taskName string, args ...any) Signature {
	return Signature{TaskName: taskName, Args: args}
}

// MarshalArgs encodes the bound arguments as a JSON array. No arguments
// encode as an empty array so every task payload is a valid JSON document.
func (s Signature) MarshalArgs() ([]byte, error) {
	if len(s.Args) == 0 {
		return []byte("[]"), nil
	}
	raw, err := json.Marshal(s.Args)
	if err != nil {
		return nil, errors.Join(ErrArgsMarshal, err)
	}
	return raw, nil
}

// Group is an ordered set of signatures dispatched or applied as one unit.
type Group []Signature

// NewGroup combines signatures into a group.
func NewGroup(sigs ...Signature) Group {
	return Group(sigs)
}

// Names returns the task names of the group in order.
func (g Group) Names() []string {
	names := make([]string, len(g))
	for i, s := range g {
		names[i] = s.TaskName
	}
	return names
}
