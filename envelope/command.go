package envelope

import "encoding/json"

// CommandMethod enumerates the verbs a Command can invoke against a
// resource URI.
type CommandMethod string

const (
	MethodGet         CommandMethod = "get"
	MethodSet         CommandMethod = "set"
	MethodDelete      CommandMethod = "delete"
	MethodSubscribe   CommandMethod = "subscribe"
	MethodUnsubscribe CommandMethod = "unsubscribe"
	MethodObserve     CommandMethod = "observe"
	MethodMerge       CommandMethod = "merge"
)

// CommandStatus reports the outcome of a Command once a response has
// been produced.
type CommandStatus string

const (
	StatusSuccess CommandStatus = "success"
	StatusFailure CommandStatus = "failure"
)

// Command carries a request/response RPC over the channel. method's
// presence is the wire discriminator for this kind. ID is mandatory for
// a Command (spec.md §3): request/response correlation depends on it.
type Command struct {
	Base
	Method   CommandMethod   `json:"method"`
	URI      string          `json:"uri,omitempty"`
	Type     string          `json:"type,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Status   CommandStatus   `json:"status,omitempty"`
	Reason   *Reason         `json:"reason,omitempty"`
}
