// Package envelope implements the LIME wire envelope sum type: Message,
// Notification, Command and Session, plus the Node/Identity addressing
// types shared by all four.
//
// The variant is determined solely by the JSON shape at parse time:
// presence of "content" means Message, "event" means Notification,
// "method" means Command, "state" means Session. Exactly one of those
// keys must be present in a well-formed envelope.
package envelope

import (
	"encoding/json"

	lerrors "github.com/mbocsi/lime-go/internal/errors"
)

// Metadata is the free-form string map every envelope kind may carry.
type Metadata map[string]string

// Base holds the fields common to every envelope kind.
type Base struct {
	ID       string   `json:"id,omitempty"`
	From     *Node    `json:"from,omitempty"`
	To       *Node    `json:"to,omitempty"`
	Pp       *Node    `json:"pp,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// Envelope is implemented by Message, Notification, Command and Session.
// It exposes only the fields the channel/transport layers need without
// knowing the concrete variant: addressing and the base accessor used by
// the recipient filler (module F).
type Envelope interface {
	BaseEnvelope() *Base
}

func (b *Base) BaseEnvelope() *Base { return b }

// Kind names the four wire shapes an envelope can take.
type Kind int

const (
	KindMessage Kind = iota
	KindNotification
	KindCommand
	KindSession
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindNotification:
		return "notification"
	case KindCommand:
		return "command"
	case KindSession:
		return "session"
	default:
		return "unknown"
	}
}

// discriminator is the minimal shape inspected to pick a variant before
// unmarshalling the full envelope, per spec.md §3's invariant that the
// variant is determined solely by which of these keys is present.
type discriminator struct {
	Content json.RawMessage `json:"content"`
	Event   json.RawMessage `json:"event"`
	Method  json.RawMessage `json:"method"`
	State   json.RawMessage `json:"state"`
}

// Detect inspects the raw JSON document and reports which single
// envelope kind it matches. It fails with errors.Serialization if zero
// or more than one discriminator key is present.
func Detect(data []byte) (Kind, error) {
	var d discriminator
	if err := json.Unmarshal(data, &d); err != nil {
		return 0, lerrors.Wrap(lerrors.Serialization, "malformed envelope JSON", err)
	}

	present := 0
	var kind Kind
	if d.Content != nil {
		present++
		kind = KindMessage
	}
	if d.Event != nil {
		present++
		kind = KindNotification
	}
	if d.Method != nil {
		present++
		kind = KindCommand
	}
	if d.State != nil {
		present++
		kind = KindSession
	}

	switch present {
	case 0:
		return 0, lerrors.New(lerrors.Serialization, "envelope matches no known kind (missing content/event/method/state)")
	case 1:
		return kind, nil
	default:
		return 0, lerrors.New(lerrors.Serialization, "envelope matches more than one kind")
	}
}
