package serialization

import (
	"encoding/json"

	"github.com/mbocsi/lime-go/envelope"
	lerrors "github.com/mbocsi/lime-go/internal/errors"
)

// JSONEnvelopeSerializer is the concrete EnvelopeSerializer used by the
// transport when no other implementation is supplied. It detects the
// envelope kind from the raw JSON shape (envelope.Detect) and then
// unmarshals into the matching concrete type.
type JSONEnvelopeSerializer struct{}

// NewJSONEnvelopeSerializer returns the default serializer.
func NewJSONEnvelopeSerializer() *JSONEnvelopeSerializer {
	return &JSONEnvelopeSerializer{}
}

func (s *JSONEnvelopeSerializer) Serialize(e envelope.Envelope) (string, error) {
	if e == nil {
		return "", lerrors.New(lerrors.InvalidArgument, "envelope is nil")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return "", lerrors.Wrap(lerrors.Serialization, "cannot marshal envelope", err)
	}
	return string(data), nil
}

func (s *JSONEnvelopeSerializer) Deserialize(data []byte) (envelope.Envelope, error) {
	kind, err := envelope.Detect(data)
	if err != nil {
		return nil, err
	}

	switch kind {
	case envelope.KindMessage:
		var m envelope.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, lerrors.Wrap(lerrors.Serialization, "malformed message envelope", err)
		}
		return &m, nil
	case envelope.KindNotification:
		var n envelope.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, lerrors.Wrap(lerrors.Serialization, "malformed notification envelope", err)
		}
		return &n, nil
	case envelope.KindCommand:
		var c envelope.Command
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, lerrors.Wrap(lerrors.Serialization, "malformed command envelope", err)
		}
		return &c, nil
	case envelope.KindSession:
		var s envelope.Session
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, lerrors.Wrap(lerrors.Serialization, "malformed session envelope", err)
		}
		return &s, nil
	default:
		return nil, lerrors.New(lerrors.Serialization, "unrecognized envelope kind")
	}
}
