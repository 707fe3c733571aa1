// Package serialization specifies and implements the envelope JSON
// codec. spec.md §1 treats the envelope serializer as an external
// collaborator of the transport/channel/driver core — only its contract
// matters to those layers, which depend on the EnvelopeSerializer
// interface rather than the concrete implementation below.
package serialization

import "github.com/mbocsi/lime-go/envelope"

// EnvelopeSerializer converts envelopes to and from their UTF-8 JSON
// wire representation.
type EnvelopeSerializer interface {
	Serialize(e envelope.Envelope) (string, error)
	Deserialize(data []byte) (envelope.Envelope, error)
}
