package envelope

import "encoding/json"

// Message carries an opaque content document of a given media type.
// content's presence is the wire discriminator for this kind.
type Message struct {
	Base
	Type    string          `json:"type,omitempty"`
	Content json.RawMessage `json:"content"`
}
