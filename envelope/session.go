package envelope

import (
	"encoding/json"

	lerrors "github.com/mbocsi/lime-go/internal/errors"
)

// SessionState enumerates the states of the LIME handshake state
// machine, per spec.md §4.D.
type SessionState string

const (
	SessionNew            SessionState = "new"
	SessionNegotiating    SessionState = "negotiating"
	SessionAuthenticating SessionState = "authenticating"
	SessionEstablished    SessionState = "established"
	SessionFinishing      SessionState = "finishing"
	SessionFinished       SessionState = "finished"
	SessionFailed         SessionState = "failed"
)

// EncryptionOption enumerates the transport encryption options a session
// can offer or select.
type EncryptionOption string

const (
	EncryptionNone EncryptionOption = "none"
	EncryptionTLS  EncryptionOption = "tls"
)

// CompressionOption enumerates the compression options a session can
// offer or select. Only "none" is actually implemented by this module;
// "gzip" is negotiable but never applied (spec.md §9, "Partial
// compression").
type CompressionOption string

const (
	CompressionNone CompressionOption = "none"
	CompressionGzip CompressionOption = "gzip"
)

// Session carries the handshake state machine's wire representation.
// state's presence is the wire discriminator for this kind.
type Session struct {
	Base
	State SessionState `json:"state"`

	EncryptionOptions []EncryptionOption `json:"encryptionOptions,omitempty"`
	Encryption        EncryptionOption   `json:"encryption,omitempty"`

	CompressionOptions []CompressionOption `json:"compressionOptions,omitempty"`
	Compression        CompressionOption   `json:"compression,omitempty"`

	Scheme        AuthenticationScheme   `json:"scheme,omitempty"`
	SchemeOptions []AuthenticationScheme `json:"schemeOptions,omitempty"`
	Authentication Authentication        `json:"authentication,omitempty"`

	Reason *Reason `json:"reason,omitempty"`
}

// sessionWire mirrors Session's JSON shape but holds "authentication" as
// a raw document, since an Authentication interface value cannot be
// unmarshalled without first knowing the Scheme. This is the Go-idiomatic
// counterpart to EnvelopeSerializerImpl's two-pass decode: strip
// "authentication", decode everything else, then re-attach the
// scheme-specific payload (SPEC_FULL.md §10.5).
type sessionWire struct {
	Base
	State SessionState `json:"state"`

	EncryptionOptions []EncryptionOption `json:"encryptionOptions,omitempty"`
	Encryption        EncryptionOption   `json:"encryption,omitempty"`

	CompressionOptions []CompressionOption `json:"compressionOptions,omitempty"`
	Compression        CompressionOption   `json:"compression,omitempty"`

	Scheme        AuthenticationScheme   `json:"scheme,omitempty"`
	SchemeOptions []AuthenticationScheme `json:"schemeOptions,omitempty"`
	Authentication json.RawMessage       `json:"authentication,omitempty"`

	Reason *Reason `json:"reason,omitempty"`
}

func (s Session) MarshalJSON() ([]byte, error) {
	wire := sessionWire{
		Base:                s.Base,
		State:               s.State,
		EncryptionOptions:   s.EncryptionOptions,
		Encryption:          s.Encryption,
		CompressionOptions:  s.CompressionOptions,
		Compression:         s.Compression,
		Scheme:              s.Scheme,
		SchemeOptions:       s.SchemeOptions,
		Reason:              s.Reason,
	}
	if s.Authentication != nil {
		wire.Scheme = s.Authentication.Scheme()
		raw, err := json.Marshal(s.Authentication)
		if err != nil {
			return nil, lerrors.Wrap(lerrors.Serialization, "cannot marshal session authentication", err)
		}
		wire.Authentication = raw
	}
	return json.Marshal(wire)
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var wire sessionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return lerrors.Wrap(lerrors.Serialization, "malformed session envelope", err)
	}

	*s = Session{
		Base:               wire.Base,
		State:              wire.State,
		EncryptionOptions:  wire.EncryptionOptions,
		Encryption:         wire.Encryption,
		CompressionOptions: wire.CompressionOptions,
		Compression:        wire.Compression,
		Scheme:             wire.Scheme,
		SchemeOptions:      wire.SchemeOptions,
		Reason:             wire.Reason,
	}

	if wire.Scheme != "" {
		auth, err := decodeAuthentication(wire.Scheme, wire.Authentication)
		if err != nil {
			return err
		}
		s.Authentication = auth
	}

	return nil
}
