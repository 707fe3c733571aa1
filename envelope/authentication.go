package envelope

import (
	"encoding/base64"
	"encoding/json"

	lerrors "github.com/mbocsi/lime-go/internal/errors"
)

// AuthenticationScheme names the authentication scheme a Session
// negotiates, per spec.md §6's "scheme" field.
type AuthenticationScheme string

const (
	SchemeGuest     AuthenticationScheme = "guest"
	SchemePlain     AuthenticationScheme = "plain"
	SchemeTransport AuthenticationScheme = "transport"
)

// Authentication is the scheme-specific payload of a Session's
// "authentication" field. The wire shape depends entirely on Scheme(),
// which is why the serializer inspects "scheme" before decoding
// "authentication" (spec.md §6, SPEC_FULL.md §10.5).
type Authentication interface {
	Scheme() AuthenticationScheme
}

// GuestAuthentication authenticates as an anonymous guest; it carries no
// payload.
type GuestAuthentication struct{}

func (GuestAuthentication) Scheme() AuthenticationScheme { return SchemeGuest }

func (GuestAuthentication) MarshalJSON() ([]byte, error) { return []byte("{}"), nil }

// TransportAuthentication authenticates using a property already
// established by the transport (e.g. a client TLS certificate); it
// carries no payload.
type TransportAuthentication struct{}

func (TransportAuthentication) Scheme() AuthenticationScheme { return SchemeTransport }

func (TransportAuthentication) MarshalJSON() ([]byte, error) { return []byte("{}"), nil }

// PlainAuthentication authenticates with a password, transmitted as
// base64 per spec.md §6.
type PlainAuthentication struct {
	Password []byte
}

func (PlainAuthentication) Scheme() AuthenticationScheme { return SchemePlain }

func (p PlainAuthentication) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Password string `json:"password"`
	}{Password: base64.StdEncoding.EncodeToString(p.Password)})
}

func (p *PlainAuthentication) UnmarshalJSON(data []byte) error {
	var wire struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return lerrors.Wrap(lerrors.Serialization, "malformed plain authentication", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(wire.Password)
	if err != nil {
		return lerrors.Wrap(lerrors.Serialization, "plain authentication password is not valid base64", err)
	}
	p.Password = decoded
	return nil
}

// decodeAuthentication builds the concrete Authentication value for
// scheme from the raw "authentication" JSON, following the original
// EnvelopeSerializerImpl's scheme switch: guest and transport authenticate
// with an empty object, plain decodes a password.
func decodeAuthentication(scheme AuthenticationScheme, raw json.RawMessage) (Authentication, error) {
	switch scheme {
	case SchemeGuest:
		return GuestAuthentication{}, nil
	case SchemeTransport:
		return TransportAuthentication{}, nil
	case SchemePlain:
		var plain PlainAuthentication
		if len(raw) == 0 {
			return plain, nil
		}
		if err := json.Unmarshal(raw, &plain); err != nil {
			return nil, err
		}
		return plain, nil
	default:
		return nil, lerrors.Newf(lerrors.Serialization, "unknown authentication scheme %q", scheme)
	}
}
