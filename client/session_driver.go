// Package client implements the client-side session handshake state
// machine on top of a channel.ChannelBase (spec.md §4.D).
package client

import (
	"github.com/mbocsi/lime-go/channel"
	"github.com/mbocsi/lime-go/envelope"
	lerrors "github.com/mbocsi/lime-go/internal/errors"
)

// ClientChannel drives the NEW → NEGOTIATING → AUTHENTICATING →
// ESTABLISHED → FINISHING → FINISHED|FAILED handshake over an owned
// Channel. It embeds *channel.ChannelBase rather than extending it by
// inheritance (Go has none; DESIGN NOTES "do not rely on method
// inheritance to express phase-specific APIs").
type ClientChannel struct {
	*channel.ChannelBase
}

// NewClientChannel wraps an already-constructed ChannelBase with the
// handshake driver. The channel starts in envelope.SessionNew.
func NewClientChannel(c *channel.ChannelBase) *ClientChannel {
	return &ClientChannel{ChannelBase: c}
}

// StartNewSession sends the initial "new" session envelope. Legal only
// from NEW.
func (c *ClientChannel) StartNewSession() error {
	if c.State() != envelope.SessionNew {
		return lerrors.Newf(lerrors.InvalidState, "cannot start a new session in the %q state", c.State())
	}
	return c.SendSession(&envelope.Session{State: envelope.SessionNew})
}

// NegotiateSession sends the chosen compression/encryption pair. Legal
// only from NEGOTIATING. The session id, once known, is echoed.
func (c *ClientChannel) NegotiateSession(compression envelope.CompressionOption, encryption envelope.EncryptionOption) error {
	if c.State() != envelope.SessionNegotiating {
		return lerrors.Newf(lerrors.InvalidState, "cannot negotiate a session in the %q state", c.State())
	}
	return c.SendSession(&envelope.Session{
		Base:        envelope.Base{ID: c.SessionID()},
		State:       envelope.SessionNegotiating,
		Compression: compression,
		Encryption:  encryption,
	})
}

// AuthenticateSession sends the client's identity and credential. Legal
// only from AUTHENTICATING.
func (c *ClientChannel) AuthenticateSession(identity envelope.Identity, auth envelope.Authentication, instance string) error {
	if c.State() != envelope.SessionAuthenticating {
		return lerrors.Newf(lerrors.InvalidState, "cannot authenticate a session in the %q state", c.State())
	}
	if auth == nil {
		return lerrors.New(lerrors.InvalidArgument, "authentication is nil")
	}
	if identity.Domain == "" {
		return lerrors.New(lerrors.InvalidArgument, "identity domain is empty")
	}
	from := envelope.Node{Name: identity.Name, Domain: identity.Domain, Instance: instance}
	return c.SendSession(&envelope.Session{
		Base:           envelope.Base{ID: c.SessionID(), From: &from},
		State:          envelope.SessionAuthenticating,
		Scheme:         auth.Scheme(),
		Authentication: auth,
	})
}

// SendFinishingSession sends the client's request to end the session.
// Legal only from ESTABLISHED.
func (c *ClientChannel) SendFinishingSession() error {
	if c.State() != envelope.SessionEstablished {
		return lerrors.Newf(lerrors.InvalidState, "cannot finish a session in the %q state", c.State())
	}
	return c.SendSession(&envelope.Session{
		Base:  envelope.Base{ID: c.SessionID()},
		State: envelope.SessionFinishing,
	})
}

// applyInbound updates channel state from a server-sent Session
// envelope: applies the state transition and, on ESTABLISHED/FAILED,
// updates/clears the local and remote node per spec.md §3's invariant.
// Session id capture on first sight is handled by ChannelBase itself
// (every inbound Session passes through its dispatch, not just the ones
// the driver explicitly awaits).
func (c *ClientChannel) applyInbound(s *envelope.Session) {
	c.SetState(s.State)

	if s.State == envelope.SessionEstablished {
		if s.To != nil {
			n := s.To.Copy()
			c.SetLocalNode(&n)
		}
		if s.From != nil {
			n := s.From.Copy()
			c.SetRemoteNode(&n)
		}
	}
	if s.State == envelope.SessionFailed {
		c.SetLocalNode(nil)
		c.SetRemoteNode(nil)
	}
}
