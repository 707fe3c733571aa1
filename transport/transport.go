// Package transport implements the framed TCP (and WebSocket) duplex
// envelope stream described in spec.md §4.B: byte ↔ envelope framing,
// in-band TLS upgrade, and lifecycle events.
package transport

import "github.com/mbocsi/lime-go/envelope"

// EnvelopeListener receives envelopes as they are parsed off the wire.
type EnvelopeListener interface {
	OnReceive(e envelope.Envelope)
}

// EnvelopeListenerFunc adapts a function to an EnvelopeListener.
type EnvelopeListenerFunc func(e envelope.Envelope)

func (f EnvelopeListenerFunc) OnReceive(e envelope.Envelope) { f(e) }

// StateListener receives the transport's lifecycle events, per
// spec.md §4.B and §7.
type StateListener interface {
	OnClosing()
	OnClosed()
	OnException(err error)
}

// StateListenerFuncs adapts three functions to a StateListener; a nil
// function is a no-op.
type StateListenerFuncs struct {
	Closing   func()
	Closed    func()
	Exception func(err error)
}

func (f StateListenerFuncs) OnClosing() {
	if f.Closing != nil {
		f.Closing()
	}
}

func (f StateListenerFuncs) OnClosed() {
	if f.Closed != nil {
		f.Closed()
	}
}

func (f StateListenerFuncs) OnException(err error) {
	if f.Exception != nil {
		f.Exception(err)
	}
}

// Transport is the asynchronous duplex envelope stream spec.md §4.B
// specifies: open/send/close plus the in-band encryption upgrade and the
// two listener slots.
type Transport interface {
	// Open connects to the given URI ("net.tcp://host:port" for
	// TCPTransport, "net.ws://…"/"net.wss://…" for WSTransport) and
	// starts the background read task.
	Open(uri string) error
	// Send serializes and writes one envelope, flushing immediately.
	Send(e envelope.Envelope) error
	// SetEncryption no-ops on re-setting the current value. TCPTransport
	// upgrades to TLS in band, without reconnecting; WSTransport cannot
	// change its encryption and returns an InvalidState error.
	SetEncryption(enc envelope.EncryptionOption) error
	// SetEnvelopeListener installs or clears (nil) the envelope
	// listener.
	SetEnvelopeListener(l EnvelopeListener)
	// SetStateListener installs or clears (nil) the lifecycle
	// listener.
	SetStateListener(l StateListener)
	// Close signals onClosing, closes the socket, joins the read
	// task, and signals onClosed. Idempotent after the first call.
	Close() error
	// GetSupportedEncryption reports the encryption options this
	// transport can upgrade to.
	GetSupportedEncryption() []envelope.EncryptionOption
}

// DataOperation names a traced direction for TraceWriter.
type DataOperation int

const (
	OperationSend DataOperation = iota
	OperationReceive
)

func (op DataOperation) String() string {
	if op == OperationSend {
		return "SEND"
	}
	return "RECEIVE"
}
