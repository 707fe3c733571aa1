package client

import (
	"sync"
	"time"

	"github.com/mbocsi/lime-go/channel"
	"github.com/mbocsi/lime-go/envelope"
	lerrors "github.com/mbocsi/lime-go/internal/errors"
)

// SessionListener is the two-callback interface establishSession-style
// convenience calls report through, per spec.md §4.D.
type SessionListener interface {
	OnReceiveSession(s *envelope.Session)
	OnFailure(err error)
}

// SessionListenerFuncs adapts two functions to a SessionListener; either
// may be nil.
type SessionListenerFuncs struct {
	ReceiveFunc func(s *envelope.Session)
	FailureFunc func(err error)
}

func (f SessionListenerFuncs) OnReceiveSession(s *envelope.Session) {
	if f.ReceiveFunc != nil {
		f.ReceiveFunc(s)
	}
}

func (f SessionListenerFuncs) OnFailure(err error) {
	if f.FailureFunc != nil {
		f.FailureFunc(err)
	}
}

// NegotiationChoice is the caller's preference for the two negotiation
// dimensions. With Auto set, or with EncryptionNone, the encryption is
// the first option the server offers; with Auto set, or with an empty or
// none value, the compression is CompressionNone (see pickCompression).
// A concrete non-none value without Auto is demanded verbatim.
type NegotiationChoice struct {
	Compression envelope.CompressionOption
	Encryption  envelope.EncryptionOption
	Auto        bool
}

// EstablishOptions configures EstablishSession.
type EstablishOptions struct {
	Identity       envelope.Identity
	Authentication envelope.Authentication
	Instance       string
	Negotiation    NegotiationChoice

	// ReceiveTimeout bounds the whole establishment, from StartNewSession
	// to the final server reply; zero disables it. SendTimeout is not
	// applied by EstablishSession: sends are not bounded.
	SendTimeout    time.Duration
	ReceiveTimeout time.Duration
}

// EstablishSession drives NEW → ESTABLISHED by chaining
// StartNewSession, NegotiateSession and AuthenticateSession, reporting
// through listener exactly once: OnReceiveSession on reaching
// ESTABLISHED, or OnFailure on any inbound FAILED session, on timeout,
// or on an error returned by one of the driver's own sends, listener
// enqueues or TLS upgrade (spec.md §4.D). A transport exception raised
// while the driver is waiting for the server's reply is not observed by
// the driver; only ReceiveTimeout, when set, ends that wait.
func (c *ClientChannel) EstablishSession(opts EstablishOptions, listener SessionListener) error {
	if listener == nil {
		return lerrors.New(lerrors.InvalidArgument, "listener is nil")
	}

	d := &establishDriver{
		client:   c,
		opts:     opts,
		listener: listener,
		done:     make(chan struct{}),
	}
	return d.start()
}

type establishDriver struct {
	client   *ClientChannel
	opts     EstablishOptions
	listener SessionListener

	mu       sync.Mutex
	fired    bool
	done     chan struct{}
}

// finish ensures the listener fires exactly once even if a timeout, a
// transport exception, and an inbound session race against each other.
func (d *establishDriver) finish(fn func()) {
	d.mu.Lock()
	if d.fired {
		d.mu.Unlock()
		return
	}
	d.fired = true
	close(d.done)
	d.mu.Unlock()
	fn()
}

func (d *establishDriver) start() error {
	if err := d.client.EnqueueSessionListener(channel.SessionListenerFunc(d.onNew)); err != nil {
		return err
	}
	if err := d.client.StartNewSession(); err != nil {
		return err
	}
	if d.opts.ReceiveTimeout > 0 {
		go d.watchTimeout()
	}
	return nil
}

func (d *establishDriver) watchTimeout() {
	timer := time.NewTimer(d.opts.ReceiveTimeout)
	defer timer.Stop()
	select {
	case <-d.done:
	case <-timer.C:
		d.finish(func() {
			d.listener.OnFailure(lerrors.New(lerrors.Timeout, "session establishment timed out"))
		})
	}
}

func (d *establishDriver) fail(err error) {
	d.finish(func() { d.listener.OnFailure(err) })
}

func (d *establishDriver) onNew(s *envelope.Session) {
	d.client.applyInbound(s)

	switch s.State {
	case envelope.SessionFailed:
		d.fail(lerrors.Wrap(lerrors.InvalidState, "server failed the session", sessionFailureError(s)))
		return
	case envelope.SessionAuthenticating:
		if err := d.client.AuthenticateSession(d.opts.Identity, d.opts.Authentication, d.opts.Instance); err != nil {
			d.fail(err)
			return
		}
		if err := d.client.EnqueueSessionListener(channel.SessionListenerFunc(d.onAuthenticate)); err != nil {
			d.fail(err)
		}
		return
	case envelope.SessionNegotiating:
		compression := pickCompression(d.opts.Negotiation, s.CompressionOptions)
		encryption := pickEncryption(d.opts.Negotiation, s.EncryptionOptions)
		if err := d.client.NegotiateSession(compression, encryption); err != nil {
			d.fail(err)
			return
		}
		if err := d.client.EnqueueSessionListener(channel.SessionListenerFunc(d.onNegotiate)); err != nil {
			d.fail(err)
		}
		return
	default:
		d.fail(lerrors.Newf(lerrors.InvalidState, "unexpected session state %q after startNewSession", s.State))
	}
}

func (d *establishDriver) onNegotiate(s *envelope.Session) {
	d.client.applyInbound(s)

	switch s.State {
	case envelope.SessionFailed:
		d.fail(lerrors.Wrap(lerrors.InvalidState, "server failed the session", sessionFailureError(s)))
	case envelope.SessionAuthenticating:
		d.negotiateEncryptionThenAuthenticate(s.Encryption)
	default:
		d.fail(lerrors.Newf(lerrors.InvalidState, "unexpected session state %q after negotiateSession", s.State))
	}
}

// tlsArmer is the subset of *transport.TCPTransport's upgrade API this
// driver needs; transports without in-band TLS support (e.g. WSTransport)
// simply don't implement it.
type tlsArmer interface {
	ArmTLSUpgrade(enc envelope.EncryptionOption) (func() error, error)
}

// negotiateEncryptionThenAuthenticate authenticates immediately when no
// TLS upgrade is required — the common case — so AuthenticateSession and
// the re-armed EnqueueSessionListener run synchronously within
// onNegotiate's own dispatch, leaving no window where the transport's
// envelope listener is detached. A TLS upgrade is the one case that must
// leave this goroutine: arming is synchronous and non-blocking (it only
// sets up the reader's pause point, guaranteed seen before the reader
// loop reads another byte off the wire), but waiting for the handshake
// to finish would block the reader on itself, so only that wait (plus
// everything after it) is handed to a new goroutine.
func (d *establishDriver) negotiateEncryptionThenAuthenticate(encryption envelope.EncryptionOption) {
	if encryption != envelope.EncryptionTLS {
		d.authenticateAndAwaitResponse()
		return
	}

	armer, ok := d.client.Transport().(tlsArmer)
	if !ok {
		d.fail(lerrors.New(lerrors.InvalidState, "transport does not support in-band TLS upgrade"))
		return
	}
	wait, err := armer.ArmTLSUpgrade(envelope.EncryptionTLS)
	if err != nil {
		d.fail(err)
		return
	}

	go func() {
		if err := wait(); err != nil {
			d.fail(err)
			return
		}
		d.authenticateAndAwaitResponse()
	}()
}

func (d *establishDriver) authenticateAndAwaitResponse() {
	if err := d.client.AuthenticateSession(d.opts.Identity, d.opts.Authentication, d.opts.Instance); err != nil {
		d.fail(err)
		return
	}
	if err := d.client.EnqueueSessionListener(channel.SessionListenerFunc(d.onAuthenticate)); err != nil {
		d.fail(err)
	}
}

func (d *establishDriver) onAuthenticate(s *envelope.Session) {
	d.client.applyInbound(s)

	switch s.State {
	case envelope.SessionFailed:
		d.fail(lerrors.Wrap(lerrors.InvalidState, "server failed the session", sessionFailureError(s)))
	case envelope.SessionEstablished:
		d.finish(func() { d.listener.OnReceiveSession(s) })
	default:
		d.fail(lerrors.Newf(lerrors.InvalidState, "unexpected session state %q after authenticateSession", s.State))
	}
}

func sessionFailureError(s *envelope.Session) error {
	if s.Reason != nil {
		return lerrors.Newf(lerrors.InvalidState, "session reason %d: %s", s.Reason.Code, s.Reason.Description)
	}
	return lerrors.New(lerrors.InvalidState, "session failed with no reason given")
}

// pickCompression never auto-selects a codec this client can't run: no
// compression implementation exists anywhere in the tree, so auto
// negotiation always resolves to CompressionNone regardless of what the
// server offers. Only an explicit, non-auto caller choice can override
// that — pickEncryption doesn't need this restriction because TLS has a
// real implementation via ArmTLSUpgrade.
func pickCompression(choice NegotiationChoice, offered []envelope.CompressionOption) envelope.CompressionOption {
	if !choice.Auto && choice.Compression != "" && choice.Compression != envelope.CompressionNone {
		return choice.Compression
	}
	return envelope.CompressionNone
}

func pickEncryption(choice NegotiationChoice, offered []envelope.EncryptionOption) envelope.EncryptionOption {
	if !choice.Auto && choice.Encryption != envelope.EncryptionNone {
		return choice.Encryption
	}
	for _, o := range offered {
		return o
	}
	return envelope.EncryptionNone
}
