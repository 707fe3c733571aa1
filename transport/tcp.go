package transport

import (
	"bufio"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/mbocsi/lime-go/envelope"
	lerrors "github.com/mbocsi/lime-go/internal/errors"
	"github.com/mbocsi/lime-go/serialization"
)

// Option configures a TCPTransport at construction time.
type Option func(*TCPTransport)

// WithBufferCapacity overrides the default 8192-byte input buffer.
func WithBufferCapacity(n int) Option {
	return func(t *TCPTransport) { t.bufferCapacity = n }
}

// WithTraceWriter installs a trace sink for SEND/RECEIVE frames.
func WithTraceWriter(w TraceWriter) Option {
	return func(t *TCPTransport) { t.trace = w }
}

// WithTLSConfig supplies the *tls.Config used when SetEncryption(tls) is
// called. If omitted, a zero-value config (InsecureSkipVerify left
// false) is used.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(t *TCPTransport) { t.tlsConfig = cfg }
}

// TCPTransport implements Transport over a plain or in-band-upgraded TLS
// TCP connection, with the bracket-counting Framer doing the byte ↔
// envelope conversion (spec.md §4.B).
type TCPTransport struct {
	serializer     serialization.EnvelopeSerializer
	trace          TraceWriter
	bufferCapacity int
	tlsConfig      *tls.Config

	connMu sync.RWMutex
	conn   net.Conn
	writer *bufio.Writer

	sendMu sync.Mutex

	listenerMu       sync.RWMutex
	envelopeListener EnvelopeListener
	stateListener    StateListener

	lifecycleMu sync.Mutex
	opened      bool
	closed      bool
	closeOnce   sync.Once
	closing     bool
	readDone    chan struct{}

	encMu      sync.Mutex
	encryption envelope.EncryptionOption

	pauseMu        sync.Mutex
	pendingPauseAck chan struct{}
	pendingResume   chan struct{}
}

// NewTCPTransport builds a TCPTransport. A nil serializer defaults to
// serialization.JSONEnvelopeSerializer.
func NewTCPTransport(serializer serialization.EnvelopeSerializer, opts ...Option) *TCPTransport {
	if serializer == nil {
		serializer = serialization.NewJSONEnvelopeSerializer()
	}
	t := &TCPTransport{
		serializer:     serializer,
		bufferCapacity: DefaultBufferCapacity,
		encryption:     envelope.EncryptionNone,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TCPTransport) GetSupportedEncryption() []envelope.EncryptionOption {
	return []envelope.EncryptionOption{envelope.EncryptionNone, envelope.EncryptionTLS}
}

func (t *TCPTransport) SetEnvelopeListener(l EnvelopeListener) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	t.envelopeListener = l
}

func (t *TCPTransport) SetStateListener(l StateListener) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	t.stateListener = l
}

func (t *TCPTransport) currentEnvelopeListener() EnvelopeListener {
	t.listenerMu.RLock()
	defer t.listenerMu.RUnlock()
	return t.envelopeListener
}

func (t *TCPTransport) currentStateListener() StateListener {
	t.listenerMu.RLock()
	defer t.listenerMu.RUnlock()
	return t.stateListener
}

// Open connects to "net.tcp://host:port" and starts the read task.
func (t *TCPTransport) Open(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return lerrors.Wrap(lerrors.InvalidArgument, "malformed URI", err)
	}
	if u.Scheme != "net.tcp" {
		return lerrors.Newf(lerrors.InvalidArgument, "unsupported URI scheme %q, expected net.tcp", u.Scheme)
	}

	t.lifecycleMu.Lock()
	if t.opened {
		t.lifecycleMu.Unlock()
		return lerrors.New(lerrors.InvalidState, "transport is already open")
	}
	t.opened = true
	t.lifecycleMu.Unlock()

	conn, err := net.Dial("tcp", u.Host)
	if err != nil {
		return lerrors.Wrap(lerrors.IO, "cannot connect", err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.writer = bufio.NewWriter(conn)
	t.connMu.Unlock()

	t.readDone = make(chan struct{})
	go t.readLoop(NewFramer(t.bufferCapacity))

	return nil
}

// Send serializes and writes one envelope, flushing immediately.
func (t *TCPTransport) Send(e envelope.Envelope) error {
	if e == nil {
		return lerrors.New(lerrors.InvalidArgument, "envelope is nil")
	}

	t.lifecycleMu.Lock()
	ok := t.opened && !t.closed
	t.lifecycleMu.Unlock()
	if !ok {
		return lerrors.New(lerrors.InvalidState, "transport is not open")
	}

	data, err := t.serializer.Serialize(e)
	if err != nil {
		return err
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.connMu.RLock()
	w := t.writer
	t.connMu.RUnlock()

	if _, err := w.WriteString(data); err != nil {
		wrapped := lerrors.Wrap(lerrors.IO, "cannot write envelope", err)
		t.fail(wrapped)
		return wrapped
	}
	if err := w.Flush(); err != nil {
		wrapped := lerrors.Wrap(lerrors.IO, "cannot flush envelope", err)
		t.fail(wrapped)
		return wrapped
	}

	if t.trace != nil {
		_ = t.trace.Trace(data, OperationSend)
	}
	return nil
}

// SetEncryption upgrades (or, re-setting the current value, no-ops) the
// connection's encryption in band, per spec.md §4.B. It blocks until the
// handshake completes, so the caller must not be the transport's own
// read goroutine (e.g. inside an EnvelopeListener callback) — use
// ArmTLSUpgrade from there instead.
func (t *TCPTransport) SetEncryption(enc envelope.EncryptionOption) error {
	wait, err := t.armEncryption(enc)
	if err != nil || wait == nil {
		return err
	}
	return wait()
}

// ArmTLSUpgrade signals the read loop to pause at its next iteration and
// returns a func that performs the handshake and resumes the loop. The
// arming step is synchronous and non-blocking, so it is safe to call
// from within an EnvelopeListener callback running on the read loop's
// own goroutine; the returned func must then be invoked from elsewhere
// (typically a freshly spawned goroutine), since the read loop can only
// reach its pause point once the callback that armed it returns.
//
// Returns a nil wait func if enc already matches the current setting.
func (t *TCPTransport) ArmTLSUpgrade(enc envelope.EncryptionOption) (func() error, error) {
	return t.armEncryption(enc)
}

func (t *TCPTransport) armEncryption(enc envelope.EncryptionOption) (func() error, error) {
	t.encMu.Lock()
	defer t.encMu.Unlock()

	if enc == t.encryption {
		return nil, nil
	}

	switch enc {
	case envelope.EncryptionNone:
		t.encryption = enc
		return nil, nil
	case envelope.EncryptionTLS:
		pauseAck := make(chan struct{})
		resume := make(chan struct{})

		t.pauseMu.Lock()
		t.pendingPauseAck = pauseAck
		t.pendingResume = resume
		t.pauseMu.Unlock()

		return func() error {
			if err := t.finishTLSUpgrade(pauseAck, resume); err != nil {
				return err
			}
			t.encMu.Lock()
			t.encryption = envelope.EncryptionTLS
			t.encMu.Unlock()
			return nil
		}, nil
	default:
		return nil, lerrors.Newf(lerrors.InvalidArgument, "unsupported encryption option %q", enc)
	}
}

func (t *TCPTransport) finishTLSUpgrade(pauseAck, resume chan struct{}) error {
	<-pauseAck

	t.connMu.Lock()
	rawConn := t.conn
	cfg := t.tlsConfig
	if cfg == nil {
		cfg = &tls.Config{}
	}
	tlsConn := tls.Client(rawConn, cfg)
	t.connMu.Unlock()

	if err := tlsConn.Handshake(); err != nil {
		close(resume)
		return lerrors.Wrap(lerrors.IO, "TLS handshake failed", err)
	}

	t.connMu.Lock()
	t.conn = tlsConn
	t.writer = bufio.NewWriter(tlsConn)
	t.connMu.Unlock()

	close(resume)
	return nil
}

// readLoop owns the Framer exclusively; it is the only goroutine that
// reads from the connection or scans the buffer.
func (t *TCPTransport) readLoop(framer *Framer) {
	defer close(t.readDone)

	for {
		t.pauseMu.Lock()
		ack := t.pendingPauseAck
		resume := t.pendingResume
		t.pendingPauseAck = nil
		t.pendingResume = nil
		t.pauseMu.Unlock()
		if ack != nil {
			close(ack)
			<-resume
		}

		slice, err := framer.ReadSlice()
		if err != nil {
			t.fail(err)
			return
		}

		t.connMu.RLock()
		conn := t.conn
		t.connMu.RUnlock()

		n, err := conn.Read(slice)
		if err != nil {
			t.lifecycleMu.Lock()
			closing := t.closing
			t.lifecycleMu.Unlock()
			if closing || err == io.EOF {
				return
			}
			t.fail(lerrors.Wrap(lerrors.IO, "read failed", err))
			return
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		framer.Advance(n)

		listener := t.currentEnvelopeListener()
		err = framer.Scan(func(frame []byte) error {
			if t.trace != nil {
				_ = t.trace.Trace(string(frame), OperationReceive)
			}
			e, derr := t.serializer.Deserialize(frame)
			if derr != nil {
				return derr
			}
			if listener != nil {
				listener.OnReceive(e)
			}
			return nil
		})
		if err != nil {
			t.fail(err)
			return
		}
	}
}

// fail is the non-recoverable failure path of spec.md §7: close the
// socket, emit onException, then onClosed. No further onReceive is
// delivered.
func (t *TCPTransport) fail(err error) {
	t.closeOnce.Do(func() {
		t.lifecycleMu.Lock()
		t.closing = true
		t.lifecycleMu.Unlock()

		t.connMu.RLock()
		conn := t.conn
		t.connMu.RUnlock()
		if conn != nil {
			_ = conn.Close()
		}

		t.lifecycleMu.Lock()
		t.closed = true
		t.lifecycleMu.Unlock()

		if sl := t.currentStateListener(); sl != nil {
			sl.OnException(err)
			sl.OnClosed()
		} else {
			slog.Error("transport failed with no state listener installed", "error", err)
		}
	})
}

// Close signals onClosing, closes the socket, joins the read task, and
// signals onClosed. Idempotent after the first call.
func (t *TCPTransport) Close() error {
	t.closeOnce.Do(func() {
		if sl := t.currentStateListener(); sl != nil {
			sl.OnClosing()
		}

		t.lifecycleMu.Lock()
		t.closing = true
		t.lifecycleMu.Unlock()

		t.connMu.RLock()
		conn := t.conn
		t.connMu.RUnlock()
		if conn != nil {
			_ = conn.Close()
		}

		if t.readDone != nil {
			<-t.readDone
		}

		t.lifecycleMu.Lock()
		t.closed = true
		t.lifecycleMu.Unlock()

		if sl := t.currentStateListener(); sl != nil {
			sl.OnClosed()
		}
	})
	return nil
}
