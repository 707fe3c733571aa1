package transport

import (
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mbocsi/lime-go/envelope"
	lerrors "github.com/mbocsi/lime-go/internal/errors"
	"github.com/mbocsi/lime-go/serialization"
)

// WSTransport implements Transport over a gorilla/websocket connection,
// for the net.ws/net.wss URI schemes. Each WebSocket text frame already
// carries exactly one envelope, so unlike TCPTransport it needs no
// bracket-counting Framer on the receive path — the envelope listener
// and state listener contracts are otherwise identical (SPEC_FULL.md
// §4). Grounded on the teacher's client.WebSocketTransport.
type WSTransport struct {
	serializer serialization.EnvelopeSerializer
	trace      TraceWriter

	connMu sync.RWMutex
	conn   *websocket.Conn

	sendMu sync.Mutex

	listenerMu       sync.RWMutex
	envelopeListener EnvelopeListener
	stateListener    StateListener

	lifecycleMu sync.Mutex
	opened      bool
	closed      bool
	closing     bool
	closeOnce   sync.Once
	readDone    chan struct{}

	encMu      sync.Mutex
	encryption envelope.EncryptionOption
}

// WSOption configures a WSTransport at construction time.
type WSOption func(*WSTransport)

// WithWSTraceWriter installs a trace sink for SEND/RECEIVE frames.
func WithWSTraceWriter(w TraceWriter) WSOption {
	return func(t *WSTransport) { t.trace = w }
}

// NewWSTransport builds a WSTransport. A nil serializer defaults to
// serialization.JSONEnvelopeSerializer.
func NewWSTransport(serializer serialization.EnvelopeSerializer, opts ...WSOption) *WSTransport {
	if serializer == nil {
		serializer = serialization.NewJSONEnvelopeSerializer()
	}
	t := &WSTransport{serializer: serializer, encryption: envelope.EncryptionNone}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WSTransport) GetSupportedEncryption() []envelope.EncryptionOption {
	return []envelope.EncryptionOption{envelope.EncryptionNone, envelope.EncryptionTLS}
}

func (t *WSTransport) SetEnvelopeListener(l EnvelopeListener) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	t.envelopeListener = l
}

func (t *WSTransport) SetStateListener(l StateListener) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	t.stateListener = l
}

func (t *WSTransport) currentEnvelopeListener() EnvelopeListener {
	t.listenerMu.RLock()
	defer t.listenerMu.RUnlock()
	return t.envelopeListener
}

func (t *WSTransport) currentStateListener() StateListener {
	t.listenerMu.RLock()
	defer t.listenerMu.RUnlock()
	return t.stateListener
}

// Open connects to "net.ws://host:port/path" or "net.wss://...". Unlike
// TCPTransport's "net.tcp" scheme, the TLS decision for a WebSocket
// connection is made at dial time (ws vs wss) rather than upgraded
// in-band afterwards — gorilla/websocket offers no live-connection TLS
// upgrade, which is why SetEncryption on an already-open WSTransport can
// only confirm the scheme already in effect, never switch it.
func (t *WSTransport) Open(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return lerrors.Wrap(lerrors.InvalidArgument, "malformed URI", err)
	}

	var wsScheme string
	switch u.Scheme {
	case "net.ws":
		wsScheme = "ws"
	case "net.wss":
		wsScheme = "wss"
		t.encryption = envelope.EncryptionTLS
	default:
		return lerrors.Newf(lerrors.InvalidArgument, "unsupported URI scheme %q, expected net.ws or net.wss", u.Scheme)
	}

	t.lifecycleMu.Lock()
	if t.opened {
		t.lifecycleMu.Unlock()
		return lerrors.New(lerrors.InvalidState, "transport is already open")
	}
	t.opened = true
	t.lifecycleMu.Unlock()

	dialURL := *u
	dialURL.Scheme = wsScheme
	conn, _, err := websocket.DefaultDialer.Dial(dialURL.String(), nil)
	if err != nil {
		return lerrors.Wrap(lerrors.IO, "cannot connect", err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	t.readDone = make(chan struct{})
	go t.readLoop()

	return nil
}

func (t *WSTransport) Send(e envelope.Envelope) error {
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
	conn := t.conn
	t.connMu.RUnlock()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(data)); err != nil {
		wrapped := lerrors.Wrap(lerrors.IO, "cannot write envelope", err)
		t.fail(wrapped)
		return wrapped
	}

	if t.trace != nil {
		_ = t.trace.Trace(data, OperationSend)
	}
	return nil
}

func (t *WSTransport) SetEncryption(enc envelope.EncryptionOption) error {
	t.encMu.Lock()
	defer t.encMu.Unlock()

	if enc == t.encryption {
		return nil
	}
	return lerrors.New(lerrors.InvalidState, "WebSocket transport cannot upgrade encryption in band; reconnect with net.wss")
}

func (t *WSTransport) readLoop() {
	defer close(t.readDone)

	for {
		t.connMu.RLock()
		conn := t.conn
		t.connMu.RUnlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			t.lifecycleMu.Lock()
			closing := t.closing
			t.lifecycleMu.Unlock()
			if closing {
				return
			}
			t.fail(lerrors.Wrap(lerrors.IO, "read failed", err))
			return
		}

		if t.trace != nil {
			_ = t.trace.Trace(string(data), OperationReceive)
		}

		e, err := t.serializer.Deserialize(data)
		if err != nil {
			t.fail(err)
			return
		}

		if listener := t.currentEnvelopeListener(); listener != nil {
			listener.OnReceive(e)
		}
	}
}

func (t *WSTransport) fail(err error) {
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
		}
	})
}

func (t *WSTransport) Close() error {
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
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
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
