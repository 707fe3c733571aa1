// Package channel implements the state-aware envelope dispatcher of
// spec.md §4.C: one Channel owns one Transport for its entire lifetime,
// routes incoming envelopes to typed subscribers, and enforces which
// send operations are legal in the current session state.
package channel

import (
	"log/slog"
	"sync"

	"github.com/mbocsi/lime-go/envelope"
	lerrors "github.com/mbocsi/lime-go/internal/errors"
	"github.com/mbocsi/lime-go/transport"
)

const pingURI = "/ping"
const pingMediaType = "application/vnd.lime.ping+json"

// Option configures a ChannelBase at construction time.
type Option func(*ChannelBase)

// WithFillEnvelopeRecipients enables module F: transparently filling an
// envelope's from/to node (and backfilling a missing domain) using the
// channel's remote/local node.
func WithFillEnvelopeRecipients(enabled bool) Option {
	return func(c *ChannelBase) { c.fillEnvelopeRecipients = enabled }
}

// WithAutoReplyPings enables module E: answering "/ping" GET commands
// without forwarding them to subscribers.
func WithAutoReplyPings(enabled bool) Option {
	return func(c *ChannelBase) { c.autoReplyPings = enabled }
}

// ChannelBase dispatches envelopes arriving on a Transport to typed
// listeners while enforcing spec.md §4.C's per-state send legality. It
// implements transport.EnvelopeListener and transport.StateListener so
// it can install itself directly on the Transport it owns.
type ChannelBase struct {
	transport transport.Transport

	fillEnvelopeRecipients bool
	autoReplyPings         bool

	mu         sync.Mutex
	state      envelope.SessionState
	sessionID  string
	remoteNode *envelope.Node
	localNode  *envelope.Node

	messageListeners      *registry[MessageListener]
	commandListeners      *registry[CommandListener]
	notificationListeners *registry[NotificationListener]

	sessionQueueMu sync.Mutex
	sessionQueue   []sessionQueueEntry
	nextSessionH   uint64

	sendMu sync.Mutex

	lastTransportErr error
	transportClosed   bool
}

// NewChannelBase constructs a Channel that takes ownership of transport:
// the channel installs itself as the transport's listener and closing
// the channel closes the transport (spec.md §3, "Lifecycle and
// ownership").
func NewChannelBase(t transport.Transport, opts ...Option) *ChannelBase {
	c := &ChannelBase{
		transport:             t,
		state:                 envelope.SessionNew,
		messageListeners:      newRegistry[MessageListener](),
		commandListeners:      newRegistry[CommandListener](),
		notificationListeners: newRegistry[NotificationListener](),
	}
	for _, opt := range opts {
		opt(c)
	}
	t.SetEnvelopeListener(c)
	t.SetStateListener(c)
	return c
}

// Transport returns the channel's owned transport.
func (c *ChannelBase) Transport() transport.Transport { return c.transport }

// Close closes the channel's owned transport.
func (c *ChannelBase) Close() error { return c.transport.Close() }

func (c *ChannelBase) State() envelope.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState updates the channel's session state. Exported so the client
// driver package, which owns the handshake transition table, can apply
// the state a just-received Session envelope carries; ChannelBase itself
// has no notion of the handshake beyond what spec.md §4.C already
// enforces (session-state-gated send legality).
func (c *ChannelBase) SetState(s envelope.SessionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *ChannelBase) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *ChannelBase) setSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *ChannelBase) RemoteNode() *envelope.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteNode
}

func (c *ChannelBase) SetRemoteNode(n *envelope.Node) {
	c.mu.Lock()
	c.remoteNode = n
	c.mu.Unlock()
}

func (c *ChannelBase) LocalNode() *envelope.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localNode
}

func (c *ChannelBase) SetLocalNode(n *envelope.Node) {
	c.mu.Lock()
	c.localNode = n
	c.mu.Unlock()
}

// checkTransportListener implements the transportListenerException
// latch (SPEC_FULL.md §10.1): once the transport has reported an
// exception, or the transport has closed, every subsequent registration
// call fails fast instead of registering a listener that can never fire.
func (c *ChannelBase) checkTransportListener() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastTransportErr != nil {
		return lerrors.Wrap(lerrors.InvalidState, "the transport listener has thrown an exception", c.lastTransportErr)
	}
	if c.transportClosed {
		return lerrors.New(lerrors.InvalidState, "the transport listener is closed")
	}
	return nil
}

// --- sends ---

func (c *ChannelBase) send(e envelope.Envelope) error {
	if err := c.checkTransportListener(); err != nil {
		return err
	}
	if c.fillEnvelopeRecipients {
		c.fillEnvelope(e, true)
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.transport.Send(e)
}

// SendMessage sends m; legal only in ESTABLISHED.
func (c *ChannelBase) SendMessage(m *envelope.Message) error {
	if m == nil {
		return lerrors.New(lerrors.InvalidArgument, "message is nil")
	}
	if c.State() != envelope.SessionEstablished {
		return lerrors.Newf(lerrors.InvalidState, "cannot send a message in the %q session state", c.State())
	}
	return c.send(m)
}

// SendCommand sends cmd; legal only in ESTABLISHED.
func (c *ChannelBase) SendCommand(cmd *envelope.Command) error {
	if cmd == nil {
		return lerrors.New(lerrors.InvalidArgument, "command is nil")
	}
	if c.State() != envelope.SessionEstablished {
		return lerrors.Newf(lerrors.InvalidState, "cannot send a command in the %q session state", c.State())
	}
	return c.send(cmd)
}

// SendNotification sends n; legal only in ESTABLISHED.
func (c *ChannelBase) SendNotification(n *envelope.Notification) error {
	if n == nil {
		return lerrors.New(lerrors.InvalidArgument, "notification is nil")
	}
	if c.State() != envelope.SessionEstablished {
		return lerrors.Newf(lerrors.InvalidState, "cannot send a notification in the %q session state", c.State())
	}
	return c.send(n)
}

// SendSession sends s; legal in any state except FINISHED and FAILED.
func (c *ChannelBase) SendSession(s *envelope.Session) error {
	if s == nil {
		return lerrors.New(lerrors.InvalidArgument, "session is nil")
	}
	state := c.State()
	if state == envelope.SessionFinished || state == envelope.SessionFailed {
		return lerrors.Newf(lerrors.InvalidState, "cannot send a session in the %q session state", state)
	}
	return c.send(s)
}

// --- listener registration ---

func (c *ChannelBase) AddMessageListener(l MessageListener, removeAfterReceive bool) (ListenerHandle, error) {
	if l == nil {
		return 0, lerrors.New(lerrors.InvalidArgument, "listener is nil")
	}
	if err := c.checkTransportListener(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageListeners.add(l, removeAfterReceive), nil
}

func (c *ChannelBase) RemoveMessageListener(h ListenerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageListeners.remove(h)
}

func (c *ChannelBase) AddCommandListener(l CommandListener, removeAfterReceive bool) (ListenerHandle, error) {
	if l == nil {
		return 0, lerrors.New(lerrors.InvalidArgument, "listener is nil")
	}
	if err := c.checkTransportListener(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commandListeners.add(l, removeAfterReceive), nil
}

func (c *ChannelBase) RemoveCommandListener(h ListenerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commandListeners.remove(h)
}

func (c *ChannelBase) AddNotificationListener(l NotificationListener, removeAfterReceive bool) (ListenerHandle, error) {
	if l == nil {
		return 0, lerrors.New(lerrors.InvalidArgument, "listener is nil")
	}
	if err := c.checkTransportListener(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notificationListeners.add(l, removeAfterReceive), nil
}

func (c *ChannelBase) RemoveNotificationListener(h ListenerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notificationListeners.remove(h)
}

// EnqueueSessionListener appends a single-shot, ordered session
// listener. Each inbound Session pops exactly the head of this queue.
// Enqueueing always re-arms the channel as the transport's envelope
// listener, since a previous non-ESTABLISHED Session receipt detaches it
// (spec.md §4.C's dispatch rule) expecting the driver to reinstall it
// before the next phase.
func (c *ChannelBase) EnqueueSessionListener(l SessionListener) error {
	if l == nil {
		return lerrors.New(lerrors.InvalidArgument, "listener is nil")
	}
	if err := c.checkTransportListener(); err != nil {
		return err
	}

	c.sessionQueueMu.Lock()
	c.nextSessionH++
	h := ListenerHandle(c.nextSessionH)
	c.sessionQueue = append(c.sessionQueue, sessionQueueEntry{handle: h, listener: l})
	c.sessionQueueMu.Unlock()

	c.transport.SetEnvelopeListener(c)
	return nil
}

func (c *ChannelBase) popSessionListener() SessionListener {
	c.sessionQueueMu.Lock()
	defer c.sessionQueueMu.Unlock()
	if len(c.sessionQueue) == 0 {
		return nil
	}
	head := c.sessionQueue[0]
	c.sessionQueue = c.sessionQueue[1:]
	return head.listener
}

// --- transport.EnvelopeListener ---

// OnReceive implements transport.EnvelopeListener: it is the single
// entry point every inbound envelope passes through, regardless of
// variant.
func (c *ChannelBase) OnReceive(e envelope.Envelope) {
	if c.fillEnvelopeRecipients {
		c.fillEnvelope(e, false)
	}

	switch v := e.(type) {
	case *envelope.Notification:
		c.raiseOnReceiveNotification(v)
	case *envelope.Message:
		c.raiseOnReceiveMessage(v)
	case *envelope.Command:
		c.raiseOnReceiveCommand(v)
	case *envelope.Session:
		c.raiseOnReceiveSession(v)
	default:
		slog.Warn("received envelope of unrecognized concrete type")
	}
}

func (c *ChannelBase) ensureSessionEstablished() error {
	if c.State() != envelope.SessionEstablished {
		return lerrors.Newf(lerrors.InvalidState, "cannot receive in the %q session state", c.State())
	}
	return nil
}

func (c *ChannelBase) raiseOnReceiveMessage(m *envelope.Message) {
	if err := c.ensureSessionEstablished(); err != nil {
		slog.Warn("dropped message envelope outside established state", "error", err)
		return
	}
	c.mu.Lock()
	listeners := c.messageListeners.snapshot()
	c.mu.Unlock()
	for _, l := range listeners {
		invokeSafely(func() { l.OnReceiveMessage(m) })
	}
}

func (c *ChannelBase) raiseOnReceiveNotification(n *envelope.Notification) {
	if err := c.ensureSessionEstablished(); err != nil {
		slog.Warn("dropped notification envelope outside established state", "error", err)
		return
	}
	c.mu.Lock()
	listeners := c.notificationListeners.snapshot()
	c.mu.Unlock()
	for _, l := range listeners {
		invokeSafely(func() { l.OnReceiveNotification(n) })
	}
}

func (c *ChannelBase) raiseOnReceiveCommand(cmd *envelope.Command) {
	if err := c.ensureSessionEstablished(); err != nil {
		slog.Warn("dropped command envelope outside established state", "error", err)
		return
	}

	if c.autoReplyPings && isPingRequest(cmd) {
		c.replyPing(cmd)
		return
	}

	c.mu.Lock()
	listeners := c.commandListeners.snapshot()
	c.mu.Unlock()
	for _, l := range listeners {
		invokeSafely(func() { l.OnReceiveCommand(cmd) })
	}
}

func (c *ChannelBase) raiseOnReceiveSession(s *envelope.Session) {
	if s.ID != "" && c.SessionID() == "" {
		c.setSessionID(s.ID)
	}

	// Detach based on the incoming session's own state, not the
	// channel's state before this envelope is applied: mid-handshake
	// states (negotiating/authenticating/...) detach until the driver
	// re-arms via EnqueueSessionListener, but reaching ESTABLISHED must
	// leave dispatch attached so Message/Notification/Command envelopes
	// keep flowing afterward.
	if s.State != envelope.SessionEstablished {
		c.transport.SetEnvelopeListener(nil)
	}

	if l := c.popSessionListener(); l != nil {
		invokeSafely(func() { l.OnReceiveSession(s) })
	}
}

func invokeSafely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("channel listener panicked", "panic", r)
		}
	}()
	fn()
}

// --- transport.StateListener ---

func (c *ChannelBase) OnClosing() {}

func (c *ChannelBase) OnClosed() {
	c.mu.Lock()
	c.transportClosed = true
	c.mu.Unlock()
}

// OnException implements the policy of spec.md §7: an *io* error
// observed on the reader flips the channel to FAILED and clears
// sessionID/localNode/remoteNode. Other kinds (serialization,
// buffer-overflow) still latch checkTransportListener but do not by
// themselves flip channel state — only the transport itself closes,
// per SPEC_FULL.md §10.4's reading of the original's SocketException
// special-case.
func (c *ChannelBase) OnException(err error) {
	c.mu.Lock()
	c.lastTransportErr = err
	if lerrors.Is(err, lerrors.IO) {
		c.state = envelope.SessionFailed
		c.localNode = nil
		c.remoteNode = nil
		c.sessionID = ""
	}
	c.mu.Unlock()
}
