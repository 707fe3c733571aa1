package client

import (
	"sync"
	"testing"

	"github.com/mbocsi/lime-go/channel"
	"github.com/mbocsi/lime-go/envelope"
	lerrors "github.com/mbocsi/lime-go/internal/errors"
	"github.com/mbocsi/lime-go/transport"
)

// fakeTransport mirrors channel's test double; client needs its own
// since the two are separate packages and the double is unexported.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []envelope.Envelope
	listener transport.EnvelopeListener
}

func (f *fakeTransport) Open(uri string) error { return nil }

func (f *fakeTransport) Send(e envelope.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e)
	return nil
}

func (f *fakeTransport) SetEncryption(enc envelope.EncryptionOption) error { return nil }

func (f *fakeTransport) SetEnvelopeListener(l transport.EnvelopeListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

func (f *fakeTransport) SetStateListener(l transport.StateListener) {}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) GetSupportedEncryption() []envelope.EncryptionOption {
	return []envelope.EncryptionOption{envelope.EncryptionNone, envelope.EncryptionTLS}
}

func (f *fakeTransport) deliver(e envelope.Envelope) {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()
	if l != nil {
		l.OnReceive(e)
	}
}

func (f *fakeTransport) lastSent() envelope.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestClient() (*ClientChannel, *fakeTransport) {
	ft := &fakeTransport{}
	cc := NewClientChannel(channel.NewChannelBase(ft))
	return cc, ft
}

// Scenario 1: start new session.
func TestClientChannel_StartNewSession(t *testing.T) {
	cc, ft := newTestClient()

	var gotID string
	cc.EnqueueSessionListener(channel.SessionListenerFunc(func(s *envelope.Session) {
		cc.applyInbound(s)
		gotID = s.ID
	}))

	if err := cc.StartNewSession(); err != nil {
		t.Fatalf("StartNewSession: %v", err)
	}

	sent := ft.lastSent().(*envelope.Session)
	if sent.State != envelope.SessionNew {
		t.Fatalf("expected outbound state new, got %q", sent.State)
	}
	if ft.sentCount() != 1 {
		t.Fatalf("expected exactly one outbound session, got %d", ft.sentCount())
	}

	ft.deliver(&envelope.Session{Base: envelope.Base{ID: "S1"}, State: envelope.SessionAuthenticating})

	if cc.State() != envelope.SessionAuthenticating {
		t.Fatalf("expected state authenticating, got %q", cc.State())
	}
	if gotID != "S1" {
		t.Fatalf("expected session listener to observe id S1, got %q", gotID)
	}
	if cc.SessionID() != "S1" {
		t.Fatalf("expected sessionId S1, got %q", cc.SessionID())
	}
}

// Scenario 2: negotiate.
func TestClientChannel_NegotiateSession(t *testing.T) {
	cc, ft := newTestClient()
	cc.ChannelBase.SetState(envelope.SessionNegotiating)

	var fired int
	cc.EnqueueSessionListener(channel.SessionListenerFunc(func(s *envelope.Session) { fired++ }))

	if err := cc.NegotiateSession(envelope.CompressionGzip, envelope.EncryptionTLS); err != nil {
		t.Fatalf("NegotiateSession: %v", err)
	}

	sent := ft.lastSent().(*envelope.Session)
	if sent.State != envelope.SessionNegotiating || sent.Compression != envelope.CompressionGzip || sent.Encryption != envelope.EncryptionTLS {
		t.Fatalf("unexpected outbound session %+v", sent)
	}

	ft.deliver(&envelope.Session{Base: envelope.Base{ID: "S1"}, State: envelope.SessionNegotiating})
	if fired != 1 {
		t.Fatalf("expected session listener to fire once, got %d", fired)
	}
}

// Scenario 3: authenticate plain.
func TestClientChannel_AuthenticateSessionPlain(t *testing.T) {
	cc, ft := newTestClient()
	cc.ChannelBase.SetState(envelope.SessionAuthenticating)
	cc.EnqueueSessionListener(channel.SessionListenerFunc(func(s *envelope.Session) { cc.applyInbound(s) }))

	identity := envelope.Identity{Name: "u", Domain: "d"}
	auth := envelope.PlainAuthentication{Password: []byte("pw")}

	if err := cc.AuthenticateSession(identity, auth, "h1"); err != nil {
		t.Fatalf("AuthenticateSession: %v", err)
	}

	sent := ft.lastSent().(*envelope.Session)
	if sent.From == nil || sent.From.String() != "u@d/h1" {
		t.Fatalf("expected from u@d/h1, got %v", sent.From)
	}
	plain, ok := sent.Authentication.(envelope.PlainAuthentication)
	if !ok {
		t.Fatalf("expected PlainAuthentication, got %T", sent.Authentication)
	}
	if string(plain.Password) != "pw" {
		t.Fatalf("expected password pw, got %q", plain.Password)
	}

	ft.deliver(&envelope.Session{Base: envelope.Base{ID: "S1"}, State: envelope.SessionEstablished})
	if cc.State() != envelope.SessionEstablished {
		t.Fatalf("expected established, got %q", cc.State())
	}
}

func TestClientChannel_DriverCallsRejectWrongOriginState(t *testing.T) {
	cc, _ := newTestClient()

	if err := cc.NegotiateSession(envelope.CompressionNone, envelope.EncryptionNone); !lerrors.Is(err, lerrors.InvalidState) {
		t.Fatalf("expected InvalidState from NEW, got %v", err)
	}
	if err := cc.AuthenticateSession(envelope.Identity{Name: "a", Domain: "b"}, envelope.GuestAuthentication{}, ""); !lerrors.Is(err, lerrors.InvalidState) {
		t.Fatalf("expected InvalidState from NEW, got %v", err)
	}
	if err := cc.SendFinishingSession(); !lerrors.Is(err, lerrors.InvalidState) {
		t.Fatalf("expected InvalidState from NEW, got %v", err)
	}
}

// Scenario 4: send received notification, legal only in ESTABLISHED.
func TestClientChannel_SendReceivedNotification(t *testing.T) {
	cc, ft := newTestClient()

	err := cc.SendReceivedNotification("M1", envelope.Node{Name: "a", Domain: "b"})
	if !lerrors.Is(err, lerrors.InvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
	if ft.sentCount() != 0 {
		t.Fatalf("expected nothing written, got %d sends", ft.sentCount())
	}

	cc.ChannelBase.SetState(envelope.SessionEstablished)
	if err := cc.SendReceivedNotification("M1", envelope.Node{Name: "a", Domain: "b"}); err != nil {
		t.Fatalf("SendReceivedNotification: %v", err)
	}
	sent := ft.lastSent().(*envelope.Notification)
	if sent.ID != "M1" || sent.Event != envelope.EventReceived || sent.To.String() != "a@b" {
		t.Fatalf("unexpected notification %+v", sent)
	}
}

func TestEstablishSession_HappyPath(t *testing.T) {
	cc, ft := newTestClient()

	established := make(chan *envelope.Session, 1)
	failed := make(chan error, 1)

	opts := EstablishOptions{
		Identity:       envelope.Identity{Name: "u", Domain: "d"},
		Authentication: envelope.PlainAuthentication{Password: []byte("pw")},
		Instance:       "h1",
		Negotiation:    NegotiationChoice{Auto: true},
	}

	if err := cc.EstablishSession(opts, SessionListenerFuncs{
		ReceiveFunc: func(s *envelope.Session) { established <- s },
		FailureFunc: func(err error) { failed <- err },
	}); err != nil {
		t.Fatalf("EstablishSession: %v", err)
	}

	// server offers negotiating
	ft.deliver(&envelope.Session{
		Base:               envelope.Base{ID: "S1"},
		State:              envelope.SessionNegotiating,
		CompressionOptions: []envelope.CompressionOption{envelope.CompressionNone},
		EncryptionOptions:  []envelope.EncryptionOption{envelope.EncryptionNone},
	})
	// server accepts negotiation, moves to authenticating
	ft.deliver(&envelope.Session{Base: envelope.Base{ID: "S1"}, State: envelope.SessionAuthenticating})
	// server establishes
	ft.deliver(&envelope.Session{Base: envelope.Base{ID: "S1"}, State: envelope.SessionEstablished})

	select {
	case s := <-established:
		if s.ID != "S1" {
			t.Fatalf("expected session id S1, got %q", s.ID)
		}
	case err := <-failed:
		t.Fatalf("unexpected failure: %v", err)
	}

	if cc.State() != envelope.SessionEstablished {
		t.Fatalf("expected established, got %q", cc.State())
	}
}

func TestEstablishSession_ServerFailsSession(t *testing.T) {
	cc, ft := newTestClient()

	failed := make(chan error, 1)
	opts := EstablishOptions{
		Identity:       envelope.Identity{Name: "u", Domain: "d"},
		Authentication: envelope.GuestAuthentication{},
	}

	if err := cc.EstablishSession(opts, SessionListenerFuncs{
		FailureFunc: func(err error) { failed <- err },
	}); err != nil {
		t.Fatalf("EstablishSession: %v", err)
	}

	ft.deliver(&envelope.Session{
		Base:   envelope.Base{ID: "S1"},
		State:  envelope.SessionFailed,
		Reason: &envelope.Reason{Code: 1, Description: "denied"},
	})

	select {
	case err := <-failed:
		if !lerrors.Is(err, lerrors.InvalidState) {
			t.Fatalf("expected InvalidState-wrapped failure, got %v", err)
		}
	default:
		t.Fatal("expected OnFailure to be invoked synchronously")
	}
}

func TestPickCompression_AutoNeverSelectsACodecThatCannotRun(t *testing.T) {
	offered := []envelope.CompressionOption{envelope.CompressionGzip, envelope.CompressionNone}

	got := pickCompression(NegotiationChoice{Auto: true}, offered)
	if got != envelope.CompressionNone {
		t.Fatalf("auto negotiation picked %q, want none", got)
	}

	got = pickCompression(NegotiationChoice{}, offered)
	if got != envelope.CompressionNone {
		t.Fatalf("zero-value choice picked %q, want none", got)
	}
}

func TestPickCompression_ExplicitNonAutoChoiceWins(t *testing.T) {
	choice := NegotiationChoice{Compression: envelope.CompressionGzip}
	got := pickCompression(choice, []envelope.CompressionOption{envelope.CompressionGzip})
	if got != envelope.CompressionGzip {
		t.Fatalf("explicit choice was overridden: got %q", got)
	}
}
