package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbocsi/lime-go/envelope"
	lerrors "github.com/mbocsi/lime-go/internal/errors"
)

// newWSLoopback starts an httptest server that upgrades every request to
// a WebSocket and hands the resulting server-side conn to the returned
// channel, for tests that need to write/read raw frames against it.
func newWSLoopback(t *testing.T) (string, <-chan *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	uri := "net.ws://" + strings.TrimPrefix(srv.URL, "http://")
	return uri, conns
}

func TestWSTransport_OpenRejectsWrongScheme(t *testing.T) {
	tr := NewWSTransport(nil)
	err := tr.Open("net.tcp://localhost:1234")
	if !lerrors.Is(err, lerrors.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestWSTransport_SendAndReceive(t *testing.T) {
	uri, conns := newWSLoopback(t)

	client := NewWSTransport(nil)
	if err := client.Open(uri); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer client.Close()

	serverConn := <-conns
	defer serverConn.Close()

	received := make(chan envelope.Envelope, 1)
	client.SetEnvelopeListener(EnvelopeListenerFunc(func(e envelope.Envelope) {
		received <- e
	}))

	if err := serverConn.WriteMessage(websocket.TextMessage, []byte(`{"id":"m1","content":"hello"}`)); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case e := <-received:
		m, ok := e.(*envelope.Message)
		if !ok {
			t.Fatalf("expected *envelope.Message, got %T", e)
		}
		if m.ID != "m1" {
			t.Fatalf("got id %q, want m1", m.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}

	n := &envelope.Notification{Base: envelope.Base{ID: "m1"}, Event: envelope.EventReceived}
	if err := client.Send(n); err != nil {
		t.Fatalf("Send: %v", err)
	}

	serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := serverConn.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if !strings.Contains(string(data), `"event":"received"`) {
		t.Fatalf("unexpected wire frame %s", data)
	}
}

func TestWSTransport_SetEncryptionCannotUpgradeInBand(t *testing.T) {
	uri, conns := newWSLoopback(t)

	client := NewWSTransport(nil)
	if err := client.Open(uri); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer client.Close()
	serverConn := <-conns
	defer serverConn.Close()

	err := client.SetEncryption(envelope.EncryptionTLS)
	if !lerrors.Is(err, lerrors.InvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestWSTransport_SendFailsWhenNotOpen(t *testing.T) {
	client := NewWSTransport(nil)
	err := client.Send(&envelope.Notification{Event: envelope.EventReceived})
	if !lerrors.Is(err, lerrors.InvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}
