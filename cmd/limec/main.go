// Command limec is the sample CLI driver for the LIME client: it
// connects, establishes a session, then relays stdin lines as Messages
// and prints everything it receives.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/mbocsi/lime-go/channel"
	"github.com/mbocsi/lime-go/client"
	"github.com/mbocsi/lime-go/envelope"
	"github.com/mbocsi/lime-go/internal/config"
	"github.com/mbocsi/lime-go/serialization"
	"github.com/mbocsi/lime-go/transport"
)

func main() {
	setupLogger()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	identity, err := envelope.ParseIdentity(cfg.Identity)
	if err != nil {
		slog.Error("invalid identity", "error", err)
		os.Exit(1)
	}

	var trace transport.TraceWriter
	if cfg.TraceEnabled {
		trace = transport.NewZerologTraceWriter(true)
	}

	tcp := transport.NewTCPTransport(
		serialization.NewJSONEnvelopeSerializer(),
		transport.WithTraceWriter(trace),
	)

	ch := channel.NewChannelBase(tcp,
		channel.WithFillEnvelopeRecipients(true),
		channel.WithAutoReplyPings(true),
	)
	cc := client.NewClientChannel(ch)

	if err := tcp.Open(cfg.URI); err != nil {
		slog.Error("failed to open transport", "error", err)
		os.Exit(1)
	}

	if cfg.DiagnosticsAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.DiagnosticsAddr, diagnosticsRoutes(cc)); err != nil {
				slog.Error("diagnostics server stopped", "error", err)
			}
		}()
	}

	established := make(chan struct{})
	opts := client.EstablishOptions{
		Identity:       identity,
		Authentication: envelope.PlainAuthentication{Password: []byte(cfg.Password)},
		Instance:       cfg.Instance,
		Negotiation: client.NegotiationChoice{
			Compression: envelope.CompressionOption(cfg.Compression),
			Encryption:  envelope.EncryptionOption(cfg.Encryption),
			Auto:        cfg.Compression == "auto" || cfg.Encryption == "auto",
		},
		ReceiveTimeout: cfg.ReceiveTimeout,
	}

	err = cc.EstablishSession(opts, client.SessionListenerFuncs{
		ReceiveFunc: func(s *envelope.Session) {
			slog.Info("session established", "sessionId", s.ID)
			close(established)
		},
		FailureFunc: func(err error) {
			slog.Error("session establishment failed", "error", err)
			os.Exit(1)
		},
	})
	if err != nil {
		slog.Error("failed to start session establishment", "error", err)
		os.Exit(1)
	}

	<-established

	ch.AddMessageListener(channel.MessageListenerFunc(func(m *envelope.Message) {
		fmt.Printf("< %s: %s\n", m.From, string(m.Content))
	}), false)
	ch.AddNotificationListener(channel.NotificationListenerFunc(func(n *envelope.Notification) {
		fmt.Printf("< notification %s from %s\n", n.Event, n.From)
	}), false)
	ch.AddCommandListener(channel.CommandListenerFunc(func(c *envelope.Command) {
		fmt.Printf("< command %s %s\n", c.Method, c.URI)
	}), false)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		msg := &envelope.Message{
			Base: envelope.Base{ID: uuid.NewString()},
			Type: "text/plain",
			Content: []byte(`"` + line + `"`),
		}
		if err := ch.SendMessage(msg); err != nil {
			slog.Error("failed to send message", "error", err)
		}
	}

	_ = cc.SendFinishingSession()
	_ = tcp.Close()
}

func setupLogger() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	slog.SetDefault(slog.New(handler))
}
