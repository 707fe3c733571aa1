package channel

import "github.com/mbocsi/lime-go/envelope"

// ListenerHandle is the opaque registration token Add*Listener returns
// and Remove*Listener accepts. Go function values are not comparable
// and interface values compare by identity only when the underlying
// concrete type happens to be a pointer, so rather than lean on either
// (DESIGN NOTES, "avoid identity-based deduplication relying on
// host-language object identity"), registration returns an explicit
// handle the caller holds onto.
type ListenerHandle uint64

// MessageListener receives Message envelopes dispatched by a Channel.
type MessageListener interface {
	OnReceiveMessage(m *envelope.Message)
}

// MessageListenerFunc adapts a function to a MessageListener.
type MessageListenerFunc func(m *envelope.Message)

func (f MessageListenerFunc) OnReceiveMessage(m *envelope.Message) { f(m) }

// CommandListener receives Command envelopes dispatched by a Channel.
type CommandListener interface {
	OnReceiveCommand(c *envelope.Command)
}

// CommandListenerFunc adapts a function to a CommandListener.
type CommandListenerFunc func(c *envelope.Command)

func (f CommandListenerFunc) OnReceiveCommand(c *envelope.Command) { f(c) }

// NotificationListener receives Notification envelopes dispatched by a
// Channel.
type NotificationListener interface {
	OnReceiveNotification(n *envelope.Notification)
}

// NotificationListenerFunc adapts a function to a NotificationListener.
type NotificationListenerFunc func(n *envelope.Notification)

func (f NotificationListenerFunc) OnReceiveNotification(n *envelope.Notification) { f(n) }

// SessionListener receives Session envelopes. Unlike the three listener
// kinds above, session listeners are always single-shot and strictly
// FIFO: EnqueueSessionListener appends, and each inbound Session pops
// exactly the head of the queue.
type SessionListener interface {
	OnReceiveSession(s *envelope.Session)
}

// SessionListenerFunc adapts a function to a SessionListener.
type SessionListenerFunc func(s *envelope.Session)

func (f SessionListenerFunc) OnReceiveSession(s *envelope.Session) { f(s) }

// registry holds the long-lived listener set and the pending one-shot
// listeners for one envelope kind. Both are maps keyed by handle, so the
// order in which listeners are invoked is not defined. A single delivery
// drains every pending one-shot (each fires once on that delivery) and
// iterates the long-lived set — this mirrors the original's
// Channel.snapshot() helper.
type registry[T any] struct {
	nextHandle uint64
	longLived  map[ListenerHandle]T
	once       map[ListenerHandle]T
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{
		longLived: make(map[ListenerHandle]T),
		once:      make(map[ListenerHandle]T),
	}
}

func (r *registry[T]) add(l T, removeAfterReceive bool) ListenerHandle {
	r.nextHandle++
	h := ListenerHandle(r.nextHandle)
	if removeAfterReceive {
		r.once[h] = l
	} else {
		r.longLived[h] = l
	}
	return h
}

func (r *registry[T]) remove(h ListenerHandle) {
	if _, ok := r.longLived[h]; ok {
		delete(r.longLived, h)
		return
	}
	delete(r.once, h)
}

// snapshot returns every listener that should observe the next delivery
// (the long-lived bag plus every pending one-shot), then clears the
// once queue.
func (r *registry[T]) snapshot() []T {
	out := make([]T, 0, len(r.longLived)+len(r.once))
	for _, l := range r.longLived {
		out = append(out, l)
	}
	for _, l := range r.once {
		out = append(out, l)
	}
	clear(r.once)
	return out
}

// sessionQueueEntry pairs a handle with its listener so a caller could
// in principle cancel a still-pending enqueue (not exposed today, but
// keeps the slice homogeneous with the other registries).
type sessionQueueEntry struct {
	handle   ListenerHandle
	listener SessionListener
}
