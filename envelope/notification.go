package envelope

// NotificationEvent enumerates the lifecycle events a Notification can
// report about a previously sent Message.
type NotificationEvent string

const (
	EventAccepted  NotificationEvent = "accepted"
	EventDispatched NotificationEvent = "dispatched"
	EventReceived   NotificationEvent = "received"
	EventConsumed   NotificationEvent = "consumed"
	EventFailed     NotificationEvent = "failed"
)

// Notification reports delivery progress of a previously sent Message.
// event's presence is the wire discriminator for this kind.
type Notification struct {
	Base
	Event  NotificationEvent `json:"event"`
	Reason *Reason           `json:"reason,omitempty"`
}
