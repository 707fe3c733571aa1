package channel

import (
	"github.com/mbocsi/lime-go/envelope"
)

// SendReceivedNotification sends the "received" lifecycle notification
// for a previously received message id, addressed to to. Legal only in
// ESTABLISHED, per spec.md §8 scenario 4.
func (c *ChannelBase) SendReceivedNotification(id string, to envelope.Node) error {
	toCopy := to.Copy()
	return c.SendNotification(&envelope.Notification{
		Base:  envelope.Base{ID: id, To: &toCopy},
		Event: envelope.EventReceived,
	})
}
