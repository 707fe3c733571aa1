package channel

import (
	"encoding/json"
	"log/slog"

	"github.com/mbocsi/lime-go/envelope"
)

// isPingRequest reports whether cmd is a protocol-level keepalive ping:
// an id-bearing GET request (no status yet) against "/ping".
func isPingRequest(cmd *envelope.Command) bool {
	return cmd.ID != "" &&
		cmd.Method == envelope.MethodGet &&
		cmd.Status == "" &&
		cmd.URI == pingURI
}

// replyPing answers req in lieu of dispatching it to command
// subscribers: same id, addressed back to the requester, success status,
// and an empty ping resource document.
func (c *ChannelBase) replyPing(req *envelope.Command) {
	var to *envelope.Node
	if req.From != nil {
		n := req.From.Copy()
		to = &n
	}
	resp := &envelope.Command{
		Base: envelope.Base{
			ID: req.ID,
			To: to,
		},
		Method:   envelope.MethodGet,
		Type:     pingMediaType,
		Resource: json.RawMessage("{}"),
		Status:   envelope.StatusSuccess,
	}
	if err := c.send(resp); err != nil {
		slog.Warn("failed to answer ping", "error", err)
	}
}
