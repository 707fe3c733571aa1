package channel

import "github.com/mbocsi/lime-go/envelope"

// fillEnvelope backfills an envelope's from/to node from the channel's
// remote/local node, per spec.md §4.C's dispatch rule. outbound selects
// which side is "us" and which is "the peer": for an outbound envelope,
// from is local and to is remote; for an inbound envelope, from is
// remote and to is local.
func (c *ChannelBase) fillEnvelope(e envelope.Envelope, outbound bool) {
	base := e.BaseEnvelope()

	local := c.LocalNode()
	remote := c.RemoteNode()

	fromNode, toNode := remote, local
	if outbound {
		fromNode, toNode = local, remote
	}

	fillSide(&base.From, fromNode)
	fillSide(&base.To, toNode)
}

// fillSide copies ref into *side when *side is missing entirely, or
// backfills just the domain when *side is present but domain-less.
func fillSide(side **envelope.Node, ref *envelope.Node) {
	if ref == nil {
		return
	}
	if *side == nil {
		n := ref.Copy()
		*side = &n
		return
	}
	if (*side).Domain == "" {
		(*side).Domain = ref.Domain
	}
}
