package envelope

import (
	"encoding/json"
	"strings"

	lerrors "github.com/mbocsi/lime-go/internal/errors"
)

// Node addresses a peer on the LIME network as name@domain/instance. Name
// and instance are optional; domain is required for a non-empty node.
type Node struct {
	Name     string
	Domain   string
	Instance string
}

// Identity is the (name, domain) pair that identifies an account,
// independent of the connected instance.
type Identity struct {
	Name   string
	Domain string
}

func (i Identity) String() string {
	if i.Name == "" {
		return i.Domain
	}
	return i.Name + "@" + i.Domain
}

// ParseIdentity parses a "name@domain" string.
func ParseIdentity(s string) (Identity, error) {
	if s == "" {
		return Identity{}, lerrors.New(lerrors.InvalidArgument, "identity string is empty")
	}
	name, domain, found := strings.Cut(s, "@")
	if !found {
		// no '@' found: strings.Cut puts the whole string in name
		name, domain = "", name
	}
	return Identity{Name: name, Domain: domain}, nil
}

func (n Node) Identity() Identity {
	return Identity{Name: n.Name, Domain: n.Domain}
}

// Copy returns a value copy of the node. Node is already a value type in
// Go, so Copy exists to mirror the explicit copy semantics spec.md calls
// out for Node (the original keeps defensive copies when filling envelope
// recipients); callers that want an independent value can just use it
// directly, but fillEnvelope calls Copy() to document the intent.
func (n Node) Copy() Node { return n }

// IsEmpty reports whether the node carries no information at all.
func (n Node) IsEmpty() bool {
	return n.Name == "" && n.Domain == "" && n.Instance == ""
}

// String renders the node as "name@domain/instance", omitting the parts
// that are empty, per spec.md §6's Node syntax.
func (n Node) String() string {
	if n.IsEmpty() {
		return ""
	}
	var b strings.Builder
	if n.Name != "" {
		b.WriteString(n.Name)
		b.WriteByte('@')
	}
	b.WriteString(n.Domain)
	if n.Instance != "" {
		b.WriteByte('/')
		b.WriteString(n.Instance)
	}
	return b.String()
}

// ParseNode parses "name@domain/instance". Name and "/instance" are
// optional. ParseNode and Node.String are inverses on valid inputs.
func ParseNode(s string) (Node, error) {
	if s == "" {
		return Node{}, nil
	}

	rest := s
	var name string
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		name = rest[:at]
		rest = rest[at+1:]
	}

	domain := rest
	var instance string
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		domain = rest[:slash]
		instance = rest[slash+1:]
	}

	if domain == "" {
		return Node{}, lerrors.Newf(lerrors.InvalidArgument, "malformed node %q: missing domain", s)
	}

	return Node{Name: name, Domain: domain, Instance: instance}, nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	if n.IsEmpty() {
		return []byte("null"), nil
	}
	return json.Marshal(n.String())
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*n = Node{}
		return nil
	}
	parsed, err := ParseNode(s)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
