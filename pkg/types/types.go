package types

import (
	"fmt"
	"math"
	"net/netip"
	"time"
)

// Label identifies a node's position in the hypercube. Labels are plain
// integers in [0, 2^d).
type Label uint32

// NoLabel marks a request that was not sent by any node (the coordinator).
const NoLabel Label = math.MaxUint32

// String renders the label in decimal
func (l Label) String() string {
	if l == NoLabel {
		return "none"
	}
	return fmt.Sprintf("%d", uint32(l))
}

// Bits renders the label as a d-bit binary string
func (l Label) Bits(dimension int) string {
	if dimension == 0 {
		return "-"
	}
	return fmt.Sprintf("%0*b", dimension, uint32(l))
}

// Identity binds a label to the network address its node listens on.
// Two identities are the same node iff their labels match; the address is
// metadata.
type Identity struct {
	Label Label
	Addr  netip.AddrPort
}

// NewIdentity creates an identity
func NewIdentity(label Label, addr netip.AddrPort) Identity {
	return Identity{Label: label, Addr: addr}
}

// Equal reports whether both identities name the same node
func (i Identity) Equal(other Identity) bool {
	return i.Label == other.Label
}

// Address returns the dialable host:port string
func (i Identity) Address() string {
	return i.Addr.String()
}

// Peer returns the wire form of the identity
func (i Identity) Peer() Peer {
	return Peer{Label: i.Label, IP: i.Addr.Addr(), Port: i.Addr.Port()}
}

func (i Identity) String() string {
	return fmt.Sprintf("%s@%s", i.Label, i.Addr)
}

// Peer is one entry of a node's peer-info table as carried on the wire
type Peer struct {
	Label Label
	IP    netip.Addr
	Port  uint16
}

// AddrPort joins the peer's IP and port
func (p Peer) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(p.IP, p.Port)
}

// Identity converts the peer back into an identity
func (p Peer) Identity() Identity {
	return Identity{Label: p.Label, Addr: p.AddrPort()}
}

// NodeStatus is the coordinator's view of a launched node
type NodeStatus string

const (
	NodeStatusPending NodeStatus = "pending"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusReady   NodeStatus = "ready"
	NodeStatusStopped NodeStatus = "stopped"
	NodeStatusFailed  NodeStatus = "failed"
)

// NodeRecord is the coordinator's persisted view of one launched node
type NodeRecord struct {
	Label     Label          `json:"label"`
	Addr      netip.AddrPort `json:"addr"`
	AdminAddr string         `json:"admin_addr,omitempty"`
	PID       int            `json:"pid,omitempty"`
	Status    NodeStatus     `json:"status"`
}

// Identity returns the node's label bound to its protocol address
func (n NodeRecord) Identity() Identity {
	return Identity{Label: n.Label, Addr: n.Addr}
}

// Cube is a launched hypercube as recorded between CLI invocations. Nodes
// are indexed by label.
type Cube struct {
	Name      string       `json:"name"`
	Dimension int          `json:"dimension"`
	CreatedAt time.Time    `json:"created_at"`
	Nodes     []NodeRecord `json:"nodes"`
}

// Addresses returns the protocol address of every node in label order
func (c *Cube) Addresses() []netip.AddrPort {
	out := make([]netip.AddrPort, len(c.Nodes))
	for i, n := range c.Nodes {
		out[i] = n.Addr
	}
	return out
}
