package topology

import (
	"errors"
	"fmt"
	"math/bits"
	"net/netip"

	"github.com/cuemby/hypernet/pkg/network"
	"github.com/cuemby/hypernet/pkg/types"
)

// MaxDimension caps d so that every label fits comfortably below NoLabel and
// a cube never asks for more ports than a host has.
const MaxDimension = 16

// ErrInsufficientAddresses is returned when the allocator cannot provide an
// address for every label
var ErrInsufficientAddresses = errors.New("insufficient addresses")

// Topology is an immutable d-dimensional hypercube: 2^d identities and the
// XOR adjacency between them.
type Topology struct {
	dimension int
	registry  []types.Identity // indexed by label
	adjacency map[types.Label][]types.Identity
}

// Build allocates 2^d addresses and assigns address[i] to label i. No partial
// topology is returned on failure.
func Build(d int, alloc network.Allocator) (*Topology, error) {
	if err := validateDimension(d); err != nil {
		return nil, err
	}

	n := Size(d)
	addrs, err := alloc.Allocate(n)
	if err != nil {
		return nil, fmt.Errorf("%w: dimension %d needs %d addresses: %w", ErrInsufficientAddresses, d, n, err)
	}
	if len(addrs) < n {
		return nil, fmt.Errorf("%w: dimension %d needs %d addresses, got %d", ErrInsufficientAddresses, d, n, len(addrs))
	}
	return FromAddresses(d, addrs[:n])
}

// FromAddresses builds the topology over an existing address assignment,
// such as one restored from storage. addrs[i] belongs to label i.
func FromAddresses(d int, addrs []netip.AddrPort) (*Topology, error) {
	if err := validateDimension(d); err != nil {
		return nil, err
	}
	n := Size(d)
	if len(addrs) != n {
		return nil, fmt.Errorf("dimension %d needs %d addresses, got %d", d, n, len(addrs))
	}

	t := &Topology{
		dimension: d,
		registry:  make([]types.Identity, n),
		adjacency: make(map[types.Label][]types.Identity, n),
	}
	for i, addr := range addrs {
		t.registry[i] = types.NewIdentity(types.Label(i), addr)
	}

	// XOR is self-inverse, so adjacency is symmetric without a second pass
	for i := 0; i < n; i++ {
		label := types.Label(i)
		neighbors := make([]types.Identity, 0, d)
		for _, nl := range NeighborLabels(label, d) {
			neighbors = append(neighbors, t.registry[nl])
		}
		t.adjacency[label] = neighbors
	}
	return t, nil
}

func validateDimension(d int) error {
	if d < 0 || d > MaxDimension {
		return fmt.Errorf("dimension %d out of range [0, %d]", d, MaxDimension)
	}
	return nil
}

// Size returns the number of nodes in a cube of dimension d
func Size(d int) int {
	return 1 << d
}

// Dimension returns d
func (t *Topology) Dimension() int {
	return t.dimension
}

// Size returns 2^d
func (t *Topology) Size() int {
	return len(t.registry)
}

// Contains reports whether label names a node of this cube
func (t *Topology) Contains(label types.Label) bool {
	return int64(label) < int64(len(t.registry))
}

// Identity returns the identity registered for label
func (t *Topology) Identity(label types.Label) (types.Identity, bool) {
	if !t.Contains(label) {
		return types.Identity{}, false
	}
	return t.registry[label], true
}

// Identities returns every identity in label order
func (t *Topology) Identities() []types.Identity {
	out := make([]types.Identity, len(t.registry))
	copy(out, t.registry)
	return out
}

// Labels returns every label in ascending order
func (t *Topology) Labels() []types.Label {
	out := make([]types.Label, len(t.registry))
	for i := range t.registry {
		out[i] = types.Label(i)
	}
	return out
}

// Addresses returns the address assignment in label order
func (t *Topology) Addresses() []netip.AddrPort {
	out := make([]netip.AddrPort, len(t.registry))
	for i, id := range t.registry {
		out[i] = id.Addr
	}
	return out
}

// Neighbors returns the d identities adjacent to label, ordered by the bit
// they differ in
func (t *Topology) Neighbors(label types.Label) []types.Identity {
	neighbors, ok := t.adjacency[label]
	if !ok {
		return nil
	}
	out := make([]types.Identity, len(neighbors))
	copy(out, neighbors)
	return out
}

// Peers returns label's neighbor list in wire form, as sent in SetPeerInfo
func (t *Topology) Peers(label types.Label) []types.Peer {
	neighbors := t.adjacency[label]
	peers := make([]types.Peer, 0, len(neighbors))
	for _, n := range neighbors {
		peers = append(peers, n.Peer())
	}
	return peers
}

// NeighborLabels returns label ^ (1<<k) for k in [0, d)
func NeighborLabels(label types.Label, d int) []types.Label {
	out := make([]types.Label, 0, d)
	for k := 0; k < d; k++ {
		out = append(out, label^(1<<k))
	}
	return out
}

// IsValidLabel reports whether label names a node of a d-cube
func IsValidLabel(label types.Label, d int) bool {
	return d >= 0 && d <= MaxDimension && int64(label) < int64(Size(d))
}

// IsNeighbor reports whether a and b differ in exactly one bit
func IsNeighbor(a, b types.Label) bool {
	return HammingDistance(a, b) == 1
}

// HammingDistance counts the bits in which a and b differ, which is also the
// hop distance between them in the cube
func HammingDistance(a, b types.Label) int {
	return bits.OnesCount32(uint32(a ^ b))
}

// BroadcastChildren returns the labels self relays a broadcast from origin
// to. Relative to the origin, a node forwards along every dimension above the
// highest bit set in its own relative label, which yields a binomial spanning
// tree: each node is reached exactly once, in at most d hops.
func BroadcastChildren(self, origin types.Label, d int) []types.Label {
	rel := uint32(self ^ origin)
	first := bits.Len32(rel) // dimensions below this were already covered
	if first >= d {
		return nil
	}
	children := make([]types.Label, 0, d-first)
	for k := first; k < d; k++ {
		children = append(children, self^(1<<k))
	}
	return children
}

// SubtreeHeight is the number of relay levels below self in the broadcast
// tree rooted at origin
func SubtreeHeight(self, origin types.Label, d int) int {
	h := d - bits.Len32(uint32(self^origin))
	if h < 0 {
		return 0
	}
	return h
}

// Subtree returns self and every label below it in the broadcast tree rooted
// at origin, in ascending relative order
func Subtree(self, origin types.Label, d int) []types.Label {
	first := bits.Len32(uint32(self ^ origin))
	if first > d {
		return []types.Label{self}
	}
	out := make([]types.Label, 0, 1<<(d-first))
	for m := uint32(0); m < 1<<(d-first); m++ {
		out = append(out, self^types.Label(m<<first))
	}
	return out
}
