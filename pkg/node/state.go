package node

import (
	"math"
	"net/netip"
	"sync"

	"github.com/cuemby/hypernet/pkg/types"
)

// State is everything a node knows. All access goes through the mutex; no
// method holds it across network I/O.
type State struct {
	mu        sync.Mutex
	self      types.Identity
	dimension int
	value     uint64
	peers     map[types.Label]netip.AddrPort
	seen      map[string]struct{}
}

// FloodStep is the outcome of applying one Propagate message
type FloodStep struct {
	// Value is the local value after the step
	Value uint64

	// Forward is set only on the first visit
	Forward bool

	// Payload is what to relay to the neighbors when Forward is set
	Payload uint64
}

// Snapshot is a consistent copy of the state
type Snapshot struct {
	Label     types.Label                    `json:"label"`
	Address   string                         `json:"address"`
	Dimension int                            `json:"dimension"`
	Value     uint64                         `json:"value"`
	Peers     map[types.Label]netip.AddrPort `json:"peers"`
}

// NewState creates the state of a freshly started node: value zero and an
// empty peer table
func NewState(self types.Identity, dimension int) *State {
	return &State{
		self:      self,
		dimension: dimension,
		peers:     make(map[types.Label]netip.AddrPort),
		seen:      make(map[string]struct{}),
	}
}

func (s *State) Self() types.Identity { return s.self }
func (s *State) Dimension() int       { return s.dimension }

func (s *State) Value() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *State) SetValue(v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}

// SetPeers overwrites the entries named in peers and leaves the others. It
// returns the size of the table afterwards.
func (s *State) SetPeers(peers []types.Peer) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range peers {
		s.peers[p.Label] = p.AddrPort()
	}
	return len(s.peers)
}

// Peers returns a copy of the peer table
func (s *State) Peers() map[types.Label]netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[types.Label]netip.AddrPort, len(s.peers))
	for l, a := range s.peers {
		out[l] = a
	}
	return out
}

// Peer resolves a label through the peer table
func (s *State) Peer(label types.Label) (types.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.peers[label]
	if !ok {
		return types.Identity{}, false
	}
	return types.NewIdentity(label, addr), true
}

// ApplyPropagate runs one step of the monotonic flood as a single
// check-and-set. An unvisited node (value 0) takes p+1 and must forward; a
// visited node adds p and stops. The origin of a seed forwards p unchanged so
// that its neighbors also end at p+1.
func (s *State) ApplyPropagate(sender types.Label, p uint64) FloodStep {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.value != 0 {
		s.value = saturatingAdd(s.value, p)
		return FloodStep{Value: s.value}
	}

	s.value = saturatingAdd(p, 1)
	payload := s.value
	if sender == types.NoLabel {
		payload = p
	}
	return FloodStep{Value: s.value, Forward: true, Payload: payload}
}

// MarkBroadcast records the broadcast id and takes its value if the id is
// new. It reports whether this was the first delivery.
func (s *State) MarkBroadcast(id string, value uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.value = value
	return true
}

// Snapshot returns a copy of the whole state
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := make(map[types.Label]netip.AddrPort, len(s.peers))
	for l, a := range s.peers {
		peers[l] = a
	}
	return Snapshot{
		Label:     s.self.Label,
		Address:   s.self.Address(),
		Dimension: s.dimension,
		Value:     s.value,
		Peers:     peers,
	}
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
