package node

import (
	"math"
	"net/netip"
	"testing"

	"github.com/cuemby/hypernet/pkg/topology"
	"github.com/cuemby/hypernet/pkg/types"
	"github.com/stretchr/testify/assert"
)

func newTestState(label types.Label, d int) *State {
	return NewState(types.NewIdentity(label, netip.MustParseAddrPort("127.0.0.1:8000")), d)
}

func TestApplyPropagate(t *testing.T) {
	tests := []struct {
		name   string
		start  uint64
		sender types.Label
		p      uint64
		want   FloodStep
	}{
		{
			name:   "seed at origin relays its payload",
			sender: types.NoLabel,
			p:      0,
			want:   FloodStep{Value: 1, Forward: true, Payload: 0},
		},
		{
			name:   "first visit from a neighbor relays the new value",
			sender: 1,
			p:      1,
			want:   FloodStep{Value: 2, Forward: true, Payload: 2},
		},
		{
			name:   "revisit adds without forwarding",
			start:  2,
			sender: 4,
			p:      3,
			want:   FloodStep{Value: 5},
		},
		{
			name:   "revisit with zero payload",
			start:  1,
			sender: 4,
			p:      0,
			want:   FloodStep{Value: 1},
		},
		{
			name:   "saturates",
			start:  math.MaxUint64 - 1,
			sender: 2,
			p:      10,
			want:   FloodStep{Value: math.MaxUint64},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState(0, 3)
			s.SetValue(tt.start)
			assert.Equal(t, tt.want, s.ApplyPropagate(tt.sender, tt.p))
			assert.Equal(t, tt.want.Value, s.Value())
		})
	}
}

type floodMsg struct {
	to, from types.Label
	value    uint64
}

type floodResult struct {
	values     map[types.Label]uint64
	firstVisit map[types.Label]uint64 // value set by the arrival that forwarded
	delivered  int
}

// simulateFlood runs the flood over in-memory states with a FIFO delivery
// order
func simulateFlood(d int, origin types.Label) floodResult {
	states := make(map[types.Label]*State)
	for l := 0; l < topology.Size(d); l++ {
		states[types.Label(l)] = newTestState(types.Label(l), d)
	}

	res := floodResult{
		values:     make(map[types.Label]uint64),
		firstVisit: make(map[types.Label]uint64),
	}
	queue := []floodMsg{{to: origin, from: types.NoLabel, value: 0}}
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		res.delivered++

		step := states[m.to].ApplyPropagate(m.from, m.value)
		if !step.Forward {
			continue
		}
		res.firstVisit[m.to] = step.Value
		for _, n := range topology.NeighborLabels(m.to, d) {
			if n != m.from {
				queue = append(queue, floodMsg{to: n, from: m.to, value: step.Payload})
			}
		}
	}

	for l, s := range states {
		res.values[l] = s.Value()
	}
	return res
}

func TestFloodFixedOrder(t *testing.T) {
	t.Run("one dimension", func(t *testing.T) {
		res := simulateFlood(1, 0)
		assert.Equal(t, map[types.Label]uint64{0: 1, 1: 1}, res.values)
	})

	t.Run("three dimensions", func(t *testing.T) {
		res := simulateFlood(3, 0)
		assert.Len(t, res.firstVisit, 8)
		for l, v := range res.values {
			assert.NotZero(t, v, "node %d not visited", l)
		}
		assert.Equal(t, uint64(1), res.values[0])

		// single hop from the origin, before any duplicate arrives
		for _, l := range []types.Label{1, 2, 4} {
			assert.Equal(t, uint64(1), res.firstVisit[l], "neighbor %d", l)
		}

		// each node forwards once, to every neighbor but its sender
		assert.Equal(t, 1+3+7*2, res.delivered)

		again := simulateFlood(3, 0)
		assert.Equal(t, res.values, again.values)
	})

	t.Run("any origin visits every node", func(t *testing.T) {
		for origin := types.Label(0); origin < 16; origin++ {
			res := simulateFlood(4, origin)
			assert.Len(t, res.values, 16)
			for l, v := range res.values {
				assert.NotZero(t, v, "origin %d: node %d not visited", origin, l)
			}
			assert.Equal(t, uint64(1), res.values[origin])
			for _, n := range topology.NeighborLabels(origin, 4) {
				assert.Equal(t, uint64(1), res.firstVisit[n], "origin %d: neighbor %d", origin, n)
			}
		}
	})
}

func TestSetPeersOverwrites(t *testing.T) {
	s := newTestState(0, 3)

	n := s.SetPeers([]types.Peer{
		{Label: 1, IP: netip.MustParseAddr("127.0.0.1"), Port: 8001},
		{Label: 2, IP: netip.MustParseAddr("127.0.0.1"), Port: 8002},
	})
	assert.Equal(t, 2, n)

	n = s.SetPeers([]types.Peer{{Label: 1, IP: netip.MustParseAddr("10.0.0.1"), Port: 9001}})
	assert.Equal(t, 2, n)

	assert.Equal(t, map[types.Label]netip.AddrPort{
		1: netip.MustParseAddrPort("10.0.0.1:9001"),
		2: netip.MustParseAddrPort("127.0.0.1:8002"),
	}, s.Peers())

	id, ok := s.Peer(2)
	assert.True(t, ok)
	assert.Equal(t, types.Label(2), id.Label)

	_, ok = s.Peer(4)
	assert.False(t, ok)
}

func TestPeersReturnsCopy(t *testing.T) {
	s := newTestState(0, 1)
	s.SetPeers([]types.Peer{{Label: 1, IP: netip.MustParseAddr("127.0.0.1"), Port: 8001}})

	peers := s.Peers()
	delete(peers, 1)
	assert.Len(t, s.Peers(), 1)
}

func TestMarkBroadcast(t *testing.T) {
	s := newTestState(0, 2)

	assert.True(t, s.MarkBroadcast("a", 7))
	assert.Equal(t, uint64(7), s.Value())

	assert.False(t, s.MarkBroadcast("a", 9))
	assert.Equal(t, uint64(7), s.Value())

	assert.True(t, s.MarkBroadcast("b", 9))
	assert.Equal(t, uint64(9), s.Value())
}
