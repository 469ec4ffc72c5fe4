package topology

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/cuemby/hypernet/pkg/network"
	"github.com/cuemby/hypernet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAllocator hands out sequential ports without binding anything
type fakeAllocator struct {
	limit int
}

func (f fakeAllocator) Allocate(n int) ([]netip.AddrPort, error) {
	if f.limit >= 0 && n > f.limit {
		return nil, network.ErrPortExhaustion
	}
	addrs := make([]netip.AddrPort, n)
	for i := range addrs {
		addrs[i] = netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(8000+i))
	}
	return addrs, nil
}

func unlimited() fakeAllocator { return fakeAllocator{limit: -1} }

func neighborLabels(topo *Topology, label types.Label) []types.Label {
	var out []types.Label
	for _, id := range topo.Neighbors(label) {
		out = append(out, id.Label)
	}
	return out
}

func TestBuildThreeCube(t *testing.T) {
	topo, err := Build(3, unlimited())
	require.NoError(t, err)

	want := map[types.Label][]types.Label{
		0b000: {0b001, 0b010, 0b100},
		0b001: {0b000, 0b011, 0b101},
		0b010: {0b011, 0b000, 0b110},
		0b011: {0b010, 0b001, 0b111},
		0b100: {0b101, 0b110, 0b000},
		0b101: {0b100, 0b111, 0b001},
		0b110: {0b111, 0b100, 0b010},
		0b111: {0b110, 0b101, 0b011},
	}

	assert.Equal(t, 3, topo.Dimension())
	assert.Equal(t, 8, topo.Size())
	for label, neighbors := range want {
		assert.ElementsMatch(t, neighbors, neighborLabels(topo, label), "label %03b", label)
	}
}

func TestBuildAssignsAddressByLabel(t *testing.T) {
	topo, err := Build(2, unlimited())
	require.NoError(t, err)

	for i, id := range topo.Identities() {
		assert.Equal(t, types.Label(i), id.Label)
		assert.Equal(t, uint16(8000+i), id.Addr.Port())
	}

	// neighbor identities carry the registry address of that label
	for _, label := range topo.Labels() {
		for _, n := range topo.Neighbors(label) {
			reg, ok := topo.Identity(n.Label)
			require.True(t, ok)
			assert.Equal(t, reg, n)
		}
	}
}

func TestRegularityAndSymmetry(t *testing.T) {
	for d := 0; d <= 8; d++ {
		topo, err := Build(d, unlimited())
		require.NoError(t, err)
		require.Equal(t, 1<<d, topo.Size())

		for _, a := range topo.Labels() {
			neighbors := topo.Neighbors(a)
			assert.Len(t, neighbors, d, "label %d in dimension %d", a, d)

			for _, n := range neighbors {
				assert.Equal(t, 1, HammingDistance(a, n.Label))
				assert.Contains(t, neighborLabels(topo, n.Label), a, "adjacency must be symmetric")
			}
		}
	}
}

func TestDimensionZero(t *testing.T) {
	topo, err := Build(0, unlimited())
	require.NoError(t, err)

	assert.Equal(t, 1, topo.Size())
	assert.Empty(t, topo.Neighbors(0))
	assert.Empty(t, topo.Peers(0))
}

func TestBuildInsufficientAddresses(t *testing.T) {
	_, err := Build(3, fakeAllocator{limit: 7})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientAddresses))
	assert.True(t, errors.Is(err, network.ErrPortExhaustion))
}

func TestBuildRejectsBadDimension(t *testing.T) {
	_, err := Build(-1, unlimited())
	assert.Error(t, err)

	_, err = Build(MaxDimension+1, unlimited())
	assert.Error(t, err)
}

func TestFromAddressesLengthMismatch(t *testing.T) {
	addrs, _ := unlimited().Allocate(3)
	_, err := FromAddresses(2, addrs)
	assert.Error(t, err)
}

func TestPeersMatchNeighbors(t *testing.T) {
	topo, err := Build(3, unlimited())
	require.NoError(t, err)

	peers := topo.Peers(5)
	require.Len(t, peers, 3)
	for i, n := range topo.Neighbors(5) {
		assert.Equal(t, n.Peer(), peers[i])
	}
}

func TestContains(t *testing.T) {
	topo, err := Build(2, unlimited())
	require.NoError(t, err)

	assert.True(t, topo.Contains(3))
	assert.False(t, topo.Contains(4))
	assert.False(t, topo.Contains(types.NoLabel))

	_, ok := topo.Identity(9)
	assert.False(t, ok)
	assert.Nil(t, topo.Neighbors(9))
}

func TestHammingDistance(t *testing.T) {
	assert.Equal(t, 0, HammingDistance(5, 5))
	assert.Equal(t, 1, HammingDistance(0b000, 0b100))
	assert.Equal(t, 3, HammingDistance(0b000, 0b111))
	assert.True(t, IsNeighbor(0b101, 0b111))
	assert.False(t, IsNeighbor(0b101, 0b010))
}

func TestBroadcastChildren(t *testing.T) {
	assert.Equal(t, []types.Label{1, 2, 4}, BroadcastChildren(0, 0, 3))
	assert.Equal(t, []types.Label{3, 5}, BroadcastChildren(1, 0, 3))
	assert.Equal(t, []types.Label{6}, BroadcastChildren(2, 0, 3))
	assert.Empty(t, BroadcastChildren(4, 0, 3))
	assert.Empty(t, BroadcastChildren(7, 0, 3))
	assert.Empty(t, BroadcastChildren(0, 0, 0))
}

// Every node must be reached exactly once from any origin, within d hops
func TestBroadcastTreeSpansCube(t *testing.T) {
	for d := 0; d <= 6; d++ {
		n := 1 << d
		for origin := 0; origin < n; origin++ {
			o := types.Label(origin)
			reached := map[types.Label]int{o: 0}
			messages := 0
			frontier := []types.Label{o}

			for len(frontier) > 0 {
				var next []types.Label
				for _, node := range frontier {
					for _, child := range BroadcastChildren(node, o, d) {
						messages++
						_, dup := reached[child]
						require.False(t, dup, "d=%d origin=%d: %d reached twice", d, origin, child)
						reached[child] = reached[node] + 1
						next = append(next, child)
					}
				}
				frontier = next
			}

			require.Len(t, reached, n)
			assert.Equal(t, n-1, messages)
			assert.LessOrEqual(t, messages, d*n/2)
			for label, hops := range reached {
				assert.Equal(t, HammingDistance(label, o), hops)
			}
		}
	}
}

func TestNeighborLabelsOrdered(t *testing.T) {
	got := NeighborLabels(0b101, 3)
	assert.Equal(t, []types.Label{0b100, 0b111, 0b001}, got)
}

func TestSubtree(t *testing.T) {
	tests := []struct {
		self, origin types.Label
		d            int
		want         []types.Label
		height       int
	}{
		{self: 0, origin: 0, d: 3, want: []types.Label{0, 1, 2, 3, 4, 5, 6, 7}, height: 3},
		{self: 1, origin: 0, d: 3, want: []types.Label{1, 3, 5, 7}, height: 2},
		{self: 2, origin: 0, d: 3, want: []types.Label{2, 6}, height: 1},
		{self: 4, origin: 0, d: 3, want: []types.Label{4}, height: 0},
		{self: 6, origin: 7, d: 3, want: []types.Label{6, 4, 2, 0}, height: 2},
		{self: 0, origin: 0, d: 0, want: []types.Label{0}, height: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Subtree(tt.self, tt.origin, tt.d), "subtree of %d from %d", tt.self, tt.origin)
		assert.Equal(t, tt.height, SubtreeHeight(tt.self, tt.origin, tt.d))
	}
}

// A node's subtree is itself plus the subtrees of its broadcast children
func TestSubtreeMatchesChildren(t *testing.T) {
	const d = 5
	for origin := types.Label(0); origin < 1<<d; origin++ {
		for self := types.Label(0); self < 1<<d; self++ {
			want := 1
			for _, c := range BroadcastChildren(self, origin, d) {
				want += len(Subtree(c, origin, d))
			}
			assert.Len(t, Subtree(self, origin, d), want)
		}
	}
}

func TestIsValidLabel(t *testing.T) {
	assert.True(t, IsValidLabel(0, 0))
	assert.False(t, IsValidLabel(1, 0))
	assert.True(t, IsValidLabel(7, 3))
	assert.False(t, IsValidLabel(8, 3))
	assert.False(t, IsValidLabel(types.NoLabel, MaxDimension))
	assert.False(t, IsValidLabel(0, MaxDimension+1))
}
