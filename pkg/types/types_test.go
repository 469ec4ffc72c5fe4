package types

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityEqualIgnoresAddress(t *testing.T) {
	a := NewIdentity(5, netip.MustParseAddrPort("127.0.0.1:8005"))
	b := NewIdentity(5, netip.MustParseAddrPort("10.1.2.3:9999"))
	c := NewIdentity(4, netip.MustParseAddrPort("127.0.0.1:8005"))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestPeerIdentityConversion(t *testing.T) {
	id := NewIdentity(7, netip.MustParseAddrPort("127.0.0.1:8107"))

	peer := id.Peer()
	assert.Equal(t, Label(7), peer.Label)
	assert.Equal(t, uint16(8107), peer.Port)
	assert.Equal(t, id, peer.Identity())
	assert.Equal(t, "127.0.0.1:8107", id.Address())
}

func TestLabelFormatting(t *testing.T) {
	tests := []struct {
		name      string
		label     Label
		dimension int
		wantBits  string
	}{
		{name: "zero in 3 dims", label: 0, dimension: 3, wantBits: "000"},
		{name: "five in 3 dims", label: 5, dimension: 3, wantBits: "101"},
		{name: "one in 4 dims", label: 1, dimension: 4, wantBits: "0001"},
		{name: "single node cube", label: 0, dimension: 0, wantBits: "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantBits, tt.label.Bits(tt.dimension))
		})
	}

	assert.Equal(t, "none", NoLabel.String())
	assert.Equal(t, "12", Label(12).String())
}
