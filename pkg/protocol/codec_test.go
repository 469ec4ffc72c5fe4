package protocol

import (
	"bytes"
	"context"
	"net/netip"
	"testing"

	"github.com/cuemby/hypernet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want Message // when decoding normalises the message
	}{
		{name: "ping", msg: Ping{}},
		{name: "pong", msg: Pong{}},
		{name: "ok", msg: Ok{}},
		{name: "err", msg: Err{Text: "unknown request type Pong"}},
		{name: "err empty", msg: Err{}},
		{name: "get value", msg: GetValue{}},
		{name: "value zero", msg: Value{}},
		{name: "value max", msg: Value{N: ^uint64(0)}},
		{name: "set peer info empty", msg: SetPeerInfo{}},
		{
			name: "set peer info",
			msg: SetPeerInfo{Peers: []types.Peer{
				{Label: 1, IP: netip.MustParseAddr("127.0.0.1"), Port: 8001},
				{Label: 4, IP: netip.MustParseAddr("::1"), Port: 65535},
				{Label: 2, IP: netip.MustParseAddr("10.0.0.2"), Port: 0},
			}},
		},
		{
			name: "set peer info keeps duplicates in order",
			msg: SetPeerInfo{Peers: []types.Peer{
				{Label: 100, IP: netip.MustParseAddr("127.0.0.1"), Port: 9000},
				{Label: 100, IP: netip.MustParseAddr("127.0.0.1"), Port: 9001},
			}},
		},
		{name: "set peer info empty slice", msg: SetPeerInfo{Peers: []types.Peer{}}, want: SetPeerInfo{}},
		{
			name: "set peer info zoned",
			msg: SetPeerInfo{Peers: []types.Peer{
				{Label: 1, IP: netip.MustParseAddr("fe80::1%eth0"), Port: 9},
				{Label: 2, IP: netip.MustParseAddr("fe80::2%2"), Port: 8002},
			}},
		},
		{name: "get peer info", msg: GetPeerInfo{}},
		{name: "peer info empty", msg: PeerInfo{Peers: map[types.Label]netip.AddrPort{}}},
		{name: "peer info nil", msg: PeerInfo{}, want: PeerInfo{Peers: map[types.Label]netip.AddrPort{}}},
		{
			name: "peer info zoned",
			msg: PeerInfo{Peers: map[types.Label]netip.AddrPort{
				1: netip.MustParseAddrPort("[fe80::1%eth0]:9"),
				2: netip.MustParseAddrPort("127.0.0.1:8002"),
			}},
		},
		{
			name: "peer info",
			msg: PeerInfo{Peers: map[types.Label]netip.AddrPort{
				0: netip.MustParseAddrPort("127.0.0.1:8000"),
				5: netip.MustParseAddrPort("[::1]:8005"),
				7: netip.MustParseAddrPort("192.168.1.7:12000"),
			}},
		},
		{name: "propagate seed", msg: Propagate{Sender: types.NoLabel, Value: 0}},
		{name: "propagate", msg: Propagate{Sender: 3, Value: 42}},
		{name: "broadcast", msg: Broadcast{ID: "0d5c1e4e-2d4c-4a38-9d0e-1b1a7d0f5e11", Origin: 6, Value: 9}},
		{name: "broadcast zero", msg: Broadcast{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.msg)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(frame), MaxFrameSize)

			want := tt.want
			if want == nil {
				want = tt.msg
			}
			got, err := Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestEncodeRejectsOversizeFrame(t *testing.T) {
	peers := make([]types.Peer, 200)
	for i := range peers {
		peers[i] = types.Peer{
			Label: types.Label(i),
			IP:    netip.MustParseAddr("2001:db8::1"),
			Port:  uint16(8000 + i),
		}
	}

	_, err := Encode(SetPeerInfo{Peers: peers})
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = Encode(Err{Text: string(bytes.Repeat([]byte("x"), MaxFrameSize))})
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestEncodeNil(t *testing.T) {
	_, err := Encode(nil)
	assert.Error(t, err)
}

func TestDecodeRejectsOversizeFrame(t *testing.T) {
	_, err := Decode(make([]byte, MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func kindPrefix(k uint64) []byte {
	b := protowire.AppendTag(nil, fieldKind, protowire.VarintType)
	return protowire.AppendVarint(b, k)
}

func rawPeer(label uint64, ip []byte, port uint64) []byte {
	var inner []byte
	inner = protowire.AppendTag(inner, fieldPeerLabel, protowire.VarintType)
	inner = protowire.AppendVarint(inner, label)
	inner = protowire.AppendTag(inner, fieldPeerIP, protowire.BytesType)
	inner = protowire.AppendBytes(inner, ip)
	inner = protowire.AppendTag(inner, fieldPeerPort, protowire.VarintType)
	inner = protowire.AppendVarint(inner, port)

	b := protowire.AppendTag(nil, fieldPeer, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

// peerFrame wraps raw embedded peer fields in a SetPeerInfo frame
func peerFrame(parts ...[]byte) []byte {
	var inner []byte
	for _, p := range parts {
		inner = append(inner, p...)
	}
	b := protowire.AppendTag(kindPrefix(uint64(KindSetPeerInfo)), fieldPeer, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func TestDecodeMalformed(t *testing.T) {
	valueFrame, err := Encode(Value{N: 300})
	require.NoError(t, err)

	tests := []struct {
		name  string
		frame []byte
	}{
		{name: "empty frame", frame: nil},
		{name: "garbage", frame: []byte{0xff, 0xff, 0xff}},
		{name: "truncated varint", frame: valueFrame[:len(valueFrame)-1]},
		{
			name:  "missing kind",
			frame: protowire.AppendVarint(protowire.AppendTag(nil, 2, protowire.VarintType), 1),
		},
		{
			name:  "kind with wrong wire type",
			frame: protowire.AppendBytes(protowire.AppendTag(nil, fieldKind, protowire.BytesType), []byte{1}),
		},
		{name: "unknown kind", frame: kindPrefix(99)},
		{name: "kind out of range", frame: kindPrefix(256 + uint64(KindPing))},
		{
			name:  "unexpected field on ping",
			frame: protowire.AppendVarint(protowire.AppendTag(kindPrefix(uint64(KindPing)), 5, protowire.VarintType), 1),
		},
		{
			name:  "value field with wrong wire type",
			frame: protowire.AppendBytes(protowire.AppendTag(kindPrefix(uint64(KindValue)), fieldValueN, protowire.BytesType), []byte{1}),
		},
		{
			name: "duplicate singular field",
			frame: func() []byte {
				b := kindPrefix(uint64(KindValue))
				for i := 0; i < 2; i++ {
					b = protowire.AppendTag(b, fieldValueN, protowire.VarintType)
					b = protowire.AppendVarint(b, 1)
				}
				return b
			}(),
		},
		{name: "peer with bad ip length", frame: append(kindPrefix(uint64(KindSetPeerInfo)), rawPeer(1, []byte{127, 0, 1}, 80)...)},
		{name: "peer with port out of range", frame: append(kindPrefix(uint64(KindSetPeerInfo)), rawPeer(1, []byte{127, 0, 0, 1}, 70000)...)},
		{name: "peer missing ip", frame: peerFrame(
			protowire.AppendVarint(protowire.AppendTag(nil, fieldPeerLabel, protowire.VarintType), 1),
			protowire.AppendVarint(protowire.AppendTag(nil, fieldPeerPort, protowire.VarintType), 80),
		)},
		{name: "zone on ipv4 peer", frame: peerFrame(
			protowire.AppendVarint(protowire.AppendTag(nil, fieldPeerLabel, protowire.VarintType), 1),
			protowire.AppendBytes(protowire.AppendTag(nil, fieldPeerIP, protowire.BytesType), []byte{127, 0, 0, 1}),
			protowire.AppendVarint(protowire.AppendTag(nil, fieldPeerPort, protowire.VarintType), 80),
			protowire.AppendString(protowire.AppendTag(nil, fieldPeerZone, protowire.BytesType), "eth0"),
		)},
		{name: "peer with label out of range", frame: append(kindPrefix(uint64(KindSetPeerInfo)), rawPeer(1<<33, []byte{127, 0, 0, 1}, 80)...)},
		{
			name: "peer info with duplicate label",
			frame: func() []byte {
				b := kindPrefix(uint64(KindPeerInfo))
				b = append(b, rawPeer(3, []byte{127, 0, 0, 1}, 8003)...)
				return append(b, rawPeer(3, []byte{127, 0, 0, 1}, 9003)...)
			}(),
		},
		{
			name:  "fixed64 wire type",
			frame: protowire.AppendFixed64(protowire.AppendTag(kindPrefix(uint64(KindValue)), fieldValueN, protowire.Fixed64Type), 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frame)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "Ping", KindPing.String())
	assert.Equal(t, "Broadcast", KindBroadcast.String())
	assert.Equal(t, "Kind(200)", Kind(200).String())
}

// recordingHandler records which method a message was routed to
type recordingHandler struct {
	called string
}

func (h *recordingHandler) HandlePing(context.Context, Ping) Message {
	h.called = "ping"
	return Pong{}
}
func (h *recordingHandler) HandleGetValue(context.Context, GetValue) Message {
	h.called = "get-value"
	return Value{N: 1}
}
func (h *recordingHandler) HandleValue(context.Context, Value) Message {
	h.called = "value"
	return Ok{}
}
func (h *recordingHandler) HandleSetPeerInfo(context.Context, SetPeerInfo) Message {
	h.called = "set-peer-info"
	return Ok{}
}
func (h *recordingHandler) HandleGetPeerInfo(context.Context, GetPeerInfo) Message {
	h.called = "get-peer-info"
	return PeerInfo{}
}
func (h *recordingHandler) HandlePropagate(context.Context, Propagate) Message {
	h.called = "propagate"
	return Ok{}
}
func (h *recordingHandler) HandleBroadcast(context.Context, Broadcast) Message {
	h.called = "broadcast"
	return Ok{}
}
func (h *recordingHandler) HandleUnsupported(_ context.Context, req Message) Message {
	h.called = "unsupported"
	return Errorf("%v: %s", ErrUnsupportedRequest, req.Kind())
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{Ping{}, "ping"},
		{GetValue{}, "get-value"},
		{Value{N: 3}, "value"},
		{SetPeerInfo{}, "set-peer-info"},
		{GetPeerInfo{}, "get-peer-info"},
		{Propagate{}, "propagate"},
		{Broadcast{ID: "x"}, "broadcast"},
		{Pong{}, "unsupported"},
		{Ok{}, "unsupported"},
		{Err{Text: "boom"}, "unsupported"},
		{PeerInfo{}, "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.msg.Kind().String(), func(t *testing.T) {
			h := &recordingHandler{}
			tt.msg.Dispatch(context.Background(), h)
			assert.Equal(t, tt.want, h.called)
		})
	}
}

func TestReadFrame(t *testing.T) {
	frame, err := Encode(Propagate{Sender: 1, Value: 2})
	require.NoError(t, err)

	got, err := ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, frame, got)

	_, err = ReadFrame(bytes.NewReader(make([]byte, MaxFrameSize+10)))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	exact, err := ReadFrame(bytes.NewReader(make([]byte, MaxFrameSize)))
	require.NoError(t, err)
	assert.Len(t, exact, MaxFrameSize)
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, buf.Bytes())

	buf.Reset()
	err := WriteFrame(&buf, make([]byte, MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, buf.Len())
}
