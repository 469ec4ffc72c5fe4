package protocol

import (
	"fmt"
	"math"
	"net/netip"
	"sort"

	"github.com/cuemby/hypernet/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize bounds every encoded message, in both directions
const MaxFrameSize = 1024

// Field numbers. Field 1 of every frame is the Kind; variant fields start at 2.
const (
	fieldKind protowire.Number = 1

	fieldErrText protowire.Number = 2

	fieldValueN protowire.Number = 2

	fieldPeer protowire.Number = 2 // SetPeerInfo and PeerInfo entries

	fieldPropagateSender protowire.Number = 2
	fieldPropagateValue  protowire.Number = 3

	fieldBroadcastID     protowire.Number = 2
	fieldBroadcastOrigin protowire.Number = 3
	fieldBroadcastValue  protowire.Number = 4

	// embedded peer
	fieldPeerLabel protowire.Number = 1
	fieldPeerIP    protowire.Number = 2
	fieldPeerPort  protowire.Number = 3
	fieldPeerZone  protowire.Number = 4 // IPv6 only, omitted when empty
)

// Encode serializes m into a single frame
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("cannot encode nil message")
	}

	b := protowire.AppendTag(nil, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind()))
	b = m.appendFields(b)

	if len(b) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %s encodes to %d bytes (max %d)",
			ErrFrameTooLarge, m.Kind(), len(b), MaxFrameSize)
	}
	return b, nil
}

// Decode parses one frame produced by Encode.
//
// Decode(Encode(m)) equals m for every message, except that the wire has no
// nil/empty distinction for peer lists: SetPeerInfo.Peers decodes to nil when
// empty and PeerInfo.Peers always decodes to a non-nil map.
func Decode(b []byte) (Message, error) {
	if len(b) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, len(b), MaxFrameSize)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}

	fields, err := parseFields(b)
	if err != nil {
		return nil, err
	}
	if fields[0].num != fieldKind || fields[0].typ != protowire.VarintType {
		return nil, fmt.Errorf("%w: frame does not start with a message kind", ErrMalformedFrame)
	}

	if fields[0].u > math.MaxUint8 {
		return nil, fmt.Errorf("%w: unknown message kind %d", ErrMalformedFrame, fields[0].u)
	}
	kind := Kind(fields[0].u)
	decode, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown message kind %d", ErrMalformedFrame, fields[0].u)
	}

	m, err := decode(fields[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, kind, err)
	}
	return m, nil
}

// field is one decoded protobuf field; only varint and length-delimited
// fields occur on the wire.
type field struct {
	num protowire.Number
	typ protowire.Type
	u   uint64
	b   []byte
}

func parseFields(b []byte) ([]field, error) {
	var fields []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			f.u = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			f.b = v
			b = b[n:]
		default:
			return nil, fmt.Errorf("%w: field %d has unsupported wire type %d", ErrMalformedFrame, num, typ)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

var decoders = map[Kind]func([]field) (Message, error){
	KindPing:        emptyDecoder(Ping{}),
	KindPong:        emptyDecoder(Pong{}),
	KindOk:          emptyDecoder(Ok{}),
	KindGetValue:    emptyDecoder(GetValue{}),
	KindGetPeerInfo: emptyDecoder(GetPeerInfo{}),
	KindErr:         decodeErr,
	KindValue:       decodeValue,
	KindSetPeerInfo: decodeSetPeerInfo,
	KindPeerInfo:    decodePeerInfo,
	KindPropagate:   decodePropagate,
	KindBroadcast:   decodeBroadcast,
}

func emptyDecoder(m Message) func([]field) (Message, error) {
	return func(fields []field) (Message, error) {
		if len(fields) > 0 {
			return nil, fmt.Errorf("unexpected field %d", fields[0].num)
		}
		return m, nil
	}
}

// fieldSet checks every field against the expected number and wire type and
// rejects duplicates of singular fields.
type fieldSet map[protowire.Number]protowire.Type

func (s fieldSet) check(fields []field, repeated protowire.Number) error {
	seen := make(map[protowire.Number]bool)
	for _, f := range fields {
		typ, ok := s[f.num]
		if !ok {
			return fmt.Errorf("unexpected field %d", f.num)
		}
		if typ != f.typ {
			return fmt.Errorf("field %d has wire type %d, want %d", f.num, f.typ, typ)
		}
		if f.num != repeated && seen[f.num] {
			return fmt.Errorf("duplicate field %d", f.num)
		}
		seen[f.num] = true
	}
	return nil
}

func labelFrom(u uint64) (types.Label, error) {
	if u > math.MaxUint32 {
		return 0, fmt.Errorf("label %d out of range", u)
	}
	return types.Label(u), nil
}

func (Ping) appendFields(b []byte) []byte        { return b }
func (Pong) appendFields(b []byte) []byte        { return b }
func (Ok) appendFields(b []byte) []byte          { return b }
func (GetValue) appendFields(b []byte) []byte    { return b }
func (GetPeerInfo) appendFields(b []byte) []byte { return b }

func (m Err) appendFields(b []byte) []byte {
	b = protowire.AppendTag(b, fieldErrText, protowire.BytesType)
	return protowire.AppendString(b, m.Text)
}

func decodeErr(fields []field) (Message, error) {
	if err := (fieldSet{fieldErrText: protowire.BytesType}).check(fields, 0); err != nil {
		return nil, err
	}
	var m Err
	for _, f := range fields {
		m.Text = string(f.b)
	}
	return m, nil
}

func (m Value) appendFields(b []byte) []byte {
	b = protowire.AppendTag(b, fieldValueN, protowire.VarintType)
	return protowire.AppendVarint(b, m.N)
}

func decodeValue(fields []field) (Message, error) {
	if err := (fieldSet{fieldValueN: protowire.VarintType}).check(fields, 0); err != nil {
		return nil, err
	}
	var m Value
	for _, f := range fields {
		m.N = f.u
	}
	return m, nil
}

func appendPeer(b []byte, p types.Peer) []byte {
	var inner []byte
	inner = protowire.AppendTag(inner, fieldPeerLabel, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(p.Label))
	inner = protowire.AppendTag(inner, fieldPeerIP, protowire.BytesType)
	inner = protowire.AppendBytes(inner, p.IP.AsSlice())
	inner = protowire.AppendTag(inner, fieldPeerPort, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(p.Port))
	if zone := p.IP.Zone(); zone != "" {
		inner = protowire.AppendTag(inner, fieldPeerZone, protowire.BytesType)
		inner = protowire.AppendString(inner, zone)
	}

	b = protowire.AppendTag(b, fieldPeer, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func decodePeer(b []byte) (types.Peer, error) {
	fields, err := parseFields(b)
	if err != nil {
		return types.Peer{}, err
	}
	set := fieldSet{
		fieldPeerLabel: protowire.VarintType,
		fieldPeerIP:    protowire.BytesType,
		fieldPeerPort:  protowire.VarintType,
		fieldPeerZone:  protowire.BytesType,
	}
	if err := set.check(fields, 0); err != nil {
		return types.Peer{}, fmt.Errorf("peer: %v", err)
	}

	var (
		p    types.Peer
		zone string
		seen = make(map[protowire.Number]bool, len(fields))
	)
	for _, f := range fields {
		seen[f.num] = true
		switch f.num {
		case fieldPeerLabel:
			if p.Label, err = labelFrom(f.u); err != nil {
				return types.Peer{}, fmt.Errorf("peer: %v", err)
			}
		case fieldPeerIP:
			if len(f.b) == 0 {
				// unset address
				continue
			}
			ip, ok := netip.AddrFromSlice(f.b)
			if !ok {
				return types.Peer{}, fmt.Errorf("peer: invalid ip length %d", len(f.b))
			}
			p.IP = ip
		case fieldPeerPort:
			if f.u > math.MaxUint16 {
				return types.Peer{}, fmt.Errorf("peer: port %d out of range", f.u)
			}
			p.Port = uint16(f.u)
		case fieldPeerZone:
			zone = string(f.b)
		}
	}
	if !seen[fieldPeerLabel] || !seen[fieldPeerIP] || !seen[fieldPeerPort] {
		return types.Peer{}, fmt.Errorf("peer: missing fields")
	}
	if zone != "" {
		if !p.IP.Is6() {
			return types.Peer{}, fmt.Errorf("peer: zone %q on non-IPv6 address", zone)
		}
		p.IP = p.IP.WithZone(zone)
	}
	return p, nil
}

func (m SetPeerInfo) appendFields(b []byte) []byte {
	for _, p := range m.Peers {
		b = appendPeer(b, p)
	}
	return b
}

func decodeSetPeerInfo(fields []field) (Message, error) {
	if err := (fieldSet{fieldPeer: protowire.BytesType}).check(fields, fieldPeer); err != nil {
		return nil, err
	}
	var m SetPeerInfo
	for _, f := range fields {
		p, err := decodePeer(f.b)
		if err != nil {
			return nil, err
		}
		m.Peers = append(m.Peers, p)
	}
	return m, nil
}

func (m PeerInfo) appendFields(b []byte) []byte {
	labels := make([]types.Label, 0, len(m.Peers))
	for label := range m.Peers {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	for _, label := range labels {
		addr := m.Peers[label]
		b = appendPeer(b, types.Peer{Label: label, IP: addr.Addr(), Port: addr.Port()})
	}
	return b
}

func decodePeerInfo(fields []field) (Message, error) {
	if err := (fieldSet{fieldPeer: protowire.BytesType}).check(fields, fieldPeer); err != nil {
		return nil, err
	}
	m := PeerInfo{Peers: make(map[types.Label]netip.AddrPort, len(fields))}
	for _, f := range fields {
		p, err := decodePeer(f.b)
		if err != nil {
			return nil, err
		}
		if _, dup := m.Peers[p.Label]; dup {
			return nil, fmt.Errorf("duplicate entry for label %d", p.Label)
		}
		m.Peers[p.Label] = p.AddrPort()
	}
	return m, nil
}

func (m Propagate) appendFields(b []byte) []byte {
	b = protowire.AppendTag(b, fieldPropagateSender, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Sender))
	b = protowire.AppendTag(b, fieldPropagateValue, protowire.VarintType)
	return protowire.AppendVarint(b, m.Value)
}

func decodePropagate(fields []field) (Message, error) {
	set := fieldSet{
		fieldPropagateSender: protowire.VarintType,
		fieldPropagateValue:  protowire.VarintType,
	}
	if err := set.check(fields, 0); err != nil {
		return nil, err
	}
	m := Propagate{Sender: types.NoLabel}
	for _, f := range fields {
		switch f.num {
		case fieldPropagateSender:
			sender, err := labelFrom(f.u)
			if err != nil {
				return nil, err
			}
			m.Sender = sender
		case fieldPropagateValue:
			m.Value = f.u
		}
	}
	return m, nil
}

func (m Broadcast) appendFields(b []byte) []byte {
	b = protowire.AppendTag(b, fieldBroadcastID, protowire.BytesType)
	b = protowire.AppendString(b, m.ID)
	b = protowire.AppendTag(b, fieldBroadcastOrigin, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Origin))
	b = protowire.AppendTag(b, fieldBroadcastValue, protowire.VarintType)
	return protowire.AppendVarint(b, m.Value)
}

func decodeBroadcast(fields []field) (Message, error) {
	set := fieldSet{
		fieldBroadcastID:     protowire.BytesType,
		fieldBroadcastOrigin: protowire.VarintType,
		fieldBroadcastValue:  protowire.VarintType,
	}
	if err := set.check(fields, 0); err != nil {
		return nil, err
	}
	var m Broadcast
	for _, f := range fields {
		switch f.num {
		case fieldBroadcastID:
			m.ID = string(f.b)
		case fieldBroadcastOrigin:
			origin, err := labelFrom(f.u)
			if err != nil {
				return nil, err
			}
			m.Origin = origin
		case fieldBroadcastValue:
			m.Value = f.u
		}
	}
	return m, nil
}
