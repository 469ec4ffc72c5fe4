package protocol

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/cuemby/hypernet/pkg/types"
)

// Kind is the wire tag of a message variant
type Kind uint8

const (
	KindPing Kind = iota + 1
	KindPong
	KindOk
	KindErr
	KindGetValue
	KindValue
	KindSetPeerInfo
	KindGetPeerInfo
	KindPeerInfo
	KindPropagate
	KindBroadcast
)

var kindNames = map[Kind]string{
	KindPing:        "Ping",
	KindPong:        "Pong",
	KindOk:          "Ok",
	KindErr:         "Err",
	KindGetValue:    "GetValue",
	KindValue:       "Value",
	KindSetPeerInfo: "SetPeerInfo",
	KindGetPeerInfo: "GetPeerInfo",
	KindPeerInfo:    "PeerInfo",
	KindPropagate:   "Propagate",
	KindBroadcast:   "Broadcast",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Message is the closed set of values exchanged between the coordinator and
// the nodes. Only types in this package implement it.
type Message interface {
	Kind() Kind

	// Dispatch routes the message to the matching Handler method
	Dispatch(ctx context.Context, h Handler) Message

	appendFields(b []byte) []byte
}

// Handler serves requests on a node. It has one method per request variant,
// so adding a request kind breaks every Handler implementation at compile
// time until the new case is handled. Response-only variants go to
// HandleUnsupported.
type Handler interface {
	HandlePing(ctx context.Context, req Ping) Message
	HandleGetValue(ctx context.Context, req GetValue) Message
	HandleValue(ctx context.Context, req Value) Message
	HandleSetPeerInfo(ctx context.Context, req SetPeerInfo) Message
	HandleGetPeerInfo(ctx context.Context, req GetPeerInfo) Message
	HandlePropagate(ctx context.Context, req Propagate) Message
	HandleBroadcast(ctx context.Context, req Broadcast) Message
	HandleUnsupported(ctx context.Context, req Message) Message
}

// Ping asks a node to prove it is alive
type Ping struct{}

// Pong answers Ping
type Pong struct{}

// Ok acknowledges a request that has no other result
type Ok struct{}

// Err reports a failed request in human-readable form
type Err struct {
	Text string
}

// GetValue asks a node for its local scalar
type GetValue struct{}

// Value carries a node's local scalar. As a request it overwrites the
// receiver's value.
type Value struct {
	N uint64
}

// SetPeerInfo overwrites entries of the receiver's peer table
type SetPeerInfo struct {
	Peers []types.Peer
}

// GetPeerInfo asks for the receiver's full peer table
type GetPeerInfo struct{}

// PeerInfo is a node's full peer table. Decoded tables are never nil.
type PeerInfo struct {
	Peers map[types.Label]netip.AddrPort
}

// Propagate is one step of the monotonic flood. Sender is NoLabel for the
// coordinator's seed.
type Propagate struct {
	Sender types.Label
	Value  uint64
}

// Broadcast delivers Value to every node of the cube, relayed outward from
// Origin. ID makes redelivery idempotent.
type Broadcast struct {
	ID     string
	Origin types.Label
	Value  uint64
}

func (Ping) Kind() Kind        { return KindPing }
func (Pong) Kind() Kind        { return KindPong }
func (Ok) Kind() Kind          { return KindOk }
func (Err) Kind() Kind         { return KindErr }
func (GetValue) Kind() Kind    { return KindGetValue }
func (Value) Kind() Kind       { return KindValue }
func (SetPeerInfo) Kind() Kind { return KindSetPeerInfo }
func (GetPeerInfo) Kind() Kind { return KindGetPeerInfo }
func (PeerInfo) Kind() Kind    { return KindPeerInfo }
func (Propagate) Kind() Kind   { return KindPropagate }
func (Broadcast) Kind() Kind   { return KindBroadcast }

func (m Ping) Dispatch(ctx context.Context, h Handler) Message     { return h.HandlePing(ctx, m) }
func (m GetValue) Dispatch(ctx context.Context, h Handler) Message { return h.HandleGetValue(ctx, m) }
func (m Value) Dispatch(ctx context.Context, h Handler) Message    { return h.HandleValue(ctx, m) }
func (m SetPeerInfo) Dispatch(ctx context.Context, h Handler) Message {
	return h.HandleSetPeerInfo(ctx, m)
}
func (m GetPeerInfo) Dispatch(ctx context.Context, h Handler) Message {
	return h.HandleGetPeerInfo(ctx, m)
}
func (m Propagate) Dispatch(ctx context.Context, h Handler) Message {
	return h.HandlePropagate(ctx, m)
}
func (m Broadcast) Dispatch(ctx context.Context, h Handler) Message {
	return h.HandleBroadcast(ctx, m)
}

// Response variants are never valid requests
func (m Pong) Dispatch(ctx context.Context, h Handler) Message { return h.HandleUnsupported(ctx, m) }
func (m Ok) Dispatch(ctx context.Context, h Handler) Message   { return h.HandleUnsupported(ctx, m) }
func (m Err) Dispatch(ctx context.Context, h Handler) Message  { return h.HandleUnsupported(ctx, m) }
func (m PeerInfo) Dispatch(ctx context.Context, h Handler) Message {
	return h.HandleUnsupported(ctx, m)
}

// Errorf builds an Err response
func Errorf(format string, args ...interface{}) Err {
	return Err{Text: fmt.Sprintf(format, args...)}
}
