package client

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/cuemby/hypernet/pkg/protocol"
	"github.com/cuemby/hypernet/pkg/types"
)

// Ping checks that a node is serving
func (l *Link) Ping(ctx context.Context, target types.Identity) error {
	resp, err := l.Request(ctx, target, protocol.Ping{})
	if err != nil {
		return err
	}
	_, err = expect[protocol.Pong](target, protocol.KindPing, resp)
	return err
}

// GetValue returns a node's local scalar
func (l *Link) GetValue(ctx context.Context, target types.Identity) (uint64, error) {
	resp, err := l.Request(ctx, target, protocol.GetValue{})
	if err != nil {
		return 0, err
	}
	v, err := expect[protocol.Value](target, protocol.KindGetValue, resp)
	if err != nil {
		return 0, err
	}
	return v.N, nil
}

// SetValue overwrites a node's local scalar
func (l *Link) SetValue(ctx context.Context, target types.Identity, n uint64) error {
	return l.call(ctx, target, protocol.Value{N: n})
}

// SetPeers overwrites entries of a node's peer table
func (l *Link) SetPeers(ctx context.Context, target types.Identity, peers []types.Peer) error {
	return l.call(ctx, target, protocol.SetPeerInfo{Peers: peers})
}

// GetPeers returns a node's full peer table
func (l *Link) GetPeers(ctx context.Context, target types.Identity) (map[types.Label]netip.AddrPort, error) {
	resp, err := l.Request(ctx, target, protocol.GetPeerInfo{})
	if err != nil {
		return nil, err
	}
	info, err := expect[protocol.PeerInfo](target, protocol.KindGetPeerInfo, resp)
	if err != nil {
		return nil, err
	}
	return info.Peers, nil
}

// Propagate delivers one flood step from sender
func (l *Link) Propagate(ctx context.Context, target types.Identity, sender types.Label, value uint64) error {
	return l.call(ctx, target, protocol.Propagate{Sender: sender, Value: value})
}

// Broadcast hands a broadcast to target for delivery to its subtree
func (l *Link) Broadcast(ctx context.Context, target types.Identity, b protocol.Broadcast) error {
	return l.call(ctx, target, b)
}

// call sends a request whose only successful answer is Ok
func (l *Link) call(ctx context.Context, target types.Identity, msg protocol.Message) error {
	resp, err := l.Request(ctx, target, msg)
	if err != nil {
		return err
	}
	_, err = expect[protocol.Ok](target, msg.Kind(), resp)
	return err
}

func expect[T protocol.Message](target types.Identity, kind protocol.Kind, resp protocol.Message) (T, error) {
	var zero T
	switch r := resp.(type) {
	case T:
		return r, nil
	case protocol.Err:
		return zero, &CallError{Label: target.Label, Kind: kind, Err: &RemoteError{Text: r.Text}}
	default:
		return zero, &CallError{
			Label: target.Label,
			Kind:  kind,
			Err:   fmt.Errorf("%w: %s", ErrUnexpectedResponse, resp.Kind()),
		}
	}
}
