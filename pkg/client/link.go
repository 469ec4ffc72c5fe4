package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/cuemby/hypernet/pkg/protocol"
	"github.com/cuemby/hypernet/pkg/types"
)

// DefaultTimeout bounds a request when the caller's context has no earlier
// deadline
const DefaultTimeout = 5 * time.Second

// Link sends one request frame to a node over a fresh TCP connection and
// waits for one response frame. A Link holds no connections and is safe for
// concurrent use.
type Link struct {
	timeout time.Duration
	dialer  net.Dialer
}

// NewLink creates a link whose requests never outlive timeout
func NewLink(timeout time.Duration) *Link {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Link{timeout: timeout}
}

// Timeout returns the per-request bound
func (l *Link) Timeout() time.Duration {
	return l.timeout
}

// Request performs one round trip. The deadline is the earlier of the
// context's and the link timeout. Every failure is a *CallError naming the
// target.
func (l *Link) Request(ctx context.Context, target types.Identity, msg protocol.Message) (protocol.Message, error) {
	resp, err := l.request(ctx, target.Addr, msg)
	if err != nil {
		kind := protocol.Kind(0)
		if msg != nil {
			kind = msg.Kind()
		}
		return nil, &CallError{Label: target.Label, Kind: kind, Err: err}
	}
	return resp, nil
}

func (l *Link) request(ctx context.Context, addr netip.AddrPort, msg protocol.Message) (protocol.Message, error) {
	// encode first so an oversize message never touches the network
	frame, err := protocol.Encode(msg)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(l.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, err := l.dialer.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, classifyContext(ctxErr, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	// unblock pending I/O as soon as the caller cancels
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := protocol.WriteFrame(conn, frame); err != nil {
		return nil, l.ioError(ctx, "write", err)
	}

	resp, err := protocol.ReadFrame(conn)
	if err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			return nil, err
		}
		return nil, l.ioError(ctx, "read", err)
	}
	if len(resp) == 0 {
		return nil, ErrNoResponse
	}

	return protocol.Decode(resp)
}

func (l *Link) ioError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return classifyContext(ctxErr, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// classifyContext maps an expired deadline to ErrTimeout and keeps explicit
// cancellation visible as context.Canceled
func classifyContext(ctxErr, err error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ctxErr, err)
}
