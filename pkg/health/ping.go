package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/hypernet/pkg/client"
	"github.com/cuemby/hypernet/pkg/types"
)

// PingChecker probes a node with a protocol Ping
type PingChecker struct {
	Target types.Identity
	Link   *client.Link
}

// NewPingChecker creates a ping checker using link
func NewPingChecker(target types.Identity, link *client.Link) *PingChecker {
	return &PingChecker{Target: target, Link: link}
}

// Check sends one Ping and expects Pong
func (p *PingChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if err := p.Link.Ping(ctx, p.Target); err != nil {
		return Result{
			Healthy:   false,
			Message:   err.Error(),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("node %s answered ping", p.Target),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (p *PingChecker) Type() CheckType {
	return CheckTypePing
}
