package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/hypernet/pkg/client"
	"github.com/cuemby/hypernet/pkg/launcher"
	"github.com/cuemby/hypernet/pkg/types"
)

// Waiter provides utilities for waiting on conditions with timeouts
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a new Waiter with the given timeout and polling interval
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{
		timeout:  timeout,
		interval: interval,
	}
}

// DefaultWaiter returns a waiter with a 10s timeout and 50ms interval
func DefaultWaiter() *Waiter {
	return NewWaiter(10*time.Second, 50*time.Millisecond)
}

// WaitFor waits for a condition to become true
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if condition() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForValue waits until the node reports want
func (w *Waiter) WaitForValue(ctx context.Context, link *client.Link, id types.Identity, want uint64) error {
	return w.WaitFor(ctx, func() bool {
		v, err := link.GetValue(ctx, id)
		return err == nil && v == want
	}, fmt.Sprintf("node %s to hold %d", id.Label, want))
}

// WaitForNodeDown waits until the node stops answering ping
func (w *Waiter) WaitForNodeDown(ctx context.Context, link *client.Link, id types.Identity) error {
	return w.WaitFor(ctx, func() bool {
		return link.Ping(ctx, id) != nil
	}, fmt.Sprintf("node %s to stop answering", id.Label))
}

// WaitForExit waits until the node process has exited
func (w *Waiter) WaitForExit(ctx context.Context, h launcher.Handle) error {
	return w.WaitFor(ctx, func() bool {
		select {
		case <-h.Done():
			return true
		default:
			return false
		}
	}, fmt.Sprintf("node %s to exit", h.Identity().Label))
}
