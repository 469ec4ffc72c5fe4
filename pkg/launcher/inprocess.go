package launcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/hypernet/pkg/node"
	"github.com/cuemby/hypernet/pkg/types"
)

// InProcess runs every node as a node.Server inside the calling process.
// Tests and the single-process "run" command use it.
type InProcess struct {
	ForwardTimeout time.Duration
}

// NewInProcess creates an in-process launcher
func NewInProcess() *InProcess {
	return &InProcess{ForwardTimeout: node.DefaultForwardTimeout}
}

// Launch binds the node's address and starts serving
func (l *InProcess) Launch(ctx context.Context, spec Spec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	srv, err := node.NewServer(node.Config{
		Label:          spec.Identity.Label,
		Dimension:      spec.Dimension,
		ListenAddr:     spec.Identity.Address(),
		ForwardTimeout: l.ForwardTimeout,
	})
	if err != nil {
		return nil, err
	}

	h := &serverHandle{srv: srv, identity: spec.Identity, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		if err := srv.Serve(context.Background()); err != nil {
			h.err = err
		}
	}()

	// Serve binds before accepting; surface bind errors from Launch
	for !srv.Addr().IsValid() {
		select {
		case <-h.done:
			return nil, fmt.Errorf("node %s failed to start: %w", spec.Identity.Label, h.err)
		case <-ctx.Done():
			srv.Stop()
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return h, nil
}

type serverHandle struct {
	srv      *node.Server
	identity types.Identity
	done     chan struct{}
	err      error
	stopOnce sync.Once
}

func (h *serverHandle) Identity() types.Identity { return h.identity }
func (h *serverHandle) PID() int                 { return 0 }
func (h *serverHandle) Done() <-chan struct{}    { return h.done }
func (h *serverHandle) Logs() string             { return "" }

// Server exposes the running node, mainly for tests
func (h *serverHandle) Server() *node.Server { return h.srv }

func (h *serverHandle) Stop(ctx context.Context) error {
	h.stopOnce.Do(h.srv.Stop)
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
