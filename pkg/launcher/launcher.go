package launcher

import (
	"context"

	"github.com/cuemby/hypernet/pkg/types"
)

// Spec describes one node to start
type Spec struct {
	Identity  types.Identity
	Dimension int

	// AdminAddr is the node's admin HTTP address; empty disables it
	AdminAddr string
}

// Handle owns one running node
type Handle interface {
	Identity() types.Identity

	// PID is the operating system process id, or 0 for in-process nodes
	PID() int

	// Stop asks the node to exit and waits for it until ctx ends, then
	// forces it
	Stop(ctx context.Context) error

	// Done is closed once the node has exited
	Done() <-chan struct{}

	// Logs returns the output captured from the node
	Logs() string
}

// Launcher starts nodes
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Handle, error)
}
