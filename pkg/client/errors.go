package client

import (
	"errors"
	"fmt"

	"github.com/cuemby/hypernet/pkg/protocol"
	"github.com/cuemby/hypernet/pkg/types"
)

var (
	// ErrConnectionFailed is returned when the TCP connect to a node fails
	ErrConnectionFailed = errors.New("connection failed")

	// ErrTimeout is returned when no response arrives before the deadline
	ErrTimeout = errors.New("timeout")

	// ErrNoResponse is returned when a node closes the connection without
	// answering, which it does for frames it rejects before dispatch
	ErrNoResponse = errors.New("connection closed without response")

	// ErrUnexpectedResponse is returned when a node answers with a variant
	// that does not match the request
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// CallError attributes a failed request to the node it was sent to
type CallError struct {
	Label types.Label
	Kind  protocol.Kind
	Err   error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s to node %s: %v", e.Kind, e.Label, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// RemoteError is a node's Err response
type RemoteError struct {
	Text string
}

func (e *RemoteError) Error() string {
	return "remote error: " + e.Text
}
