package protocol

import "errors"

var (
	// ErrFrameTooLarge is returned when an encoded message exceeds MaxFrameSize
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrMalformedFrame is returned when bytes do not decode to a Message
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnsupportedRequest is reported when a node receives a well-formed
	// message that is not a request
	ErrUnsupportedRequest = errors.New("unsupported request")
)
