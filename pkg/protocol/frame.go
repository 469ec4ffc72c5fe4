package protocol

import (
	"fmt"
	"io"
)

// halfCloser is implemented by *net.TCPConn
type halfCloser interface {
	CloseWrite() error
}

// ReadFrame reads one frame: everything the peer writes before it closes its
// sending side. At most MaxFrameSize+1 bytes are consumed; anything longer is
// rejected with ErrFrameTooLarge without reading further.
func ReadFrame(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxFrameSize+1))
	if err != nil {
		return nil, err
	}
	if len(b) > MaxFrameSize {
		return nil, fmt.Errorf("%w: more than %d bytes received", ErrFrameTooLarge, MaxFrameSize)
	}
	return b, nil
}

// WriteFrame writes one frame and, when w supports it, closes the sending
// side so the peer's ReadFrame sees the end of the frame.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, len(frame), MaxFrameSize)
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	if hc, ok := w.(halfCloser); ok {
		return hc.CloseWrite()
	}
	return nil
}
