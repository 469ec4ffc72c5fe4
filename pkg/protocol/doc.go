/*
Package protocol defines the hypernet wire protocol: the closed set of
messages exchanged between the coordinator and the nodes, their binary
encoding, and the framing used on TCP connections.

# Messages

Every message is one of the variants below. Requests are served by a node;
responses only ever travel back on the connection that carried the request.

	Request        Response
	-------        --------
	Ping           Pong
	GetValue       Value(n)
	Value(n)       Ok              overwrite the node's scalar
	SetPeerInfo    Ok              overwrite peer-table entries
	GetPeerInfo    PeerInfo
	Propagate      Ok              one step of the monotonic flood
	Broadcast      Ok | Err        relayed along the binomial spanning tree
	anything else  Err

Nodes implement Handler. Each message type dispatches itself to the matching
Handler method, so a new request kind cannot be added without every handler
growing a case for it.

# Encoding

Frames use the protobuf wire format, written with protowire rather than
generated code. Field 1 is always the Kind; variant fields start at 2:

	Err          2: text (bytes)
	Value        2: n (varint)
	SetPeerInfo  2: peer (repeated, embedded)
	PeerInfo     2: peer (repeated, embedded, ascending label order)
	Propagate    2: sender (varint)  3: value (varint)
	Broadcast    2: id (bytes)       3: origin (varint)  4: value (varint)

	embedded peer  1: label (varint)  2: ip (4 or 16 bytes)  3: port (varint)

Decoding is strict: unknown kinds, unknown or duplicated fields, wrong wire
types, out-of-range labels and ports, and truncated input all fail with
ErrMalformedFrame.

# Framing

A connection carries exactly one request frame and one response frame. The
writer half-closes the connection after its frame, and the reader consumes
until EOF. No frame may exceed MaxFrameSize (1024 bytes): Encode refuses to
produce one, and ReadFrame stops reading at MaxFrameSize+1 bytes and fails
with ErrFrameTooLarge.
*/
package protocol
