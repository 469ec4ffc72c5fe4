/*
Package types defines the data structures shared by every hypernet package.

# Core Types

  - Label: a node's position in the hypercube, an integer in [0, 2^d)
  - Identity: a label bound to the address its node listens on
  - Peer: the wire form of an identity inside peer-info messages
  - NodeStatus: lifecycle of a node as seen by the coordinator

Identities compare by label only:

	a := types.NewIdentity(3, netip.MustParseAddrPort("127.0.0.1:8003"))
	b := types.NewIdentity(3, netip.MustParseAddrPort("10.0.0.7:9000"))
	a.Equal(b) // true

Maps throughout the module are keyed by Label rather than by Identity so the
address never participates in lookups.

NoLabel is reserved for requests that originate outside the cube, such as the
coordinator's flood seed. It can never be a valid label because dimensions are
capped well below 32 bits.
*/
package types
