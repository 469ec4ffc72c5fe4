/*
Package topology computes the structure of a d-dimensional hypercube.

A cube of dimension d has 2^d nodes labelled 0..2^d-1. Two nodes are
neighbors iff their labels differ in exactly one bit, so every node has
exactly d neighbors:

	d = 3

	    110 ────── 111
	   ╱ │        ╱ │
	 010 ────── 011 │
	  │ 100 ─────│ 101
	  │ ╱        │ ╱
	 000 ────── 001

	Neighbors(000) = {001, 010, 100}
	Neighbors(101) = {100, 111, 001}

Build asks a network.Allocator for 2^d addresses and assigns address i to
label i. Labels are never renumbered. FromAddresses rebuilds the same
structure over a stored assignment.

The package also carries the pure label arithmetic the protocols need:
NeighborLabels, HammingDistance, and BroadcastChildren, which defines the
binomial spanning tree used to broadcast from an arbitrary origin.
*/
package topology
