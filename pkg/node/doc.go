/*
Package node implements a single hypercube node.

A Server binds one TCP address and runs an accept loop. Every accepted
connection carries exactly one request frame and receives exactly one
response frame; each connection is served on its own goroutine so a slow
client never blocks the loop.

	conn ──► ReadFrame ──► Decode ──► Dispatch ──► Encode ──► WriteFrame ──► close
	            │             │
	            │             └─ malformed: answer Err
	            └─ oversize: close without answering

# State

State holds the node's scalar value, its peer table and the ids of the
broadcasts it has seen, behind a single mutex. Every operation is one short
critical section; relays to neighbors happen after the lock is released.

# Flood

Propagate applies a check-and-set on the value. An unvisited node (value 0)
stores p+1 and relays to every neighbor except the sender; a visited node adds
p and stops. The seed sent by the coordinator has no sender and its payload is
relayed unchanged, so the origin and its neighbors all end at 1. Relays run in
the background after the response, each with its own deadline, and failures
are only logged and counted. Because duplicate arrivals add to visited nodes,
the final values past the first hop depend on delivery order.

# Broadcast

A broadcast travels down the binomial spanning tree rooted at its origin:
relative to the origin, a node relays along every dimension above the highest
bit of its relative label. Each node therefore receives it once and the
deepest node is d hops away. Relays are synchronous, so a node answers Ok only
when its whole subtree has the value, and answers Err naming the labels it
could not reach otherwise. Receivers remember broadcast ids and ignore
repeats.
*/
package node
