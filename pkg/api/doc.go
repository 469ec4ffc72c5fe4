/*
Package api implements the node admin HTTP endpoint.

The admin endpoint runs beside a node's protocol listener and never
changes node state:

	GET /health        component health (listener, peers)
	GET /ready         200 once the listener is up and every neighbor is known
	GET /live          process liveness
	GET /metrics       Prometheus metrics
	GET /state         label, address, dimension, value and peer table
	GET /state/value   label and value only
	GET /state/peers   peer table only

Any method other than GET, HEAD or OPTIONS is answered with 405.
*/
package api
