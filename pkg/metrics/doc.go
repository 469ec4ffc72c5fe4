/*
Package metrics provides Prometheus metrics and health reporting for hypernet.

All collectors are registered with the default Prometheus registry at package
init and served by Handler. Node processes count every request they serve,
every frame they reject before dispatch, and every message they relay to a
neighbor. The coordinator records per-call outcomes and the duration of each
collective operation.

# Metrics

Node:

	hypernet_node_requests_total{kind,status}
	hypernet_node_request_duration_seconds{kind}
	hypernet_frames_rejected_total{reason}
	hypernet_forwards_total{kind,result}
	hypernet_node_value{label}
	hypernet_node_peers{label}

Coordinator:

	hypernet_coordinator_calls_total{op,status}
	hypernet_coordinator_op_duration_seconds{op}
	hypernet_cube_nodes_reachable
	hypernet_cube_nodes_visited

Reconciler:

	hypernet_reconciliation_duration_seconds
	hypernet_reconciliation_cycles_total
	hypernet_peer_tables_repaired_total

The cube gauges are maintained by a Collector, which polls a ValueSource
(normally the coordinator) on an interval.

# Health

Each node server owns a Health registry, so nodes running in one process
report independently. Status is unhealthy when any component is. Readiness
only considers the critical components, normally the node's listener and its
peer table, so a node turns ready once its neighbors have been distributed
to it.

	h := metrics.NewHealth(metrics.ComponentListener, metrics.ComponentPeers)
	h.Set(metrics.ComponentListener, true, addr.String())
	h.Set(metrics.ComponentPeers, len(peers) >= d, "")

HealthHandler, ReadyHandler and LivenessHandler serve these as JSON.

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CoordinatorOpDuration, "flood")
*/
package metrics
