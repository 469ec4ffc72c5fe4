package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Node metrics
	NodeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hypernet_node_requests_total",
			Help: "Total number of requests served by this node by message kind and status",
		},
		[]string{"kind", "status"},
	)

	NodeRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hypernet_node_request_duration_seconds",
			Help:    "Time from accepting a connection to writing its response",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	FramesRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hypernet_frames_rejected_total",
			Help: "Total number of incoming frames rejected before dispatch by reason",
		},
		[]string{"reason"},
	)

	ForwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hypernet_forwards_total",
			Help: "Total number of messages relayed to neighbors by kind and result",
		},
		[]string{"kind", "result"},
	)

	NodeValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hypernet_node_value",
			Help: "Current local scalar of each node by label",
		},
		[]string{"label"},
	)

	NodePeers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hypernet_node_peers",
			Help: "Number of entries in each node's peer table by label",
		},
		[]string{"label"},
	)

	// Coordinator metrics
	CoordinatorCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hypernet_coordinator_calls_total",
			Help: "Total number of coordinator calls to nodes by operation and status",
		},
		[]string{"op", "status"},
	)

	CoordinatorOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hypernet_coordinator_op_duration_seconds",
			Help:    "Duration of collective operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	CubeNodesReachable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hypernet_cube_nodes_reachable",
			Help: "Number of nodes that answered the last value query",
		},
	)

	CubeNodesVisited = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hypernet_cube_nodes_visited",
			Help: "Number of nodes holding a non-zero value at the last value query",
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hypernet_reconciliation_duration_seconds",
			Help:    "Time taken for reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hypernet_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	PeerTablesRepairedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hypernet_peer_tables_repaired_total",
			Help: "Total number of incomplete peer tables sent again by the reconciler",
		},
	)
)

func init() {
	prometheus.MustRegister(NodeRequestsTotal)
	prometheus.MustRegister(NodeRequestDuration)
	prometheus.MustRegister(FramesRejectedTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(PeerTablesRepairedTotal)
	prometheus.MustRegister(ForwardsTotal)
	prometheus.MustRegister(NodeValue)
	prometheus.MustRegister(NodePeers)
	prometheus.MustRegister(CoordinatorCallsTotal)
	prometheus.MustRegister(CoordinatorOpDuration)
	prometheus.MustRegister(CubeNodesReachable)
	prometheus.MustRegister(CubeNodesVisited)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
