package reconciler

import (
	"context"
	"time"

	"github.com/cuemby/hypernet/pkg/coordinator"
	"github.com/cuemby/hypernet/pkg/log"
	"github.com/cuemby/hypernet/pkg/metrics"
	"github.com/cuemby/hypernet/pkg/types"
	"github.com/rs/zerolog"
)

// Cube is the part of the coordinator the reconciler needs
type Cube interface {
	Inspect(ctx context.Context) []coordinator.NodeStatus
	SendPeers(ctx context.Context, label types.Label) error
}

// Reconciler keeps every reachable node's peer table complete. A node that
// restarted comes back with an empty table and is sent its neighbors again.
type Reconciler struct {
	cube      Cube
	dimension int
	interval  time.Duration
	timeout   time.Duration
	logger    zerolog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewReconciler creates a reconciler for a cube of the given dimension
func NewReconciler(cube Cube, dimension int, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Reconciler{
		cube:      cube,
		dimension: dimension,
		interval:  interval,
		timeout:   interval,
		logger:    log.WithComponent("reconciler"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the loop and waits for a running cycle to finish
func (r *Reconciler) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reconciler) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			r.reconcile(ctx)
			cancel()
		case <-r.stopCh:
			return
		}
	}
}

// reconcile performs one cycle and returns how many tables it repaired
func (r *Reconciler) reconcile(ctx context.Context) int {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	repaired := 0
	for _, st := range r.cube.Inspect(ctx) {
		if !st.Reachable {
			r.logger.Debug().Str("label", st.Label.String()).Str("error", st.Error).Msg("Node unreachable")
			continue
		}
		if st.Peers >= r.dimension {
			continue
		}

		if err := r.cube.SendPeers(ctx, st.Label); err != nil {
			r.logger.Warn().Err(err).Str("label", st.Label.String()).Msg("Failed to repair peer table")
			continue
		}
		repaired++
		metrics.PeerTablesRepairedTotal.Inc()
		r.logger.Info().Str("label", st.Label.String()).Int("had", st.Peers).Msg("Peer table repaired")
	}
	return repaired
}
