package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/cuemby/hypernet/pkg/client"
	"github.com/cuemby/hypernet/pkg/events"
	"github.com/cuemby/hypernet/pkg/metrics"
	"github.com/cuemby/hypernet/pkg/protocol"
	"github.com/cuemby/hypernet/pkg/types"
	"github.com/google/uuid"
)

// QueryAll asks every node for its value. Unless BestEffort is set the
// first failure aborts the query and no values are returned; in best-effort
// mode the values of the nodes that answered come back with a *GatherError
// naming the rest.
func (c *Coordinator) QueryAll(ctx context.Context) (map[types.Label]uint64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CoordinatorOpDuration, "query")

	values, err := c.gather(ctx)
	c.logger.Debug().Int("answered", len(values)).Int("nodes", c.topo.Size()).Msg("Values gathered")
	c.publish(events.EventGatherCompleted, fmt.Sprintf("%d of %d nodes answered", len(values), c.topo.Size()), nil)
	return values, err
}

func (c *Coordinator) gather(ctx context.Context) (map[types.Label]uint64, error) {
	var mu sync.Mutex
	values := make(map[types.Label]uint64, c.topo.Size())

	err := c.fanOut(ctx, "query", c.cfg.BestEffort, func(ctx context.Context, id types.Identity) error {
		n, err := c.link.GetValue(ctx, id)
		if err != nil {
			return err
		}
		mu.Lock()
		values[id.Label] = n
		mu.Unlock()
		return nil
	})
	if err != nil && !c.cfg.BestEffort {
		return nil, err
	}
	return values, err
}

// PingAll checks that every node answers
func (c *Coordinator) PingAll(ctx context.Context) error {
	return c.fanOut(ctx, "ping", c.cfg.BestEffort, func(ctx context.Context, id types.Identity) error {
		return c.link.Ping(ctx, id)
	})
}

// DistributePeers sends every node its hypercube neighbors. A node's
// previous table is replaced.
func (c *Coordinator) DistributePeers(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CoordinatorOpDuration, "peers")

	err := c.fanOut(ctx, "peers", c.cfg.BestEffort, func(ctx context.Context, id types.Identity) error {
		return c.link.SetPeers(ctx, id, c.topo.Peers(id.Label))
	})
	if err != nil {
		return err
	}

	c.logger.Info().Int("nodes", c.topo.Size()).Int("degree", c.topo.Dimension()).Msg("Peer tables distributed")
	c.publish(events.EventPeersDistributed, fmt.Sprintf("%d peer tables sent", c.topo.Size()), nil)
	return nil
}

// SendPeers sends one node its hypercube neighbors
func (c *Coordinator) SendPeers(ctx context.Context, label types.Label) error {
	id, ok := c.topo.Identity(label)
	if !ok {
		return fmt.Errorf("label %s is not a node of a %d-cube", label, c.topo.Dimension())
	}
	return c.link.SetPeers(ctx, id, c.topo.Peers(label))
}

// GatherPeers reads back every node's peer table
func (c *Coordinator) GatherPeers(ctx context.Context) (map[types.Label]map[types.Label]netip.AddrPort, error) {
	var mu sync.Mutex
	tables := make(map[types.Label]map[types.Label]netip.AddrPort, c.topo.Size())

	err := c.fanOut(ctx, "get-peers", c.cfg.BestEffort, func(ctx context.Context, id types.Identity) error {
		peers, err := c.link.GetPeers(ctx, id)
		if err != nil {
			return err
		}
		mu.Lock()
		tables[id.Label] = peers
		mu.Unlock()
		return nil
	})
	if err != nil && !c.cfg.BestEffort {
		return nil, err
	}
	return tables, err
}

// Reset sets every node's value back to zero so another flood can run.
// Nodes keep their peer tables.
func (c *Coordinator) Reset(ctx context.Context) error {
	err := c.fanOut(ctx, "reset", c.cfg.BestEffort, func(ctx context.Context, id types.Identity) error {
		return c.link.SetValue(ctx, id, 0)
	})
	if err != nil {
		return err
	}
	c.publish(events.EventValuesReset, fmt.Sprintf("%d nodes reset", c.topo.Size()), nil)
	return nil
}

// Flood seeds a monotonic flood at origin. It returns once the origin has
// accepted the seed; the flood keeps spreading between the nodes afterwards.
func (c *Coordinator) Flood(ctx context.Context, origin types.Label) error {
	id, ok := c.topo.Identity(origin)
	if !ok {
		return fmt.Errorf("origin %s is not a node of a %d-cube", origin, c.topo.Dimension())
	}

	err := c.link.Propagate(ctx, id, types.NoLabel, 0)
	if err != nil {
		metrics.CoordinatorCallsTotal.WithLabelValues("flood", "error").Inc()
		return err
	}
	metrics.CoordinatorCallsTotal.WithLabelValues("flood", "ok").Inc()

	c.logger.Info().Str("origin", origin.String()).Msg("Flood seeded")
	c.publish(events.EventFloodSeeded, fmt.Sprintf("flood seeded at node %s", origin), map[string]string{
		"origin": origin.String(),
	})
	return nil
}

// WaitForConvergence polls every node's value until all of them are
// non-zero. The last values seen are returned even when the deadline
// passes first.
func (c *Coordinator) WaitForConvergence(ctx context.Context) (map[types.Label]uint64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CoordinatorOpDuration, "converge")

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConvergenceTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var (
		last    map[types.Label]uint64
		lastErr error
	)
	for {
		values, err := c.gather(ctx)
		if values != nil {
			last = values
		}
		lastErr = err

		if err == nil && visited(values) == c.topo.Size() {
			c.logger.Info().Dur("elapsed", timer.Duration()).Msg("Flood converged")
			c.publish(events.EventFloodConverged, fmt.Sprintf("all %d nodes visited", c.topo.Size()), map[string]string{
				"elapsed": timer.Duration().String(),
			})
			return values, nil
		}

		select {
		case <-ctx.Done():
			err := fmt.Errorf("%w: %d of %d nodes visited", ErrNotConverged, visited(last), c.topo.Size())
			if lastErr != nil && !errors.Is(lastErr, context.DeadlineExceeded) {
				err = errors.Join(err, lastErr)
			}
			return last, err
		case <-ticker.C:
		}
	}
}

// FloodAndWait seeds a flood at origin and waits for it to reach every node
func (c *Coordinator) FloodAndWait(ctx context.Context, origin types.Label) (map[types.Label]uint64, error) {
	if err := c.Flood(ctx, origin); err != nil {
		return nil, err
	}
	return c.WaitForConvergence(ctx)
}

// Broadcast delivers value to every node over the spanning tree rooted at
// origin and returns the broadcast id. It returns once every node has
// acknowledged; a *client.CallError wrapping a *client.RemoteError names the
// subtrees that could not be reached.
func (c *Coordinator) Broadcast(ctx context.Context, origin types.Label, value uint64) (string, error) {
	id, ok := c.topo.Identity(origin)
	if !ok {
		return "", fmt.Errorf("origin %s is not a node of a %d-cube", origin, c.topo.Dimension())
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CoordinatorOpDuration, "broadcast")

	msg := protocol.Broadcast{ID: uuid.NewString(), Origin: origin, Value: value}

	// each tree level may wait out one request timeout
	link := client.NewLink(c.cfg.RequestTimeout * time.Duration(c.topo.Dimension()+1))
	if err := link.Broadcast(ctx, id, msg); err != nil {
		metrics.CoordinatorCallsTotal.WithLabelValues("broadcast", "error").Inc()
		return msg.ID, err
	}
	metrics.CoordinatorCallsTotal.WithLabelValues("broadcast", "ok").Inc()

	c.logger.Info().Str("id", msg.ID).Str("origin", origin.String()).Uint64("value", value).Msg("Broadcast delivered")
	c.publish(events.EventBroadcastDelivered, fmt.Sprintf("broadcast %s delivered to %d nodes", msg.ID, c.topo.Size()), map[string]string{
		"id":     msg.ID,
		"origin": origin.String(),
		"value":  fmt.Sprint(value),
	})
	return msg.ID, nil
}

// NodeStatus is what Inspect learned about one node
type NodeStatus struct {
	Label     types.Label    `json:"label"`
	Address   netip.AddrPort `json:"address"`
	Reachable bool           `json:"reachable"`
	Value     uint64         `json:"value"`
	Peers     int            `json:"peers"`
	Error     string         `json:"error,omitempty"`
}

// Inspect reports the value and peer count of every node. It always
// contacts every node; unreachable ones are reported, not returned as an
// error.
func (c *Coordinator) Inspect(ctx context.Context) []NodeStatus {
	out := make([]NodeStatus, c.topo.Size())

	_ = c.fanOut(ctx, "inspect", true, func(ctx context.Context, id types.Identity) error {
		st := NodeStatus{Label: id.Label, Address: id.Addr}
		defer func() { out[id.Label] = st }()

		n, err := c.link.GetValue(ctx, id)
		if err != nil {
			st.Error = err.Error()
			return err
		}
		st.Reachable = true
		st.Value = n

		peers, err := c.link.GetPeers(ctx, id)
		if err != nil {
			st.Error = err.Error()
			return err
		}
		st.Peers = len(peers)
		return nil
	})
	return out
}

func visited(values map[types.Label]uint64) int {
	n := 0
	for _, v := range values {
		if v > 0 {
			n++
		}
	}
	return n
}
