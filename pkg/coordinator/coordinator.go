package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/hypernet/pkg/client"
	"github.com/cuemby/hypernet/pkg/events"
	"github.com/cuemby/hypernet/pkg/health"
	"github.com/cuemby/hypernet/pkg/launcher"
	"github.com/cuemby/hypernet/pkg/log"
	"github.com/cuemby/hypernet/pkg/metrics"
	"github.com/cuemby/hypernet/pkg/topology"
	"github.com/cuemby/hypernet/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config holds coordinator configuration
type Config struct {
	// RequestTimeout bounds every call to a single node
	RequestTimeout time.Duration

	// LaunchTimeout bounds waiting for launched nodes to answer ping
	LaunchTimeout time.Duration

	// ConvergenceTimeout bounds WaitForConvergence
	ConvergenceTimeout time.Duration

	PollInterval time.Duration

	// Concurrency limits in-flight calls during fan-out
	Concurrency int

	// BestEffort makes collective operations contact every node and
	// report all failures alongside partial results. By default the first
	// failure aborts the operation.
	BestEffort bool

	// AdminAddr, when set, assigns each launched node an admin endpoint
	AdminAddr func(types.Label) string

	// Events receives an event per coordinator step; nil disables them
	Events *events.Broker
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestTimeout:     2 * time.Second,
		LaunchTimeout:      10 * time.Second,
		ConvergenceTimeout: 10 * time.Second,
		PollInterval:       50 * time.Millisecond,
		Concurrency:        16,
	}
}

// Coordinator drives collective operations against the nodes of one cube.
// It runs outside every node and only talks to them through client.Link.
type Coordinator struct {
	topo     *topology.Topology
	launcher launcher.Launcher
	cfg      Config
	link     *client.Link
	logger   zerolog.Logger

	mu      sync.Mutex
	handles map[types.Label]launcher.Handle
}

// New creates a coordinator for topo. l may be nil when the nodes were
// launched elsewhere and are only being operated on.
func New(topo *topology.Topology, l launcher.Launcher, cfg Config) *Coordinator {
	def := DefaultConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = def.LaunchTimeout
	}
	if cfg.ConvergenceTimeout <= 0 {
		cfg.ConvergenceTimeout = def.ConvergenceTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}

	return &Coordinator{
		topo:     topo,
		launcher: l,
		cfg:      cfg,
		link:     client.NewLink(cfg.RequestTimeout),
		logger:   log.WithComponent("coordinator"),
		handles:  make(map[types.Label]launcher.Handle),
	}
}

// Topology returns the cube being coordinated
func (c *Coordinator) Topology() *topology.Topology {
	return c.topo
}

// Link returns the link used for node calls
func (c *Coordinator) Link() *client.Link {
	return c.link
}

// Launch starts every node and waits until all of them answer ping. On any
// failure the nodes already started are stopped again.
func (c *Coordinator) Launch(ctx context.Context) error {
	if c.launcher == nil {
		return errors.New("coordinator has no launcher")
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CoordinatorOpDuration, "launch")

	for _, id := range c.topo.Identities() {
		spec := launcher.Spec{Identity: id, Dimension: c.topo.Dimension()}
		if c.cfg.AdminAddr != nil {
			spec.AdminAddr = c.cfg.AdminAddr(id.Label)
		}

		h, err := c.launcher.Launch(ctx, spec)
		if err != nil {
			metrics.CoordinatorCallsTotal.WithLabelValues("launch", "error").Inc()
			c.publish(events.EventNodeFailed, fmt.Sprintf("node %s failed to launch", id.Label), map[string]string{
				"label": id.Label.String(),
				"error": err.Error(),
			})
			c.stopAfterFailure()
			return fmt.Errorf("failed to launch node %s: %w", id.Label, err)
		}
		metrics.CoordinatorCallsTotal.WithLabelValues("launch", "ok").Inc()

		c.mu.Lock()
		c.handles[id.Label] = h
		c.mu.Unlock()

		c.logger.Debug().Str("label", id.Label.String()).Int("pid", h.PID()).Str("addr", id.Address()).Msg("Node launched")
		c.publish(events.EventNodeLaunched, fmt.Sprintf("node %s launched on %s", id.Label, id.Addr), map[string]string{
			"label": id.Label.String(),
			"addr":  id.Address(),
			"pid":   fmt.Sprint(h.PID()),
		})
	}

	if err := c.WaitReady(ctx); err != nil {
		c.stopAfterFailure()
		return err
	}
	return nil
}

// WaitReady probes every node with ping until all answer or the launch
// timeout expires
func (c *Coordinator) WaitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LaunchTimeout)
	defer cancel()

	hc := health.DefaultConfig()
	hc.Timeout = c.cfg.RequestTimeout
	hc.StartPeriod = c.cfg.LaunchTimeout

	// every node must come up, regardless of BestEffort
	err := c.fanOut(ctx, "ready", false, func(ctx context.Context, id types.Identity) error {
		_, err := health.WaitHealthy(ctx, health.NewPingChecker(id, c.link), hc)
		return err
	})
	if err != nil {
		return err
	}

	c.logger.Info().Int("dimension", c.topo.Dimension()).Int("nodes", c.topo.Size()).Msg("Cube ready")
	c.publish(events.EventCubeReady, fmt.Sprintf("%d nodes answering", c.topo.Size()), map[string]string{
		"dimension": fmt.Sprint(c.topo.Dimension()),
	})
	return nil
}

// Handles returns the handles of launched nodes in label order
func (c *Coordinator) Handles() []launcher.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]launcher.Handle, 0, len(c.handles))
	for _, h := range c.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity().Label < out[j].Identity().Label })
	return out
}

// Shutdown stops every launched node
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	handles := c.handles
	c.handles = make(map[types.Label]launcher.Handle)
	c.mu.Unlock()

	if len(handles) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for label, h := range handles {
		wg.Add(1)
		go func(label types.Label, h launcher.Handle) {
			defer wg.Done()
			if err := h.Stop(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("node %s: %w", label, err))
				mu.Unlock()
			}
		}(label, h)
	}
	wg.Wait()

	c.logger.Info().Int("nodes", len(handles)).Msg("Cube stopped")
	c.publish(events.EventCubeStopped, fmt.Sprintf("%d nodes stopped", len(handles)), nil)
	return errors.Join(errs...)
}

func (c *Coordinator) stopAfterFailure() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to stop nodes after launch failure")
	}
}

// fanOut calls fn for every node with at most cfg.Concurrency calls in
// flight. In best-effort mode every node is called and all failures are
// returned; otherwise the first failure cancels the remaining calls.
func (c *Coordinator) fanOut(ctx context.Context, op string, bestEffort bool, fn func(context.Context, types.Identity) error) error {
	var (
		mu       sync.Mutex
		failures = make(map[types.Label]error)
	)

	g := &errgroup.Group{}
	gctx := ctx
	if !bestEffort {
		g, gctx = errgroup.WithContext(ctx)
	}
	g.SetLimit(c.cfg.Concurrency)

	for _, id := range c.topo.Identities() {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				if bestEffort {
					mu.Lock()
					failures[id.Label] = err
					mu.Unlock()
				}
				return err
			}

			err := fn(gctx, id)
			if err == nil {
				metrics.CoordinatorCallsTotal.WithLabelValues(op, "ok").Inc()
				return nil
			}
			metrics.CoordinatorCallsTotal.WithLabelValues(op, "error").Inc()

			mu.Lock()
			// after the first failure the others only see cancellation
			if bestEffort || len(failures) == 0 {
				failures[id.Label] = err
			}
			mu.Unlock()
			return err
		})
	}
	_ = g.Wait()

	if len(failures) == 0 {
		return nil
	}
	gerr := &GatherError{Op: op, Total: c.topo.Size(), Failures: failures}
	c.logger.Warn().Str("op", op).Ints("labels", labelsAsInts(gerr.Labels())).Msg("Collective operation failed")
	return gerr
}

func (c *Coordinator) publish(t events.EventType, message string, metadata map[string]string) {
	c.cfg.Events.Publish(events.NewEvent(t, message, metadata))
}

func labelsAsInts(labels []types.Label) []int {
	out := make([]int, len(labels))
	for i, l := range labels {
		out[i] = int(l)
	}
	return out
}
