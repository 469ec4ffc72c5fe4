package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/hypernet/pkg/config"
	"github.com/cuemby/hypernet/pkg/coordinator"
	"github.com/cuemby/hypernet/pkg/events"
	"github.com/cuemby/hypernet/pkg/launcher"
	"github.com/cuemby/hypernet/pkg/log"
	"github.com/cuemby/hypernet/pkg/metrics"
	"github.com/cuemby/hypernet/pkg/reconciler"
	"github.com/cuemby/hypernet/pkg/topology"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch a cube, flood it and print the values",
	Long: `Launch a cube owned by this command, distribute peers, seed a flood at
--origin and print every node's value once the flood has converged. The
nodes are stopped when the command exits.

With --serve the cube stays up until interrupted, the coordinator exposes
Prometheus metrics and the current values over HTTP, and nodes that lose
their peer table are sent it again.

Examples:
  hypernet run -d 4 --in-process
  hypernet run -d 3 --origin 5 --broadcast 42
  hypernet run -d 3 --in-process --serve --metrics-addr 127.0.0.1:9090`,
	RunE: runRun,
}

func init() {
	addCubeFlags(runCmd)
	runCmd.Flags().Bool("in-process", false, "Run every node inside this process")
	runCmd.Flags().Uint32("origin", 0, "Label of the flood origin")
	runCmd.Flags().Uint64("broadcast", 0, "Also broadcast this value from --origin")
	runCmd.Flags().Bool("serve", false, "Keep the cube up and serve coordinator metrics")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for --serve")
	runCmd.Flags().Bool("events", false, "Log coordinator events")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	originFlag, _ := cmd.Flags().GetUint32("origin")
	serve, _ := cmd.Flags().GetBool("serve")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	showEvents, _ := cmd.Flags().GetBool("events")

	origin, err := parseLabel(fmt.Sprint(originFlag), cfg.Dimension)
	if err != nil {
		return err
	}

	alloc, err := cfg.NewAllocator()
	if err != nil {
		return err
	}
	topo, err := topology.Build(cfg.Dimension, alloc)
	if err != nil {
		return err
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	if showEvents {
		sub := broker.Subscribe()
		defer broker.Unsubscribe(sub)
		go logEvents(sub)
	}

	cc := coordinatorConfig(cfg)
	cc.Events = broker
	c := coordinator.New(topo, newLauncher(cfg), cc)

	ctx := cmd.Context()
	if err := c.Launch(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.Shutdown(shutdownCtx)
	}()

	if err := c.DistributePeers(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	values, err := c.FloodAndWait(ctx, origin)
	if values != nil {
		fmt.Fprintf(out, "Flood from node %s (d=%d):\n", origin, topo.Dimension())
		printValues(out, topo.Dimension(), values)
	}
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("broadcast") {
		value, _ := cmd.Flags().GetUint64("broadcast")
		id, err := c.Broadcast(ctx, origin, value)
		if err != nil {
			return fmt.Errorf("broadcast %s: %w", id, err)
		}
		fmt.Fprintf(out, "✓ Broadcast %s delivered %d to %d nodes\n", id, value, topo.Size())
	}

	if !serve {
		return nil
	}
	return serveCoordinator(ctx, c, metricsAddr, cfg.Timeouts.PollInterval*20, out)
}

func newLauncher(cfg *config.Config) launcher.Launcher {
	if cfg.Launcher == config.LauncherInProcess {
		l := launcher.NewInProcess()
		l.ForwardTimeout = cfg.Timeouts.Forward
		return l
	}
	pl := launcher.NewProcessLauncher(cfg.NodeBinary)
	pl.BindHost = cfg.Host
	pl.LogLevel = cfg.Log.Level
	pl.ForwardTimeout = cfg.Timeouts.Forward
	return pl
}

// serveCoordinator exposes coordinator metrics and values until ctx ends
func serveCoordinator(ctx context.Context, c *coordinator.Coordinator, addr string, interval time.Duration, out io.Writer) error {
	collector := metrics.NewCollector(c, interval)
	collector.Start()
	defer collector.Stop()

	recon := reconciler.NewReconciler(c, c.Topology().Dimension(), interval)
	recon.Start()
	defer recon.Stop()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/values", func(w http.ResponseWriter, r *http.Request) {
		values, err := c.QueryAll(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if err != nil && values == nil {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(values)
	})
	r.Get("/nodes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(c.Inspect(r.Context()))
	})

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	server := &http.Server{Handler: r, ReadTimeout: 5 * time.Second, WriteTimeout: 30 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(l) }()
	fmt.Fprintf(out, "Serving metrics on http://%s/metrics. Press Ctrl+C to stop.\n", l.Addr())

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for ev := range sub {
		e := logger.Info().Str("type", string(ev.Type)).Str("id", ev.ID)
		for k, v := range ev.Metadata {
			e = e.Str(k, v)
		}
		e.Msg(ev.Message)
	}
}
