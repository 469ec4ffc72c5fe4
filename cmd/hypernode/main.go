package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cuemby/hypernet/pkg/api"
	"github.com/cuemby/hypernet/pkg/log"
	"github.com/cuemby/hypernet/pkg/metrics"
	"github.com/cuemby/hypernet/pkg/node"
	"github.com/cuemby/hypernet/pkg/types"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hypernode <label> <dimension> <port>",
	Short: "Run one hypercube node",
	Long: `Run one node of a hypercube overlay.

The node listens on <port> and answers one request per TCP connection.
It starts with value 0 and an empty peer table; the coordinator
(hypernet) sends it its neighbors.`,
	Args:          cobra.ExactArgs(3),
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runNode,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"hypernode version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.Flags().String("host", "0.0.0.0", "Address to bind")
	rootCmd.Flags().String("admin-addr", "", "Admin HTTP address (health, metrics, state); empty disables it")
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("json", false, "Log as JSON")
	rootCmd.Flags().Duration("forward-timeout", node.DefaultForwardTimeout, "Timeout for each relay to a neighbor")
}

// parseArgs validates the positional arguments
func parseArgs(args []string) (types.Label, int, uint16, error) {
	label, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid label %q: %w", args[0], err)
	}
	dim, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid dimension %q: %w", args[1], err)
	}
	port, err := strconv.ParseUint(args[2], 10, 16)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid port %q: %w", args[2], err)
	}
	return types.Label(label), dim, uint16(port), nil
}

func runNode(cmd *cobra.Command, args []string) error {
	host, _ := cmd.Flags().GetString("host")
	adminAddr, _ := cmd.Flags().GetString("admin-addr")
	level, _ := cmd.Flags().GetString("log-level")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	forwardTimeout, _ := cmd.Flags().GetDuration("forward-timeout")

	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
	metrics.SetVersion(Version)

	label, dim, port, err := parseArgs(args)
	if err != nil {
		return err
	}

	srv, err := node.NewServer(node.Config{
		Label:          label,
		Dimension:      dim,
		ListenAddr:     net.JoinHostPort(host, strconv.Itoa(int(port))),
		ForwardTimeout: forwardTimeout,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start node %s: %w", label, err)
	}
	logger := log.WithLabel("hypernode", label)

	var admin *api.AdminServer
	if adminAddr != "" {
		admin = api.NewAdminServer(srv.State(), srv.Health())
		if err := admin.Start(adminAddr); err != nil {
			srv.Stop()
			return fmt.Errorf("failed to start admin server: %w", err)
		}
	}

	logger.Info().Str("addr", srv.Addr().String()).Int("dimension", dim).Msg("Node running")
	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	if admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = admin.Shutdown(shutdownCtx)
	}
	srv.Stop()
	return nil
}
