package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cuemby/hypernet/pkg/config"
	"github.com/cuemby/hypernet/pkg/coordinator"
	"github.com/cuemby/hypernet/pkg/log"
	"github.com/cuemby/hypernet/pkg/storage"
	"github.com/cuemby/hypernet/pkg/topology"
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hypernet",
	Short: "Hypernet - hypercube overlay network coordinator",
	Long: `Hypernet launches 2^d hypernode processes, wires them into a
d-dimensional hypercube and runs collective operations across them:
value queries, monotonic floods and spanning-tree broadcasts.

Running cubes are recorded in <data-dir>/hypernet.db so later commands
can find them.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Hypernet version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	addGlobalFlags(rootCmd)
}

// addGlobalFlags registers the flags every command accepts
func addGlobalFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringP("config", "c", "", "Path to hypernet.yaml")
	pf.String("name", "", "Cube name (default from config: \"default\")")
	pf.String("data-dir", "", "Directory for the state store and node logs")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.Bool("json", false, "Log as JSON")
	pf.Bool("best-effort", false, "Contact every node and report failures with partial results")
	pf.Duration("timeout", 0, "Per-node request timeout")
}

// loadConfig reads the config file, if any, and applies command-line
// overrides on top
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	fs := cmd.Flags()

	cfg := config.Default()
	if path, _ := fs.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if fs.Changed("name") {
		cfg.Name, _ = fs.GetString("name")
	}
	if fs.Changed("data-dir") {
		cfg.DataDir, _ = fs.GetString("data-dir")
	}
	if fs.Changed("log-level") {
		cfg.Log.Level, _ = fs.GetString("log-level")
	}
	if fs.Changed("json") {
		cfg.Log.JSON, _ = fs.GetBool("json")
	}
	if fs.Changed("best-effort") {
		cfg.BestEffort, _ = fs.GetBool("best-effort")
	}
	if fs.Changed("timeout") {
		cfg.Timeouts.Request, _ = fs.GetDuration("timeout")
	}
	if fs.Changed("dimension") {
		cfg.Dimension, _ = fs.GetInt("dimension")
	}
	if fs.Changed("host") {
		cfg.Host, _ = fs.GetString("host")
	}
	if fs.Changed("node-binary") {
		cfg.NodeBinary, _ = fs.GetString("node-binary")
	}
	if fs.Changed("admin-base-port") {
		cfg.AdminBasePort, _ = fs.GetInt("admin-base-port")
	}
	if fs.Changed("allocator") {
		cfg.Allocator, _ = fs.GetString("allocator")
	}
	if fs.Changed("in-process") {
		if inProcess, _ := fs.GetBool("in-process"); inProcess {
			cfg.Launcher = config.LauncherInProcess
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     cmd.ErrOrStderr(),
	})
	return cfg, nil
}

// addCubeFlags registers the flags that shape a new cube
func addCubeFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("dimension", "d", 0, "Hypercube dimension (default from config: 3)")
	cmd.Flags().String("host", "", "Address the nodes bind and are reached on")
	cmd.Flags().String("allocator", "", "Port allocator: range or ephemeral")
	cmd.Flags().String("node-binary", "", "Path to the hypernode binary")
	cmd.Flags().Int("admin-base-port", 0, "Give node L an admin endpoint on this port + L")
}

func coordinatorConfig(cfg *config.Config) coordinator.Config {
	cc := coordinator.Config{
		RequestTimeout:     cfg.Timeouts.Request,
		LaunchTimeout:      cfg.Timeouts.Launch,
		ConvergenceTimeout: cfg.Timeouts.Convergence,
		PollInterval:       cfg.Timeouts.PollInterval,
		Concurrency:        cfg.Concurrency,
		BestEffort:         cfg.BestEffort,
	}
	if cfg.AdminBasePort > 0 {
		host, base := cfg.Host, cfg.AdminBasePort
		cc.AdminAddr = func(l types.Label) string {
			return net.JoinHostPort(host, strconv.Itoa(base+int(l)))
		}
	}
	return cc
}

func openStore(cfg *config.Config) (*storage.BoltStore, error) {
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return store, nil
}

// attach loads the recorded cube and returns a coordinator operating on
// its running nodes
func attach(cmd *cobra.Command) (*coordinator.Coordinator, *types.Cube, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	cube, err := store.GetCube(cfg.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("cube %q: %w (run \"hypernet up\" first)", cfg.Name, err)
	}
	topo, err := topology.FromAddresses(cube.Dimension, cube.Addresses())
	if err != nil {
		return nil, nil, fmt.Errorf("cube %q has a corrupt record: %w", cfg.Name, err)
	}
	return coordinator.New(topo, nil, coordinatorConfig(cfg)), cube, nil
}

func parseLabel(s string, d int) (types.Label, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid label %q", s)
	}
	label := types.Label(n)
	if !topology.IsValidLabel(label, d) {
		return 0, fmt.Errorf("label %s is not a node of a %d-cube", label, d)
	}
	return label, nil
}
