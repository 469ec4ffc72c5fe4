package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/cuemby/hypernet/pkg/config"
	"github.com/cuemby/hypernet/pkg/coordinator"
	"github.com/cuemby/hypernet/pkg/health"
	"github.com/cuemby/hypernet/pkg/launcher"
	"github.com/cuemby/hypernet/pkg/storage"
	"github.com/cuemby/hypernet/pkg/topology"
	"github.com/cuemby/hypernet/pkg/types"
	"github.com/spf13/cobra"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Launch a cube of detached hypernode processes",
	Long: `Launch 2^d hypernode processes, wait until every node answers ping and
send each node its neighbors. The nodes keep running after this command
exits; stop them with "hypernet down".

Examples:
  # 3-cube on the default ports
  hypernet up -d 3

  # 4-cube with admin endpoints on 9100-9115
  hypernet up -d 4 --admin-base-port 9100`,
	RunE: runUp,
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop every node of a cube",
	RunE:  runDown,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show every node's value, peers and health",
	RunE:  runStatus,
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recorded cubes",
	RunE:  runList,
}

func init() {
	addCubeFlags(upCmd)

	statusCmd.Flags().BoolP("watch", "w", false, "Refresh until interrupted")
	statusCmd.Flags().Duration("interval", 2*time.Second, "Refresh interval for --watch")
	statusCmd.Flags().StringP("output", "o", "table", "Output format: table or json")

	rootCmd.AddCommand(upCmd, downCmd, statusCmd, lsCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Launcher != config.LauncherProcess {
		return errors.New("up launches detached processes; use \"hypernet run --in-process\" for an in-process cube")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.GetCube(cfg.Name); err == nil {
		return fmt.Errorf("cube %q is already up; run \"hypernet down\" first", cfg.Name)
	} else if !errors.Is(err, storage.ErrNotFound) {
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

	pl := launcher.NewProcessLauncher(cfg.NodeBinary)
	pl.BindHost = cfg.Host
	pl.LogLevel = cfg.Log.Level
	pl.ForwardTimeout = cfg.Timeouts.Forward
	pl.LogDir = filepath.Join(cfg.DataDir, "logs", cfg.Name)

	cc := coordinatorConfig(cfg)
	c := coordinator.New(topo, pl, cc)

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Launching %d nodes (d=%d)...\n", topo.Size(), topo.Dimension())
	if err := c.Launch(ctx); err != nil {
		return err
	}
	if err := c.DistributePeers(ctx); err != nil {
		_ = c.Shutdown(context.Background())
		return fmt.Errorf("failed to distribute peers: %w", err)
	}

	cube := &types.Cube{
		Name:      cfg.Name,
		Dimension: topo.Dimension(),
		CreatedAt: time.Now(),
	}
	for _, h := range c.Handles() {
		id := h.Identity()
		rec := types.NodeRecord{Label: id.Label, Addr: id.Addr, PID: h.PID(), Status: types.NodeStatusReady}
		if cc.AdminAddr != nil {
			rec.AdminAddr = cc.AdminAddr(id.Label)
		}
		cube.Nodes = append(cube.Nodes, rec)
	}
	if err := store.SaveCube(cube); err != nil {
		_ = c.Shutdown(context.Background())
		return fmt.Errorf("failed to record cube: %w", err)
	}

	fmt.Fprintf(out, "✓ Cube %q is up\n", cfg.Name)
	printNodes(out, cube)
	fmt.Fprintf(out, "\nNode logs: %s\n", pl.LogDir)
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	cube, err := store.GetCube(cfg.Name)
	if err != nil {
		return fmt.Errorf("cube %q: %w", cfg.Name, err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	var errs []error
	for _, n := range cube.Nodes {
		if n.PID <= 0 {
			continue
		}
		if err := launcher.StopPID(ctx, n.PID); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", n.Label, err))
			n.Status = types.NodeStatusFailed
		} else {
			n.Status = types.NodeStatusStopped
		}
		_ = store.UpdateNode(cfg.Name, n)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if err := store.DeleteCube(cfg.Name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Cube %q stopped (%d nodes)\n", cfg.Name, len(cube.Nodes))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	cubes, err := store.ListCubes()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDIMENSION\tNODES\tCREATED")
	for _, c := range cubes {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", c.Name, c.Dimension, len(c.Nodes), c.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

// statusRow is one line of "hypernet status"
type statusRow struct {
	coordinator.NodeStatus
	PID   int    `json:"pid,omitempty"`
	Admin string `json:"admin,omitempty"`
	Ready string `json:"ready,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	interval, _ := cmd.Flags().GetDuration("interval")
	output, _ := cmd.Flags().GetString("output")
	if output != "table" && output != "json" {
		return fmt.Errorf("unknown output format %q", output)
	}

	c, cube, err := attach(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	for {
		rows := collectStatus(ctx, c, cube)
		if err := printStatus(cmd.OutOrStdout(), cube, rows, output); err != nil {
			return err
		}
		if !watch {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
			fmt.Fprintln(cmd.OutOrStdout())
		}
	}
}

func collectStatus(ctx context.Context, c *coordinator.Coordinator, cube *types.Cube) []statusRow {
	nodes := c.Inspect(ctx)
	rows := make([]statusRow, len(nodes))
	for i, n := range nodes {
		rows[i] = statusRow{NodeStatus: n}
		if i >= len(cube.Nodes) {
			continue
		}
		rec := cube.Nodes[i]
		rows[i].PID = rec.PID
		rows[i].Admin = rec.AdminAddr
		if rec.AdminAddr != "" {
			result := health.NewHTTPChecker("http://" + rec.AdminAddr + "/ready").
				WithTimeout(c.Link().Timeout()).
				Check(ctx)
			rows[i].Ready = "ready"
			if !result.Healthy {
				rows[i].Ready = "not ready"
			}
		}
	}
	return rows
}

func printStatus(out io.Writer, cube *types.Cube, rows []statusRow, output string) error {
	if output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tBITS\tADDRESS\tPID\tVALUE\tPEERS\tREADY\tERROR")
	for _, r := range rows {
		value, peers := "-", "-"
		if r.Reachable {
			value = fmt.Sprint(r.Value)
			peers = fmt.Sprintf("%d/%d", r.Peers, cube.Dimension)
		}
		ready := r.Ready
		if ready == "" {
			ready = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.Label, r.Label.Bits(cube.Dimension), r.Address, r.PID, value, peers, ready, r.Error)
	}
	return w.Flush()
}

func printNodes(out io.Writer, cube *types.Cube) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tBITS\tADDRESS\tPID\tADMIN")
	for _, n := range cube.Nodes {
		admin := n.AdminAddr
		if admin == "" {
			admin = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", n.Label, n.Label.Bits(cube.Dimension), n.Addr, n.PID, admin)
	}
	_ = w.Flush()
}
