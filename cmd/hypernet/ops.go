package main

import (
	"fmt"
	"io"
	"net/netip"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/cuemby/hypernet/pkg/types"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print every node's value",
	RunE:  runQuery,
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that every node answers",
	RunE:  runPing,
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Send every node its neighbors again, or show the peer tables",
	RunE:  runPeers,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Set every node's value back to zero",
	RunE:  runReset,
}

var floodCmd = &cobra.Command{
	Use:   "flood <origin>",
	Short: "Seed a monotonic flood and wait for it to visit every node",
	Long: `Seed a monotonic flood at <origin>.

The first time a node is reached it takes the received value plus one and
forwards to all of its neighbors; later arrivals are added to its value
and not forwarded. The command waits until every node holds a non-zero
value, then prints the values.

Examples:
  hypernet flood 0
  hypernet flood 5 --reset`,
	Args: cobra.ExactArgs(1),
	RunE: runFlood,
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <origin> <value>",
	Short: "Deliver a value to every node over the spanning tree rooted at <origin>",
	Args:  cobra.ExactArgs(2),
	RunE:  runBroadcast,
}

func init() {
	peersCmd.Flags().Bool("show", false, "Show each node's peer table instead of sending it")
	floodCmd.Flags().Bool("reset", false, "Reset every value before seeding")
	floodCmd.Flags().Bool("no-wait", false, "Return once the origin accepted the seed")

	rootCmd.AddCommand(queryCmd, pingCmd, peersCmd, resetCmd, floodCmd, broadcastCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	c, cube, err := attach(cmd)
	if err != nil {
		return err
	}

	values, err := c.QueryAll(cmd.Context())
	if values != nil {
		printValues(cmd.OutOrStdout(), cube.Dimension, values)
	}
	return err
}

func runPing(cmd *cobra.Command, args []string) error {
	c, cube, err := attach(cmd)
	if err != nil {
		return err
	}
	if err := c.PingAll(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ All %d nodes answered\n", len(cube.Nodes))
	return nil
}

func runPeers(cmd *cobra.Command, args []string) error {
	show, _ := cmd.Flags().GetBool("show")

	c, cube, err := attach(cmd)
	if err != nil {
		return err
	}

	if !show {
		if err := c.DistributePeers(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Peer tables sent to %d nodes\n", len(cube.Nodes))
		return nil
	}

	tables, err := c.GatherPeers(cmd.Context())
	if tables != nil {
		printPeers(cmd.OutOrStdout(), cube.Dimension, tables)
	}
	return err
}

func runReset(cmd *cobra.Command, args []string) error {
	c, cube, err := attach(cmd)
	if err != nil {
		return err
	}
	if err := c.Reset(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Reset %d nodes\n", len(cube.Nodes))
	return nil
}

func runFlood(cmd *cobra.Command, args []string) error {
	reset, _ := cmd.Flags().GetBool("reset")
	noWait, _ := cmd.Flags().GetBool("no-wait")

	c, cube, err := attach(cmd)
	if err != nil {
		return err
	}
	origin, err := parseLabel(args[0], cube.Dimension)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if reset {
		if err := c.Reset(ctx); err != nil {
			return err
		}
	}
	if err := c.Flood(ctx, origin); err != nil {
		return err
	}
	if noWait {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Flood seeded at node %s\n", origin)
		return nil
	}

	values, err := c.WaitForConvergence(ctx)
	if values != nil {
		printValues(cmd.OutOrStdout(), cube.Dimension, values)
	}
	return err
}

func runBroadcast(cmd *cobra.Command, args []string) error {
	c, cube, err := attach(cmd)
	if err != nil {
		return err
	}
	origin, err := parseLabel(args[0], cube.Dimension)
	if err != nil {
		return err
	}
	value, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value %q", args[1])
	}

	id, err := c.Broadcast(cmd.Context(), origin, value)
	if err != nil {
		return fmt.Errorf("broadcast %s: %w", id, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Broadcast %s delivered to %d nodes\n", id, len(cube.Nodes))
	return nil
}

func sortedLabels[V any](m map[types.Label]V) []types.Label {
	labels := make([]types.Label, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

func printValues(out io.Writer, d int, values map[types.Label]uint64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tBITS\tVALUE")
	for _, l := range sortedLabels(values) {
		fmt.Fprintf(w, "%s\t%s\t%d\n", l, l.Bits(d), values[l])
	}
	_ = w.Flush()
}

func printPeers(out io.Writer, d int, tables map[types.Label]map[types.Label]netip.AddrPort) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tPEER\tPEER BITS\tADDRESS")
	for _, l := range sortedLabels(tables) {
		peers := tables[l]
		if len(peers) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\n", l)
			continue
		}
		for _, p := range sortedLabels(peers) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l, p, p.Bits(d), peers[p])
		}
	}
	_ = w.Flush()
}
