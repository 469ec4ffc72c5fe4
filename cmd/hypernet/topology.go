package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/cuemby/hypernet/pkg/topology"
	"github.com/cuemby/hypernet/pkg/types"
	"github.com/spf13/cobra"
)

var topologyCmd = &cobra.Command{
	Use:   "topology <dimension>",
	Short: "Print the labels and neighbors of a d-cube",
	Long: `Print every label of a d-cube with its bit string and neighbors. With
--origin the broadcast spanning tree rooted there is shown instead.

Nothing is launched.`,
	Args: cobra.ExactArgs(1),
	RunE: runTopology,
}

func init() {
	topologyCmd.Flags().Int64("origin", -1, "Show the broadcast tree rooted at this label")
	rootCmd.AddCommand(topologyCmd)
}

func runTopology(cmd *cobra.Command, args []string) error {
	var d int
	if _, err := fmt.Sscan(args[0], &d); err != nil {
		return fmt.Errorf("invalid dimension %q", args[0])
	}
	if d < 0 || d > topology.MaxDimension {
		return fmt.Errorf("dimension %d out of range [0, %d]", d, topology.MaxDimension)
	}
	origin, _ := cmd.Flags().GetInt64("origin")
	if origin >= int64(topology.Size(d)) {
		return fmt.Errorf("label %d is not a node of a %d-cube", origin, d)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	if origin < 0 {
		fmt.Fprintln(w, "LABEL\tBITS\tNEIGHBORS")
		for i := 0; i < topology.Size(d); i++ {
			l := types.Label(i)
			fmt.Fprintf(w, "%s\t%s\t%s\n", l, l.Bits(d), joinLabels(topology.NeighborLabels(l, d)))
		}
		return w.Flush()
	}

	o := types.Label(origin)
	fmt.Fprintln(w, "LABEL\tBITS\tDEPTH\tCHILDREN")
	for i := 0; i < topology.Size(d); i++ {
		l := types.Label(i)
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", l, l.Bits(d), topology.HammingDistance(l, o),
			joinLabels(topology.BroadcastChildren(l, o, d)))
	}
	return w.Flush()
}

func joinLabels(labels []types.Label) string {
	if len(labels) == 0 {
		return "-"
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l.String()
	}
	return strings.Join(parts, " ")
}
