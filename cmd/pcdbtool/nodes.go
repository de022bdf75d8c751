package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Faultbox/surfelview/internal/engine/hierarchy"
)

func newNodesCmd() *cobra.Command {
	var maxDepth int

	cmd := &cobra.Command{
		Use:   "nodes <dataset>",
		Short: "List the nodes of the hierarchy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(args[0])
			if err != nil {
				return err
			}
			defer st.Close()

			tree, err := st.OpenTree()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "node\tparent\tdepth\tblocks\tpoints\tcomplexity\tresolution")
			tree.Walk(tree.Root(), func(n *hierarchy.Node) bool {
				if maxDepth >= 0 && n.Depth() > maxDepth {
					return false
				}
				fmt.Fprintf(tw, "%s%d\t%d\t%d\t%d\t%d\t%.0f\t%.3g\n",
					strings.Repeat("  ", n.Depth()), n.ID(), n.Parent(), n.Depth(),
					len(n.Blocks()), n.Cost(), n.Complexity(), n.Resolution())
				return true
			})
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&maxDepth, "depth", "d", -1, "Only list nodes down to this depth")
	return cmd
}
