package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/Faultbox/surfelview/internal/engine/hierarchy"
)

// levelStats summarizes the nodes at one depth.
type levelStats struct {
	Depth        int
	Nodes        int
	Points       int
	MeanPoints   float64
	MedianPoints float64
	MeanRes      float64
	StdDevRes    float64
}

func collectLevels(tree *hierarchy.Tree) []levelStats {
	points := map[int][]float64{}
	res := map[int][]float64{}
	tree.Walk(tree.Root(), func(n *hierarchy.Node) bool {
		points[n.Depth()] = append(points[n.Depth()], float64(n.Cost()))
		res[n.Depth()] = append(res[n.Depth()], float64(n.Resolution()))
		return true
	})

	levels := make([]levelStats, 0, len(points))
	for depth, p := range points {
		s := levelStats{Depth: depth, Nodes: len(p)}
		for _, v := range p {
			s.Points += int(v)
		}
		s.MeanPoints = stat.Mean(p, nil)
		sort.Float64s(p)
		s.MedianPoints = stat.Quantile(0.5, stat.Empirical, p, nil)
		if len(p) > 1 {
			s.MeanRes, s.StdDevRes = stat.MeanStdDev(res[depth], nil)
		} else {
			s.MeanRes = res[depth][0]
		}
		levels = append(levels, s)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Depth < levels[j].Depth })
	return levels
}

func printInfo(w io.Writer, path string, tree *hierarchy.Tree) {
	root := tree.Node(tree.Root())
	b := root.BoundingBox()

	total := 0
	tree.Walk(tree.Root(), func(n *hierarchy.Node) bool {
		total += n.Cost()
		return true
	})

	fmt.Fprintf(w, "Dataset:    %s\n", path)
	fmt.Fprintf(w, "Nodes:      %d (%d leaves)\n", tree.Len(), len(tree.Leaves(tree.Root())))
	fmt.Fprintf(w, "Blocks:     %d\n", tree.TotalBlocks())
	fmt.Fprintf(w, "Points:     %d stored, complexity %.0f\n", total, root.Complexity())
	fmt.Fprintf(w, "Bounds:     (%g, %g, %g) - (%g, %g, %g)\n", b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Levels:")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "depth\tnodes\tpoints\tmean\tmedian\tresolution\tstddev\t")
	for _, l := range collectLevels(tree) {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%.1f\t%.1f\t%.3g\t%.3g\t\n",
			l.Depth, l.Nodes, l.Points, l.MeanPoints, l.MedianPoints, l.MeanRes, l.StdDevRes)
	}
	tw.Flush()
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <dataset>",
		Short: "Show dataset summary and per-level statistics",
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
			printInfo(cmd.OutOrStdout(), args[0], tree)
			return nil
		},
	}
}
