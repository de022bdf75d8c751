package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Faultbox/surfelview/internal/build"
	"github.com/Faultbox/surfelview/internal/logger"
	"github.com/Faultbox/surfelview/pkg/pcdb"
)

func newBuildCmd() *cobra.Command {
	opts := build.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "build <in.xyz> <out.pcdb>",
		Short: "Build an archive from an XYZ point file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			points, err := build.ReadXYZ(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			opts.Logger = logger.Log
			ds, err := build.Build(points, opts)
			if err != nil {
				return err
			}
			if err := pcdb.Write(args[1], ds); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d points, %d nodes, %d blocks\n",
				args[1], len(points), len(ds.Nodes), len(ds.Blocks))
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.MaxLeafPoints, "leaf-points", opts.MaxLeafPoints, "Maximum points in a leaf")
	cmd.Flags().IntVar(&opts.CoarsePoints, "coarse-points", opts.CoarsePoints, "Sample size kept by interior nodes")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", opts.MaxDepth, "Maximum tree depth")
	return cmd
}
