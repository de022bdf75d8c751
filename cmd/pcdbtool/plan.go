package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/chewxy/math32"
	"github.com/spf13/cobra"

	"github.com/Faultbox/surfelview/internal/engine/camera"
	"github.com/Faultbox/surfelview/internal/engine/hierarchy"
	"github.com/Faultbox/surfelview/internal/engine/residency"
	"github.com/Faultbox/surfelview/internal/engine/resolution"
	"github.com/Faultbox/surfelview/internal/engine/workingset"
	"github.com/Faultbox/surfelview/internal/logger"
	"github.com/Faultbox/surfelview/pkg/pcdb"
)

// planOptions describe the camera and level-of-detail inputs of a headless
// update.
type planOptions struct {
	Width, Height int
	Yaw, Pitch    float32 // Degrees
	Zoom          float32 // Distance multiplier after fitting
	Target        float32
	FocusRadius   float32
	Budget        int
	Factor        float32
	Load          bool
}

func defaultPlanOptions() planOptions {
	return planOptions{
		Width:  1280,
		Height: 720,
		Pitch:  28.6,
		Zoom:   1,
		Target: 1,
		Budget: 4_000_000,
		Factor: resolution.DefaultOutsideFocusFactor,
	}
}

// viewParameters places an orbit camera fitted to the dataset.
func (o planOptions) viewParameters(tree *hierarchy.Tree) workingset.ViewParameters {
	cam := camera.NewOrbitCamera()
	cam.FitToBounds(tree.Node(tree.Root()).BoundingBox())
	cam.RotationY = o.Yaw * math32.Pi / 180
	cam.RotationX = math32.Max(cam.MinPitch, math32.Min(cam.MaxPitch, o.Pitch*math32.Pi/180))
	if o.Zoom > 0 {
		cam.Distance *= o.Zoom
	}

	return workingset.ViewParameters{
		View:             cam.View(o.Width, o.Height),
		FocusPoint:       cam.Center,
		TargetResolution: o.Target,
		FocusRadius:      o.FocusRadius,
		Budget:           o.Budget,
	}
}

// planLoader satisfies the cache without reading point data, so a plan can
// be computed for datasets larger than memory.
type planLoader struct{}

func (planLoader) LoadBlock(hierarchy.Block) ([]pcdb.Point, error) { return nil, nil }

func (planLoader) FreeBlock(hierarchy.Block) {}

func printPlan(w io.Writer, tree *hierarchy.Tree, est *resolution.Estimator, v workingset.ViewParameters, res workingset.Result) {
	fmt.Fprintf(w, "Eye:     (%.3g, %.3g, %.3g)\n", v.View.Eye.X, v.View.Eye.Y, v.View.Eye.Z)
	fmt.Fprintf(w, "Focus:   (%.3g, %.3g, %.3g) radius %g\n", v.FocusPoint.X, v.FocusPoint.Y, v.FocusPoint.Z, v.FocusRadius)
	fmt.Fprintf(w, "Target:  %g samples/pixel, budget %d\n", v.TargetResolution, v.Budget)
	fmt.Fprintf(w, "Set:     %d nodes, %d points, %d dropped, %d failed\n",
		len(res.Ideal), res.Cost, res.Dropped, len(res.Failed))
	fmt.Fprintln(w)

	p := resolution.Params{
		View:             v.View,
		TargetResolution: v.TargetResolution,
		FocusPoint:       v.FocusPoint,
		FocusRadius:      v.FocusRadius,
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "node\tdepth\tpoints\tverdict\tprojected\trequired\tfocus")
	for _, id := range res.Ideal {
		n := tree.Node(id)
		e := est.Estimate(n, p)
		focus := "in"
		if !e.InsideFocus {
			focus = "out"
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%.3g\t%.3g\t%s\n",
			id, n.Depth(), n.Cost(), e.Verdict, e.Projected, e.Required, focus)
	}
	tw.Flush()
}

func newPlanCmd() *cobra.Command {
	opts := defaultPlanOptions()

	cmd := &cobra.Command{
		Use:   "plan <dataset>",
		Short: "Compute the working set for a camera without opening a window",
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

			var cache *residency.Cache
			if opts.Load {
				cache = residency.New(tree, st, residency.WithLogger(logger.Log))
			} else {
				cache = residency.New(tree, planLoader{}, residency.WithLogger(logger.Log))
			}

			est := resolution.NewEstimator()
			est.OutsideFocusFactor = opts.Factor
			m := workingset.New(cache, workingset.WithLogger(logger.Log), workingset.WithEstimator(est))
			defer m.Close()

			v := opts.viewParameters(tree)
			res := m.Update(v)
			printPlan(cmd.OutOrStdout(), tree, est, v, res)
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d nodes failed to load", len(res.Failed))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Width, "width", opts.Width, "Viewport width in pixels")
	f.IntVar(&opts.Height, "height", opts.Height, "Viewport height in pixels")
	f.Float32Var(&opts.Yaw, "yaw", opts.Yaw, "Camera yaw in degrees")
	f.Float32Var(&opts.Pitch, "pitch", opts.Pitch, "Camera pitch in degrees")
	f.Float32Var(&opts.Zoom, "zoom", opts.Zoom, "Camera distance as a multiple of the fitted distance")
	f.Float32Var(&opts.Target, "target", opts.Target, "Target resolution in samples per pixel")
	f.Float32Var(&opts.FocusRadius, "focus-radius", opts.FocusRadius, "Radius of full detail around the focus point")
	f.IntVar(&opts.Budget, "budget", opts.Budget, "Maximum resident points, 0 for no limit")
	f.Float32Var(&opts.Factor, "outside-factor", opts.Factor, "Target relaxation outside the focus radius")
	f.BoolVar(&opts.Load, "load", false, "Read the selected blocks from the store")
	return cmd
}
