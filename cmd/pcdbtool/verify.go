package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Faultbox/surfelview/internal/engine/hierarchy"
	"github.com/Faultbox/surfelview/internal/store"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <dataset>",
		Short: "Check the hierarchy and the checksum of every block",
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

			var bad []error
			switch s := st.(type) {
			case *store.BadgerStore:
				if err := s.Verify(); err != nil {
					bad = append(bad, err)
				}
			default:
				for id := 0; id < tree.TotalBlocks(); id++ {
					_, b, _ := tree.Block(hierarchy.BlockID(id))
					if _, err := st.LoadBlock(b); err != nil {
						bad = append(bad, fmt.Errorf("block %d: %w", id, err))
						continue
					}
					st.FreeBlock(b)
				}
			}

			out := cmd.OutOrStdout()
			if len(bad) > 0 {
				for _, err := range bad {
					fmt.Fprintf(out, "FAIL %v\n", err)
				}
				return errors.Join(bad...)
			}
			fmt.Fprintf(out, "OK %d nodes, %d blocks\n", tree.Len(), tree.TotalBlocks())
			return nil
		},
	}
}
