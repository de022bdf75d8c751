package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Faultbox/surfelview/internal/logger"
	"github.com/Faultbox/surfelview/internal/store"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive> <badger-dir>",
		Short: "Copy an archive into a badger store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := store.OpenArchive(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			cfg := store.DefaultBadgerConfig(args[1])
			cfg.Logger = logger.Log
			dst, err := store.OpenBadger(cfg)
			if err != nil {
				return err
			}
			defer dst.Close()

			if err := dst.Import(src.Archive()); err != nil {
				return err
			}
			if err := dst.Verify(); err != nil {
				return fmt.Errorf("verify after import: %w", err)
			}

			h := src.Archive().Header()
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s into %s: %d nodes, %d blocks\n",
				args[0], args[1], h.NodeCount, h.BlockCount)
			return nil
		},
	}
}
