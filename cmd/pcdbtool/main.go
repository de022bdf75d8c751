// pcdbtool is a CLI utility for building and inspecting point-cloud
// databases.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/surfelview/internal/logger"
	"github.com/Faultbox/surfelview/internal/store"
)

var (
	backend string // Store backend for commands that read a dataset
	verbose bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pcdbtool",
		Short: "Build and inspect point-cloud databases",
		Long: `pcdbtool builds point-cloud databases from XYZ files and inspects them.

Examples:
  pcdbtool build scan.xyz scan.pcdb
  pcdbtool info scan.pcdb
  pcdbtool nodes scan.pcdb --depth 2
  pcdbtool verify scan.pcdb
  pcdbtool import scan.pcdb ./scan.db
  pcdbtool plan --backend badger ./scan.db --budget 100000`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "warn"
			if verbose {
				level = "debug"
			}
			return logger.Init(logger.Options{Level: level, Console: true})
		},
	}
	root.PersistentFlags().StringVarP(&backend, "backend", "b", store.BackendArchive, "Dataset backend (archive or badger)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newBuildCmd(),
		newInfoCmd(),
		newNodesCmd(),
		newVerifyCmd(),
		newImportCmd(),
		newPlanCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the dataset at path with the selected backend.
func openStore(path string) (store.Store, error) {
	st, err := store.Open(backend, path, logger.Log)
	if err != nil {
		return nil, err
	}
	logger.Log.Debug("store opened", zap.String("path", path), zap.String("backend", backend))
	return st, nil
}
