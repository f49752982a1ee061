package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/brapikg/internal/brapi"
	"github.com/rohankatakam/brapikg/internal/config"
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count the nodes and edges a build would emit",
	Long: `Load the BrAPI export and traverse the node and edge sequences without
writing anything. A record missing a required field fails the count.`,
	RunE: runCount,
}

var countDataDir string

func init() {
	countCmd.Flags().StringVar(&countDataDir, "data-dir", "", "directory holding the BrAPI JSON exports (overrides data.dir)")
}

func runCount(cmd *cobra.Command, args []string) error {
	if countDataDir != "" {
		cfg.Data.Dir = countDataDir
	}
	if err := cfg.ValidateOrError(config.ValidationContextCount); err != nil {
		return err
	}

	adapter, err := brapi.NewAdapter(brapi.Options{Source: dataSource(cfg)})
	if err != nil {
		return err
	}

	nodes, err := adapter.NodeCount()
	if err != nil {
		return err
	}
	edges, err := adapter.EdgeCount()
	if err != nil {
		return err
	}

	logger.WithField("dir", cfg.Data.Dir).Debug("Counted graph records")
	fmt.Fprintf(cmd.OutOrStdout(), "nodes: %d\nedges: %d\n", nodes, edges)
	return nil
}
