package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/brapikg/internal/config"
	"github.com/rohankatakam/brapikg/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	defer logging.Close()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "brapikg",
	Short: "brapikg - BrAPI trial, study and germplasm knowledge graph builder",
	Long: `brapikg reads BrAPI trial, study and germplasm JSON exports and turns them
into graph nodes and edges: neo4j-admin import files, a live Neo4j load
and an optional relational staging copy.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		// Load configuration
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}

		logCfg := logging.DefaultConfig(verbose)
		if !verbose {
			logCfg.Level = logging.ParseLevel(cfg.Log.Level)
		}
		logCfg.OutputFile = cfg.Log.File
		logCfg.JSONFormat = cfg.Log.JSON
		if err := logging.Initialize(logCfg); err != nil {
			return err
		}
		if logCfg.Level == logging.DEBUG {
			logger.SetLevel(logrus.DebugLevel)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.brapikg/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Set custom version template
	rootCmd.SetVersionTemplate(`brapikg {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	// Add subcommands
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(configCmd)
}
