package main

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rohankatakam/brapikg/internal/brapi"
	"github.com/rohankatakam/brapikg/internal/config"
	"github.com/rohankatakam/brapikg/internal/graph"
	"github.com/rohankatakam/brapikg/internal/pipeline"
	"github.com/rohankatakam/brapikg/internal/storage"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the knowledge graph from a BrAPI export",
	Long: `Load trial.json, study.json and germplasm.json, map them to nodes and
edges, and write them to every enabled sink:

  - neo4j-admin import CSV files and neo4j-admin-import-call.sh (always)
  - a live Neo4j database (neo4j.enabled or --neo4j)
  - a relational staging database (staging.enabled or --staging)

Examples:
  # Write import files for the default PopYWheat export
  brapikg build

  # Load a custom export straight into Neo4j
  NEO4J_PASSWORD=... brapikg build --data-dir ./export --neo4j`,
	RunE: runBuild,
}

var (
	buildDataDir       string
	buildOutputDir     string
	buildNeo4j         bool
	buildStaging       bool
	buildSummaryFormat string
	buildWorkers       int
)

func init() {
	buildCmd.Flags().StringVar(&buildDataDir, "data-dir", "", "directory holding the BrAPI JSON exports (overrides data.dir)")
	buildCmd.Flags().StringVar(&buildOutputDir, "output-dir", "", "directory for neo4j-admin import files (overrides output.dir)")
	buildCmd.Flags().BoolVar(&buildNeo4j, "neo4j", false, "load into Neo4j (overrides neo4j.enabled)")
	buildCmd.Flags().BoolVar(&buildStaging, "staging", false, "stage into the SQL database (overrides staging.enabled)")
	buildCmd.Flags().StringVar(&buildSummaryFormat, "summary-format", "text", "summary output format: text, yaml or json")
	buildCmd.Flags().IntVar(&buildWorkers, "workers", 1, "number of sinks written concurrently")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if buildDataDir != "" {
		cfg.Data.Dir = buildDataDir
	}
	if buildOutputDir != "" {
		cfg.Output.Dir = buildOutputDir
	}
	if cmd.Flags().Changed("neo4j") {
		cfg.Neo4j.Enabled = buildNeo4j
	}
	if cmd.Flags().Changed("staging") {
		cfg.Staging.Enabled = buildStaging
	}

	if cfg.Neo4j.Enabled && cfg.Neo4j.Password == "" {
		password, err := promptPassword(cmd, cfg.Neo4j.User)
		if err != nil {
			return err
		}
		cfg.Neo4j.Password = password
	}

	if err := cfg.ValidateOrError(config.ValidationContextBuild); err != nil {
		return err
	}

	adapter, err := brapi.NewAdapter(brapi.Options{Source: dataSource(cfg)})
	if err != nil {
		return err
	}

	delimiter, _ := utf8.DecodeRuneInString(cfg.Output.Delimiter)
	importWriter, err := graph.NewImportWriter(graph.ImportConfig{
		Dir:            cfg.Output.Dir,
		Delimiter:      delimiter,
		ArrayDelimiter: cfg.Output.ArrayDelimiter,
		Database:       cfg.Output.Database,
		AdminBin:       cfg.Output.AdminBin,
	})
	if err != nil {
		return err
	}
	writers := []graph.Writer{importWriter}

	if cfg.Neo4j.Enabled {
		batch := graph.DefaultBatchConfig()
		if cfg.Neo4j.SmallBatches {
			batch = graph.SmallBatchConfig()
		}
		backend, err := graph.NewNeo4jBackend(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database,
			graph.WithEdgeSchema(brapi.EdgeSchema()),
			graph.WithBatchConfig(batch),
			graph.WithRateLimit(cfg.Neo4j.RateLimit))
		if err != nil {
			return err
		}
		labels := make([]string, 0, len(brapi.AllNodeTypes()))
		for _, t := range brapi.AllNodeTypes() {
			labels = append(labels, string(t))
		}
		if err := backend.EnsureConstraints(ctx, labels); err != nil {
			backend.Close(ctx)
			return err
		}
		writers = append(writers, backend)
		logger.WithField("uri", cfg.Neo4j.URI).Info("Neo4j sink enabled")
	}

	var staging *storage.StagingStore
	if cfg.Staging.Enabled {
		staging, err = storage.NewStagingStore(ctx, cfg.Staging.Driver, cfg.Staging.DSN, logger)
		if err != nil {
			closeWriters(ctx, writers)
			return err
		}
		if _, err := staging.BeginRun(ctx, cfg.Data.Dir); err != nil {
			closeWriters(ctx, append(writers, staging))
			return err
		}
		writers = append(writers, staging)
	}

	summary, err := pipeline.Run(ctx, adapter, writers, pipeline.Options{
		Workers: buildWorkers,
		Logger:  logger,
	})
	if err != nil {
		closeWriters(ctx, writers)
		return err
	}

	if staging != nil {
		if err := staging.FinishRun(ctx); err != nil {
			closeWriters(ctx, writers)
			return err
		}
		logger.WithField("run_id", staging.RunID()).Info("Staging run recorded")
	}

	if err := closeWriters(ctx, writers); err != nil {
		return err
	}

	out, err := summary.Render(buildSummaryFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// promptPassword reads the Neo4j password from the terminal. Without a
// terminal it returns "" and validation reports the missing password.
func promptPassword(cmd *cobra.Command, user string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Neo4j password for %s: ", user)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

func dataSource(cfg *config.Config) brapi.Source {
	return brapi.Source{
		Dir:       cfg.Data.Dir,
		Germplasm: cfg.Data.GermplasmFile,
		Study:     cfg.Data.StudyFile,
		Trial:     cfg.Data.TrialFile,
	}
}

// closeWriters closes every writer and returns the first error
func closeWriters(ctx context.Context, writers []graph.Writer) error {
	var firstErr error
	for _, w := range writers {
		if err := w.Close(ctx); err != nil {
			logger.WithError(err).Warn("Failed to close writer")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
