// Package pipeline drives node and edge sequences into graph writers.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/brapikg/internal/graph"
)

// Source produces the node and edge sequences of one build. Both sequences
// must be restartable: every writer traverses them again.
type Source interface {
	Nodes() graph.NodeSeq
	Edges() graph.EdgeSeq
}

// Options configures a Run
type Options struct {
	// Workers is the number of writers loaded at once; 0 or 1 loads them in order
	Workers int
	Logger  *logrus.Logger
}

// Run hands the full node sequence and then the full edge sequence to every
// writer, writes the import call of any ImportWriter and returns the build
// summary. The first failure aborts the run and is returned unchanged.
// Writers are not closed.
func Run(ctx context.Context, src Source, writers []graph.Writer, opts Options) (graph.Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	start := time.Now()

	collector := graph.NewSummaryCollector()
	all := make([]graph.Writer, 0, len(writers)+1)
	all = append(all, collector)
	all = append(all, writers...)

	if opts.Workers <= 1 {
		for _, w := range all {
			if err := load(ctx, src, w, logger); err != nil {
				return graph.Summary{}, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for _, w := range all {
			g.Go(func() error {
				return load(gctx, src, w, logger)
			})
		}
		if err := g.Wait(); err != nil {
			return graph.Summary{}, err
		}
	}

	summary := collector.Summary()
	for _, w := range writers {
		iw, ok := w.(*graph.ImportWriter)
		if !ok {
			continue
		}
		path, err := iw.WriteImportCall()
		if err != nil {
			return graph.Summary{}, err
		}
		summary.ImportCall = iw.ImportCall()
		logger.WithField("path", path).Info("Wrote neo4j-admin import call")
	}

	logger.WithFields(logrus.Fields{
		"nodes":    summary.Nodes,
		"edges":    summary.Edges,
		"writers":  len(writers),
		"duration": time.Since(start).String(),
	}).Info("Graph build completed")

	return summary, nil
}

// load writes nodes before edges so sinks can resolve edge endpoints
func load(ctx context.Context, src Source, w graph.Writer, logger *logrus.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := writerName(w)
	nodes, err := w.WriteNodes(ctx, src.Nodes())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	edges, err := w.WriteEdges(ctx, src.Edges())
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"writer": name,
		"nodes":  nodes,
		"edges":  edges,
	}).Debug("Writer loaded")
	return nil
}

func writerName(w graph.Writer) string {
	if named, ok := w.(fmt.Stringer); ok {
		return named.String()
	}
	return fmt.Sprintf("%T", w)
}
