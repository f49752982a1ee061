package pipeline

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/brapikg/internal/brapi"
	"github.com/rohankatakam/brapikg/internal/graph"
)

type staticSource struct {
	nodes   []graph.GraphNode
	edges   []graph.GraphEdge
	nodeErr error
}

func (s staticSource) Nodes() graph.NodeSeq {
	return func(yield func(graph.GraphNode, error) bool) {
		for _, n := range s.nodes {
			if !yield(n, nil) {
				return
			}
		}
		if s.nodeErr != nil {
			yield(graph.GraphNode{}, s.nodeErr)
		}
	}
}

func (s staticSource) Edges() graph.EdgeSeq {
	return func(yield func(graph.GraphEdge, error) bool) {
		for _, e := range s.edges {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// recordingWriter keeps the call order and what it received
type recordingWriter struct {
	mu    sync.Mutex
	calls []string
	nodes []graph.GraphNode
	edges []graph.GraphEdge
	fail  error
}

func (w *recordingWriter) WriteNodes(ctx context.Context, nodes graph.NodeSeq) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, "nodes")
	if w.fail != nil {
		return 0, w.fail
	}
	collected, err := graph.CollectNodes(nodes)
	if err != nil {
		return 0, err
	}
	w.nodes = append(w.nodes, collected...)
	return len(collected), nil
}

func (w *recordingWriter) WriteEdges(ctx context.Context, edges graph.EdgeSeq) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, "edges")
	collected, err := graph.CollectEdges(edges)
	if err != nil {
		return 0, err
	}
	w.edges = append(w.edges, collected...)
	return len(collected), nil
}

func (w *recordingWriter) Close(ctx context.Context) error { return nil }

func quietOptions(workers int) Options {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return Options{Workers: workers, Logger: logger}
}

func sampleSource() staticSource {
	return staticSource{
		nodes: []graph.GraphNode{
			{ID: "T1", Label: "trial", Properties: map[string]any{"trialName": "Trial One"}},
			{ID: "S1", Label: "study", Properties: map[string]any{"studyName": "Study One"}},
		},
		edges: []graph.GraphEdge{
			{From: "T1", To: "S1", Label: "trial_studies", Properties: map[string]any{}},
			{From: "S1", To: "G404", Label: "studies_germplasm", Properties: map[string]any{}},
		},
	}
}

func TestRun_NodesBeforeEdges(t *testing.T) {
	w := &recordingWriter{}

	summary, err := Run(context.Background(), sampleSource(), []graph.Writer{w}, quietOptions(0))
	require.NoError(t, err)

	assert.Equal(t, []string{"nodes", "edges"}, w.calls)
	assert.Len(t, w.nodes, 2)
	assert.Len(t, w.edges, 2)
	assert.Equal(t, 2, summary.Nodes)
	assert.Equal(t, 2, summary.Edges)
	assert.Equal(t, map[string]int{"studies_germplasm": 1}, summary.DanglingEdges)
	assert.Empty(t, summary.ImportCall)
}

func TestRun_SequenceErrorReturnedUnchanged(t *testing.T) {
	boom := stderrors.New(`study record 1: missing field "studyType"`)
	src := sampleSource()
	src.nodeErr = boom
	w := &recordingWriter{}

	_, err := Run(context.Background(), src, []graph.Writer{w}, quietOptions(0))
	assert.Same(t, boom, err)
	assert.Empty(t, w.calls, "the summary collector fails first and aborts the run")
}

func TestRun_WriterFailureAborts(t *testing.T) {
	boom := stderrors.New("database unavailable")
	failing := &recordingWriter{fail: boom}
	after := &recordingWriter{}

	_, err := Run(context.Background(), sampleSource(), []graph.Writer{failing, after}, quietOptions(1))
	assert.Same(t, boom, err)
	assert.Equal(t, []string{"nodes"}, failing.calls)
	assert.Empty(t, after.calls)
}

func TestRun_Concurrent(t *testing.T) {
	writers := []*recordingWriter{{}, {}, {}}

	summary, err := Run(context.Background(), sampleSource(),
		[]graph.Writer{writers[0], writers[1], writers[2]}, quietOptions(4))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Nodes)
	for _, w := range writers {
		assert.Equal(t, []string{"nodes", "edges"}, w.calls)
		assert.Len(t, w.nodes, 2)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, sampleSource(), nil, quietOptions(0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_BrAPIFixtureWithImportWriter(t *testing.T) {
	adapter, err := brapi.NewAdapter(brapi.Options{Source: brapi.Source{Dir: filepath.Join("..", "brapi", "testdata")}})
	require.NoError(t, err)

	dir := t.TempDir()
	iw, err := graph.NewImportWriter(graph.ImportConfig{Dir: dir})
	require.NoError(t, err)

	summary, err := Run(context.Background(), adapter, []graph.Writer{iw}, quietOptions(0))
	require.NoError(t, err)
	require.NoError(t, iw.Close(context.Background()))

	assert.Equal(t, 8, summary.Nodes)
	assert.Equal(t, 9, summary.Edges)
	assert.Equal(t, map[string]int{"trial": 2, "study": 3, "germplasm": 3}, summary.NodesByLabel)
	assert.Equal(t, map[string]int{"studies_germplasm": 1}, summary.DanglingEdges)
	assert.Nil(t, summary.DuplicateNodes)
	assert.Contains(t, summary.ImportCall, "neo4j-admin database import full")

	script, err := os.ReadFile(filepath.Join(dir, graph.ImportScriptName))
	require.NoError(t, err)
	assert.Contains(t, string(script), summary.ImportCall)
	assert.FileExists(t, filepath.Join(dir, "trial-header.csv"))
	assert.FileExists(t, filepath.Join(dir, "studies_germplasm-part000.csv"))
}
