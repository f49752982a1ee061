package graph

import (
	"context"
	"iter"
)

// GraphNode represents a node in the graph
type GraphNode struct {
	ID         string         // Source identifier, taken verbatim
	Label      string         // Node type: "trial", "study", "germplasm"
	Properties map[string]any // Node properties
}

// GraphEdge represents a directed edge in the graph
type GraphEdge struct {
	From       string         // Source node ID
	To         string         // Target node ID
	Label      string         // Relationship type: "trial_studies", "studies_germplasm"
	Properties map[string]any // Edge properties
}

// NodeSeq is a lazy, restartable node sequence. A non-nil error is always the
// last element; producers stop after yielding it.
type NodeSeq = iter.Seq2[GraphNode, error]

// EdgeSeq is the edge counterpart of NodeSeq.
type EdgeSeq = iter.Seq2[GraphEdge, error]

// Writer consumes node and edge sequences. Implementations pull the sequence
// to exhaustion and return the number of records written. An error yielded by
// the sequence is returned unchanged.
type Writer interface {
	WriteNodes(ctx context.Context, nodes NodeSeq) (int, error)
	WriteEdges(ctx context.Context, edges EdgeSeq) (int, error)
	Close(ctx context.Context) error
}

// CollectNodes materializes a node sequence, stopping at the first error
func CollectNodes(nodes NodeSeq) ([]GraphNode, error) {
	var out []GraphNode
	for node, err := range nodes {
		if err != nil {
			return out, err
		}
		out = append(out, node)
	}
	return out, nil
}

// CollectEdges materializes an edge sequence, stopping at the first error
func CollectEdges(edges EdgeSeq) ([]GraphEdge, error) {
	var out []GraphEdge
	for edge, err := range edges {
		if err != nil {
			return out, err
		}
		out = append(out, edge)
	}
	return out, nil
}
