package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Summary reports what a build wrote
type Summary struct {
	Nodes          int            `yaml:"nodes" json:"nodes"`
	Edges          int            `yaml:"edges" json:"edges"`
	NodesByLabel   map[string]int `yaml:"nodes_by_label" json:"nodes_by_label"`
	EdgesByType    map[string]int `yaml:"edges_by_type" json:"edges_by_type"`
	DuplicateNodes []string       `yaml:"duplicate_nodes,omitempty" json:"duplicate_nodes,omitempty"`
	DanglingEdges  map[string]int `yaml:"dangling_edges,omitempty" json:"dangling_edges,omitempty"`
	ImportCall     string         `yaml:"import_call,omitempty" json:"import_call,omitempty"`
}

// SummaryCollector is a Writer that only counts. Dangling edges are edges with
// an endpoint id never seen as a node, so nodes must be written first.
type SummaryCollector struct {
	seen       map[string]struct{}
	duplicates map[string]struct{}
	summary    Summary
}

// NewSummaryCollector returns an empty collector
func NewSummaryCollector() *SummaryCollector {
	return &SummaryCollector{
		seen:       make(map[string]struct{}),
		duplicates: make(map[string]struct{}),
		summary: Summary{
			NodesByLabel:  make(map[string]int),
			EdgesByType:   make(map[string]int),
			DanglingEdges: make(map[string]int),
		},
	}
}

// WriteNodes counts nodes per label and records duplicate ids
func (s *SummaryCollector) WriteNodes(ctx context.Context, nodes NodeSeq) (int, error) {
	n := 0
	for node, err := range nodes {
		if err != nil {
			return n, err
		}
		if _, ok := s.seen[node.ID]; ok {
			s.duplicates[node.ID] = struct{}{}
		}
		s.seen[node.ID] = struct{}{}
		s.summary.NodesByLabel[node.Label]++
		s.summary.Nodes++
		n++
	}
	return n, nil
}

// WriteEdges counts edges per type and edges whose endpoints were never seen
func (s *SummaryCollector) WriteEdges(ctx context.Context, edges EdgeSeq) (int, error) {
	n := 0
	for edge, err := range edges {
		if err != nil {
			return n, err
		}
		_, fromOK := s.seen[edge.From]
		_, toOK := s.seen[edge.To]
		if !fromOK || !toOK {
			s.summary.DanglingEdges[edge.Label]++
		}
		s.summary.EdgesByType[edge.Label]++
		s.summary.Edges++
		n++
	}
	return n, nil
}

// Close is a no-op
func (s *SummaryCollector) Close(ctx context.Context) error {
	return nil
}

// Summary returns a snapshot of the counts
func (s *SummaryCollector) Summary() Summary {
	out := s.summary
	out.NodesByLabel = copyCounts(s.summary.NodesByLabel)
	out.EdgesByType = copyCounts(s.summary.EdgesByType)
	out.DanglingEdges = copyCounts(s.summary.DanglingEdges)
	if len(out.DanglingEdges) == 0 {
		out.DanglingEdges = nil
	}
	out.DuplicateNodes = make([]string, 0, len(s.duplicates))
	for id := range s.duplicates {
		out.DuplicateNodes = append(out.DuplicateNodes, id)
	}
	sort.Strings(out.DuplicateNodes)
	if len(out.DuplicateNodes) == 0 {
		out.DuplicateNodes = nil
	}
	return out
}

// Render formats the summary as "text", "yaml" or "json"
func (s Summary) Render(format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return s.text(), nil
	case "yaml", "yml":
		data, err := yaml.Marshal(s)
		if err != nil {
			return "", fmt.Errorf("marshal summary: %w", err)
		}
		return string(data), nil
	case "json":
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal summary: %w", err)
		}
		return string(data) + "\n", nil
	default:
		return "", fmt.Errorf("unknown summary format %q (want text, yaml or json)", format)
	}
}

func (s Summary) text() string {
	var sb strings.Builder
	sb.WriteString("Knowledge graph summary\n")
	sb.WriteString(fmt.Sprintf("  Nodes: %d\n", s.Nodes))
	for _, label := range sortedCountKeys(s.NodesByLabel) {
		sb.WriteString(fmt.Sprintf("    %-20s %d\n", label, s.NodesByLabel[label]))
	}
	sb.WriteString(fmt.Sprintf("  Edges: %d\n", s.Edges))
	for _, label := range sortedCountKeys(s.EdgesByType) {
		sb.WriteString(fmt.Sprintf("    %-20s %d\n", label, s.EdgesByType[label]))
	}
	if len(s.DuplicateNodes) > 0 {
		sb.WriteString(fmt.Sprintf("  Duplicate node ids: %s\n", strings.Join(s.DuplicateNodes, ", ")))
	}
	if len(s.DanglingEdges) > 0 {
		sb.WriteString("  Edges with missing endpoints:\n")
		for _, label := range sortedCountKeys(s.DanglingEdges) {
			sb.WriteString(fmt.Sprintf("    %-20s %d\n", label, s.DanglingEdges[label]))
		}
	}
	if s.ImportCall != "" {
		sb.WriteString(fmt.Sprintf("  Import call: %s\n", s.ImportCall))
	}
	return sb.String()
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedCountKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
