// Package brapi maps BrAPI trial, study and germplasm exports onto graph
// nodes and edges.
package brapi

import (
	"github.com/rohankatakam/brapikg/internal/graph"
	"github.com/rohankatakam/brapikg/internal/logging"
)

// Options configures an Adapter. Empty filters default to every known value.
type Options struct {
	Source     Source
	NodeTypes  []NodeType
	NodeFields []Field
	EdgeTypes  []EdgeType
	EdgeFields []EdgeField
}

// Adapter turns the three loaded collections into node and edge sequences.
// The collections are read-only after construction, so every traversal of
// Nodes or Edges rebuilds the same records from scratch.
//
// Field filters are kept for callers but do not prune emitted properties.
type Adapter struct {
	nodeTypes  []NodeType
	nodeFields []Field
	edgeTypes  []EdgeType
	edgeFields []EdgeField

	data *Dataset
}

// NewAdapter loads the dataset named by opts.Source and returns a ready adapter.
// A load failure is returned unchanged.
func NewAdapter(opts Options) (*Adapter, error) {
	logging.Info("loading json source data in memory")

	data, err := LoadDataset(opts.Source)
	if err != nil {
		return nil, err
	}
	return NewAdapterFromDataset(data, opts), nil
}

// NewAdapterFromDataset builds an adapter over an already loaded dataset.
// opts.Source is ignored.
func NewAdapterFromDataset(data *Dataset, opts Options) *Adapter {
	a := &Adapter{
		nodeTypes:  opts.NodeTypes,
		nodeFields: opts.NodeFields,
		edgeTypes:  opts.EdgeTypes,
		edgeFields: opts.EdgeFields,
		data:       data,
	}
	if len(a.nodeTypes) == 0 {
		a.nodeTypes = AllNodeTypes()
	}
	if len(a.nodeFields) == 0 {
		a.nodeFields = AllNodeFields()
	}
	if len(a.edgeTypes) == 0 {
		a.edgeTypes = AllEdgeTypes()
	}
	if len(a.edgeFields) == 0 {
		a.edgeFields = AllEdgeFields()
	}

	logging.Debug("adapter ready",
		"trials", data.Trials.Len(),
		"studies", data.Studies.Len(),
		"germplasm", data.Germplasm.Len())
	return a
}

// NodeTypes returns the node type filter
func (a *Adapter) NodeTypes() []NodeType { return append([]NodeType(nil), a.nodeTypes...) }

// NodeFields returns the node field filter
func (a *Adapter) NodeFields() []Field { return append([]Field(nil), a.nodeFields...) }

// EdgeTypes returns the edge type filter
func (a *Adapter) EdgeTypes() []EdgeType { return append([]EdgeType(nil), a.edgeTypes...) }

// EdgeFields returns the edge field filter
func (a *Adapter) EdgeFields() []EdgeField { return append([]EdgeField(nil), a.edgeFields...) }

// nodeSource pairs a collection with its label, id key and projection
type nodeSource struct {
	label      NodeType
	idKey      string
	properties []string
	records    []Record
}

func (a *Adapter) nodeSources() []nodeSource {
	return []nodeSource{
		{NodeTypeTrial, string(TrialDbID), trialProperties, a.data.Trials.Records},
		{NodeTypeStudy, string(StudyDbID), studyProperties, a.data.Studies.Records},
		{NodeTypeGermplasm, string(GermplasmDbID), germplasmProperties, a.data.Germplasm.Records},
	}
}

// Nodes yields every trial, then every study, then every germplasm node, in
// source order. A record missing a projected key ends the sequence with a
// *FieldError.
func (a *Adapter) Nodes() graph.NodeSeq {
	return func(yield func(graph.GraphNode, error) bool) {
		logging.Info("generating nodes")

		for _, src := range a.nodeSources() {
			for _, rec := range src.records {
				node, err := projectNode(rec, src)
				if err != nil {
					yield(graph.GraphNode{}, err)
					return
				}
				if !yield(node, nil) {
					return
				}
			}
		}
	}
}

func projectNode(rec Record, src nodeSource) (graph.GraphNode, error) {
	id, err := rec.ID(src.idKey)
	if err != nil {
		return graph.GraphNode{}, err
	}

	props := make(map[string]any, len(src.properties))
	for _, key := range src.properties {
		v, err := rec.Lookup(key)
		if err != nil {
			return graph.GraphNode{}, err
		}
		props[key] = v
	}

	return graph.GraphNode{ID: id, Label: string(src.label), Properties: props}, nil
}

// Edges yields trial_studies edges (per trial, per embedded study reference)
// followed by studies_germplasm edges (per study, per germplasm id). Endpoints
// are not checked against the node collections.
func (a *Adapter) Edges() graph.EdgeSeq {
	return func(yield func(graph.GraphEdge, error) bool) {
		logging.Info("generating edges")

		for _, trial := range a.data.Trials.Records {
			refs, err := trial.List(string(TrialStudies), "trial.studies")
			if err != nil {
				yield(graph.GraphEdge{}, err)
				return
			}
			// The source id is only required once the trial has a reference.
			var from string
			for i, ref := range refs {
				if i == 0 {
					if from, err = trial.ID(string(TrialDbID)); err != nil {
						yield(graph.GraphEdge{}, err)
						return
					}
				}
				to, err := ref.ID(string(StudyDbID))
				if err != nil {
					yield(graph.GraphEdge{}, err)
					return
				}
				if !yield(newEdge(from, to, EdgeTrialStudies), nil) {
					return
				}
			}
		}

		for _, study := range a.data.Studies.Records {
			ids, err := study.List(string(StudyGermplasmDbID), "study.germplasmDbIds")
			if err != nil {
				yield(graph.GraphEdge{}, err)
				return
			}
			var from string
			for i, id := range ids {
				if i == 0 {
					if from, err = study.ID(string(StudyDbID)); err != nil {
						yield(graph.GraphEdge{}, err)
						return
					}
				}
				if !yield(newEdge(from, id.raw.String(), EdgeStudiesGermplasm), nil) {
					return
				}
			}
		}
	}
}

func newEdge(from, to string, label EdgeType) graph.GraphEdge {
	return graph.GraphEdge{
		From:       from,
		To:         to,
		Label:      string(label),
		Properties: map[string]any{},
	}
}

// NodeCount traverses Nodes and counts the records. It costs a full traversal
// on every call.
func (a *Adapter) NodeCount() (int, error) {
	n := 0
	for _, err := range a.Nodes() {
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// EdgeCount traverses Edges and counts the records
func (a *Adapter) EdgeCount() (int, error) {
	n := 0
	for _, err := range a.Edges() {
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// EdgeSchema returns the endpoint labels of each edge type for graph backends
func EdgeSchema() graph.EdgeSchema {
	schema := graph.EdgeSchema{}
	for edgeType, ends := range EdgeEndpoints() {
		schema[string(edgeType)] = graph.EdgeEndpoints{From: string(ends[0]), To: string(ends[1])}
	}
	return schema
}
