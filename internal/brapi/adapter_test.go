package brapi

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/brapikg/internal/errors"
	"github.com/rohankatakam/brapikg/internal/graph"
)

func fixtureAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := NewAdapter(Options{Source: Source{Dir: "testdata"}})
	require.NoError(t, err)
	return a
}

// writeDataset writes the three collections to a temp dir and returns its Source
func writeDataset(t *testing.T, trials, studies, germplasm []map[string]any) Source {
	t.Helper()
	dir := t.TempDir()
	for name, records := range map[string][]map[string]any{
		"trial.json":     trials,
		"study.json":     studies,
		"germplasm.json": germplasm,
	} {
		if records == nil {
			records = []map[string]any{}
		}
		data, err := json.Marshal(records)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	}
	return Source{Dir: dir}
}

func trialRecord(id string, studyIDs ...string) map[string]any {
	refs := make([]map[string]any, len(studyIDs))
	for i, s := range studyIDs {
		refs[i] = map[string]any{"studyDbId": s}
	}
	return map[string]any{
		"trialDbId":        id,
		"trialName":        "Trial " + id,
		"documentationURL": "http://x/" + id,
		"studies":          refs,
	}
}

func studyRecord(id string, germplasmIDs ...string) map[string]any {
	if germplasmIDs == nil {
		germplasmIDs = []string{}
	}
	return map[string]any{
		"studyDbId":                id,
		"studyName":                "Study " + id,
		"trialName":                "Trial T1",
		"germplasmDbIds":           germplasmIDs,
		"startDate":                "2013-01-01",
		"endDate":                  "2013-12-31",
		"documentationURL":         "http://x/" + id,
		"studyType":                "Yield trial",
		"locationName":             "Mons",
		"locationDbId":             "L1",
		"observationVariableDbIds": []string{"V1"},
		"seasons":                  []string{"2013"},
	}
}

func germplasmRecord(id string) map[string]any {
	rec := map[string]any{}
	for _, key := range germplasmProperties {
		rec[key] = key + "-" + id
	}
	rec["germplasmDbId"] = id
	rec["taxonCommonNames"] = []string{"Wheat"}
	return rec
}

func TestNewAdapter_DefaultFilters(t *testing.T) {
	a := fixtureAdapter(t)

	assert.Equal(t, AllNodeTypes(), a.NodeTypes())
	assert.Equal(t, AllNodeFields(), a.NodeFields())
	assert.Equal(t, AllEdgeTypes(), a.EdgeTypes())
	assert.Empty(t, a.EdgeFields())
}

func TestNewAdapter_KeepsExplicitFilters(t *testing.T) {
	a := NewAdapterFromDataset(&Dataset{}, Options{
		NodeTypes:  []NodeType{NodeTypeTrial},
		NodeFields: []Field{TrialName},
		EdgeTypes:  []EdgeType{EdgeTrialStudies},
	})

	assert.Equal(t, []NodeType{NodeTypeTrial}, a.NodeTypes())
	assert.Equal(t, []Field{TrialName}, a.NodeFields())
	assert.Equal(t, []EdgeType{EdgeTrialStudies}, a.EdgeTypes())
}

func TestNodes_FieldFiltersDoNotPruneProperties(t *testing.T) {
	src := writeDataset(t, []map[string]any{trialRecord("T1")}, nil, nil)
	a, err := NewAdapter(Options{Source: src, NodeFields: []Field{TrialName}})
	require.NoError(t, err)

	nodes, err := graph.CollectNodes(a.Nodes())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Len(t, nodes[0].Properties, len(trialProperties))
}

func TestNodes_OrderAndCounts(t *testing.T) {
	a := fixtureAdapter(t)

	nodes, err := graph.CollectNodes(a.Nodes())
	require.NoError(t, err)

	var got []string
	for _, n := range nodes {
		got = append(got, n.Label+":"+n.ID)
	}
	assert.Equal(t, []string{
		"trial:T1", "trial:T2",
		"study:S1", "study:S2", "study:S3",
		"germplasm:G1", "germplasm:G2", "germplasm:G3",
	}, got)

	count, err := a.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, 2+3+3, count)
}

func TestNodes_UniqueWithinLabel(t *testing.T) {
	nodes, err := graph.CollectNodes(fixtureAdapter(t).Nodes())
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, n := range nodes {
		key := n.Label + "/" + n.ID
		assert.False(t, seen[key], "duplicate node %s", key)
		seen[key] = true
	}
}

func TestNodes_PropertyProjections(t *testing.T) {
	nodes, err := graph.CollectNodes(fixtureAdapter(t).Nodes())
	require.NoError(t, err)

	byID := map[string]graph.GraphNode{}
	for _, n := range nodes {
		byID[n.ID] = n
	}

	study := byID["S2"]
	assert.ElementsMatch(t, studyProperties, keys(study.Properties))
	assert.Equal(t, []any{"G2", "G3"}, study.Properties["germplasmDbIds"])
	assert.Equal(t, int64(2), study.Properties["locationDbId"])
	assert.Nil(t, byID["S3"].Properties["endDate"])

	germplasm := byID["G1"]
	assert.ElementsMatch(t, germplasmProperties, keys(germplasm.Properties))
	assert.Equal(t, "Apache", germplasm.Properties["germplasmName"])
	assert.Equal(t, []any{"Bread wheat", "Soft wheat"}, germplasm.Properties["taxonCommonNames"])
}

func TestEdges_OrderAndCounts(t *testing.T) {
	a := fixtureAdapter(t)

	edges, err := graph.CollectEdges(a.Edges())
	require.NoError(t, err)

	var got []string
	for _, e := range edges {
		got = append(got, e.Label+":"+e.From+"->"+e.To)
		assert.NotNil(t, e.Properties)
		assert.Empty(t, e.Properties)
	}
	assert.Equal(t, []string{
		"trial_studies:T1->S1", "trial_studies:T1->S2", "trial_studies:T2->S3",
		"studies_germplasm:S1->G1", "studies_germplasm:S1->G2",
		"studies_germplasm:S2->G2", "studies_germplasm:S2->G3",
		"studies_germplasm:S3->G1", "studies_germplasm:S3->G404",
	}, got)

	count, err := a.EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, (2+1)+(2+2+2), count)
}

func TestSequences_Restartable(t *testing.T) {
	a := fixtureAdapter(t)

	first, err := graph.CollectNodes(a.Nodes())
	require.NoError(t, err)
	second, err := graph.CollectNodes(a.Nodes())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Each traversal allocates fresh property maps.
	first[0].Properties["trialName"] = "changed"
	assert.NotEqual(t, "changed", second[0].Properties["trialName"])

	e1, err := graph.CollectEdges(a.Edges())
	require.NoError(t, err)
	e2, err := graph.CollectEdges(a.Edges())
	require.NoError(t, err)
	assert.Equal(t, e1, e2)
}

func TestSequences_StopEarly(t *testing.T) {
	a := fixtureAdapter(t)

	var got []string
	for node, err := range a.Nodes() {
		require.NoError(t, err)
		got = append(got, node.ID)
		if len(got) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"T1", "T2", "S1"}, got)
}

func TestNodes_TrialProjectionAndEdge(t *testing.T) {
	src := writeDataset(t, []map[string]any{{
		"trialDbId":        "T1",
		"trialName":        "Trial One",
		"documentationURL": "http://x",
		"studies":          []map[string]any{{"studyDbId": "S1"}},
	}}, nil, nil)
	a, err := NewAdapter(Options{Source: src})
	require.NoError(t, err)

	nodes, err := graph.CollectNodes(a.Nodes())
	require.NoError(t, err)
	assert.Equal(t, []graph.GraphNode{{
		ID:    "T1",
		Label: "trial",
		Properties: map[string]any{
			"trialDbId":        "T1",
			"trialName":        "Trial One",
			"documentationURL": "http://x",
		},
	}}, nodes)

	edges, err := graph.CollectEdges(a.Edges())
	require.NoError(t, err)
	assert.Equal(t, []graph.GraphEdge{
		{From: "T1", To: "S1", Label: "trial_studies", Properties: map[string]any{}},
	}, edges)
}

func TestEdges_StudyGermplasmInListOrder(t *testing.T) {
	src := writeDataset(t, nil, []map[string]any{studyRecord("S1", "G1", "G2")}, nil)
	a, err := NewAdapter(Options{Source: src})
	require.NoError(t, err)

	edges, err := graph.CollectEdges(a.Edges())
	require.NoError(t, err)
	assert.Equal(t, []graph.GraphEdge{
		{From: "S1", To: "G1", Label: "studies_germplasm", Properties: map[string]any{}},
		{From: "S1", To: "G2", Label: "studies_germplasm", Properties: map[string]any{}},
	}, edges)
}

func TestNodes_MissingKeyFailsLazily(t *testing.T) {
	broken := studyRecord("S2")
	delete(broken, "studyType")
	src := writeDataset(t,
		[]map[string]any{trialRecord("T1", "S1", "S2")},
		[]map[string]any{studyRecord("S1"), broken},
		[]map[string]any{germplasmRecord("G1")},
	)

	// Construction succeeds: keys are resolved when records are mapped.
	a, err := NewAdapter(Options{Source: src})
	require.NoError(t, err)

	var ids []string
	var failure error
	for node, err := range a.Nodes() {
		if err != nil {
			failure = err
			continue
		}
		ids = append(ids, node.ID)
	}
	assert.Equal(t, []string{"T1", "S1"}, ids, "no nodes after the offending record")

	require.Error(t, failure)
	assert.True(t, stderrors.Is(failure, ErrMissingField))
	var fe *FieldError
	require.True(t, stderrors.As(failure, &fe))
	assert.Equal(t, "study", fe.Collection)
	assert.Equal(t, 1, fe.Index)
	assert.Equal(t, "studyType", fe.Field)
	assert.Equal(t, `study record 1: missing field "studyType"`, failure.Error())

	_, err = a.NodeCount()
	assert.True(t, stderrors.Is(err, ErrMissingField))

	// Edges never look at studyType.
	count, err := a.EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEdges_EmptyGermplasmCollection(t *testing.T) {
	src := writeDataset(t,
		[]map[string]any{trialRecord("T1", "S1")},
		[]map[string]any{studyRecord("S1")},
		nil,
	)
	a, err := NewAdapter(Options{Source: src})
	require.NoError(t, err)

	nodes, err := graph.CollectNodes(a.Nodes())
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "trial", nodes[0].Label)
	assert.Equal(t, "study", nodes[1].Label)

	edges, err := graph.CollectEdges(a.Edges())
	require.NoError(t, err)
	assert.Equal(t, []graph.GraphEdge{
		{From: "T1", To: "S1", Label: "trial_studies", Properties: map[string]any{}},
	}, edges)
}

func TestEdges_DanglingGermplasmIsEmitted(t *testing.T) {
	src := writeDataset(t, nil, []map[string]any{studyRecord("S1", "G-missing")}, nil)
	a, err := NewAdapter(Options{Source: src})
	require.NoError(t, err)

	edges, err := graph.CollectEdges(a.Edges())
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "G-missing", edges[0].To)
}

func TestEdges_SourceIDReadOnlyForReferences(t *testing.T) {
	src := writeDataset(t,
		[]map[string]any{{"trialName": "no id", "studies": []map[string]any{}}},
		[]map[string]any{{"studyName": "no id", "germplasmDbIds": []string{}}},
		nil,
	)
	a, err := NewAdapter(Options{Source: src})
	require.NoError(t, err)

	count, err := a.EdgeCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = a.NodeCount()
	assert.True(t, stderrors.Is(err, ErrMissingField))
}

func TestNodes_LargeIntegerKeepsExactValue(t *testing.T) {
	g := germplasmRecord("G1")
	g["germplasmDbId"] = int64(9007199254740993)
	study := studyRecord("S1")
	study["germplasmDbIds"] = []any{int64(9007199254740993)}
	src := writeDataset(t, nil, []map[string]any{study}, []map[string]any{g})
	a, err := NewAdapter(Options{Source: src})
	require.NoError(t, err)

	nodes, err := graph.CollectNodes(a.Nodes())
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	germplasm := nodes[1]
	assert.Equal(t, "9007199254740993", germplasm.ID)
	assert.Equal(t, int64(9007199254740993), germplasm.Properties["germplasmDbId"])
	assert.Equal(t, []any{int64(9007199254740993)}, nodes[0].Properties["germplasmDbIds"])

	edges, err := graph.CollectEdges(a.Edges())
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, germplasm.ID, edges[0].To)
}

func TestRecord_LookupNumbers(t *testing.T) {
	c, err := ParseCollection("study", []byte(`[{"n": 2, "f": 2.5, "big": 123456789012345678901234, "list": [2013, 2014.5], "obj": {"year": 2014}}]`))
	require.NoError(t, err)
	r := c.Records[0]

	for key, want := range map[string]any{
		"n":    int64(2),
		"f":    2.5,
		"big":  json.Number("123456789012345678901234"),
		"list": []any{int64(2013), 2014.5},
		"obj":  map[string]any{"year": int64(2014)},
	} {
		got, err := r.Lookup(key)
		require.NoError(t, err)
		assert.Equal(t, want, got, key)
	}
}

func TestEdges_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		trials  []map[string]any
		studies []map[string]any
		want    error
		field   string
	}{
		{
			name:   "trial without studies",
			trials: []map[string]any{{"trialDbId": "T1"}},
			want:   ErrMissingField,
			field:  "studies",
		},
		{
			name:   "study reference without id",
			trials: []map[string]any{{"trialDbId": "T1", "studies": []map[string]any{{"studyName": "x"}}}},
			want:   ErrMissingField,
			field:  "studyDbId",
		},
		{
			name:    "germplasm ids not a list",
			studies: []map[string]any{{"studyDbId": "S1", "germplasmDbIds": "G1"}},
			want:    ErrNotAList,
			field:   "germplasmDbIds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAdapter(Options{Source: writeDataset(t, tt.trials, tt.studies, nil)})
			require.NoError(t, err)

			_, err = a.EdgeCount()
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, tt.want))
			var fe *FieldError
			require.True(t, stderrors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestNewAdapter_LoadFailures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewAdapter(Options{Source: Source{Dir: t.TempDir()}})
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, os.ErrNotExist))
		assert.Equal(t, errors.ErrorTypeFileSystem, errors.GetType(err))
	})

	t.Run("invalid json", func(t *testing.T) {
		src := writeDataset(t, nil, nil, nil)
		require.NoError(t, os.WriteFile(filepath.Join(src.Dir, "study.json"), []byte(`[{"studyDbId": `), 0644))

		_, err := NewAdapter(Options{Source: src})
		require.Error(t, err)
		assert.Equal(t, errors.ErrorTypeValidation, errors.GetType(err))
		assert.Contains(t, err.Error(), "invalid JSON")
	})

	t.Run("not an array", func(t *testing.T) {
		src := writeDataset(t, nil, nil, nil)
		require.NoError(t, os.WriteFile(filepath.Join(src.Dir, "trial.json"), []byte(`{"trialDbId": "T1"}`), 0644))

		_, err := NewAdapter(Options{Source: src})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected a JSON array")
	})
}

func TestLoadDataset_CustomFileNames(t *testing.T) {
	src := writeDataset(t, []map[string]any{trialRecord("T1")}, nil, nil)
	require.NoError(t, os.Rename(filepath.Join(src.Dir, "trial.json"), filepath.Join(src.Dir, "trials-2014.json")))
	src.Trial = "trials-2014.json"

	data, err := LoadDataset(src)
	require.NoError(t, err)
	assert.Equal(t, 1, data.Trials.Len())
	assert.Equal(t, filepath.Join(src.Dir, "trials-2014.json"), data.Trials.Path)
	assert.Equal(t, 0, data.Germplasm.Len())
}

func TestEdgeSchema(t *testing.T) {
	schema := EdgeSchema()
	assert.Equal(t, graph.EdgeEndpoints{From: "trial", To: "study"}, schema["trial_studies"])
	assert.Equal(t, graph.EdgeEndpoints{From: "study", To: "germplasm"}, schema["studies_germplasm"])
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
