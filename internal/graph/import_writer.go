package graph

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rohankatakam/brapikg/internal/errors"
	"github.com/rohankatakam/brapikg/internal/logging"
)

// ImportScriptName is the file WriteImportCall produces inside the output directory
const ImportScriptName = "neo4j-admin-import-call.sh"

// ImportConfig controls the neo4j-admin bulk import output
type ImportConfig struct {
	Dir            string // Output directory, created if missing
	Delimiter      rune   // Field delimiter (default ';')
	ArrayDelimiter string // List element separator (default "|")
	Database       string // Target database for the import call (default "neo4j")
	AdminBin       string // neo4j-admin executable (default "neo4j-admin")
}

func (c ImportConfig) withDefaults() ImportConfig {
	if c.Delimiter == 0 {
		c.Delimiter = ';'
	}
	if c.ArrayDelimiter == "" {
		c.ArrayDelimiter = "|"
	}
	if c.Database == "" {
		c.Database = "neo4j"
	}
	if c.AdminBin == "" {
		c.AdminBin = "neo4j-admin"
	}
	return c
}

// column is one typed property column of a header file
type column struct {
	key      string
	typeName string // "", "long", "double", "boolean", "string[]"
}

func (c column) header() string {
	if c.typeName == "" {
		return c.key
	}
	return c.key + ":" + c.typeName
}

// csvRow is one buffered node (start only) or relationship
type csvRow struct {
	start string
	end   string
	props map[string]any
}

// csvFile is the header+part pair written for one node label or relationship type
type csvFile struct {
	label      string
	headerPath string
	partPath   string
	edge       bool
	rows       []csvRow
}

// ImportWriter writes node and edge sequences as neo4j-admin import CSV files.
// Rows are buffered per label and the files are rewritten at the end of each
// Write call, so a label's columns cover the properties of all its records.
type ImportWriter struct {
	cfg       ImportConfig
	nodes     map[string]*csvFile
	edges     map[string]*csvFile
	nodeOrder []string
	edgeOrder []string
}

// NewImportWriter creates the output directory and returns a writer
func NewImportWriter(cfg ImportConfig) (*ImportWriter, error) {
	cfg = cfg.withDefaults()
	if cfg.Dir == "" {
		return nil, errors.ConfigError("import output directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, errors.FileSystemErrorf(err, "failed to create output directory %s", cfg.Dir)
	}

	return &ImportWriter{
		cfg:   cfg,
		nodes: make(map[string]*csvFile),
		edges: make(map[string]*csvFile),
	}, nil
}

// Dir returns the output directory
func (w *ImportWriter) Dir() string {
	return w.cfg.Dir
}

// WriteNodes buffers nodes per label and writes their CSV files
func (w *ImportWriter) WriteNodes(ctx context.Context, nodes NodeSeq) (int, error) {
	written := 0
	touched := make(map[string]*csvFile)
	for node, err := range nodes {
		if err != nil {
			if werr := w.writeFiles(touched); werr != nil {
				logging.Warn("failed to write partial node files", "error", werr)
			}
			return written, err
		}

		f, err := w.file(w.nodes, &w.nodeOrder, node.Label, false)
		if err != nil {
			return written, err
		}
		f.rows = append(f.rows, csvRow{start: node.ID, props: node.Properties})
		touched[node.Label] = f
		written++
	}

	if err := w.writeFiles(touched); err != nil {
		return written, err
	}
	logging.Info("wrote node import files", "count", written, "dir", w.cfg.Dir)
	return written, nil
}

// WriteEdges buffers edges per type and writes their CSV files
func (w *ImportWriter) WriteEdges(ctx context.Context, edges EdgeSeq) (int, error) {
	written := 0
	touched := make(map[string]*csvFile)
	for edge, err := range edges {
		if err != nil {
			if werr := w.writeFiles(touched); werr != nil {
				logging.Warn("failed to write partial edge files", "error", werr)
			}
			return written, err
		}

		f, err := w.file(w.edges, &w.edgeOrder, edge.Label, true)
		if err != nil {
			return written, err
		}
		f.rows = append(f.rows, csvRow{start: edge.From, end: edge.To, props: edge.Properties})
		touched[edge.Label] = f
		written++
	}

	if err := w.writeFiles(touched); err != nil {
		return written, err
	}
	logging.Info("wrote edge import files", "count", written, "dir", w.cfg.Dir)
	return written, nil
}

// WriteImportCall writes the neo4j-admin bulk import command for every file
// written so far and returns the script path.
func (w *ImportWriter) WriteImportCall() (string, error) {
	var sb strings.Builder
	sb.WriteString("#!/bin/bash\n")
	sb.WriteString(w.ImportCall())
	sb.WriteString("\n")

	path := filepath.Join(w.cfg.Dir, ImportScriptName)
	if err := os.WriteFile(path, []byte(sb.String()), 0755); err != nil {
		return "", errors.FileSystemErrorf(err, "failed to write %s", path)
	}

	logging.Info("wrote import call", "path", path)
	return path, nil
}

// ImportCall returns the neo4j-admin command line
func (w *ImportWriter) ImportCall() string {
	parts := []string{
		w.cfg.AdminBin,
		"database import full",
		fmt.Sprintf("--delimiter=%q", string(w.cfg.Delimiter)),
		fmt.Sprintf("--array-delimiter=%q", w.cfg.ArrayDelimiter),
		`--quote='"'`,
		"--overwrite-destination=true",
	}
	for _, label := range w.nodeOrder {
		f := w.nodes[label]
		parts = append(parts, fmt.Sprintf("--nodes=%q", f.headerPath+","+f.partPath))
	}
	for _, label := range w.edgeOrder {
		f := w.edges[label]
		parts = append(parts, fmt.Sprintf("--relationships=%q", f.headerPath+","+f.partPath))
	}
	parts = append(parts, w.cfg.Database)
	return strings.Join(parts, " ")
}

// Close drops the buffered rows. The files are already complete.
func (w *ImportWriter) Close(ctx context.Context) error {
	for _, files := range []map[string]*csvFile{w.nodes, w.edges} {
		for _, f := range files {
			f.rows = nil
		}
	}
	return nil
}

func (w *ImportWriter) file(files map[string]*csvFile, order *[]string, label string, edge bool) (*csvFile, error) {
	if f, ok := files[label]; ok {
		return f, nil
	}
	if !isValidIdentifier(label) {
		return nil, errors.ValidationErrorf("invalid label for import file: %q", label)
	}

	f := &csvFile{
		label:      label,
		headerPath: filepath.Join(w.cfg.Dir, label+"-header.csv"),
		partPath:   filepath.Join(w.cfg.Dir, label+"-part000.csv"),
		edge:       edge,
	}
	files[label] = f
	*order = append(*order, label)
	return f, nil
}

func (w *ImportWriter) writeFiles(files map[string]*csvFile) error {
	for _, f := range files {
		if err := w.writeFile(f); err != nil {
			return err
		}
	}
	return nil
}

// writeFile (re)writes the header and part file of one label from its buffered rows
func (w *ImportWriter) writeFile(f *csvFile) error {
	cols := deriveColumns(f.rows)

	var header []string
	if f.edge {
		header = append([]string{":START_ID"}, headers(cols)...)
		header = append(header, ":END_ID", ":TYPE")
	} else {
		header = append([]string{"id:ID"}, headers(cols)...)
		header = append(header, ":LABEL")
	}
	if err := w.writeCSV(f.headerPath, [][]string{header}); err != nil {
		return err
	}

	records := make([][]string, len(f.rows))
	for i, r := range f.rows {
		row := append([]string{r.start}, w.formatRow(cols, r.props)...)
		if f.edge {
			row = append(row, r.end)
		}
		records[i] = append(row, f.label)
	}
	return w.writeCSV(f.partPath, records)
}

func (w *ImportWriter) writeCSV(path string, records [][]string) error {
	out, err := os.Create(path)
	if err != nil {
		return errors.FileSystemErrorf(err, "failed to create %s", path)
	}
	cw := csv.NewWriter(out)
	cw.Comma = w.cfg.Delimiter
	if err := cw.WriteAll(records); err != nil {
		out.Close()
		return errors.FileSystemErrorf(err, "failed to write %s", path)
	}
	if err := out.Close(); err != nil {
		return errors.FileSystemErrorf(err, "failed to close %s", path)
	}
	return nil
}

func (w *ImportWriter) formatRow(cols []column, props map[string]any) []string {
	row := make([]string, len(cols))
	for i, col := range cols {
		row[i] = w.formatValue(props[col.key])
	}
	return row
}

func (w *ImportWriter) formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case []string:
		return strings.Join(val, w.cfg.ArrayDelimiter)
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = w.formatValue(item)
		}
		return strings.Join(items, w.cfg.ArrayDelimiter)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

// deriveColumns returns the sorted union of property keys over rows. A column
// is string[] when any row holds a list there, and typed boolean, long or
// double only when every non-null value agrees; otherwise it is left untyped.
func deriveColumns(rows []csvRow) []column {
	kinds := make(map[string]map[string]bool)
	for _, r := range rows {
		for key, v := range r.props {
			if kinds[key] == nil {
				kinds[key] = make(map[string]bool)
			}
			if v != nil {
				kinds[key][valueKind(v)] = true
			}
		}
	}

	keys := make([]string, 0, len(kinds))
	for key := range kinds {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	cols := make([]column, len(keys))
	for i, key := range keys {
		cols[i] = column{key: key, typeName: columnType(kinds[key])}
	}
	return cols
}

func columnType(kinds map[string]bool) string {
	switch {
	case kinds["list"]:
		return "string[]"
	case len(kinds) == 1 && kinds["boolean"]:
		return "boolean"
	case len(kinds) == 1 && kinds["long"]:
		return "long"
	case len(kinds) == 1 && kinds["double"],
		len(kinds) == 2 && kinds["long"] && kinds["double"]:
		return "double"
	default:
		return ""
	}
}

func valueKind(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case int, int64:
		return "long"
	case float64:
		return "double"
	case []string, []any:
		return "list"
	default:
		return "string"
	}
}

func headers(cols []column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.header()
	}
	return out
}
