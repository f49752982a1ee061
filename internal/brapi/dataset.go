package brapi

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rohankatakam/brapikg/internal/errors"
)

var (
	// ErrMissingField is matched by a FieldError for an absent key
	ErrMissingField = stderrors.New("missing field")
	// ErrNotAList is matched by a FieldError for a key that must hold a list
	ErrNotAList = stderrors.New("field is not a list")
)

// FieldError reports a source record that does not fit the node/edge schema.
// Collection is the source name ("trial", "study", "germplasm", or
// "trial.studies" for embedded study references) and Index the record position.
type FieldError struct {
	Collection string
	Index      int
	Field      string
	Err        error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s record %d: %v %q", e.Collection, e.Index, e.Err, e.Field)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Record is one raw source object. Keys are resolved on access, so schema
// violations surface when a record is mapped rather than when it is loaded.
type Record struct {
	collection string
	index      int
	raw        gjson.Result
}

// Index returns the record's position in its collection
func (r Record) Index() int {
	return r.index
}

func (r Record) get(key string) (gjson.Result, error) {
	v := r.raw.Get(gjson.Escape(key))
	if !v.Exists() {
		return v, &FieldError{Collection: r.collection, Index: r.index, Field: key, Err: ErrMissingField}
	}
	return v, nil
}

// Lookup returns the value stored under key as a plain Go value
// (string, int64, float64, json.Number, bool, nil, []any or map[string]any).
// Integers keep their exact value.
func (r Record) Lookup(key string) (any, error) {
	v, err := r.get(key)
	if err != nil {
		return nil, err
	}
	return plainValue(v), nil
}

// plainValue converts v like gjson's Value, except that integer numbers become
// int64, or json.Number when they do not fit, instead of float64.
func plainValue(v gjson.Result) any {
	switch {
	case v.Type == gjson.Number:
		if n, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
			return n
		}
		if isIntegerText(v.Raw) {
			return json.Number(v.Raw)
		}
		return v.Float()
	case v.IsArray():
		items := v.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = plainValue(item)
		}
		return out
	case v.IsObject():
		out := make(map[string]any)
		v.ForEach(func(key, value gjson.Result) bool {
			out[key.String()] = plainValue(value)
			return true
		})
		return out
	default:
		return v.Value()
	}
}

func isIntegerText(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ID returns the value under key as an identifier string, verbatim
func (r Record) ID(key string) (string, error) {
	v, err := r.get(key)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// List returns the elements of the list under key as records of the named collection
func (r Record) List(key, collection string) ([]Record, error) {
	v, err := r.get(key)
	if err != nil {
		return nil, err
	}
	if !v.IsArray() {
		return nil, &FieldError{Collection: r.collection, Index: r.index, Field: key, Err: ErrNotAList}
	}

	items := v.Array()
	out := make([]Record, len(items))
	for i, item := range items {
		out[i] = Record{collection: collection, index: i, raw: item}
	}
	return out, nil
}

// Collection is the ordered content of one source file
type Collection struct {
	Name    string
	Path    string
	Records []Record
}

// Len returns the number of records
func (c Collection) Len() int {
	return len(c.Records)
}

// ParseCollection parses a JSON document that must be a top-level array
func ParseCollection(name string, data []byte) (Collection, error) {
	if !gjson.ValidBytes(data) {
		return Collection{}, errors.ValidationErrorf("%s: invalid JSON", name)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return Collection{}, errors.ValidationErrorf("%s: expected a JSON array of records", name)
	}

	items := doc.Array()
	c := Collection{Name: name, Records: make([]Record, len(items))}
	for i, item := range items {
		c.Records[i] = Record{collection: name, index: i, raw: item}
	}
	return c, nil
}

// LoadCollection reads and parses one source file
func LoadCollection(name, path string) (Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Collection{}, errors.FileSystemErrorf(err, "failed to read %s", path).
			WithContext("collection", name)
	}

	c, err := ParseCollection(name, data)
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			return Collection{}, e.WithContext("path", path)
		}
		return Collection{}, err
	}
	c.Path = path
	return c, nil
}

// Source locates the three dataset files
type Source struct {
	Dir       string
	Germplasm string
	Study     string
	Trial     string
}

// DefaultSource returns the PopYWheat export layout
func DefaultSource() Source {
	return Source{
		Dir:       "brapiDataPopyWheat",
		Germplasm: "germplasm.json",
		Study:     "study.json",
		Trial:     "trial.json",
	}
}

func (s Source) withDefaults() Source {
	d := DefaultSource()
	if s.Dir == "" {
		s.Dir = d.Dir
	}
	if s.Germplasm == "" {
		s.Germplasm = d.Germplasm
	}
	if s.Study == "" {
		s.Study = d.Study
	}
	if s.Trial == "" {
		s.Trial = d.Trial
	}
	return s
}

// Path joins a file name onto the source directory
func (s Source) Path(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(s.Dir, file)
}

// Dataset holds the three loaded collections
type Dataset struct {
	Trials    Collection
	Studies   Collection
	Germplasm Collection
}

// LoadDataset loads germplasm, studies and trials, in that order. The first
// failure is returned as is.
func LoadDataset(src Source) (*Dataset, error) {
	src = src.withDefaults()

	germplasm, err := LoadCollection(string(NodeTypeGermplasm), src.Path(src.Germplasm))
	if err != nil {
		return nil, err
	}
	studies, err := LoadCollection(string(NodeTypeStudy), src.Path(src.Study))
	if err != nil {
		return nil, err
	}
	trials, err := LoadCollection(string(NodeTypeTrial), src.Path(src.Trial))
	if err != nil {
		return nil, err
	}

	return &Dataset{Trials: trials, Studies: studies, Germplasm: germplasm}, nil
}
