package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation errors shared across the package.
var (
	ErrEmptyID         = errors.New("id cannot be empty")
	ErrEmptyCollection = errors.New("collection cannot be empty")
	ErrSelfPair        = errors.New("candidate pair endpoints must differ")
)

// DataError marks a malformed record. The offending record is skipped and
// counted; the run continues.
type DataError struct {
	RecordID string
	Reason   string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("malformed record %s: %s", e.RecordID, e.Reason)
}

// EmbeddingMeta describes the provenance of a cached embedding vector.
type EmbeddingMeta struct {
	Model     string    `json:"model" mapstructure:"model"`
	Dimension int       `json:"dimension" mapstructure:"dimension"`
	Profile   string    `json:"profile,omitempty" mapstructure:"profile"`
	CreatedAt time.Time `json:"created_at" mapstructure:"created_at"`
}

// Record is an immutable source document. Every record carries a stable,
// globally unique ID and belongs to one named collection. Fields may nest
// one level of sub-mappings (e.g. address).
type Record struct {
	ID         string           `json:"id" mapstructure:"id"`
	Collection string           `json:"collection" mapstructure:"collection"`
	Fields     map[string]Value `json:"fields" mapstructure:"fields"`

	// Embedding is an optional precomputed dense vector over the record's
	// serialized text form. Meta records which model produced it.
	Embedding []float32      `json:"embedding,omitempty" mapstructure:"embedding"`
	Meta      *EmbeddingMeta `json:"embedding_meta,omitempty" mapstructure:"embedding_meta"`
}

// Validate checks the record's required identity fields.
func (r *Record) Validate() error {
	if r.ID == "" {
		return ErrEmptyID
	}
	if r.Collection == "" {
		return ErrEmptyCollection
	}
	return nil
}

// Get resolves a field path. Nested fields use dot notation, e.g.
// "address.city". Missing fields resolve to Null.
func (r *Record) Get(path string) Value {
	if r.Fields == nil {
		return Null()
	}
	head, rest, nested := strings.Cut(path, ".")
	v, ok := r.Fields[head]
	if !ok {
		return Null()
	}
	if !nested {
		return v
	}
	m, ok := v.AsMap()
	if !ok {
		return Null()
	}
	for {
		head, rest, nested = strings.Cut(rest, ".")
		v, ok = m[head]
		if !ok {
			return Null()
		}
		if !nested {
			return v
		}
		m, ok = v.AsMap()
		if !ok {
			return Null()
		}
	}
}

// Text returns the comparison form of a field. Missing fields collapse to
// the empty string.
func (r *Record) Text(path string) string {
	return r.Get(path).Text()
}

// FieldPaths returns every populated leaf path in the record, nested paths
// in dot notation, in unspecified order.
func (r *Record) FieldPaths() []string {
	var paths []string
	for name, v := range r.Fields {
		if m, ok := v.AsMap(); ok {
			for sub := range m {
				paths = append(paths, name+"."+sub)
			}
			continue
		}
		paths = append(paths, name)
	}
	return paths
}

// Completeness returns the fraction of the given field paths that hold a
// non-null, non-empty value. With no paths given it measures every leaf
// path present on the record.
func (r *Record) Completeness(paths []string) float64 {
	if len(paths) == 0 {
		paths = r.FieldPaths()
	}
	if len(paths) == 0 {
		return 0
	}
	populated := 0
	for _, p := range paths {
		if r.Text(p) != "" {
			populated++
		}
	}
	return float64(populated) / float64(len(paths))
}
