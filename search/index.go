// Package search implements the weighted fuzzy index over the medication dataset
// and the query engine built on top of it. Both are pure: an index is built once
// and never patched; a new dataset means a new index.
package search

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/giygas/medicaments-search/dataset/entities"
)

// Field identifies an indexed medication attribute.
type Field string

const (
	FieldName        Field = "name"
	FieldGenericName Field = "genericName"
	FieldDosage      Field = "dosage"
	FieldForm        Field = "form"
)

func (f Field) value(m entities.Medication) string {
	switch f {
	case FieldName:
		return m.Name
	case FieldGenericName:
		return m.GenericName
	case FieldDosage:
		return m.Dosage
	case FieldForm:
		return m.Form
	default:
		return ""
	}
}

// Key is an indexed field with its relative weight.
type Key struct {
	Field  Field
	Weight float64
}

// Options configures index construction and matching.
type Options struct {
	Keys           []Key
	Threshold      float64 // 0 requires an exact match, 1 matches anything
	Distance       int     // runes scanned per field beyond the query length
	MinQueryLength int
	Matcher        Matcher // nil means EditDistanceMatcher{Threshold}
}

const (
	DefaultThreshold      = 0.3
	DefaultMinQueryLength = 2
)

// CompactOptions indexes name, generic name and dosage.
func CompactOptions() Options {
	return Options{
		Keys: []Key{
			{Field: FieldName, Weight: 0.6},
			{Field: FieldGenericName, Weight: 0.4},
			{Field: FieldDosage, Weight: 0.2},
		},
		Threshold:      DefaultThreshold,
		Distance:       100,
		MinQueryLength: DefaultMinQueryLength,
	}
}

// ExtendedOptions also indexes the pharmaceutical form.
func ExtendedOptions() Options {
	return Options{
		Keys: []Key{
			{Field: FieldName, Weight: 0.4},
			{Field: FieldGenericName, Weight: 0.3},
			{Field: FieldDosage, Weight: 0.2},
			{Field: FieldForm, Weight: 0.1},
		},
		Threshold:      DefaultThreshold,
		Distance:       50,
		MinQueryLength: DefaultMinQueryLength,
	}
}

// OptionsFor returns the named preset ("compact" or "extended").
func OptionsFor(name string) (Options, error) {
	switch strings.ToLower(name) {
	case "", "compact":
		return CompactOptions(), nil
	case "extended":
		return ExtendedOptions(), nil
	default:
		return Options{}, fmt.Errorf("unknown search keys preset: %s", name)
	}
}

func (o Options) withDefaults() Options {
	if len(o.Keys) == 0 {
		o.Keys = CompactOptions().Keys
	}
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.MinQueryLength <= 0 {
		o.MinQueryLength = DefaultMinQueryLength
	}
	if o.Distance <= 0 {
		o.Distance = 100
	}
	if o.Matcher == nil {
		o.Matcher = EditDistanceMatcher{Threshold: o.Threshold}
	}
	return o
}

// matchEpsilon stands in for an exact field match so that the weighted product
// still distinguishes records matching on several fields.
const matchEpsilon = 1e-3

type indexedField struct {
	text  string
	runes int
}

// Index is a read-only weighted fuzzy index.
type Index struct {
	opts    Options
	weights []float64
	records []entities.Medication
	fields  [][]indexedField // fields[record][key]
	names   []string         // normalized primary names
}

// candidate is a record that matched the query, with its combined score.
type candidate struct {
	pos   int
	score float64
}

// NewIndex builds an index over records. The records are copied; later changes to
// the caller's slice do not reach the index.
func NewIndex(records []entities.Medication, opts Options) *Index {
	opts = opts.withDefaults()

	total := 0.0
	for _, k := range opts.Keys {
		total += k.Weight
	}
	weights := make([]float64, len(opts.Keys))
	for i, k := range opts.Keys {
		if total > 0 {
			weights[i] = k.Weight / total
		} else {
			weights[i] = 1 / float64(len(opts.Keys))
		}
	}

	idx := &Index{
		opts:    opts,
		weights: weights,
		records: make([]entities.Medication, len(records)),
		fields:  make([][]indexedField, len(records)),
		names:   make([]string, len(records)),
	}

	for i, rec := range records {
		idx.records[i] = rec.Clone()
		row := make([]indexedField, len(opts.Keys))
		for k, key := range opts.Keys {
			text := Normalize(key.Field.value(rec))
			row[k] = indexedField{text: text, runes: utf8.RuneCountInString(text)}
		}
		idx.fields[i] = row
		idx.names[i] = Normalize(rec.Name)
	}

	return idx
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	return len(idx.records)
}

// search scores every record against an already normalized query and returns
// the records matching at least one field, in dataset order.
func (idx *Index) search(query string) []candidate {
	window := idx.opts.Distance + utf8.RuneCountInString(query)

	var out []candidate
	for pos, row := range idx.fields {
		score := 1.0
		matched := false
		for k, f := range row {
			if f.text == "" {
				continue
			}
			s, ok := idx.opts.Matcher.Match(query, clip(f, window))
			if !ok {
				continue
			}
			matched = true
			score *= math.Pow(math.Max(s, matchEpsilon), idx.weights[k])
		}
		if matched {
			out = append(out, candidate{pos: pos, score: score})
		}
	}
	return out
}

// clip limits a field to its first n runes.
func clip(f indexedField, n int) string {
	if f.runes <= n {
		return f.text
	}
	count := 0
	for i := range f.text {
		if count == n {
			return f.text[:i]
		}
		count++
	}
	return f.text
}
