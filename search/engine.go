package search

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/giygas/medicaments-search/dataset/entities"
	"github.com/giygas/medicaments-search/protocol"
)

const (
	DefaultLimit = 8
	MaxLimit     = 50
)

// Engine answers ranked queries over an Index. Query is safe for concurrent use;
// the id map behind Get is built once, on first use.
type Engine struct {
	index *Index

	byIDOnce sync.Once
	byID     map[string]int
}

// NewEngine deduplicates records by id (a later record replaces an earlier one
// in the earlier position) and builds a fresh index. It also returns the number of
// replaced records.
func NewEngine(records []entities.Medication, opts Options) (*Engine, int) {
	unique, duplicates := Dedupe(records)
	return &Engine{index: NewIndex(unique, opts)}, duplicates
}

// Dedupe keeps one record per id, last write wins, first position kept.
func Dedupe(records []entities.Medication) ([]entities.Medication, int) {
	positions := make(map[string]int, len(records))
	unique := make([]entities.Medication, 0, len(records))
	duplicates := 0

	for _, rec := range records {
		if pos, ok := positions[rec.ID]; ok {
			unique[pos] = rec
			duplicates++
			continue
		}
		positions[rec.ID] = len(unique)
		unique = append(unique, rec)
	}

	return unique, duplicates
}

// Len returns the number of indexed records.
func (e *Engine) Len() int {
	if e == nil || e.index == nil {
		return 0
	}
	return e.index.Len()
}

// ClampLimit maps a caller limit onto [1, MaxLimit], using DefaultLimit for
// non-positive values.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Query returns at most limit records ranked for query and satisfying filters.
//
// Queries shorter than the minimum length do not touch the index: with filters
// they list matching records in dataset order (browse mode), without filters they
// return nothing. Ranking prefers records whose name contains the query, then
// safer records, then better fuzzy scores.
func (e *Engine) Query(query string, filters entities.SearchFilters, limit int) ([]entities.Medication, error) {
	if e == nil || e.index == nil {
		return nil, protocol.ErrNotInitialized
	}

	limit = ClampLimit(limit)
	q := Normalize(query)

	if utf8.RuneCountInString(q) < e.index.opts.MinQueryLength {
		if filters.IsEmpty() {
			return []entities.Medication{}, nil
		}
		return e.browse(filters, limit), nil
	}

	type ranked struct {
		candidate
		contains bool
		safety   int
	}

	var hits []ranked
	for _, c := range e.index.search(q) {
		rec := e.index.records[c.pos]
		if !filters.Matches(rec) {
			continue
		}
		hits = append(hits, ranked{
			candidate: c,
			contains:  strings.Contains(e.index.names[c.pos], q),
			safety:    rec.SafetyLevel.Rank(),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.contains != b.contains {
			return a.contains
		}
		if a.safety != b.safety {
			return a.safety < b.safety
		}
		if a.score != b.score {
			return a.score < b.score
		}
		return a.pos < b.pos
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]entities.Medication, len(hits))
	for i, h := range hits {
		results[i] = e.index.records[h.pos].Clone()
	}
	return results, nil
}

func (e *Engine) browse(filters entities.SearchFilters, limit int) []entities.Medication {
	results := make([]entities.Medication, 0, limit)
	for _, rec := range e.index.records {
		if len(results) == limit {
			break
		}
		if filters.Matches(rec) {
			results = append(results, rec.Clone())
		}
	}
	return results
}

// Get returns the record with the given id.
func (e *Engine) Get(id string) (entities.Medication, bool, error) {
	if e == nil || e.index == nil {
		return entities.Medication{}, false, protocol.ErrNotInitialized
	}

	e.byIDOnce.Do(func() {
		e.byID = make(map[string]int, len(e.index.records))
		for pos, rec := range e.index.records {
			e.byID[rec.ID] = pos
		}
	})

	pos, ok := e.byID[id]
	if !ok {
		return entities.Medication{}, false, nil
	}
	return e.index.records[pos].Clone(), true, nil
}

// Stats aggregates counts and the average price over the whole dataset.
func (e *Engine) Stats() (entities.Stats, error) {
	if e == nil || e.index == nil {
		return entities.Stats{}, protocol.ErrNotInitialized
	}

	var stats entities.Stats
	var totalPrice float64
	for _, rec := range e.index.records {
		stats.Total++
		totalPrice += rec.PPV
		switch rec.SafetyLevel {
		case entities.SafetySafe:
			stats.Safe++
		case entities.SafetyWarning:
			stats.Warning++
		case entities.SafetyRestricted:
			stats.Restricted++
		}
	}
	if stats.Total > 0 {
		stats.AvgPrice = totalPrice / float64(stats.Total)
	}
	return stats, nil
}
