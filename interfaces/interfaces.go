// Package interfaces defines the contracts between the service layers so that
// each one can be tested against hand-written fakes.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/medicaments-search/dataset/entities"
	"github.com/giygas/medicaments-search/protocol"
)

// DataQualityReport summarizes issues found in a loaded dataset
type DataQualityReport struct {
	TotalRecords        int
	DuplicateIDs        []string
	NegativePrices      []string // ids
	RatesOutOfRange     []string // ids with a rate outside [0,100]
	UnknownSafetyLevels []string // ids
	MissingGenericNames int
}

// HasIssues reports whether anything was flagged
func (r *DataQualityReport) HasIssues() bool {
	return len(r.DuplicateIDs) > 0 || len(r.NegativePrices) > 0 ||
		len(r.RatesOutOfRange) > 0 || len(r.UnknownSafetyLevels) > 0
}

// LoadInfo describes one successful dataset load
type LoadInfo struct {
	Source     string
	Records    int // unique records indexed by the search host
	Duplicates int
	Duration   time.Duration
	Report     *DataQualityReport
}

// DataStore keeps dataset load metadata. The records themselves live in the
// search host, never here.
type DataStore interface {
	GetRecordCount() int
	GetLastUpdated() time.Time
	GetLastLoad() LoadInfo
	IsUpdating() bool
	GetUpdateStartedAt() time.Time
	GetServerStartTime() time.Time

	RecordLoad(info LoadInfo)
	BeginUpdate() bool
	EndUpdate()
}

// SearchService is the caller side of the search host
type SearchService interface {
	Init(ctx context.Context, records []entities.Medication) (protocol.InitResult, error)
	Search(ctx context.Context, query string, filters entities.SearchFilters, limit int) ([]entities.Medication, error)
	GetByID(ctx context.Context, id string) (*entities.Medication, error)
	GetStats(ctx context.Context) (entities.Stats, error)
	Pending() int
}

// DatasetLoader supplies the full record collection
type DatasetLoader interface {
	Load(ctx context.Context) ([]entities.Medication, error)
	Source() string
}

// Cache memoizes encoded values under a namespace
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetOrSet(ctx context.Context, key string, dest any, producer func(ctx context.Context) (any, error), ttl time.Duration) error
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
}

// Scheduler loads the dataset and keeps it fresh
type Scheduler interface {
	Start() error
	Stop()
}

// HTTPHandler serves the public endpoints
type HTTPHandler interface {
	Search(w http.ResponseWriter, r *http.Request)
	GetMedication(w http.ResponseWriter, r *http.Request)
	GetStats(w http.ResponseWriter, r *http.Request)
	HealthCheck(w http.ResponseWriter, r *http.Request)
}

// HealthChecker reports service health from dataset metadata and host reachability
type HealthChecker interface {
	HealthCheck(ctx context.Context) (status string, details map[string]any, httpStatus int)
	CalculateNextUpdate() time.Time
}

// DataValidator checks user input and dataset quality
type DataValidator interface {
	ValidateInput(input string) error
	ValidateID(input string) error
	ParseFilters(insurance, safety, maxPrice, minCoverage string) (entities.SearchFilters, error)
	ParseLimit(input string) (int, error)
	ReportDataQuality(records []entities.Medication) *DataQualityReport
}
