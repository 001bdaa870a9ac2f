// Package validation checks user input and reports dataset quality issues.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/giygas/medicaments-search/dataset/entities"
	"github.com/giygas/medicaments-search/interfaces"
	"github.com/giygas/medicaments-search/logging"
)

const (
	maxQueryLength = 100
	maxQueryWords  = 6
	maxIDLength    = 64
	maxListedIDs   = 10
	maxRepetition  = 10
)

var (
	// letters of any script, digits, spaces and the punctuation found in dosages
	inputRegex   = regexp.MustCompile(`^[\p{L}\p{M}0-9\s\-\.\+'/%,]+$`)
	idRegex      = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
	insurerRegex = regexp.MustCompile(`^[a-z0-9_]{1,20}$`)

	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"eval(", "expression(", "@import",
		// SQL injection patterns
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"--", "/*", "*/", "exec(",
		// Command injection patterns
		"; ", "| ", "& ", "`", "$(", "${",
		// Path traversal patterns
		"../", "..\\", "%2e%2e", "file://",
		// NoSQL injection patterns
		"{$ne:", "{$gt:", "{$where:", "{$regex:",
	}
)

// Compile-time check to ensure DataValidatorImpl implements DataValidator
var _ interfaces.DataValidator = (*DataValidatorImpl)(nil)

// DataValidatorImpl implements the interfaces.DataValidator interface
type DataValidatorImpl struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() *DataValidatorImpl {
	return &DataValidatorImpl{}
}

// ValidateInput validates a search query
func (v *DataValidatorImpl) ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("input cannot be empty")
	}

	if len(input) > maxQueryLength {
		return fmt.Errorf("input too long: maximum %d characters", maxQueryLength)
	}

	if len(strings.Fields(input)) > maxQueryWords {
		return fmt.Errorf("search query too complex: maximum %d words allowed", maxQueryWords)
	}

	lowerInput := strings.ToLower(input)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowerInput, pattern) {
			return fmt.Errorf("input contains potentially dangerous content")
		}
	}

	if !inputRegex.MatchString(input) {
		return fmt.Errorf("input contains invalid characters. Only letters, numbers, spaces and - . + ' / %% , are allowed")
	}

	if hasExcessiveRepetition(input) {
		return fmt.Errorf("input contains excessive character repetition")
	}

	return nil
}

// ValidateID validates a medication id taken from the URL
func (v *DataValidatorImpl) ValidateID(input string) error {
	if input == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if len(input) > maxIDLength {
		return fmt.Errorf("id too long: maximum %d characters", maxIDLength)
	}
	if !idRegex.MatchString(input) {
		return fmt.Errorf("id contains invalid characters. Only letters, numbers, '-' and '_' are allowed")
	}
	return nil
}

// ParseFilters builds search filters from raw query parameters. Empty
// parameters leave the corresponding filter unset.
func (v *DataValidatorImpl) ParseFilters(insurance, safety, maxPrice, minCoverage string) (entities.SearchFilters, error) {
	var filters entities.SearchFilters

	if insurance != "" {
		insurer := strings.ToLower(strings.TrimSpace(insurance))
		if !insurerRegex.MatchString(insurer) {
			return entities.SearchFilters{}, fmt.Errorf("invalid insurance: %q", insurance)
		}
		filters.InsuranceType = insurer
	}

	if safety != "" {
		level := entities.SafetyLevel(strings.ToLower(strings.TrimSpace(safety)))
		if !level.Valid() {
			return entities.SearchFilters{}, fmt.Errorf("invalid safety level: %q (must be safe, warning or restricted)", safety)
		}
		filters.SafetyLevel = level
	}

	if maxPrice != "" {
		price, err := parseNumber(maxPrice)
		if err != nil || price < 0 {
			return entities.SearchFilters{}, fmt.Errorf("invalid maxPrice: %q (must be a non-negative number)", maxPrice)
		}
		filters.MaxPrice = &price
	}

	if minCoverage != "" {
		coverage, err := parseNumber(minCoverage)
		if err != nil || coverage < 0 || coverage > 100 {
			return entities.SearchFilters{}, fmt.Errorf("invalid minCoverage: %q (must be between 0 and 100)", minCoverage)
		}
		filters.MinCoverage = &coverage
	}

	return filters, nil
}

// ParseLimit parses the limit parameter. Empty means the engine default;
// out-of-range values are clamped by the engine.
func (v *DataValidatorImpl) ParseLimit(input string) (int, error) {
	if input == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, fmt.Errorf("invalid limit: %q (must be an integer)", input)
	}
	return limit, nil
}

func parseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}

// ReportDataQuality lists the issues of a dataset before it is indexed.
// Id lists keep the first offenders only.
func (v *DataValidatorImpl) ReportDataQuality(records []entities.Medication) *interfaces.DataQualityReport {
	report := &interfaces.DataQualityReport{
		TotalRecords:        len(records),
		DuplicateIDs:        []string{},
		NegativePrices:      []string{},
		RatesOutOfRange:     []string{},
		UnknownSafetyLevels: []string{},
	}

	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if seen[rec.ID] {
			report.DuplicateIDs = appendCapped(report.DuplicateIDs, rec.ID)
		}
		seen[rec.ID] = true

		if rec.PPV < 0 {
			report.NegativePrices = appendCapped(report.NegativePrices, rec.ID)
		}

		for _, rate := range rec.ReimbursementRate {
			if rate < 0 || rate > 100 {
				report.RatesOutOfRange = appendCapped(report.RatesOutOfRange, rec.ID)
				break
			}
		}

		if !rec.SafetyLevel.Valid() {
			report.UnknownSafetyLevels = appendCapped(report.UnknownSafetyLevels, rec.ID)
		}

		if strings.TrimSpace(rec.GenericName) == "" {
			report.MissingGenericNames++
		}
	}

	if report.HasIssues() {
		logging.Warn("Dataset quality issues detected",
			"records", report.TotalRecords,
			"duplicate_ids", report.DuplicateIDs,
			"negative_prices", report.NegativePrices,
			"rates_out_of_range", report.RatesOutOfRange,
			"unknown_safety_levels", report.UnknownSafetyLevels,
		)
	}

	return report
}

func appendCapped(ids []string, id string) []string {
	if len(ids) >= maxListedIDs {
		return ids
	}
	return append(ids, id)
}

// hasExcessiveRepetition checks for the same character repeated more than maxRepetition times
func hasExcessiveRepetition(input string) bool {
	run := 0
	var prev rune = -1
	for _, r := range input {
		if r == prev {
			run++
			if run > maxRepetition {
				return true
			}
			continue
		}
		prev = r
		run = 1
	}
	return false
}
