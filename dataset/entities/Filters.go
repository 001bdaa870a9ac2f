package entities

// SearchFilters narrows search results. Every field is optional; a nil pointer or
// empty string means no constraint for that dimension.
type SearchFilters struct {
	InsuranceType string      `json:"insuranceType,omitempty"`
	SafetyLevel   SafetyLevel `json:"safetyLevel,omitempty"`
	MaxPrice      *float64    `json:"maxPrice,omitempty"`
	MinCoverage   *float64    `json:"minCoverage,omitempty"`
}

// IsEmpty reports whether no filter is set.
func (f SearchFilters) IsEmpty() bool {
	return f.InsuranceType == "" && f.SafetyLevel == "" && f.MaxPrice == nil && f.MinCoverage == nil
}

// Matches reports whether m satisfies every configured criterion.
// MinCoverage compares the rate of InsuranceType when set, the best rate otherwise.
func (f SearchFilters) Matches(m Medication) bool {
	if f.InsuranceType != "" && m.Rate(f.InsuranceType) <= 0 {
		return false
	}

	if f.SafetyLevel != "" && m.SafetyLevel != f.SafetyLevel {
		return false
	}

	if f.MaxPrice != nil && m.PPV > *f.MaxPrice {
		return false
	}

	if f.MinCoverage != nil {
		coverage := m.BestRate()
		if f.InsuranceType != "" {
			coverage = m.Rate(f.InsuranceType)
		}
		if coverage < *f.MinCoverage {
			return false
		}
	}

	return true
}
