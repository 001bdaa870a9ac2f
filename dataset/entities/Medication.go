package entities

import (
	"errors"
	"strings"
)

// SafetyLevel classifies how freely a medication can be dispensed.
type SafetyLevel string

const (
	SafetySafe       SafetyLevel = "safe"
	SafetyWarning    SafetyLevel = "warning"
	SafetyRestricted SafetyLevel = "restricted"
)

// Rank orders safety levels for result sorting: safe first, restricted last.
// Unknown levels sort after restricted.
func (s SafetyLevel) Rank() int {
	switch s {
	case SafetySafe:
		return 0
	case SafetyWarning:
		return 1
	case SafetyRestricted:
		return 2
	default:
		return 3
	}
}

// Valid reports whether s is one of the known safety levels.
func (s SafetyLevel) Valid() bool {
	return s == SafetySafe || s == SafetyWarning || s == SafetyRestricted
}

// Medication is one record of the reimbursement dataset.
// ReimbursementRate maps an insurer tag (e.g. "cnops", "cnss") to a percentage in [0,100].
type Medication struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	GenericName       string             `json:"genericName"`
	Dosage            string             `json:"dosage"`
	Form              string             `json:"form"`
	PPV               float64            `json:"ppv"`
	ReimbursementRate map[string]float64 `json:"reimbursementRate"`
	SafetyLevel       SafetyLevel        `json:"safetyLevel"`
}

// Clone returns a deep copy so that callers never share the rate map.
func (m Medication) Clone() Medication {
	if m.ReimbursementRate != nil {
		rates := make(map[string]float64, len(m.ReimbursementRate))
		for insurer, rate := range m.ReimbursementRate {
			rates[insurer] = rate
		}
		m.ReimbursementRate = rates
	}
	return m
}

// Validate checks the fields the search index cannot do without.
func (m Medication) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return errors.New("missing id")
	}
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("missing name")
	}
	return nil
}

// Rate returns the reimbursement percentage for an insurer, 0 when absent.
func (m Medication) Rate(insurer string) float64 {
	return m.ReimbursementRate[insurer]
}

// BestRate returns the highest reimbursement percentage across insurers.
func (m Medication) BestRate() float64 {
	best := 0.0
	for _, rate := range m.ReimbursementRate {
		if rate > best {
			best = rate
		}
	}
	return best
}

// Stats aggregates counts over a full dataset.
type Stats struct {
	Total      int     `json:"total"`
	Safe       int     `json:"safe"`
	Warning    int     `json:"warning"`
	Restricted int     `json:"restricted"`
	AvgPrice   float64 `json:"avgPrice"`
}
