package validation

import (
	"strings"
	"testing"

	"github.com/giygas/medicaments-search/dataset/entities"
)

func TestValidateInput(t *testing.T) {
	validator := NewDataValidator()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple name", "doliprane", false},
		{"name with dosage", "doliprane 1000mg", false},
		{"french accents", "gélule effervescente", false},
		{"arabic script", "باراسيتامول", false},
		{"dosage punctuation", "amoxicilline 500mg/5ml", false},
		{"single character", "d", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"too long", strings.Repeat("ab", 51), true},
		{"too many words", "a b c d e f g", true},
		{"script tag", "<script>alert(1)</script>", true},
		{"sql injection", "x' or 1=1", true},
		{"sql comment", "doliprane--", true},
		{"path traversal", "../etc/passwd", true},
		{"invalid characters", "doli@prane", true},
		{"excessive repetition", "aaaaaaaaaaaa", true},
		{"repetition at limit", "aaaaaaaaaa", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateInput(tt.input)
			if tt.wantErr && err == nil {
				t.Errorf("Expected error for %q, got nil", tt.input)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error for %q, got %v", tt.input, err)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	validator := NewDataValidator()

	tests := []struct {
		input   string
		wantErr bool
	}{
		{"1", false},
		{"med-001", false},
		{"MED_42", false},
		{"", true},
		{"a b", true},
		{"1;drop", true},
		{strings.Repeat("x", 65), true},
	}

	for _, tt := range tests {
		err := validator.ValidateID(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateID(%q): expected error=%v, got %v", tt.input, tt.wantErr, err)
		}
	}
}

func TestParseFilters(t *testing.T) {
	validator := NewDataValidator()

	t.Run("all empty", func(t *testing.T) {
		filters, err := validator.ParseFilters("", "", "", "")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if !filters.IsEmpty() {
			t.Errorf("Expected empty filters, got %+v", filters)
		}
	})

	t.Run("all set", func(t *testing.T) {
		filters, err := validator.ParseFilters("CNSS", "Safe", "50", "70.5")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if filters.InsuranceType != "cnss" {
			t.Errorf("Expected insurance cnss, got %q", filters.InsuranceType)
		}
		if filters.SafetyLevel != entities.SafetySafe {
			t.Errorf("Expected safety safe, got %q", filters.SafetyLevel)
		}
		if filters.MaxPrice == nil || *filters.MaxPrice != 50 {
			t.Errorf("Expected maxPrice 50, got %v", filters.MaxPrice)
		}
		if filters.MinCoverage == nil || *filters.MinCoverage != 70.5 {
			t.Errorf("Expected minCoverage 70.5, got %v", filters.MinCoverage)
		}
	})

	invalid := []struct {
		name                                     string
		insurance, safety, maxPrice, minCoverage string
	}{
		{"bad insurance", "cn ss", "", "", ""},
		{"unknown safety", "", "dangerous", "", ""},
		{"negative price", "", "", "-1", ""},
		{"price not a number", "", "", "cheap", ""},
		{"price NaN", "", "", "NaN", ""},
		{"coverage above 100", "", "", "", "101"},
		{"negative coverage", "", "", "", "-5"},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := validator.ParseFilters(tt.insurance, tt.safety, tt.maxPrice, tt.minCoverage); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestParseLimit(t *testing.T) {
	validator := NewDataValidator()

	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"5", 5, false},
		{"0", 0, false},
		{"-3", -3, false},
		{"500", 500, false},
		{"ten", 0, true},
		{"1.5", 0, true},
	}

	for _, tt := range tests {
		got, err := validator.ParseLimit(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLimit(%q): expected error=%v, got %v", tt.input, tt.wantErr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLimit(%q): expected %d, got %d", tt.input, tt.want, got)
		}
	}
}

func TestReportDataQuality(t *testing.T) {
	validator := NewDataValidator()

	records := []entities.Medication{
		{ID: "1", Name: "Doliprane", GenericName: "paracetamol", PPV: 15, SafetyLevel: entities.SafetySafe,
			ReimbursementRate: map[string]float64{"cnss": 70}},
		{ID: "2", Name: "Broken", PPV: -3, SafetyLevel: "unknown",
			ReimbursementRate: map[string]float64{"cnops": 120}},
		{ID: "1", Name: "Doliprane bis", GenericName: "paracetamol", PPV: 16, SafetyLevel: entities.SafetySafe},
	}

	report := validator.ReportDataQuality(records)

	if report.TotalRecords != 3 {
		t.Errorf("Expected 3 records, got %d", report.TotalRecords)
	}
	if len(report.DuplicateIDs) != 1 || report.DuplicateIDs[0] != "1" {
		t.Errorf("Expected duplicate id 1, got %v", report.DuplicateIDs)
	}
	if len(report.NegativePrices) != 1 || report.NegativePrices[0] != "2" {
		t.Errorf("Expected negative price on 2, got %v", report.NegativePrices)
	}
	if len(report.RatesOutOfRange) != 1 || report.RatesOutOfRange[0] != "2" {
		t.Errorf("Expected rate out of range on 2, got %v", report.RatesOutOfRange)
	}
	if len(report.UnknownSafetyLevels) != 1 || report.UnknownSafetyLevels[0] != "2" {
		t.Errorf("Expected unknown safety level on 2, got %v", report.UnknownSafetyLevels)
	}
	if report.MissingGenericNames != 1 {
		t.Errorf("Expected 1 missing generic name, got %d", report.MissingGenericNames)
	}
	if !report.HasIssues() {
		t.Error("Expected HasIssues to be true")
	}
}

func TestReportDataQualityClean(t *testing.T) {
	validator := NewDataValidator()

	report := validator.ReportDataQuality([]entities.Medication{
		{ID: "1", Name: "Doliprane", GenericName: "paracetamol", PPV: 15, SafetyLevel: entities.SafetySafe},
	})

	if report.HasIssues() {
		t.Errorf("Expected no issues, got %+v", report)
	}
}

func TestReportDataQualityCapsIDLists(t *testing.T) {
	validator := NewDataValidator()

	var records []entities.Medication
	for i := 0; i < 25; i++ {
		records = append(records, entities.Medication{ID: "same", Name: "x", SafetyLevel: entities.SafetySafe})
	}

	report := validator.ReportDataQuality(records)

	if len(report.DuplicateIDs) != maxListedIDs {
		t.Errorf("Expected %d listed duplicates, got %d", maxListedIDs, len(report.DuplicateIDs))
	}
}
