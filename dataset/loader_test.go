package dataset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

const sampleDataset = `[
  {"id": "1", "name": "Doliprane", "genericName": "Paracetamol", "dosage": "1000mg", "ppv": 15.5,
   "reimbursementRate": {"cnss": 70}, "safetyLevel": "safe"},
  {"id": "2", "name": "Amoxicilline", "genericName": "Amoxicillin", "dosage": "500mg", "ppv": 30,
   "reimbursementRate": {"cnops": 80}, "safetyLevel": "warning"}
]`

func writeDataset(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "medications.json")
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("Failed to write dataset: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	loader := NewLoader(writeDataset(t, []byte(sampleDataset)), "")

	records, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Name != "Doliprane" || records[0].Rate("cnss") != 70 {
		t.Errorf("Unexpected first record %+v", records[0])
	}
	if loader.Source() != loader.Path {
		t.Errorf("Expected source %s, got %s", loader.Path, loader.Source())
	}
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.json"), "")

	if _, err := loader.Load(context.Background()); err == nil {
		t.Error("Expected error for a missing file, got nil")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"bare array", sampleDataset, 2, false},
		{"wrapped object", `{"medications": [{"id": "1", "name": "Doliprane"}]}`, 1, false},
		{"empty input", "  ", 0, true},
		{"empty array", "[]", 0, true},
		{"object without records", `{"other": 1}`, 0, true},
		{"invalid json", "[{", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Decode([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if len(records) != tt.want {
				t.Errorf("Expected %d records, got %d", tt.want, len(records))
			}
		})
	}
}

func TestLoadFromURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleDataset))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "data", "medications.json")
	loader := NewLoader(path, server.URL)

	records, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(records))
	}
	if loader.Source() != server.URL {
		t.Errorf("Expected source %s, got %s", server.URL, loader.Source())
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected a local copy at %s, got %v", path, err)
	}
}

func TestLoadFromURLDecodesLatin1(t *testing.T) {
	body := []byte(`[{"id": "1", "name": "G`)
	body = append(body, 0xE9) // é in ISO-8859-1
	body = append(body, []byte(`lule", "safetyLevel": "safe"}]`)...)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer server.Close()

	loader := NewLoader("", server.URL)

	records, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if records[0].Name != "Gélule" {
		t.Errorf("Expected name Gélule, got %q", records[0].Name)
	}
}

func TestLoadFromURLFallsBackToLocalCopy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	loader := NewLoader(writeDataset(t, []byte(sampleDataset)), server.URL)

	records, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Expected fallback to the local copy, got %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(records))
	}
}

func TestLoadFromURLFailsWithoutLocalCopy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	loader := NewLoader(filepath.Join(t.TempDir(), "missing.json"), server.URL)

	if _, err := loader.Load(context.Background()); err == nil {
		t.Error("Expected error, got nil")
	}
}

func TestLoadHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleDataset))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loader := NewLoader("", server.URL)
	if _, err := loader.Load(ctx); err == nil {
		t.Error("Expected error for a cancelled context, got nil")
	}
}
