package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/giygas/medicaments-search/config"
	"github.com/giygas/medicaments-search/handlers"
)

const testDataset = `{"medications": [
  {"id": "1", "name": "Doliprane", "genericName": "Paracetamol", "dosage": "1000mg", "ppv": 15.5,
   "reimbursementRate": {"cnss": 70}, "safetyLevel": "safe"},
  {"id": "2", "name": "Amoxicilline", "genericName": "Amoxicillin", "dosage": "500mg", "ppv": 30,
   "reimbursementRate": {"cnops": 80}, "safetyLevel": "warning"}
]}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "medications.json")
	if err := os.WriteFile(path, []byte(testDataset), 0600); err != nil {
		t.Fatalf("Failed to write dataset: %v", err)
	}

	return &config.Config{
		Port:           "8000",
		Address:        "127.0.0.1",
		Env:            config.EnvTest,
		DatasetPath:    path,
		ReloadSchedule: "06:00;18:00",
		SearchTimeout:  5 * time.Second,
		SearchKeys:     "compact",
		CacheTTL:       time.Minute,
		CacheMaxItems:  100,
		CacheDBPath:    filepath.Join(dir, "cache.db"),
		CacheNamespace: "test",
	}
}

func get(t *testing.T, a *app, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestApplicationWiring(t *testing.T) {
	a, err := newApp(testConfig(t))
	if err != nil {
		t.Fatalf("Failed to build application: %v", err)
	}
	t.Cleanup(a.close)

	if err := a.scheduler.Start(); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}

	if a.container.GetRecordCount() != 2 {
		t.Fatalf("Expected 2 records loaded, got %d", a.container.GetRecordCount())
	}

	rr := get(t, a, "/search?q=doliprane")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected search status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp handlers.SearchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode search response: %v", err)
	}
	if resp.Count == 0 || resp.Results[0].ID != "1" {
		t.Errorf("Expected Doliprane first, got %+v", resp.Results)
	}

	if rr := get(t, a, "/medications/2"); rr.Code != http.StatusOK {
		t.Errorf("Expected medication status 200, got %d", rr.Code)
	}
	if rr := get(t, a, "/medications/404"); rr.Code != http.StatusNotFound {
		t.Errorf("Expected missing medication status 404, got %d", rr.Code)
	}
	if rr := get(t, a, "/health"); rr.Code != http.StatusOK {
		t.Errorf("Expected health status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestNewAppRejectsUnknownSearchKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.SearchKeys = "everything"

	if _, err := newApp(cfg); err == nil {
		t.Error("Expected error for unknown search keys, got nil")
	}
}

func TestSubsequenceMatcherServesSearch(t *testing.T) {
	cfg := testConfig(t)
	cfg.SearchMatcher = "subsequence"

	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("Failed to build application: %v", err)
	}
	t.Cleanup(a.close)
	if err := a.scheduler.Start(); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}

	rr := get(t, a, "/search?q=amoxicilline")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected search status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp handlers.SearchResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode search response: %v", err)
	}
	if resp.Count != 1 || resp.Results[0].ID != "2" {
		t.Errorf("Expected Amoxicilline only, got %+v", resp.Results)
	}
}

func TestNewAppRejectsUnknownMatcher(t *testing.T) {
	cfg := testConfig(t)
	cfg.SearchMatcher = "regex"

	if _, err := newApp(cfg); err == nil {
		t.Error("Expected error for an unknown matcher, got nil")
	}
}

func TestNewAppRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReloadSchedule = "25:99"

	if _, err := newApp(cfg); err == nil {
		t.Error("Expected error for an invalid schedule, got nil")
	}
}
