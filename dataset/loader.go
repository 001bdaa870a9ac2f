// Package dataset loads the medication records served by the search host.
package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/giygas/medicaments-search/dataset/entities"
	"github.com/giygas/medicaments-search/interfaces"
	"github.com/giygas/medicaments-search/logging"
)

const (
	defaultDownloadTimeout = 5 * time.Minute
	maxDatasetSize         = 256 << 20
)

// Compile-time check to ensure Loader implements DatasetLoader
var _ interfaces.DatasetLoader = (*Loader)(nil)

// Loader reads the dataset from a remote URL when one is configured, keeping a
// local copy at Path, and from Path otherwise.
type Loader struct {
	Path   string
	URL    string
	Client *http.Client
}

// NewLoader creates a loader. url may be empty.
func NewLoader(path, url string) *Loader {
	return &Loader{
		Path:   path,
		URL:    url,
		Client: &http.Client{Timeout: defaultDownloadTimeout},
	}
}

// Source describes where records come from
func (l *Loader) Source() string {
	if l.URL != "" {
		return l.URL
	}
	return l.Path
}

// Load returns every record of the dataset. A failed download falls back to
// the local copy when there is one.
func (l *Loader) Load(ctx context.Context) ([]entities.Medication, error) {
	if l.URL == "" {
		return l.readFile()
	}

	body, err := l.download(ctx)
	if err != nil {
		if _, statErr := os.Stat(l.Path); l.Path != "" && statErr == nil {
			logging.Warn("Dataset download failed, using local copy",
				"url", l.URL,
				"path", l.Path,
				"error", err,
			)
			return l.readFile()
		}
		return nil, err
	}

	records, err := Decode(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode dataset from %s: %w", l.URL, err)
	}

	if l.Path != "" {
		if err := writeFileAtomic(l.Path, body); err != nil {
			logging.Warn("Failed to save local dataset copy", "path", l.Path, "error", err)
		}
	}

	return records, nil
}

func (l *Loader) readFile() ([]entities.Medication, error) {
	data, err := os.ReadFile(filepath.Clean(l.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", l.Path, err)
	}
	records, err := Decode(toUTF8(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", l.Path, err)
	}
	return records, nil
}

func (l *Loader) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", l.URL, err)
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}

	response, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", l.URL, err)
	}
	defer func() {
		if err := response.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "error", err)
		}
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: unexpected status %d", l.URL, response.StatusCode)
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(response.Body, maxDatasetSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(bodyBytes) > maxDatasetSize {
		return nil, fmt.Errorf("dataset from %s exceeds %d bytes", l.URL, maxDatasetSize)
	}

	logging.Debug("Dataset downloaded", "url", l.URL, "bytes", len(bodyBytes))
	return toUTF8(bodyBytes), nil
}

// toUTF8 returns data unchanged when it is valid UTF-8 and decodes it from
// ISO-8859-1 otherwise
func toUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	decoded, err := io.ReadAll(charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(data)))
	if err != nil {
		return data
	}
	return decoded
}

// Decode parses a dataset document: either a bare array of records or an
// object holding them under "medications".
func Decode(data []byte) ([]entities.Medication, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty dataset")
	}

	var records []entities.Medication
	if data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
	} else {
		var doc struct {
			Medications []entities.Medication `json:"medications"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		records = doc.Medications
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("dataset has no records")
	}
	return records, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create dataset directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}
