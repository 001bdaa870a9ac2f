// Package handlers provides the HTTP handlers of the medication search service.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/giygas/medicaments-search/logging"
)

// RespondWithJSON writes payload as a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		logging.Debug("Failed to write response", "error", err)
	}
}

// RespondWithError writes a JSON error response
func RespondWithError(w http.ResponseWriter, code int, message string) {
	errorResponse := map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	}
	RespondWithJSON(w, code, errorResponse)
}
