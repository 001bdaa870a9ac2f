package server

import (
	"fmt"
	"net/http"

	"github.com/giygas/medicaments-search/handlers"
	"github.com/giygas/medicaments-search/logging"
)

const (
	maxHeaderBytes = 8 << 10
	maxQueryBytes  = 2 << 10
	maxBodyBytes   = 1 << 10 // every route is a GET
)

// requestSizeMiddleware rejects requests whose headers, query string or body
// exceed the limits before they reach a handler
func requestSizeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxBodyBytes {
			logging.Warn("Request body too large",
				"content_length", r.ContentLength,
				"max_allowed", maxBodyBytes,
				"remote_addr", r.RemoteAddr)
			handlers.RespondWithError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body too large. Maximum allowed size is %d bytes", maxBodyBytes))
			return
		}

		if n := len(r.URL.RawQuery); n > maxQueryBytes {
			logging.Warn("Query string too long",
				"query_size", n,
				"max_allowed", maxQueryBytes,
				"remote_addr", r.RemoteAddr)
			handlers.RespondWithError(w, http.StatusRequestURITooLong,
				fmt.Sprintf("Query string too long. Maximum allowed size is %d bytes", maxQueryBytes))
			return
		}

		// rough estimate, the server enforces the hard limit
		headerSize := 0
		for key, values := range r.Header {
			headerSize += len(key)
			for _, value := range values {
				headerSize += len(value)
			}
		}
		if headerSize > maxHeaderBytes {
			logging.Warn("Request headers too large",
				"header_size", headerSize,
				"max_allowed", maxHeaderBytes,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent())
			handlers.RespondWithError(w, http.StatusRequestHeaderFieldsTooLarge,
				fmt.Sprintf("Request headers too large. Maximum allowed size is %d bytes", maxHeaderBytes))
			return
		}

		next.ServeHTTP(w, r)
	})
}
