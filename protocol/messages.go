// Package protocol defines the message contract between the search host and its
// callers. Payloads travel as encoded JSON so that neither side ever holds a
// reference into the other's memory.
package protocol

import (
	"encoding/json"
	"strings"

	"github.com/giygas/medicaments-search/dataset/entities"
)

// MessageType names a command accepted by the host.
type MessageType string

const (
	Init     MessageType = "INIT"
	Search   MessageType = "SEARCH"
	GetByID  MessageType = "GET_BY_ID"
	GetStats MessageType = "GET_STATS"
)

const (
	successSuffix = "_SUCCESS"
	errorSuffix   = "_ERROR"
)

// SuccessType is the response type echoed on success, e.g. "SEARCH_SUCCESS".
func (t MessageType) SuccessType() string {
	return string(t) + successSuffix
}

// ErrorType is the response type echoed on failure, e.g. "SEARCH_ERROR".
func (t MessageType) ErrorType() string {
	return string(t) + errorSuffix
}

// Request is a command sent to the host.
type Request struct {
	Type          MessageType     `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CorrelationID string          `json:"correlationId"`
}

// Response is the single reply the host emits for a Request.
type Response struct {
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CorrelationID string          `json:"correlationId"`
	Error         *ErrorBody      `json:"error,omitempty"`
}

// Failed reports whether the response carries an error outcome.
func (r Response) Failed() bool {
	return r.Error != nil || strings.HasSuffix(r.Type, errorSuffix)
}

// Err returns the error carried by a failed response, nil otherwise.
func (r Response) Err() error {
	if !r.Failed() {
		return nil
	}
	if r.Error == nil {
		return NewError(KindInternal, "error response without details", nil)
	}
	return r.Error.Err()
}

// Succeed builds a success response for req.
func Succeed(req Request, payload any) (Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Type:          req.Type.SuccessType(),
		Payload:       data,
		CorrelationID: req.CorrelationID,
	}, nil
}

// Fail builds an error response for req.
func Fail(req Request, err error) Response {
	return Response{
		Type:          req.Type.ErrorType(),
		CorrelationID: req.CorrelationID,
		Error:         Body(err),
	}
}

// SearchPayload is the SEARCH command payload.
type SearchPayload struct {
	Query   string                  `json:"query"`
	Filters *entities.SearchFilters `json:"filters,omitempty"`
	Limit   int                     `json:"limit,omitempty"`
}

// GetByIDPayload is the GET_BY_ID command payload.
type GetByIDPayload struct {
	ID string `json:"id"`
}

// InitResult is the INIT success payload. Count is the number of unique records
// indexed; Duplicates is how many input records were replaced by a later record
// carrying the same id.
type InitResult struct {
	Success    bool `json:"success"`
	Count      int  `json:"count"`
	Duplicates int  `json:"duplicates"`
}
