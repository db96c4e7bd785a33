// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the JSON envelope returned for every rejection. The
// request id lets callers correlate with the server logs.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	Code      Code                   `json:"code"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id"`
	Timestamp time.Time              `json:"timestamp"`
}

// WriteError maps err onto the envelope and writes it. Unknown errors are
// collapsed into a generic 500 so internals never leak to the caller.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = ErrInternal()
	}

	WriteAPIError(w, r, apiErr)
}

// WriteAPIError writes the rejection envelope for a typed failure.
func WriteAPIError(w http.ResponseWriter, r *http.Request, apiErr *APIError) {
	w.Header().Set("Content-Type", "application/json")

	if apiErr.Code == CodeRateLimited || apiErr.Code == CodeAccountLocked {
		if v, ok := apiErr.Details["retry_after_seconds"].(int64); ok {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", v))
		}
	}

	w.WriteHeader(apiErr.Status)

	resp := ErrorResponse{
		Error:     apiErr.Title,
		Message:   apiErr.Message,
		Code:      apiErr.Code,
		Details:   apiErr.Details,
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: time.Now().UTC(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// WriteJSON writes a success payload.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
