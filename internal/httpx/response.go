// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

// Package httpx holds the JSON response envelope and path helpers shared by
// the gate and the web handlers.
package httpx

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error codes returned in API error bodies.
const (
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeInternal       = "INTERNAL"
	CodeNotImplemented = "NOT_IMPLEMENTED"
)

// APIError is the body of every JSON error response:
//
//	{"error":{"code":"UNAUTHORIZED","message":"authentication required"}}
type APIError struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries a machine-readable code and a human message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes payload as JSON with statusCode.
func WriteJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Debug("failed to write json response", "error", err)
	}
}

// WriteError writes an APIError.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteJSON(w, statusCode, APIError{Error: ErrorBody{Code: code, Message: message}})
}

// SetRetryAfter sets the Retry-After header in whole seconds, rounding up and
// never below one.
func SetRetryAfter(w http.ResponseWriter, d time.Duration) {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
}

// IsAPIPath reports whether path is served to programmatic clients. API and
// WebSocket paths get status codes; everything else is a browser page.
func IsAPIPath(path string) bool {
	return hasSegmentPrefix(path, "/api") || hasSegmentPrefix(path, "/ws")
}

func hasSegmentPrefix(path, prefix string) bool {
	rest, ok := strings.CutPrefix(path, prefix)
	return ok && (rest == "" || rest[0] == '/')
}
