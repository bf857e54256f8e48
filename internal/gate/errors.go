// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package gate

import (
	"errors"
	"net/http"

	"github.com/dazno/dazno-umbrel/internal/auth"
	"github.com/dazno/dazno-umbrel/internal/httpx"
	"github.com/dazno/dazno-umbrel/internal/token"
)

// ErrRateLimited is returned when a limiter denies a request.
var ErrRateLimited = errors.New("rate limit exceeded")

// IsRejection reports whether err means the caller presented no usable
// credential, as opposed to the gate failing to check it.
func IsRejection(err error) bool {
	return auth.IsRejection(err) ||
		errors.Is(err, token.ErrMalformed) ||
		errors.Is(err, token.ErrInvalidSignature) ||
		errors.Is(err, token.ErrExpired)
}

// Classify maps an error to its HTTP status and API error code.
func Classify(err error) (status int, code string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, httpx.CodeRateLimited
	case IsRejection(err):
		return http.StatusUnauthorized, httpx.CodeUnauthorized
	default:
		return http.StatusInternalServerError, httpx.CodeInternal
	}
}
