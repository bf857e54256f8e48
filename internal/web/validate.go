// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package web

import (
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/dazno/dazno-umbrel/internal/httpx"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// ValidID reports whether id is an acceptable recommendation identifier.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// validateIDParam rejects requests whose {name} path parameter is not a
// valid identifier.
func validateIDParam(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ValidID(chi.URLParam(r, name)) {
				httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidInput, "invalid "+name)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
