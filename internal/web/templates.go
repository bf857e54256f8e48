// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/samber/oops"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type loginView struct {
	Error    string
	Username string
}

type changePasswordView struct {
	Username   string
	MustChange bool
	Error      string
	MinLength  int
}

// render executes a page into a buffer first so a template failure never
// leaves a half-written 200 response.
func render(w http.ResponseWriter, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return oops.Code("WEB_RENDER_FAILED").With("template", name).Wrap(err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w) //nolint:errcheck // client may disconnect
	return nil
}
