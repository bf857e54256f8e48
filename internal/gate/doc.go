// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

// Package gate decides who may reach the dashboard.
//
// A request carries at most one Credential: a UserCredential resolved from
// the session cookie, or a ServiceCredential from a valid bearer token. The
// cookie is tried first. Protect attaches the credential to the request
// context and then charges the route group's limiter, so rejected requests
// never consume budget.
//
// Rejections on /api and /ws paths answer JSON; page requests are redirected
// to the login page.
package gate
