// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err is an oops error whose effective code is
// code. oops reports the innermost code of a chain, so assert on the layer
// that sets it.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	assert.Equal(t, code, oopsErr.Code(), "error: %v", err)
}

// AssertErrorContext asserts that err carries key=value in its oops context.
func AssertErrorContext(t testing.TB, err error, key string, value any) {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	ctx := oopsErr.Context()
	require.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}

// AssertCategory asserts that err matches sentinel with errors.Is and
// carries code. Every rejection category is checked this way.
func AssertCategory(t testing.TB, err, sentinel error, code string) {
	t.Helper()
	require.ErrorIs(t, err, sentinel)
	AssertErrorCode(t, err, code)
}
