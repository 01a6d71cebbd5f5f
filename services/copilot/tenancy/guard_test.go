// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tenancy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard() *Guard {
	return NewGuard(map[string][]string{
		"Acme Hospital": {"Acme Hospital East", "acme-legacy"},
	})
}

func TestAllowed(t *testing.T) {
	g := newTestGuard()

	assert.True(t, g.Allowed("acme hospital", ""), "empty request means own tenant")
	assert.True(t, g.Allowed("acme hospital", "acme hospital"))
	assert.True(t, g.Allowed("ACME HOSPITAL", "Acme Hospital East"), "alias, case-insensitive")
	assert.True(t, g.Allowed("acme hospital", "ACME-LEGACY"))

	assert.False(t, g.Allowed("acme hospital", "mercy clinic"))
	assert.False(t, g.Allowed("mercy clinic", "acme hospital"))
	// Aliases are one-way: owning an alias does not grant the alias's
	// own name any reach.
	assert.False(t, g.Allowed("acme hospital east", "acme hospital"))
}

func TestAllowedUnknownTenantOnlyItself(t *testing.T) {
	g := newTestGuard()

	assert.True(t, g.Allowed("mercy clinic", "Mercy Clinic"))
	assert.False(t, g.Allowed("mercy clinic", "anyone else"))
}

func TestScopeStampsMissingCustomer(t *testing.T) {
	g := newTestGuard()

	out, err := g.Scope("search_doors", map[string]any{"query": "lobby"}, "acme hospital")
	require.NoError(t, err)
	assert.Equal(t, "acme hospital", out["customer"])
	assert.Equal(t, "lobby", out["query"])

	// Nil input still gets stamped.
	out, err = g.Scope("get_door_history", nil, "acme hospital")
	require.NoError(t, err)
	assert.Equal(t, "acme hospital", out["customer"])
}

func TestScopeKeepsAllowedCustomer(t *testing.T) {
	g := newTestGuard()

	in := map[string]any{"query": "lobby", "customer": "Acme Hospital East"}
	out, err := g.Scope("search_doors", in, "acme hospital")
	require.NoError(t, err)
	assert.Equal(t, "Acme Hospital East", out["customer"], "explicit allowed customer is preserved")
}

func TestScopeRejectsCrossTenant(t *testing.T) {
	g := newTestGuard()

	_, err := g.Scope("search_doors", map[string]any{"customer": "mercy clinic"}, "acme hospital")
	assert.ErrorIs(t, err, ErrTenantMismatch)
}

func TestScopeIgnoresUnscopedTools(t *testing.T) {
	g := newTestGuard()

	in := map[string]any{"query": "error 41"}
	out, err := g.Scope("search_manuals", in, "acme hospital")
	require.NoError(t, err)
	assert.NotContains(t, out, "customer")
}

func TestScopeRejectsEmptyTenant(t *testing.T) {
	g := newTestGuard()

	// A caller without a resolvable tenant reads no scoped data, even
	// when the requested customer exists.
	_, err := g.Scope("search_doors", map[string]any{"customer": "acme hospital"}, "")
	assert.ErrorIs(t, err, ErrTenantMismatch)

	_, err = g.Scope("get_door_history", nil, "   ")
	assert.ErrorIs(t, err, ErrTenantMismatch)
}

func TestScopeDoesNotMutateInput(t *testing.T) {
	g := newTestGuard()

	in := map[string]any{"query": "lobby"}
	_, err := g.Scope("search_doors", in, "acme hospital")
	require.NoError(t, err)
	assert.NotContains(t, in, "customer")
}
