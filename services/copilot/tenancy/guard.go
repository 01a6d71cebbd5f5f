// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tenancy enforces customer-level data isolation.
//
// A portal caller is bound to one customer account. Some customers are
// known to the CMMS under several account names (acquisitions, per-site
// billing entities), so the operator ships an alias table mapping each
// portal tenant to the CMMS account names it may read. The guard answers
// two questions: may this caller ask about that customer, and what
// customer filter must be stamped onto a tool call that forgot one.
package tenancy

import (
	"errors"
	"strings"
)

// ErrTenantMismatch is returned when a caller requests data belonging to
// a customer outside their alias set.
var ErrTenantMismatch = errors.New("requested customer outside caller tenant")

// Tools whose results are scoped per customer. Every other tool returns
// shared reference data and needs no stamping.
var scopedTools = map[string]bool{
	"search_doors":     true,
	"get_door_history": true,
}

// Guard holds the operator alias table. Lookups are case-insensitive.
type Guard struct {
	aliases map[string][]string
}

// NewGuard builds a guard from the operator alias table. Keys are portal
// tenant identifiers; values are the CMMS account names that tenant may
// read. A tenant absent from the table is allowed only its own name.
func NewGuard(aliases map[string][]string) *Guard {
	normalized := make(map[string][]string, len(aliases))
	for tenant, names := range aliases {
		key := strings.ToLower(strings.TrimSpace(tenant))
		for _, n := range names {
			normalized[key] = append(normalized[key], strings.ToLower(strings.TrimSpace(n)))
		}
	}
	return &Guard{aliases: normalized}
}

// Allowed reports whether the caller's tenant may read data for the
// requested customer. An empty request is always allowed; it means the
// caller's own tenant filter will be stamped in later.
func (g *Guard) Allowed(callerTenant, requested string) bool {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if requested == "" {
		return true
	}

	caller := strings.ToLower(strings.TrimSpace(callerTenant))
	if requested == caller {
		return true
	}
	for _, alias := range g.aliases[caller] {
		if requested == alias {
			return true
		}
	}
	return false
}

// Scope stamps the caller's tenant onto a scoped tool call that carries
// no customer filter, and rejects one that names a customer outside the
// caller's alias set. Unscoped tools pass through untouched. A caller
// with no resolvable tenant may read no scoped data at all.
func (g *Guard) Scope(toolName string, input map[string]any, tenantID string) (map[string]any, error) {
	if !scopedTools[toolName] {
		return input, nil
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrTenantMismatch
	}

	if input == nil {
		input = map[string]any{}
	}

	if requested, ok := input["customer"].(string); ok && strings.TrimSpace(requested) != "" {
		if !g.Allowed(tenantID, requested) {
			return nil, ErrTenantMismatch
		}
		return input, nil
	}

	stamped := make(map[string]any, len(input)+1)
	for k, v := range input {
		stamped[k] = v
	}
	stamped["customer"] = tenantID
	return stamped, nil
}
