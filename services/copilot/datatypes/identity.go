// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Role names as they appear in the portal's namespaced roles claim.
const (
	RoleAdmin    = "Admin"
	RoleTech     = "Tech"
	RoleCustomer = "Customer"
)

// Identity is the caller identity derived from a bearer token.
//
// It is recomputed on every request and never persisted. A missing,
// malformed, or undecodable token produces the zero value (empty role
// set), which is treated as an unauthenticated caller rather than an
// error; only the customer-portal path hard-fails on expiry.
type Identity struct {
	Roles        []string `json:"roles"`
	TenantID     string   `json:"tenantId,omitempty"`
	TechnicianID string   `json:"technicianId,omitempty"`
	Email        string   `json:"email,omitempty"`
}

// HasRole reports whether the identity carries the given role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAuthenticated reports whether the token yielded at least one role.
func (id Identity) IsAuthenticated() bool {
	return len(id.Roles) > 0
}
