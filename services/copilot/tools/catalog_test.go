// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"testing"

	"github.com/aas-portal/copilot/services/copilot/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func specNames(specs []datatypes.ToolSpec) []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names
}

func TestForRolesAdminGetsEverything(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)

	names := specNames(catalog.ForRoles([]string{datatypes.RoleAdmin}))
	assert.Len(t, names, 10)
	assert.Contains(t, names, ToolListTechnicians)
	assert.Contains(t, names, ToolGetWorkOrders)
}

func TestForRolesTechLacksTechnicianDirectory(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)

	names := specNames(catalog.ForRoles([]string{datatypes.RoleTech}))
	assert.Len(t, names, 9)
	assert.NotContains(t, names, ToolListTechnicians)
	assert.Contains(t, names, ToolGetWorkOrders)
	assert.Contains(t, names, ToolSearchParts)
}

func TestForRolesRestrictedSet(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)

	for _, roles := range [][]string{nil, {}, {datatypes.RoleCustomer}, {"SomethingElse"}} {
		names := specNames(catalog.ForRoles(roles))
		assert.ElementsMatch(t, []string{
			ToolSearchManuals,
			ToolSearchDoors,
			ToolGetDoorHistory,
			ToolSearchFireDoorCode,
			ToolSearchLifeSafetyCode,
			ToolSearchSmokeDoorCode,
			ToolSearchHardwareStds,
		}, names)
	}
}

func TestForRolesAdminWinsOverTech(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)

	names := specNames(catalog.ForRoles([]string{datatypes.RoleTech, datatypes.RoleAdmin}))
	assert.Len(t, names, 10)
	assert.Contains(t, names, ToolListTechnicians)
}

func TestValidateInput(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)

	assert.NoError(t, catalog.ValidateInput(ToolSearchManuals, map[string]any{"query": "error 41"}))
	assert.NoError(t, catalog.ValidateInput(ToolGetWorkOrders, map[string]any{}))
	assert.NoError(t, catalog.ValidateInput(ToolGetDoorHistory, map[string]any{"door_id": 7, "days": 30}))

	assert.Error(t, catalog.ValidateInput(ToolSearchManuals, map[string]any{}), "query is required")
	assert.Error(t, catalog.ValidateInput(ToolGetDoorHistory, map[string]any{"days": 30}), "door_id is required")
	assert.Error(t, catalog.ValidateInput(ToolGetWorkOrders, map[string]any{"status": "pending"}), "status enum")
	assert.Error(t, catalog.ValidateInput(ToolSearchManuals, map[string]any{"query": "x", "bogus": 1}), "additionalProperties")
	assert.Error(t, catalog.ValidateInput("no_such_tool", map[string]any{}))
}
