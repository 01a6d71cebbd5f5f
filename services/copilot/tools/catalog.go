// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools implements the copilot's tool layer: the per-role catalog
// of tool specs offered to the model, and the executor that dispatches a
// validated tool invocation to exactly one upstream integration.
//
// # Catalog selection
//
// Three fixed catalogs exist. Admin gets the full set, Tech gets the full
// set minus the technician directory, and everyone else (customer-portal
// callers included) gets the restricted set: standards lookups, door and
// history lookups, and the redaction-aware manual search. A caller with
// several roles gets the most privileged matching catalog.
//
// # Input contracts
//
// Every ToolSpec carries a JSON schema. The executor validates
// model-supplied input against the compiled schema before dispatch, so an
// integration never sees an argument outside its contract; optional
// fields get their defaults inside the integration.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/aas-portal/copilot/services/copilot/datatypes"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Model-facing tool names.
const (
	ToolSearchManuals        = "search_manuals"
	ToolSearchParts          = "search_parts"
	ToolGetWorkOrders        = "get_work_orders"
	ToolSearchDoors          = "search_doors"
	ToolGetDoorHistory       = "get_door_history"
	ToolListTechnicians      = "list_technicians"
	ToolSearchFireDoorCode   = "search_fire_door_code"
	ToolSearchLifeSafetyCode = "search_life_safety_code"
	ToolSearchSmokeDoorCode  = "search_smoke_door_code"
	ToolSearchHardwareStds   = "search_door_hardware_standards"
)

// Catalog holds every tool spec plus its compiled input schema.
type Catalog struct {
	specs   map[string]datatypes.ToolSpec
	order   []string
	schemas map[string]*jsonschema.Schema
}

// NewCatalog builds the catalog and compiles every input schema. Schema
// compilation failures are programming errors, caught at startup.
func NewCatalog() (*Catalog, error) {
	c := &Catalog{
		specs:   make(map[string]datatypes.ToolSpec),
		schemas: make(map[string]*jsonschema.Schema),
	}

	for _, spec := range allToolSpecs() {
		raw, err := json.Marshal(spec.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %s: %w", spec.Name, err)
		}
		compiled, err := jsonschema.CompileString(spec.Name+".json", string(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", spec.Name, err)
		}
		c.specs[spec.Name] = spec
		c.order = append(c.order, spec.Name)
		c.schemas[spec.Name] = compiled
	}

	return c, nil
}

// Spec returns the tool spec by name.
func (c *Catalog) Spec(name string) (datatypes.ToolSpec, bool) {
	spec, ok := c.specs[name]
	return spec, ok
}

// ValidateInput checks model-supplied input against the tool's compiled
// schema. Unknown names validate to an error rather than a panic so the
// executor can turn them into structured payloads.
func (c *Catalog) ValidateInput(name string, input map[string]any) error {
	schema, ok := c.schemas[name]
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	if input == nil {
		input = map[string]any{}
	}
	if err := schema.Validate(normalizeForSchema(input)); err != nil {
		return err
	}
	return nil
}

// ForRoles selects the catalog variant for a role set. Precedence is
// Admin > Tech > restricted.
func (c *Catalog) ForRoles(roles []string) []datatypes.ToolSpec {
	hasAdmin, hasTech := false, false
	for _, r := range roles {
		switch r {
		case datatypes.RoleAdmin:
			hasAdmin = true
		case datatypes.RoleTech:
			hasTech = true
		}
	}

	switch {
	case hasAdmin:
		return c.pick(c.order...)
	case hasTech:
		return c.pickExcept(ToolListTechnicians)
	default:
		return c.pick(
			ToolSearchManuals,
			ToolSearchDoors,
			ToolGetDoorHistory,
			ToolSearchFireDoorCode,
			ToolSearchLifeSafetyCode,
			ToolSearchSmokeDoorCode,
			ToolSearchHardwareStds,
		)
	}
}

func (c *Catalog) pick(names ...string) []datatypes.ToolSpec {
	specs := make([]datatypes.ToolSpec, 0, len(names))
	for _, n := range names {
		if spec, ok := c.specs[n]; ok {
			specs = append(specs, spec)
		}
	}
	return specs
}

func (c *Catalog) pickExcept(excluded string) []datatypes.ToolSpec {
	specs := make([]datatypes.ToolSpec, 0, len(c.order))
	for _, n := range c.order {
		if n == excluded {
			continue
		}
		specs = append(specs, c.specs[n])
	}
	return specs
}

// normalizeForSchema round-trips the input through encoding/json semantics
// so the validator sees the same value shapes it was compiled for
// (float64 numbers, plain maps).
func normalizeForSchema(input map[string]any) any {
	raw, err := json.Marshal(input)
	if err != nil {
		return input
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return input
	}
	return out
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func allToolSpecs() []datatypes.ToolSpec {
	searchProps := func(desc string) map[string]any {
		return map[string]any{
			"query": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": desc,
			},
			"limit": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"maximum":     10,
				"description": "Max results to return (default 5).",
			},
		}
	}

	standardsSchema := func(desc string) map[string]any {
		props := searchProps(desc)
		props["chapter"] = map[string]any{
			"type":        "string",
			"description": "Restrict results to one chapter, e.g. \"6\".",
		}
		return objectSchema(props, "query")
	}

	return []datatypes.ToolSpec{
		{
			Name: ToolSearchManuals,
			Description: "Search manufacturer manuals and field knowledge for wiring, " +
				"programming, error codes, and troubleshooting procedures. " +
				"Returns excerpts bucketed into exact/close/partial matches.",
			InputSchema: objectSchema(map[string]any{
				"query": map[string]any{
					"type":        "string",
					"minLength":   1,
					"description": "Free-text technical question or keywords.",
				},
				"manufacturer": map[string]any{
					"type":        "string",
					"description": "Restrict to one manufacturer, e.g. \"horton\".",
				},
				"limit": map[string]any{
					"type":    "integer",
					"minimum": 1,
					"maximum": 10,
				},
			}, "query"),
		},
		{
			Name: ToolSearchParts,
			Description: "Look up replacement parts by part number, description, or " +
				"symptom. Results are tiered exact/close/partial by query coverage.",
			InputSchema: objectSchema(map[string]any{
				"query": map[string]any{
					"type":        "string",
					"minLength":   1,
					"description": "Part number, part name, or description keywords.",
				},
				"manufacturer": map[string]any{
					"type":        "string",
					"description": "Restrict to one manufacturer.",
				},
				"limit": map[string]any{
					"type":    "integer",
					"minimum": 1,
					"maximum": 10,
				},
			}, "query"),
		},
		{
			Name: ToolGetWorkOrders,
			Description: "Look up CMMS work orders. Filter by door asset id, " +
				"technician user id, status, and date. Dates are evaluated in the " +
				"company's operating timezone.",
			InputSchema: objectSchema(map[string]any{
				"asset_id": map[string]any{
					"type":        "integer",
					"description": "CMMS asset id of the door.",
				},
				"user_id": map[string]any{
					"type":        "integer",
					"description": "CMMS user id of the technician.",
				},
				"status": map[string]any{
					"type": "string",
					"enum": []any{"open", "completed", "all"},
				},
				"date_filter": map[string]any{
					"type": "string",
					"description": "today, yesterday, this_week, this_month, or an " +
						"explicit YYYY-MM-DD day.",
				},
				"limit": map[string]any{
					"type":    "integer",
					"minimum": 1,
					"maximum": 10,
				},
			}),
		},
		{
			Name: ToolSearchDoors,
			Description: "Find door assets by name, site, or customer. Returns the " +
				"asset id needed for history and work-order lookups.",
			InputSchema: objectSchema(map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Door or site name keywords.",
				},
				"customer": map[string]any{
					"type":        "string",
					"description": "Customer the doors belong to.",
				},
				"limit": map[string]any{
					"type":    "integer",
					"minimum": 1,
					"maximum": 10,
				},
			}),
		},
		{
			Name: ToolGetDoorHistory,
			Description: "Service history for one door: completed work orders with " +
				"dates and completion notes, most recent first.",
			InputSchema: objectSchema(map[string]any{
				"door_id": map[string]any{
					"type":        "integer",
					"description": "CMMS asset id of the door.",
				},
				"days": map[string]any{
					"type":        "integer",
					"minimum":     1,
					"maximum":     3650,
					"description": "History window in days (default 365).",
				},
				"customer": map[string]any{
					"type":        "string",
					"description": "Customer the door belongs to.",
				},
			}, "door_id"),
		},
		{
			Name: ToolListTechnicians,
			Description: "List the technician directory with CMMS user ids, names, " +
				"and emails.",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name: ToolSearchFireDoorCode,
			Description: "Search NFPA 80 (fire doors and other opening protectives) " +
				"for inspection, clearance, and repair requirements.",
			InputSchema: standardsSchema("Requirement or topic to find in NFPA 80."),
		},
		{
			Name: ToolSearchLifeSafetyCode,
			Description: "Search NFPA 101 (Life Safety Code) for egress and " +
				"door-operation requirements.",
			InputSchema: standardsSchema("Requirement or topic to find in NFPA 101."),
		},
		{
			Name: ToolSearchSmokeDoorCode,
			Description: "Search NFPA 105 (smoke door assemblies) for smoke-leakage " +
				"and installation requirements.",
			InputSchema: standardsSchema("Requirement or topic to find in NFPA 105."),
		},
		{
			Name: ToolSearchHardwareStds,
			Description: "Search the ANSI/BHMA A156 series for pedestrian door " +
				"hardware and power-operated door requirements.",
			InputSchema: standardsSchema("Requirement or topic to find in ANSI/BHMA A156."),
		},
	}
}
