// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agent runs the copilot conversation: it selects the caller's
// profile, drives the model's tool-use loop under fixed budgets, and
// assembles the final API response.
package agent

import (
	"fmt"
	"strings"

	"github.com/aas-portal/copilot/services/copilot/datatypes"
	"github.com/aas-portal/copilot/services/copilot/tools"
)

// Profile names, used as metric labels and log fields.
const (
	ProfileAdmin      = "admin"
	ProfileTech       = "tech"
	ProfileRestricted = "restricted"
)

// Profile bundles everything the loop needs to know about one caller
// class: which tools the model may call, the system prompt, and the
// enforcement switches.
type Profile struct {
	Name   string
	Tools  []datatypes.ToolSpec
	Prompt string

	// Isolation stamps and checks the customer filter on scoped tools.
	Isolation bool
	// StrictExpiry means an expired token is a hard 401 upstream of
	// the loop; recorded here so callers can see the full posture.
	StrictExpiry bool
	// Redacted strips internal service notes from manual search results.
	Redacted bool
}

// ProfileFor selects the profile for a resolved identity and request
// mode. Admin wins over Tech; everyone else, and every customer-portal
// caller without staff roles, runs restricted.
func ProfileFor(catalog *tools.Catalog, identity datatypes.Identity, mode string, req *datatypes.CopilotRequest) Profile {
	portal := mode == datatypes.ModeCustomerPortal

	var p Profile
	switch {
	case identity.HasRole(datatypes.RoleAdmin):
		p = Profile{Name: ProfileAdmin}
	case identity.HasRole(datatypes.RoleTech):
		p = Profile{Name: ProfileTech}
	default:
		// Isolation follows the identity, not the request: a caller
		// carrying the Customer role stays tenant-scoped no matter
		// which mode the client claimed.
		p = Profile{
			Name:      ProfileRestricted,
			Isolation: portal || identity.HasRole(datatypes.RoleCustomer),
			Redacted:  true,
		}
	}

	p.StrictExpiry = portal
	p.Tools = catalog.ForRoles(identity.Roles)
	p.Prompt = buildSystemPrompt(p, identity, req)
	return p
}

const basePrompt = `You are the AAS technical support copilot for automatic and manual pedestrian doors. You help with troubleshooting, error codes, wiring, parts, code compliance (NFPA 80, NFPA 101, NFPA 105, ANSI/BHMA A156), and service history.

Ground every factual claim in tool results. If a tool returns an error or nothing relevant, say so instead of guessing. Keep answers specific: cite the standard section, part number, or work order the answer came from. Answer in plain text without markdown headers.`

const techPrompt = `

The caller is a field technician. When looking up work orders, stick to work assigned to them unless they ask about a specific door's service history. Do not discuss pricing, labor rates, or contract terms; refer billing questions to the office.`

const restrictedPrompt = `

The caller is a customer, not a service technician. Do not give instructions that require opening equipment, bypassing safety sensors, or working on live wiring; recommend scheduling service instead. Never mention internal service notes, technician names, or other customers.`

// buildSystemPrompt composes the system prompt from the base, the
// profile's restriction block, and any page context the client sent.
func buildSystemPrompt(p Profile, identity datatypes.Identity, req *datatypes.CopilotRequest) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	switch p.Name {
	case ProfileTech:
		b.WriteString(techPrompt)
	case ProfileRestricted:
		b.WriteString(restrictedPrompt)
	}

	if req != nil && req.DoorContext != nil {
		dc := req.DoorContext
		b.WriteString("\n\nThe caller is viewing a door record:")
		writeContextLine(&b, "door id", dc.DoorID)
		writeContextLine(&b, "manufacturer", dc.Manufacturer)
		writeContextLine(&b, "model", dc.Model)
		writeContextLine(&b, "type", dc.DoorType)
		writeContextLine(&b, "controller", dc.Controller)
		writeContextLine(&b, "site", dc.SiteName)
		writeContextLine(&b, "page", dc.Page)
	}

	if req != nil && (req.Customer != "" || req.CustomerContext != nil) {
		b.WriteString("\n\nCustomer portal context:")
		writeContextLine(&b, "customer", req.Customer)
		if cc := req.CustomerContext; cc != nil {
			writeContextLine(&b, "site", cc.SiteName)
			writeContextLine(&b, "page", cc.Page)
		}
	}

	if identity.TechnicianID != "" {
		fmt.Fprintf(&b, "\n\nThe caller is technician user id %s in the maintenance system.", identity.TechnicianID)
	}

	return b.String()
}

func writeContextLine(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "\n- %s: %s", label, value)
}
