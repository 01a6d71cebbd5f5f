// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config builds the process-wide configuration for the copilot
// service. The config is constructed once in main and injected into the
// handlers, clients, and orchestrator; nothing in this repository reads
// the environment after startup.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the immutable service configuration.
type Config struct {
	Port         string
	PortalOrigin string // CORS allow-origin; "*" when unset

	// CMMS (work orders, assets, technicians). Basic auth.
	CMMSBaseURL      string
	CMMSClientID     string
	CMMSClientSecret string

	// Retrieval gateway (standards search).
	GatewayBaseURL string
	GatewayAPIKey  string

	// Vector search + embeddings.
	WeaviateURL      string
	OpenAIAPIKey     string
	EmbeddingModel   string
	EmbeddingBaseURL string

	// Operator tables (tenant aliases, technician directory).
	Tables OperatorTables
}

// OperatorTables holds the small operator-maintained lookup tables that
// do not belong in code: which aliases resolve to one tenant, and which
// portal emails map to which CMMS user ids.
type OperatorTables struct {
	// TenantAliases maps a canonical tenant id to every id/alias the
	// portal recognizes for it. Keys and values are matched
	// case-insensitively.
	TenantAliases map[string][]string `yaml:"tenant_aliases"`

	// Technicians maps a lower-cased portal email to a CMMS user id.
	Technicians map[string]string `yaml:"technicians"`
}

// Load reads the configuration from the environment. The operator tables
// file is optional; a missing COPILOT_TABLES_PATH leaves both tables empty.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             envOr("COPILOT_PORT", "12310"),
		PortalOrigin:     envOr("PORTAL_ORIGIN", "*"),
		CMMSBaseURL:      strings.Trim(os.Getenv("CMMS_BASE_URL"), "\"' "),
		CMMSClientID:     os.Getenv("CMMS_CLIENT_ID"),
		CMMSClientSecret: os.Getenv("CMMS_CLIENT_SECRET"),
		GatewayBaseURL:   strings.Trim(os.Getenv("RETRIEVAL_GATEWAY_URL"), "\"' "),
		GatewayAPIKey:    os.Getenv("RETRIEVAL_GATEWAY_KEY"),
		WeaviateURL:      strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' "),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		EmbeddingModel:   envOr("EMBEDDING_MODEL_NAME", "text-embedding-3-small"),
		EmbeddingBaseURL: os.Getenv("EMBEDDING_SERVICE_URL"),
	}

	if path := os.Getenv("COPILOT_TABLES_PATH"); path != "" {
		tables, err := LoadTables(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load operator tables: %w", err)
		}
		cfg.Tables = tables
	}

	return cfg, nil
}

// LoadTables parses the operator tables YAML file.
func LoadTables(path string) (OperatorTables, error) {
	var tables OperatorTables

	raw, err := os.ReadFile(path)
	if err != nil {
		return tables, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &tables); err != nil {
		return tables, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Emails are matched lower-cased everywhere downstream.
	normalized := make(map[string]string, len(tables.Technicians))
	for email, userID := range tables.Technicians {
		normalized[strings.ToLower(email)] = userID
	}
	tables.Technicians = normalized

	return tables, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
