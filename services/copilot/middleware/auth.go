// Copyright (C) 2025 AAS Portal Engineering (dev@aas-portal.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the copilot service.
//
// # Authentication Flow
//
// The identity middleware extracts a bearer token from the Authorization
// header, decodes its claims, and stores the resulting Identity in the
// Gin context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	IdentityMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► resolver.Resolve(token)
//	   │
//	   └─► Store Identity in context
//	           │
//	           ▼
//	       Handler (retrieves via GetIdentity)
//
// # Lenient vs strict resolution
//
// The API gateway in front of this service has already verified the
// token signature, so claim decoding here does not re-verify it; the
// TokenVerifier hook exists for deployments without a verifying gateway.
// Resolution is lenient by default: a missing or undecodable token
// yields an anonymous Identity and the request proceeds with the
// restricted tool catalog. Customer-portal requests resolve strictly
// instead, where an expired token is a hard 401.
package middleware

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/aas-portal/copilot/services/copilot/datatypes"
	"github.com/gin-gonic/gin"
)

// Namespaced claim keys set by the identity provider.
const (
	rolesClaim    = "https://aas-portal.com/roles"
	customerClaim = "https://aas-portal.com/customer"
)

// ErrTokenExpired is returned by ResolveStrict for a token past its exp.
var ErrTokenExpired = errors.New("token expired")

// TokenVerifier checks a token's signature before its claims are
// trusted. The default NopVerifier accepts everything, matching a
// deployment where the gateway has already verified the token.
type TokenVerifier interface {
	Verify(token string) error
}

// NopVerifier accepts every token.
type NopVerifier struct{}

// Verify implements TokenVerifier.
func (NopVerifier) Verify(string) error { return nil }

// =============================================================================
// Resolver
// =============================================================================

// Resolver turns bearer tokens into Identities. The technician table
// maps lower-cased emails to CMMS technician ids so a Tech's own work
// orders can be looked up without a directory call.
type Resolver struct {
	verifier    TokenVerifier
	technicians map[string]string
}

// NewResolver builds a resolver. A nil verifier means NopVerifier.
func NewResolver(verifier TokenVerifier, technicians map[string]string) *Resolver {
	if verifier == nil {
		verifier = NopVerifier{}
	}
	return &Resolver{verifier: verifier, technicians: technicians}
}

// rawClaims is the claim subset the copilot reads.
type rawClaims struct {
	Roles    []string `json:"https://aas-portal.com/roles"`
	Customer string   `json:"https://aas-portal.com/customer"`
	Email    string   `json:"email"`
	Exp      int64    `json:"exp"`
}

// Resolve decodes a token leniently: any failure (empty token, bad
// shape, bad base64, bad JSON, failed verification) yields the zero
// Identity, never an error. Expiry is NOT checked here.
func (r *Resolver) Resolve(token string) datatypes.Identity {
	identity, _, err := r.decode(token)
	if err != nil {
		return datatypes.Identity{}
	}
	return identity
}

// ResolveStrict decodes a token and additionally enforces expiry.
// Decode failures still yield the zero Identity without error; only an
// expired token is a hard failure.
func (r *Resolver) ResolveStrict(token string) (datatypes.Identity, error) {
	identity, claims, err := r.decode(token)
	if err != nil {
		return datatypes.Identity{}, nil
	}
	if claims.Exp > 0 && time.Now().Unix() >= claims.Exp {
		return datatypes.Identity{}, ErrTokenExpired
	}
	return identity, nil
}

func (r *Resolver) decode(token string) (datatypes.Identity, rawClaims, error) {
	var claims rawClaims
	if token == "" {
		return datatypes.Identity{}, claims, errors.New("empty token")
	}
	if err := r.verifier.Verify(token); err != nil {
		return datatypes.Identity{}, claims, err
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return datatypes.Identity{}, claims, errors.New("malformed token")
	}

	payload, err := decodeSegment(parts[1])
	if err != nil {
		return datatypes.Identity{}, claims, err
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return datatypes.Identity{}, claims, err
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	identity := datatypes.Identity{
		Roles:        claims.Roles,
		TenantID:     claims.Customer,
		Email:        email,
		TechnicianID: r.technicians[email],
	}
	return identity, claims, nil
}

// decodeSegment decodes one base64url JWT segment. Segments arrive
// unpadded, so padding is restored before decoding.
func decodeSegment(seg string) ([]byte, error) {
	seg = strings.ReplaceAll(seg, "-", "+")
	seg = strings.ReplaceAll(seg, "_", "/")
	if rem := len(seg) % 4; rem != 0 {
		seg += strings.Repeat("=", 4-rem)
	}
	return base64.StdEncoding.DecodeString(seg)
}

// =============================================================================
// Context plumbing
// =============================================================================

const (
	identityKey = "copilot_identity"
	tokenKey    = "copilot_token"
)

// SetIdentity stores the caller's Identity in the Gin context.
func SetIdentity(c *gin.Context, identity datatypes.Identity) {
	c.Set(identityKey, identity)
}

// GetIdentity retrieves the caller's Identity. Returns the zero
// Identity when the middleware did not run.
func GetIdentity(c *gin.Context) datatypes.Identity {
	if v, exists := c.Get(identityKey); exists {
		if identity, ok := v.(datatypes.Identity); ok {
			return identity
		}
	}
	return datatypes.Identity{}
}

// GetToken retrieves the raw bearer token, empty when absent.
func GetToken(c *gin.Context) string {
	if v, exists := c.Get(tokenKey); exists {
		if token, ok := v.(string); ok {
			return token
		}
	}
	return ""
}

// IdentityMiddleware resolves the caller leniently and stores both the
// Identity and the raw token. It never rejects a request; mode-specific
// strict checks happen in the handler.
func IdentityMiddleware(resolver *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		c.Set(tokenKey, token)
		SetIdentity(c, resolver.Resolve(token))
		c.Next()
	}
}

// extractBearerToken pulls the token out of the Authorization header.
// The "Bearer" prefix is case-insensitive per RFC 7235. Returns empty
// string when the header is missing or malformed.
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
