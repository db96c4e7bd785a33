// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package gate

import (
	"context"

	"github.com/crewos/crew-service/internal/storage"
	"github.com/crewos/crew-service/internal/types"
)

type contextKey int

const (
	scopeContextKey contextKey = iota
	organizationContextKey
)

func withScope(ctx context.Context, scope *storage.Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey, scope)
}

// ScopeFromContext returns the tenant-scoped data handle the gate
// constructed for this request. Handlers for tenant routes must use this
// handle for every access to tenant-owned tables.
func ScopeFromContext(ctx context.Context) (*storage.Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey).(*storage.Scope)
	return scope, ok
}

func withOrganization(ctx context.Context, org *types.Organization) context.Context {
	return context.WithValue(ctx, organizationContextKey, org)
}

// OrganizationFromContext returns the organization record resolved during
// the tenant existence check, memoized for the rest of the request.
func OrganizationFromContext(ctx context.Context) (*types.Organization, bool) {
	org, ok := ctx.Value(organizationContextKey).(*types.Organization)
	return org, ok
}
