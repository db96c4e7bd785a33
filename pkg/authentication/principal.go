// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"context"
	"time"

	"github.com/crewos/crew-service/internal/types"
)

// PrincipalKind distinguishes the two identity classes a session can
// carry: a platform-level account and an organization membership.
type PrincipalKind string

const (
	KindPlatform PrincipalKind = "platform"
	KindMember   PrincipalKind = "member"
)

// Principal is the resolved acting identity for one request. Once a
// tenant is selected, authorization for tenant-scoped resources always
// goes through the member record, so a member principal carries both the
// membership id and the backing account id.
type Principal struct {
	Kind      PrincipalKind
	AccountID string
	MemberID  string
	OrgID     string
	Email     string
	Flags     types.RoleFlags

	SessionID string
	IssuedAt  time.Time

	// Delegation metadata, set only on impersonation sessions.
	DelegationID string
	DelegatorID  string
}

// ID returns the identifier authorization decisions key on: the member
// id once a tenant is selected, the account id otherwise.
func (p *Principal) ID() string {
	if p.Kind == KindMember {
		return p.MemberID
	}
	return p.AccountID
}

// Impersonated reports whether this session was issued on behalf of a
// member by a platform operator.
func (p *Principal) Impersonated() bool {
	return p.DelegationID != ""
}

// Define a private custom type to avoid collisions
type contextKey struct{}

var principalContextKey = contextKey{}

// WithPrincipal returns a new context carrying the resolved principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext retrieves the principal injected by the
// authentication middleware. Returns nil and false when the request was
// not authenticated.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok
}
