// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"context"
	"time"
)

//go:generate mockgen -build_flags=--mod=mod -package authentication -destination ./mock_resolver.go -source=./interfaces.go

// ResolverInterface resolves a raw session token into a principal. The
// second return value, when non-empty, is a rotated replacement token
// carrying a refreshed capability snapshot.
type ResolverInterface interface {
	Resolve(ctx context.Context, rawToken string) (*Principal, string, error)
}

// ServiceInterface is the full session lifecycle surface the HTTP
// handlers depend on.
type ServiceInterface interface {
	ResolverInterface

	Login(ctx context.Context, email, password, orgSlug string) (string, *Principal, error)
	Impersonate(ctx context.Context, operator *Principal, memberID string) (string, *Principal, error)
	RevokeDelegation(ctx context.Context, operator *Principal, delegationID string) error
	RevokeAllIssuedBefore(ctx context.Context, operator *Principal, delegatorID string, cutoff time.Time) error
	ChangePassword(ctx context.Context, accountID, current, next string) error
}
