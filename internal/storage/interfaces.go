// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"time"

	"github.com/crewos/crew-service/internal/types"
)

// StorageInterface covers platform-level (unscoped) data: organizations,
// accounts, memberships, revocations and audit events. Tenant-owned
// business records are reachable only through a Scope.
type StorageInterface interface {
	CreateOrganization(ctx context.Context, org *types.Organization) (*types.Organization, error)
	GetOrganizationByID(ctx context.Context, id string) (*types.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*types.Organization, error)
	UpdateOrganization(ctx context.Context, org *types.Organization, paths []string) error

	CreateAccount(ctx context.Context, account *types.Account) (*types.Account, error)
	GetAccountByID(ctx context.Context, id string) (*types.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*types.Account, error)
	IncrementLoginFailures(ctx context.Context, accountID string) (int, error)
	LockAccount(ctx context.Context, accountID string, until time.Time) error
	ResetLoginFailures(ctx context.Context, accountID string) error
	UpdatePassword(ctx context.Context, accountID, passwordHash string) error

	AddMember(ctx context.Context, member *types.Member) (*types.Member, error)
	GetMemberByID(ctx context.Context, id string) (*types.Member, error)
	GetMemberByAccountAndOrg(ctx context.Context, accountID, orgID string) (*types.Member, error)
	GetOldestMembershipByAccount(ctx context.Context, accountID string) (*types.Member, error)
	ListMembersByOrgID(ctx context.Context, orgID string) ([]*types.Member, error)
	UpdateMemberRole(ctx context.Context, orgID, memberID string, flags types.RoleFlags) error

	CreateRevocation(ctx context.Context, rev *types.ImpersonationRevocation) error
	IsRevoked(ctx context.Context, delegationID, delegatorID string, issuedAt time.Time) (bool, error)

	InsertAuditEvent(ctx context.Context, event *types.AuditEvent) error
}
