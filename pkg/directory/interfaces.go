// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package directory

import (
	"context"

	"github.com/crewos/crew-service/internal/types"
)

//go:generate mockgen -build_flags=--mod=mod -package directory -destination ./mock_directory.go -source=./interfaces.go

// StorageInterface is the subset of the storage layer the directory
// service needs. Organizations and members are platform tables keyed by
// org explicitly, they do not go through the tenant scope.
type StorageInterface interface {
	GetOrganizationByID(ctx context.Context, id string) (*types.Organization, error)
	UpdateOrganization(ctx context.Context, org *types.Organization, paths []string) error
	ListMembersByOrgID(ctx context.Context, orgID string) ([]*types.Member, error)
	GetMemberByID(ctx context.Context, id string) (*types.Member, error)
	UpdateMemberRole(ctx context.Context, orgID, memberID string, flags types.RoleFlags) error
}

// RecorderInterface accepts security audit events.
type RecorderInterface interface {
	Record(event *types.AuditEvent)
}

// CacheInvalidator evicts cached tenant configuration after a write.
type CacheInvalidator interface {
	Invalidate(orgID string)
}

type ServiceInterface interface {
	Organization(ctx context.Context, orgID string) (*types.Organization, error)
	UpdateOrganization(ctx context.Context, actorID string, org *types.Organization, paths []string) (*types.Organization, error)
	ListMembers(ctx context.Context, orgID string) ([]*types.Member, error)
	UpdateMemberRole(ctx context.Context, actorID, orgID, memberID string, flags types.RoleFlags) (*types.Member, error)
}
