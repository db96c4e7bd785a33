// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package directory manages the tenant's own record and its member
// roster. It is an administrative surface: the gate requires the admin
// capability for reads and the owner capability for role changes before
// any handler here runs.
package directory

import (
	"context"
	"fmt"

	"github.com/crewos/crew-service/internal/audit"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
)

type Service struct {
	storage  StorageInterface
	recorder RecorderInterface
	cache    CacheInvalidator

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewService(
	storage StorageInterface,
	recorder RecorderInterface,
	cache CacheInvalidator,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Service {
	return &Service{
		storage:  storage,
		recorder: recorder,
		cache:    cache,
		tracer:   tracer,
		monitor:  monitor,
		logger:   logger,
	}
}

func (s *Service) Organization(ctx context.Context, orgID string) (*types.Organization, error) {
	ctx, span := s.tracer.Start(ctx, "directory.Service.Organization")
	defer span.End()

	return s.storage.GetOrganizationByID(ctx, orgID)
}

// UpdateOrganization applies a partial update and returns the fresh
// record. The gate's organization cache is invalidated so module
// entitlement changes take effect on the next request rather than after
// the cache TTL.
func (s *Service) UpdateOrganization(ctx context.Context, actorID string, org *types.Organization, paths []string) (*types.Organization, error) {
	ctx, span := s.tracer.Start(ctx, "directory.Service.UpdateOrganization")
	defer span.End()

	if err := s.storage.UpdateOrganization(ctx, org, paths); err != nil {
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}

	s.cache.Invalidate(org.ID)

	updated, err := s.storage.GetOrganizationByID(ctx, org.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get updated organization: %w", err)
	}

	s.recorder.Record(&types.AuditEvent{
		OrgID:   &org.ID,
		ActorID: actorID,
		Kind:    audit.KindOrganizationUpdated,
		Detail:  fmt.Sprintf("paths=%v", paths),
	})

	return updated, nil
}

func (s *Service) ListMembers(ctx context.Context, orgID string) ([]*types.Member, error) {
	ctx, span := s.tracer.Start(ctx, "directory.Service.ListMembers")
	defer span.End()

	members, err := s.storage.ListMembersByOrgID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	return members, nil
}

// UpdateMemberRole rewrites a member's capability flags. The update is
// keyed by both member and org so a role change can never cross tenants.
// Active sessions pick the new flags up at their next revalidation.
func (s *Service) UpdateMemberRole(ctx context.Context, actorID, orgID, memberID string, flags types.RoleFlags) (*types.Member, error) {
	ctx, span := s.tracer.Start(ctx, "directory.Service.UpdateMemberRole")
	defer span.End()

	if err := s.storage.UpdateMemberRole(ctx, orgID, memberID, flags); err != nil {
		return nil, err
	}

	updated, err := s.storage.GetMemberByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to get updated member: %w", err)
	}

	s.recorder.Record(&types.AuditEvent{
		OrgID:   &orgID,
		ActorID: actorID,
		Kind:    audit.KindRoleChanged,
		Detail: fmt.Sprintf("member=%s owner=%t admin=%t department=%t approver=%t",
			memberID, flags.Owner, flags.Admin, flags.DepartmentAccess, flags.Approver),
	})

	return updated, nil
}
