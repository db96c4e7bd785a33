// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package authorization answers module-entitlement and permission
// questions for the request gate. Module entitlement is a billing
// boundary: a module missing from the organization's enabled list blocks
// every caller, admins and owners included. Permission checks are an
// authorization boundary: admin and owner flags short-circuit them.
package authorization

import (
	"context"
	"fmt"

	"github.com/crewos/crew-service/internal/cache"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
)

// Module identifiers known to this build of the service.
const (
	ModuleAssets    = "assets"
	ModuleLeave     = "leave"
	ModulePayroll   = "payroll"
	ModuleDirectory = "directory"
)

var knownModules = map[string]struct{}{
	ModuleAssets:    {},
	ModuleLeave:     {},
	ModulePayroll:   {},
	ModuleDirectory: {},
}

// Permission keys, one namespace per module area.
const (
	PermAssetsRead      = "assets.read"
	PermAssetsManage    = "assets.manage"
	PermLeaveRead       = "leave.read"
	PermLeaveCreate     = "leave.create"
	PermLeaveApprove    = "leave.approve"
	PermPayrollRead     = "payroll.read"
	PermPayrollManage   = "payroll.manage"
	PermDirectoryRead   = "directory.read"
	PermDirectoryManage = "directory.manage"
)

// permissionGrants resolves a permission for members without the admin or
// owner short-circuit. Reads and leave self-service are open to every
// active member; managing records in a module area needs the department
// capability; approving leave needs the approver capability.
var permissionGrants = map[string]func(types.RoleFlags) bool{
	PermAssetsRead:      func(types.RoleFlags) bool { return true },
	PermAssetsManage:    func(f types.RoleFlags) bool { return f.DepartmentAccess },
	PermLeaveRead:       func(types.RoleFlags) bool { return true },
	PermLeaveCreate:     func(types.RoleFlags) bool { return true },
	PermLeaveApprove:    func(f types.RoleFlags) bool { return f.Approver },
	PermPayrollRead:     func(f types.RoleFlags) bool { return f.DepartmentAccess },
	PermPayrollManage:   func(types.RoleFlags) bool { return false },
	PermDirectoryRead:   func(types.RoleFlags) bool { return true },
	PermDirectoryManage: func(types.RoleFlags) bool { return false },
}

// OrganizationGetter is the storage seam for tenant configuration.
type OrganizationGetter interface {
	GetOrganizationByID(ctx context.Context, id string) (*types.Organization, error)
}

type Oracle struct {
	orgs     OrganizationGetter
	orgCache *cache.Cache

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewOracle(
	orgs OrganizationGetter,
	orgCache *cache.Cache,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Oracle {
	o := new(Oracle)

	o.orgs = orgs
	o.orgCache = orgCache
	o.tracer = tracer
	o.monitor = monitor
	o.logger = logger

	return o
}

// Organization fetches tenant configuration through the process TTL
// cache. A hit may be up to one cache interval stale, which is acceptable
// for module lists; existence itself is revalidated by the gate via this
// same call, so a deleted organization disappears within the TTL.
func (o *Oracle) Organization(ctx context.Context, orgID string) (*types.Organization, error) {
	ctx, span := o.tracer.Start(ctx, "authorization.Oracle.Organization")
	defer span.End()

	if cached, ok := o.orgCache.Get(orgID); ok {
		if org, ok := cached.(*types.Organization); ok {
			return org, nil
		}
	}

	org, err := o.orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve organization %s: %w", orgID, err)
	}

	o.orgCache.Set(orgID, org)

	return org, nil
}

// Invalidate drops the cached record for an organization. Callers that
// change tenant configuration invoke it so the next check sees the write.
func (o *Oracle) Invalidate(orgID string) {
	o.orgCache.Delete(orgID)
}

// IsModuleKnown reports whether this build ships the module at all.
func IsModuleKnown(moduleID string) bool {
	_, ok := knownModules[moduleID]
	return ok
}

// HasModule reports whether the organization has the module enabled.
// There is no admin bypass here. An unknown module id is a configuration
// mistake: it is logged and treated as not installed.
func (o *Oracle) HasModule(ctx context.Context, orgID, moduleID string) (bool, error) {
	ctx, span := o.tracer.Start(ctx, "authorization.Oracle.HasModule")
	defer span.End()

	if !IsModuleKnown(moduleID) {
		o.logger.Warnf("module check for unknown module id %q (org %s)", moduleID, orgID)
		return false, nil
	}

	org, err := o.Organization(ctx, orgID)
	if err != nil {
		return false, err
	}

	for _, m := range org.Modules {
		if m == moduleID {
			return true, nil
		}
	}

	return false, nil
}

// HasPermission resolves a permission key against the principal's
// capability flags. Super admin, owner and admin short-circuit to
// permitted. Unknown keys resolve to denied.
func (o *Oracle) HasPermission(flags types.RoleFlags, permissionKey string) bool {
	if flags.SuperAdmin || flags.Owner || flags.Admin {
		return true
	}

	grant, ok := permissionGrants[permissionKey]
	if !ok {
		o.logger.Warnf("permission check for unknown key %q", permissionKey)
		return false
	}

	return grant(flags)
}
