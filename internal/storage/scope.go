// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/crewos/crew-service/internal/db"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/tracing"
)

// ErrScopeRequired is returned when a scope is constructed without an
// organization id. This is a programming error: there is no global
// fallback, a handle is always bound to exactly one tenant.
var ErrScopeRequired = errors.New("tenant scope requires an organization id")

// ScopedTable names a table registered as tenant-owned. Only declared
// constants of this type exist, so an entity type missing from the
// registry cannot be addressed through a Scope at all.
type ScopedTable string

const (
	TableMembers       ScopedTable = "members"
	TableAssets        ScopedTable = "assets"
	TableLeaveRequests ScopedTable = "leave_requests"
	TablePayrollRuns   ScopedTable = "payroll_runs"
	TableAuditEvents   ScopedTable = "audit_events"
)

var scopedTables = map[ScopedTable]struct{}{
	TableMembers:       {},
	TableAssets:        {},
	TableLeaveRequests: {},
	TablePayrollRuns:   {},
	TableAuditEvents:   {},
}

// Scope is a data-access handle bound to one organization. Every builder
// it hands out is rewritten so that reads, aggregates, updates and deletes
// intersect an org_id equality filter, and inserts are stamped with the
// scope's org_id regardless of any caller-supplied value. A row belonging
// to another organization is therefore indistinguishable from an absent
// row for every caller holding this handle.
type Scope struct {
	db    db.DBClientInterface
	orgID string

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewScope(
	client db.DBClientInterface,
	orgID string,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) (*Scope, error) {
	if orgID == "" {
		return nil, ErrScopeRequired
	}

	s := new(Scope)
	s.db = client
	s.orgID = orgID
	s.tracer = tracer
	s.monitor = monitor
	s.logger = logger

	return s, nil
}

func (s *Scope) OrgID() string {
	return s.orgID
}

func (s *Scope) mustScoped(table ScopedTable) string {
	if _, ok := scopedTables[table]; !ok {
		// Reaching this means a raw string was converted to ScopedTable
		// outside the declared constants.
		panic(fmt.Sprintf("table %q is not registered as tenant-owned", table))
	}
	return string(table)
}

// Select returns a builder whose where-clause already carries the org_id
// equality filter; anything the caller adds is intersected with it.
func (s *Scope) Select(ctx context.Context, table ScopedTable, columns ...string) sq.SelectBuilder {
	return s.db.Statement(ctx).
		Select(columns...).
		From(s.mustScoped(table)).
		Where(sq.Eq{"org_id": s.orgID})
}

// Count applies the same filter-injection rule as reads.
func (s *Scope) Count(ctx context.Context, table ScopedTable) sq.SelectBuilder {
	return s.db.Statement(ctx).
		Select("COUNT(*)").
		From(s.mustScoped(table)).
		Where(sq.Eq{"org_id": s.orgID})
}

// Insert force-stamps org_id on the row, overriding any caller-supplied
// value in the map.
func (s *Scope) Insert(ctx context.Context, table ScopedTable, row map[string]interface{}) sq.InsertBuilder {
	stamped := make(map[string]interface{}, len(row)+1)
	for k, v := range row {
		stamped[k] = v
	}
	stamped["org_id"] = s.orgID

	return s.db.Statement(ctx).
		Insert(s.mustScoped(table)).
		SetMap(stamped)
}

// Update intersects org_id into the where-clause, so an update targeting a
// row owned by another organization affects zero rows.
func (s *Scope) Update(ctx context.Context, table ScopedTable) sq.UpdateBuilder {
	return s.db.Statement(ctx).
		Update(s.mustScoped(table)).
		Where(sq.Eq{"org_id": s.orgID})
}

// Delete intersects org_id into the where-clause like Update.
func (s *Scope) Delete(ctx context.Context, table ScopedTable) sq.DeleteBuilder {
	return s.db.Statement(ctx).
		Delete(s.mustScoped(table)).
		Where(sq.Eq{"org_id": s.orgID})
}

// Assets returns the asset repository bound to this scope.
func (s *Scope) Assets() *AssetRepo {
	return &AssetRepo{scope: s}
}

// LeaveRequests returns the leave request repository bound to this scope.
func (s *Scope) LeaveRequests() *LeaveRepo {
	return &LeaveRepo{scope: s}
}

// PayrollRuns returns the payroll run repository bound to this scope.
func (s *Scope) PayrollRuns() *PayrollRepo {
	return &PayrollRepo{scope: s}
}
