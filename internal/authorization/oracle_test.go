// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authorization

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crewos/crew-service/internal/cache"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/storage"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
)

type fakeOrgGetter struct {
	orgs  map[string]*types.Organization
	calls int
}

func (f *fakeOrgGetter) GetOrganizationByID(ctx context.Context, id string) (*types.Organization, error) {
	f.calls++
	org, ok := f.orgs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return org, nil
}

func newTestOracle(t *testing.T, orgs map[string]*types.Organization) (*Oracle, *fakeOrgGetter) {
	t.Helper()

	orgCache := cache.New(time.Minute, time.Minute)
	t.Cleanup(orgCache.Close)

	getter := &fakeOrgGetter{orgs: orgs}
	oracle := NewOracle(getter, orgCache, tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger())

	return oracle, getter
}

func TestHasModule(t *testing.T) {
	oracle, _ := newTestOracle(t, map[string]*types.Organization{
		"org-a": {ID: "org-a", Enabled: true, Modules: []string{ModuleAssets, ModuleLeave}},
	})

	tests := []struct {
		name     string
		module   string
		expected bool
	}{
		{"enabled module", ModuleAssets, true},
		{"disabled module", ModulePayroll, false},
		{"unknown module id", "timeclock", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := oracle.HasModule(context.Background(), "org-a", tt.module)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestHasModuleUnknownOrganization(t *testing.T) {
	oracle, _ := newTestOracle(t, nil)

	_, err := oracle.HasModule(context.Background(), "org-missing", ModuleAssets)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOrganizationIsCached(t *testing.T) {
	oracle, getter := newTestOracle(t, map[string]*types.Organization{
		"org-a": {ID: "org-a", Enabled: true},
	})

	for i := 0; i < 3; i++ {
		if _, err := oracle.Organization(context.Background(), "org-a"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if getter.calls != 1 {
		t.Errorf("expected a single storage call through the cache, got %d", getter.calls)
	}
}

func TestHasPermission(t *testing.T) {
	oracle, _ := newTestOracle(t, nil)

	tests := []struct {
		name     string
		flags    types.RoleFlags
		key      string
		expected bool
	}{
		{"owner short-circuits", types.RoleFlags{Owner: true}, PermPayrollManage, true},
		{"admin short-circuits", types.RoleFlags{Admin: true}, PermDirectoryManage, true},
		{"super admin short-circuits", types.RoleFlags{SuperAdmin: true}, PermPayrollManage, true},
		{"member reads assets", types.RoleFlags{}, PermAssetsRead, true},
		{"member cannot manage assets", types.RoleFlags{}, PermAssetsManage, false},
		{"department access manages assets", types.RoleFlags{DepartmentAccess: true}, PermAssetsManage, true},
		{"approver approves leave", types.RoleFlags{Approver: true}, PermLeaveApprove, true},
		{"department access does not approve leave", types.RoleFlags{DepartmentAccess: true}, PermLeaveApprove, false},
		{"member files leave", types.RoleFlags{}, PermLeaveCreate, true},
		{"department access reads payroll", types.RoleFlags{DepartmentAccess: true}, PermPayrollRead, true},
		{"member cannot read payroll", types.RoleFlags{}, PermPayrollRead, false},
		{"unknown key denied", types.RoleFlags{DepartmentAccess: true, Approver: true}, "timeclock.manage", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := oracle.HasPermission(tt.flags, tt.key); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
