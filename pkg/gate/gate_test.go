// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package gate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sq "github.com/Masterminds/squirrel"

	"github.com/crewos/crew-service/internal/db"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/storage"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
	"github.com/crewos/crew-service/pkg/authentication"
)

type stubDBClient struct{}

func (stubDBClient) Statement(ctx context.Context) sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func (stubDBClient) TxStatement(ctx context.Context) (db.TxInterface, sq.StatementBuilderType, error) {
	return nil, sq.StatementBuilderType{}, nil
}

func (stubDBClient) BeginTx(ctx context.Context) (context.Context, db.TxInterface, error) {
	return ctx, nil, nil
}

func (stubDBClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (stubDBClient) Close() {}

type fakeOracle struct {
	orgs map[string]*types.Organization
}

func (f *fakeOracle) Organization(ctx context.Context, orgID string) (*types.Organization, error) {
	org, ok := f.orgs[orgID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return org, nil
}

func (f *fakeOracle) HasModule(ctx context.Context, orgID, moduleID string) (bool, error) {
	org, err := f.Organization(ctx, orgID)
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

func (f *fakeOracle) HasPermission(flags types.RoleFlags, permissionKey string) bool {
	if flags.SuperAdmin || flags.Owner || flags.Admin {
		return true
	}
	switch permissionKey {
	case "assets.read":
		return true
	case "assets.manage":
		return flags.DepartmentAccess
	}
	return false
}

type fakeLimiter struct {
	allow bool
	keys  []string
}

func (f *fakeLimiter) Allow(key string) bool {
	f.keys = append(f.keys, key)
	return f.allow
}

func (f *fakeLimiter) RetryAfter() int64 { return 1 }

type monitorSpy struct {
	*monitoring.NoopMonitor
	rejections []string
}

func (m *monitorSpy) IncGateRejection(code string) {
	m.rejections = append(m.rejections, code)
}

func newTestGate(oracle *fakeOracle, limiter *fakeLimiter) (*Gate, *monitorSpy) {
	spy := &monitorSpy{NoopMonitor: monitoring.NewNoopMonitor()}
	g := New(stubDBClient{}, oracle, limiter, Config{MaxBodyBytes: 1024},
		tracing.NewNoopTracer(), spy, logging.NewNoopLogger())
	return g, spy
}

func memberPrincipal(flags types.RoleFlags) *authentication.Principal {
	return &authentication.Principal{
		Kind:      authentication.KindMember,
		AccountID: "acct-1",
		MemberID:  "member-1",
		OrgID:     "org-a",
		Flags:     flags,
	}
}

func platformPrincipal() *authentication.Principal {
	return &authentication.Principal{
		Kind:      authentication.KindPlatform,
		AccountID: "acct-1",
		Flags:     types.RoleFlags{SuperAdmin: true},
	}
}

func testOrgs() map[string]*types.Organization {
	return map[string]*types.Organization{
		"org-a": {ID: "org-a", Slug: "acme", Enabled: true, Modules: []string{"assets", "leave"}},
	}
}

func doRequest(t *testing.T, g *Gate, opts Options, method string, principal *authentication.Principal, body string) *httptest.ResponseRecorder {
	t.Helper()

	handler := g.Wrap(opts, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(method, "/test", strings.NewReader(body))
	if principal != nil {
		req = req.WithContext(authentication.WithPrincipal(req.Context(), principal))
	}
	rr := httptest.NewRecorder()

	handler(rr, req)
	return rr
}

func decodeCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error envelope: %v (body %q)", err, rr.Body.String())
	}
	return body.Code
}

func TestGateRejectionOrdering(t *testing.T) {
	tests := []struct {
		name           string
		opts           Options
		method         string
		principal      *authentication.Principal
		body           string
		limiterAllows  bool
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "oversized body wins over everything",
			opts:           Options{Admin: true},
			method:         http.MethodPost,
			body:           strings.Repeat("x", 2048),
			limiterAllows:  false,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "payload_too_large",
		},
		{
			name:           "rate limit wins over missing session",
			opts:           Options{Admin: true},
			method:         http.MethodPost,
			limiterAllows:  false,
			expectedStatus: http.StatusTooManyRequests,
			expectedCode:   "rate_limited",
		},
		{
			name:           "missing session wins over capability",
			opts:           Options{Admin: true},
			method:         http.MethodGet,
			limiterAllows:  true,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "auth_required",
		},
		{
			name:           "capability wins over module",
			opts:           Options{Admin: true, Module: "payroll"},
			method:         http.MethodGet,
			principal:      memberPrincipal(types.RoleFlags{}),
			limiterAllows:  true,
			expectedStatus: http.StatusForbidden,
			expectedCode:   "admin_required",
		},
		{
			name:           "tenant presence wins over module",
			opts:           Options{Authenticated: true, Module: "assets"},
			method:         http.MethodGet,
			principal:      platformPrincipal(),
			limiterAllows:  true,
			expectedStatus: http.StatusForbidden,
			expectedCode:   "tenant_required",
		},
		{
			name:           "module wins over permission",
			opts:           Options{Authenticated: true, Module: "payroll", Permission: "assets.manage"},
			method:         http.MethodGet,
			principal:      memberPrincipal(types.RoleFlags{Admin: true}),
			limiterAllows:  true,
			expectedStatus: http.StatusForbidden,
			expectedCode:   "module_not_installed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, spy := newTestGate(&fakeOracle{orgs: testOrgs()}, &fakeLimiter{allow: tt.limiterAllows})

			rr := doRequest(t, g, tt.opts, tt.method, tt.principal, tt.body)

			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if code := decodeCode(t, rr); code != tt.expectedCode {
				t.Errorf("expected code %q, got %q", tt.expectedCode, code)
			}
			if len(spy.rejections) != 1 || spy.rejections[0] != tt.expectedCode {
				t.Errorf("expected one %q rejection metric, got %v", tt.expectedCode, spy.rejections)
			}
		})
	}
}

func TestGateCapabilityChecks(t *testing.T) {
	tests := []struct {
		name         string
		opts         Options
		flags        types.RoleFlags
		expectedCode string
	}{
		{"owner passes owner check", Options{Owner: true}, types.RoleFlags{Owner: true}, ""},
		{"admin fails owner check", Options{Owner: true}, types.RoleFlags{Admin: true}, "owner_required"},
		{"owner passes admin check", Options{Admin: true}, types.RoleFlags{Owner: true}, ""},
		{"admin passes admin check", Options{Admin: true}, types.RoleFlags{Admin: true}, ""},
		{"member fails admin check", Options{Admin: true}, types.RoleFlags{}, "admin_required"},
		{"admin bypasses department check", Options{Department: true}, types.RoleFlags{Admin: true}, ""},
		{"owner bypasses department check", Options{Department: true}, types.RoleFlags{Owner: true}, ""},
		{"department flag passes department check", Options{Department: true}, types.RoleFlags{DepartmentAccess: true}, ""},
		{"member fails department check", Options{Department: true}, types.RoleFlags{}, "department_access_denied"},
		{"approver passes approval check", Options{Approver: true}, types.RoleFlags{Approver: true}, ""},
		{"department flag fails approval check", Options{Approver: true}, types.RoleFlags{DepartmentAccess: true}, "approval_access_denied"},
		{"admin bypasses approval check", Options{Approver: true}, types.RoleFlags{Admin: true}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGate(&fakeOracle{orgs: testOrgs()}, &fakeLimiter{allow: true})

			rr := doRequest(t, g, tt.opts, http.MethodGet, memberPrincipal(tt.flags), "")

			if tt.expectedCode == "" {
				if rr.Code != http.StatusOK {
					t.Errorf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
				}
				return
			}
			if rr.Code != http.StatusForbidden {
				t.Errorf("expected 403, got %d", rr.Code)
			}
			if code := decodeCode(t, rr); code != tt.expectedCode {
				t.Errorf("expected code %q, got %q", tt.expectedCode, code)
			}
		})
	}
}

func TestGateModuleHasNoAdminBypass(t *testing.T) {
	g, _ := newTestGate(&fakeOracle{orgs: testOrgs()}, &fakeLimiter{allow: true})

	// Owner and admin flags do not help against a disabled module.
	rr := doRequest(t, g, Options{Module: "payroll"}, http.MethodGet,
		memberPrincipal(types.RoleFlags{Owner: true, Admin: true}), "")

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
	if code := decodeCode(t, rr); code != "module_not_installed" {
		t.Errorf("expected module_not_installed, got %q", code)
	}
}

func TestGateTenantExistence(t *testing.T) {
	tests := []struct {
		name string
		orgs map[string]*types.Organization
	}{
		{"organization deleted", map[string]*types.Organization{}},
		{"organization disabled", map[string]*types.Organization{
			"org-a": {ID: "org-a", Enabled: false},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGate(&fakeOracle{orgs: tt.orgs}, &fakeLimiter{allow: true})

			rr := doRequest(t, g, Options{Authenticated: true}, http.MethodGet,
				memberPrincipal(types.RoleFlags{}), "")

			if rr.Code != http.StatusForbidden {
				t.Errorf("expected 403, got %d", rr.Code)
			}
			if code := decodeCode(t, rr); code != "tenant_not_found" {
				t.Errorf("expected tenant_not_found, got %q", code)
			}
		})
	}
}

func TestGateInjectsScopedHandle(t *testing.T) {
	g, _ := newTestGate(&fakeOracle{orgs: testOrgs()}, &fakeLimiter{allow: true})

	var gotScope *storage.Scope
	var gotOrg *types.Organization
	handler := g.Wrap(Options{Authenticated: true}, func(w http.ResponseWriter, r *http.Request) {
		gotScope, _ = ScopeFromContext(r.Context())
		gotOrg, _ = OrganizationFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(authentication.WithPrincipal(req.Context(), memberPrincipal(types.RoleFlags{})))
	rr := httptest.NewRecorder()
	handler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if gotScope == nil {
		t.Fatal("expected a scoped handle in the request context")
	}
	if gotScope.OrgID() != "org-a" {
		t.Errorf("expected scope bound to org-a, got %s", gotScope.OrgID())
	}
	if gotOrg == nil || gotOrg.ID != "org-a" {
		t.Errorf("expected memoized organization record, got %+v", gotOrg)
	}
}

func TestGateRateLimitKeyPrefersTenant(t *testing.T) {
	limiter := &fakeLimiter{allow: true}
	g, _ := newTestGate(&fakeOracle{orgs: testOrgs()}, limiter)

	doRequest(t, g, Options{Authenticated: true}, http.MethodPost,
		memberPrincipal(types.RoleFlags{Admin: true}), "{}")

	if len(limiter.keys) != 1 || limiter.keys[0] != "org:org-a" {
		t.Errorf("expected tenant-keyed rate limit, got %v", limiter.keys)
	}
}

func TestGatePublicRouteSkipsAuth(t *testing.T) {
	g, _ := newTestGate(&fakeOracle{orgs: testOrgs()}, &fakeLimiter{allow: true})

	rr := doRequest(t, g, Options{}, http.MethodGet, nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 for public route, got %d", rr.Code)
	}
}

func TestGateSkipTenantForPlatformRoutes(t *testing.T) {
	g, _ := newTestGate(&fakeOracle{orgs: testOrgs()}, &fakeLimiter{allow: true})

	rr := doRequest(t, g, Options{Authenticated: true, SkipTenant: true}, http.MethodGet,
		platformPrincipal(), "")

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
}

func TestGateExpiredSessionCode(t *testing.T) {
	g, _ := newTestGate(&fakeOracle{orgs: testOrgs()}, &fakeLimiter{allow: true})

	handler := g.Wrap(Options{Authenticated: true}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	// The middleware recorded an expired session for this request.
	middlewareCtx := authentication.WithResolutionError(req.Context(), authentication.ErrSessionExpired)
	handler(rr, req.WithContext(middlewareCtx))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
	if code := decodeCode(t, rr); code != "session_expired_or_revoked" {
		t.Errorf("expected session_expired_or_revoked, got %q", code)
	}
}
