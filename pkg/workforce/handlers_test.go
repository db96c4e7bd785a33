// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package workforce

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/go-chi/chi/v5"

	"github.com/crewos/crew-service/internal/db"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/storage"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
	"github.com/crewos/crew-service/pkg/authentication"
	"github.com/crewos/crew-service/pkg/gate"
)

type mockDBClient struct {
	db *sql.DB
}

func (c *mockDBClient) Statement(ctx context.Context) sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar).RunWith(c.db)
}

func (c *mockDBClient) TxStatement(ctx context.Context) (db.TxInterface, sq.StatementBuilderType, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, sq.StatementBuilderType{}, err
	}
	return tx, sq.StatementBuilder.PlaceholderFormat(sq.Dollar).RunWith(tx), nil
}

func (c *mockDBClient) BeginTx(ctx context.Context) (context.Context, db.TxInterface, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return ctx, nil, err
	}
	return db.ContextWithTx(ctx, tx), tx, nil
}

func (c *mockDBClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (c *mockDBClient) Close() { _ = c.db.Close() }

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
	case "assets.read", "leave.read", "leave.create":
		return true
	case "assets.manage":
		return flags.DepartmentAccess
	case "leave.approve":
		return flags.Approver
	}
	return false
}

type openLimiter struct{}

func (openLimiter) Allow(string) bool { return true }
func (openLimiter) RetryAfter() int64 { return 1 }

func newTestRouter(t *testing.T, modules []string) (*chi.Mux, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	oracle := &fakeOracle{orgs: map[string]*types.Organization{
		"org-a": {ID: "org-a", Slug: "acme", Enabled: true, Modules: modules},
	}}

	g := gate.New(&mockDBClient{db: conn}, oracle, openLimiter{}, gate.Config{MaxBodyBytes: 1 << 20},
		tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger())

	mux := chi.NewMux()
	NewAPI(tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger()).RegisterEndpoints(mux, g)

	return mux, mock
}

func asMember(req *http.Request, flags types.RoleFlags) *http.Request {
	return req.WithContext(authentication.WithPrincipal(req.Context(), &authentication.Principal{
		Kind:      authentication.KindMember,
		AccountID: "acct-1",
		MemberID:  "member-1",
		OrgID:     "org-a",
		Flags:     flags,
	}))
}

func responseCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error envelope: %v (body %q)", err, rr.Body.String())
	}
	return body.Code
}

func TestPayrollBlockedWithoutModule(t *testing.T) {
	mux, _ := newTestRouter(t, []string{"assets", "leave"})

	// Admin capability does not help: payroll is not in the org's
	// enabled module list.
	req := asMember(httptest.NewRequest(http.MethodGet, "/api/v1/payroll", nil), types.RoleFlags{Admin: true})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if code := responseCode(t, rr); code != "module_not_installed" {
		t.Errorf("expected module_not_installed, got %q", code)
	}
}

func TestPayrollRequiresAdmin(t *testing.T) {
	mux, _ := newTestRouter(t, []string{"assets", "leave", "payroll"})

	req := asMember(httptest.NewRequest(http.MethodGet, "/api/v1/payroll", nil), types.RoleFlags{DepartmentAccess: true})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if code := responseCode(t, rr); code != "admin_required" {
		t.Errorf("expected admin_required, got %q", code)
	}
}

func TestListAssetsIsTenantFiltered(t *testing.T) {
	mux, mock := newTestRouter(t, []string{"assets"})

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, org_id, name, tag, status, assignee_id, created_at FROM assets WHERE org_id = $1 ORDER BY created_at DESC",
	)).
		WithArgs("org-a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name", "tag", "status", "assignee_id", "created_at"}).
			AddRow("asset-1", "org-a", "Laptop", "AST-1", "active", nil, time.Now()))

	req := asMember(httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil), types.RoleFlags{})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateAssetStampsTenant(t *testing.T) {
	mux, mock := newTestRouter(t, []string{"assets"})

	mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO assets (assignee_id,id,name,org_id,status,tag) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, org_id, name, tag, status, assignee_id, created_at",
	)).
		WithArgs(nil, sqlmock.AnyArg(), "Laptop", "org-a", "active", "AST-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name", "tag", "status", "assignee_id", "created_at"}).
			AddRow("asset-1", "org-a", "Laptop", "AST-1", "active", nil, time.Now()))

	body := `{"name":"Laptop","tag":"AST-1"}`
	req := asMember(httptest.NewRequest(http.MethodPost, "/api/v1/assets", strings.NewReader(body)), types.RoleFlags{DepartmentAccess: true})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rr.Code, rr.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetAssetFromAnotherTenantIs404(t *testing.T) {
	mux, mock := newTestRouter(t, []string{"assets"})

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, org_id, name, tag, status, assignee_id, created_at FROM assets WHERE id = $1",
	)).
		WithArgs("asset-9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name", "tag", "status", "assignee_id", "created_at"}).
			AddRow("asset-9", "org-b", "Server", "AST-9", "active", nil, time.Now()))

	req := asMember(httptest.NewRequest(http.MethodGet, "/api/v1/assets/asset-9", nil), types.RoleFlags{})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign asset, got %d", rr.Code)
	}
	if code := responseCode(t, rr); code != "not_found" {
		t.Errorf("expected not_found, got %q", code)
	}
}

func TestDecideLeaveRequiresApprovalCapability(t *testing.T) {
	mux, _ := newTestRouter(t, []string{"assets", "leave"})

	body := `{"status":"approved"}`
	req := asMember(httptest.NewRequest(http.MethodPost, "/api/v1/leave/leave-1/decision", strings.NewReader(body)), types.RoleFlags{DepartmentAccess: true})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if code := responseCode(t, rr); code != "approval_access_denied" {
		t.Errorf("expected approval_access_denied, got %q", code)
	}
}

func TestCreateLeaveDefaultsToPending(t *testing.T) {
	mux, mock := newTestRouter(t, []string{"assets", "leave"})

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO leave_requests")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "vacation", "member-1", "org-a", sqlmock.AnyArg(), "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "member_id", "kind", "starts_on", "ends_on", "status", "approved_by", "decided_at", "created_at"}).
			AddRow("leave-1", "org-a", "member-1", "vacation", time.Now(), time.Now().Add(48*time.Hour), "pending", nil, nil, time.Now()))

	body := `{"kind":"vacation","starts_on":"2026-09-01","ends_on":"2026-09-05"}`
	req := asMember(httptest.NewRequest(http.MethodPost, "/api/v1/leave", strings.NewReader(body)), types.RoleFlags{})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rr.Code, rr.Body.String())
	}
}
