// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package gate is the request pipeline every protected route passes
// through. The checks run in one fixed order: body size, rate limit,
// authentication, capabilities (owner, admin, department, approval),
// tenant presence, tenant existence, scoped data handle, module
// entitlement, permission, handler. The first failing step short-circuits
// with a typed rejection; every outcome is logged with the principal id.
package gate

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/crewos/crew-service/internal/db"
	httptypes "github.com/crewos/crew-service/internal/http/types"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/storage"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
	"github.com/crewos/crew-service/pkg/authentication"
)

type OracleInterface interface {
	Organization(ctx context.Context, orgID string) (*types.Organization, error)
	HasModule(ctx context.Context, orgID, moduleID string) (bool, error)
	HasPermission(flags types.RoleFlags, permissionKey string) bool
}

type LimiterInterface interface {
	Allow(key string) bool
	RetryAfter() int64
}

// Options declares what a single route demands from the pipeline. Zero
// value means a public route: only the body-size ceiling and the default
// mutating-method rate limit apply.
type Options struct {
	// Authenticated requires a resolved principal. Implied by every
	// option below.
	Authenticated bool

	// Capability requirements, checked in order. Owner implies admin;
	// owner and admin bypass the department check.
	Owner      bool
	Admin      bool
	Department bool
	Approver   bool

	// Module and Permission are checked only when set.
	Module     string
	Permission string

	// SkipTenant turns off the tenant presence and existence checks for
	// authenticated platform-level routes.
	SkipTenant bool

	// RateLimitAll extends admission control to safe methods.
	// SkipRateLimit removes it entirely for the route.
	RateLimitAll  bool
	SkipRateLimit bool
}

func (o Options) wantsAuth() bool {
	return o.Authenticated || o.Owner || o.Admin || o.Department || o.Approver ||
		o.Module != "" || o.Permission != ""
}

func (o Options) wantsTenant() bool {
	return o.wantsAuth() && !o.SkipTenant
}

type Config struct {
	MaxBodyBytes int64
}

type Gate struct {
	db      db.DBClientInterface
	oracle  OracleInterface
	limiter LimiterInterface
	config  Config

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func New(
	dbClient db.DBClientInterface,
	oracle OracleInterface,
	limiter LimiterInterface,
	config Config,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Gate {
	g := new(Gate)

	g.db = dbClient
	g.oracle = oracle
	g.limiter = limiter
	g.config = config

	g.tracer = tracer
	g.monitor = monitor
	g.logger = logger

	return g
}

// Wrap runs the pipeline for one route. The handler only executes once
// every configured check has passed, with the scoped data handle and the
// organization record already in the request context.
func (g *Gate) Wrap(opts Options, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := g.tracer.Start(r.Context(), "gate.Gate.Wrap")
		defer span.End()

		start := time.Now()
		r = r.WithContext(ctx)

		principal, apiErr := g.run(w, r, opts)
		if apiErr != nil {
			g.reject(w, r, start, principal, apiErr)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		handler(ww, r)

		g.logAccess(r, ww.Status(), time.Since(start), principal)
	}
}

// run executes steps 1 through 8 and mutates the request context in
// place via r. It returns the resolved principal (possibly nil) and the
// first rejection encountered.
func (g *Gate) run(w http.ResponseWriter, r *http.Request, opts Options) (*authentication.Principal, *httptypes.APIError) {
	ctx := r.Context()

	// Step 1: body-size ceiling, mutating methods only.
	if mutating(r.Method) && g.config.MaxBodyBytes > 0 {
		if r.ContentLength > g.config.MaxBodyBytes {
			return nil, httptypes.ErrPayloadTooLarge(g.config.MaxBodyBytes)
		}
		r.Body = http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)
	}

	principal, _ := authentication.PrincipalFromContext(ctx)

	// Step 2: admission control. Advisory anti-abuse only; never a
	// substitute for the authorization checks below.
	if !opts.SkipRateLimit && (mutating(r.Method) || opts.RateLimitAll) {
		if !g.limiter.Allow(rateLimitKey(r, principal)) {
			return principal, httptypes.ErrRateLimited(g.limiter.RetryAfter())
		}
	}

	if !opts.wantsAuth() {
		return principal, nil
	}

	// Step 3: authentication.
	if principal == nil {
		return nil, g.mapResolutionError(authentication.ResolutionError(ctx))
	}

	// Step 4: ordered capability checks.
	if apiErr := checkCapabilities(opts, principal.Flags); apiErr != nil {
		g.logger.Security().AuthzFailure(principal.ID(), apiErr.Code.String())
		return principal, apiErr
	}

	// Steps 5 and 6: tenant presence, then tenant existence.
	if opts.wantsTenant() {
		if principal.OrgID == "" {
			return principal, httptypes.ErrTenantRequired()
		}

		org, err := g.oracle.Organization(ctx, principal.OrgID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return principal, httptypes.ErrTenantNotFound()
			}
			g.logger.Errorf("tenant existence check failed: %v", err)
			return principal, httptypes.ErrInternal()
		}
		if !org.Enabled {
			return principal, httptypes.ErrTenantNotFound()
		}

		ctx = withOrganization(ctx, org)

		// Step 7: the tenant-scoped data handle.
		scope, err := storage.NewScope(g.db, principal.OrgID, g.tracer, g.monitor, g.logger)
		if err != nil {
			g.logger.Errorf("failed to construct tenant scope: %v", err)
			return principal, httptypes.ErrInternal()
		}
		ctx = withScope(ctx, scope)

		*r = *r.WithContext(ctx)

		// Step 8: module entitlement, then permission. The module gate
		// has no admin bypass; the permission check short-circuits on
		// admin and owner inside the oracle.
		if opts.Module != "" {
			installed, err := g.oracle.HasModule(ctx, principal.OrgID, opts.Module)
			if err != nil {
				g.logger.Errorf("module check failed: %v", err)
				return principal, httptypes.ErrInternal()
			}
			if !installed {
				return principal, httptypes.ErrModuleNotInstalled(opts.Module)
			}
		}

		if opts.Permission != "" {
			if !g.oracle.HasPermission(principal.Flags, opts.Permission) {
				g.logger.Security().AuthzFailure(principal.ID(), opts.Permission)
				return principal, httptypes.ErrPermissionDenied(opts.Permission)
			}
		}
	}

	return principal, nil
}

// checkCapabilities enforces step 4 in order: owner, admin, department,
// approval. Owner satisfies the admin requirement; owner and admin
// satisfy the department and approval requirements.
func checkCapabilities(opts Options, flags types.RoleFlags) *httptypes.APIError {
	elevated := flags.Owner || flags.Admin || flags.SuperAdmin

	if opts.Owner && !flags.Owner && !flags.SuperAdmin {
		return httptypes.ErrOwnerRequired()
	}
	if opts.Admin && !elevated {
		return httptypes.ErrAdminRequired()
	}
	if opts.Department && !flags.DepartmentAccess && !elevated {
		return httptypes.ErrDepartmentAccessDenied()
	}
	if opts.Approver && !flags.Approver && !elevated {
		return httptypes.ErrApprovalAccessDenied()
	}

	return nil
}

func (g *Gate) mapResolutionError(err error) *httptypes.APIError {
	switch {
	case errors.Is(err, authentication.ErrSessionExpired):
		return httptypes.ErrSessionExpiredOrRevoked()
	default:
		return httptypes.ErrAuthRequired()
	}
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, start time.Time, principal *authentication.Principal, apiErr *httptypes.APIError) {
	g.monitor.IncGateRejection(apiErr.Code.String())
	httptypes.WriteError(w, r, apiErr)
	g.logAccess(r, apiErr.Status, time.Since(start), principal)
}

func (g *Gate) logAccess(r *http.Request, status int, duration time.Duration, principal *authentication.Principal) {
	principalID := ""
	if principal != nil {
		principalID = principal.ID()
	}

	g.logger.Infow("request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"principal", principalID,
		"request_id", middleware.GetReqID(r.Context()),
	)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// rateLimitKey prefers the tenant, then the account, then the client
// address, so one abusive tenant cannot starve the rest.
func rateLimitKey(r *http.Request, principal *authentication.Principal) string {
	if principal != nil {
		if principal.OrgID != "" {
			return "org:" + principal.OrgID
		}
		return "acct:" + principal.AccountID
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
