// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package workforce exposes the tenant business surfaces: assets, leave
// requests and payroll runs. Every handler runs behind the gate and
// reaches tenant data exclusively through the scoped handle the gate
// placed in the request context.
package workforce

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/crewos/crew-service/internal/authorization"
	httptypes "github.com/crewos/crew-service/internal/http/types"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/storage"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
	"github.com/crewos/crew-service/pkg/authentication"
	"github.com/crewos/crew-service/pkg/gate"
)

type CreateAssetRequest struct {
	Name     string  `json:"name" validate:"required"`
	Tag      string  `json:"tag" validate:"required"`
	Status   string  `json:"status" validate:"omitempty,oneof=active retired"`
	Assignee *string `json:"assignee_id"`
}

type UpdateAssetRequest struct {
	Name     string  `json:"name" validate:"required"`
	Status   string  `json:"status" validate:"required,oneof=active retired"`
	Assignee *string `json:"assignee_id"`
}

type CreateLeaveRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=vacation sick unpaid"`
	StartsOn string `json:"starts_on" validate:"required,datetime=2006-01-02"`
	EndsOn   string `json:"ends_on" validate:"required,datetime=2006-01-02"`
}

type DecideLeaveRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

type CreatePayrollRequest struct {
	Period string `json:"period" validate:"required,datetime=2006-01"`
}

type CompletePayrollRequest struct {
	TotalCents int64 `json:"total_cents" validate:"required,gt=0"`
}

type API struct {
	validate *validator.Validate

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewAPI(tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *API {
	return &API{
		validate: validator.New(),
		tracer:   tracer,
		monitor:  monitor,
		logger:   logger,
	}
}

// RegisterEndpoints wires the workforce routes behind the gate. Assets
// and leave sit behind their modules; payroll additionally requires the
// admin capability, so a member without it sees a 403 even when the
// module is enabled.
func (a *API) RegisterEndpoints(mux *chi.Mux, g *gate.Gate) {
	mux.Get("/api/v1/assets", g.Wrap(gate.Options{
		Module: authorization.ModuleAssets, Permission: authorization.PermAssetsRead,
	}, a.listAssets))
	mux.Post("/api/v1/assets", g.Wrap(gate.Options{
		Module: authorization.ModuleAssets, Permission: authorization.PermAssetsManage,
	}, a.createAsset))
	mux.Get("/api/v1/assets/{id}", g.Wrap(gate.Options{
		Module: authorization.ModuleAssets, Permission: authorization.PermAssetsRead,
	}, a.getAsset))
	mux.Put("/api/v1/assets/{id}", g.Wrap(gate.Options{
		Module: authorization.ModuleAssets, Permission: authorization.PermAssetsManage,
	}, a.updateAsset))
	mux.Delete("/api/v1/assets/{id}", g.Wrap(gate.Options{
		Module: authorization.ModuleAssets, Permission: authorization.PermAssetsManage,
	}, a.deleteAsset))

	mux.Get("/api/v1/leave", g.Wrap(gate.Options{
		Module: authorization.ModuleLeave, Permission: authorization.PermLeaveRead,
	}, a.listLeave))
	mux.Post("/api/v1/leave", g.Wrap(gate.Options{
		Module: authorization.ModuleLeave, Permission: authorization.PermLeaveCreate,
	}, a.createLeave))
	mux.Post("/api/v1/leave/{id}/decision", g.Wrap(gate.Options{
		Module: authorization.ModuleLeave, Approver: true, Permission: authorization.PermLeaveApprove,
	}, a.decideLeave))

	mux.Get("/api/v1/payroll", g.Wrap(gate.Options{
		Module: authorization.ModulePayroll, Admin: true,
	}, a.listPayroll))
	mux.Post("/api/v1/payroll", g.Wrap(gate.Options{
		Module: authorization.ModulePayroll, Admin: true,
	}, a.createPayroll))
	mux.Post("/api/v1/payroll/{id}/complete", g.Wrap(gate.Options{
		Module: authorization.ModulePayroll, Admin: true,
	}, a.completePayroll))
}

func (a *API) scope(w http.ResponseWriter, r *http.Request) (*storage.Scope, bool) {
	scope, ok := gate.ScopeFromContext(r.Context())
	if !ok {
		// Reaching a workforce handler without a scope means the route
		// was registered outside the gate.
		a.logger.Error("workforce handler invoked without a tenant scope")
		httptypes.WriteError(w, r, httptypes.ErrInternal())
		return nil, false
	}
	return scope, true
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httptypes.WriteError(w, r, httptypes.ErrValidationFailed("invalid request body"))
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		httptypes.WriteError(w, r, httptypes.ErrValidationFailed(err.Error()))
		return false
	}
	return true
}

func (a *API) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httptypes.WriteError(w, r, httptypes.ErrNotFound())
	case errors.Is(err, storage.ErrDuplicateKey):
		httptypes.WriteError(w, r, httptypes.ErrConflict(err.Error()))
	default:
		a.logger.Errorf("workforce storage error: %v", err)
		httptypes.WriteError(w, r, httptypes.ErrInternal())
	}
}

func (a *API) listAssets(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "workforce.API.listAssets")
	defer span.End()

	scope, ok := a.scope(w, r)
	if !ok {
		return
	}

	assets, err := scope.Assets().List(ctx, r.URL.Query().Get("status"))
	if err != nil {
		a.writeStorageError(w, r, err)
		return
	}

	httptypes.WriteJSON(w, r, http.StatusOK, map[string]interface{}{"assets": assets})
}

func (a *API) createAsset(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "workforce.API.createAsset")
	defer span.End()

	scope, ok := a.scope(w, r)
	if !ok {
		return
	}

	var req CreateAssetRequest
	if !a.decode(w, r, &req) {
		return
	}

	status := req.Status
	if status == "" {
		status = "active"
	}

	asset, err := scope.Assets().Create(ctx, &types.Asset{
		Name:     req.Name,
		Tag:      req.Tag,
		Status:   status,
		Assignee: req.Assignee,
	})
	if err != nil {
		a.writeStorageError(w, r, err)
		return
	}

	httptypes.WriteJSON(w, r, http.StatusCreated, asset)
}

func (a *API) getAsset(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "workforce.API.getAsset")
	defer span.End()

	scope, ok := a.scope(w, r)
	if !ok {
		return
	}

	asset, err := scope.Assets().GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		a.writeStorageError(w, r, err)
		return
	}

	httptypes.WriteJSON(w, r, http.StatusOK, asset)
}

func (a *API) updateAsset(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "workforce.API.updateAsset")
	defer span.End()

	scope, ok := a.scope(w, r)
	if !ok {
		return
	}

	var req UpdateAssetRequest
	if !a.decode(w, r, &req) {
		return
	}

	asset := &types.Asset{
		ID:       chi.URLParam(r, "id"),
		Name:     req.Name,
		Status:   req.Status,
		Assignee: req.Assignee,
	}
	if err := scope.Assets().Update(ctx, asset); err != nil {
		a.writeStorageError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) deleteAsset(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "workforce.API.deleteAsset")
	defer span.End()

	scope, ok := a.scope(w, r)
	if !ok {
		return
	}

	if err := scope.Assets().Delete(ctx, chi.URLParam(r, "id")); err != nil {
		a.writeStorageError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listLeave(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "workforce.API.listLeave")
	defer span.End()

	scope, ok := a.scope(w, r)
	if !ok {
		return
	}

	principal, _ := authentication.PrincipalFromContext(ctx)

	// Plain members see their own requests; elevated callers and
	// approvers see the whole organization.
	memberFilter := ""
	if principal != nil && !principal.Flags.Owner && !principal.Flags.Admin && !principal.Flags.Approver {
		memberFilter = principal.MemberID
	}

	requests, err := scope.LeaveRequests().List(ctx, memberFilter, r.URL.Query().Get("status"))
	if err != nil {
		a.writeStorageError(w, r, err)
		return
	}

	httptypes.WriteJSON(w, r, http.StatusOK, map[string]interface{}{"leave_requests": requests})
}

func (a *API) createLeave(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "workforce.API.createLeave")
	defer span.End()

	scope, ok := a.scope(w, r)
	if !ok {
		return
	}

	principal, pok := authentication.PrincipalFromContext(ctx)
	if !pok {
		httptypes.WriteError(w, r, httptypes.ErrAuthRequired())
		return
	}

	var req CreateLeaveRequest
	if !a.decode(w, r, &req) {
		return
	}

	startsOn, _ := time.Parse("2006-01-02", req.StartsOn)
	endsOn, _ := time.Parse("2006-01-02", req.EndsOn)
	if endsOn.Before(startsOn) {
		httptypes.WriteError(w, r, httptypes.ErrValidationFailed("ends_on precedes starts_on"))
		return
	}

	created, err := scope.LeaveRequests().Create(ctx, &types.LeaveRequest{
		MemberID: principal.MemberID,
		Kind:     req.Kind,
		StartsOn: startsOn,
		EndsOn:   endsOn,
	})
	if err != nil {
		a.writeStorageError(w, r, err)
		return
	}

	httptypes.WriteJSON(w, r, http.StatusCreated, created)
}

func (a *API) decideLeave(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "workforce.API.decideLeave")
	defer span.End()

	scope, ok := a.scope(w, r)
	if !ok {
		return
	}

	principal, pok := authentication.PrincipalFromContext(ctx)
	if !pok {
		httptypes.WriteError(w, r, httptypes.ErrAuthRequired())
		return
	}

	var req DecideLeaveRequest
	if !a.decode(w, r, &req) {
		return
	}

	// Only pending requests can be decided; a decided or foreign request
	// reports not found.
	if err := scope.LeaveRequests().Decide(ctx, chi.URLParam(r, "id"), req.Status, principal.MemberID); err != nil {
		a.writeStorageError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listPayroll(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "workforce.API.listPayroll")
	defer span.End()

	scope, ok := a.scope(w, r)
	if !ok {
		return
	}

	runs, err := scope.PayrollRuns().List(ctx)
	if err != nil {
		a.writeStorageError(w, r, err)
		return
	}

	httptypes.WriteJSON(w, r, http.StatusOK, map[string]interface{}{"payroll_runs": runs})
}

func (a *API) createPayroll(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "workforce.API.createPayroll")
	defer span.End()

	scope, ok := a.scope(w, r)
	if !ok {
		return
	}

	var req CreatePayrollRequest
	if !a.decode(w, r, &req) {
		return
	}

	run, err := scope.PayrollRuns().Create(ctx, &types.PayrollRun{Period: req.Period})
	if err != nil {
		a.writeStorageError(w, r, err)
		return
	}

	httptypes.WriteJSON(w, r, http.StatusCreated, run)
}

func (a *API) completePayroll(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "workforce.API.completePayroll")
	defer span.End()

	scope, ok := a.scope(w, r)
	if !ok {
		return
	}

	var req CompletePayrollRequest
	if !a.decode(w, r, &req) {
		return
	}

	if err := scope.PayrollRuns().Complete(ctx, chi.URLParam(r, "id"), req.TotalCents); err != nil {
		a.writeStorageError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
