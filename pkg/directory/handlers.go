// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package directory

import (
	"encoding/json"
	"errors"
	"net/http"

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

// UpdateOrganizationRequest carries a partial update. Only fields that
// are present in the payload are written.
type UpdateOrganizationRequest struct {
	Name                *string   `json:"name" validate:"omitempty,min=1,max=120"`
	Modules             *[]string `json:"modules"`
	AllowedEmailDomains *[]string `json:"allowed_email_domains"`
}

type UpdateMemberRoleRequest struct {
	Owner            bool `json:"owner"`
	Admin            bool `json:"admin"`
	DepartmentAccess bool `json:"department_access"`
	Approver         bool `json:"approver"`
}

type API struct {
	service  ServiceInterface
	validate *validator.Validate

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewAPI(
	service ServiceInterface,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *API {
	return &API{
		service:  service,
		validate: validator.New(),
		tracer:   tracer,
		monitor:  monitor,
		logger:   logger,
	}
}

// RegisterEndpoints mounts the directory surface. Reading the tenant
// record is open to every member of the organization, the roster is
// admin-only, and role changes need the owner capability.
func (a *API) RegisterEndpoints(mux *chi.Mux, g *gate.Gate) {
	mux.Get("/api/v1/org", g.Wrap(gate.Options{
		Module: authorization.ModuleDirectory, Permission: authorization.PermDirectoryRead,
	}, a.getOrganization))
	mux.Patch("/api/v1/org", g.Wrap(gate.Options{
		Module: authorization.ModuleDirectory, Admin: true,
	}, a.updateOrganization))

	mux.Get("/api/v1/members", g.Wrap(gate.Options{
		Module: authorization.ModuleDirectory, Admin: true,
	}, a.listMembers))
	mux.Put("/api/v1/members/{id}/role", g.Wrap(gate.Options{
		Module: authorization.ModuleDirectory, Owner: true,
	}, a.updateMemberRole))
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

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		httptypes.WriteError(w, r, httptypes.ErrNotFound())
		return
	}
	a.logger.Errorf("directory service error: %v", err)
	httptypes.WriteError(w, r, httptypes.ErrInternal())
}

func (a *API) getOrganization(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "directory.API.getOrganization")
	defer span.End()

	org, ok := gate.OrganizationFromContext(ctx)
	if !ok {
		a.logger.Error("directory handler invoked without an organization")
		httptypes.WriteError(w, r, httptypes.ErrInternal())
		return
	}

	httptypes.WriteJSON(w, r, http.StatusOK, org)
}

func (a *API) updateOrganization(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "directory.API.updateOrganization")
	defer span.End()

	org, ok := gate.OrganizationFromContext(ctx)
	if !ok {
		httptypes.WriteError(w, r, httptypes.ErrInternal())
		return
	}
	principal, ok := authentication.PrincipalFromContext(ctx)
	if !ok {
		httptypes.WriteError(w, r, httptypes.ErrInternal())
		return
	}

	var req UpdateOrganizationRequest
	if !a.decode(w, r, &req) {
		return
	}

	update := &types.Organization{ID: org.ID}
	var paths []string
	if req.Name != nil {
		update.Name = *req.Name
		paths = append(paths, "name")
	}
	if req.Modules != nil {
		for _, m := range *req.Modules {
			if !authorization.IsModuleKnown(m) {
				httptypes.WriteError(w, r, httptypes.ErrValidationFailed("unknown module: "+m))
				return
			}
		}
		update.Modules = *req.Modules
		paths = append(paths, "modules")
	}
	if req.AllowedEmailDomains != nil {
		update.AllowedEmailDomains = *req.AllowedEmailDomains
		paths = append(paths, "allowed_email_domains")
	}

	updated, err := a.service.UpdateOrganization(ctx, principal.ID(), update, paths)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	httptypes.WriteJSON(w, r, http.StatusOK, updated)
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "directory.API.listMembers")
	defer span.End()

	org, ok := gate.OrganizationFromContext(ctx)
	if !ok {
		httptypes.WriteError(w, r, httptypes.ErrInternal())
		return
	}

	members, err := a.service.ListMembers(ctx, org.ID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	httptypes.WriteJSON(w, r, http.StatusOK, map[string]interface{}{"members": members})
}

func (a *API) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "directory.API.updateMemberRole")
	defer span.End()

	org, ok := gate.OrganizationFromContext(ctx)
	if !ok {
		httptypes.WriteError(w, r, httptypes.ErrInternal())
		return
	}
	principal, ok := authentication.PrincipalFromContext(ctx)
	if !ok {
		httptypes.WriteError(w, r, httptypes.ErrInternal())
		return
	}

	var req UpdateMemberRoleRequest
	if !a.decode(w, r, &req) {
		return
	}

	flags := types.RoleFlags{
		Owner:            req.Owner,
		Admin:            req.Admin,
		DepartmentAccess: req.DepartmentAccess,
		Approver:         req.Approver,
	}

	updated, err := a.service.UpdateMemberRole(ctx, principal.ID(), org.ID, chi.URLParam(r, "id"), flags)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	httptypes.WriteJSON(w, r, http.StatusOK, updated)
}
