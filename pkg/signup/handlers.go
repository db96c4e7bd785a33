// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package signup

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	httptypes "github.com/crewos/crew-service/internal/http/types"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/storage"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/pkg/gate"
)

type RegisterRequest struct {
	Email            string `json:"email" validate:"required,email"`
	Name             string `json:"name" validate:"required,min=1,max=120"`
	Password         string `json:"password" validate:"required,min=12,max=128"`
	OrganizationName string `json:"organization_name" validate:"required,min=1,max=120"`
	Slug             string `json:"slug" validate:"required,min=2,max=40,lowercase,excludesall= "`
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

// RegisterEndpoints mounts the public signup route. The gate options are
// empty: no session is required, but the body cap and the per-client
// rate limit still apply.
func (a *API) RegisterEndpoints(mux *chi.Mux, g *gate.Gate) {
	mux.Post("/api/v1/signup", g.Wrap(gate.Options{}, a.register))
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "signup.API.register")
	defer span.End()

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httptypes.WriteError(w, r, httptypes.ErrValidationFailed("invalid request body"))
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		httptypes.WriteError(w, r, httptypes.ErrValidationFailed(err.Error()))
		return
	}

	result, err := a.service.Register(ctx, &Registration{
		Email:            req.Email,
		Name:             req.Name,
		Password:         req.Password,
		OrganizationName: req.OrganizationName,
		Slug:             req.Slug,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			httptypes.WriteError(w, r, httptypes.ErrConflict(err.Error()))
			return
		}
		a.logger.Errorf("signup failed: %v", err)
		httptypes.WriteError(w, r, httptypes.ErrInternal())
		return
	}

	httptypes.WriteJSON(w, r, http.StatusCreated, result)
}
