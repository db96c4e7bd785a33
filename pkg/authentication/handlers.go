// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	httptypes "github.com/crewos/crew-service/internal/http/types"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
)

type LoginRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required"`
	Organization string `json:"organization" validate:"omitempty,lowercase"`
}

type SessionResponse struct {
	Token     string          `json:"token"`
	Kind      string          `json:"kind"`
	AccountID string          `json:"account_id"`
	MemberID  string          `json:"member_id,omitempty"`
	OrgID     string          `json:"org_id,omitempty"`
	Email     string          `json:"email"`
	Flags     types.RoleFlags `json:"flags"`
}

type ImpersonateRequest struct {
	MemberID string `json:"member_id" validate:"required"`
}

type RevokeRequest struct {
	DelegationID string `json:"delegation_id" validate:"required_without=DelegatorID,excluded_with=DelegatorID"`
	DelegatorID  string `json:"delegator_id" validate:"required_without=DelegationID"`
	IssuedBefore string `json:"issued_before" validate:"required_with=DelegatorID,omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=12"`
}

type API struct {
	service  ServiceInterface
	validate *validator.Validate

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewAPI(service ServiceInterface, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *API {
	return &API{
		service:  service,
		validate: validator.New(),
		tracer:   tracer,
		monitor:  monitor,
		logger:   logger,
	}
}

func (a *API) RegisterEndpoints(mux *chi.Mux) {
	mux.Post("/api/v1/auth/login", a.login)
	mux.Post("/api/v1/auth/logout", a.logout)
	mux.Post("/api/v1/auth/password", a.changePassword)
	mux.Post("/api/v1/auth/impersonate", a.impersonate)
	mux.Post("/api/v1/auth/revocations", a.revoke)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "authentication.API.login")
	defer span.End()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httptypes.WriteError(w, r, httptypes.ErrValidationFailed("invalid request body"))
		return
	}
	if err := a.validate.Struct(req); err != nil {
		httptypes.WriteError(w, r, httptypes.ErrValidationFailed(err.Error()))
		return
	}

	token, principal, err := a.service.Login(ctx, req.Email, req.Password, req.Organization)
	if err != nil {
		httptypes.WriteError(w, r, a.mapError(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	httptypes.WriteJSON(w, r, http.StatusOK, sessionResponse(token, principal))
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	_, span := a.tracer.Start(r.Context(), "authentication.API.logout")
	defer span.End()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "authentication.API.changePassword")
	defer span.End()

	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		httptypes.WriteError(w, r, httptypes.ErrAuthRequired())
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httptypes.WriteError(w, r, httptypes.ErrValidationFailed("invalid request body"))
		return
	}
	if err := a.validate.Struct(req); err != nil {
		httptypes.WriteError(w, r, httptypes.ErrValidationFailed(err.Error()))
		return
	}

	if err := a.service.ChangePassword(ctx, principal.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		httptypes.WriteError(w, r, a.mapError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) impersonate(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "authentication.API.impersonate")
	defer span.End()

	operator, ok := PrincipalFromContext(ctx)
	if !ok {
		httptypes.WriteError(w, r, httptypes.ErrAuthRequired())
		return
	}

	var req ImpersonateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httptypes.WriteError(w, r, httptypes.ErrValidationFailed("invalid request body"))
		return
	}
	if err := a.validate.Struct(req); err != nil {
		httptypes.WriteError(w, r, httptypes.ErrValidationFailed(err.Error()))
		return
	}

	token, principal, err := a.service.Impersonate(ctx, operator, req.MemberID)
	if err != nil {
		httptypes.WriteError(w, r, a.mapError(err))
		return
	}

	httptypes.WriteJSON(w, r, http.StatusOK, sessionResponse(token, principal))
}

func (a *API) revoke(w http.ResponseWriter, r *http.Request) {
	ctx, span := a.tracer.Start(r.Context(), "authentication.API.revoke")
	defer span.End()

	operator, ok := PrincipalFromContext(ctx)
	if !ok {
		httptypes.WriteError(w, r, httptypes.ErrAuthRequired())
		return
	}

	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httptypes.WriteError(w, r, httptypes.ErrValidationFailed("invalid request body"))
		return
	}
	if err := a.validate.Struct(req); err != nil {
		httptypes.WriteError(w, r, httptypes.ErrValidationFailed(err.Error()))
		return
	}

	if req.DelegationID != "" {
		if err := a.service.RevokeDelegation(ctx, operator, req.DelegationID); err != nil {
			httptypes.WriteError(w, r, a.mapError(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	cutoff, err := time.Parse(time.RFC3339, req.IssuedBefore)
	if err != nil {
		httptypes.WriteError(w, r, httptypes.ErrValidationFailed("issued_before must be RFC 3339"))
		return
	}

	if err := a.service.RevokeAllIssuedBefore(ctx, operator, req.DelegatorID, cutoff); err != nil {
		httptypes.WriteError(w, r, a.mapError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func sessionResponse(token string, p *Principal) *SessionResponse {
	return &SessionResponse{
		Token:     token,
		Kind:      string(p.Kind),
		AccountID: p.AccountID,
		MemberID:  p.MemberID,
		OrgID:     p.OrgID,
		Email:     p.Email,
		Flags:     p.Flags,
	}
}

// mapError translates session failures onto the response taxonomy.
func (a *API) mapError(err error) error {
	var locked *LockedError
	switch {
	case errors.As(err, &locked):
		return httptypes.ErrAccountLocked(int64(locked.Remaining(time.Now()).Seconds()) + 1)
	case errors.Is(err, ErrInvalidCredentials):
		return httptypes.ErrInvalidCredential()
	case errors.Is(err, ErrAccountDisabled):
		return httptypes.ErrAccountDisabled()
	case errors.Is(err, ErrNoMembership):
		return httptypes.ErrTenantNotFound()
	case errors.Is(err, ErrSessionExpired):
		return httptypes.ErrSessionExpiredOrRevoked()
	case errors.Is(err, ErrSessionInvalid), errors.Is(err, ErrNoSession):
		return httptypes.ErrAuthRequired()
	case errors.Is(err, ErrNotOperator):
		return httptypes.ErrAdminRequired()
	default:
		a.logger.Errorf("authentication handler error: %v", err)
		return httptypes.ErrInternal()
	}
}
