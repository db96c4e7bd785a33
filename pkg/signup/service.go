// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package signup provisions a new customer: one platform account, one
// organization and the owner membership linking the two. The three
// inserts run inside the per-request transaction, so a slug or email
// collision rolls the whole registration back.
package signup

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/crewos/crew-service/internal/audit"
	"github.com/crewos/crew-service/internal/authorization"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
)

// Registration is the validated signup input.
type Registration struct {
	Email            string
	Name             string
	Password         string
	OrganizationName string
	Slug             string
}

// Result reports what was provisioned.
type Result struct {
	Account      *types.Account      `json:"account"`
	Organization *types.Organization `json:"organization"`
	Owner        *types.Member       `json:"owner"`
}

// defaultModules is what a fresh organization starts with. Payroll is a
// paid add-on enabled later through the directory surface.
var defaultModules = []string{
	authorization.ModuleAssets,
	authorization.ModuleLeave,
	authorization.ModuleDirectory,
}

const defaultTier = "standard"

type Service struct {
	storage  StorageInterface
	recorder RecorderInterface

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewService(
	storage StorageInterface,
	recorder RecorderInterface,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Service {
	return &Service{
		storage:  storage,
		recorder: recorder,
		tracer:   tracer,
		monitor:  monitor,
		logger:   logger,
	}
}

func (s *Service) Register(ctx context.Context, reg *Registration) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "signup.Service.Register")
	defer span.End()

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account, err := s.storage.CreateAccount(ctx, &types.Account{
		Email:        reg.Email,
		Name:         reg.Name,
		PasswordHash: string(hash),
		Active:       true,
	})
	if err != nil {
		return nil, err
	}

	org, err := s.storage.CreateOrganization(ctx, &types.Organization{
		Slug:    reg.Slug,
		Name:    reg.OrganizationName,
		Enabled: true,
		Tier:    defaultTier,
		Modules: defaultModules,
	})
	if err != nil {
		return nil, err
	}

	owner, err := s.storage.AddMember(ctx, &types.Member{
		OrgID:     org.ID,
		AccountID: &account.ID,
		Email:     account.Email,
		Name:      account.Name,
		Owner:     true,
		Active:    true,
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(&types.AuditEvent{
		OrgID:   &org.ID,
		ActorID: account.ID,
		Kind:    audit.KindOrganizationCreated,
		Detail:  fmt.Sprintf("slug=%s owner=%s", org.Slug, owner.ID),
	})
	s.logger.Infof("provisioned organization %s (%s) for account %s", org.ID, org.Slug, account.ID)

	return &Result{Account: account, Organization: org, Owner: owner}, nil
}
