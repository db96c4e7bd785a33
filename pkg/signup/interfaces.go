// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package signup

import (
	"context"

	"github.com/crewos/crew-service/internal/types"
)

// StorageInterface is the subset of the storage layer signup needs.
type StorageInterface interface {
	CreateAccount(ctx context.Context, account *types.Account) (*types.Account, error)
	CreateOrganization(ctx context.Context, org *types.Organization) (*types.Organization, error)
	AddMember(ctx context.Context, member *types.Member) (*types.Member, error)
}

// RecorderInterface accepts security audit events.
type RecorderInterface interface {
	Record(event *types.AuditEvent)
}

type ServiceInterface interface {
	Register(ctx context.Context, reg *Registration) (*Result, error)
}
