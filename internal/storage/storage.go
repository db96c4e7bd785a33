// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/crewos/crew-service/internal/db"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
)

var _ StorageInterface = (*Storage)(nil)

type Storage struct {
	db db.DBClientInterface

	logger  logging.LoggerInterface
	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
}

func NewStorage(c db.DBClientInterface, tracer tracing.TracingInterface, monitor monitoring.MonitorInterface, logger logging.LoggerInterface) *Storage {
	s := new(Storage)

	s.db = c

	s.logger = logger
	s.tracer = tracer
	s.monitor = monitor

	return s
}

func (s *Storage) CreateOrganization(ctx context.Context, org *types.Organization) (*types.Organization, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.CreateOrganization")
	defer span.End()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate organization ID: %w", err)
	}

	var created types.Organization
	var modules, authMethods, emailDomains stringSlice

	err = s.db.Statement(ctx).
		Insert("organizations").
		Columns("id", "slug", "name", "enabled", "tier", "modules", "allowed_auth_methods", "allowed_email_domains").
		Values(id.String(), org.Slug, org.Name, org.Enabled, org.Tier,
			stringSlice(org.Modules), stringSlice(org.AllowedAuthMethods), stringSlice(org.AllowedEmailDomains)).
		Suffix("RETURNING id, slug, name, enabled, tier, modules, allowed_auth_methods, allowed_email_domains, created_at").
		QueryRowContext(ctx).
		Scan(&created.ID, &created.Slug, &created.Name, &created.Enabled, &created.Tier,
			&modules, &authMethods, &emailDomains, &created.CreatedAt)

	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, WrapDuplicateKeyError(err, "organization slug already in use")
		}
		return nil, fmt.Errorf("failed to insert organization: %w", err)
	}

	created.Modules = modules
	created.AllowedAuthMethods = authMethods
	created.AllowedEmailDomains = emailDomains

	return &created, nil
}

func (s *Storage) GetOrganizationByID(ctx context.Context, id string) (*types.Organization, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.GetOrganizationByID")
	defer span.End()

	return s.getOrganization(ctx, sq.Eq{"id": id})
}

func (s *Storage) GetOrganizationBySlug(ctx context.Context, slug string) (*types.Organization, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.GetOrganizationBySlug")
	defer span.End()

	return s.getOrganization(ctx, sq.Eq{"slug": slug})
}

func (s *Storage) getOrganization(ctx context.Context, where sq.Eq) (*types.Organization, error) {
	var org types.Organization
	var modules, authMethods, emailDomains stringSlice

	err := s.db.Statement(ctx).
		Select("id", "slug", "name", "enabled", "tier", "modules", "allowed_auth_methods", "allowed_email_domains", "created_at").
		From("organizations").
		Where(where).
		QueryRowContext(ctx).
		Scan(&org.ID, &org.Slug, &org.Name, &org.Enabled, &org.Tier,
			&modules, &authMethods, &emailDomains, &org.CreatedAt)

	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	org.Modules = modules
	org.AllowedAuthMethods = authMethods
	org.AllowedEmailDomains = emailDomains

	return &org, nil
}

// UpdateOrganization follows PATCH semantics: only fields named in paths
// are written.
func (s *Storage) UpdateOrganization(ctx context.Context, org *types.Organization, paths []string) error {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.UpdateOrganization")
	defer span.End()

	if len(paths) == 0 {
		return nil
	}

	updateMap := make(map[string]interface{})
	for _, p := range paths {
		switch p {
		case "name":
			updateMap["name"] = org.Name
		case "enabled":
			updateMap["enabled"] = org.Enabled
		case "tier":
			updateMap["tier"] = org.Tier
		case "modules":
			updateMap["modules"] = stringSlice(org.Modules)
		case "allowed_auth_methods":
			updateMap["allowed_auth_methods"] = stringSlice(org.AllowedAuthMethods)
		case "allowed_email_domains":
			updateMap["allowed_email_domains"] = stringSlice(org.AllowedEmailDomains)
		}
	}

	if len(updateMap) == 0 {
		return nil
	}

	_, err := s.db.Statement(ctx).
		Update("organizations").
		SetMap(updateMap).
		Where(sq.Eq{"id": org.ID}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}

	return nil
}

func (s *Storage) CreateAccount(ctx context.Context, account *types.Account) (*types.Account, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.CreateAccount")
	defer span.End()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate account ID: %w", err)
	}

	var created types.Account
	err = s.db.Statement(ctx).
		Insert("accounts").
		Columns("id", "email", "name", "password_hash", "super_admin", "active").
		Values(id.String(), account.Email, account.Name, account.PasswordHash, account.SuperAdmin, account.Active).
		Suffix("RETURNING id, email, name, password_hash, super_admin, active, failed_attempts, locked_until, password_changed_at, created_at").
		QueryRowContext(ctx).
		Scan(&created.ID, &created.Email, &created.Name, &created.PasswordHash, &created.SuperAdmin, &created.Active,
			&created.FailedAttempts, &created.LockedUntil, &created.PasswordChangedAt, &created.CreatedAt)

	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, WrapDuplicateKeyError(err, "account email already registered")
		}
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	return &created, nil
}

func (s *Storage) GetAccountByID(ctx context.Context, id string) (*types.Account, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.GetAccountByID")
	defer span.End()

	return s.getAccount(ctx, sq.Eq{"id": id})
}

func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*types.Account, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.GetAccountByEmail")
	defer span.End()

	return s.getAccount(ctx, sq.Eq{"email": email})
}

func (s *Storage) getAccount(ctx context.Context, where sq.Eq) (*types.Account, error) {
	var a types.Account

	err := s.db.Statement(ctx).
		Select("id", "email", "name", "password_hash", "super_admin", "active",
			"failed_attempts", "locked_until", "password_changed_at", "created_at").
		From("accounts").
		Where(where).
		QueryRowContext(ctx).
		Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.SuperAdmin, &a.Active,
			&a.FailedAttempts, &a.LockedUntil, &a.PasswordChangedAt, &a.CreatedAt)

	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &a, nil
}

// IncrementLoginFailures bumps the failure counter atomically and returns
// the new count so the caller can decide whether to lock.
func (s *Storage) IncrementLoginFailures(ctx context.Context, accountID string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.IncrementLoginFailures")
	defer span.End()

	var attempts int
	err := s.db.Statement(ctx).
		Update("accounts").
		Set("failed_attempts", sq.Expr("failed_attempts + 1")).
		Where(sq.Eq{"id": accountID}).
		Suffix("RETURNING failed_attempts").
		QueryRowContext(ctx).
		Scan(&attempts)

	if err != nil {
		if isNoRows(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment login failures: %w", err)
	}

	return attempts, nil
}

func (s *Storage) LockAccount(ctx context.Context, accountID string, until time.Time) error {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.LockAccount")
	defer span.End()

	_, err := s.db.Statement(ctx).
		Update("accounts").
		Set("locked_until", until).
		Where(sq.Eq{"id": accountID}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}

	return nil
}

func (s *Storage) ResetLoginFailures(ctx context.Context, accountID string) error {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.ResetLoginFailures")
	defer span.End()

	_, err := s.db.Statement(ctx).
		Update("accounts").
		Set("failed_attempts", 0).
		Set("locked_until", nil).
		Where(sq.Eq{"id": accountID}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to reset login failures: %w", err)
	}

	return nil
}

func (s *Storage) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.UpdatePassword")
	defer span.End()

	_, err := s.db.Statement(ctx).
		Update("accounts").
		Set("password_hash", passwordHash).
		Set("password_changed_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": accountID}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}

const memberColumns = "id, org_id, account_id, email, name, owner, admin, department_access, approver, department, active, created_at"

func (s *Storage) AddMember(ctx context.Context, member *types.Member) (*types.Member, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.AddMember")
	defer span.End()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate member ID: %w", err)
	}

	var created types.Member
	err = s.db.Statement(ctx).
		Insert("members").
		Columns("id", "org_id", "account_id", "email", "name", "owner", "admin", "department_access", "approver", "department", "active").
		Values(id.String(), member.OrgID, member.AccountID, member.Email, member.Name,
			member.Owner, member.Admin, member.DepartmentAccess, member.Approver, member.Department, member.Active).
		Suffix("RETURNING " + memberColumns).
		QueryRowContext(ctx).
		Scan(&created.ID, &created.OrgID, &created.AccountID, &created.Email, &created.Name,
			&created.Owner, &created.Admin, &created.DepartmentAccess, &created.Approver,
			&created.Department, &created.Active, &created.CreatedAt)

	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, WrapDuplicateKeyError(err, "member already exists in organization")
		}
		if IsForeignKeyViolation(err) {
			return nil, WrapForeignKeyError(err, "organization or account does not exist")
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	return &created, nil
}

func (s *Storage) GetMemberByID(ctx context.Context, id string) (*types.Member, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.GetMemberByID")
	defer span.End()

	return s.getMember(ctx, sq.Eq{"id": id}, "")
}

func (s *Storage) GetMemberByAccountAndOrg(ctx context.Context, accountID, orgID string) (*types.Member, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.GetMemberByAccountAndOrg")
	defer span.End()

	return s.getMember(ctx, sq.Eq{"account_id": accountID, "org_id": orgID}, "")
}

// GetOldestMembershipByAccount is the fallback tenant selection when a
// login does not name an organization.
func (s *Storage) GetOldestMembershipByAccount(ctx context.Context, accountID string) (*types.Member, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.GetOldestMembershipByAccount")
	defer span.End()

	return s.getMember(ctx, sq.Eq{"account_id": accountID, "active": true}, "created_at ASC")
}

func (s *Storage) getMember(ctx context.Context, where sq.Eq, orderBy string) (*types.Member, error) {
	query := s.db.Statement(ctx).
		Select("id", "org_id", "account_id", "email", "name", "owner", "admin",
			"department_access", "approver", "department", "active", "created_at").
		From("members").
		Where(where)

	if orderBy != "" {
		query = query.OrderBy(orderBy).Limit(1)
	}

	var m types.Member
	err := query.
		QueryRowContext(ctx).
		Scan(&m.ID, &m.OrgID, &m.AccountID, &m.Email, &m.Name, &m.Owner, &m.Admin,
			&m.DepartmentAccess, &m.Approver, &m.Department, &m.Active, &m.CreatedAt)

	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return &m, nil
}

func (s *Storage) ListMembersByOrgID(ctx context.Context, orgID string) ([]*types.Member, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.ListMembersByOrgID")
	defer span.End()

	rows, err := s.db.Statement(ctx).
		Select("id", "org_id", "account_id", "email", "name", "owner", "admin",
			"department_access", "approver", "department", "active", "created_at").
		From("members").
		Where(sq.Eq{"org_id": orgID}).
		OrderBy("created_at ASC").
		QueryContext(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*types.Member
	for rows.Next() {
		var m types.Member
		if err := rows.Scan(&m.ID, &m.OrgID, &m.AccountID, &m.Email, &m.Name, &m.Owner, &m.Admin,
			&m.DepartmentAccess, &m.Approver, &m.Department, &m.Active, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return members, nil
}

func (s *Storage) UpdateMemberRole(ctx context.Context, orgID, memberID string, flags types.RoleFlags) error {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.UpdateMemberRole")
	defer span.End()

	res, err := s.db.Statement(ctx).
		Update("members").
		Set("owner", flags.Owner).
		Set("admin", flags.Admin).
		Set("department_access", flags.DepartmentAccess).
		Set("approver", flags.Approver).
		Where(sq.Eq{"org_id": orgID, "id": memberID}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *Storage) CreateRevocation(ctx context.Context, rev *types.ImpersonationRevocation) error {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.CreateRevocation")
	defer span.End()

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate revocation ID: %w", err)
	}

	_, err = s.db.Statement(ctx).
		Insert("impersonation_revocations").
		Columns("id", "delegation_id", "delegator_id", "issued_before").
		Values(id.String(), rev.DelegationID, rev.DelegatorID, rev.IssuedBefore).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to insert revocation: %w", err)
	}

	return nil
}

// IsRevoked matches either the individual delegation ID or a bulk cutoff
// for the delegating operator whose issued_before is at or after issuedAt.
func (s *Storage) IsRevoked(ctx context.Context, delegationID, delegatorID string, issuedAt time.Time) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.IsRevoked")
	defer span.End()

	var count int
	err := s.db.Statement(ctx).
		Select("COUNT(*)").
		From("impersonation_revocations").
		Where(sq.Or{
			sq.Eq{"delegation_id": delegationID},
			sq.And{
				sq.Eq{"delegator_id": delegatorID},
				sq.NotEq{"issued_before": nil},
				sq.GtOrEq{"issued_before": issuedAt},
			},
		}).
		QueryRowContext(ctx).
		Scan(&count)

	if err != nil {
		return false, fmt.Errorf("failed to check revocations: %w", err)
	}

	return count > 0, nil
}

func (s *Storage) InsertAuditEvent(ctx context.Context, event *types.AuditEvent) error {
	ctx, span := s.tracer.Start(ctx, "storage.Storage.InsertAuditEvent")
	defer span.End()

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate audit event ID: %w", err)
	}

	_, err = s.db.Statement(ctx).
		Insert("audit_events").
		Columns("id", "org_id", "actor_id", "kind", "request_id", "detail").
		Values(id.String(), event.OrgID, event.ActorID, event.Kind, event.RequestID, event.Detail).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}
