// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package authentication owns the session lifecycle: credential login
// with lockout, signed session tokens, cadence-bound revalidation of
// capability flags, and revocable impersonation grants.
package authentication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/crewos/crew-service/internal/audit"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/storage"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
)

type StorageInterface interface {
	GetAccountByID(ctx context.Context, id string) (*types.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*types.Account, error)
	IncrementLoginFailures(ctx context.Context, accountID string) (int, error)
	LockAccount(ctx context.Context, accountID string, until time.Time) error
	ResetLoginFailures(ctx context.Context, accountID string) error
	UpdatePassword(ctx context.Context, accountID, passwordHash string) error
	GetOrganizationBySlug(ctx context.Context, slug string) (*types.Organization, error)
	GetMemberByID(ctx context.Context, id string) (*types.Member, error)
	GetMemberByAccountAndOrg(ctx context.Context, accountID, orgID string) (*types.Member, error)
	GetOldestMembershipByAccount(ctx context.Context, accountID string) (*types.Member, error)
	CreateRevocation(ctx context.Context, rev *types.ImpersonationRevocation) error
	IsRevoked(ctx context.Context, delegationID, delegatorID string, issuedAt time.Time) (bool, error)
}

type RecorderInterface interface {
	Record(event *types.AuditEvent)
}

// Config carries the session policy knobs.
type Config struct {
	SigningKey      []byte
	SessionLifetime time.Duration
	// RevalidateEach bounds how stale the capability snapshot in a token
	// may get before it must be checked against the database again.
	RevalidateEach time.Duration

	LoginFailureThreshold int
	LoginLockoutWindow    time.Duration
}

type sessionClaims struct {
	jwt.RegisteredClaims

	Kind     string          `json:"kind"`
	OrgID    string          `json:"org,omitempty"`
	MemberID string          `json:"member,omitempty"`
	Email    string          `json:"email,omitempty"`
	Flags    types.RoleFlags `json:"flags"`

	// RevalidatedAt is the unix time the flags snapshot was last checked
	// against the database.
	RevalidatedAt int64 `json:"rev"`

	DelegationID string `json:"delegation_id,omitempty"`
	DelegatorID  string `json:"delegator_id,omitempty"`
}

type Service struct {
	store    StorageInterface
	recorder RecorderInterface
	config   Config

	// now is swapped in tests.
	now func() time.Time

	tracer  tracing.TracingInterface
	monitor monitoring.MonitorInterface
	logger  logging.LoggerInterface
}

func NewService(
	store StorageInterface,
	recorder RecorderInterface,
	config Config,
	tracer tracing.TracingInterface,
	monitor monitoring.MonitorInterface,
	logger logging.LoggerInterface,
) *Service {
	s := new(Service)

	s.store = store
	s.recorder = recorder
	s.config = config
	s.now = time.Now

	s.tracer = tracer
	s.monitor = monitor
	s.logger = logger

	return s
}

// Login exchanges credentials for a session token. The platform account
// is the single source of truth for password and lockout state; tenant
// selection happens afterwards: the named organization slug if given,
// otherwise the account's oldest active membership, otherwise a
// platform-level session.
func (s *Service) Login(ctx context.Context, email, password, orgSlug string) (string, *Principal, error) {
	ctx, span := s.tracer.Start(ctx, "authentication.Service.Login")
	defer span.End()

	account, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Burn a hash comparison so unknown emails cost the same as
			// wrong passwords.
			_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"), []byte(password))
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	if !account.Active {
		s.logger.Security().AuthnFailure(account.ID, "account disabled")
		return "", nil, ErrAccountDisabled
	}

	if account.LockedUntil != nil && account.LockedUntil.After(s.now()) {
		s.logger.Security().AuthnFailure(account.ID, "account locked")
		return "", nil, &LockedError{Until: *account.LockedUntil}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", nil, s.handleFailedAttempt(ctx, account)
	}

	if account.FailedAttempts > 0 || account.LockedUntil != nil {
		if err := s.store.ResetLoginFailures(ctx, account.ID); err != nil {
			s.logger.Errorf("failed to reset login failures for %s: %v", account.ID, err)
		}
	}

	principal, err := s.selectTenant(ctx, account, orgSlug)
	if err != nil {
		return "", nil, err
	}

	token, err := s.issueToken(principal)
	if err != nil {
		return "", nil, err
	}

	s.recorder.Record(&types.AuditEvent{
		ActorID: account.ID,
		Kind:    audit.KindLoginSucceeded,
		Detail:  fmt.Sprintf("kind=%s org=%s", principal.Kind, principal.OrgID),
	})

	return token, principal, nil
}

func (s *Service) handleFailedAttempt(ctx context.Context, account *types.Account) error {
	s.logger.Security().AuthnFailure(account.ID, "wrong password")
	s.recorder.Record(&types.AuditEvent{
		ActorID: account.ID,
		Kind:    audit.KindLoginFailed,
	})

	attempts, err := s.store.IncrementLoginFailures(ctx, account.ID)
	if err != nil {
		s.logger.Errorf("failed to increment login failures for %s: %v", account.ID, err)
		return ErrInvalidCredentials
	}

	if attempts < s.config.LoginFailureThreshold {
		return ErrInvalidCredentials
	}

	until := s.now().Add(s.config.LoginLockoutWindow)
	if err := s.store.LockAccount(ctx, account.ID, until); err != nil {
		s.logger.Errorf("failed to lock account %s: %v", account.ID, err)
		return ErrInvalidCredentials
	}

	s.logger.Security().AccountLocked(account.ID)
	s.recorder.Record(&types.AuditEvent{
		ActorID: account.ID,
		Kind:    audit.KindAccountLocked,
		Detail:  fmt.Sprintf("attempts=%d until=%s", attempts, until.Format(time.RFC3339)),
	})

	return &LockedError{Until: until}
}

func (s *Service) selectTenant(ctx context.Context, account *types.Account, orgSlug string) (*Principal, error) {
	if orgSlug != "" {
		org, err := s.store.GetOrganizationBySlug(ctx, orgSlug)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrNoMembership
			}
			return nil, fmt.Errorf("failed to resolve organization: %w", err)
		}

		member, err := s.store.GetMemberByAccountAndOrg(ctx, account.ID, org.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrNoMembership
			}
			return nil, fmt.Errorf("failed to resolve membership: %w", err)
		}
		if !member.Active {
			return nil, ErrNoMembership
		}

		return s.memberPrincipal(account, member), nil
	}

	member, err := s.store.GetOldestMembershipByAccount(ctx, account.ID)
	if err == nil {
		return s.memberPrincipal(account, member), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to resolve membership: %w", err)
	}

	// No memberships anywhere: a platform-level session.
	return &Principal{
		Kind:      KindPlatform,
		AccountID: account.ID,
		Email:     account.Email,
		Flags:     types.RoleFlags{SuperAdmin: account.SuperAdmin},
	}, nil
}

func (s *Service) memberPrincipal(account *types.Account, member *types.Member) *Principal {
	return &Principal{
		Kind:      KindMember,
		AccountID: account.ID,
		MemberID:  member.ID,
		OrgID:     member.OrgID,
		Email:     member.Email,
		Flags: types.RoleFlags{
			Owner:            member.Owner,
			Admin:            member.Admin,
			DepartmentAccess: member.DepartmentAccess,
			Approver:         member.Approver,
			SuperAdmin:       account.SuperAdmin,
		},
	}
}

func (s *Service) issueToken(p *Principal) (string, error) {
	sessionID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	if p.SessionID == "" {
		p.SessionID = sessionID.String()
		p.IssuedAt = now
	}

	claims := &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.AccountID,
			ID:        p.SessionID,
			IssuedAt:  jwt.NewNumericDate(p.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(p.IssuedAt.Add(s.config.SessionLifetime)),
		},
		Kind:          string(p.Kind),
		OrgID:         p.OrgID,
		MemberID:      p.MemberID,
		Email:         p.Email,
		Flags:         p.Flags,
		RevalidatedAt: now.Unix(),
		DelegationID:  p.DelegationID,
		DelegatorID:   p.DelegatorID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.SigningKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return token, nil
}

// Resolve validates a raw session token and returns the acting
// principal. When the capability snapshot is older than the revalidation
// cadence it is re-checked against the database and a replacement token
// with fresh flags is returned; the caller must hand it back to the
// client. Impersonation sessions are checked against the revocation list
// on every call.
func (s *Service) Resolve(ctx context.Context, rawToken string) (*Principal, string, error) {
	ctx, span := s.tracer.Start(ctx, "authentication.Service.Resolve")
	defer span.End()

	claims, err := s.parseToken(rawToken)
	if err != nil {
		return nil, "", err
	}

	p := &Principal{
		Kind:         PrincipalKind(claims.Kind),
		AccountID:    claims.Subject,
		MemberID:     claims.MemberID,
		OrgID:        claims.OrgID,
		Email:        claims.Email,
		Flags:        claims.Flags,
		SessionID:    claims.ID,
		IssuedAt:     claims.IssuedAt.Time,
		DelegationID: claims.DelegationID,
		DelegatorID:  claims.DelegatorID,
	}

	if p.Impersonated() {
		if err := s.checkDelegation(ctx, p); err != nil {
			return nil, "", err
		}
	}

	if s.now().Unix()-claims.RevalidatedAt < int64(s.config.RevalidateEach.Seconds()) {
		return p, "", nil
	}

	refreshed, err := s.revalidate(ctx, p)
	if err != nil {
		return nil, "", err
	}

	rotated, err := s.issueToken(refreshed)
	if err != nil {
		return nil, "", err
	}

	return refreshed, rotated, nil
}

func (s *Service) parseToken(rawToken string) (*sessionClaims, error) {
	claims := new(sessionClaims)

	_, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.config.SigningKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionInvalid
	}

	if claims.Subject == "" || claims.ID == "" || claims.IssuedAt == nil {
		return nil, ErrSessionInvalid
	}

	return claims, nil
}

// revalidate re-reads the underlying records. A disabled or deleted
// account, a password changed after issuance, or a deactivated
// membership all invalidate the session immediately.
func (s *Service) revalidate(ctx context.Context, p *Principal) (*Principal, error) {
	account, err := s.store.GetAccountByID(ctx, p.AccountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to revalidate account: %w", err)
	}

	if !account.Active {
		return nil, ErrSessionExpired
	}
	if account.PasswordChangedAt.After(p.IssuedAt) {
		return nil, ErrSessionExpired
	}

	if p.Kind != KindMember {
		p.Flags = types.RoleFlags{SuperAdmin: account.SuperAdmin}
		return p, nil
	}

	member, err := s.store.GetMemberByID(ctx, p.MemberID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to revalidate membership: %w", err)
	}
	if !member.Active || member.OrgID != p.OrgID {
		return nil, ErrSessionExpired
	}

	p.Flags = types.RoleFlags{
		Owner:            member.Owner,
		Admin:            member.Admin,
		DepartmentAccess: member.DepartmentAccess,
		Approver:         member.Approver,
		SuperAdmin:       account.SuperAdmin,
	}

	return p, nil
}

func (s *Service) checkDelegation(ctx context.Context, p *Principal) error {
	revoked, err := s.store.IsRevoked(ctx, p.DelegationID, p.DelegatorID, p.IssuedAt)
	if err != nil {
		return fmt.Errorf("failed to check delegation revocations: %w", err)
	}
	if !revoked {
		return nil
	}

	s.logger.Security().ImpersonationBlocked(p.DelegationID, p.DelegatorID)
	s.recorder.Record(&types.AuditEvent{
		OrgID:   &p.OrgID,
		ActorID: p.DelegatorID,
		Kind:    audit.KindImpersonationBlocked,
		Detail:  fmt.Sprintf("delegation=%s member=%s", p.DelegationID, p.MemberID),
	})

	return ErrSessionExpired
}

// Impersonate issues a delegated member session on behalf of a platform
// operator. The grant carries a unique delegation id and the issue time,
// so it can be revoked individually or swept by operator and cutoff.
func (s *Service) Impersonate(ctx context.Context, operator *Principal, memberID string) (string, *Principal, error) {
	ctx, span := s.tracer.Start(ctx, "authentication.Service.Impersonate")
	defer span.End()

	if operator.Kind != KindPlatform || !operator.Flags.SuperAdmin {
		return "", nil, ErrNotOperator
	}

	member, err := s.store.GetMemberByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil, ErrNoMembership
		}
		return "", nil, fmt.Errorf("failed to resolve member: %w", err)
	}
	if !member.Active {
		return "", nil, ErrNoMembership
	}

	delegationID, err := uuid.NewV7()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate delegation ID: %w", err)
	}

	p := &Principal{
		Kind:      KindMember,
		AccountID: operator.AccountID,
		MemberID:  member.ID,
		OrgID:     member.OrgID,
		Email:     member.Email,
		Flags: types.RoleFlags{
			Owner:            member.Owner,
			Admin:            member.Admin,
			DepartmentAccess: member.DepartmentAccess,
			Approver:         member.Approver,
		},
		DelegationID: delegationID.String(),
		DelegatorID:  operator.AccountID,
	}

	token, err := s.issueToken(p)
	if err != nil {
		return "", nil, err
	}

	s.recorder.Record(&types.AuditEvent{
		OrgID:   &member.OrgID,
		ActorID: operator.AccountID,
		Kind:    audit.KindImpersonationIssued,
		Detail:  fmt.Sprintf("delegation=%s member=%s", p.DelegationID, member.ID),
	})

	return token, p, nil
}

// RevokeDelegation blocks a single impersonation grant by its id.
func (s *Service) RevokeDelegation(ctx context.Context, operator *Principal, delegationID string) error {
	ctx, span := s.tracer.Start(ctx, "authentication.Service.RevokeDelegation")
	defer span.End()

	if operator.Kind != KindPlatform || !operator.Flags.SuperAdmin {
		return ErrNotOperator
	}

	err := s.store.CreateRevocation(ctx, &types.ImpersonationRevocation{
		DelegationID: &delegationID,
		DelegatorID:  operator.AccountID,
	})
	if err != nil {
		return fmt.Errorf("failed to record revocation: %w", err)
	}

	s.recorder.Record(&types.AuditEvent{
		ActorID: operator.AccountID,
		Kind:    audit.KindImpersonationRevoked,
		Detail:  fmt.Sprintf("delegation=%s", delegationID),
	})

	return nil
}

// RevokeAllIssuedBefore blocks every grant the delegator issued at or
// before the cutoff.
func (s *Service) RevokeAllIssuedBefore(ctx context.Context, operator *Principal, delegatorID string, cutoff time.Time) error {
	ctx, span := s.tracer.Start(ctx, "authentication.Service.RevokeAllIssuedBefore")
	defer span.End()

	if operator.Kind != KindPlatform || !operator.Flags.SuperAdmin {
		return ErrNotOperator
	}

	err := s.store.CreateRevocation(ctx, &types.ImpersonationRevocation{
		DelegatorID:  delegatorID,
		IssuedBefore: &cutoff,
	})
	if err != nil {
		return fmt.Errorf("failed to record bulk revocation: %w", err)
	}

	s.recorder.Record(&types.AuditEvent{
		ActorID: operator.AccountID,
		Kind:    audit.KindImpersonationRevoked,
		Detail:  fmt.Sprintf("delegator=%s issued_before=%s", delegatorID, cutoff.Format(time.RFC3339)),
	})

	return nil
}

// ChangePassword verifies the current password before writing the new
// hash. Sessions issued before the change fail their next revalidation.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	ctx, span := s.tracer.Start(ctx, "authentication.Service.ChangePassword")
	defer span.End()

	account, err := s.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to resolve account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.store.UpdatePassword(ctx, accountID, string(hash))
}
