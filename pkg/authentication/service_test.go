// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package authentication

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/storage"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
)

const testPassword = "correct horse battery staple"

type fakeStore struct {
	mu sync.Mutex

	accounts    map[string]*types.Account
	members     map[string]*types.Member
	orgs        map[string]*types.Organization
	revocations []*types.ImpersonationRevocation

	accountReads int
	memberReads  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: map[string]*types.Account{},
		members:  map[string]*types.Member{},
		orgs:     map[string]*types.Organization{},
	}
}

func (f *fakeStore) GetAccountByID(ctx context.Context, id string) (*types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountReads++
	for _, a := range f.accounts {
		if a.ID == id {
			copied := *a
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) GetAccountByEmail(ctx context.Context, email string) (*types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[email]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeStore) IncrementLoginFailures(ctx context.Context, accountID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.ID == accountID {
			a.FailedAttempts++
			return a.FailedAttempts, nil
		}
	}
	return 0, storage.ErrNotFound
}

func (f *fakeStore) LockAccount(ctx context.Context, accountID string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.ID == accountID {
			a.LockedUntil = &until
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) ResetLoginFailures(ctx context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.ID == accountID {
			a.FailedAttempts = 0
			a.LockedUntil = nil
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.ID == accountID {
			a.PasswordHash = passwordHash
			a.PasswordChangedAt = time.Now()
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) GetOrganizationBySlug(ctx context.Context, slug string) (*types.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orgs {
		if o.Slug == slug {
			return o, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) GetMemberByID(ctx context.Context, id string) (*types.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberReads++
	m, ok := f.members[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeStore) GetMemberByAccountAndOrg(ctx context.Context, accountID, orgID string) (*types.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.AccountID != nil && *m.AccountID == accountID && m.OrgID == orgID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) GetOldestMembershipByAccount(ctx context.Context, accountID string) (*types.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *types.Member
	for _, m := range f.members {
		if m.AccountID == nil || *m.AccountID != accountID || !m.Active {
			continue
		}
		if oldest == nil || m.CreatedAt.Before(oldest.CreatedAt) {
			oldest = m
		}
	}
	if oldest == nil {
		return nil, storage.ErrNotFound
	}
	copied := *oldest
	return &copied, nil
}

func (f *fakeStore) CreateRevocation(ctx context.Context, rev *types.ImpersonationRevocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revocations = append(f.revocations, rev)
	return nil
}

func (f *fakeStore) IsRevoked(ctx context.Context, delegationID, delegatorID string, issuedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.revocations {
		if r.DelegationID != nil && *r.DelegationID == delegationID {
			return true, nil
		}
		if r.DelegationID == nil && r.DelegatorID == delegatorID &&
			r.IssuedBefore != nil && !r.IssuedBefore.Before(issuedAt) {
			return true, nil
		}
	}
	return false, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []*types.AuditEvent
}

func (f *fakeRecorder) Record(event *types.AuditEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeRecorder) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]string, len(f.events))
	for i, e := range f.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func testConfig() Config {
	return Config{
		SigningKey:            []byte("test-signing-key-0123456789abcdef"),
		SessionLifetime:       12 * time.Hour,
		RevalidateEach:        3 * time.Minute,
		LoginFailureThreshold: 5,
		LoginLockoutWindow:    15 * time.Minute,
	}
}

func newTestService(t *testing.T, store *fakeStore) (*Service, *fakeRecorder) {
	t.Helper()

	recorder := &fakeRecorder{}
	svc := NewService(store, recorder, testConfig(),
		tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger())

	return svc, recorder
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return string(hash)
}

func seedAccount(t *testing.T, store *fakeStore) *types.Account {
	t.Helper()
	account := &types.Account{
		ID:           "acct-1",
		Email:        "alice@example.com",
		Name:         "Alice",
		PasswordHash: hashPassword(t, testPassword),
		Active:       true,
	}
	store.accounts[account.Email] = account
	return account
}

func seedMember(store *fakeStore, id, orgID, accountID string, createdAt time.Time, flags types.RoleFlags) *types.Member {
	member := &types.Member{
		ID:               id,
		OrgID:            orgID,
		AccountID:        &accountID,
		Email:            "alice@example.com",
		Owner:            flags.Owner,
		Admin:            flags.Admin,
		DepartmentAccess: flags.DepartmentAccess,
		Approver:         flags.Approver,
		Active:           true,
		CreatedAt:        createdAt,
	}
	store.members[id] = member
	return member
}

func TestLoginSelectsRequestedOrganization(t *testing.T) {
	store := newFakeStore()
	account := seedAccount(t, store)
	store.orgs["org-a"] = &types.Organization{ID: "org-a", Slug: "acme", Enabled: true}
	seedMember(store, "member-1", "org-a", account.ID, time.Now(), types.RoleFlags{Admin: true})

	svc, recorder := newTestService(t, store)

	token, principal, err := svc.Login(context.Background(), account.Email, testPassword, "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Error("expected a session token")
	}
	if principal.Kind != KindMember || principal.OrgID != "org-a" || principal.MemberID != "member-1" {
		t.Errorf("unexpected principal: %+v", principal)
	}
	if !principal.Flags.Admin {
		t.Error("expected admin flag from membership")
	}
	if kinds := recorder.kinds(); len(kinds) != 1 || kinds[0] != "login_succeeded" {
		t.Errorf("unexpected audit events: %v", kinds)
	}
}

func TestLoginFallsBackToOldestMembership(t *testing.T) {
	store := newFakeStore()
	account := seedAccount(t, store)
	seedMember(store, "member-new", "org-b", account.ID, time.Now(), types.RoleFlags{})
	seedMember(store, "member-old", "org-a", account.ID, time.Now().Add(-24*time.Hour), types.RoleFlags{})

	svc, _ := newTestService(t, store)

	_, principal, err := svc.Login(context.Background(), account.Email, testPassword, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if principal.MemberID != "member-old" {
		t.Errorf("expected oldest membership, got %s", principal.MemberID)
	}
}

func TestLoginWithoutMembershipsIsPlatformSession(t *testing.T) {
	store := newFakeStore()
	account := seedAccount(t, store)
	account.SuperAdmin = true

	svc, _ := newTestService(t, store)

	_, principal, err := svc.Login(context.Background(), account.Email, testPassword, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if principal.Kind != KindPlatform {
		t.Errorf("expected platform principal, got %s", principal.Kind)
	}
	if !principal.Flags.SuperAdmin {
		t.Error("expected super admin flag")
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := newTestService(t, newFakeStore())

	_, _, err := svc.Login(context.Background(), "ghost@example.com", "whatever", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginLockoutAfterThreshold(t *testing.T) {
	store := newFakeStore()
	account := seedAccount(t, store)

	svc, recorder := newTestService(t, store)

	// Four failures stay plain invalid-credential errors.
	for i := 0; i < 4; i++ {
		_, _, err := svc.Login(context.Background(), account.Email, "wrong", "")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// The fifth crosses the threshold and locks the account.
	_, _, err := svc.Login(context.Background(), account.Email, "wrong", "")
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if remaining := locked.Remaining(time.Now()); remaining <= 0 || remaining > 15*time.Minute {
		t.Errorf("unexpected cooldown remaining: %v", remaining)
	}

	// Even the correct password is rejected while locked.
	_, _, err = svc.Login(context.Background(), account.Email, testPassword, "")
	if !errors.As(err, &locked) {
		t.Errorf("expected LockedError with correct password, got %v", err)
	}

	found := false
	for _, kind := range recorder.kinds() {
		if kind == "account_locked" {
			found = true
		}
	}
	if !found {
		t.Error("expected an account_locked audit event")
	}
}

func TestLoginResetsFailuresAfterSuccess(t *testing.T) {
	store := newFakeStore()
	account := seedAccount(t, store)
	account.FailedAttempts = 3

	svc, _ := newTestService(t, store)

	if _, _, err := svc.Login(context.Background(), account.Email, testPassword, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.accounts[account.Email].FailedAttempts != 0 {
		t.Error("expected failure counter to reset")
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	store := newFakeStore()
	account := seedAccount(t, store)
	account.Active = false

	svc, _ := newTestService(t, store)

	_, _, err := svc.Login(context.Background(), account.Email, testPassword, "")
	if !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestResolveFreshTokenSkipsDatabase(t *testing.T) {
	store := newFakeStore()
	account := seedAccount(t, store)
	seedMember(store, "member-1", "org-a", account.ID, time.Now(), types.RoleFlags{})

	svc, _ := newTestService(t, store)

	token, _, err := svc.Login(context.Background(), account.Email, testPassword, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reads := store.accountReads
	principal, rotated, err := svc.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rotated != "" {
		t.Error("fresh token should not rotate")
	}
	if principal.MemberID != "member-1" {
		t.Errorf("unexpected principal: %+v", principal)
	}
	if store.accountReads != reads {
		t.Error("fresh token must not hit the database")
	}
}

func TestResolveRevalidatesStaleSnapshot(t *testing.T) {
	store := newFakeStore()
	account := seedAccount(t, store)
	seedMember(store, "member-1", "org-a", account.ID, time.Now(), types.RoleFlags{Approver: true})

	svc, _ := newTestService(t, store)

	token, _, err := svc.Login(context.Background(), account.Email, testPassword, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The approver capability is withdrawn after issuance.
	store.members["member-1"].Approver = false

	// Move past the revalidation cadence.
	svc.now = func() time.Time { return time.Now().Add(4 * time.Minute) }

	principal, rotated, err := svc.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rotated == "" {
		t.Fatal("expected a rotated token after revalidation")
	}
	if principal.Flags.Approver {
		t.Error("expected withdrawn capability to disappear after revalidation")
	}

	// The rotated token carries the fresh snapshot timestamp: resolving
	// it again within the cadence is database-free.
	reads := store.accountReads
	if _, _, err := svc.Resolve(context.Background(), rotated); err != nil {
		t.Fatalf("unexpected error resolving rotated token: %v", err)
	}
	if store.accountReads != reads {
		t.Error("rotated token should not revalidate again within the cadence")
	}
}

func TestResolveInvalidatesOnPasswordChange(t *testing.T) {
	store := newFakeStore()
	account := seedAccount(t, store)
	seedMember(store, "member-1", "org-a", account.ID, time.Now(), types.RoleFlags{})

	svc, _ := newTestService(t, store)

	token, _, err := svc.Login(context.Background(), account.Email, testPassword, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.accounts[account.Email].PasswordChangedAt = time.Now().Add(time.Minute)
	svc.now = func() time.Time { return time.Now().Add(4 * time.Minute) }

	_, _, err = svc.Resolve(context.Background(), token)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired after password change, got %v", err)
	}
}

func TestResolveInvalidatesDisabledAccount(t *testing.T) {
	store := newFakeStore()
	account := seedAccount(t, store)
	seedMember(store, "member-1", "org-a", account.ID, time.Now(), types.RoleFlags{})

	svc, _ := newTestService(t, store)

	token, _, err := svc.Login(context.Background(), account.Email, testPassword, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.accounts[account.Email].Active = false
	svc.now = func() time.Time { return time.Now().Add(4 * time.Minute) }

	_, _, err = svc.Resolve(context.Background(), token)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired for disabled account, got %v", err)
	}
}

func TestResolveRejectsTamperedToken(t *testing.T) {
	store := newFakeStore()
	account := seedAccount(t, store)

	svc, _ := newTestService(t, store)

	token, _, err := svc.Login(context.Background(), account.Email, testPassword, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err = svc.Resolve(context.Background(), token+"x")
	if !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestImpersonationLifecycle(t *testing.T) {
	store := newFakeStore()
	seedMember(store, "member-1", "org-a", "acct-other", time.Now(), types.RoleFlags{Admin: true})

	svc, recorder := newTestService(t, store)

	operator := &Principal{
		Kind:      KindPlatform,
		AccountID: "op-1",
		Flags:     types.RoleFlags{SuperAdmin: true},
	}

	token, delegated, err := svc.Impersonate(context.Background(), operator, "member-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !delegated.Impersonated() {
		t.Fatal("expected a delegation id on the principal")
	}
	if delegated.Flags.SuperAdmin {
		t.Error("delegated session must not inherit super admin")
	}

	// The delegated token resolves while unrevoked.
	principal, _, err := svc.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if principal.MemberID != "member-1" || principal.DelegatorID != "op-1" {
		t.Errorf("unexpected principal: %+v", principal)
	}

	// Point revocation blocks it on the very next request.
	if err := svc.RevokeDelegation(context.Background(), operator, delegated.DelegationID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, err = svc.Resolve(context.Background(), token)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired after revocation, got %v", err)
	}

	var blocked bool
	for _, kind := range recorder.kinds() {
		if kind == "impersonation_blocked" {
			blocked = true
		}
	}
	if !blocked {
		t.Error("expected an impersonation_blocked audit event")
	}
}

func TestBulkRevocationByCutoff(t *testing.T) {
	store := newFakeStore()
	seedMember(store, "member-1", "org-a", "acct-other", time.Now(), types.RoleFlags{})

	svc, _ := newTestService(t, store)

	operator := &Principal{
		Kind:      KindPlatform,
		AccountID: "op-1",
		Flags:     types.RoleFlags{SuperAdmin: true},
	}

	token, _, err := svc.Impersonate(context.Background(), operator, "member-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Sweep everything the operator issued up to now.
	if err := svc.RevokeAllIssuedBefore(context.Background(), operator, "op-1", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err = svc.Resolve(context.Background(), token)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired after bulk revocation, got %v", err)
	}
}

func TestImpersonateRequiresOperator(t *testing.T) {
	svc, _ := newTestService(t, newFakeStore())

	member := &Principal{Kind: KindMember, AccountID: "acct-1", MemberID: "member-1", Flags: types.RoleFlags{Owner: true}}
	_, _, err := svc.Impersonate(context.Background(), member, "member-2")
	if !errors.Is(err, ErrNotOperator) {
		t.Errorf("expected ErrNotOperator, got %v", err)
	}
}

func TestChangePasswordInvalidatesOldSessions(t *testing.T) {
	store := newFakeStore()
	account := seedAccount(t, store)

	svc, _ := newTestService(t, store)

	token, _, err := svc.Login(context.Background(), account.Email, testPassword, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.ChangePassword(context.Background(), account.ID, testPassword, "a much longer new password"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(4 * time.Minute) }
	_, _, err = svc.Resolve(context.Background(), token)
	if !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired after password change, got %v", err)
	}
}
