// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package signup

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/crewos/crew-service/internal/audit"
	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/monitoring"
	"github.com/crewos/crew-service/internal/storage"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
)

type fakeStore struct {
	accounts      []*types.Account
	organizations []*types.Organization
	members       []*types.Member

	failOrganization error
}

func (f *fakeStore) CreateAccount(ctx context.Context, account *types.Account) (*types.Account, error) {
	created := *account
	created.ID = "acct-1"
	f.accounts = append(f.accounts, &created)
	return &created, nil
}

func (f *fakeStore) CreateOrganization(ctx context.Context, org *types.Organization) (*types.Organization, error) {
	if f.failOrganization != nil {
		return nil, f.failOrganization
	}
	created := *org
	created.ID = "org-1"
	f.organizations = append(f.organizations, &created)
	return &created, nil
}

func (f *fakeStore) AddMember(ctx context.Context, member *types.Member) (*types.Member, error) {
	created := *member
	created.ID = "member-1"
	f.members = append(f.members, &created)
	return &created, nil
}

type fakeRecorder struct {
	events []*types.AuditEvent
}

func (f *fakeRecorder) Record(event *types.AuditEvent) {
	f.events = append(f.events, event)
}

func newTestService(store *fakeStore, recorder *fakeRecorder) *Service {
	return NewService(store, recorder,
		tracing.NewNoopTracer(), monitoring.NewNoopMonitor(), logging.NewNoopLogger())
}

func TestRegisterProvisionsAccountOrgAndOwner(t *testing.T) {
	store := &fakeStore{}
	recorder := &fakeRecorder{}
	svc := newTestService(store, recorder)

	result, err := svc.Register(context.Background(), &Registration{
		Email:            "founder@acme.test",
		Name:             "Founder",
		Password:         "correct horse battery",
		OrganizationName: "Acme",
		Slug:             "acme",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	account := store.accounts[0]
	if !account.Active {
		t.Error("expected the account to be created active")
	}
	if account.SuperAdmin {
		t.Error("self-service accounts must not be operators")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("correct horse battery")); err != nil {
		t.Errorf("stored hash does not match the password: %v", err)
	}

	org := store.organizations[0]
	if !org.Enabled || org.Tier != defaultTier {
		t.Errorf("unexpected organization defaults: %+v", org)
	}
	for _, m := range org.Modules {
		if m == "payroll" {
			t.Error("payroll must not be enabled by default")
		}
	}

	owner := store.members[0]
	if !owner.Owner || owner.OrgID != "org-1" {
		t.Errorf("unexpected owner membership: %+v", owner)
	}
	if owner.AccountID == nil || *owner.AccountID != "acct-1" {
		t.Errorf("owner membership not linked to the account: %+v", owner)
	}

	if result.Organization.ID != "org-1" || result.Owner.ID != "member-1" {
		t.Errorf("unexpected result: %+v", result)
	}

	if len(recorder.events) != 1 || recorder.events[0].Kind != audit.KindOrganizationCreated {
		t.Errorf("expected one %s audit event, got %+v", audit.KindOrganizationCreated, recorder.events)
	}
}

func TestRegisterSlugCollision(t *testing.T) {
	store := &fakeStore{failOrganization: storage.ErrDuplicateKey}
	recorder := &fakeRecorder{}
	svc := newTestService(store, recorder)

	_, err := svc.Register(context.Background(), &Registration{
		Email:            "founder@acme.test",
		Name:             "Founder",
		Password:         "correct horse battery",
		OrganizationName: "Acme",
		Slug:             "acme",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(recorder.events) != 0 {
		t.Errorf("no audit event expected on failure, got %+v", recorder.events)
	}
	if len(store.members) != 0 {
		t.Errorf("no member should be created after a failed organization insert")
	}
}
