// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package types

import (
	"time"
)

// Organization is the tenant record. Every tenant-owned row carries its ID
// in an org_id column.
type Organization struct {
	ID                  string    `db:"id" json:"id"`
	Slug                string    `db:"slug" json:"slug"`
	Name                string    `db:"name" json:"name"`
	Enabled             bool      `db:"enabled" json:"enabled"`
	Tier                string    `db:"tier" json:"tier"`
	Modules             []string  `db:"modules" json:"modules"`
	AllowedAuthMethods  []string  `db:"allowed_auth_methods" json:"allowed_auth_methods"`
	AllowedEmailDomains []string  `db:"allowed_email_domains" json:"allowed_email_domains"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// Account is a platform-level identity. It is the single source of truth
// for credentials and lockout state; tenant-scoped authorization always
// goes through a Member record instead.
type Account struct {
	ID                string     `db:"id" json:"id"`
	Email             string     `db:"email" json:"email"`
	Name              string     `db:"name" json:"name"`
	PasswordHash      string     `db:"password_hash" json:"-"`
	SuperAdmin        bool       `db:"super_admin" json:"super_admin"`
	Active            bool       `db:"active" json:"active"`
	FailedAttempts    int        `db:"failed_attempts" json:"-"`
	LockedUntil       *time.Time `db:"locked_until" json:"-"`
	PasswordChangedAt time.Time  `db:"password_changed_at" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// Member is an organization membership, optionally linked back to a
// platform Account for shared login identity.
type Member struct {
	ID               string    `db:"id" json:"id"`
	OrgID            string    `db:"org_id" json:"org_id"`
	AccountID        *string   `db:"account_id" json:"account_id"`
	Email            string    `db:"email" json:"email"`
	Name             string    `db:"name" json:"name"`
	Owner            bool      `db:"owner" json:"owner"`
	Admin            bool      `db:"admin" json:"admin"`
	DepartmentAccess bool      `db:"department_access" json:"department_access"`
	Approver         bool      `db:"approver" json:"approver"`
	Department       string    `db:"department" json:"department"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// RoleFlags is the capability snapshot carried in session tokens and
// revalidated against the Member record on a fixed cadence.
type RoleFlags struct {
	Owner            bool `json:"owner"`
	Admin            bool `json:"admin"`
	DepartmentAccess bool `json:"department_access"`
	Approver         bool `json:"approver"`
	SuperAdmin       bool `json:"super_admin"`
}

// ImpersonationRevocation blocks delegated tokens: either one token by its
// delegation ID, or every token a delegator issued at or before a cutoff.
type ImpersonationRevocation struct {
	ID           string     `db:"id"`
	DelegationID *string    `db:"delegation_id"`
	DelegatorID  string     `db:"delegator_id"`
	IssuedBefore *time.Time `db:"issued_before"`
	CreatedAt    time.Time  `db:"created_at"`
}

// AuditEvent is an append-only security event row.
type AuditEvent struct {
	ID        string    `db:"id" json:"id"`
	OrgID     *string   `db:"org_id" json:"org_id"`
	ActorID   string    `db:"actor_id" json:"actor_id"`
	Kind      string    `db:"kind" json:"kind"`
	RequestID string    `db:"request_id" json:"request_id"`
	Detail    string    `db:"detail" json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Asset is a tenant-owned business record.
type Asset struct {
	ID        string    `db:"id" json:"id"`
	OrgID     string    `db:"org_id" json:"org_id"`
	Name      string    `db:"name" json:"name"`
	Tag       string    `db:"tag" json:"tag"`
	Status    string    `db:"status" json:"status"`
	Assignee  *string   `db:"assignee_id" json:"assignee_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LeaveRequest is a tenant-owned business record with an approval flow.
type LeaveRequest struct {
	ID         string     `db:"id" json:"id"`
	OrgID      string     `db:"org_id" json:"org_id"`
	MemberID   string     `db:"member_id" json:"member_id"`
	Kind       string     `db:"kind" json:"kind"`
	StartsOn   time.Time  `db:"starts_on" json:"starts_on"`
	EndsOn     time.Time  `db:"ends_on" json:"ends_on"`
	Status     string     `db:"status" json:"status"`
	ApprovedBy *string    `db:"approved_by" json:"approved_by"`
	DecidedAt  *time.Time `db:"decided_at" json:"decided_at"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// PayrollRun is a tenant-owned business record behind the payroll module.
type PayrollRun struct {
	ID         string    `db:"id" json:"id"`
	OrgID      string    `db:"org_id" json:"org_id"`
	Period     string    `db:"period" json:"period"`
	Status     string    `db:"status" json:"status"`
	TotalCents int64     `db:"total_cents" json:"total_cents"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Statuses used by the workforce records.
const (
	LeaveStatusPending  = "pending"
	LeaveStatusApproved = "approved"
	LeaveStatusRejected = "rejected"

	PayrollStatusDraft     = "draft"
	PayrollStatusCompleted = "completed"
)
