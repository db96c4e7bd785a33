// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/crewos/crew-service/internal/types"
)

// LeaveRepo accesses leave requests through a tenant scope.
type LeaveRepo struct {
	scope *Scope
}

const leaveColumns = "id, org_id, member_id, kind, starts_on, ends_on, status, approved_by, decided_at, created_at"

func scanLeave(row sq.RowScanner) (*types.LeaveRequest, error) {
	var l types.LeaveRequest
	err := row.Scan(&l.ID, &l.OrgID, &l.MemberID, &l.Kind, &l.StartsOn, &l.EndsOn,
		&l.Status, &l.ApprovedBy, &l.DecidedAt, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LeaveRepo) Create(ctx context.Context, req *types.LeaveRequest) (*types.LeaveRequest, error) {
	ctx, span := r.scope.tracer.Start(ctx, "storage.LeaveRepo.Create")
	defer span.End()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate leave request ID: %w", err)
	}

	row := map[string]interface{}{
		"id":        id.String(),
		"member_id": req.MemberID,
		"kind":      req.Kind,
		"starts_on": req.StartsOn,
		"ends_on":   req.EndsOn,
		"status":    types.LeaveStatusPending,
	}

	created, err := scanLeave(r.scope.Insert(ctx, TableLeaveRequests, row).
		Suffix("RETURNING " + leaveColumns).
		QueryRowContext(ctx))

	if err != nil {
		if IsForeignKeyViolation(err) {
			return nil, WrapForeignKeyError(err, "member does not exist")
		}
		return nil, fmt.Errorf("failed to insert leave request: %w", err)
	}

	return created, nil
}

func (r *LeaveRepo) GetByID(ctx context.Context, id string) (*types.LeaveRequest, error) {
	ctx, span := r.scope.tracer.Start(ctx, "storage.LeaveRepo.GetByID")
	defer span.End()

	l, err := scanLeave(r.scope.db.Statement(ctx).
		Select("id", "org_id", "member_id", "kind", "starts_on", "ends_on",
			"status", "approved_by", "decided_at", "created_at").
		From(string(TableLeaveRequests)).
		Where(sq.Eq{"id": id}).
		QueryRowContext(ctx))

	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get leave request: %w", err)
	}

	if l.OrgID != r.scope.orgID {
		return nil, ErrNotFound
	}

	return l, nil
}

func (r *LeaveRepo) List(ctx context.Context, memberID, status string) ([]*types.LeaveRequest, error) {
	ctx, span := r.scope.tracer.Start(ctx, "storage.LeaveRepo.List")
	defer span.End()

	query := r.scope.Select(ctx, TableLeaveRequests,
		"id", "org_id", "member_id", "kind", "starts_on", "ends_on",
		"status", "approved_by", "decided_at", "created_at").
		OrderBy("created_at DESC")

	if memberID != "" {
		query = query.Where(sq.Eq{"member_id": memberID})
	}
	if status != "" {
		query = query.Where(sq.Eq{"status": status})
	}

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list leave requests: %w", err)
	}
	defer rows.Close()

	var requests []*types.LeaveRequest
	for rows.Next() {
		var l types.LeaveRequest
		if err := rows.Scan(&l.ID, &l.OrgID, &l.MemberID, &l.Kind, &l.StartsOn, &l.EndsOn,
			&l.Status, &l.ApprovedBy, &l.DecidedAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan leave request: %w", err)
		}
		requests = append(requests, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return requests, nil
}

// Decide transitions a pending request. Zero affected rows covers both an
// org mismatch and an already-decided request; callers see ErrNotFound.
func (r *LeaveRepo) Decide(ctx context.Context, id, status, deciderID string) error {
	ctx, span := r.scope.tracer.Start(ctx, "storage.LeaveRepo.Decide")
	defer span.End()

	res, err := r.scope.Update(ctx, TableLeaveRequests).
		Set("status", status).
		Set("approved_by", deciderID).
		Set("decided_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "status": types.LeaveStatusPending}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to decide leave request: %w", err)
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

func (r *LeaveRepo) CountByStatus(ctx context.Context, status string) (int64, error) {
	ctx, span := r.scope.tracer.Start(ctx, "storage.LeaveRepo.CountByStatus")
	defer span.End()

	var count int64
	err := r.scope.Count(ctx, TableLeaveRequests).
		Where(sq.Eq{"status": status}).
		QueryRowContext(ctx).
		Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count leave requests: %w", err)
	}

	return count, nil
}
