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

// PayrollRepo accesses payroll runs through a tenant scope.
type PayrollRepo struct {
	scope *Scope
}

const payrollColumns = "id, org_id, period, status, total_cents, created_at"

func scanPayrollRun(row sq.RowScanner) (*types.PayrollRun, error) {
	var p types.PayrollRun
	err := row.Scan(&p.ID, &p.OrgID, &p.Period, &p.Status, &p.TotalCents, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PayrollRepo) Create(ctx context.Context, run *types.PayrollRun) (*types.PayrollRun, error) {
	ctx, span := r.scope.tracer.Start(ctx, "storage.PayrollRepo.Create")
	defer span.End()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate payroll run ID: %w", err)
	}

	row := map[string]interface{}{
		"id":          id.String(),
		"period":      run.Period,
		"status":      types.PayrollStatusDraft,
		"total_cents": run.TotalCents,
	}

	created, err := scanPayrollRun(r.scope.Insert(ctx, TablePayrollRuns, row).
		Suffix("RETURNING " + payrollColumns).
		QueryRowContext(ctx))

	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, WrapDuplicateKeyError(err, "payroll run already exists for period")
		}
		return nil, fmt.Errorf("failed to insert payroll run: %w", err)
	}

	return created, nil
}

func (r *PayrollRepo) GetByID(ctx context.Context, id string) (*types.PayrollRun, error) {
	ctx, span := r.scope.tracer.Start(ctx, "storage.PayrollRepo.GetByID")
	defer span.End()

	p, err := scanPayrollRun(r.scope.db.Statement(ctx).
		Select("id", "org_id", "period", "status", "total_cents", "created_at").
		From(string(TablePayrollRuns)).
		Where(sq.Eq{"id": id}).
		QueryRowContext(ctx))

	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payroll run: %w", err)
	}

	if p.OrgID != r.scope.orgID {
		return nil, ErrNotFound
	}

	return p, nil
}

func (r *PayrollRepo) List(ctx context.Context) ([]*types.PayrollRun, error) {
	ctx, span := r.scope.tracer.Start(ctx, "storage.PayrollRepo.List")
	defer span.End()

	rows, err := r.scope.Select(ctx, TablePayrollRuns,
		"id", "org_id", "period", "status", "total_cents", "created_at").
		OrderBy("period DESC").
		QueryContext(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list payroll runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.PayrollRun
	for rows.Next() {
		var p types.PayrollRun
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Period, &p.Status, &p.TotalCents, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payroll run: %w", err)
		}
		runs = append(runs, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return runs, nil
}

func (r *PayrollRepo) Complete(ctx context.Context, id string, totalCents int64) error {
	ctx, span := r.scope.tracer.Start(ctx, "storage.PayrollRepo.Complete")
	defer span.End()

	res, err := r.scope.Update(ctx, TablePayrollRuns).
		Set("status", types.PayrollStatusCompleted).
		Set("total_cents", totalCents).
		Where(sq.Eq{"id": id, "status": types.PayrollStatusDraft}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to complete payroll run: %w", err)
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
