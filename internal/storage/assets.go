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

// AssetRepo accesses assets through a tenant scope.
type AssetRepo struct {
	scope *Scope
}

const assetColumns = "id, org_id, name, tag, status, assignee_id, created_at"

func scanAsset(row sq.RowScanner) (*types.Asset, error) {
	var a types.Asset
	err := row.Scan(&a.ID, &a.OrgID, &a.Name, &a.Tag, &a.Status, &a.Assignee, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssetRepo) Create(ctx context.Context, asset *types.Asset) (*types.Asset, error) {
	ctx, span := r.scope.tracer.Start(ctx, "storage.AssetRepo.Create")
	defer span.End()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate asset ID: %w", err)
	}

	row := map[string]interface{}{
		"id":          id.String(),
		"name":        asset.Name,
		"tag":         asset.Tag,
		"status":      asset.Status,
		"assignee_id": asset.Assignee,
	}

	created, err := scanAsset(r.scope.Insert(ctx, TableAssets, row).
		Suffix("RETURNING " + assetColumns).
		QueryRowContext(ctx))

	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, WrapDuplicateKeyError(err, "asset tag already in use")
		}
		return nil, fmt.Errorf("failed to insert asset: %w", err)
	}

	return created, nil
}

// GetByID fetches by primary key first and discards the result when its
// org does not match the scope, so a foreign row looks exactly like an
// absent one.
func (r *AssetRepo) GetByID(ctx context.Context, id string) (*types.Asset, error) {
	ctx, span := r.scope.tracer.Start(ctx, "storage.AssetRepo.GetByID")
	defer span.End()

	a, err := scanAsset(r.scope.db.Statement(ctx).
		Select("id", "org_id", "name", "tag", "status", "assignee_id", "created_at").
		From(string(TableAssets)).
		Where(sq.Eq{"id": id}).
		QueryRowContext(ctx))

	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	if a.OrgID != r.scope.orgID {
		return nil, ErrNotFound
	}

	return a, nil
}

func (r *AssetRepo) List(ctx context.Context, status string) ([]*types.Asset, error) {
	ctx, span := r.scope.tracer.Start(ctx, "storage.AssetRepo.List")
	defer span.End()

	query := r.scope.Select(ctx, TableAssets,
		"id", "org_id", "name", "tag", "status", "assignee_id", "created_at").
		OrderBy("created_at DESC")

	if status != "" {
		query = query.Where(sq.Eq{"status": status})
	}

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []*types.Asset
	for rows.Next() {
		var a types.Asset
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Name, &a.Tag, &a.Status, &a.Assignee, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return assets, nil
}

func (r *AssetRepo) Count(ctx context.Context) (int64, error) {
	ctx, span := r.scope.tracer.Start(ctx, "storage.AssetRepo.Count")
	defer span.End()

	var count int64
	err := r.scope.Count(ctx, TableAssets).
		QueryRowContext(ctx).
		Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count assets: %w", err)
	}

	return count, nil
}

// Update affects zero rows on an org mismatch, which is surfaced as
// ErrNotFound so existence of other tenants' assets never leaks.
func (r *AssetRepo) Update(ctx context.Context, asset *types.Asset) error {
	ctx, span := r.scope.tracer.Start(ctx, "storage.AssetRepo.Update")
	defer span.End()

	res, err := r.scope.Update(ctx, TableAssets).
		Set("name", asset.Name).
		Set("status", asset.Status).
		Set("assignee_id", asset.Assignee).
		Where(sq.Eq{"id": asset.ID}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
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

func (r *AssetRepo) Delete(ctx context.Context, id string) error {
	ctx, span := r.scope.tracer.Start(ctx, "storage.AssetRepo.Delete")
	defer span.End()

	res, err := r.scope.Delete(ctx, TableAssets).
		Where(sq.Eq{"id": id}).
		ExecContext(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
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
