package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
	"github.com/jeetkatariya/experimentation-platform/internal/repository"
)

// InsertIfAbsent atomically inserts an assignment for (experiment, user)
// unless one already exists. The unique constraint arbitrates concurrent
// writers: ON CONFLICT DO NOTHING makes RETURNING yield no row for the loser,
// which then falls back to reading the winner's row. The caller always gets
// exactly one authoritative assignment.
func (r *Repository) InsertIfAbsent(ctx context.Context, params repository.InsertAssignmentParams) (*domain.Assignment, bool, error) {
	contextJSON, err := marshalJSONB(params.Context)
	if err != nil {
		return nil, false, err
	}

	assignment := domain.Assignment{
		ExperimentID: params.ExperimentID,
		VariantID:    params.VariantID,
		UserID:       params.UserID,
		Context:      params.Context,
	}

	err = r.client.DB().QueryRowContext(ctx,
		`INSERT INTO assignments (experiment_id, variant_id, user_id, context)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (experiment_id, user_id) DO NOTHING
		 RETURNING id, assigned_at`,
		params.ExperimentID, params.VariantID, params.UserID, contextJSON,
	).Scan(&assignment.ID, &assignment.AssignedAt)

	if err == nil {
		return &assignment, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert assignment: %w", err)
	}

	// A concurrent writer won the race; the persisted row is authoritative.
	existing, err := r.Find(ctx, params.ExperimentID, params.UserID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("assignment conflict for experiment %d user %q but no row found", params.ExperimentID, params.UserID)
	}

	r.log.Debug("Assignment insert lost race, returning existing row",
		zap.Int64("experiment_id", params.ExperimentID),
		zap.String("user_id", params.UserID))

	return existing, false, nil
}

// Find returns the assignment for (experiment, user), or nil when absent
func (r *Repository) Find(ctx context.Context, experimentID int64, userID string) (*domain.Assignment, error) {
	assignment, err := scanAssignment(r.client.DB().QueryRowContext(ctx,
		`SELECT id, experiment_id, variant_id, user_id, assigned_at, context
		 FROM assignments WHERE experiment_id = $1 AND user_id = $2`,
		experimentID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find assignment: %w", err)
	}
	return assignment, nil
}

// List returns a page of assignments plus the total count
func (r *Repository) List(ctx context.Context, experimentID int64, filter repository.AssignmentFilter) ([]domain.Assignment, int, error) {
	where := "WHERE experiment_id = $1"
	args := []interface{}{experimentID}
	if filter.VariantID != nil {
		args = append(args, *filter.VariantID)
		where = fmt.Sprintf("%s AND variant_id = $%d", where, len(args))
	}

	var total int
	countQuery := fmt.Sprintf("SELECT count(*) FROM assignments %s", where)
	if err := r.client.DB().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count assignments: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, experiment_id, variant_id, user_id, assigned_at, context
		 FROM assignments %s ORDER BY assigned_at DESC`, where)
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query = fmt.Sprintf("%s LIMIT $%d OFFSET $%d", query, len(args)-1, len(args))
	}

	rows, err := r.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []domain.Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, *assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate assignments: %w", err)
	}

	return assignments, total, nil
}

// CountByVariant returns persisted assignment counts keyed by variant id
func (r *Repository) CountByVariant(ctx context.Context, experimentID int64) (map[int64]int, error) {
	rows, err := r.client.DB().QueryContext(ctx,
		`SELECT variant_id, count(*) FROM assignments WHERE experiment_id = $1 GROUP BY variant_id`,
		experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count assignments by variant: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var variantID int64
		var count int
		if err := rows.Scan(&variantID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan assignment count: %w", err)
		}
		counts[variantID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignment counts: %w", err)
	}

	return counts, nil
}

func scanAssignment(row rowScanner) (*domain.Assignment, error) {
	var assignment domain.Assignment
	var contextJSON []byte

	err := row.Scan(&assignment.ID, &assignment.ExperimentID, &assignment.VariantID,
		&assignment.UserID, &assignment.AssignedAt, &contextJSON)
	if err != nil {
		return nil, err
	}

	if assignment.Context, err = unmarshalJSONB(contextJSON); err != nil {
		return nil, err
	}
	return &assignment, nil
}
