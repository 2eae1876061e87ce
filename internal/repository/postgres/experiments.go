package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jeetkatariya/experimentation-platform/internal/domain"
	"github.com/jeetkatariya/experimentation-platform/internal/repository"
)

// Repository implements the experiment and assignment stores on Postgres
type Repository struct {
	client *Client
	log    *zap.Logger
}

// NewRepository creates a new Postgres repository
func NewRepository(client *Client, log *zap.Logger) *Repository {
	return &Repository{
		client: client,
		log:    log,
	}
}

// InitSchema creates the control-plane tables if they do not exist
func (r *Repository) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS experiments (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		started_at TIMESTAMPTZ,
		ended_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS variants (
		id BIGSERIAL PRIMARY KEY,
		experiment_id BIGINT NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		traffic_allocation DOUBLE PRECISION NOT NULL,
		config JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (experiment_id, name)
	);
	CREATE INDEX IF NOT EXISTS ix_variants_experiment_id ON variants (experiment_id);

	CREATE TABLE IF NOT EXISTS assignments (
		id BIGSERIAL PRIMARY KEY,
		experiment_id BIGINT NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
		variant_id BIGINT NOT NULL REFERENCES variants(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		assigned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		context JSONB,
		UNIQUE (experiment_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS ix_assignments_user_id ON assignments (user_id);
	CREATE INDEX IF NOT EXISTS ix_assignments_variant_id ON assignments (variant_id);
	`

	if _, err := r.client.DB().ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create control-plane tables: %w", err)
	}

	r.log.Info("Postgres schema initialized successfully")
	return nil
}

// CreateExperiment persists an experiment and its variants in one transaction
func (r *Repository) CreateExperiment(ctx context.Context, experiment *domain.Experiment, variants []domain.Variant) (*domain.Experiment, error) {
	tx, err := r.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored := *experiment
	err = tx.QueryRowContext(ctx,
		`INSERT INTO experiments (name, description, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, status, created_at, updated_at`,
		experiment.Name, experiment.Description, string(domain.StatusDraft),
	).Scan(&stored.ID, &stored.Status, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert experiment: %w", err)
	}

	for _, variant := range variants {
		configJSON, err := marshalJSONB(variant.Config)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO variants (experiment_id, name, description, traffic_allocation, config)
			 VALUES ($1, $2, $3, $4, $5)`,
			stored.ID, variant.Name, variant.Description, variant.TrafficAllocation, configJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to insert variant %q: %w", variant.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit experiment: %w", err)
	}

	r.log.Info("Experiment created",
		zap.Int64("experiment_id", stored.ID),
		zap.Int("variant_count", len(variants)))

	return &stored, nil
}

// GetExperiment fetches a single experiment by id
func (r *Repository) GetExperiment(ctx context.Context, id int64) (*domain.Experiment, error) {
	row := r.client.DB().QueryRowContext(ctx,
		`SELECT id, name, description, status, created_at, updated_at, started_at, ended_at
		 FROM experiments WHERE id = $1`, id)

	experiment, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "experiment", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return experiment, nil
}

// ListExperiments returns a page of experiments plus the total count
func (r *Repository) ListExperiments(ctx context.Context, filter repository.ExperimentFilter) ([]domain.Experiment, int, error) {
	where := ""
	args := []interface{}{}
	if filter.Status != nil {
		where = "WHERE status = $1"
		args = append(args, string(*filter.Status))
	}

	var total int
	countQuery := fmt.Sprintf("SELECT count(*) FROM experiments %s", where)
	if err := r.client.DB().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count experiments: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(
		`SELECT id, name, description, status, created_at, updated_at, started_at, ended_at
		 FROM experiments %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := r.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []domain.Experiment
	for rows.Next() {
		experiment, err := scanExperiment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan experiment: %w", err)
		}
		experiments = append(experiments, *experiment)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate experiments: %w", err)
	}

	return experiments, total, nil
}

// UpdateExperiment applies the given field updates and returns the stored row
func (r *Repository) UpdateExperiment(ctx context.Context, id int64, update repository.ExperimentUpdate) (*domain.Experiment, error) {
	sets := []string{"updated_at = now()"}
	args := []interface{}{}

	appendSet := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Name != nil {
		appendSet("name", *update.Name)
	}
	if update.Description != nil {
		appendSet("description", *update.Description)
	}
	if update.Status != nil {
		appendSet("status", string(*update.Status))
		switch *update.Status {
		case domain.StatusRunning:
			// started_at is only stamped on the first transition to running;
			// pause and resume do not move it.
			sets = append(sets, "started_at = COALESCE(started_at, now())")
		case domain.StatusCompleted:
			sets = append(sets, "ended_at = now()")
		}
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE experiments SET %s WHERE id = $%d
		 RETURNING id, name, description, status, created_at, updated_at, started_at, ended_at`,
		strings.Join(sets, ", "), len(args))

	row := r.client.DB().QueryRowContext(ctx, query, args...)
	experiment, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "experiment", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update experiment: %w", err)
	}
	return experiment, nil
}

// DeleteExperiment removes an experiment; variants and assignments cascade
func (r *Repository) DeleteExperiment(ctx context.Context, id int64) error {
	result, err := r.client.DB().ExecContext(ctx, `DELETE FROM experiments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return &domain.NotFoundError{Resource: "experiment", ID: id}
	}

	r.log.Info("Experiment deleted", zap.Int64("experiment_id", id))
	return nil
}

// ListVariants returns the experiment's variants ordered by ascending id
func (r *Repository) ListVariants(ctx context.Context, experimentID int64) ([]domain.Variant, error) {
	rows, err := r.client.DB().QueryContext(ctx,
		`SELECT id, experiment_id, name, description, traffic_allocation, config, created_at
		 FROM variants WHERE experiment_id = $1 ORDER BY id ASC`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		var variant domain.Variant
		var configJSON []byte
		if err := rows.Scan(&variant.ID, &variant.ExperimentID, &variant.Name, &variant.Description,
			&variant.TrafficAllocation, &configJSON, &variant.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		if variant.Config, err = unmarshalJSONB(configJSON); err != nil {
			return nil, err
		}
		variants = append(variants, variant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate variants: %w", err)
	}

	return variants, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExperiment(row rowScanner) (*domain.Experiment, error) {
	var experiment domain.Experiment
	var status string
	var startedAt, endedAt sql.NullTime

	err := row.Scan(&experiment.ID, &experiment.Name, &experiment.Description, &status,
		&experiment.CreatedAt, &experiment.UpdatedAt, &startedAt, &endedAt)
	if err != nil {
		return nil, err
	}

	experiment.Status = domain.ExperimentStatus(status)
	if startedAt.Valid {
		experiment.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		experiment.EndedAt = &endedAt.Time
	}
	return &experiment, nil
}

func marshalJSONB(value map[string]interface{}) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jsonb value: %w", err)
	}
	return data, nil
}

func unmarshalJSONB(data []byte) (map[string]interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var value map[string]interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal jsonb value: %w", err)
	}
	return value, nil
}
