package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docuflow/docuflow/internal/domain"
)

type PostgresStorageConfigRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresStorageConfigRepository(pool *pgxpool.Pool) *PostgresStorageConfigRepository {
	return &PostgresStorageConfigRepository{pool: pool}
}

const storageConfigColumns = `id, organization_id, name, provider, sealed_credentials,
	account_name, account_email, is_default, is_active, created_at, updated_at`

// CreateStorageConfig inserts the config; when it is marked default, any
// previous default for the organization is demoted in the same transaction.
func (r *PostgresStorageConfigRepository) CreateStorageConfig(ctx context.Context, config *domain.StorageConfig) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if config.IsDefault {
		_, err := tx.Exec(ctx,
			`UPDATE storage_configs SET is_default = FALSE, updated_at = NOW()
			 WHERE organization_id = $1 AND is_default`,
			config.OrganizationID,
		)
		if err != nil {
			return fmt.Errorf("failed to demote previous default: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO storage_configs (`+storageConfigColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		config.ID, config.OrganizationID, config.Name, config.Provider, config.SealedCredentials,
		config.AccountName, config.AccountEmail, config.IsDefault, config.IsActive,
		config.CreatedAt, config.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert storage config: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit storage config: %w", err)
	}

	return nil
}

func (r *PostgresStorageConfigRepository) GetStorageConfig(ctx context.Context, organizationID, configID string) (*domain.StorageConfig, error) {
	query := `
		SELECT ` + storageConfigColumns + `
		FROM storage_configs
		WHERE organization_id = $1 AND id = $2`

	config, err := scanStorageConfig(r.pool.QueryRow(ctx, query, organizationID, configID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStorageConfigNotFound
		}
		return nil, fmt.Errorf("failed to query storage config: %w", err)
	}

	return config, nil
}

func (r *PostgresStorageConfigRepository) GetDefaultStorageConfig(ctx context.Context, organizationID string) (*domain.StorageConfig, error) {
	query := `
		SELECT ` + storageConfigColumns + `
		FROM storage_configs
		WHERE organization_id = $1 AND is_default AND is_active`

	config, err := scanStorageConfig(r.pool.QueryRow(ctx, query, organizationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoDefaultStorage
		}
		return nil, fmt.Errorf("failed to query default storage config: %w", err)
	}

	return config, nil
}

func (r *PostgresStorageConfigRepository) ListStorageConfigs(ctx context.Context, organizationID string) ([]domain.StorageConfig, error) {
	query := `
		SELECT ` + storageConfigColumns + `
		FROM storage_configs
		WHERE organization_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage configs: %w", err)
	}
	defer rows.Close()

	configs := []domain.StorageConfig{}
	for rows.Next() {
		config, err := scanStorageConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan storage config: %w", err)
		}
		configs = append(configs, *config)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read storage configs: %w", err)
	}

	return configs, nil
}

func (r *PostgresStorageConfigRepository) DeactivateStorageConfig(ctx context.Context, organizationID, configID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE storage_configs
		 SET is_active = FALSE, is_default = FALSE, updated_at = NOW()
		 WHERE organization_id = $1 AND id = $2`,
		organizationID, configID,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate storage config: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrStorageConfigNotFound
	}

	return nil
}

func scanStorageConfig(row pgx.Row) (*domain.StorageConfig, error) {
	var config domain.StorageConfig
	err := row.Scan(
		&config.ID, &config.OrganizationID, &config.Name, &config.Provider, &config.SealedCredentials,
		&config.AccountName, &config.AccountEmail, &config.IsDefault, &config.IsActive,
		&config.CreatedAt, &config.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
