package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docuflow/docuflow/internal/domain"
)

type PostgresDocumentRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresDocumentRepository(pool *pgxpool.Pool) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{pool: pool}
}

const documentColumns = `id, organization_id, name, mime_type, size_in_bytes,
	storage_provider, storage_path, storage_config_id, public_url,
	verification_status, verified_at, upload_error, created_at, updated_at`

func (r *PostgresDocumentRepository) CreateDocument(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.pool.Exec(ctx, query,
		doc.ID, doc.OrganizationID, doc.Name, doc.MimeType, doc.SizeInBytes,
		doc.StorageProvider, doc.StoragePath, doc.StorageConfigID, doc.PublicURL,
		doc.VerificationStatus, doc.VerifiedAt, doc.UploadError,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	return nil
}

func (r *PostgresDocumentRepository) GetDocument(ctx context.Context, organizationID, documentID string) (*domain.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE organization_id = $1 AND id = $2`

	row := r.pool.QueryRow(ctx, query, organizationID, documentID)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to query document: %w", err)
	}

	return doc, nil
}

func (r *PostgresDocumentRepository) ListDocuments(ctx context.Context, organizationID string) ([]domain.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE organization_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	return docs, nil
}

func (r *PostgresDocumentRepository) UpdateVerification(ctx context.Context, organizationID, documentID string, update domain.VerificationUpdate) error {
	query := `
		UPDATE documents
		SET verification_status = $1, verified_at = $2, upload_error = $3, updated_at = NOW()
		WHERE organization_id = $4 AND id = $5`

	tag, err := r.pool.Exec(ctx, query,
		update.Status, update.VerifiedAt, update.UploadError,
		organizationID, documentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update verification: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}

	return nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var doc domain.Document
	err := row.Scan(
		&doc.ID, &doc.OrganizationID, &doc.Name, &doc.MimeType, &doc.SizeInBytes,
		&doc.StorageProvider, &doc.StoragePath, &doc.StorageConfigID, &doc.PublicURL,
		&doc.VerificationStatus, &doc.VerifiedAt, &doc.UploadError,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &doc, nil
}
