// Package documents implements the intake flow: attachment bytes arrive,
// land in the organization's default storage destination under a
// collision-safe name, and a document row records where they went.
package documents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"github.com/docuflow/docuflow/internal/domain"
	"github.com/docuflow/docuflow/internal/managers"
	"github.com/docuflow/docuflow/pkg/storage"
)

type ServiceDependencies struct {
	Documents      domain.DocumentRepository
	StorageConfigs domain.StorageConfigRepository
	ConfigManager  *managers.StorageConfigManager
}

type Service struct {
	documents      domain.DocumentRepository
	storageConfigs domain.StorageConfigRepository
	configManager  *managers.StorageConfigManager
}

func NewService(deps ServiceDependencies) *Service {
	return &Service{
		documents:      deps.Documents,
		storageConfigs: deps.StorageConfigs,
		configManager:  deps.ConfigManager,
	}
}

type IntakeParams struct {
	OrganizationID string
	Filename       string
	MimeType       string
	Content        []byte

	// FolderPath places the upload under a virtual folder; empty means the
	// destination root.
	FolderPath string
}

// IntakeDocument uploads the attachment through the organization's default
// storage config and records the document. The row is only written after the
// adapter reports a successful upload, so a failed upload leaves no partial
// record.
func (s *Service) IntakeDocument(ctx context.Context, params IntakeParams) (*domain.Document, error) {
	if len(params.Content) == 0 {
		return nil, fmt.Errorf("document content is empty")
	}

	config, err := s.storageConfigs.GetDefaultStorageConfig(ctx, params.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage destination: %w", err)
	}

	adapter, err := s.configManager.AdapterFor(ctx, config)
	if err != nil {
		return nil, err
	}

	filename := params.Filename
	if filename == "" {
		filename = "document_" + xid.New().String()
	}

	result, err := adapter.UploadFile(ctx, params.Content, filename, storage.UploadOptions{
		FolderPath: params.FolderPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload document: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:                 uuid.NewString(),
		OrganizationID:     params.OrganizationID,
		Name:               result.Name,
		MimeType:           params.MimeType,
		SizeInBytes:        result.Size,
		StorageProvider:    config.Provider,
		StoragePath:        result.Path,
		StorageConfigID:    config.ID,
		PublicURL:          result.URL,
		VerificationStatus: domain.VerificationPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.documents.CreateDocument(ctx, doc); err != nil {
		// The object is already uploaded; surface the row failure rather
		// than attempting a compensating delete, operators can reconcile
		// from the log line.
		log.Error().
			Err(err).
			Str("organization_id", params.OrganizationID).
			Str("storage_path", result.Path).
			Msg("Uploaded document but failed to record it")
		return nil, fmt.Errorf("failed to record document: %w", err)
	}

	log.Info().
		Str("document_id", doc.ID).
		Str("organization_id", doc.OrganizationID).
		Str("provider", string(doc.StorageProvider)).
		Int64("size_in_bytes", doc.SizeInBytes).
		Msg("Document stored")

	return doc, nil
}

// DownloadDocument fetches the stored bytes for a document.
func (s *Service) DownloadDocument(ctx context.Context, organizationID, documentID string) (*domain.Document, []byte, error) {
	doc, err := s.documents.GetDocument(ctx, organizationID, documentID)
	if err != nil {
		return nil, nil, err
	}

	config, err := s.storageConfigs.GetStorageConfig(ctx, organizationID, doc.StorageConfigID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	adapter, err := s.configManager.AdapterFor(ctx, config)
	if err != nil {
		return nil, nil, err
	}

	content, err := adapter.DownloadFile(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download document: %w", err)
	}

	return doc, content, nil
}
