// Package verification implements the post-upload check: re-query the
// provider for a stored object and write the outcome back to the document
// row. The three terminal outcomes are verified, not_found and error; a
// credential failure is always error, never not_found, so a missing token
// cannot masquerade as a missing file.
package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/docuflow/docuflow/internal/domain"
	"github.com/docuflow/docuflow/pkg/storage"
	"github.com/docuflow/docuflow/pkg/storage/factory"
)

// AdapterBuilder constructs a provider adapter from decrypted credentials.
// It exists as a seam so tests can substitute a fake provider.
type AdapterBuilder func(ctx context.Context, provider storage.Provider, creds factory.Credentials) (storage.Adapter, error)

type ServiceDependencies struct {
	Documents      domain.DocumentRepository
	StorageConfigs domain.StorageConfigRepository
	Sealer         domain.CredentialSealer
	BuildAdapter   AdapterBuilder
}

type Service struct {
	documents      domain.DocumentRepository
	storageConfigs domain.StorageConfigRepository
	sealer         domain.CredentialSealer
	buildAdapter   AdapterBuilder
}

func NewService(deps ServiceDependencies) *Service {
	buildAdapter := deps.BuildAdapter
	if buildAdapter == nil {
		buildAdapter = factory.NewAdapter
	}

	return &Service{
		documents:      deps.Documents,
		storageConfigs: deps.StorageConfigs,
		sealer:         deps.Sealer,
		buildAdapter:   buildAdapter,
	}
}

// VerifyDocument runs one verification pass for the document and persists
// the outcome. Provider, credential and transport failures are folded into
// the returned result; the error return is reserved for the document row
// itself being unavailable.
func (s *Service) VerifyDocument(ctx context.Context, organizationID, documentID string) (domain.VerificationResult, error) {
	doc, err := s.documents.GetDocument(ctx, organizationID, documentID)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("failed to load document %s: %w", documentID, err)
	}

	s.persist(ctx, doc, domain.VerificationUpdate{Status: domain.VerificationVerifying})

	result := s.verify(ctx, doc)

	update := domain.VerificationUpdate{Status: result.Status, UploadError: result.Error}
	if result.Verified {
		now := time.Now().UTC()
		update.VerifiedAt = &now
		// A successful pass clears any previously recorded upload error.
		update.UploadError = ""
	}
	s.persist(ctx, doc, update)

	return result, nil
}

func (s *Service) verify(ctx context.Context, doc *domain.Document) domain.VerificationResult {
	config, err := s.storageConfigs.GetStorageConfig(ctx, doc.OrganizationID, doc.StorageConfigID)
	if err != nil {
		return errorResult(fmt.Errorf("failed to load storage config %s: %w", doc.StorageConfigID, err))
	}

	payload, err := s.sealer.Open(doc.OrganizationID, config.SealedCredentials)
	if err != nil {
		return errorResult(fmt.Errorf("failed to decrypt storage credentials: %w", err))
	}

	var creds factory.Credentials
	if err := json.Unmarshal(payload, &creds); err != nil {
		return errorResult(fmt.Errorf("failed to parse storage credentials: %w", err))
	}

	adapter, err := s.buildAdapter(ctx, doc.StorageProvider, creds)
	if err != nil {
		return errorResult(fmt.Errorf("failed to build %s adapter: %w", doc.StorageProvider, err))
	}

	stat, err := adapter.StatFile(ctx, doc.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.VerificationResult{
				Verified: false,
				Status:   domain.VerificationNotFound,
				Error:    err.Error(),
			}
		}
		return errorResult(err)
	}

	size := stat.Size
	details := &domain.FileDetails{
		Path: doc.StoragePath,
		Size: &size,
	}
	if url := adapter.GetPublicURL(ctx, doc.StoragePath); url != "" {
		details.WebURL = url
	}

	return domain.VerificationResult{
		Verified:    true,
		Status:      domain.VerificationVerified,
		FileDetails: details,
	}
}

// persist writes a status transition; a write failure must not abort the
// pass, the caller still gets the computed result.
func (s *Service) persist(ctx context.Context, doc *domain.Document, update domain.VerificationUpdate) {
	if err := s.documents.UpdateVerification(ctx, doc.OrganizationID, doc.ID, update); err != nil {
		log.Error().
			Err(err).
			Str("document_id", doc.ID).
			Str("status", string(update.Status)).
			Msg("Failed to persist verification status")
	}
}

func errorResult(err error) domain.VerificationResult {
	return domain.VerificationResult{
		Verified: false,
		Status:   domain.VerificationError,
		Error:    err.Error(),
	}
}
