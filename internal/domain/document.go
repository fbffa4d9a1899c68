package domain

import (
	"context"
	"errors"
	"time"

	"github.com/docuflow/docuflow/pkg/storage"
)

var (
	ErrDocumentNotFound      = errors.New("document not found")
	ErrStorageConfigNotFound = errors.New("storage config not found")
	ErrNoDefaultStorage      = errors.New("no default storage config for organization")
)

// Document is one collected file. StoragePath is the provider-native
// identifier returned by the adapter at upload time and is only meaningful
// together with StorageProvider and the config's credentials.
type Document struct {
	ID              string           `json:"id"`
	OrganizationID  string           `json:"organization_id"`
	Name            string           `json:"name"`
	MimeType        string           `json:"mime_type,omitempty"`
	SizeInBytes     int64            `json:"size_in_bytes"`
	StorageProvider storage.Provider `json:"storage_provider"`
	StoragePath     string           `json:"storage_path"`
	StorageConfigID string           `json:"storage_config_id"`
	PublicURL       string           `json:"public_url,omitempty"`

	VerificationStatus VerificationStatus `json:"verification_status"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
	UploadError        string             `json:"upload_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DocumentRepository interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, organizationID, documentID string) (*Document, error)
	ListDocuments(ctx context.Context, organizationID string) ([]Document, error)

	// UpdateVerification overwrites the latest verification outcome on the
	// row. It never touches any other column.
	UpdateVerification(ctx context.Context, organizationID, documentID string, update VerificationUpdate) error
}

// VerificationUpdate is the write-back of one verification pass.
type VerificationUpdate struct {
	Status      VerificationStatus
	VerifiedAt  *time.Time
	UploadError string
}
