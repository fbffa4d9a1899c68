package domain

import (
	"context"
	"time"

	"github.com/docuflow/docuflow/pkg/storage"
)

// StorageConfig is a connected storage destination for an organization. The
// credential payload is sealed at rest; plaintext tokens exist only inside a
// request that needs to build an adapter.
type StorageConfig struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id"`
	Name           string           `json:"name"`
	Provider       storage.Provider `json:"provider"`

	SealedCredentials []byte `json:"-"`

	// Account metadata captured when the config is connected, e.g. the
	// OneDrive account display name and mail.
	AccountName  string `json:"account_name,omitempty"`
	AccountEmail string `json:"account_email,omitempty"`

	IsDefault bool `json:"is_default"`
	IsActive  bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StorageConfigRepository interface {
	CreateStorageConfig(ctx context.Context, config *StorageConfig) error
	GetStorageConfig(ctx context.Context, organizationID, configID string) (*StorageConfig, error)

	// GetDefaultStorageConfig returns the organization's active default
	// config, or ErrNoDefaultStorage when none is marked.
	GetDefaultStorageConfig(ctx context.Context, organizationID string) (*StorageConfig, error)

	ListStorageConfigs(ctx context.Context, organizationID string) ([]StorageConfig, error)

	// DeactivateStorageConfig soft-retires the config. Documents uploaded
	// through it keep their rows and their storage_config_id.
	DeactivateStorageConfig(ctx context.Context, organizationID, configID string) error
}

// CredentialSealer seals and opens credential payloads bound to one
// organization. Opening with the wrong organization id fails.
type CredentialSealer interface {
	Seal(organizationID string, payload []byte) ([]byte, error)
	Open(organizationID string, sealed []byte) ([]byte, error)
}
