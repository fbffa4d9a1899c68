package managers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/docuflow/docuflow/internal/domain"
	"github.com/docuflow/docuflow/pkg/storage"
	"github.com/docuflow/docuflow/pkg/storage/factory"
	"github.com/docuflow/docuflow/pkg/storage/onedrive"
)

// AdapterBuilder constructs a provider adapter from decrypted credentials.
type AdapterBuilder func(ctx context.Context, provider storage.Provider, creds factory.Credentials) (storage.Adapter, error)

// AccountInfoFetcher resolves display name and mail for an OAuth token.
type AccountInfoFetcher func(ctx context.Context, accessToken string) (onedrive.AccountInfo, error)

type StorageConfigManagerDependencies struct {
	StorageConfigs domain.StorageConfigRepository
	Sealer         domain.CredentialSealer
	BuildAdapter   AdapterBuilder
	FetchAccount   AccountInfoFetcher
}

// StorageConfigManager owns the storage-config lifecycle: connect with
// plaintext tokens, seal them at rest, test reachability, soft retire.
type StorageConfigManager struct {
	storageConfigs domain.StorageConfigRepository
	sealer         domain.CredentialSealer
	buildAdapter   AdapterBuilder
	fetchAccount   AccountInfoFetcher
}

func NewStorageConfigManager(deps StorageConfigManagerDependencies) *StorageConfigManager {
	buildAdapter := deps.BuildAdapter
	if buildAdapter == nil {
		buildAdapter = factory.NewAdapter
	}

	fetchAccount := deps.FetchAccount
	if fetchAccount == nil {
		fetchAccount = onedrive.FetchAccountInfo
	}

	return &StorageConfigManager{
		storageConfigs: deps.StorageConfigs,
		sealer:         deps.Sealer,
		buildAdapter:   buildAdapter,
		fetchAccount:   fetchAccount,
	}
}

type CreateStorageConfigParams struct {
	OrganizationID string
	Name           string
	Provider       storage.Provider
	Credentials    factory.Credentials
	IsDefault      bool
}

// CreateStorageConfig validates the credentials by constructing the adapter,
// captures account metadata where the provider exposes it, then seals the
// payload and persists the config. Plaintext credentials never leave this
// call.
func (m *StorageConfigManager) CreateStorageConfig(ctx context.Context, params CreateStorageConfigParams) (*domain.StorageConfig, error) {
	if _, err := m.buildAdapter(ctx, params.Provider, params.Credentials); err != nil {
		return nil, fmt.Errorf("failed to validate credentials: %w", err)
	}

	config := &domain.StorageConfig{
		ID:             uuid.NewString(),
		OrganizationID: params.OrganizationID,
		Name:           params.Name,
		Provider:       params.Provider,
		IsDefault:      params.IsDefault,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if params.Provider == storage.ProviderOneDrive {
		account, err := m.fetchAccount(ctx, params.Credentials.AccessToken)
		if err != nil {
			// Account metadata is cosmetic; the connection itself is
			// exercised by TestStorageConfig.
			log.Warn().
				Err(err).
				Str("organization_id", params.OrganizationID).
				Msg("Failed to fetch account info for storage config")
		} else {
			config.AccountName = account.DisplayName
			config.AccountEmail = account.Email
		}
	}

	payload, err := json.Marshal(params.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}

	sealed, err := m.sealer.Seal(params.OrganizationID, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to seal credentials: %w", err)
	}
	config.SealedCredentials = sealed

	if err := m.storageConfigs.CreateStorageConfig(ctx, config); err != nil {
		return nil, fmt.Errorf("failed to persist storage config: %w", err)
	}

	return config, nil
}

// AdapterFor builds a fresh adapter from the config's sealed credentials.
// Adapters are single-use per request and never cached across organizations.
func (m *StorageConfigManager) AdapterFor(ctx context.Context, config *domain.StorageConfig) (storage.Adapter, error) {
	payload, err := m.sealer.Open(config.OrganizationID, config.SealedCredentials)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt storage credentials: %w", err)
	}

	var creds factory.Credentials
	if err := json.Unmarshal(payload, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse storage credentials: %w", err)
	}

	return m.buildAdapter(ctx, config.Provider, creds)
}

// TestStorageConfig reports whether the stored credentials can still reach
// the backend. A decrypt or construction failure surfaces as an error, not a
// false.
func (m *StorageConfigManager) TestStorageConfig(ctx context.Context, organizationID, configID string) (bool, error) {
	config, err := m.storageConfigs.GetStorageConfig(ctx, organizationID, configID)
	if err != nil {
		return false, err
	}

	adapter, err := m.AdapterFor(ctx, config)
	if err != nil {
		return false, err
	}

	return adapter.TestConnection(ctx), nil
}
