// Package factory constructs storage adapters from a provider tag and a
// decrypted credential payload. It is the single place that knows which
// provider needs which fields.
package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/docuflow/docuflow/pkg/storage"
	"github.com/docuflow/docuflow/pkg/storage/googledrive"
	"github.com/docuflow/docuflow/pkg/storage/onedrive"
	"github.com/docuflow/docuflow/pkg/storage/supabase"
)

// Credentials is the decrypted, provider-agnostic credential payload stored
// against a storage config. Each provider consumes the subset it needs;
// construction fails fast on a missing required field.
type Credentials struct {
	// OAuth providers.
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenExpiry  time.Time `json:"token_expiry,omitempty"`

	// RootFolder anchors uploads: a folder id for Google Drive, a virtual
	// path for OneDrive.
	RootFolder string `json:"root_folder,omitempty"`

	// Key-based providers.
	ProjectURL string `json:"project_url,omitempty"`
	ServiceKey string `json:"service_key,omitempty"`
	Bucket     string `json:"bucket,omitempty"`
}

// NewAdapter builds the adapter for provider. The switch is exhaustive over
// the provider enum: known-but-unimplemented providers report
// ErrNotImplemented, anything else ErrUnsupportedProvider.
func NewAdapter(ctx context.Context, provider storage.Provider, creds Credentials) (storage.Adapter, error) {
	switch provider {
	case storage.ProviderGoogleDrive:
		return googledrive.NewAdapter(ctx, googledrive.Config{
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			TokenExpiry:  creds.TokenExpiry,
			RootFolderID: creds.RootFolder,
		})

	case storage.ProviderOneDrive:
		return onedrive.NewAdapter(ctx, onedrive.Config{
			AccessToken:    creds.AccessToken,
			RefreshToken:   creds.RefreshToken,
			TokenExpiry:    creds.TokenExpiry,
			RootFolderPath: creds.RootFolder,
		})

	case storage.ProviderSupabaseStorage:
		return supabase.NewAdapter(supabase.Config{
			ProjectURL: creds.ProjectURL,
			ServiceKey: creds.ServiceKey,
			Bucket:     creds.Bucket,
		})

	case storage.ProviderSharePoint, storage.ProviderAzureBlob:
		return nil, fmt.Errorf("provider %s: %w", provider, storage.ErrNotImplemented)

	default:
		return nil, fmt.Errorf("provider %q: %w", provider, storage.ErrUnsupportedProvider)
	}
}
