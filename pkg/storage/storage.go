// Package storage defines the capability contract every cloud storage
// adapter implements, together with the transient file model and the shared
// collision-avoidance helper. Provider packages live underneath and are wired
// up by pkg/storage/factory.
package storage

import (
	"context"
	"time"
)

// Provider tags a connected storage destination. The tag decides which
// adapter the factory constructs and which config fields are required.
type Provider string

const (
	ProviderGoogleDrive     Provider = "google_drive"
	ProviderOneDrive        Provider = "onedrive"
	ProviderSharePoint      Provider = "sharepoint"
	ProviderAzureBlob       Provider = "azure_blob"
	ProviderSupabaseStorage Provider = "supabase_storage"
)

// StorageFile is the adapter-level view of a stored object. Path is the
// provider-native identifier: a Drive item id, a Graph item id, or an
// object-store key. It is only meaningful together with the provider and the
// credentials that produced it.
type StorageFile struct {
	Path         string     `json:"path"`
	Name         string     `json:"name"`
	Size         int64      `json:"size"`
	MimeType     string     `json:"mime_type,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// UploadOptions control placement and naming of an upload.
type UploadOptions struct {
	// FolderPath is a virtual slash-delimited path under the adapter's root.
	// Missing folders are created segment by segment.
	FolderPath string

	// Overwrite replaces an existing object of the same name. When false the
	// adapter probes for a free name (name_1.ext, name_2.ext, ...).
	Overwrite bool

	// Metadata is attached to the object on providers with a metadata store,
	// e.g. Drive appProperties. Providers without one ignore it.
	Metadata map[string]string
}

// UploadResult is returned by a successful upload. Path is the canonical
// identifier for all subsequent operations on the object; URL, when present,
// is a browser-viewable link.
type UploadResult struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url,omitempty"`
}

// Adapter is the uniform capability set over a storage backend.
//
// UploadFile, DownloadFile, DeleteFile, StatFile, ListFiles and CreateFolder
// propagate remote failures to the caller. FileExists, GetPublicURL and
// TestConnection are health-check style reads: they swallow remote errors
// into a false/empty result so dashboards can poll them cheaply.
//
// Adapters are cheap, single-credential instances. Build one per request
// from freshly decrypted credentials; they hold no shared mutable state.
type Adapter interface {
	// UploadFile writes content under filename, creating any missing folders
	// in opts.FolderPath.
	UploadFile(ctx context.Context, content []byte, filename string, opts UploadOptions) (UploadResult, error)

	// DownloadFile fetches the object bytes by canonical path. Returns
	// ErrNotFound when the remote reports a 404-equivalent.
	DownloadFile(ctx context.Context, path string) ([]byte, error)

	// DeleteFile removes the object. Deleting an already-gone path returns
	// ErrNotFound; callers treating that as success can errors.Is it away.
	DeleteFile(ctx context.Context, path string) error

	// StatFile re-queries the remote for the object's current metadata,
	// distinguishing ErrNotFound from transport errors.
	StatFile(ctx context.Context, path string) (StorageFile, error)

	// FileExists never returns an error; remote failures read as false.
	FileExists(ctx context.Context, path string) bool

	// ListFiles returns the files directly inside folderPath. An empty
	// folder yields an empty slice.
	ListFiles(ctx context.Context, folderPath string) ([]StorageFile, error)

	// CreateFolder ensures folderPath exists, creating missing segments, and
	// returns the resolved folder identity. Creating an existing folder
	// returns the existing identity, never a duplicate.
	CreateFolder(ctx context.Context, folderPath string) (string, error)

	// GetPublicURL returns a shareable link, or "" when the provider has no
	// such concept for the current permissions. Never returns an error.
	GetPublicURL(ctx context.Context, path string) string

	// TestConnection reports whether the credentials can reach the backend.
	TestConnection(ctx context.Context) bool
}
