// Package supabase implements the storage adapter contract on top of the
// Supabase Storage REST API. Unlike the drive providers there is no folder
// object model: paths are flat bucket keys, folders are key prefixes, and an
// empty folder is represented by a zero-byte placeholder object.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docuflow/docuflow/pkg/pathutil"
	"github.com/docuflow/docuflow/pkg/storage"
)

// folderPlaceholder is the zero-byte object that keeps an otherwise empty
// prefix visible in listings. It is filtered out of ListFiles results.
const folderPlaceholder = ".emptyFolderPlaceholder"

const listPageSize = 100

type Config struct {
	// ProjectURL is the Supabase project base URL, e.g.
	// https://abcd1234.supabase.co.
	ProjectURL string
	ServiceKey string
	Bucket     string

	// HTTPClient overrides the transport, primarily for tests.
	HTTPClient *http.Client
}

type Adapter struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.ProjectURL == "" {
		return nil, storage.NewConfigError(storage.ProviderSupabaseStorage, "project_url")
	}
	if cfg.ServiceKey == "" {
		return nil, storage.NewConfigError(storage.ProviderSupabaseStorage, "service_key")
	}
	if cfg.Bucket == "" {
		return nil, storage.NewConfigError(storage.ProviderSupabaseStorage, "bucket")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Adapter{
		baseURL:    strings.TrimRight(cfg.ProjectURL, "/"),
		serviceKey: cfg.ServiceKey,
		bucket:     cfg.Bucket,
		httpClient: httpClient,
	}, nil
}

func (a *Adapter) UploadFile(ctx context.Context, content []byte, filename string, opts storage.UploadOptions) (storage.UploadResult, error) {
	if filename == "" {
		return storage.UploadResult{}, fmt.Errorf("filename is empty")
	}

	folderPath := pathutil.NormalizePath(opts.FolderPath)

	name := filename
	if !opts.Overwrite {
		var err error
		name, err = storage.GenerateUniqueFilename(ctx, filename, func(ctx context.Context, candidate string) (bool, error) {
			return a.objectExists(ctx, folderPath, candidate)
		})
		if err != nil {
			return storage.UploadResult{}, err
		}
	}

	key := pathutil.JoinPath(folderPath, name)

	req, err := a.newRequest(ctx, http.MethodPost, a.objectURL(key), bytes.NewReader(content))
	if err != nil {
		return storage.UploadResult{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if opts.Overwrite {
		req.Header.Set("x-upsert", "true")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return storage.UploadResult{}, fmt.Errorf("failed to upload object: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return storage.UploadResult{}, fmt.Errorf("failed to upload object %q: %w", key, err)
	}

	return storage.UploadResult{
		Path: key,
		Name: name,
		Size: int64(len(content)),
		URL:  a.publicURL(key),
	}, nil
}

func (a *Adapter) DownloadFile(ctx context.Context, path string) ([]byte, error) {
	key := pathutil.NormalizePath(path)

	req, err := a.newRequest(ctx, http.MethodGet, a.objectURL(key), nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, fmt.Errorf("failed to download object %q: %w", key, err)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	return data, nil
}

func (a *Adapter) DeleteFile(ctx context.Context, path string) error {
	key := pathutil.NormalizePath(path)

	req, err := a.newRequest(ctx, http.MethodDelete, a.objectURL(key), nil)
	if err != nil {
		return err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("failed to delete object %q: %w", key, err)
	}

	return nil
}

func (a *Adapter) StatFile(ctx context.Context, path string) (storage.StorageFile, error) {
	key := pathutil.NormalizePath(path)
	folder, name := pathutil.ParsePath(key)

	entries, err := a.list(ctx, folder, name)
	if err != nil {
		return storage.StorageFile{}, fmt.Errorf("failed to stat object %q: %w", key, err)
	}

	for _, entry := range entries {
		if entry.Name != name {
			continue
		}
		return entry.toStorageFile(folder), nil
	}

	return storage.StorageFile{}, fmt.Errorf("object %q: %w", key, storage.ErrNotFound)
}

func (a *Adapter) FileExists(ctx context.Context, path string) bool {
	key := pathutil.NormalizePath(path)
	folder, name := pathutil.ParsePath(key)

	ok, err := a.objectExists(ctx, folder, name)
	return err == nil && ok
}

func (a *Adapter) ListFiles(ctx context.Context, folderPath string) ([]storage.StorageFile, error) {
	folder := pathutil.NormalizePath(folderPath)

	entries, err := a.list(ctx, folder, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %q: %w", folder, err)
	}

	files := make([]storage.StorageFile, 0, len(entries))
	for _, entry := range entries {
		// Prefix pseudo-folders come back with a nil id; placeholders keep
		// the prefix alive but are not user files.
		if entry.ID == nil || entry.Name == folderPlaceholder {
			continue
		}
		files = append(files, entry.toStorageFile(folder))
	}

	return files, nil
}

// CreateFolder writes the zero-byte placeholder under the prefix. Re-creating
// an existing folder rewrites the same placeholder key, so the call is
// naturally idempotent.
func (a *Adapter) CreateFolder(ctx context.Context, folderPath string) (string, error) {
	folder := pathutil.NormalizePath(folderPath)
	if folder == "" {
		return "", nil
	}

	key := pathutil.JoinPath(folder, folderPlaceholder)

	req, err := a.newRequest(ctx, http.MethodPost, a.objectURL(key), bytes.NewReader(nil))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("x-upsert", "true")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create folder placeholder: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return "", fmt.Errorf("failed to create folder %q: %w", folder, err)
	}

	return folder, nil
}

func (a *Adapter) GetPublicURL(ctx context.Context, path string) string {
	key := pathutil.NormalizePath(path)
	if key == "" {
		return ""
	}

	return a.publicURL(key)
}

func (a *Adapter) TestConnection(ctx context.Context) bool {
	req, err := a.newRequest(ctx, http.MethodGet, a.baseURL+"/storage/v1/bucket/"+url.PathEscape(a.bucket), nil)
	if err != nil {
		return false
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

type listEntry struct {
	Name      string     `json:"name"`
	ID        *string    `json:"id"`
	UpdatedAt *time.Time `json:"updated_at"`
	Metadata  *struct {
		Size     int64  `json:"size"`
		MimeType string `json:"mimetype"`
	} `json:"metadata"`
}

func (e listEntry) toStorageFile(folder string) storage.StorageFile {
	sf := storage.StorageFile{
		Path:         pathutil.JoinPath(folder, e.Name),
		Name:         e.Name,
		LastModified: e.UpdatedAt,
	}

	if e.Metadata != nil {
		sf.Size = e.Metadata.Size
		sf.MimeType = e.Metadata.MimeType
	}

	return sf
}

// list queries the bucket listing endpoint for one prefix, optionally
// narrowed by a search term. The endpoint pages at listPageSize, so the
// request is repeated with an advancing offset until a short page comes back.
func (a *Adapter) list(ctx context.Context, prefix, search string) ([]listEntry, error) {
	var entries []listEntry

	for offset := 0; ; offset += listPageSize {
		page, err := a.listPage(ctx, prefix, search, offset)
		if err != nil {
			return nil, err
		}

		entries = append(entries, page...)
		if len(page) < listPageSize {
			return entries, nil
		}
	}
}

func (a *Adapter) listPage(ctx context.Context, prefix, search string, offset int) ([]listEntry, error) {
	payload := map[string]any{
		"prefix": prefix,
		"limit":  listPageSize,
		"offset": offset,
	}
	if search != "" {
		payload["search"] = search
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal list request: %w", err)
	}

	req, err := a.newRequest(ctx, http.MethodPost, a.baseURL+"/storage/v1/object/list/"+url.PathEscape(a.bucket), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var page []listEntry
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}

	return page, nil
}

func (a *Adapter) objectExists(ctx context.Context, folder, name string) (bool, error) {
	entries, err := a.list(ctx, folder, name)
	if err != nil {
		return false, err
	}

	for _, entry := range entries {
		if entry.Name == name {
			return true, nil
		}
	}

	return false, nil
}

func (a *Adapter) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.serviceKey)

	return req, nil
}

func (a *Adapter) objectURL(key string) string {
	return a.baseURL + "/storage/v1/object/" + url.PathEscape(a.bucket) + "/" + escapeKey(key)
}

func (a *Adapter) publicURL(key string) string {
	return a.baseURL + "/storage/v1/object/public/" + url.PathEscape(a.bucket) + "/" + escapeKey(key)
}

func escapeKey(key string) string {
	segments := pathutil.SplitPath(key)
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

type apiError struct {
	StatusCode string `json:"statusCode"`
	Message    string `json:"message"`
	ErrorText  string `json:"error"`
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusNotFound {
		return storage.ErrNotFound
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
		if strings.Contains(apiErr.Message, "not_found") || strings.Contains(apiErr.Message, "Object not found") {
			return storage.ErrNotFound
		}
		return fmt.Errorf("supabase storage error %d: %s", resp.StatusCode, apiErr.Message)
	}

	return fmt.Errorf("supabase storage error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
