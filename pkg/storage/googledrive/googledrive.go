// Package googledrive implements the storage adapter contract over the
// Google Drive v3 API. Drive addresses files and folders by opaque ids; the
// canonical path this adapter returns is the Drive item id, and all
// subsequent operations resolve by id.
package googledrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/docuflow/docuflow/pkg/pathutil"
	"github.com/docuflow/docuflow/pkg/storage"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Config carries the decrypted credentials and placement defaults for one
// connected Drive account. The adapter never decrypts anything itself.
type Config struct {
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time

	// RootFolderID anchors every virtual path. Defaults to "root".
	RootFolderID string

	// Endpoint overrides the Drive API base URL.
	Endpoint string

	// HTTPClient overrides the OAuth-authenticated client when set.
	HTTPClient option.ClientOption
}

// Adapter talks to one Drive account with one credential set.
type Adapter struct {
	service      *drive.Service
	rootFolderID string
}

// NewAdapter validates the config and builds the authenticated Drive service.
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.AccessToken == "" && cfg.HTTPClient == nil {
		return nil, storage.NewConfigError(storage.ProviderGoogleDrive, "access_token")
	}

	clientOpt := cfg.HTTPClient
	if clientOpt == nil {
		token := &oauth2.Token{
			AccessToken:  cfg.AccessToken,
			RefreshToken: cfg.RefreshToken,
			Expiry:       cfg.TokenExpiry,
			TokenType:    "Bearer",
		}
		clientOpt = option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)))
	}

	opts := []option.ClientOption{clientOpt}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	rootFolderID := cfg.RootFolderID
	if rootFolderID == "" {
		rootFolderID = "root"
	}

	return &Adapter{
		service:      service,
		rootFolderID: rootFolderID,
	}, nil
}

func (a *Adapter) UploadFile(ctx context.Context, content []byte, filename string, opts storage.UploadOptions) (storage.UploadResult, error) {
	if filename == "" {
		return storage.UploadResult{}, fmt.Errorf("filename is empty")
	}

	folderID, err := a.resolveFolder(ctx, opts.FolderPath, true)
	if err != nil {
		return storage.UploadResult{}, err
	}

	name := filename
	if opts.Overwrite {
		existing, err := a.findInFolder(ctx, folderID, name, false)
		if err != nil {
			return storage.UploadResult{}, err
		}
		if existing != nil {
			return a.updateFile(ctx, existing.Id, content, opts.Metadata)
		}
	} else {
		name, err = storage.GenerateUniqueFilename(ctx, filename, func(ctx context.Context, candidate string) (bool, error) {
			found, err := a.findInFolder(ctx, folderID, candidate, false)
			if err != nil {
				return false, err
			}
			return found != nil, nil
		})
		if err != nil {
			return storage.UploadResult{}, err
		}
	}

	fileMetadata := &drive.File{
		Name:          name,
		Parents:       []string{folderID},
		AppProperties: opts.Metadata,
	}

	uploaded, err := a.service.Files.Create(fileMetadata).
		Media(bytes.NewReader(content)).
		Fields("id, name, size, webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return storage.UploadResult{}, fmt.Errorf("failed to upload file to Google Drive: %w", err)
	}

	return storage.UploadResult{
		Path: uploaded.Id,
		Name: uploaded.Name,
		Size: uploaded.Size,
		URL:  uploaded.WebViewLink,
	}, nil
}

func (a *Adapter) updateFile(ctx context.Context, fileID string, content []byte, metadata map[string]string) (storage.UploadResult, error) {
	updated, err := a.service.Files.Update(fileID, &drive.File{AppProperties: metadata}).
		Media(bytes.NewReader(content)).
		Fields("id, name, size, webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return storage.UploadResult{}, fmt.Errorf("failed to overwrite file in Google Drive: %w", err)
	}

	return storage.UploadResult{
		Path: updated.Id,
		Name: updated.Name,
		Size: updated.Size,
		URL:  updated.WebViewLink,
	}, nil
}

func (a *Adapter) DownloadFile(ctx context.Context, path string) ([]byte, error) {
	resp, err := a.service.Files.Get(path).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("drive file %s: %w", path, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read download body: %w", err)
	}

	return content, nil
}

func (a *Adapter) DeleteFile(ctx context.Context, path string) error {
	err := a.service.Files.Delete(path).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("drive file %s: %w", path, storage.ErrNotFound)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

func (a *Adapter) StatFile(ctx context.Context, path string) (storage.StorageFile, error) {
	file, err := a.service.Files.Get(path).
		Fields("id, name, size, mimeType, modifiedTime").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return storage.StorageFile{}, fmt.Errorf("drive file %s: %w", path, storage.ErrNotFound)
		}
		return storage.StorageFile{}, fmt.Errorf("failed to get file metadata: %w", err)
	}

	return toStorageFile(file), nil
}

func (a *Adapter) FileExists(ctx context.Context, path string) bool {
	_, err := a.StatFile(ctx, path)
	return err == nil
}

func (a *Adapter) ListFiles(ctx context.Context, folderPath string) ([]storage.StorageFile, error) {
	folderID, err := a.resolveFolder(ctx, folderPath, false)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []storage.StorageFile{}, nil
		}
		return nil, err
	}

	query := fmt.Sprintf("'%s' in parents and mimeType != '%s' and trashed = false", folderID, folderMimeType)

	files := make([]storage.StorageFile, 0)
	pageToken := ""
	for {
		call := a.service.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, size, mimeType, modifiedTime)").
			PageSize(100).
			IncludeItemsFromAllDrives(true).
			SupportsAllDrives(true)

		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		list, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list files: %w", err)
		}

		for _, file := range list.Files {
			files = append(files, toStorageFile(file))
		}

		if list.NextPageToken == "" {
			return files, nil
		}
		pageToken = list.NextPageToken
	}
}

func (a *Adapter) CreateFolder(ctx context.Context, folderPath string) (string, error) {
	return a.resolveFolder(ctx, folderPath, true)
}

func (a *Adapter) GetPublicURL(ctx context.Context, path string) string {
	file, err := a.service.Files.Get(path).
		Fields("webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return ""
	}

	return file.WebViewLink
}

func (a *Adapter) TestConnection(ctx context.Context) bool {
	_, err := a.service.About.Get().Fields("user").Context(ctx).Do()
	return err == nil
}

// resolveFolder walks a virtual path from the configured root, one segment at
// a time. Each segment is looked up by name under the resolved parent before
// any create, so repeated calls land on the same folder. Two concurrent
// callers racing on a brand-new segment can still each create one; Drive has
// no unique-name constraint and the adapter does not serialize the window.
func (a *Adapter) resolveFolder(ctx context.Context, folderPath string, create bool) (string, error) {
	parentID := a.rootFolderID

	for _, segment := range pathutil.SplitPath(folderPath) {
		existing, err := a.findInFolder(ctx, parentID, segment, true)
		if err != nil {
			return "", err
		}

		if existing != nil {
			parentID = existing.Id
			continue
		}

		if !create {
			return "", fmt.Errorf("drive folder %q: %w", segment, storage.ErrNotFound)
		}

		created, err := a.service.Files.Create(&drive.File{
			Name:     segment,
			MimeType: folderMimeType,
			Parents:  []string{parentID},
		}).
			Fields("id, name").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("failed to create folder %q: %w", segment, err)
		}

		parentID = created.Id
	}

	return parentID, nil
}

// findInFolder looks up a single item by exact name under a known parent.
func (a *Adapter) findInFolder(ctx context.Context, parentID, name string, folder bool) (*drive.File, error) {
	mimeClause := fmt.Sprintf("mimeType != '%s'", folderMimeType)
	if folder {
		mimeClause = fmt.Sprintf("mimeType = '%s'", folderMimeType)
	}

	// Backslash is the query escape character, so it must be doubled before
	// quoting the quotes.
	escaped := strings.ReplaceAll(name, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "'", `\'`)
	query := fmt.Sprintf("name = '%s' and '%s' in parents and %s and trashed = false", escaped, parentID, mimeClause)

	list, err := a.service.Files.List().
		Q(query).
		Fields("files(id, name, size, mimeType, modifiedTime)").
		PageSize(1).
		IncludeItemsFromAllDrives(true).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to look up %q: %w", name, err)
	}

	if len(list.Files) == 0 {
		return nil, nil
	}

	return list.Files[0], nil
}

func toStorageFile(file *drive.File) storage.StorageFile {
	sf := storage.StorageFile{
		Path:     file.Id,
		Name:     file.Name,
		Size:     file.Size,
		MimeType: file.MimeType,
	}

	if file.ModifiedTime != "" {
		if ts, err := time.Parse(time.RFC3339, file.ModifiedTime); err == nil {
			sf.LastModified = &ts
		}
	}

	return sf
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}
