// Package onedrive implements the storage adapter contract over Microsoft
// Graph's drive API. Uploads target a path-based endpoint, but the Graph item
// id returned by the write is the canonical path for every subsequent
// operation; the human-readable location can be reconstructed with
// GetFilePath when a UI needs it.
package onedrive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/docuflow/docuflow/pkg/pathutil"
	"github.com/docuflow/docuflow/pkg/storage"
)

// maxParentWalkDepth caps the parent-id walk in GetFilePath. Real folder
// trees are far shallower; a reference cycle in malformed item data would
// otherwise walk forever.
const maxParentWalkDepth = 64

// Config carries the decrypted credentials and placement defaults for one
// connected OneDrive account.
type Config struct {
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time

	// RootFolderPath prefixes every virtual path, e.g. "Docuflow". Empty
	// means the drive root.
	RootFolderPath string

	// Endpoint overrides the Graph base URL.
	Endpoint string

	// HTTPClient overrides the OAuth-authenticated client when set.
	HTTPClient *http.Client
}

// Adapter talks to one OneDrive account with one credential set.
type Adapter struct {
	client   *graphClient
	rootPath string

	// fetchContent is the download seam; it returns one of the content
	// shapes normalizeContent accepts.
	fetchContent func(ctx context.Context, itemID string) (any, error)
}

// NewAdapter validates the config and builds the authenticated Graph client.
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.AccessToken == "" && cfg.HTTPClient == nil {
		return nil, storage.NewConfigError(storage.ProviderOneDrive, "access_token")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		token := &oauth2.Token{
			AccessToken:  cfg.AccessToken,
			RefreshToken: cfg.RefreshToken,
			Expiry:       cfg.TokenExpiry,
			TokenType:    "Bearer",
		}
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	}

	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}

	client := &graphClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}

	adapter := &Adapter{
		client:   client,
		rootPath: pathutil.NormalizePath(cfg.RootFolderPath),
	}
	adapter.fetchContent = client.downloadContent

	return adapter, nil
}

func (a *Adapter) UploadFile(ctx context.Context, content []byte, filename string, opts storage.UploadOptions) (storage.UploadResult, error) {
	if filename == "" {
		return storage.UploadResult{}, fmt.Errorf("filename is empty")
	}

	folderPath := pathutil.JoinPath(a.rootPath, opts.FolderPath)
	if folderPath != "" {
		if _, err := a.ensureFolders(ctx, folderPath); err != nil {
			return storage.UploadResult{}, err
		}
	}

	name := filename
	if !opts.Overwrite {
		var err error
		name, err = storage.GenerateUniqueFilename(ctx, filename, func(ctx context.Context, candidate string) (bool, error) {
			return a.itemExistsAtPath(ctx, pathutil.JoinPath(folderPath, candidate))
		})
		if err != nil {
			return storage.UploadResult{}, err
		}
	}

	item, err := a.client.uploadContent(ctx, pathutil.JoinPath(folderPath, name), content)
	if err != nil {
		return storage.UploadResult{}, fmt.Errorf("failed to upload file to OneDrive: %w", err)
	}

	return storage.UploadResult{
		Path: item.ID,
		Name: item.Name,
		Size: item.Size,
		URL:  item.WebURL,
	}, nil
}

func (a *Adapter) DownloadFile(ctx context.Context, path string) ([]byte, error) {
	content, err := a.fetchContent(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("onedrive item %s: %w", path, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to download file: %w", err)
	}

	return normalizeContent(content)
}

func (a *Adapter) DeleteFile(ctx context.Context, path string) error {
	if err := a.client.deleteItem(ctx, path); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("onedrive item %s: %w", path, storage.ErrNotFound)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

func (a *Adapter) StatFile(ctx context.Context, path string) (storage.StorageFile, error) {
	item, err := a.client.getItemByID(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.StorageFile{}, fmt.Errorf("onedrive item %s: %w", path, storage.ErrNotFound)
		}
		return storage.StorageFile{}, fmt.Errorf("failed to get item metadata: %w", err)
	}

	return toStorageFile(item), nil
}

func (a *Adapter) FileExists(ctx context.Context, path string) bool {
	_, err := a.client.getItemByID(ctx, path)
	return err == nil
}

func (a *Adapter) ListFiles(ctx context.Context, folderPath string) ([]storage.StorageFile, error) {
	children, err := a.client.listChildrenByPath(ctx, pathutil.JoinPath(a.rootPath, folderPath))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []storage.StorageFile{}, nil
		}
		return nil, fmt.Errorf("failed to list folder: %w", err)
	}

	files := make([]storage.StorageFile, 0, len(children))
	for i := range children {
		if children[i].Folder != nil {
			continue
		}
		files = append(files, toStorageFile(&children[i]))
	}

	return files, nil
}

func (a *Adapter) CreateFolder(ctx context.Context, folderPath string) (string, error) {
	full := pathutil.JoinPath(a.rootPath, folderPath)
	if full == "" {
		root, err := a.client.getItemByPath(ctx, "")
		if err != nil {
			return "", fmt.Errorf("failed to resolve drive root: %w", err)
		}
		return root.ID, nil
	}

	item, err := a.ensureFolders(ctx, full)
	if err != nil {
		return "", err
	}

	return item.ID, nil
}

func (a *Adapter) GetPublicURL(ctx context.Context, path string) string {
	link, err := a.client.createViewLink(ctx, path)
	if err != nil {
		return ""
	}

	return link
}

func (a *Adapter) TestConnection(ctx context.Context) bool {
	return a.client.getDrive(ctx) == nil
}

// GetFilePath reconstructs the human-readable virtual path of an item.
// Graph usually includes a literal parent path ("/drive/root:/a/b") which
// only needs its root: prefix stripped; when it is absent the parent chain is
// walked by id, capped at maxParentWalkDepth so malformed data cannot recurse
// unbounded.
func (a *Adapter) GetFilePath(ctx context.Context, itemID string) (string, error) {
	item, err := a.client.getItemByID(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("failed to get item for path reconstruction: %w", err)
	}

	if item.ParentReference != nil && item.ParentReference.Path != "" {
		folder := stripRootPrefix(item.ParentReference.Path)
		return pathutil.JoinPath(folder, item.Name), nil
	}

	segments := []string{item.Name}
	parentID := ""
	if item.ParentReference != nil {
		parentID = item.ParentReference.ID
	}

	for depth := 0; parentID != ""; depth++ {
		if depth >= maxParentWalkDepth {
			return "", fmt.Errorf("parent chain of item %s exceeds depth %d", itemID, maxParentWalkDepth)
		}

		parent, err := a.client.getItemByID(ctx, parentID)
		if err != nil {
			return "", fmt.Errorf("failed to walk parent chain: %w", err)
		}

		// The drive root reports a folder with no parent; its synthetic
		// name must not appear in the virtual path.
		if parent.ParentReference == nil || parent.ParentReference.ID == "" {
			break
		}

		segments = append([]string{parent.Name}, segments...)
		parentID = parent.ParentReference.ID
	}

	return pathutil.JoinPath(segments...), nil
}

// ensureFolders resolves the folder chain segment by segment, creating
// missing segments under the previously resolved parent. Existence is always
// checked before create; the rename conflict behavior on create is only a
// safety net for the unavoidable check-then-create window.
func (a *Adapter) ensureFolders(ctx context.Context, folderPath string) (*driveItem, error) {
	parent, err := a.client.getItemByPath(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve drive root: %w", err)
	}

	walked := ""
	for _, segment := range pathutil.SplitPath(folderPath) {
		walked = pathutil.JoinPath(walked, segment)

		existing, err := a.client.getItemByPath(ctx, walked)
		if err == nil {
			parent = existing
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up folder %q: %w", walked, err)
		}

		created, err := a.client.createChildFolder(ctx, parent.ID, segment)
		if err != nil {
			return nil, fmt.Errorf("failed to create folder %q: %w", segment, err)
		}
		parent = created
	}

	return parent, nil
}

func (a *Adapter) itemExistsAtPath(ctx context.Context, p string) (bool, error) {
	_, err := a.client.getItemByPath(ctx, p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}

	return false, err
}

func stripRootPrefix(graphPath string) string {
	idx := strings.Index(graphPath, "root:")
	if idx < 0 {
		return pathutil.NormalizePath(graphPath)
	}

	return pathutil.NormalizePath(graphPath[idx+len("root:"):])
}

func toStorageFile(item *driveItem) storage.StorageFile {
	sf := storage.StorageFile{
		Path:         item.ID,
		Name:         item.Name,
		Size:         item.Size,
		LastModified: item.LastModifiedDateTime,
	}

	if item.File != nil {
		sf.MimeType = item.File.MimeType
	}

	return sf
}
