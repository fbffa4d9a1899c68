package onedrive

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

const defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

// graphClient is a thin client over the Microsoft Graph drive endpoints the
// adapter needs. Items are addressed both by id (/me/drive/items/{id}) and by
// path (/me/drive/root:/a/b:), mirroring how Graph itself mixes the two.
type graphClient struct {
	httpClient *http.Client
	baseURL    string
}

type driveItem struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Size                 int64      `json:"size"`
	WebURL               string     `json:"webUrl"`
	LastModifiedDateTime *time.Time `json:"lastModifiedDateTime,omitempty"`
	File                 *fileFacet `json:"file,omitempty"`
	Folder               *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder,omitempty"`
	ParentReference *parentReference `json:"parentReference,omitempty"`
}

type fileFacet struct {
	MimeType string `json:"mimeType"`
}

type parentReference struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type driveChildren struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

type graphError struct {
	Err struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// escapePath percent-escapes each segment of a virtual path for use inside a
// root:/...: address.
func escapePath(p string) string {
	segments := pathutil.SplitPath(p)
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// itemURLByPath builds /me/drive/root:/{path}: with an optional trailing
// resource such as /content or /children. The bare root has no :/...: form.
func (c *graphClient) itemURLByPath(p, resource string) string {
	escaped := escapePath(p)
	if escaped == "" {
		if resource == "" {
			return c.baseURL + "/me/drive/root"
		}
		return c.baseURL + "/me/drive/root" + resource
	}
	return c.baseURL + "/me/drive/root:/" + escaped + ":" + resource
}

func (c *graphClient) itemURLByID(id, resource string) string {
	return c.baseURL + "/me/drive/items/" + url.PathEscape(id) + resource
}

func (c *graphClient) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request failed: %w", err)
	}

	return resp, nil
}

// decodeItem reads a driveItem response, translating 404 into ErrNotFound and
// preserving the Graph error message verbatim for everything else.
func decodeItem(resp *http.Response) (*driveItem, error) {
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var item driveItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to decode drive item: %w", err)
	}

	return &item, nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusNotFound {
		return storage.ErrNotFound
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var gerr graphError
	if err := json.Unmarshal(raw, &gerr); err == nil && gerr.Err.Message != "" {
		return fmt.Errorf("graph error %d [%s]: %s", resp.StatusCode, gerr.Err.Code, gerr.Err.Message)
	}

	return fmt.Errorf("graph error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

func (c *graphClient) getItemByID(ctx context.Context, id string) (*driveItem, error) {
	resp, err := c.do(ctx, http.MethodGet, c.itemURLByID(id, ""), nil, "")
	if err != nil {
		return nil, err
	}
	return decodeItem(resp)
}

func (c *graphClient) getItemByPath(ctx context.Context, p string) (*driveItem, error) {
	resp, err := c.do(ctx, http.MethodGet, c.itemURLByPath(p, ""), nil, "")
	if err != nil {
		return nil, err
	}
	return decodeItem(resp)
}

// listChildrenByPath collects all children of a folder. Graph pages the
// /children collection, so the @odata.nextLink is followed until absent.
func (c *graphClient) listChildrenByPath(ctx context.Context, p string) ([]driveItem, error) {
	var items []driveItem

	next := c.itemURLByPath(p, "/children")
	for next != "" {
		page, err := c.listChildrenPage(ctx, next)
		if err != nil {
			return nil, err
		}

		items = append(items, page.Value...)
		next = page.NextLink
	}

	return items, nil
}

func (c *graphClient) listChildrenPage(ctx context.Context, rawURL string) (*driveChildren, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var children driveChildren
	if err := json.NewDecoder(resp.Body).Decode(&children); err != nil {
		return nil, fmt.Errorf("failed to decode children: %w", err)
	}

	return &children, nil
}

// createChildFolder creates a folder under a known parent id. The rename
// conflict behavior is a safety net behind the caller's existence check, so a
// lost race produces a renamed folder rather than a hard failure.
func (c *graphClient) createChildFolder(ctx context.Context, parentID, name string) (*driveItem, error) {
	body, err := json.Marshal(map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "rename",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal folder request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.itemURLByID(parentID, "/children"), bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	return decodeItem(resp)
}

func (c *graphClient) uploadContent(ctx context.Context, p string, content []byte) (*driveItem, error) {
	resp, err := c.do(ctx, http.MethodPut, c.itemURLByPath(p, "/content"), bytes.NewReader(content), "application/octet-stream")
	if err != nil {
		return nil, err
	}
	return decodeItem(resp)
}

func (c *graphClient) deleteItem(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.itemURLByID(id, ""), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkResponse(resp)
}

// downloadContent fetches the raw item content. The result is intentionally
// untyped: older transports hand back buffered bytes while the default path
// streams, and normalizeContent folds every accepted shape into one byte
// slice at this boundary.
func (c *graphClient) downloadContent(ctx context.Context, id string) (any, error) {
	resp, err := c.do(ctx, http.MethodGet, c.itemURLByID(id, "/content"), nil, "")
	if err != nil {
		return nil, err
	}

	if err := checkResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return resp.Body, nil
}

type sharingLink struct {
	Link struct {
		WebURL string `json:"webUrl"`
	} `json:"link"`
}

// createViewLink asks Graph for an anonymous view-scoped sharing link. This
// is a mutating call: each invocation may mint a new link unless the service
// dedupes, which is not guaranteed.
func (c *graphClient) createViewLink(ctx context.Context, id string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"type":  "view",
		"scope": "anonymous",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal link request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.itemURLByID(id, "/createLink"), bytes.NewReader(body), "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return "", err
	}

	var link sharingLink
	if err := json.NewDecoder(resp.Body).Decode(&link); err != nil {
		return "", fmt.Errorf("failed to decode sharing link: %w", err)
	}

	return link.Link.WebURL, nil
}

func (c *graphClient) getDrive(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/me/drive", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkResponse(resp)
}
