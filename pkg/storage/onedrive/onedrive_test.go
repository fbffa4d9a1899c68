package onedrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/pkg/storage"
)

// fakeGraph is an in-memory stand-in for the Graph drive surface the adapter
// touches, covering both by-id (/me/drive/items/{id}) and by-path
// (/me/drive/root:/a/b:) addressing.
type fakeGraph struct {
	mu     sync.Mutex
	items  map[string]*gItem
	rootID string
	nextID int

	// omitParentPath drops parentReference.path from responses, forcing
	// GetFilePath onto the parent-id walk.
	omitParentPath bool

	// childPageSize, when set, windows /children responses and chains the
	// pages through @odata.nextLink.
	childPageSize int
}

type gItem struct {
	id       string
	name     string
	folder   bool
	parentID string
	data     []byte
}

func newFakeGraph() *fakeGraph {
	f := &fakeGraph{items: make(map[string]*gItem)}
	root := &gItem{id: "root-id", name: "root", folder: true}
	f.items[root.id] = root
	f.rootID = root.id
	return f
}

func (f *fakeGraph) newID() string {
	f.nextID++
	return fmt.Sprintf("od-%d", f.nextID)
}

func (f *fakeGraph) childByName(parentID, name string) *gItem {
	for _, item := range f.items {
		if item.parentID == parentID && item.name == name {
			return item
		}
	}
	return nil
}

func (f *fakeGraph) resolvePath(p string) *gItem {
	current := f.items[f.rootID]
	for _, segment := range strings.Split(p, "/") {
		if segment == "" {
			continue
		}
		current = f.childByName(current.id, segment)
		if current == nil {
			return nil
		}
	}
	return current
}

func (f *fakeGraph) pathOf(item *gItem) string {
	segments := []string{}
	for current := item; current != nil && current.id != f.rootID; current = f.items[current.parentID] {
		segments = append([]string{current.name}, segments...)
	}
	return strings.Join(segments, "/")
}

func (f *fakeGraph) itemJSON(item *gItem) map[string]any {
	out := map[string]any{
		"id":     item.id,
		"name":   item.name,
		"size":   len(item.data),
		"webUrl": "https://onedrive.example.com/items/" + item.id,
	}

	if item.folder {
		out["folder"] = map[string]any{"childCount": 0}
	} else {
		out["file"] = map[string]any{"mimeType": "application/octet-stream"}
	}

	if item.parentID != "" {
		parentRef := map[string]any{"id": item.parentID}
		if !f.omitParentPath {
			parent := f.items[item.parentID]
			parentRef["path"] = "/drive/root:/" + f.pathOf(parent)
		}
		out["parentReference"] = parentRef
	}

	return out
}

func notFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, `{"error":{"code":"itemNotFound","message":"The resource could not be found."}}`)
}

func (f *fakeGraph) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		path := strings.TrimPrefix(r.URL.Path, "/me/drive")

		switch {
		case path == "" || path == "/":
			writeJSON(w, map[string]any{"id": "drive-1", "driveType": "personal"})

		case path == "/root" || strings.HasPrefix(path, "/root:") || strings.HasPrefix(path, "/root/"):
			f.handleByPath(w, r, path)

		case strings.HasPrefix(path, "/items/"):
			f.handleByID(w, r, strings.TrimPrefix(path, "/items/"))

		default:
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusBadRequest)
		}
	})
}

func (f *fakeGraph) handleByPath(w http.ResponseWriter, r *http.Request, path string) {
	virtual := ""
	resource := ""

	switch {
	case path == "/root":
	case path == "/root/children":
		resource = "/children"
	default:
		// /root:/a/b:{resource}
		trimmed := strings.TrimPrefix(path, "/root:/")
		if idx := strings.LastIndex(trimmed, ":"); idx >= 0 {
			virtual, resource = trimmed[:idx], trimmed[idx+1:]
		} else {
			virtual = trimmed
		}
	}

	switch resource {
	case "", ":":
		item := f.resolvePath(virtual)
		if item == nil {
			notFound(w)
			return
		}
		writeJSON(w, f.itemJSON(item))

	case "/children":
		folder := f.resolvePath(virtual)
		if folder == nil {
			notFound(w)
			return
		}
		children := make([]map[string]any, 0)
		for _, item := range f.items {
			if item.parentID == folder.id {
				children = append(children, f.itemJSON(item))
			}
		}

		out := map[string]any{"value": children}
		if f.childPageSize > 0 {
			sort.Slice(children, func(i, j int) bool {
				return children[i]["name"].(string) < children[j]["name"].(string)
			})
			skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
			if skip > len(children) {
				skip = len(children)
			}
			end := skip + f.childPageSize
			if end > len(children) {
				end = len(children)
			}
			out["value"] = children[skip:end]
			if end < len(children) {
				out["@odata.nextLink"] = fmt.Sprintf("http://%s%s?skip=%d", r.Host, r.URL.Path, end)
			}
		}
		writeJSON(w, out)

	case "/content":
		if r.Method != http.MethodPut {
			http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
			return
		}

		folderPath := ""
		name := virtual
		if idx := strings.LastIndex(virtual, "/"); idx >= 0 {
			folderPath, name = virtual[:idx], virtual[idx+1:]
		}

		parent := f.resolvePath(folderPath)
		if parent == nil {
			notFound(w)
			return
		}

		data, _ := io.ReadAll(r.Body)

		item := f.childByName(parent.id, name)
		if item == nil {
			item = &gItem{id: f.newID(), name: name, parentID: parent.id}
			f.items[item.id] = item
		}
		item.data = data

		w.WriteHeader(http.StatusCreated)
		writeJSON(w, f.itemJSON(item))

	default:
		http.Error(w, "unexpected resource "+resource, http.StatusBadRequest)
	}
}

func (f *fakeGraph) handleByID(w http.ResponseWriter, r *http.Request, rest string) {
	id := rest
	resource := ""
	if idx := strings.Index(rest, "/"); idx >= 0 {
		id, resource = rest[:idx], rest[idx:]
	}

	item, ok := f.items[id]
	if !ok {
		notFound(w)
		return
	}

	switch resource {
	case "":
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, f.itemJSON(item))
		case http.MethodDelete:
			delete(f.items, id)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
		}

	case "/content":
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(item.data)

	case "/children":
		var req struct {
			Name   string         `json:"name"`
			Folder map[string]any `json:"folder"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		name := req.Name
		// conflictBehavior=rename emulation
		for i := 1; f.childByName(item.id, name) != nil; i++ {
			name = fmt.Sprintf("%s %d", req.Name, i)
		}

		child := &gItem{id: f.newID(), name: name, folder: req.Folder != nil, parentID: item.id}
		f.items[child.id] = child

		w.WriteHeader(http.StatusCreated)
		writeJSON(w, f.itemJSON(child))

	case "/createLink":
		writeJSON(w, map[string]any{
			"link": map[string]any{"webUrl": "https://1drv.example.com/share/" + item.id},
		})

	default:
		http.Error(w, "unexpected resource "+resource, http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestAdapter(t *testing.T, fake *fakeGraph, rootFolderPath string) *Adapter {
	t.Helper()

	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	adapter, err := NewAdapter(context.Background(), Config{
		RootFolderPath: rootFolderPath,
		Endpoint:       server.URL,
		HTTPClient:     server.Client(),
	})
	require.NoError(t, err)

	return adapter
}

func TestNewAdapter_RequiresAccessToken(t *testing.T) {
	_, err := NewAdapter(context.Background(), Config{})

	require.Error(t, err)
	var cfgErr *storage.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "access_token", cfgErr.Field)
}

func TestAdapter_UploadDownloadRoundTrip(t *testing.T) {
	adapter := newTestAdapter(t, newFakeGraph(), "")
	ctx := context.Background()

	content := []byte("onedrive round trip payload")
	result, err := adapter.UploadFile(ctx, content, "invoice.pdf", storage.UploadOptions{
		FolderPath: "clients/acme",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Path)
	assert.Equal(t, "invoice.pdf", result.Name)
	assert.NotEmpty(t, result.URL)

	downloaded, err := adapter.DownloadFile(ctx, result.Path)
	require.NoError(t, err)
	assert.Equal(t, content, downloaded)

	assert.True(t, adapter.FileExists(ctx, result.Path))
}

func TestAdapter_CanonicalPathIsItemID(t *testing.T) {
	adapter := newTestAdapter(t, newFakeGraph(), "")
	ctx := context.Background()

	result, err := adapter.UploadFile(ctx, []byte("x"), "doc.txt", storage.UploadOptions{FolderPath: "a"})
	require.NoError(t, err)

	// The returned path must be the opaque Graph id, not the virtual path.
	assert.NotContains(t, result.Path, "/")
	assert.NotEqual(t, "a/doc.txt", result.Path)

	stat, err := adapter.StatFile(ctx, result.Path)
	require.NoError(t, err)
	assert.Equal(t, "doc.txt", stat.Name)
}

func TestAdapter_CollisionSafeNaming(t *testing.T) {
	adapter := newTestAdapter(t, newFakeGraph(), "")
	ctx := context.Background()

	first, err := adapter.UploadFile(ctx, []byte("v1"), "report.pdf", storage.UploadOptions{FolderPath: "reports"})
	require.NoError(t, err)

	second, err := adapter.UploadFile(ctx, []byte("v2"), "report.pdf", storage.UploadOptions{FolderPath: "reports"})
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
	assert.Equal(t, "report.pdf", first.Name)
	assert.Equal(t, "report_1.pdf", second.Name)
}

func TestAdapter_OverwriteKeepsPath(t *testing.T) {
	adapter := newTestAdapter(t, newFakeGraph(), "")
	ctx := context.Background()

	first, err := adapter.UploadFile(ctx, []byte("v1"), "report.pdf", storage.UploadOptions{Overwrite: true})
	require.NoError(t, err)

	second, err := adapter.UploadFile(ctx, []byte("v2"), "report.pdf", storage.UploadOptions{Overwrite: true})
	require.NoError(t, err)

	assert.Equal(t, first.Path, second.Path)

	downloaded, err := adapter.DownloadFile(ctx, first.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), downloaded)
}

func TestAdapter_CreateFolderIdempotent(t *testing.T) {
	fake := newFakeGraph()
	adapter := newTestAdapter(t, fake, "")
	ctx := context.Background()

	first, err := adapter.CreateFolder(ctx, "a/b")
	require.NoError(t, err)

	second, err := adapter.CreateFolder(ctx, "a/b")
	require.NoError(t, err)

	assert.Equal(t, first, second)

	count := 0
	for _, item := range fake.items {
		if item.name == "b" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestAdapter_RootFolderPathPrefix(t *testing.T) {
	fake := newFakeGraph()
	adapter := newTestAdapter(t, fake, "Docuflow")
	ctx := context.Background()

	result, err := adapter.UploadFile(ctx, []byte("x"), "doc.txt", storage.UploadOptions{FolderPath: "inbox"})
	require.NoError(t, err)

	path, err := adapter.GetFilePath(ctx, result.Path)
	require.NoError(t, err)
	assert.Equal(t, "Docuflow/inbox/doc.txt", path)
}

func TestAdapter_GetFilePath_ParentWalk(t *testing.T) {
	fake := newFakeGraph()
	fake.omitParentPath = true
	adapter := newTestAdapter(t, fake, "")
	ctx := context.Background()

	result, err := adapter.UploadFile(ctx, []byte("x"), "c.txt", storage.UploadOptions{FolderPath: "a/b"})
	require.NoError(t, err)

	path, err := adapter.GetFilePath(ctx, result.Path)
	require.NoError(t, err)
	assert.Equal(t, "a/b/c.txt", path)
}

func TestAdapter_ListFiles(t *testing.T) {
	adapter := newTestAdapter(t, newFakeGraph(), "")
	ctx := context.Background()

	_, err := adapter.UploadFile(ctx, []byte("one"), "a.txt", storage.UploadOptions{FolderPath: "inbox"})
	require.NoError(t, err)
	_, err = adapter.CreateFolder(ctx, "inbox/nested")
	require.NoError(t, err)

	files, err := adapter.ListFiles(ctx, "inbox")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].Name)

	missing, err := adapter.ListFiles(ctx, "never/created")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestAdapter_ListFilesFollowsNextLink(t *testing.T) {
	fake := newFakeGraph()
	fake.childPageSize = 100
	adapter := newTestAdapter(t, fake, "")
	ctx := context.Background()

	folder := &gItem{id: fake.newID(), name: "bulk", folder: true, parentID: fake.rootID}
	fake.items[folder.id] = folder
	for i := 0; i < 250; i++ {
		item := &gItem{id: fake.newID(), name: fmt.Sprintf("doc_%03d.pdf", i), parentID: folder.id, data: []byte("x")}
		fake.items[item.id] = item
	}

	files, err := adapter.ListFiles(ctx, "bulk")
	require.NoError(t, err)
	assert.Len(t, files, 250)
}

func TestAdapter_NotFoundMapping(t *testing.T) {
	adapter := newTestAdapter(t, newFakeGraph(), "")
	ctx := context.Background()

	_, err := adapter.StatFile(ctx, "missing-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = adapter.DownloadFile(ctx, "missing-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = adapter.DeleteFile(ctx, "missing-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.False(t, adapter.FileExists(ctx, "missing-id"))
}

func TestAdapter_GetPublicURL(t *testing.T) {
	adapter := newTestAdapter(t, newFakeGraph(), "")
	ctx := context.Background()

	result, err := adapter.UploadFile(ctx, []byte("x"), "doc.txt", storage.UploadOptions{})
	require.NoError(t, err)

	url := adapter.GetPublicURL(ctx, result.Path)
	assert.Contains(t, url, result.Path)

	assert.Empty(t, adapter.GetPublicURL(ctx, "missing-id"))
}

func TestAdapter_TestConnection(t *testing.T) {
	adapter := newTestAdapter(t, newFakeGraph(), "")
	assert.True(t, adapter.TestConnection(context.Background()))
}
