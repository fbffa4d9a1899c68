package googledrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/docuflow/docuflow/pkg/storage"
)

// fakeDrive is an in-memory stand-in for the Drive v3 REST surface the
// adapter touches: create (metadata and multipart media), list with a name
// and parent scoped query, get, download, update media, delete and about.
type fakeDrive struct {
	mu     sync.Mutex
	files  map[string]*fakeFile
	nextID int
}

type fakeFile struct {
	id       string
	name     string
	parents  []string
	mime     string
	data     []byte
	appProps map[string]string
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{files: make(map[string]*fakeFile)}
}

func (f *fakeDrive) newID() string {
	f.nextID++
	return fmt.Sprintf("item-%d", f.nextID)
}

var (
	nameClauseRe   = regexp.MustCompile(`name = '((?:[^'\\]|\\.)*)'`)
	parentClauseRe = regexp.MustCompile(`'([^']+)' in parents`)
	mimeClauseRe   = regexp.MustCompile(`mimeType (=|!=) '([^']+)'`)
)

func (f *fakeDrive) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /about", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"user": map[string]any{"displayName": "Fake User"}})
	})

	mux.HandleFunc("GET /files", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		query := r.URL.Query().Get("q")

		var wantName, wantParent, wantMime, mimeOp string
		if m := nameClauseRe.FindStringSubmatch(query); m != nil {
			wantName = unescapeQuery(m[1])
		}
		if m := parentClauseRe.FindStringSubmatch(query); m != nil {
			wantParent = m[1]
		}
		if m := mimeClauseRe.FindStringSubmatch(query); m != nil {
			mimeOp, wantMime = m[1], m[2]
		}

		results := make([]map[string]any, 0)
		for _, file := range f.files {
			if wantName != "" && file.name != wantName {
				continue
			}
			if wantParent != "" && !contains(file.parents, wantParent) {
				continue
			}
			if mimeOp == "=" && file.mime != wantMime {
				continue
			}
			if mimeOp == "!=" && file.mime == wantMime {
				continue
			}
			results = append(results, f.fileJSON(file))
		}

		writeJSON(w, map[string]any{"files": results})
	})

	mux.HandleFunc("GET /files/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		file, ok := f.files[r.PathValue("id")]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"File not found"}}`, http.StatusNotFound)
			return
		}

		if r.URL.Query().Get("alt") == "media" {
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(file.data)
			return
		}

		writeJSON(w, f.fileJSON(file))
	})

	mux.HandleFunc("DELETE /files/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		id := r.PathValue("id")
		if _, ok := f.files[id]; !ok {
			http.Error(w, `{"error":{"code":404,"message":"File not found"}}`, http.StatusNotFound)
			return
		}

		delete(f.files, id)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		var meta uploadMeta
		if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		file := &fakeFile{
			id:       f.newID(),
			name:     meta.Name,
			parents:  meta.Parents,
			mime:     meta.MimeType,
			appProps: meta.AppProperties,
		}
		f.files[file.id] = file
		writeJSON(w, f.fileJSON(file))
	})

	mux.HandleFunc("POST /upload/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		meta, data, err := parseMultipartUpload(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		file := &fakeFile{
			id:       f.newID(),
			name:     meta.Name,
			parents:  meta.Parents,
			mime:     meta.MimeType,
			data:     data,
			appProps: meta.AppProperties,
		}
		f.files[file.id] = file
		writeJSON(w, f.fileJSON(file))
	})

	mux.HandleFunc("PATCH /upload/drive/v3/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		file, ok := f.files[r.PathValue("id")]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"File not found"}}`, http.StatusNotFound)
			return
		}

		meta, data, err := parseMultipartUpload(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		file.data = data
		if meta.AppProperties != nil {
			file.appProps = meta.AppProperties
		}
		writeJSON(w, f.fileJSON(file))
	})

	return mux
}

type uploadMeta struct {
	Name          string            `json:"name"`
	MimeType      string            `json:"mimeType"`
	Parents       []string          `json:"parents"`
	AppProperties map[string]string `json:"appProperties"`
}

func parseMultipartUpload(r *http.Request) (uploadMeta, []byte, error) {
	var meta uploadMeta

	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return meta, nil, err
	}

	reader := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := reader.NextPart()
	if err != nil {
		return meta, nil, err
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		return meta, nil, err
	}

	mediaPart, err := reader.NextPart()
	if err != nil {
		return meta, nil, err
	}
	data, err := io.ReadAll(mediaPart)
	if err != nil {
		return meta, nil, err
	}

	return meta, data, nil
}

func (f *fakeDrive) fileJSON(file *fakeFile) map[string]any {
	return map[string]any{
		"id":          file.id,
		"name":        file.name,
		"mimeType":    file.mime,
		"parents":     file.parents,
		"size":        strconv.Itoa(len(file.data)),
		"webViewLink": "https://drive.example.com/view/" + file.id,
	}
}

func (f *fakeDrive) countByName(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, file := range f.files {
		if file.name == name {
			count++
		}
	}
	return count
}

// unescapeQuery reverses the query escaping: a backslash escapes the
// following character.
func unescapeQuery(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeDrive) {
	t.Helper()

	fake := newFakeDrive()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	adapter, err := NewAdapter(context.Background(), Config{
		Endpoint:   server.URL,
		HTTPClient: option.WithHTTPClient(server.Client()),
	})
	require.NoError(t, err)

	return adapter, fake
}

func TestNewAdapter_RequiresAccessToken(t *testing.T) {
	_, err := NewAdapter(context.Background(), Config{})

	require.Error(t, err)
	var cfgErr *storage.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "access_token", cfgErr.Field)
}

func TestAdapter_UploadDownloadRoundTrip(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	content := []byte("drive round trip payload")
	result, err := adapter.UploadFile(ctx, content, "invoice.pdf", storage.UploadOptions{
		FolderPath: "clients/acme",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Path)
	assert.Equal(t, "invoice.pdf", result.Name)
	assert.Equal(t, int64(len(content)), result.Size)
	assert.NotEmpty(t, result.URL)

	downloaded, err := adapter.DownloadFile(ctx, result.Path)
	require.NoError(t, err)
	assert.Equal(t, content, downloaded)

	assert.True(t, adapter.FileExists(ctx, result.Path))
}

func TestAdapter_CollisionSafeNaming(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	first, err := adapter.UploadFile(ctx, []byte("v1"), "report.pdf", storage.UploadOptions{FolderPath: "reports"})
	require.NoError(t, err)

	second, err := adapter.UploadFile(ctx, []byte("v2"), "report.pdf", storage.UploadOptions{FolderPath: "reports"})
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
	assert.Equal(t, "report.pdf", first.Name)
	assert.Equal(t, "report_1.pdf", second.Name)
}

func TestAdapter_CollisionSafeNaming_BackslashInName(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	first, err := adapter.UploadFile(ctx, []byte("v1"), `scans\page.pdf`, storage.UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, `scans\page.pdf`, first.Name)

	second, err := adapter.UploadFile(ctx, []byte("v2"), `scans\page.pdf`, storage.UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, `scans\page_1.pdf`, second.Name)
}

func TestAdapter_UploadAttachesMetadata(t *testing.T) {
	adapter, fake := newTestAdapter(t)
	ctx := context.Background()

	result, err := adapter.UploadFile(ctx, []byte("x"), "doc.txt", storage.UploadOptions{
		Metadata: map[string]string{"document_id": "doc-42"},
	})
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Contains(t, fake.files, result.Path)
	assert.Equal(t, map[string]string{"document_id": "doc-42"}, fake.files[result.Path].appProps)
}

func TestAdapter_OverwriteKeepsPath(t *testing.T) {
	adapter, _ := newTestAdapter(t)
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
	adapter, fake := newTestAdapter(t)
	ctx := context.Background()

	first, err := adapter.CreateFolder(ctx, "a/b")
	require.NoError(t, err)

	second, err := adapter.CreateFolder(ctx, "a/b")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.countByName("b"))
}

func TestAdapter_ListFiles(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := adapter.UploadFile(ctx, []byte("one"), "a.txt", storage.UploadOptions{FolderPath: "inbox"})
	require.NoError(t, err)
	_, err = adapter.UploadFile(ctx, []byte("two"), "b.txt", storage.UploadOptions{FolderPath: "inbox"})
	require.NoError(t, err)

	files, err := adapter.ListFiles(ctx, "inbox")
	require.NoError(t, err)
	require.Len(t, files, 2)

	names := []string{files[0].Name, files[1].Name}
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
}

func TestAdapter_ListFiles_MissingFolderIsEmpty(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	files, err := adapter.ListFiles(context.Background(), "never/created")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestAdapter_NotFoundMapping(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := adapter.StatFile(ctx, "missing-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = adapter.DownloadFile(ctx, "missing-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = adapter.DeleteFile(ctx, "missing-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.False(t, adapter.FileExists(ctx, "missing-id"))
	assert.Empty(t, adapter.GetPublicURL(ctx, "missing-id"))
}

func TestAdapter_TestConnection(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	assert.True(t, adapter.TestConnection(context.Background()))
}
