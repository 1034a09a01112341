package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(srv.URL, http.DefaultClient, slog.Default()), srv
}

func TestBuildURL(t *testing.T) {
	c := NewClient("", nil, nil)

	tests := []struct {
		name, path, want string
	}{
		{"empty path yields base", "", APIBase},
		{"leading slash appends", "/files", APIBase + "/files"},
		{"bare segment joins", "files", APIBase + "/files"},
		{"absolute https passes through", "https://x/y", "https://x/y"},
		{"absolute http passes through", "http://x/y", "http://x/y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.BuildURL(tt.path))
		})
	}
}

func TestExecute_Success(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.URL.Query().Get("supportsAllDrives"))
		assert.Equal(t, "10", r.URL.Query().Get("pageSize"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"kind":"drive#fileList","files":[{"id":"f1","modifiedTime":"2023-06-01T10:20:30.500Z"}]}`)
	}))

	data, err := c.Execute(context.Background(), Call{
		Token:  "tok",
		Method: http.MethodGet,
		URL:    c.BuildURL("/files"),
		Params: map[string]any{"supportsAllDrives": true, "pageSize": float64(10)},
	})
	require.NoError(t, err)
	assert.Equal(t, "drive#fileList", data["kind"])

	files, ok := data["files"].([]any)
	require.True(t, ok)

	first, ok := files[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2023-06-01T10:20:30.500+0000", first["modifiedTime"])
}

func TestExecute_PostBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"report.txt"}`, string(body))

		fmt.Fprint(w, `{"id":"new-file"}`)
	}))

	data, err := c.Execute(context.Background(), Call{
		Token:  "tok",
		Method: http.MethodPost,
		URL:    c.BuildURL("files"),
		Body:   map[string]any{"name": "report.txt"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new-file", data["id"])
}

func TestExecute_UpstreamErrorIsStructured(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"code":500,"message":"Internal Error"}}`)
	}))

	_, err := c.Execute(context.Background(), Call{Token: "tok", Method: http.MethodGet, URL: c.BuildURL("files")})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "Internal Error", apiErr.Message)
	assert.ErrorIs(t, err, ErrServerError)
}

func TestExecute_ErrorMessageFallsBackToRawBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `not json at all`)
	}))

	_, err := c.Execute(context.Background(), Call{Token: "tok", Method: http.MethodGet, URL: c.BuildURL("files")})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not json at all", apiErr.Message)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestExecute_EmptyBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	data, err := c.Execute(context.Background(), Call{Token: "tok", Method: http.MethodDelete, URL: c.BuildURL("/files/f1")})
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestExecute_TransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", http.DefaultClient, slog.Default())

	_, err := c.Execute(context.Background(), Call{Token: "tok", Method: http.MethodGet, URL: c.BuildURL("files")})
	require.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr), "transport failures must not classify as API errors")
}

func TestFileMetadata(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/doc-1", r.URL.Path)

		fmt.Fprint(w, `{"id":"doc-1","name":"Quarterly Report","mimeType":"application/vnd.google-apps.document",
			"exportLinks":{"application/pdf":"https://export.example.com/doc-1.pdf"}}`)
	}))

	info, err := c.FileMetadata(context.Background(), "tok", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report", info.Name)
	assert.Equal(t, "https://export.example.com/doc-1.pdf", info.ExportLinks["application/pdf"])
}

func TestDownloadContent(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "media", r.URL.Query().Get("alt"))
		fmt.Fprint(w, "file-bytes")
	}))

	var buf bytes.Buffer

	n, err := c.DownloadContent(context.Background(), "tok", "f1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("file-bytes")), n)
	assert.Equal(t, "file-bytes", buf.String())
}

func TestUploadMultipart(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/files", r.URL.Path)
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/related"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"name":"notes.txt"`)
		assert.Contains(t, string(body), `"parents":["folder-9"]`)
		assert.Contains(t, string(body), "hello upload")

		fmt.Fprint(w, `{"id":"uploaded-1","parents":["folder-9"]}`)
	}))

	id, err := c.UploadMultipart(context.Background(), "tok",
		UploadMeta{Name: "notes.txt", FolderID: "folder-9", MimeType: "text/plain"},
		"text/plain", strings.NewReader("hello upload"))
	require.NoError(t, err)
	assert.Equal(t, "uploaded-1", id)
}

func TestUserInfo(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/userinfo", r.URL.Path)
		fmt.Fprint(w, `{"sub":"123","name":"Jane Doe","picture":"https://example.com/p.png"}`)
	}))

	info, err := c.UserInfo(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", info.Name)
	assert.Equal(t, "https://example.com/p.png", info.Picture)
}

func TestNormalizeTimestamps_RoundTrip(t *testing.T) {
	in := map[string]any{
		"modifiedTime": "2023-06-01T10:20:30.500Z",
		"nested": map[string]any{
			"createdTime": "2021-12-31T23:59:59+02:00",
		},
		"list":  []any{"2020-01-01T00:00:00Z", "not a date"},
		"plain": "hello",
		"count": float64(3),
	}

	out, ok := NormalizeTimestamps(in).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "2023-06-01T10:20:30.500+0000", out["modifiedTime"])
	assert.Equal(t, "hello", out["plain"])
	assert.Equal(t, float64(3), out["count"])

	nested, ok := out["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2021-12-31T23:59:59.000+0200", nested["createdTime"])

	list, ok := out["list"].([]any)
	require.True(t, ok)
	assert.Equal(t, "not a date", list[1])

	// Round trip: the canonical text denotes the same instant.
	orig, err := time.Parse(time.RFC3339Nano, "2023-06-01T10:20:30.500Z")
	require.NoError(t, err)

	back, err := ParseTimestamp(out["modifiedTime"].(string))
	require.NoError(t, err)
	assert.True(t, orig.Equal(back))

	// Idempotence: canonical strings are left untouched.
	again := NormalizeTimestamps(out["modifiedTime"]).(string)
	assert.Equal(t, out["modifiedTime"], again)
}

func TestResult_Payload(t *testing.T) {
	ok := Result{Data: map[string]any{"id": "f1"}}
	assert.True(t, ok.OK())
	assert.Equal(t, map[string]any{"id": "f1"}, ok.Payload())

	failed := Result{Error: &CallError{Code: "api", Message: "boom", HTTPStatus: 500}}
	assert.False(t, failed.OK())
	assert.Equal(t, map[string]any{"error": failed.Error}, failed.Payload())

	empty := Result{}
	assert.Equal(t, map[string]any{}, empty.Payload())
}
