package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slingr-stack/google-drive-endpoint/internal/drive"
	"github.com/slingr-stack/google-drive-endpoint/internal/platform"
	"github.com/slingr-stack/google-drive-endpoint/internal/session"
)

type fakeSessions struct {
	connectResult map[string]any
	connectParams session.ConnectParams

	disconnectResult map[string]any
	disconnectCalls  int

	token      string
	tokenErr   error
	authURL    string
	execResult drive.Result
	lastCall   drive.Call

	userConnected bool
	userInfo      *drive.UserInfo
	userInfoErr   error

	disconnectionChecks []*drive.APIError
}

func (s *fakeSessions) Connect(_ context.Context, _, _, _ string, params session.ConnectParams) (map[string]any, error) {
	s.connectParams = params

	return s.connectResult, nil
}

func (s *fakeSessions) Disconnect(_ context.Context, _, _, _ string, _ bool) map[string]any {
	s.disconnectCalls++

	return s.disconnectResult
}

func (s *fakeSessions) ResolveToken(_ context.Context, _, _, _ string) (string, error) {
	return s.token, s.tokenErr
}

func (s *fakeSessions) Execute(_ context.Context, _, _ string, call drive.Call) drive.Result {
	s.lastCall = call

	return s.execResult
}

func (s *fakeSessions) CheckDisconnection(_ context.Context, _, _ string, apiErr *drive.APIError) {
	s.disconnectionChecks = append(s.disconnectionChecks, apiErr)
}

func (s *fakeSessions) AuthorizationURL() string {
	return s.authURL
}

func (s *fakeSessions) UserInformation(_ context.Context, _ string) (bool, *drive.UserInfo, error) {
	return s.userConnected, s.userInfo, s.userInfoErr
}

type fakeTransfers struct {
	metadata    *drive.FileInfo
	metadataErr error

	content     string
	downloadErr error
	downloadURL string

	exportURL    string
	exportParams map[string]any

	uploadedMeta  drive.UploadMeta
	uploadedMedia string
	uploadedBody  string
	uploadErr     error
}

func (f *fakeTransfers) BuildURL(path string) string {
	switch {
	case path == "":
		return "https://api.test/drive/v3"
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		return path
	case strings.HasPrefix(path, "/"):
		return "https://api.test/drive/v3" + path
	default:
		return "https://api.test/drive/v3/" + path
	}
}

func (f *fakeTransfers) FileMetadata(_ context.Context, _, _ string) (*drive.FileInfo, error) {
	return f.metadata, f.metadataErr
}

func (f *fakeTransfers) DownloadContent(_ context.Context, _, _ string, w io.Writer) (int64, error) {
	if f.downloadErr != nil {
		return 0, f.downloadErr
	}

	n, err := io.WriteString(w, f.content)

	return int64(n), err
}

func (f *fakeTransfers) DownloadFromURL(_ context.Context, _, rawURL string, w io.Writer) (int64, error) {
	f.downloadURL = rawURL

	if f.downloadErr != nil {
		return 0, f.downloadErr
	}

	n, err := io.WriteString(w, f.content)

	return int64(n), err
}

func (f *fakeTransfers) Export(_ context.Context, _, rawURL string, params map[string]any, w io.Writer) (int64, error) {
	f.exportURL = rawURL
	f.exportParams = params

	n, err := io.WriteString(w, f.content)

	return int64(n), err
}

func (f *fakeTransfers) UploadMultipart(_ context.Context, _ string, meta drive.UploadMeta, mediaType string, r io.Reader) (string, error) {
	f.uploadedMeta = meta
	f.uploadedMedia = mediaType

	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	f.uploadedBody = string(body)

	if f.uploadErr != nil {
		return "", f.uploadErr
	}

	return "drive-file-1", nil
}

type fakeFiles struct {
	content     string
	downloadErr error

	uploadedName string
	uploadedMime string
	uploadedBody string
}

func (f *fakeFiles) Download(_ context.Context, _ string) (io.ReadCloser, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}

	return io.NopCloser(strings.NewReader(f.content)), nil
}

func (f *fakeFiles) Upload(_ context.Context, name string, r io.Reader, mimeType string) (map[string]any, error) {
	f.uploadedName = name
	f.uploadedMime = mimeType

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	f.uploadedBody = string(body)

	return map[string]any{"fileId": "platform-file-1", "fileName": name}, nil
}

// recordingEvents captures Notify payloads so tests can assert on the
// app log entries forwarded to the platform.
type recordingEvents struct {
	notified []map[string]any
}

func (r *recordingEvents) SendSync(context.Context, string, string, string, any) (any, error) {
	return nil, nil
}

func (r *recordingEvents) SendUserConnectedEvent(context.Context, string, string, map[string]any) {}

func (r *recordingEvents) SendUserDisconnectedEvent(context.Context, string, string) {}

func (r *recordingEvents) Notify(_ context.Context, _ string, payload map[string]any) {
	r.notified = append(r.notified, payload)
}

type harness struct {
	router    http.Handler
	sessions  *fakeSessions
	transfers *fakeTransfers
	files     *fakeFiles
	events    *recordingEvents
}

func newHarness() *harness {
	sessions := &fakeSessions{token: "access-1", authURL: "https://accounts.test/consent"}
	transfers := &fakeTransfers{}
	files := &fakeFiles{}
	events := &recordingEvents{}
	e := New(sessions, transfers, files, platform.NewAppLogs(slog.Default(), events), slog.Default())

	return &harness{
		router:    NewRouter(e, slog.Default()),
		sessions:  sessions,
		transfers: transfers,
		files:     files,
		events:    events,
	}
}

func (h *harness) invoke(t *testing.T, function string, params map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"functionId": "fn1",
		"userId":     "user1",
		"params":     params,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/functions/"+function, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	h.router.ServeHTTP(recorder, req)

	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded))

	return decoded
}

func TestCallbackRoutes(t *testing.T) {
	h := newHarness()

	for _, path := range []string{"/", "/callback"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		recorder := httptest.NewRecorder()
		h.router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code, path)
		assert.Equal(t, "ok", recorder.Body.String(), path)
	}
}

func TestUnknownFunction(t *testing.T) {
	h := newHarness()

	recorder := h.invoke(t, "nope", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestConnectUserDispatch(t *testing.T) {
	h := newHarness()
	h.sessions.connectResult = map[string]any{"userId": "user1"}

	recorder := h.invoke(t, "connectUser", map[string]any{"code": "code-abc"})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "user1", decodeBody(t, recorder)["userId"])
	require.NotNil(t, h.sessions.connectParams.Code)
	assert.Equal(t, "code-abc", *h.sessions.connectParams.Code)
}

func TestAuthenticationURL(t *testing.T) {
	h := newHarness()

	recorder := h.invoke(t, "authenticationUrl", nil)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "https://accounts.test/consent", decodeBody(t, recorder)["url"])
}

func TestGetUserInformation(t *testing.T) {
	h := newHarness()
	h.sessions.userConnected = true
	h.sessions.userInfo = &drive.UserInfo{Name: "Ada", Picture: "https://pics.test/ada"}

	body := decodeBody(t, h.invoke(t, "getUserInformation", nil))

	assert.Equal(t, true, body["status"])

	info, ok := body["information"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ada", info["name"])
	assert.Equal(t, "https://pics.test/ada", info["picture"])
}

func TestGetUserInformationDisconnected(t *testing.T) {
	h := newHarness()

	body := decodeBody(t, h.invoke(t, "getUserInformation", nil))

	assert.Equal(t, false, body["status"])
	assert.NotContains(t, body, "information")
}

func TestFunctionInvocationForwardsAppLog(t *testing.T) {
	h := newHarness()
	h.sessions.execResult = drive.Result{Data: map[string]any{}}

	h.invoke(t, "getRequest", map[string]any{"path": "/about"})

	require.NotEmpty(t, h.events.notified)
	assert.Equal(t, "info", h.events.notified[0]["level"])
	assert.Equal(t, "Executing function [getRequest]", h.events.notified[0]["message"])
}

func TestGetRequest(t *testing.T) {
	h := newHarness()
	h.sessions.execResult = drive.Result{Data: map[string]any{"id": "file1"}}

	recorder := h.invoke(t, "getRequest", map[string]any{
		"path":   "files/file1",
		"params": map[string]any{"fields": "id,name"},
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "file1", decodeBody(t, recorder)["id"])

	call := h.sessions.lastCall
	assert.Equal(t, http.MethodGet, call.Method)
	assert.Equal(t, "https://api.test/drive/v3/files/file1", call.URL)
	assert.Equal(t, "id,name", call.Params["fields"])
	assert.Equal(t, "access-1", call.Token)
}

func TestPostRequestBodyFallsBackToParams(t *testing.T) {
	h := newHarness()
	h.sessions.execResult = drive.Result{Data: map[string]any{"id": "file2"}}

	h.invoke(t, "postRequest", map[string]any{
		"path":   "/files",
		"params": map[string]any{"name": "report"},
	})

	call := h.sessions.lastCall
	assert.Equal(t, http.MethodPost, call.Method)
	assert.Nil(t, call.Params)
	assert.Equal(t, map[string]any{"name": "report"}, call.Body)
}

func TestPostRequestExplicitBody(t *testing.T) {
	h := newHarness()
	h.sessions.execResult = drive.Result{Data: map[string]any{}}

	h.invoke(t, "postRequest", map[string]any{
		"path":   "/files",
		"body":   map[string]any{"name": "report"},
		"params": map[string]any{"supportsAllDrives": true},
	})

	call := h.sessions.lastCall
	assert.Equal(t, map[string]any{"name": "report"}, call.Body)
	assert.Equal(t, map[string]any{"supportsAllDrives": true}, call.Params)
}

func TestRequestErrorResult(t *testing.T) {
	h := newHarness()
	h.sessions.execResult = drive.Result{Error: &drive.CallError{
		Code:       "api",
		Message:    "Internal error",
		HTTPStatus: 500,
	}}

	recorder := h.invoke(t, "getRequest", map[string]any{"path": "/about"})

	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "api", errBody["code"])
	assert.Equal(t, float64(500), errBody["httpStatus"])
}

func TestUnresolvedTokenIsBadRequest(t *testing.T) {
	h := newHarness()
	h.sessions.token = ""
	h.sessions.tokenErr = fmt.Errorf("%w: user id or token is required", session.ErrArgument)

	recorder := h.invoke(t, "getRequest", map[string]any{"path": "/about"})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
