package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// Files is the platform's file-transfer helper: Download fetches a
// platform-stored file by ID, Upload stores new content and returns the
// platform's file descriptor.
type Files interface {
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
	Upload(ctx context.Context, name string, r io.Reader, mimeType string) (map[string]any, error)
}

// TokenProvider returns the current platform credential. The service
// reads it on every request, so a rotated token takes effect without a
// restart.
type TokenProvider func() string

// StaticToken wraps a fixed credential in a TokenProvider.
func StaticToken(token string) TokenProvider {
	return func() string { return token }
}

// FileService talks to the platform file helper over HTTP.
type FileService struct {
	baseURL    string
	token      TokenProvider
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFileService creates a file helper client rooted at baseURL.
func NewFileService(baseURL string, token TokenProvider, httpClient *http.Client, logger *slog.Logger) *FileService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &FileService{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Download streams a platform file. The caller closes the reader.
func (f *FileService) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	reqURL := f.baseURL + "/files/" + url.PathEscape(fileID) + "/content"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("platform: creating file download request: %w", err)
	}

	f.authorize(req)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform: downloading file %s: %w", fileID, err)
	}

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			body = []byte("(failed to read response body)")
		}

		return nil, fmt.Errorf("platform: file helper returned HTTP %d for %s: %s", resp.StatusCode, fileID, body)
	}

	return resp.Body, nil
}

// Upload stores content under name and returns the platform's JSON
// descriptor for the new file.
func (f *FileService) Upload(ctx context.Context, name string, r io.Reader, mimeType string) (map[string]any, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeFileForm(mw, name, mimeType, r))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/files", pr)
	if err != nil {
		return nil, fmt.Errorf("platform: creating file upload request: %w", err)
	}

	f.authorize(req)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform: uploading file %s: %w", name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("platform: reading upload response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("platform: file helper returned HTTP %d for %s: %s", resp.StatusCode, name, raw)
	}

	var descriptor map[string]any
	if err := json.Unmarshal(raw, &descriptor); err != nil {
		return nil, fmt.Errorf("platform: decoding upload response: %w", err)
	}

	f.logger.Info("file uploaded to platform", slog.String("name", name))

	return descriptor, nil
}

func (f *FileService) authorize(req *http.Request) {
	if f.token == nil {
		return
	}

	if tok := f.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

func writeFileForm(mw *multipart.Writer, name, mimeType string, r io.Reader) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))

	if mimeType != "" {
		header.Set("Content-Type", mimeType)
	}

	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("platform: creating form part: %w", err)
	}

	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("platform: writing form part: %w", err)
	}

	return mw.Close()
}
