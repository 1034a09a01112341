package drive

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
)

// FileInfo is the subset of Drive file metadata the transfer functions
// need. ExportLinks maps export mime types to pre-built download URLs
// for Google Workspace documents.
type FileInfo struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	MimeType    string            `json:"mimeType"`
	ExportLinks map[string]string `json:"exportLinks"`
}

// UserInfo carries the profile claims shown to the connected user.
type UserInfo struct {
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// UploadMeta describes the Drive file created by UploadMultipart.
// MimeType is the target type on Drive (set it to a Google Workspace
// type to convert on upload); an empty FolderID lands in the root.
type UploadMeta struct {
	Name     string
	FolderID string
	MimeType string
}

// FileMetadata fetches metadata for one file, export links included.
func (c *Client) FileMetadata(ctx context.Context, token, fileID string) (*FileInfo, error) {
	rawURL := withParams(c.apiBase+"/files/"+url.PathEscape(fileID), map[string]any{
		"supportsAllDrives": true,
		"fields":            "id,name,mimeType,exportLinks",
	})

	resp, err := c.do(ctx, http.MethodGet, rawURL, token, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("drive: reading metadata response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, raw)
	}

	var info FileInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("drive: decoding metadata for %s: %w", fileID, err)
	}

	return &info, nil
}

// DownloadContent streams the binary content of a file to w.
func (c *Client) DownloadContent(ctx context.Context, token, fileID string, w io.Writer) (int64, error) {
	rawURL := withParams(c.apiBase+"/files/"+url.PathEscape(fileID), map[string]any{
		"alt":               "media",
		"supportsAllDrives": true,
	})

	return c.stream(ctx, token, rawURL, w)
}

// DownloadFromURL streams content from a pre-built URL, such as an
// export link taken from file metadata.
func (c *Client) DownloadFromURL(ctx context.Context, token, rawURL string, w io.Writer) (int64, error) {
	return c.stream(ctx, token, rawURL, w)
}

// Export streams an arbitrary GET endpoint (typically files/{id}/export)
// with the given request parameters applied.
func (c *Client) Export(ctx context.Context, token, rawURL string, params map[string]any, w io.Writer) (int64, error) {
	return c.stream(ctx, token, withParams(rawURL, params), w)
}

func (c *Client) stream(ctx context.Context, token, rawURL string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL, token, nil, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			raw = []byte("(failed to read response body)")
		}

		return 0, newAPIError(resp.StatusCode, raw)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("drive: streaming content: %w", err)
	}

	return n, nil
}

// UploadMultipart creates a Drive file from metadata plus media content
// in a single multipart/related request and returns the new file ID.
// mediaType is the content type of r; when empty it defaults to the
// metadata mime type.
func (c *Client) UploadMultipart(ctx context.Context, token string, meta UploadMeta, mediaType string, r io.Reader) (string, error) {
	metadata := map[string]any{"name": meta.Name}
	if meta.FolderID != "" {
		metadata["parents"] = []string{meta.FolderID}
	}

	if meta.MimeType != "" {
		metadata["mimeType"] = meta.MimeType
	}

	if mediaType == "" {
		mediaType = meta.MimeType
	}

	encodedMeta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("drive: encoding upload metadata: %w", err)
	}

	// Stream the multipart body so large files never buffer in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadParts(mw, encodedMeta, mediaType, r))
	}()

	rawURL := withParams(c.uploadBase+"/files", map[string]any{
		"uploadType":        "multipart",
		"supportsAllDrives": true,
		"fields":            "id,parents",
	})

	resp, err := c.do(ctx, http.MethodPost, rawURL, token, pr, "multipart/related; boundary="+mw.Boundary())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("drive: reading upload response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", newAPIError(resp.StatusCode, raw)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("drive: decoding upload response: %w", err)
	}

	c.logger.Info("file uploaded",
		slog.String("file_id", created.ID),
		slog.String("name", meta.Name),
	)

	return created.ID, nil
}

func writeUploadParts(mw *multipart.Writer, encodedMeta []byte, mediaType string, r io.Reader) error {
	metaPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return fmt.Errorf("drive: creating metadata part: %w", err)
	}

	if _, err := metaPart.Write(encodedMeta); err != nil {
		return fmt.Errorf("drive: writing metadata part: %w", err)
	}

	mediaHeader := textproto.MIMEHeader{}
	if mediaType != "" {
		mediaHeader.Set("Content-Type", mediaType)
	}

	mediaPart, err := mw.CreatePart(mediaHeader)
	if err != nil {
		return fmt.Errorf("drive: creating media part: %w", err)
	}

	if _, err := io.Copy(mediaPart, r); err != nil {
		return fmt.Errorf("drive: writing media part: %w", err)
	}

	return mw.Close()
}

// UserInfo fetches the profile claims for the token's user. Used
// best-effort after connect to record display name and picture.
func (c *Client) UserInfo(ctx context.Context, token string) (*UserInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, c.userInfoURL, token, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("drive: reading userinfo response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, raw)
	}

	var info UserInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("drive: decoding userinfo: %w", err)
	}

	return &info, nil
}
