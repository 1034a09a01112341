package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/slingr-stack/google-drive-endpoint/internal/drive"
	"github.com/slingr-stack/google-drive-endpoint/internal/session"
)

// exportDefaultMime is the export type used when the caller does not
// pick one. Every Google Workspace document type can export to PDF.
const exportDefaultMime = "application/pdf"

// Preferred extensions for the export types the stdlib mime tables map
// ambiguously or not at all.
var mimeExtensions = map[string]string{
	"application/pdf": ".pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"text/csv": ".csv",
}

func (e *Endpoint) uploadFile(ctx context.Context, req FunctionRequest) (any, error) {
	fileID, err := requireParam(req.Params, "fileId")
	if err != nil {
		return nil, err
	}

	token, err := e.sessions.ResolveToken(ctx, req.UserID, stringParam(req.Params, "token"), req.FunctionID)
	if err != nil {
		return nil, err
	}

	content, err := e.files.Download(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("downloading platform file %s: %w", fileID, err)
	}
	defer content.Close()

	tmp, cleanup, err := spoolTemp(content)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	name := stringParam(req.Params, "name")
	if name == "" {
		name = fileID
	}

	meta := drive.UploadMeta{
		Name:     sanitizeFileName(name),
		FolderID: stringParam(req.Params, "folderId"),
		MimeType: stringParam(req.Params, "mimeType"),
	}

	createdID, err := e.drive.UploadMultipart(ctx, token, meta, stringParam(req.Params, "originalMimeType"), tmp)
	if err != nil {
		return nil, e.transferErr(ctx, req.UserID, req.FunctionID, err)
	}

	return map[string]any{"fileId": createdID, "name": meta.Name}, nil
}

func (e *Endpoint) downloadFile(ctx context.Context, req FunctionRequest) (any, error) {
	fileID, err := requireParam(req.Params, "fileId")
	if err != nil {
		return nil, err
	}

	token, err := e.sessions.ResolveToken(ctx, req.UserID, stringParam(req.Params, "token"), req.FunctionID)
	if err != nil {
		return nil, err
	}

	info, err := e.drive.FileMetadata(ctx, token, fileID)
	if err != nil {
		return nil, e.transferErr(ctx, req.UserID, req.FunctionID, err)
	}

	tmp, cleanup, err := emptyTemp()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	// Workspace documents have no binary content of their own; they are
	// fetched through an export link instead.
	contentType := info.MimeType

	if len(info.ExportLinks) > 0 {
		exportMime, exportURL, linkErr := exportLink(info, stringParam(req.Params, "mimeType"))
		if linkErr != nil {
			return nil, linkErr
		}

		contentType = exportMime

		if _, err := e.drive.DownloadFromURL(ctx, token, exportURL, tmp); err != nil {
			return nil, e.transferErr(ctx, req.UserID, req.FunctionID, err)
		}
	} else if _, err := e.drive.DownloadContent(ctx, token, fileID, tmp); err != nil {
		return nil, e.transferErr(ctx, req.UserID, req.FunctionID, err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding temp file: %w", err)
	}

	name := downloadName(info.Name, contentType)

	uploaded, err := e.files.Upload(ctx, name, tmp, contentType)
	if err != nil {
		return nil, fmt.Errorf("uploading %s to platform: %w", name, err)
	}

	e.logger.Info("file downloaded",
		slog.String("file_id", fileID),
		slog.String("name", name),
	)

	return uploaded, nil
}

func (e *Endpoint) downloadExportLink(ctx context.Context, req FunctionRequest) (any, error) {
	fileID, err := requireParam(req.Params, "fileId")
	if err != nil {
		return nil, err
	}

	token, err := e.sessions.ResolveToken(ctx, req.UserID, stringParam(req.Params, "token"), req.FunctionID)
	if err != nil {
		return nil, err
	}

	info, err := e.drive.FileMetadata(ctx, token, fileID)
	if err != nil {
		return nil, e.transferErr(ctx, req.UserID, req.FunctionID, err)
	}

	exportMime, exportURL, err := exportLink(info, stringParam(req.Params, "mimeType"))
	if err != nil {
		return nil, err
	}

	tmp, cleanup, err := emptyTemp()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if _, err := e.drive.DownloadFromURL(ctx, token, exportURL, tmp); err != nil {
		return nil, e.transferErr(ctx, req.UserID, req.FunctionID, err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding temp file: %w", err)
	}

	name := downloadName(info.Name, exportMime)

	uploaded, err := e.files.Upload(ctx, name, tmp, exportMime)
	if err != nil {
		return nil, fmt.Errorf("uploading %s to platform: %w", name, err)
	}

	e.logger.Info("export link downloaded",
		slog.String("file_id", fileID),
		slog.String("name", name),
	)

	return uploaded, nil
}

func (e *Endpoint) exportFile(ctx context.Context, req FunctionRequest) (any, error) {
	path, err := requireParam(req.Params, "path")
	if err != nil {
		return nil, err
	}

	exportMime, err := requireParam(req.Params, "mimeType")
	if err != nil {
		return nil, err
	}

	token, err := e.sessions.ResolveToken(ctx, req.UserID, stringParam(req.Params, "token"), req.FunctionID)
	if err != nil {
		return nil, err
	}

	params := mapParam(req.Params, "params")
	if params == nil {
		params = map[string]any{}
	}

	params["mimeType"] = exportMime

	tmp, cleanup, err := emptyTemp()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if _, err := e.drive.Export(ctx, token, e.drive.BuildURL(path), params, tmp); err != nil {
		return nil, e.transferErr(ctx, req.UserID, req.FunctionID, err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding temp file: %w", err)
	}

	name := stringParam(req.Params, "name")
	if name == "" {
		name = "export"
	}

	name = downloadName(name, exportMime)

	uploaded, err := e.files.Upload(ctx, name, tmp, exportMime)
	if err != nil {
		return nil, fmt.Errorf("uploading %s to platform: %w", name, err)
	}

	return uploaded, nil
}

// transferErr routes upstream HTTP failures through the disconnection
// check before handing them back.
func (e *Endpoint) transferErr(ctx context.Context, userID, functionID string, err error) error {
	var apiErr *drive.APIError
	if errors.As(err, &apiErr) {
		e.sessions.CheckDisconnection(ctx, userID, functionID, apiErr)
	}

	return err
}

// exportLink picks the export link for the requested mime type,
// defaulting to PDF.
func exportLink(info *drive.FileInfo, requested string) (string, string, error) {
	exportMime := requested
	if exportMime == "" {
		exportMime = exportDefaultMime
	}

	exportURL, ok := info.ExportLinks[exportMime]
	if !ok {
		return "", "", fmt.Errorf("%w: file %s has no export link for %q", session.ErrArgument, info.ID, exportMime)
	}

	return exportMime, exportURL, nil
}

// sanitizeFileName normalizes the name to NFC and strips path
// separators so Drive and the platform agree on a single flat name.
func sanitizeFileName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "/", "-")

	if name == "" {
		return "file"
	}

	return name
}

// downloadName ensures the stored name carries an extension matching
// its content type.
func downloadName(name, contentType string) string {
	name = sanitizeFileName(name)

	if filepath.Ext(name) != "" || contentType == "" {
		return name
	}

	return name + extensionForMime(contentType)
}

func extensionForMime(contentType string) string {
	if ext, ok := mimeExtensions[contentType]; ok {
		return ext
	}

	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ""
	}

	return exts[0]
}

// spoolTemp copies r into a fresh temp file and rewinds it. The
// returned cleanup removes the file; it is safe on all paths.
func spoolTemp(r io.Reader) (*os.File, func(), error) {
	tmp, cleanup, err := emptyTemp()
	if err != nil {
		return nil, nil, err
	}

	if _, err := io.Copy(tmp, r); err != nil {
		cleanup()

		return nil, nil, fmt.Errorf("spooling content: %w", err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()

		return nil, nil, fmt.Errorf("rewinding temp file: %w", err)
	}

	return tmp, cleanup, nil
}

func emptyTemp() (*os.File, func(), error) {
	tmp, err := os.CreateTemp("", "googlefile-*")
	if err != nil {
		return nil, nil, fmt.Errorf("creating temp file: %w", err)
	}

	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	return tmp, cleanup, nil
}
