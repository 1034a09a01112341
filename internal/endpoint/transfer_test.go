package endpoint

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slingr-stack/google-drive-endpoint/internal/drive"
)

func TestUploadFile(t *testing.T) {
	h := newHarness()
	h.files.content = "hello drive"

	recorder := h.invoke(t, "uploadFile", map[string]any{
		"fileId":           "platform-1",
		"name":             "reports/q3 summary.txt",
		"folderId":         "folder-9",
		"mimeType":         "application/vnd.google-apps.document",
		"originalMimeType": "text/plain",
	})

	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Equal(t, "drive-file-1", body["fileId"])

	meta := h.transfers.uploadedMeta
	assert.Equal(t, "reports-q3 summary.txt", meta.Name)
	assert.Equal(t, "folder-9", meta.FolderID)
	assert.Equal(t, "application/vnd.google-apps.document", meta.MimeType)
	assert.Equal(t, "text/plain", h.transfers.uploadedMedia)
	assert.Equal(t, "hello drive", h.transfers.uploadedBody)
}

func TestUploadFileRequiresFileID(t *testing.T) {
	h := newHarness()

	recorder := h.invoke(t, "uploadFile", map[string]any{"name": "x.txt"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestDownloadBinaryFile(t *testing.T) {
	h := newHarness()
	h.transfers.metadata = &drive.FileInfo{ID: "file1", Name: "photo", MimeType: "image/png"}
	h.transfers.content = "png-bytes"

	recorder := h.invoke(t, "downloadFile", map[string]any{"fileId": "file1"})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "photo.png", h.files.uploadedName)
	assert.Equal(t, "image/png", h.files.uploadedMime)
	assert.Equal(t, "png-bytes", h.files.uploadedBody)
}

func TestDownloadWorkspaceDocumentUsesExportLink(t *testing.T) {
	h := newHarness()
	h.transfers.metadata = &drive.FileInfo{
		ID:       "doc1",
		Name:     "design notes",
		MimeType: "application/vnd.google-apps.document",
		ExportLinks: map[string]string{
			"application/pdf": "https://export.test/doc1.pdf",
		},
	}
	h.transfers.content = "pdf-bytes"

	recorder := h.invoke(t, "downloadFile", map[string]any{"fileId": "doc1"})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "https://export.test/doc1.pdf", h.transfers.downloadURL)
	assert.Equal(t, "design notes.pdf", h.files.uploadedName)
	assert.Equal(t, "application/pdf", h.files.uploadedMime)
}

func TestDownloadExportLinkStreamsToPlatform(t *testing.T) {
	h := newHarness()
	h.transfers.metadata = &drive.FileInfo{
		ID:   "doc1",
		Name: "design notes",
		ExportLinks: map[string]string{
			"application/pdf": "https://export.test/doc1.pdf",
			"text/csv":        "https://export.test/doc1.csv",
		},
	}
	h.transfers.content = "pdf-bytes"

	recorder := h.invoke(t, "downloadExportLink", map[string]any{"fileId": "doc1"})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "https://export.test/doc1.pdf", h.transfers.downloadURL)
	assert.Equal(t, "design notes.pdf", h.files.uploadedName)
	assert.Equal(t, "application/pdf", h.files.uploadedMime)
	assert.Equal(t, "pdf-bytes", h.files.uploadedBody)

	body := decodeBody(t, recorder)
	assert.Equal(t, "platform-file-1", body["fileId"])
}

func TestDownloadExportLinkPicksRequestedMime(t *testing.T) {
	h := newHarness()
	h.transfers.metadata = &drive.FileInfo{
		ID:   "doc1",
		Name: "design notes",
		ExportLinks: map[string]string{
			"application/pdf": "https://export.test/doc1.pdf",
			"text/csv":        "https://export.test/doc1.csv",
		},
	}
	h.transfers.content = "csv-bytes"

	recorder := h.invoke(t, "downloadExportLink", map[string]any{
		"fileId":   "doc1",
		"mimeType": "text/csv",
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "https://export.test/doc1.csv", h.transfers.downloadURL)
	assert.Equal(t, "design notes.csv", h.files.uploadedName)
	assert.Equal(t, "csv-bytes", h.files.uploadedBody)
}

func TestDownloadExportLinkMissingMime(t *testing.T) {
	h := newHarness()
	h.transfers.metadata = &drive.FileInfo{
		ID:          "doc1",
		ExportLinks: map[string]string{"text/csv": "https://export.test/doc1.csv"},
	}

	recorder := h.invoke(t, "downloadExportLink", map[string]any{"fileId": "doc1"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestExportFile(t *testing.T) {
	h := newHarness()
	h.transfers.content = "exported-bytes"

	recorder := h.invoke(t, "exportFile", map[string]any{
		"path":     "/files/doc1/export",
		"mimeType": "application/pdf",
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "https://api.test/drive/v3/files/doc1/export", h.transfers.exportURL)
	assert.Equal(t, "application/pdf", h.transfers.exportParams["mimeType"])
	assert.Equal(t, "export.pdf", h.files.uploadedName)
	assert.Equal(t, "exported-bytes", h.files.uploadedBody)
}

func TestTransferAPIErrorTriggersDisconnectionCheck(t *testing.T) {
	h := newHarness()
	h.transfers.metadataErr = &drive.APIError{
		StatusCode: 401,
		Message:    "Invalid Credentials",
		Err:        drive.ErrUnauthorized,
	}

	recorder := h.invoke(t, "downloadFile", map[string]any{"fileId": "file1"})

	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "api", errBody["code"])
	assert.Equal(t, float64(401), errBody["httpStatus"])

	require.Len(t, h.sessions.disconnectionChecks, 1)
	assert.Equal(t, 401, h.sessions.disconnectionChecks[0].StatusCode)
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "a-b.txt", sanitizeFileName("a/b.txt"))
	assert.Equal(t, "file", sanitizeFileName("   "))
	assert.Equal(t, "notes.txt", sanitizeFileName("notes.txt"))
}

func TestDownloadName(t *testing.T) {
	assert.Equal(t, "photo.png", downloadName("photo", "image/png"))
	assert.Equal(t, "doc.pdf", downloadName("doc", "application/pdf"))
	assert.Equal(t, "report.xlsx", downloadName("report",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
	assert.Equal(t, "keep.csv", downloadName("keep.csv", "text/csv"))
	assert.Equal(t, "noext", downloadName("noext", ""))
}
