// Package endpoint exposes the platform-facing HTTP surface: the
// function dispatch route the platform invokes, and the OAuth web
// callback pages. Handlers translate platform function requests into
// session and Drive operations and render uniform JSON results.
package endpoint

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/slingr-stack/google-drive-endpoint/internal/drive"
	"github.com/slingr-stack/google-drive-endpoint/internal/platform"
	"github.com/slingr-stack/google-drive-endpoint/internal/session"
)

// Sessions is the endpoint's view of the session orchestrator.
type Sessions interface {
	Connect(ctx context.Context, userID, userEmail, functionID string, params session.ConnectParams) (map[string]any, error)
	Disconnect(ctx context.Context, userID, userEmail, functionID string, revokeToken bool) map[string]any
	ResolveToken(ctx context.Context, userID, bodyToken, functionID string) (string, error)
	Execute(ctx context.Context, userID, functionID string, call drive.Call) drive.Result
	CheckDisconnection(ctx context.Context, userID, functionID string, apiErr *drive.APIError)
	AuthorizationURL() string
	UserInformation(ctx context.Context, userID string) (bool, *drive.UserInfo, error)
}

// Transfers is the endpoint's view of the Drive client, covering URL
// building and streaming file operations.
type Transfers interface {
	BuildURL(path string) string
	FileMetadata(ctx context.Context, token, fileID string) (*drive.FileInfo, error)
	DownloadContent(ctx context.Context, token, fileID string, w io.Writer) (int64, error)
	DownloadFromURL(ctx context.Context, token, rawURL string, w io.Writer) (int64, error)
	Export(ctx context.Context, token, rawURL string, params map[string]any, w io.Writer) (int64, error)
	UploadMultipart(ctx context.Context, token string, meta drive.UploadMeta, mediaType string, r io.Reader) (string, error)
}

// FunctionRequest is the platform's function invocation envelope.
type FunctionRequest struct {
	FunctionID string         `json:"functionId"`
	UserID     string         `json:"userId"`
	UserEmail  string         `json:"userEmail"`
	Params     map[string]any `json:"params"`
}

type functionHandler func(ctx context.Context, req FunctionRequest) (any, error)

// Endpoint wires the function surface to its collaborators.
type Endpoint struct {
	sessions  Sessions
	drive     Transfers
	files     platform.Files
	appLogs   *platform.AppLogs
	logger    *slog.Logger
	functions map[string]functionHandler
}

// New creates the endpoint and registers all platform functions.
func New(sessions Sessions, transfers Transfers, files platform.Files, appLogs *platform.AppLogs, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Endpoint{
		sessions: sessions,
		drive:    transfers,
		files:    files,
		appLogs:  appLogs,
		logger:   logger,
	}

	e.functions = map[string]functionHandler{
		"connectUser":        e.connectUser,
		"disconnectUser":     e.disconnectUser,
		"authenticationUrl":  e.authenticationURL,
		"getUserInformation": e.userInformation,
		"getRequest":         e.verb(http.MethodGet),
		"postRequest":        e.verb(http.MethodPost),
		"putRequest":         e.verb(http.MethodPut),
		"patchRequest":       e.verb(http.MethodPatch),
		"deleteRequest":      e.verb(http.MethodDelete),
		"uploadFile":         e.uploadFile,
		"downloadFile":       e.downloadFile,
		"downloadExportLink": e.downloadExportLink,
		"exportFile":         e.exportFile,
	}

	return e
}

// HandleFunction dispatches POST /functions/:name.
func (e *Endpoint) HandleFunction(c *gin.Context) {
	name := c.Param("name")

	handler, ok := e.functions[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown function: " + name})

		return
	}

	var req FunctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})

		return
	}

	e.logger.Info("function invoked",
		slog.String("function", name),
		slog.String("function_id", req.FunctionID),
		slog.String("user_id", req.UserID),
	)
	e.appLogs.Info(c.Request.Context(), "Executing function ["+name+"]", nil)

	result, err := handler(c.Request.Context(), req)
	if err != nil {
		e.respondError(c, err)

		return
	}

	c.JSON(http.StatusOK, result)
}

func (e *Endpoint) respondError(c *gin.Context, err error) {
	var apiErr *drive.APIError
	switch {
	case errors.Is(err, session.ErrArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusOK, drive.Result{Error: &drive.CallError{
			Code:       "api",
			Message:    apiErr.Message,
			HTTPStatus: apiErr.StatusCode,
		}}.Payload())
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// stringParam reads a string-valued function parameter, "" when absent.
func stringParam(params map[string]any, key string) string {
	v, ok := params[key].(string)
	if !ok {
		return ""
	}

	return v
}

// mapParam reads an object-valued function parameter, nil when absent.
func mapParam(params map[string]any, key string) map[string]any {
	v, ok := params[key].(map[string]any)
	if !ok {
		return nil
	}

	return v
}
