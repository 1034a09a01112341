package endpoint

import (
	"context"
	"fmt"
	"net/http"

	"github.com/slingr-stack/google-drive-endpoint/internal/drive"
	"github.com/slingr-stack/google-drive-endpoint/internal/session"
)

func (e *Endpoint) connectUser(ctx context.Context, req FunctionRequest) (any, error) {
	return e.sessions.Connect(ctx, req.UserID, req.UserEmail, req.FunctionID, session.ConnectParamsFromMap(req.Params))
}

func (e *Endpoint) disconnectUser(ctx context.Context, req FunctionRequest) (any, error) {
	return e.sessions.Disconnect(ctx, req.UserID, req.UserEmail, req.FunctionID, true), nil
}

func (e *Endpoint) authenticationURL(_ context.Context, _ FunctionRequest) (any, error) {
	return map[string]any{"url": e.sessions.AuthorizationURL()}, nil
}

func (e *Endpoint) userInformation(ctx context.Context, req FunctionRequest) (any, error) {
	connected, info, err := e.sessions.UserInformation(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	if !connected {
		return map[string]any{"status": false}, nil
	}

	return map[string]any{
		"status": true,
		"information": map[string]any{
			"name":    info.Name,
			"picture": info.Picture,
		},
	}, nil
}

// verb builds the handler for one generic HTTP function. The request
// URL resolves against the Drive v3 root unless an absolute URL is
// given. For write verbs a missing body falls back to the params
// object, which is then no longer sent as query parameters.
func (e *Endpoint) verb(method string) functionHandler {
	return func(ctx context.Context, req FunctionRequest) (any, error) {
		token, err := e.sessions.ResolveToken(ctx, req.UserID, stringParam(req.Params, "token"), req.FunctionID)
		if err != nil {
			return nil, err
		}

		call := drive.Call{
			Token:  token,
			Method: method,
			URL:    e.drive.BuildURL(stringParam(req.Params, "path")),
			Params: mapParam(req.Params, "params"),
		}

		if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
			call.Body = req.Params["body"]
			if call.Body == nil && call.Params != nil {
				call.Body = call.Params
				call.Params = nil
			}
		}

		return e.sessions.Execute(ctx, req.UserID, req.FunctionID, call).Payload(), nil
	}
}

// requireParam reads a mandatory string parameter.
func requireParam(params map[string]any, key string) (string, error) {
	v := stringParam(params, key)
	if v == "" {
		return "", fmt.Errorf("%w: parameter %q is required", session.ErrArgument, key)
	}

	return v, nil
}
