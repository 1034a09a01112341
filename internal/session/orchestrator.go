// Package session implements the per-user connect/disconnect state
// machine. The orchestrator owns every credential mutation: it decides
// when a stored token is stale, when an upstream failure means the user
// must be disconnected, and mediates between the credential store, the
// token authority, and the request proxy for every inbound operation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/slingr-stack/google-drive-endpoint/internal/authority"
	"github.com/slingr-stack/google-drive-endpoint/internal/drive"
	"github.com/slingr-stack/google-drive-endpoint/internal/platform"
	"github.com/slingr-stack/google-drive-endpoint/internal/store"
)

// ErrArgument reports missing or invalid caller input, surfaced to the
// platform as a 400-equivalent failure.
var ErrArgument = errors.New("session: invalid argument")

// Result error codes handed back through proxied calls.
const (
	codeAPI       = "api"
	codeTransport = "transport"
)

// TokenAuthority is the orchestrator's view of the OAuth2 token
// protocol. Implemented by authority.Authority.
type TokenAuthority interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (authority.TokenResult, error)
	Refresh(ctx context.Context, userID, refreshToken string) (authority.TokenResult, error)
	ValidateOrRefresh(ctx context.Context, userID string, cred *store.Credential) (authority.TokenResult, error)
	Revoke(ctx context.Context, accessToken, refreshToken string)
	AuthorizationURL() string
}

// Proxy is the orchestrator's view of the Drive request proxy.
// Implemented by drive.Client.
type Proxy interface {
	Execute(ctx context.Context, call drive.Call) (map[string]any, error)
	UserInfo(ctx context.Context, token string) (*drive.UserInfo, error)
}

// Orchestrator coordinates credential lifecycle for all user
// identities. Operations for different users run concurrently;
// operations for one user serialize on a per-identity mutex.
type Orchestrator struct {
	store   store.Store
	auth    TokenAuthority
	proxy   Proxy
	events  platform.Events
	appLogs *platform.AppLogs
	logger  *slog.Logger

	// locks holds one *sync.Mutex per user identity, created on demand.
	locks sync.Map

	// refreshes collapses concurrent refresh attempts for one identity
	// into a single upstream call.
	refreshes singleflight.Group
}

// New creates an orchestrator over the given collaborators.
func New(st store.Store, auth TokenAuthority, proxy Proxy, events platform.Events, appLogs *platform.AppLogs, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		store:   st,
		auth:    auth,
		proxy:   proxy,
		events:  events,
		appLogs: appLogs,
		logger:  logger,
	}
}

// lock acquires the per-identity mutex and returns its unlock func.
func (o *Orchestrator) lock(userID string) func() {
	v, _ := o.locks.LoadOrStore(userID, &sync.Mutex{})

	mu, ok := v.(*sync.Mutex)
	if !ok {
		panic("session: lock map holds a non-mutex value")
	}

	mu.Lock()

	return mu.Unlock
}

// AuthorizationURL exposes the consent URL for the authenticationUrl
// function. No network call, no state.
func (o *Orchestrator) AuthorizationURL() string {
	return o.auth.AuthorizationURL()
}

// Connect merges the stored credential with the supplied parameters,
// exchanges a fresh authorization code exactly once, refreshes whatever
// token is present, and persists the outcome. On success it emits the
// user-connected event and returns the connection payload; otherwise it
// falls through to a disconnect.
func (o *Orchestrator) Connect(ctx context.Context, userID, userEmail, functionID string, params ConnectParams) (map[string]any, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrArgument)
	}

	unlock := o.lock(userID)
	defer unlock()

	cred := &store.Credential{UserID: userID, StatusMessage: store.StatusConnectError}

	stored, err := o.store.FindByID(ctx, userID)
	if err != nil {
		o.logger.Info("stored credential not readable",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	} else if stored != nil {
		overlayStored(cred, stored)
	}

	code, redirectURI := apply(cred, params)

	// Exchange the authorization code once. A re-submitted code matches
	// LastAuthCode and is skipped, preventing duplicate-exchange errors.
	if code != "" && code != cred.LastAuthCode {
		result, exchangeErr := o.auth.ExchangeCode(ctx, code, redirectURI)
		if exchangeErr != nil {
			o.logger.Warn("authorization code exchange failed",
				slog.String("user_id", userID),
				slog.String("error", exchangeErr.Error()),
			)
		} else {
			applyTokens(cred, result)
			cred.LastAuthCode = code
			cred.StatusMessage = store.StatusConnected
		}
	}

	// Unconditionally validate or refresh whatever token is present.
	if result, checkErr := o.auth.ValidateOrRefresh(ctx, userID, cred); checkErr != nil {
		o.logger.Info("token validation failed",
			slog.String("user_id", userID),
			slog.String("error", checkErr.Error()),
		)
	} else {
		applyTokens(cred, result)
	}

	connected := cred.Connected()
	if connected {
		cred.StatusMessage = store.StatusConnected

		// Profile fetch is best-effort: a failure never blocks connect.
		if info, infoErr := o.proxy.UserInfo(ctx, cred.AccessToken); infoErr != nil {
			o.logger.Info("profile fetch failed",
				slog.String("user_id", userID),
				slog.String("error", infoErr.Error()),
			)
		} else if info.Name != "" {
			cred.DisplayName = info.Name
			cred.PictureURL = info.Picture
			cred.StatusMessage = "Connection established as " + info.Name + "."
		}
	}

	if saveErr := o.store.Save(ctx, cred); saveErr != nil {
		o.logger.Warn("saving credential failed",
			slog.String("user_id", userID),
			slog.String("error", saveErr.Error()),
		)
	}

	if connected {
		event := connectionEvent(userID, userEmail, cred)
		o.logger.Info("user connected", slog.String("user_id", userID))
		o.events.SendUserConnectedEvent(ctx, functionID, userID, event)

		return event, nil
	}

	o.logger.Info("user could not be connected", slog.String("user_id", userID))
	o.appLogs.Error(ctx, "Error connecting user "+userID, map[string]any{
		"status": cred.StatusMessage,
	})

	return o.disconnectLocked(ctx, userID, userEmail, functionID, true), nil
}

// Disconnect resets the user to the disconnected default, optionally
// revoking the live token pair, and removes the stored credential only
// when the platform's disconnect listener acknowledges. The
// user-disconnected event always fires.
func (o *Orchestrator) Disconnect(ctx context.Context, userID, userEmail, functionID string, revokeToken bool) map[string]any {
	unlock := o.lock(userID)
	defer unlock()

	return o.disconnectLocked(ctx, userID, userEmail, functionID, revokeToken)
}

func (o *Orchestrator) disconnectLocked(ctx context.Context, userID, userEmail, functionID string, revokeToken bool) map[string]any {
	o.logger.Info("disconnecting user",
		slog.String("user_id", userID),
		slog.Bool("revoke", revokeToken),
	)

	defaults := &store.Credential{UserID: userID, StatusMessage: store.StatusDisconnected}

	if userID != "" {
		if revokeToken {
			if stored, err := o.store.FindByID(ctx, userID); err == nil && stored != nil {
				o.auth.Revoke(ctx, stored.AccessToken, stored.RefreshToken)
				o.logger.Info("revoked tokens", slog.String("user_id", userID))
			}
		}

		ack, err := o.events.SendSync(ctx, platform.EventUserDisconnected, functionID, userID, nil)
		switch {
		case err != nil:
			o.logger.Warn("disconnect listener failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		case ack == nil:
			o.logger.Warn("disconnect listener declined", slog.String("user_id", userID))
		default:
			if removeErr := o.store.RemoveByID(ctx, userID); removeErr != nil {
				o.logger.Warn("removing credential failed",
					slog.String("user_id", userID),
					slog.String("error", removeErr.Error()),
				)
			}
		}
	}

	o.events.SendUserDisconnectedEvent(ctx, functionID, userID)

	summary := map[string]any{
		"configuration": payload(defaults),
		"userId":        userID,
	}
	if userEmail != "" {
		summary["userEmail"] = userEmail
	}

	return summary
}

// ResolveToken produces a usable access token for a request flow. A
// supplied user identity takes precedence: its stored token is
// validated and refreshed, and the user is disconnected (without
// revocation) when no live token can be produced. Without an identity,
// a token supplied in the request body serves anonymous/service-account
// mode. Fails with ErrArgument when neither yields a token.
func (o *Orchestrator) ResolveToken(ctx context.Context, userID, bodyToken, functionID string) (string, error) {
	if userID == "" {
		if bodyToken != "" {
			return bodyToken, nil
		}

		return "", fmt.Errorf("%w: user id or token is required", ErrArgument)
	}

	unlock := o.lock(userID)
	cred, err := o.checkUserLocked(ctx, userID)
	unlock()

	if err == nil && cred != nil && cred.Connected() {
		return cred.AccessToken, nil
	}

	o.logger.Info("no usable token for user", slog.String("user_id", userID))
	o.Disconnect(ctx, userID, "", functionID, false)

	if err != nil {
		return "", fmt.Errorf("session: resolving token for %s: %w", userID, err)
	}

	return "", fmt.Errorf("%w: invalid user configuration for %q", ErrArgument, userID)
}

// checkUserLocked validates or refreshes the stored token and persists
// the refreshed triple. Returns (nil, nil) when no record exists.
// Caller holds the identity lock.
func (o *Orchestrator) checkUserLocked(ctx context.Context, userID string) (*store.Credential, error) {
	cred, err := o.store.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("session: reading credential for %s: %w", userID, err)
	}

	if cred == nil {
		return nil, nil //nolint:nilnil // sentinel for "not connected"
	}

	result, err := o.auth.ValidateOrRefresh(ctx, userID, cred)
	if err != nil {
		o.logger.Info("invalid token",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	applyTokens(cred, result)

	if saveErr := o.store.Save(ctx, cred); saveErr != nil {
		o.logger.Warn("saving refreshed credential failed",
			slog.String("user_id", userID),
			slog.String("error", saveErr.Error()),
		)
	}

	return cred, nil
}

// Execute runs a proxied call and folds the outcome into a uniform
// Result. Upstream HTTP failures pass through the disconnection check;
// transport failures do not.
func (o *Orchestrator) Execute(ctx context.Context, userID, functionID string, call drive.Call) drive.Result {
	data, err := o.proxy.Execute(ctx, call)
	if err == nil {
		return drive.Result{Data: data}
	}

	var apiErr *drive.APIError
	if errors.As(err, &apiErr) {
		o.CheckDisconnection(ctx, userID, functionID, apiErr)

		return drive.Result{Error: &drive.CallError{
			Code:       codeAPI,
			Message:    apiErr.Message,
			HTTPStatus: apiErr.StatusCode,
		}}
	}

	return drive.Result{Error: &drive.CallError{Code: codeTransport, Message: err.Error()}}
}

// CheckDisconnection inspects an upstream failure for auth-failure
// signatures. On a match it attempts exactly one refresh; only when
// that refresh also fails is the user forcibly disconnected. A single
// transient auth blip that a refresh would heal never disconnects.
func (o *Orchestrator) CheckDisconnection(ctx context.Context, userID, functionID string, apiErr *drive.APIError) {
	if userID == "" || apiErr == nil {
		return
	}

	signature := strings.ToLower(fmt.Sprintf("%d - %s - %s", apiErr.StatusCode, apiErr.Message, apiErr.Body))
	if !authFailure(signature) {
		return
	}

	if _, err := o.refreshCredentials(ctx, userID); err != nil {
		o.logger.Info("invalid credentials and refresh failed, disconnecting",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)

		o.Disconnect(ctx, userID, "", functionID, true)
	}
}

// authFailureMarkers are the substrings Google uses across its error
// surfaces when a credential is no longer usable.
var authFailureMarkers = []string{
	"invalid credentials",
	"autherror",
	"invalid_grant",
	"token has been revoked",
}

func authFailure(signature string) bool {
	for _, marker := range authFailureMarkers {
		if strings.Contains(signature, marker) {
			return true
		}
	}

	return false
}

// refreshCredentials refreshes and persists the stored token for one
// identity. Concurrent callers for the same identity share one
// upstream refresh via singleflight.
func (o *Orchestrator) refreshCredentials(ctx context.Context, userID string) (*store.Credential, error) {
	v, err, _ := o.refreshes.Do(userID, func() (any, error) {
		unlock := o.lock(userID)
		defer unlock()

		cred, findErr := o.store.FindByID(ctx, userID)
		if findErr != nil {
			return nil, fmt.Errorf("session: reading credential for %s: %w", userID, findErr)
		}

		if cred == nil {
			return nil, fmt.Errorf("session: user %s is not connected", userID)
		}

		result, refreshErr := o.auth.Refresh(ctx, userID, cred.RefreshToken)
		if refreshErr != nil {
			return nil, refreshErr
		}

		applyTokens(cred, result)

		if saveErr := o.store.Save(ctx, cred); saveErr != nil {
			return nil, fmt.Errorf("session: saving refreshed credential for %s: %w", userID, saveErr)
		}

		return cred, nil
	})
	if err != nil {
		return nil, err
	}

	cred, ok := v.(*store.Credential)
	if !ok {
		return nil, fmt.Errorf("session: unexpected refresh result type")
	}

	return cred, nil
}

// UserInformation reports whether the user is connected and, when they
// are, the live profile claims.
func (o *Orchestrator) UserInformation(ctx context.Context, userID string) (bool, *drive.UserInfo, error) {
	if userID == "" {
		return false, nil, fmt.Errorf("%w: user id is required", ErrArgument)
	}

	unlock := o.lock(userID)
	cred, err := o.checkUserLocked(ctx, userID)
	unlock()

	if err != nil {
		return false, nil, err
	}

	if cred == nil || !cred.Connected() {
		return false, nil, nil
	}

	info, err := o.proxy.UserInfo(ctx, cred.AccessToken)
	if err != nil {
		return false, nil, err
	}

	return true, info, nil
}

func applyTokens(cred *store.Credential, result authority.TokenResult) {
	cred.AccessToken = result.AccessToken
	cred.RefreshToken = result.RefreshToken
	cred.ExpirationTime = result.ExpirationTime
}

func connectionEvent(userID, userEmail string, cred *store.Credential) map[string]any {
	event := map[string]any{
		"userId":        userID,
		"configuration": payload(cred),
	}
	if userEmail != "" {
		event["userEmail"] = userEmail
	}

	return event
}
