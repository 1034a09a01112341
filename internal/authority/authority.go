// Package authority wraps the OAuth2 token-exchange and refresh protocol
// against Google's authorization server. It converts authorization codes
// and refresh tokens into access tokens with expiry, and revokes token
// pairs best-effort on disconnect.
package authority

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/slingr-stack/google-drive-endpoint/internal/store"
)

// refreshMargin is how long before the recorded expiry a stored access
// token is already treated as stale. Covers clock skew between this
// service and Google's authorization server.
const refreshMargin = 5 * time.Minute

// revokeURL is Google's token revocation endpoint. Accepts either an
// access or a refresh token; revoking a refresh token also invalidates
// the access tokens issued from it.
const revokeURL = "https://oauth2.googleapis.com/revoke"

// Scopes requested during the consent flow: Drive plus enough profile
// access to greet the user by name.
var driveScopes = []string{
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// TokenResult is the ephemeral outcome of an exchange or refresh. It is
// never persisted as its own entity — the orchestrator folds it into a
// store.Credential immediately.
type TokenResult struct {
	AccessToken    string
	RefreshToken   string
	ExpirationTime time.Time
}

// AuthError reports that the authorization server rejected the
// credentials themselves (dead refresh token, revoked grant). Carries
// the upstream status and message so the disconnection check can
// inspect them.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authority: upstream rejected credentials (HTTP %d): %s", e.StatusCode, e.Message)
}

// Authority is the token authority for a single OAuth2 client
// registration. Safe for concurrent use.
type Authority struct {
	cfg        *oauth2.Config
	httpClient *http.Client
	logger     *slog.Logger

	// nowFunc returns the current time. Tests override it to pin the
	// validity-margin decision.
	nowFunc func() time.Time
}

// New creates an Authority for the given client registration.
// redirectURI is the default consent-flow callback; individual code
// exchanges may override it.
func New(clientID, clientSecret, redirectURI string, httpClient *http.Client, logger *slog.Logger) *Authority {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Authority{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       driveScopes,
			Endpoint:     google.Endpoint,
		},
		httpClient: httpClient,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// AuthorizationURL builds the consent URL. Pure construction, no network
// call. Offline access plus forced consent so Google always issues a
// refresh token, even for a re-consenting user.
func (a *Authority) AuthorizationURL() string {
	return a.cfg.AuthCodeURL("",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode exchanges a one-time authorization code for a token
// triple. Non-idempotent: the caller must not re-submit a consumed code.
// redirectURI overrides the registered callback when non-empty, matching
// the URI the consent flow actually used.
func (a *Authority) ExchangeCode(ctx context.Context, code, redirectURI string) (TokenResult, error) {
	opts := []oauth2.AuthCodeOption{}
	if redirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}

	tok, err := a.cfg.Exchange(a.clientContext(ctx), code, opts...)
	if err != nil {
		return TokenResult{}, a.classify("exchanging authorization code", err)
	}

	a.logger.Info("authorization code exchanged",
		slog.Time("expiry", tok.Expiry),
		slog.Bool("has_refresh_token", tok.RefreshToken != ""),
	)

	return fromToken(tok), nil
}

// Refresh exchanges a refresh token for a fresh access token and expiry.
// Returns an *AuthError when the refresh token itself is invalid or
// revoked upstream.
func (a *Authority) Refresh(ctx context.Context, userID, refreshToken string) (TokenResult, error) {
	if refreshToken == "" {
		return TokenResult{}, &AuthError{StatusCode: http.StatusUnauthorized, Message: "no refresh token on record"}
	}

	src := a.cfg.TokenSource(a.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		a.logger.Warn("token refresh failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)

		return TokenResult{}, a.classify("refreshing token", err)
	}

	result := fromToken(tok)
	if result.RefreshToken == "" {
		// Google often omits the refresh token on refresh responses;
		// the original grant stays valid.
		result.RefreshToken = refreshToken
	}

	a.logger.Info("token refreshed",
		slog.String("user_id", userID),
		slog.Time("expiry", tok.Expiry),
	)

	return result, nil
}

// ValidateOrRefresh returns the stored token unchanged while it is still
// valid with a safety margin before expiry, otherwise refreshes it.
func (a *Authority) ValidateOrRefresh(ctx context.Context, userID string, cred *store.Credential) (TokenResult, error) {
	if cred != nil && cred.AccessToken != "" && !cred.ExpirationTime.IsZero() &&
		a.nowFunc().Add(refreshMargin).Before(cred.ExpirationTime) {
		return TokenResult{
			AccessToken:    cred.AccessToken,
			RefreshToken:   cred.RefreshToken,
			ExpirationTime: cred.ExpirationTime,
		}, nil
	}

	refreshToken := ""
	if cred != nil {
		refreshToken = cred.RefreshToken
	}

	return a.Refresh(ctx, userID, refreshToken)
}

// Revoke invalidates the token pair best-effort. Network and provider
// errors are swallowed and logged: revocation failure must never block a
// user-initiated disconnect.
func (a *Authority) Revoke(ctx context.Context, accessToken, refreshToken string) {
	// Revoking the refresh token first also kills derived access tokens.
	for _, tok := range []string{refreshToken, accessToken} {
		if tok == "" {
			continue
		}

		if err := a.revokeOne(ctx, tok); err != nil {
			a.logger.Warn("token revocation failed", slog.String("error", err.Error()))
		}
	}
}

func (a *Authority) revokeOne(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.revokeEndpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("authority: creating revoke request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("authority: revoking token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authority: revoke endpoint returned HTTP %d", resp.StatusCode)
	}

	return nil
}

// revokeEndpoint derives the revocation URL from the configured token
// endpoint so tests pointing cfg at an httptest server exercise the
// whole path. Falls back to Google's production endpoint.
func (a *Authority) revokeEndpoint() string {
	if a.cfg.Endpoint.TokenURL == google.Endpoint.TokenURL {
		return revokeURL
	}

	return strings.TrimSuffix(a.cfg.Endpoint.TokenURL, "/token") + "/revoke"
}

// clientContext injects the configured HTTP client into oauth2 calls.
func (a *Authority) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// classify converts oauth2 retrieval failures into *AuthError when the
// authorization server actively rejected the credentials, and wraps
// everything else as a plain transport error.
func (a *Authority) classify(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		msg := strings.TrimSpace(string(retrieveErr.Body))
		if msg == "" {
			msg = retrieveErr.Error()
		}

		status := http.StatusUnauthorized
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}

		return &AuthError{StatusCode: status, Message: msg}
	}

	return fmt.Errorf("authority: %s: %w", op, err)
}

func fromToken(tok *oauth2.Token) TokenResult {
	return TokenResult{
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		ExpirationTime: tok.Expiry,
	}
}
