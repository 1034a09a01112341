package session

import (
	"strconv"
	"time"

	"github.com/slingr-stack/google-drive-endpoint/internal/drive"
	"github.com/slingr-stack/google-drive-endpoint/internal/store"
)

// ConnectParams are the per-field-nullable inputs a connect request may
// carry. A nil field leaves the stored value alone; a non-nil field
// overrides it (last write wins per field).
type ConnectParams struct {
	Result         *string
	Name           *string
	Picture        *string
	Code           *string
	LastCode       *string
	RedirectURI    *string
	Token          *string
	RefreshToken   *string
	ExpirationTime *string
	Timezone       *string
}

// ConnectParamsFromMap extracts connect parameters from a JSON body.
// Only string-typed values count; anything else is ignored.
func ConnectParamsFromMap(body map[string]any) ConnectParams {
	return ConnectParams{
		Result:         stringField(body, "result"),
		Name:           stringField(body, "name"),
		Picture:        stringField(body, "picture"),
		Code:           stringField(body, "code"),
		LastCode:       stringField(body, "lastCode"),
		RedirectURI:    stringField(body, "redirectUri"),
		Token:          stringField(body, "token"),
		RefreshToken:   stringField(body, "refreshToken"),
		ExpirationTime: stringField(body, "expirationTime"),
		Timezone:       stringField(body, "timezone"),
	}
}

func stringField(body map[string]any, key string) *string {
	if body == nil {
		return nil
	}

	if s, ok := body[key].(string); ok && s != "" {
		return &s
	}

	return nil
}

// apply overlays non-nil params onto the credential and returns the
// authorization code and redirect URI, which are consumed by the
// exchange step rather than stored.
func apply(cred *store.Credential, p ConnectParams) (code, redirectURI string) {
	setIf(&cred.StatusMessage, p.Result)
	setIf(&cred.DisplayName, p.Name)
	setIf(&cred.PictureURL, p.Picture)
	setIf(&cred.AccessToken, p.Token)
	setIf(&cred.LastAuthCode, p.LastCode)
	setIf(&cred.RefreshToken, p.RefreshToken)
	setIf(&cred.Timezone, p.Timezone)

	if p.ExpirationTime != nil {
		if t := parseExpiration(*p.ExpirationTime); !t.IsZero() {
			cred.ExpirationTime = t
		}
	}

	if p.Code != nil {
		code = *p.Code
	}

	if p.RedirectURI != nil {
		redirectURI = *p.RedirectURI
	}

	return code, redirectURI
}

func setIf(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// overlayStored copies the non-empty fields of a stored record onto the
// default credential. Code and redirect URI are never stored.
func overlayStored(cred, stored *store.Credential) {
	setIfNotEmpty(&cred.StatusMessage, stored.StatusMessage)
	setIfNotEmpty(&cred.DisplayName, stored.DisplayName)
	setIfNotEmpty(&cred.PictureURL, stored.PictureURL)
	setIfNotEmpty(&cred.LastAuthCode, stored.LastAuthCode)
	setIfNotEmpty(&cred.AccessToken, stored.AccessToken)
	setIfNotEmpty(&cred.RefreshToken, stored.RefreshToken)
	setIfNotEmpty(&cred.Timezone, stored.Timezone)

	if !stored.ExpirationTime.IsZero() {
		cred.ExpirationTime = stored.ExpirationTime
	}
}

func setIfNotEmpty(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// parseExpiration accepts the canonical timestamp format, RFC3339, or
// epoch milliseconds. Returns the zero time when nothing parses.
func parseExpiration(s string) time.Time {
	if t, err := drive.ParseTimestamp(s); err == nil {
		return t
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}

	if millis, err := strconv.ParseInt(s, 10, 64); err == nil && millis > 0 {
		return time.UnixMilli(millis)
	}

	return time.Time{}
}

// payload renders a credential as the JSON configuration shape the
// platform sees. Field names match the stored document properties.
func payload(cred *store.Credential) map[string]any {
	out := map[string]any{
		"_id":    cred.UserID,
		"result": cred.StatusMessage,
	}

	setKey(out, "name", cred.DisplayName)
	setKey(out, "picture", cred.PictureURL)
	setKey(out, "lastCode", cred.LastAuthCode)
	setKey(out, "token", cred.AccessToken)
	setKey(out, "refreshToken", cred.RefreshToken)
	setKey(out, "timezone", cred.Timezone)

	if !cred.ExpirationTime.IsZero() {
		out["expirationTime"] = cred.ExpirationTime.Format(drive.TimestampFormat)
	}

	return out
}

func setKey(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
