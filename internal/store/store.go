// Package store implements durable per-user credential persistence.
// The Store interface is the narrow document-store boundary the session
// orchestrator talks to; a SQLite implementation backs production and a
// memory implementation backs tests and ephemeral deployments.
package store

import (
	"context"
	"time"
)

// Status messages written to credential records over their lifecycle.
const (
	StatusConnectError = "An error happened when connecting to Google. Please contact the administrator."
	StatusConnected    = "Connection established."
	StatusDisconnected = "Connection disabled."
)

// Credential is the stored record for one connected end-user identity.
// An empty AccessToken means the user is considered disconnected.
type Credential struct {
	UserID         string
	AccessToken    string
	RefreshToken   string
	ExpirationTime time.Time
	DisplayName    string
	PictureURL     string
	LastAuthCode   string
	StatusMessage  string
	Timezone       string
}

// Connected reports whether the record carries a live access token.
func (c *Credential) Connected() bool {
	return c != nil && c.AccessToken != ""
}

// Clone returns a copy so callers can mutate without aliasing stored state.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}

	cp := *c

	return &cp
}

// Store is the keyed credential document store. Save is an idempotent
// upsert; FindByID returns (nil, nil) when no record exists; RemoveByID
// is a no-op for absent records. The store never mutates records on its
// own — all lifecycle decisions belong to the session orchestrator.
type Store interface {
	FindByID(ctx context.Context, userID string) (*Credential, error)
	Save(ctx context.Context, cred *Credential) error
	RemoveByID(ctx context.Context, userID string) error
}
