// Package store holds the storage collaborators for marketplace credentials
// and SKU listing links.
package store

import (
	"context"
	"errors"
	"time"

	"stockhub/internal/models"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record was modified concurrently")
)

// CredentialStore is keyed by marketplace account. Rows for one account are
// never deleted; the most recently updated one is authoritative.
type CredentialStore interface {
	Latest(ctx context.Context, accountID string) (*models.Credential, error)
	// Save upserts by ID. It assigns an ID when empty and bumps Version.
	Save(ctx context.Context, cred *models.Credential) error
	// CompareAndSwap writes cred only if the stored row is still at expectedVersion.
	CompareAndSwap(ctx context.Context, cred *models.Credential, expectedVersion int64) error
}

// timeNow is swapped by tests that need deterministic timestamps.
var timeNow = time.Now

type LinkStore interface {
	Get(ctx context.Context, sku string) (*models.SKULink, error)
	Upsert(ctx context.Context, link *models.SKULink) error
}
