package store

import (
	"context"
	"fmt"
	"strconv"

	"stockhub/internal/models"

	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
)

// PostgRESTStore reads and writes through the hosted REST gateway using the
// service-role key.
type PostgRESTStore struct {
	client *postgrest.Client
}

func NewPostgRESTStore(restURL, serviceKey string) *PostgRESTStore {
	client := postgrest.NewClient(restURL, "public", map[string]string{
		"apikey":        serviceKey,
		"Authorization": "Bearer " + serviceKey,
	})
	return &PostgRESTStore{client: client}
}

func (s *PostgRESTStore) Latest(ctx context.Context, accountID string) (*models.Credential, error) {
	var rows []models.Credential
	_, err := s.client.From("meli_credentials").
		Select("*", "", false).
		Eq("account_id", accountID).
		Order("updated_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (s *PostgRESTStore) Save(ctx context.Context, cred *models.Credential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = timeNow()
	}

	var current []models.Credential
	_, err := s.client.From("meli_credentials").
		Select("version", "", false).
		Eq("id", cred.ID).
		ExecuteTo(&current)
	if err != nil {
		return fmt.Errorf("load credential version: %w", err)
	}
	cred.Version = 1
	if len(current) > 0 {
		cred.Version = current[0].Version + 1
	}

	var saved []models.Credential
	_, err = s.client.From("meli_credentials").
		Upsert(cred, "id", "representation", "").
		ExecuteTo(&saved)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *PostgRESTStore) CompareAndSwap(ctx context.Context, cred *models.Credential, expectedVersion int64) error {
	patch := map[string]interface{}{
		"access_token":  cred.AccessToken,
		"refresh_token": cred.RefreshToken,
		"scope":         cred.Scope,
		"user_id":       cred.UserID,
		"expires_at":    cred.ExpiresAt,
		"updated_at":    cred.UpdatedAt,
		"version":       expectedVersion + 1,
	}

	var updated []models.Credential
	_, err := s.client.From("meli_credentials").
		Update(patch, "representation", "").
		Eq("id", cred.ID).
		Eq("version", strconv.FormatInt(expectedVersion, 10)).
		ExecuteTo(&updated)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if len(updated) == 0 {
		return ErrVersionConflict
	}
	cred.Version = expectedVersion + 1
	return nil
}

func (s *PostgRESTStore) Get(ctx context.Context, sku string) (*models.SKULink, error) {
	var rows []models.SKULink
	_, err := s.client.From("meli_sku_links").
		Select("*", "", false).
		Eq("sku", sku).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("load sku link: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (s *PostgRESTStore) Upsert(ctx context.Context, link *models.SKULink) error {
	now := timeNow()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	link.UpdatedAt = now

	row := map[string]interface{}{
		"sku":               link.SKU,
		"meli_item_id":      link.MeliItemID,
		"meli_variation_id": link.MeliVariationID,
		"updated_at":        link.UpdatedAt,
	}
	var saved []models.SKULink
	_, err := s.client.From("meli_sku_links").
		Upsert(row, "sku", "representation", "").
		ExecuteTo(&saved)
	if err != nil {
		return fmt.Errorf("save sku link: %w", err)
	}
	if len(saved) > 0 {
		*link = saved[0]
	}
	return nil
}
