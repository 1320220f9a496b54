package store

import (
	"context"
	"errors"
	"fmt"

	"stockhub/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormCredentialStore struct {
	db *gorm.DB
}

func NewGormCredentialStore(db *gorm.DB) *GormCredentialStore {
	return &GormCredentialStore{db: db}
}

func (s *GormCredentialStore) Latest(ctx context.Context, accountID string) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("updated_at DESC").
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return &cred, nil
}

func (s *GormCredentialStore) Save(ctx context.Context, cred *models.Credential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = timeNow()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Credential
		err := tx.Select("version").Where("id = ?", cred.ID).First(&current).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			cred.Version = 1
		case err != nil:
			return fmt.Errorf("load credential version: %w", err)
		default:
			cred.Version = current.Version + 1
		}

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"account_id", "user_id", "access_token", "refresh_token", "scope", "expires_at", "updated_at", "version"}),
		}).Create(cred).Error
		if err != nil {
			return fmt.Errorf("save credential: %w", err)
		}
		return nil
	})
}

func (s *GormCredentialStore) CompareAndSwap(ctx context.Context, cred *models.Credential, expectedVersion int64) error {
	result := s.db.WithContext(ctx).
		Model(&models.Credential{}).
		Where("id = ? AND version = ?", cred.ID, expectedVersion).
		Updates(map[string]interface{}{
			"access_token":  cred.AccessToken,
			"refresh_token": cred.RefreshToken,
			"scope":         cred.Scope,
			"user_id":       cred.UserID,
			"expires_at":    cred.ExpiresAt,
			"updated_at":    cred.UpdatedAt,
			"version":       expectedVersion + 1,
		})
	if result.Error != nil {
		return fmt.Errorf("update credential: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	cred.Version = expectedVersion + 1
	return nil
}

type GormLinkStore struct {
	db *gorm.DB
}

func NewGormLinkStore(db *gorm.DB) *GormLinkStore {
	return &GormLinkStore{db: db}
}

func (s *GormLinkStore) Get(ctx context.Context, sku string) (*models.SKULink, error) {
	var link models.SKULink
	err := s.db.WithContext(ctx).Where("sku = ?", sku).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load sku link: %w", err)
	}
	return &link, nil
}

func (s *GormLinkStore) Upsert(ctx context.Context, link *models.SKULink) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"meli_item_id", "meli_variation_id", "updated_at"}),
	}).Create(link).Error
	if err != nil {
		return fmt.Errorf("save sku link: %w", err)
	}
	return nil
}
