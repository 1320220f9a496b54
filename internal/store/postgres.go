package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stockhub/internal/models"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore talks to the hosted database over database/sql. It is what the
// serverless entry point uses, where a gorm pool per cold start is too heavy.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens and pings a lib/pq connection.
func OpenPostgres(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

const credentialColumns = `id, account_id, user_id, access_token, refresh_token, scope, expires_at, updated_at, version`

func (s *PostgresStore) Latest(ctx context.Context, accountID string) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+credentialColumns+`
		FROM meli_credentials
		WHERE account_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`, accountID)

	var c models.Credential
	err := row.Scan(&c.ID, &c.AccountID, &c.UserID, &c.AccessToken, &c.RefreshToken,
		&c.Scope, &c.ExpiresAt, &c.UpdatedAt, &c.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) Save(ctx context.Context, cred *models.Credential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = timeNow()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO meli_credentials (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
		ON CONFLICT (id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			user_id = EXCLUDED.user_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at,
			version = meli_credentials.version + 1
		RETURNING version`,
		cred.ID, cred.AccountID, cred.UserID, cred.AccessToken, cred.RefreshToken,
		cred.Scope, cred.ExpiresAt, cred.UpdatedAt,
	).Scan(&cred.Version)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, cred *models.Credential, expectedVersion int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE meli_credentials
		SET access_token = $1, refresh_token = $2, scope = $3, user_id = $4,
			expires_at = $5, updated_at = $6, version = version + 1
		WHERE id = $7 AND version = $8`,
		cred.AccessToken, cred.RefreshToken, cred.Scope, cred.UserID,
		cred.ExpiresAt, cred.UpdatedAt, cred.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	cred.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sku string) (*models.SKULink, error) {
	var link models.SKULink
	var variation sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT sku, meli_item_id, meli_variation_id, created_at, updated_at
		FROM meli_sku_links
		WHERE sku = $1`, sku,
	).Scan(&link.SKU, &link.MeliItemID, &variation, &link.CreatedAt, &link.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load sku link: %w", err)
	}
	if variation.Valid {
		v := variation.Int64
		link.MeliVariationID = &v
	}
	return &link, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, link *models.SKULink) error {
	now := timeNow()
	var variation sql.NullInt64
	if link.MeliVariationID != nil {
		variation = sql.NullInt64{Int64: *link.MeliVariationID, Valid: true}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO meli_sku_links (sku, meli_item_id, meli_variation_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (sku) DO UPDATE SET
			meli_item_id = EXCLUDED.meli_item_id,
			meli_variation_id = EXCLUDED.meli_variation_id,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`,
		link.SKU, link.MeliItemID, variation, now,
	).Scan(&link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save sku link: %w", err)
	}
	return nil
}
