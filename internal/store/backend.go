package store

import (
	"fmt"

	"stockhub/internal/config"

	"gorm.io/gorm"
)

// Backend pairs the two stores with whatever must be closed on shutdown.
type Backend struct {
	Credentials CredentialStore
	Links       LinkStore
	Close       func() error
}

// Open selects the storage named by CREDENTIAL_BACKEND: memory, gorm,
// postgres or postgrest. db is only used by the gorm backend.
func Open(cfg *config.Config, db *gorm.DB) (*Backend, error) {
	noop := func() error { return nil }

	switch cfg.CredentialBackend {
	case "memory":
		m := NewMemoryStore()
		return &Backend{Credentials: m, Links: m, Close: noop}, nil
	case "gorm", "":
		if db == nil {
			return nil, fmt.Errorf("gorm backend needs a database")
		}
		return &Backend{Credentials: NewGormCredentialStore(db), Links: NewGormLinkStore(db), Close: noop}, nil
	case "postgres":
		sqlDB, err := OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pg := NewPostgresStore(sqlDB)
		return &Backend{Credentials: pg, Links: pg, Close: sqlDB.Close}, nil
	case "postgrest":
		restURL := cfg.SupabaseRESTURL()
		if restURL == "" || cfg.SupabaseServiceKey == "" {
			return nil, fmt.Errorf("postgrest backend needs SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}
		rest := NewPostgRESTStore(restURL, cfg.SupabaseServiceKey)
		return &Backend{Credentials: rest, Links: rest, Close: noop}, nil
	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.CredentialBackend)
	}
}
