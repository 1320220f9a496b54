package store

import (
	"context"
	"sync"
	"time"

	"stockhub/internal/models"

	"github.com/google/uuid"
)

// MemoryStore implements CredentialStore and LinkStore in process.
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]models.Credential
	links       map[string]models.SKULink
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[string]models.Credential),
		links:       make(map[string]models.SKULink),
		now:         time.Now,
	}
}

func (m *MemoryStore) Latest(ctx context.Context, accountID string) (*models.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *models.Credential
	for _, c := range m.credentials {
		if c.AccountID != accountID {
			continue
		}
		if latest == nil || c.UpdatedAt.After(latest.UpdatedAt) {
			cp := c
			latest = &cp
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (m *MemoryStore) Save(ctx context.Context, cred *models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	if cred.UpdatedAt.IsZero() {
		cred.UpdatedAt = m.now()
	}
	if existing, ok := m.credentials[cred.ID]; ok {
		cred.Version = existing.Version + 1
	} else {
		cred.Version++
	}
	m.credentials[cred.ID] = *cred
	return nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, cred *models.Credential, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.credentials[cred.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Version != expectedVersion {
		return ErrVersionConflict
	}
	cred.Version = expectedVersion + 1
	m.credentials[cred.ID] = *cred
	return nil
}

// CredentialCount is used by tests to assert rows are never duplicated.
func (m *MemoryStore) CredentialCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.credentials)
}

func (m *MemoryStore) Get(ctx context.Context, sku string) (*models.SKULink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.links[sku]
	if !ok {
		return nil, ErrNotFound
	}
	return &link, nil
}

func (m *MemoryStore) Upsert(ctx context.Context, link *models.SKULink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.links[link.SKU]; ok {
		link.CreatedAt = existing.CreatedAt
	} else if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	link.UpdatedAt = now
	m.links[link.SKU] = *link
	return nil
}
