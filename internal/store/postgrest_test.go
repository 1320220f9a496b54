package store

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgRESTLatest(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/meli_credentials"))
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("apikey")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"c1","account_id":"default","user_id":42,"access_token":"A","refresh_token":"R","scope":"offline_access","expires_at":"2026-10-19T16:00:00Z","updated_at":"2026-10-19T10:00:00Z","version":3}]`)
	}))
	defer srv.Close()

	s := NewPostgRESTStore(srv.URL, "service-key")
	cred, err := s.Latest(context.Background(), "default")
	require.NoError(t, err)

	assert.Equal(t, "A", cred.AccessToken)
	assert.Equal(t, int64(3), cred.Version)
	assert.Equal(t, time.Date(2026, 10, 19, 16, 0, 0, 0, time.UTC), cred.ExpiresAt.UTC())
	assert.Equal(t, "service-key", gotKey)
	assert.Contains(t, gotQuery, "account_id=eq.default")
	assert.Contains(t, gotQuery, "updated_at.desc")
}

func TestPostgRESTLatestEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	_, err := NewPostgRESTStore(srv.URL, "k").Latest(context.Background(), "default")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgRESTCompareAndSwapConflict(t *testing.T) {
	var gotMethod, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	s := NewPostgRESTStore(srv.URL, "k")
	err := s.CompareAndSwap(context.Background(), &models.Credential{ID: "c1", AccessToken: "B"}, 3)

	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Contains(t, gotQuery, "id=eq.c1")
	assert.Contains(t, gotQuery, "version=eq.3")
}
