package handler

import (
	"fmt"
	"net/http"
	"sync"

	"stockhub/internal/api"
	"stockhub/internal/api/handlers"
	"stockhub/internal/config"
	"stockhub/internal/logger"
	"stockhub/internal/meli"
	"stockhub/internal/relay"
	"stockhub/internal/store"

	"github.com/gin-gonic/gin"
)

var (
	router    *gin.Engine
	initMutex sync.Mutex
)

// initRouter builds the functions router once per instance. The default
// backend talks to Postgres through lib/pq so cold starts skip the ORM.
func initRouter() error {
	initMutex.Lock()
	defer initMutex.Unlock()

	if router != nil {
		return nil // Already initialized
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.CredentialBackend == "gorm" {
		cfg.CredentialBackend = "postgres"
	}
	cfg.Env = "production"

	log := logger.New(cfg.Env, cfg.LogLevel)

	backend, err := store.Open(cfg, nil)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	oauth := meli.NewOAuthService(cfg, httpClient, log)
	broker := meli.NewBroker(cfg.MeliAccountID, backend.Credentials, oauth, httpClient, log)
	client := meli.NewClient(cfg.MeliAPIURL, broker, backend.Links, log)
	forwarder := relay.NewForwarder(cfg.RelayTargetURL, cfg.SupabaseServiceKey, httpClient, log)

	r := api.NewRouter(cfg, log)
	functions := handlers.NewFunctionsHandler(cfg, oauth, broker, client, forwarder, log)
	api.RegisterFunctions(r.Group("/functions/v1"), functions)
	// The hosting platform strips the prefix on some deployments.
	api.RegisterFunctions(r.Group("/"), functions)

	router = r
	return nil
}

// Handler is the serverless entry point.
func Handler(w http.ResponseWriter, r *http.Request) {
	if err := initRouter(); err != nil {
		http.Error(w, fmt.Sprintf("Initialization failed: %v", err), http.StatusInternalServerError)
		return
	}
	router.ServeHTTP(w, r)
}
