package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"stockhub/internal/api/handlers"
	"stockhub/internal/api/middleware"
	"stockhub/internal/config"
	"stockhub/internal/connectors/woocommerce"
	"stockhub/internal/events"
	"stockhub/internal/inventory"
	"stockhub/internal/logger"
	"stockhub/internal/meli"
	"stockhub/internal/relay"

	"github.com/gin-gonic/gin"
)

// Dependencies are built by the entry points and shared by the handlers.
type Dependencies struct {
	Inventory   *inventory.Service
	OAuth       *meli.OAuthService
	Broker      *meli.Broker
	Meli        *meli.Client
	Pusher      handlers.StockPusher
	Publisher   events.Publisher
	Bus         *events.Bus
	Forwarder   *relay.Forwarder
	WooCommerce *woocommerce.WooCommerceConnector
}

type Server struct {
	config *config.Config
	logger *logger.Logger
	router *gin.Engine
	server *http.Server
}

// NewRouter builds a gin engine with the shared middleware stack.
func NewRouter(cfg *config.Config, logger *logger.Logger) *gin.Engine {
	// Set Gin mode
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

// RegisterFunctions mounts the public marketplace endpoints.
func RegisterFunctions(rg *gin.RouterGroup, h *handlers.FunctionsHandler) {
	rg.GET("/meli-webhook", h.WebhookPing)
	rg.POST("/meli-webhook", h.WebhookRelay)
	rg.GET("/meli-auth", h.Auth)
	rg.POST("/meli-auth", h.Auth)
	rg.GET("/meli-callback", h.Callback)
	rg.POST("/meli-stock", h.Stock)
}

func New(cfg *config.Config, logger *logger.Logger, deps Dependencies) *Server {
	router := NewRouter(cfg, logger)

	// Initialize handlers
	productHandler := handlers.NewProductHandler(deps.Inventory, logger)
	meliHandler := handlers.NewMeliHandler(deps.Meli, deps.Broker, deps.Pusher, deps.Publisher, logger)
	connectorHandler := handlers.NewConnectorHandler(deps.WooCommerce, deps.Inventory, logger)
	eventsHandler := handlers.NewEventsHandler(deps.Bus, logger)
	functionsHandler := handlers.NewFunctionsHandler(cfg, deps.OAuth, deps.Broker, deps.Pusher, deps.Forwarder, logger)

	// Routes
	v1 := router.Group("/api/v1")
	{
		// Products
		products := v1.Group("/products")
		{
			products.GET("", productHandler.List)
			products.GET("/:sku", productHandler.Get)
			products.POST("", productHandler.Create)
			products.PUT("/:sku/stock", productHandler.UpdateStock)
		}
		v1.GET("/summary", productHandler.Summary)

		// Mercado Libre
		ml := v1.Group("/meli")
		{
			ml.GET("/links/:sku", meliHandler.GetLink)
			ml.PUT("/links/:sku", meliHandler.PutLink)
			ml.POST("/push", meliHandler.Push)
			ml.GET("/items/:id", meliHandler.GetItem)
			ml.GET("/status", meliHandler.Status)
		}

		// WooCommerce
		woo := v1.Group("/woocommerce")
		{
			woo.POST("/sync", connectorHandler.Sync)
			woo.POST("/webhook", connectorHandler.Webhook)
		}

		v1.GET("/events", eventsHandler.Stream)
	}

	RegisterFunctions(router.Group("/functions/v1"), functionsHandler)

	return &Server{
		config: cfg,
		logger: logger,
		router: router,
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.APIHost, s.config.APIPort)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("Starting server on " + addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
