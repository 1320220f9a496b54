package handlers

import (
	"errors"
	"io"
	"net/http"

	"stockhub/internal/connectors/woocommerce"
	"stockhub/internal/inventory"
	"stockhub/internal/logger"

	"github.com/gin-gonic/gin"
)

// ConnectorHandler brings storefront stock into the inventory.
type ConnectorHandler struct {
	woo       *woocommerce.WooCommerceConnector
	inventory *inventory.Service
	logger    *logger.Logger
}

func NewConnectorHandler(woo *woocommerce.WooCommerceConnector, inv *inventory.Service, logger *logger.Logger) *ConnectorHandler {
	return &ConnectorHandler{
		woo:       woo,
		inventory: inv,
		logger:    logger,
	}
}

func (h *ConnectorHandler) Sync(c *gin.Context) {
	products, err := h.woo.Sync(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to sync WooCommerce: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch products from WooCommerce"})
		return
	}

	result, err := h.inventory.ApplyWooSync(c.Request.Context(), products)
	if err != nil {
		h.logger.Error("Failed to apply WooCommerce sync: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply WooCommerce stock"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (h *ConnectorHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	product, err := h.woo.HandleWebhook(payload, c.GetHeader(woocommerce.SignatureHeader))
	switch {
	case errors.Is(err, woocommerce.ErrInvalidSignature):
		h.logger.Warn("Rejected WooCommerce webhook from %s: %v", c.ClientIP(), err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case errors.Is(err, woocommerce.ErrWebhookSecretMissing):
		h.logger.Error("Refusing WooCommerce webhook: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.inventory.ApplyWooSync(c.Request.Context(), []woocommerce.Product{*product})
	if err != nil {
		h.logger.Error("Failed to apply WooCommerce webhook: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply WooCommerce stock"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
