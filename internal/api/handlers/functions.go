package handlers

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"stockhub/internal/config"
	"stockhub/internal/logger"
	"stockhub/internal/meli"
	"stockhub/internal/relay"

	"github.com/gin-gonic/gin"
)

// FunctionsHandler serves the public marketplace endpoints: the webhook
// relay, the OAuth start and callback, and the stock push.
type FunctionsHandler struct {
	config    *config.Config
	oauth     *meli.OAuthService
	broker    *meli.Broker
	pusher    StockPusher
	forwarder *relay.Forwarder
	logger    *logger.Logger
}

func NewFunctionsHandler(cfg *config.Config, oauth *meli.OAuthService, broker *meli.Broker, pusher StockPusher, forwarder *relay.Forwarder, logger *logger.Logger) *FunctionsHandler {
	return &FunctionsHandler{
		config:    cfg,
		oauth:     oauth,
		broker:    broker,
		pusher:    pusher,
		forwarder: forwarder,
		logger:    logger,
	}
}

// WebhookPing answers the marketplace's validation GET. Nothing is forwarded.
func (h *FunctionsHandler) WebhookPing(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// WebhookRelay forwards the notification body verbatim and passes the
// processor's reply straight back.
func (h *FunctionsHandler) WebhookRelay(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	resp, err := h.forwarder.Forward(c.Request.Context(), body, c.ContentType())
	if err != nil {
		h.logger.Error("Failed to relay webhook: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	copyHeaders(c.Writer.Header(), resp.Header)
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}

// Hop-by-hop headers plus the ones the response writer recomputes.
var skippedHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
}

// copyHeaders passes upstream headers through. CORS headers stay ours.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		key = http.CanonicalHeaderKey(key)
		if skippedHeaders[key] || strings.HasPrefix(key, "Access-Control-") {
			continue
		}
		dst[key] = append([]string(nil), values...)
	}
}

// Auth starts the OAuth flow.
func (h *FunctionsHandler) Auth(c *gin.Context) {
	authURL, state, err := h.oauth.AuthorizationURL()
	if err != nil {
		h.logger.Error("Failed to generate auth URL: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authorization URL"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"auth_url": authURL,
		"state":    state,
	})
}

// Callback exchanges the code, stores the credential and sends the user
// back to the dashboard.
func (h *FunctionsHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameter: code"})
		return
	}

	tokenResp, err := h.oauth.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("Failed to exchange code for token: %v", err)
		c.Redirect(http.StatusFound, h.dashboardURL("error"))
		return
	}

	if _, err := h.broker.SaveGrant(c.Request.Context(), tokenResp); err != nil {
		h.logger.Error("Failed to save credential: %v", err)
		c.Redirect(http.StatusFound, h.dashboardURL("error"))
		return
	}

	c.Redirect(http.StatusFound, h.dashboardURL("connected"))
}

func (h *FunctionsHandler) Stock(c *gin.Context) {
	var request struct {
		SKU      string `json:"sku" binding:"required"`
		Quantity *int   `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if *request.Quantity < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must not be negative"})
		return
	}

	item, err := h.pusher.PushStock(c.Request.Context(), request.SKU, *request.Quantity)
	if err != nil {
		status := MeliErrorStatus(err)
		h.logger.Warn("Stock push for %s failed with %d: %v", request.SKU, status, err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Data(http.StatusOK, "application/json", item)
}

func (h *FunctionsHandler) dashboardURL(result string) string {
	u, err := url.Parse(h.config.DashboardURL)
	if err != nil {
		return h.config.DashboardURL
	}
	q := u.Query()
	q.Set("meli", result)
	u.RawQuery = q.Encode()
	return u.String()
}
