package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"stockhub/internal/events"
	"stockhub/internal/logger"
	"stockhub/internal/meli"

	"github.com/gin-gonic/gin"
)

// StockPusher is satisfied by *meli.Client and by the worker's event processor.
type StockPusher interface {
	PushStock(ctx context.Context, sku string, quantity int) (json.RawMessage, error)
}

type MeliHandler struct {
	client    *meli.Client
	broker    *meli.Broker
	pusher    StockPusher
	publisher events.Publisher
	logger    *logger.Logger
}

func NewMeliHandler(client *meli.Client, broker *meli.Broker, pusher StockPusher, publisher events.Publisher, logger *logger.Logger) *MeliHandler {
	return &MeliHandler{
		client:    client,
		broker:    broker,
		pusher:    pusher,
		publisher: publisher,
		logger:    logger,
	}
}

func (h *MeliHandler) GetLink(c *gin.Context) {
	link, err := h.client.Link(c.Request.Context(), c.Param("sku"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": link})
}

func (h *MeliHandler) PutLink(c *gin.Context) {
	var request struct {
		ItemID      string `json:"item_id" binding:"required"`
		VariationID *int64 `json:"variation_id"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, err := h.client.LinkSKU(c.Request.Context(), c.Param("sku"), request.ItemID, request.VariationID)
	if err != nil {
		h.logger.Error("Failed to link sku: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save listing link"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": link})
}

// Push sends stock now, or queues it for the worker when async is set.
func (h *MeliHandler) Push(c *gin.Context) {
	var request struct {
		SKU      string `json:"sku" binding:"required"`
		Quantity *int   `json:"quantity" binding:"required"`
		Async    bool   `json:"async"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if *request.Quantity < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must not be negative"})
		return
	}

	if request.Async {
		e := events.New(events.PushRequested, request.SKU, *request.Quantity)
		if err := h.publisher.Publish(c.Request.Context(), e); err != nil {
			h.logger.Error("Failed to queue push: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to queue push"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true, "event_id": e.ID})
		return
	}

	item, err := h.pusher.PushStock(c.Request.Context(), request.SKU, *request.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": item})
}

func (h *MeliHandler) GetItem(c *gin.Context) {
	item, err := h.client.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (h *MeliHandler) Status(c *gin.Context) {
	status, err := h.broker.Status(c.Request.Context())
	if err != nil {
		if errors.Is(err, meli.ErrCredentialsMissing) {
			c.JSON(http.StatusOK, gin.H{"connected": false, "account_id": h.broker.AccountID()})
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true, "data": status})
}

func (h *MeliHandler) respondError(c *gin.Context, err error) {
	status := MeliErrorStatus(err)
	if status >= 500 {
		h.logger.Error("Marketplace call failed: %v", err)
	} else {
		h.logger.Warn("Marketplace call failed: %v", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// MeliErrorStatus maps broker and client errors to the status returned to callers.
func MeliErrorStatus(err error) int {
	var linkErr *meli.LinkNotFoundError
	var refreshErr *meli.RefreshError
	var apiErr *meli.APIError

	switch {
	case errors.As(err, &linkErr):
		return http.StatusNotFound
	case errors.Is(err, meli.ErrCredentialsMissing):
		return http.StatusPreconditionFailed
	case errors.As(err, &refreshErr):
		return http.StatusBadGateway
	case errors.Is(err, meli.ErrAuthRejectedAfterRefresh):
		return http.StatusUnauthorized
	case errors.As(err, &apiErr):
		return apiErr.StatusCode
	default:
		return http.StatusBadGateway
	}
}
