package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"stockhub/internal/inventory"
	"stockhub/internal/logger"
	"stockhub/internal/models"

	"github.com/gin-gonic/gin"
)

type ProductHandler struct {
	inventory *inventory.Service
	logger    *logger.Logger
}

func NewProductHandler(inv *inventory.Service, logger *logger.Logger) *ProductHandler {
	return &ProductHandler{
		inventory: inv,
		logger:    logger,
	}
}

func (h *ProductHandler) List(c *gin.Context) {
	// Pagination
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	filter := inventory.Filter{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		LowOnly:  c.Query("low") == "true",
		Page:     page,
		Limit:    limit,
	}

	products, total, err := h.inventory.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list products: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": products,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

func (h *ProductHandler) Get(c *gin.Context) {
	product, err := h.inventory.Get(c.Request.Context(), c.Param("sku"))
	if err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		h.logger.Error("Failed to fetch product: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product})
}

func (h *ProductHandler) Create(c *gin.Context) {
	var product models.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	product.ID = ""

	if err := h.inventory.Create(c.Request.Context(), &product); err != nil {
		if errors.Is(err, inventory.ErrInvalidProduct) || errors.Is(err, inventory.ErrInvalidQuantity) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to create product: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create product"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": product})
}

func (h *ProductHandler) UpdateStock(c *gin.Context) {
	var request struct {
		Channel  models.Channel `json:"channel" binding:"required"`
		Quantity *int           `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.inventory.SetStock(c.Request.Context(), c.Param("sku"), request.Channel, *request.Quantity)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"data": product})
	case errors.Is(err, inventory.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
	case errors.Is(err, inventory.ErrUnknownChannel), errors.Is(err, inventory.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Failed to update stock: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update stock"})
	}
}

func (h *ProductHandler) Summary(c *gin.Context) {
	summary, err := h.inventory.Summary(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to summarize stock: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to summarize stock"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}
