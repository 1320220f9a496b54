// Package inventory keeps per-channel stock for every product and announces
// changes on the event publisher.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stockhub/internal/connectors/woocommerce"
	"stockhub/internal/events"
	"stockhub/internal/logger"
	"stockhub/internal/models"

	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("product not found")
	ErrInvalidQuantity = errors.New("quantity must not be negative")
	ErrUnknownChannel  = errors.New("unknown stock channel")
	ErrInvalidProduct  = errors.New("product needs a sku and a name")
)

type Filter struct {
	Search   string
	Category string
	LowOnly  bool
	Page     int
	Limit    int
}

type Summary struct {
	Products    int64 `json:"products"`
	StockMother int64 `json:"stock_mother"`
	StockWoo    int64 `json:"stock_woo"`
	StockMeli   int64 `json:"stock_meli"`
	LowStock    int64 `json:"low_stock"`
}

type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

type Service struct {
	db              *gorm.DB
	publisher       events.Publisher
	logger          *logger.Logger
	defaultMinStock int
}

func NewService(db *gorm.DB, publisher events.Publisher, logger *logger.Logger, defaultMinStock int) *Service {
	return &Service{
		db:              db,
		publisher:       publisher,
		logger:          logger,
		defaultMinStock: defaultMinStock,
	}
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.Product, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 200 {
		f.Limit = 50
	}

	query := s.db.WithContext(ctx).Model(&models.Product{})
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if f.LowOnly {
		query = query.Where("stock_mother <= min_stock")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	var products []models.Product
	err := query.Order("sku").Offset((f.Page - 1) * f.Limit).Limit(f.Limit).Find(&products).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

func (s *Service) Get(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).First(&product, "sku = ?", sku).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	return &product, nil
}

// Create inserts a product. A zero MinStock takes the configured default.
func (s *Service) Create(ctx context.Context, p *models.Product) error {
	p.SKU = strings.TrimSpace(p.SKU)
	if p.SKU == "" || strings.TrimSpace(p.Name) == "" {
		return ErrInvalidProduct
	}
	if p.StockMother < 0 || p.StockWoo < 0 || p.StockMeli < 0 || p.MinStock < 0 {
		return ErrInvalidQuantity
	}
	if p.MinStock == 0 {
		p.MinStock = s.defaultMinStock
	}

	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	s.logger.Info("Created product %s", p.SKU)
	return nil
}

// SetStock writes an absolute quantity for one channel.
func (s *Service) SetStock(ctx context.Context, sku string, channel models.Channel, quantity int) (*models.Product, error) {
	if !channel.Valid() {
		return nil, ErrUnknownChannel
	}
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.Get(ctx, sku)
	if err != nil {
		return nil, err
	}
	if product.StockFor(channel) == quantity {
		return product, nil
	}

	err = s.db.WithContext(ctx).Model(product).Update(channel.Column(), quantity).Error
	if err != nil {
		return nil, fmt.Errorf("update stock: %w", err)
	}
	switch channel {
	case models.ChannelMother:
		product.StockMother = quantity
	case models.ChannelWoo:
		product.StockWoo = quantity
	case models.ChannelMeli:
		product.StockMeli = quantity
	}

	s.announce(ctx, product, channel)
	return product, nil
}

func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	var sum Summary
	err := s.db.WithContext(ctx).Model(&models.Product{}).
		Select("COUNT(*) AS products, " +
			"COALESCE(SUM(stock_mother), 0) AS stock_mother, " +
			"COALESCE(SUM(stock_woo), 0) AS stock_woo, " +
			"COALESCE(SUM(stock_meli), 0) AS stock_meli").
		Scan(&sum).Error
	if err != nil {
		return nil, fmt.Errorf("summarize stock: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&models.Product{}).
		Where("stock_mother <= min_stock").
		Count(&sum.LowStock).Error
	if err != nil {
		return nil, fmt.Errorf("count low stock: %w", err)
	}
	return &sum, nil
}

// ApplyWooSync copies storefront stock into stock_woo. Unknown SKUs are
// created; products without a SKU or managed stock are skipped.
func (s *Service) ApplyWooSync(ctx context.Context, products []woocommerce.Product) (*SyncResult, error) {
	result := &SyncResult{}

	for _, wp := range products {
		if wp.SKU == "" || wp.StockQuantity == nil || *wp.StockQuantity < 0 {
			result.Skipped++
			continue
		}
		wooID := wp.ID

		existing, err := s.Get(ctx, wp.SKU)
		if errors.Is(err, ErrNotFound) {
			p := &models.Product{
				SKU:          wp.SKU,
				Name:         wp.Name,
				StockWoo:     *wp.StockQuantity,
				WooProductID: &wooID,
			}
			if p.Name == "" {
				p.Name = wp.SKU
			}
			if err := s.Create(ctx, p); err != nil {
				return result, err
			}
			result.Created++
			continue
		}
		if err != nil {
			return result, err
		}

		err = s.db.WithContext(ctx).Model(existing).Updates(map[string]interface{}{
			"stock_woo":      *wp.StockQuantity,
			"woo_product_id": wooID,
		}).Error
		if err != nil {
			return result, fmt.Errorf("update stock: %w", err)
		}
		result.Updated++

		if existing.StockWoo != *wp.StockQuantity {
			existing.StockWoo = *wp.StockQuantity
			s.announce(ctx, existing, models.ChannelWoo)
		}
	}

	s.logger.Info("WooCommerce sync: %d created, %d updated, %d skipped", result.Created, result.Updated, result.Skipped)
	return result, nil
}

// announce publishes stock.changed, and stock.low when the warehouse is at
// or below the product's minimum. Publish failures do not undo the write.
func (s *Service) announce(ctx context.Context, p *models.Product, channel models.Channel) {
	changed := events.New(events.StockChanged, p.SKU, p.StockFor(channel))
	changed.Channel = string(channel)
	if err := s.publisher.Publish(ctx, changed); err != nil {
		s.logger.Warn("Failed to publish %s for %s: %v", changed.Type, p.SKU, err)
	}

	if channel == models.ChannelMother && p.IsLow() {
		low := events.New(events.StockLow, p.SKU, p.StockMother)
		low.Channel = string(channel)
		low.Message = fmt.Sprintf("%s is at %d, minimum %d", p.Name, p.StockMother, p.MinStock)
		if err := s.publisher.Publish(ctx, low); err != nil {
			s.logger.Warn("Failed to publish %s for %s: %v", low.Type, p.SKU, err)
		}
	}
}
