package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Product struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	SKU          string    `json:"sku" gorm:"uniqueIndex;not null"`
	Name         string    `json:"name" gorm:"not null"`
	Category     *string   `json:"category"`
	StockMother  int       `json:"stock_mother" gorm:"not null;default:0"`
	StockWoo     int       `json:"stock_woo" gorm:"not null;default:0"`
	StockMeli    int       `json:"stock_meli" gorm:"not null;default:0"`
	MinStock     int       `json:"min_stock" gorm:"not null;default:0"`
	WooProductID *int64    `json:"woo_product_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Channel string

const (
	ChannelMother Channel = "mother"
	ChannelWoo    Channel = "woo"
	ChannelMeli   Channel = "meli"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelMother, ChannelWoo, ChannelMeli:
		return true
	}
	return false
}

// Column is the products column holding this channel's stock.
func (c Channel) Column() string {
	return "stock_" + string(c)
}

func (p *Product) TotalStock() int {
	return p.StockMother + p.StockWoo + p.StockMeli
}

// IsLow compares warehouse stock, the source every channel is fed from.
func (p *Product) IsLow() bool {
	return p.StockMother <= p.MinStock
}

func (p *Product) StockFor(c Channel) int {
	switch c {
	case ChannelWoo:
		return p.StockWoo
	case ChannelMeli:
		return p.StockMeli
	default:
		return p.StockMother
	}
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
