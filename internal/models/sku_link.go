package models

import "time"

// SKULink maps a local SKU to its Mercado Libre listing.
type SKULink struct {
	SKU             string    `json:"sku" gorm:"primaryKey"`
	MeliItemID      string    `json:"meli_item_id" gorm:"not null"`
	MeliVariationID *int64    `json:"meli_variation_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (SKULink) TableName() string {
	return "meli_sku_links"
}

func (l *SKULink) HasVariation() bool {
	return l.MeliVariationID != nil
}
