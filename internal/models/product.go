package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductType тип товара.
type ProductType string

const (
	ProductTypeDigital ProductType = "digital"
	ProductTypeService ProductType = "service"
)

// Valid сообщает, входит ли тип в закрытый список.
func (t ProductType) Valid() bool {
	return t == ProductTypeDigital || t == ProductTypeService
}

// Product представляет товар витрины.
// Rating и ReviewCount денормализованы и пересчитываются после одобрения отзыва.
type Product struct {
	ID               int64               `json:"id" db:"id"`
	Name             string              `json:"name" db:"name"`
	Slug             string              `json:"slug" db:"slug"`
	Description      string              `json:"description" db:"description"`
	ShortDescription *string             `json:"short_description,omitempty" db:"short_description"`
	Price            decimal.Decimal     `json:"price" db:"price"`
	SalePrice        decimal.NullDecimal `json:"sale_price" db:"sale_price"`
	Type             ProductType         `json:"type" db:"type"`
	CategoryID       int64               `json:"category_id" db:"category_id"`
	IsActive         bool                `json:"is_active" db:"is_active"`
	IsFeatured       bool                `json:"is_featured" db:"is_featured"`
	Downloads        int64               `json:"downloads" db:"downloads"`
	Rating           decimal.Decimal     `json:"rating" db:"rating"`
	ReviewCount      int                 `json:"review_count" db:"review_count"`
	CreatedAt        time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at" db:"updated_at"`
	Category         *CategoryRef        `json:"category,omitempty"`
}

// EffectivePrice возвращает цену со скидкой, если она задана.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice.Valid {
		return p.SalePrice.Decimal
	}
	return p.Price
}

// CategoryRef краткое описание категории внутри товара.
type CategoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Category представляет категорию.
// ProductsCount считается запросом и не хранится.
type Category struct {
	ID            int64     `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Slug          string    `json:"slug" db:"slug"`
	Description   *string   `json:"description,omitempty" db:"description"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	ProductsCount int64     `json:"products_count"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
