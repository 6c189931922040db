package models

import "github.com/shopspring/decimal"

// ProductQueryParams сырые параметры запроса каталога.
type ProductQueryParams struct {
	Category string
	Search   string
	MinPrice string
	MaxPrice string
	Type     string
	Sort     string
	Order    string
	Page     string
}

// ProductFilter нормализованный фильтр каталога.
type ProductFilter struct {
	Category string           `json:"category,omitempty"`
	Search   string           `json:"search,omitempty"`
	MinPrice *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice *decimal.Decimal `json:"max_price,omitempty"`
	Type     ProductType      `json:"type,omitempty"`
	Sort     string           `json:"sort"`
	Order    string           `json:"order"`
	Page     int              `json:"page"`
}

// ResultPage страница упорядоченной выборки с метаданными пагинации.
type ResultPage[T any] struct {
	Data        []T   `json:"data"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
}

// ProductListing ответ страницы каталога.
type ProductListing struct {
	Products   ResultPage[Product] `json:"products"`
	Categories []Category          `json:"categories"`
	Filters    ProductFilter       `json:"filters"`
}

// ProductDetail карточка товара с отзывами и похожими товарами.
type ProductDetail struct {
	Product         Product   `json:"product"`
	Reviews         []Review  `json:"reviews"`
	RelatedProducts []Product `json:"related_products"`
}

// HomeStats сводка для главной страницы.
type HomeStats struct {
	TotalProducts   int64           `json:"total_products"`
	TotalCategories int64           `json:"total_categories"`
	TotalDownloads  int64           `json:"total_downloads"`
	CustomerRating  decimal.Decimal `json:"customer_rating"`
}

// HomePage данные главной страницы.
type HomePage struct {
	FeaturedProducts []Product  `json:"featured_products"`
	Categories       []Category `json:"categories"`
	Stats            HomeStats  `json:"stats"`
}
