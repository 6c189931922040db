package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DashboardStats агрегированные показатели админской панели.
type DashboardStats struct {
	TotalProducts    int64           `json:"total_products"`
	ActiveProducts   int64           `json:"active_products"`
	TotalCategories  int64           `json:"total_categories"`
	ActiveCategories int64           `json:"active_categories"`
	TotalCustomers   int64           `json:"total_customers"`
	TotalOrders      int64           `json:"total_orders"`
	PendingOrders    int64           `json:"pending_orders"`
	CompletedOrders  int64           `json:"completed_orders"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	PendingReviews   int64           `json:"pending_reviews"`
	TotalDownloads   int64           `json:"total_downloads"`
	AverageRating    decimal.Decimal `json:"average_rating"`
}

// DailySales выручка по оплаченным заказам за календарный день.
type DailySales struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int64           `json:"orders"`
}

// TopProduct товар с количеством оплаченных позиций.
type TopProduct struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	SalesCount int64  `json:"sales_count"`
}

// DashboardSummary полный ответ админской панели.
type DashboardSummary struct {
	Stats        DashboardStats `json:"stats"`
	RecentOrders []Order        `json:"recent_orders"`
	SalesData    []DailySales   `json:"sales_data"`
	TopProducts  []TopProduct   `json:"top_products"`
	GeneratedAt  time.Time      `json:"generated_at"`
}
