package services

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"
	"storefront/internal/models"
)

// DashboardService считает сводку админской панели.
// Результат не кешируется: каждый вызов читает текущие данные.
type DashboardService struct {
	db           *database.DB
	log          *logger.Logger
	recentOrders int
	salesDays    int
	topProducts  int
}

// NewDashboardService создает сервис админской панели.
func NewDashboardService(db *database.DB, log *logger.Logger, cfg *config.DashboardConfig) *DashboardService {
	s := &DashboardService{
		db:           db,
		log:          log,
		recentOrders: 5,
		salesDays:    30,
		topProducts:  5,
	}
	if cfg != nil {
		if cfg.RecentOrdersLimit > 0 {
			s.recentOrders = cfg.RecentOrdersLimit
		}
		if cfg.SalesDays > 0 {
			s.salesDays = cfg.SalesDays
		}
		if cfg.TopProductsLimit > 0 {
			s.topProducts = cfg.TopProductsLimit
		}
	}
	return s
}

// GetDashboardSummary собирает показатели, последние заказы, продажи по дням и лидеров продаж.
func (s *DashboardService) GetDashboardSummary(ctx context.Context, now time.Time) (*models.DashboardSummary, error) {
	tx, err := s.db.BeginSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stats, err := s.fetchStats(ctx, tx)
	if err != nil {
		return nil, err
	}

	recent, err := queryOrders(ctx, tx, orderSelect+`
	ORDER BY o.created_at DESC, o.id DESC
	LIMIT $1`, s.recentOrders)
	if err != nil {
		return nil, err
	}

	sales, err := s.fetchSalesData(ctx, tx, now)
	if err != nil {
		return nil, err
	}

	top, err := s.fetchTopProducts(ctx, tx)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"orders":  stats.TotalOrders,
		"revenue": stats.TotalRevenue.StringFixed(2),
	}).Debug("Dashboard summary computed")

	return &models.DashboardSummary{
		Stats:        *stats,
		RecentOrders: recent,
		SalesData:    sales,
		TopProducts:  top,
		GeneratedAt:  now,
	}, nil
}

func (s *DashboardService) fetchStats(ctx context.Context, q queryer) (*models.DashboardStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM products WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM categories),
			(SELECT COUNT(*) FROM categories WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM users WHERE role = $1),
			(SELECT COUNT(*) FROM orders),
			(SELECT COUNT(*) FROM orders WHERE status = $2),
			(SELECT COUNT(*) FROM orders WHERE status = $3),
			(SELECT COALESCE(SUM(total), 0) FROM orders WHERE payment_status = $4),
			(SELECT COUNT(*) FROM reviews WHERE is_approved = FALSE),
			(SELECT COALESCE(SUM(downloads), 0) FROM products),
			(SELECT COALESCE(ROUND(AVG(rating)::numeric, 1), 0) FROM reviews WHERE is_approved = TRUE)
	`

	stats := &models.DashboardStats{}
	if err := q.QueryRowContext(ctx, query, models.RoleCustomer, models.OrderStatusPending, models.OrderStatusCompleted, models.PaymentStatusPaid).Scan(
		&stats.TotalProducts, &stats.ActiveProducts, &stats.TotalCategories, &stats.ActiveCategories,
		&stats.TotalCustomers, &stats.TotalOrders, &stats.PendingOrders, &stats.CompletedOrders,
		&stats.TotalRevenue, &stats.PendingReviews, &stats.TotalDownloads, &stats.AverageRating,
	); err != nil {
		return nil, fmt.Errorf("failed to get dashboard stats: %w", err)
	}
	return stats, nil
}

func (s *DashboardService) fetchSalesData(ctx context.Context, q queryer, now time.Time) ([]models.DailySales, error) {
	query := `
		SELECT DATE(created_at) AS day, COALESCE(SUM(total), 0) AS revenue, COUNT(*) AS orders
		FROM orders
		WHERE payment_status = $1 AND created_at >= $2
		GROUP BY DATE(created_at)
		ORDER BY day ASC
	`

	rows, err := q.QueryContext(ctx, query, models.PaymentStatusPaid, now.AddDate(0, 0, -s.salesDays))
	if err != nil {
		return nil, fmt.Errorf("failed to get sales data: %w", err)
	}
	defer rows.Close()

	sales := make([]models.DailySales, 0)
	for rows.Next() {
		var (
			day  time.Time
			item models.DailySales
		)
		if err := rows.Scan(&day, &item.Revenue, &item.Orders); err != nil {
			return nil, fmt.Errorf("failed to scan sales row: %w", err)
		}
		item.Date = day.Format("2006-01-02")
		sales = append(sales, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sales rows: %w", err)
	}
	return sales, nil
}

// fetchTopProducts считает только позиции оплаченных заказов.
func (s *DashboardService) fetchTopProducts(ctx context.Context, q queryer) ([]models.TopProduct, error) {
	query := `
		SELECT p.id, p.name, p.slug, COUNT(o.id) AS sales_count
		FROM products p
		LEFT JOIN order_items oi ON oi.product_id = p.id
		LEFT JOIN orders o ON o.id = oi.order_id AND o.payment_status = $1
		GROUP BY p.id, p.name, p.slug
		ORDER BY sales_count DESC, p.id ASC
		LIMIT $2
	`

	rows, err := q.QueryContext(ctx, query, models.PaymentStatusPaid, s.topProducts)
	if err != nil {
		return nil, fmt.Errorf("failed to get top products: %w", err)
	}
	defer rows.Close()

	top := make([]models.TopProduct, 0)
	for rows.Next() {
		var p models.TopProduct
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.SalesCount); err != nil {
			return nil, fmt.Errorf("failed to scan top product: %w", err)
		}
		top = append(top, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate top products: %w", err)
	}
	return top, nil
}
