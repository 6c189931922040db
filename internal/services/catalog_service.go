package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/redis"
)

// queryer общий интерфейс *sql.DB и *sql.Tx для чтения.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type catalogCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// CatalogService отвечает за витрину: список товаров, карточку и главную страницу.
type CatalogService struct {
	db       *database.DB
	cache    catalogCache
	log      *logger.Logger
	cfg      config.CatalogConfig
	cacheTTL time.Duration
}

// NewCatalogService создаёт сервис каталога. redisClient может быть nil.
func NewCatalogService(db *database.DB, redisClient *redis.Client, log *logger.Logger, cfg *config.CatalogConfig) *CatalogService {
	s := &CatalogService{
		db:  db,
		log: log,
		cfg: *cfg,
	}
	if s.cfg.PageSize <= 0 {
		s.cfg.PageSize = 12
	}
	if s.cfg.RelatedLimit <= 0 {
		s.cfg.RelatedLimit = 4
	}
	if s.cfg.FeaturedLimit <= 0 {
		s.cfg.FeaturedLimit = 6
	}
	if s.cfg.HomeCategoryLimit <= 0 {
		s.cfg.HomeCategoryLimit = 8
	}
	if redisClient != nil && cfg.CacheTTLSeconds > 0 {
		s.cache = redisClient
		s.cacheTTL = time.Duration(cfg.CacheTTLSeconds) * time.Second
	}
	return s
}

// ListProducts возвращает страницу каталога и категории со счётчиками.
// Все запросы читают один снимок данных.
func (s *CatalogService) ListProducts(ctx context.Context, filter models.ProductFilter) (*models.ProductListing, error) {
	q := BuildProductQuery(filter, s.cfg.PageSize)

	tx, err := s.db.BeginSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	if err := tx.QueryRowContext(ctx, q.CountSQL, q.Args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	products := make([]models.Product, 0)
	if q.Offset >= 0 && int64(q.Offset) < total {
		products, err = queryProducts(ctx, tx, q.ListSQL, q.ListArgs()...)
		if err != nil {
			return nil, err
		}
	}

	categories, err := listCategories(ctx, tx, 0)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}

	return &models.ProductListing{
		Products: models.ResultPage[models.Product]{
			Data:        products,
			CurrentPage: page,
			PerPage:     s.cfg.PageSize,
			Total:       total,
			LastPage:    lastPage(total, s.cfg.PageSize),
		},
		Categories: categories,
		Filters:    filter,
	}, nil
}

// ListCategoriesWithCounts возвращает активные категории с количеством активных товаров.
func (s *CatalogService) ListCategoriesWithCounts(ctx context.Context) ([]models.Category, error) {
	return listCategories(ctx, s.db, 0)
}

// GetProductDetail возвращает карточку активного товара.
func (s *CatalogService) GetProductDetail(ctx context.Context, slug string) (*models.ProductDetail, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, apperror.NotFound("product not found", nil)
	}

	key := redis.GenerateKey(redis.KeyPrefixProduct, slug)
	var cached models.ProductDetail
	if s.tryGetFromCache(ctx, "product", key, &cached) {
		return &cached, nil
	}

	tx, err := s.db.BeginSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product, err := scanProduct(tx.QueryRowContext(ctx, productSelect+`
	WHERE p.slug = $1 AND p.is_active = TRUE`, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("product not found", err)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	reviews, err := listApprovedReviews(ctx, tx, product.ID)
	if err != nil {
		return nil, err
	}

	related, err := queryProducts(ctx, tx, productSelect+`
	WHERE p.category_id = $1 AND p.id <> $2 AND p.is_active = TRUE
	ORDER BY p.created_at DESC, p.id DESC
	LIMIT $3`, product.CategoryID, product.ID, s.cfg.RelatedLimit)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	detail := &models.ProductDetail{
		Product:         *product,
		Reviews:         reviews,
		RelatedProducts: related,
	}
	s.saveToCache(ctx, key, detail)
	return detail, nil
}

// GetHomePage возвращает рекомендуемые товары, категории и сводку магазина.
func (s *CatalogService) GetHomePage(ctx context.Context) (*models.HomePage, error) {
	var cached models.HomePage
	if s.tryGetFromCache(ctx, "home", redis.KeyHomePage, &cached) {
		return &cached, nil
	}

	tx, err := s.db.BeginSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	featured, err := queryProducts(ctx, tx, productSelect+`
	WHERE p.is_active = TRUE AND p.is_featured = TRUE
	ORDER BY p.created_at DESC, p.id DESC
	LIMIT $1`, s.cfg.FeaturedLimit)
	if err != nil {
		return nil, err
	}

	categories, err := listCategories(ctx, tx, s.cfg.HomeCategoryLimit)
	if err != nil {
		return nil, err
	}

	statsQuery := `
		SELECT
			(SELECT COUNT(*) FROM products WHERE is_active = TRUE),
			(SELECT COUNT(*) FROM categories WHERE is_active = TRUE),
			(SELECT COALESCE(SUM(downloads), 0) FROM products),
			(SELECT COALESCE(ROUND(AVG(rating)::numeric, 1), 0) FROM reviews WHERE is_approved = TRUE)
	`
	var stats models.HomeStats
	if err := tx.QueryRowContext(ctx, statsQuery).Scan(
		&stats.TotalProducts, &stats.TotalCategories, &stats.TotalDownloads, &stats.CustomerRating,
	); err != nil {
		return nil, fmt.Errorf("failed to get store stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	home := &models.HomePage{
		FeaturedProducts: featured,
		Categories:       categories,
		Stats:            stats,
	}
	s.saveToCache(ctx, redis.KeyHomePage, home)
	return home, nil
}

// InvalidateCache сбрасывает кеш витрины.
func (s *CatalogService) InvalidateCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.DeleteByPrefix(ctx, redis.KeyPrefixCatalog); err != nil {
		return fmt.Errorf("failed to invalidate catalog cache: %w", err)
	}
	return nil
}

func (s *CatalogService) tryGetFromCache(ctx context.Context, kind, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}

	err := s.cache.GetJSON(ctx, key, dest)
	switch {
	case err == nil:
		metrics.CacheRequests.WithLabelValues(kind, "hit").Inc()
		return true
	case errors.Is(err, redis.ErrCacheMiss):
		metrics.CacheRequests.WithLabelValues(kind, "miss").Inc()
	default:
		metrics.CacheRequests.WithLabelValues(kind, "error").Inc()
		s.log.WithError(err).WithField("key", key).Warn("Failed to read catalog cache")
	}
	return false
}

func (s *CatalogService) saveToCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}

	if err := s.cache.SetJSON(ctx, key, value, s.cacheTTL); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Failed to cache catalog result")
	}
}

func scanProduct(row rowScanner) (*models.Product, error) {
	p := &models.Product{}
	var (
		shortDescription sql.NullString
		categoryName     string
		categorySlug     string
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Description, &shortDescription, &p.Price, &p.SalePrice, &p.Type,
		&p.CategoryID, &p.IsActive, &p.IsFeatured, &p.Downloads, &p.Rating, &p.ReviewCount,
		&p.CreatedAt, &p.UpdatedAt, &categoryName, &categorySlug,
	); err != nil {
		return nil, err
	}
	if shortDescription.Valid {
		p.ShortDescription = &shortDescription.String
	}
	p.Category = &models.CategoryRef{ID: p.CategoryID, Name: categoryName, Slug: categorySlug}
	return p, nil
}

func queryProducts(ctx context.Context, q queryer, query string, args ...interface{}) ([]models.Product, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}

// listCategories возвращает активные категории с живым счётчиком активных товаров.
// limit <= 0 означает без ограничения.
func listCategories(ctx context.Context, q queryer, limit int) ([]models.Category, error) {
	query := `
		SELECT c.id, c.name, c.slug, c.description, c.is_active, c.created_at, COUNT(p.id) AS products_count
		FROM categories c
		LEFT JOIN products p ON p.category_id = c.id AND p.is_active = TRUE
		WHERE c.is_active = TRUE
		GROUP BY c.id
		ORDER BY c.name ASC, c.id ASC
	`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]models.Category, 0)
	for rows.Next() {
		var (
			c           models.Category
			description sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &description, &c.IsActive, &c.CreatedAt, &c.ProductsCount); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		if description.Valid {
			c.Description = &description.String
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

func listApprovedReviews(ctx context.Context, q queryer, productID int64) ([]models.Review, error) {
	query := `
		SELECT r.id, r.product_id, r.user_id, r.order_id, r.rating, r.comment, r.is_approved, r.created_at, r.updated_at, u.name
		FROM reviews r
		JOIN users u ON u.id = r.user_id
		WHERE r.product_id = $1 AND r.is_approved = TRUE
		ORDER BY r.created_at DESC, r.id DESC
	`

	rows, err := q.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]models.Review, 0)
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.UserID, &r.OrderID, &r.Rating, &r.Comment, &r.IsApproved,
			&r.CreatedAt, &r.UpdatedAt, &r.UserName); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reviews: %w", err)
	}
	return reviews, nil
}
