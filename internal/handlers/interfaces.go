package handlers

import (
	"context"
	"time"

	"storefront/internal/models"
	"storefront/internal/services"

	"github.com/shopspring/decimal"
)

// ----- Catalog -----

type CatalogProvider interface {
	ListProducts(ctx context.Context, filter models.ProductFilter) (*models.ProductListing, error)
	ListCategoriesWithCounts(ctx context.Context) ([]models.Category, error)
	GetProductDetail(ctx context.Context, slug string) (*models.ProductDetail, error)
	GetHomePage(ctx context.Context) (*models.HomePage, error)
}

// ----- Coupons -----

type CouponManager interface {
	EvaluateCoupon(ctx context.Context, code string, subtotal decimal.Decimal, now time.Time) (*models.CouponEvaluation, error)
	FindCoupon(ctx context.Context, code string) (*models.Coupon, error)
	CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, error)
	UpdateCoupon(ctx context.Context, code string, req *models.UpdateCouponRequest) (*models.Coupon, error)
	DeleteCoupon(ctx context.Context, code string) error
	ListCoupons(ctx context.Context, limit, offset int) ([]*models.Coupon, error)
}

// ----- Orders -----

type OrderManager interface {
	CreateOrder(ctx context.Context, userID int64, req *models.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderNumber string) (*models.Order, error)
	ListUserOrders(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderNumber string, req *models.UpdateOrderStatusRequest) (*models.Order, error)
}

// ----- Reviews -----

type ReviewManager interface {
	CreateReview(ctx context.Context, userID int64, productSlug string, req *models.CreateReviewRequest) (*models.Review, error)
	ApproveReview(ctx context.Context, reviewID int64) (*models.Review, error)
}

// ----- Dashboard -----

type DashboardProvider interface {
	GetDashboardSummary(ctx context.Context, now time.Time) (*models.DashboardSummary, error)
}

// ----- Rate limit -----

// MiddlewareLimiter описывает контракт для rate limiter.
type MiddlewareLimiter interface {
	Allow(ctx context.Context, client string) (*services.RateLimitDecision, error)
	Enabled() bool
}

// RateLimitStatusProvider расширяет интерфейс для эндпоинта статуса.
type RateLimitStatusProvider interface {
	MiddlewareLimiter
	Usage(ctx context.Context, client string) (*services.RateLimitDecision, error)
}

// ----- Health -----

type DBHealth interface {
	Health() error
}

type RedisHealth interface {
	Health(ctx context.Context) error
}
