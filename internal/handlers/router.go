package handlers

import (
	"net/http"

	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps собранные обработчики и middleware для маршрутизатора
type RouterDeps struct {
	Catalog   *CatalogHandler
	Coupons   *CouponHandler
	Orders    *OrderHandler
	Reviews   *ReviewHandler
	Dashboard *DashboardHandler
	Health    *HealthHandler
	RateLimit *RateLimitHandler
	Limiter   MiddlewareLimiter
	Tokens    TokenValidator
	AdminRole string
	Log       *logger.Logger
}

// NewRouter настраивает маршруты HTTP сервера
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(requestLogger(d.Log))
	r.Use(corsMiddleware)

	r.Get("/health", d.Health.Health)
	r.Get("/health/readiness", d.Health.Readiness)
	r.Get("/health/liveness", d.Health.Liveness)
	r.Get("/health-check", d.Health.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	adminRole := d.AdminRole
	if adminRole == "" {
		adminRole = models.RoleAdmin
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimitMiddleware(d.Limiter, d.Log))

		r.Get("/home", d.Catalog.Home)
		r.Get("/shop", d.Catalog.ListProducts)
		r.Get("/shop/products/{slug}", d.Catalog.ProductDetail)
		r.Get("/categories", d.Catalog.Categories)
		r.Post("/coupons/evaluate", d.Coupons.Evaluate)
		r.Get("/rate-limit/status", d.RateLimit.Status)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(d.Tokens, d.Log))

			r.Post("/orders", d.Orders.CreateOrder)
			r.Get("/orders", d.Orders.ListOrders)
			r.Get("/orders/{number}", d.Orders.GetOrder)
			r.Post("/shop/products/{slug}/reviews", d.Reviews.CreateReview)

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(adminRole))

				r.Get("/dashboard", d.Dashboard.Summary)

				r.Get("/coupons", d.Coupons.ListCoupons)
				r.Post("/coupons", d.Coupons.CreateCoupon)
				r.Get("/coupons/{code}", d.Coupons.GetCoupon)
				r.Put("/coupons/{code}", d.Coupons.UpdateCoupon)
				r.Delete("/coupons/{code}", d.Coupons.DeleteCoupon)

				r.Put("/orders/{number}/status", d.Orders.UpdateOrderStatus)
				r.Post("/reviews/{id}/approve", d.Reviews.ApproveReview)
			})
		})
	})

	return r
}
