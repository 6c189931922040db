package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/database"
	"storefront/internal/kafka"
	"storefront/internal/logger"
	"storefront/internal/models"
)

type reviewEventPublisher interface {
	PublishReviewApproved(review *models.Review) error
}

type catalogInvalidator interface {
	InvalidateCache(ctx context.Context) error
}

// ReviewService управляет отзывами и денормализованным рейтингом товаров
type ReviewService struct {
	db      *database.DB
	log     *logger.Logger
	events  reviewEventPublisher
	catalog catalogInvalidator
	now     func() time.Time
}

// NewReviewService создаёт сервис отзывов. producer и catalog могут быть nil.
func NewReviewService(db *database.DB, log *logger.Logger, producer *kafka.Producer, catalog *CatalogService) *ReviewService {
	s := &ReviewService{
		db:  db,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
	if producer != nil {
		s.events = producer
	}
	if catalog != nil {
		s.catalog = catalog
	}
	return s
}

// CreateReview сохраняет неодобренный отзыв на товар из заказа пользователя.
func (s *ReviewService) CreateReview(ctx context.Context, userID int64, productSlug string, req *models.CreateReviewRequest) (*models.Review, error) {
	comment := strings.TrimSpace(req.Comment)
	if req.Rating < 1 || req.Rating > 5 {
		return nil, apperror.Validation("rating must be between 1 and 5", nil)
	}
	if comment == "" {
		return nil, apperror.Validation("comment is required", nil)
	}
	if req.OrderID <= 0 {
		return nil, apperror.Validation("order_id must be positive", nil)
	}

	var productID int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM products WHERE slug = $1 AND is_active = TRUE", strings.TrimSpace(productSlug)).Scan(&productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("product not found", err)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	var purchased bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM orders o
			JOIN order_items oi ON oi.order_id = o.id
			WHERE o.id = $1 AND o.user_id = $2 AND oi.product_id = $3
		)
	`
	if err := s.db.QueryRowContext(ctx, query, req.OrderID, userID, productID).Scan(&purchased); err != nil {
		return nil, fmt.Errorf("failed to check order: %w", err)
	}
	if !purchased {
		return nil, apperror.Forbidden("order does not contain this product", nil)
	}

	now := s.now()
	review := &models.Review{
		ProductID: productID,
		UserID:    userID,
		OrderID:   req.OrderID,
		Rating:    req.Rating,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}

	insert := `
		INSERT INTO reviews (product_id, user_id, order_id, rating, comment, is_approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $6)
		RETURNING id
	`
	if err := s.db.QueryRowContext(ctx, insert, review.ProductID, review.UserID, review.OrderID, review.Rating, review.Comment, now).
		Scan(&review.ID); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperror.Conflict("product already reviewed for this order", err)
		}
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"review_id":  review.ID,
		"product_id": review.ProductID,
		"order_id":   review.OrderID,
	}).Info("Review created, awaiting approval")

	return review, nil
}

// ApproveReview одобряет отзыв. Рейтинг товара пересчитывается по событию review.approved,
// а без Kafka сразу.
func (s *ReviewService) ApproveReview(ctx context.Context, reviewID int64) (*models.Review, error) {
	review := &models.Review{ID: reviewID, IsApproved: true}
	query := `
		UPDATE reviews SET is_approved = TRUE, updated_at = $2
		WHERE id = $1
		RETURNING product_id, user_id, order_id, rating, comment, created_at, updated_at
	`
	if err := s.db.QueryRowContext(ctx, query, reviewID, s.now()).Scan(
		&review.ProductID, &review.UserID, &review.OrderID, &review.Rating, &review.Comment, &review.CreatedAt, &review.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("review not found", err)
		}
		return nil, fmt.Errorf("failed to approve review: %w", err)
	}

	if s.events == nil {
		if err := s.RefreshProductRating(ctx, review.ProductID); err != nil {
			return nil, err
		}
		return review, nil
	}

	if err := s.events.PublishReviewApproved(review); err != nil {
		s.log.WithError(err).WithField("review_id", review.ID).Warn("Failed to publish review.approved, refreshing rating inline")
		if err := s.RefreshProductRating(ctx, review.ProductID); err != nil {
			return nil, err
		}
	}
	return review, nil
}

// RefreshProductRating пересчитывает products.rating (одна цифра после запятой) и review_count
// по одобренным отзывам и сбрасывает кеш витрины.
func (s *ReviewService) RefreshProductRating(ctx context.Context, productID int64) error {
	query := `
		UPDATE products p
		SET rating = COALESCE(r.avg_rating, 0), review_count = r.cnt, updated_at = $2
		FROM (
			SELECT ROUND(AVG(rating)::numeric, 1) AS avg_rating, COUNT(*) AS cnt
			FROM reviews
			WHERE product_id = $1 AND is_approved = TRUE
		) r
		WHERE p.id = $1
	`
	result, err := s.db.ExecContext(ctx, query, productID, s.now())
	if err != nil {
		return fmt.Errorf("failed to refresh product rating: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("product not found", nil)
	}

	if s.catalog != nil {
		if err := s.catalog.InvalidateCache(ctx); err != nil {
			s.log.WithError(err).Warn("Failed to invalidate catalog cache")
		}
	}

	s.log.WithField("product_id", productID).Debug("Product rating refreshed")
	return nil
}

// HandleReviewApproved обработчик события review.approved для Kafka consumer.
func (s *ReviewService) HandleReviewApproved(ctx context.Context, event *models.Event) error {
	var data models.ReviewApprovedData
	if err := event.DecodeData(&data); err != nil {
		return fmt.Errorf("failed to decode review.approved: %w", err)
	}
	if data.ProductID <= 0 {
		return fmt.Errorf("review.approved event %s has no product_id", event.ID)
	}
	return s.RefreshProductRating(ctx, data.ProductID)
}
