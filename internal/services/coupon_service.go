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
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

const maxCouponCodeLength = 64

const couponColumns = `id, code, name, description, type, value, minimum_amount, usage_limit, used_count,
		starts_at, expires_at, is_active, created_at, updated_at`

// CouponService хранит купоны и применяет их к заказам.
type CouponService struct {
	db  *database.DB
	log *logger.Logger
}

// NewCouponService создаёт сервис купонов.
func NewCouponService(db *database.DB, log *logger.Logger) *CouponService {
	return &CouponService{
		db:  db,
		log: log,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCoupon(row rowScanner) (*models.Coupon, error) {
	c := &models.Coupon{}
	var (
		description sql.NullString
		usageLimit  sql.NullInt64
	)
	if err := row.Scan(
		&c.ID, &c.Code, &c.Name, &description, &c.Type, &c.Value, &c.MinimumAmount, &usageLimit, &c.UsedCount,
		&c.StartsAt, &c.ExpiresAt, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if description.Valid {
		c.Description = &description.String
	}
	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		c.UsageLimit = &limit
	}
	return c, nil
}

// NormalizeCouponCode приводит код к каноническому виду.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// FindCoupon возвращает купон по коду.
func (s *CouponService) FindCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	coupon, err := scanCoupon(s.db.QueryRowContext(ctx, query, NormalizeCouponCode(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("coupon not found", err)
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return coupon, nil
}

// EvaluateCoupon проверяет купон для суммы subtotal без изменения состояния.
// Правила бизнеса не дают ошибок: неприменимый купон возвращается с причиной.
func (s *CouponService) EvaluateCoupon(ctx context.Context, code string, subtotal decimal.Decimal, now time.Time) (*models.CouponEvaluation, error) {
	if subtotal.IsNegative() {
		return nil, apperror.Validation("subtotal must be non-negative", nil)
	}

	coupon, err := s.FindCoupon(ctx, code)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			metrics.CouponEvaluations.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}

	result := evaluateCoupon(coupon, subtotal, now)
	metrics.CouponEvaluations.WithLabelValues(evaluationLabel(result)).Inc()

	s.log.WithFields(map[string]interface{}{
		"coupon_code": coupon.Code,
		"usable":      result.Usable,
		"discount":    result.Discount.StringFixed(2),
		"reason":      result.Reason,
	}).Debug("Coupon evaluated")

	return result, nil
}

func evaluationLabel(result *models.CouponEvaluation) string {
	if result.Reason != "" {
		return result.Reason
	}
	return "applied"
}

// RedeemWithTx применяет купон внутри транзакции заказа и списывает одно использование.
// Купон ниже минимальной суммы всё равно привязывается к заказу с нулевой скидкой.
func (s *CouponService) RedeemWithTx(ctx context.Context, tx *sql.Tx, code string, subtotal decimal.Decimal, now time.Time) (*models.Coupon, decimal.Decimal, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	coupon, err := scanCoupon(tx.QueryRowContext(ctx, query, NormalizeCouponCode(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.CouponRedemptions.WithLabelValues("not_found").Inc()
			return nil, decimal.Zero, apperror.NotFound("coupon not found", err)
		}
		return nil, decimal.Zero, fmt.Errorf("failed to get coupon: %w", err)
	}

	result := evaluateCoupon(coupon, subtotal, now)
	if !result.Usable {
		metrics.CouponRedemptions.WithLabelValues("rejected").Inc()
		return nil, decimal.Zero, apperror.Validation("coupon is not usable: "+result.Reason, nil)
	}

	ok, err := s.IncrementUsageWithTx(ctx, tx, coupon.ID, now)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if !ok {
		metrics.CouponRedemptions.WithLabelValues("conflict").Inc()
		return nil, decimal.Zero, apperror.Conflict("coupon usage limit reached", nil)
	}

	coupon.UsedCount++
	metrics.CouponRedemptions.WithLabelValues("success").Inc()
	return coupon, result.Discount, nil
}

// IncrementUsageWithTx атомарно увеличивает used_count, если лимит ещё не исчерпан.
// false означает, что конкурентный заказ успел израсходовать лимит.
func (s *CouponService) IncrementUsageWithTx(ctx context.Context, tx *sql.Tx, couponID int64, now time.Time) (bool, error) {
	query := `
		UPDATE coupons
		SET used_count = used_count + 1, updated_at = $2
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
	`

	result, err := tx.ExecContext(ctx, query, couponID, now)
	if err != nil {
		return false, fmt.Errorf("failed to increment coupon usage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// CreateCoupon создаёт новый купон.
func (s *CouponService) CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, error) {
	code := NormalizeCouponCode(req.Code)
	if code == "" || len(code) > maxCouponCodeLength {
		return nil, apperror.Validation("code must be between 1 and 64 characters", nil)
	}
	if err := validateCouponPayload(req.Type, req.Value, req.MinimumAmount, req.UsageLimit, req.StartsAt, req.ExpiresAt); err != nil {
		return nil, apperror.Validation(err.Error(), err)
	}

	now := time.Now().UTC()
	coupon := &models.Coupon{
		Code:          code,
		Name:          req.Name,
		Description:   req.Description,
		Type:          req.Type,
		Value:         req.Value,
		MinimumAmount: nullDecimal(req.MinimumAmount),
		UsageLimit:    req.UsageLimit,
		StartsAt:      req.StartsAt,
		ExpiresAt:     req.ExpiresAt,
		IsActive:      req.IsActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	query := `
		INSERT INTO coupons (code, name, description, type, value, minimum_amount, usage_limit, used_count, starts_at, expires_at, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11, $12)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query, coupon.Code, coupon.Name, coupon.Description, coupon.Type, coupon.Value,
		coupon.MinimumAmount, coupon.UsageLimit, coupon.StartsAt, coupon.ExpiresAt, coupon.IsActive, coupon.CreatedAt, coupon.UpdatedAt,
	).Scan(&coupon.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperror.Conflict("coupon code already exists", err)
		}
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}

	s.log.WithField("coupon_code", coupon.Code).Info("Coupon created")
	return coupon, nil
}

// UpdateCoupon обновляет параметры купона. used_count не изменяется,
// поэтому usage_limit нельзя опустить ниже уже сделанных погашений.
func (s *CouponService) UpdateCoupon(ctx context.Context, code string, req *models.UpdateCouponRequest) (*models.Coupon, error) {
	if err := validateCouponPayload(req.Type, req.Value, req.MinimumAmount, req.UsageLimit, req.StartsAt, req.ExpiresAt); err != nil {
		return nil, apperror.Validation(err.Error(), err)
	}

	query := `
		UPDATE coupons
		SET name = $1, description = $2, type = $3, value = $4, minimum_amount = $5, usage_limit = $6,
		    starts_at = $7, expires_at = $8, is_active = $9, updated_at = $10
		WHERE code = $11 AND ($6::int IS NULL OR used_count <= $6::int)
	`

	result, err := s.db.ExecContext(ctx, query, req.Name, req.Description, req.Type, req.Value, nullDecimal(req.MinimumAmount),
		req.UsageLimit, req.StartsAt, req.ExpiresAt, req.IsActive, time.Now().UTC(), NormalizeCouponCode(code))
	if err != nil {
		return nil, fmt.Errorf("failed to update coupon: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, s.explainSkippedUpdate(ctx, code, req.UsageLimit)
	}

	s.log.WithField("coupon_code", NormalizeCouponCode(code)).Info("Coupon updated")
	return s.FindCoupon(ctx, code)
}

// explainSkippedUpdate отличает отсутствующий купон от лимита ниже used_count.
func (s *CouponService) explainSkippedUpdate(ctx context.Context, code string, usageLimit *int) error {
	var used int
	err := s.db.QueryRowContext(ctx, "SELECT used_count FROM coupons WHERE code = $1", NormalizeCouponCode(code)).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("coupon not found", nil)
	}
	if err != nil {
		return fmt.Errorf("failed to load coupon usage: %w", err)
	}
	if usageLimit != nil && *usageLimit < used {
		return apperror.Validation(fmt.Sprintf("usage_limit %d is below used_count %d", *usageLimit, used), nil)
	}
	return apperror.Conflict("coupon changed concurrently, retry the update", nil)
}

// DeleteCoupon удаляет купон. Заказы сохраняют историю: coupon_id обнуляется.
func (s *CouponService) DeleteCoupon(ctx context.Context, code string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM coupons WHERE code = $1", NormalizeCouponCode(code))
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("coupon not found", nil)
	}
	return nil
}

// ListCoupons возвращает купоны, новые первыми.
func (s *CouponService) ListCoupons(ctx context.Context, limit, offset int) ([]*models.Coupon, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer rows.Close()

	coupons := make([]*models.Coupon, 0)
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan coupon: %w", err)
		}
		coupons = append(coupons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate coupons: %w", err)
	}

	return coupons, nil
}

func validateCouponPayload(couponType models.CouponType, value decimal.Decimal, minimum *decimal.Decimal, usageLimit *int, startsAt, expiresAt time.Time) error {
	switch couponType {
	case models.CouponTypeFixed:
		if value.IsNegative() {
			return fmt.Errorf("value must be non-negative for fixed coupon")
		}
	case models.CouponTypePercentage:
		if value.IsNegative() || value.GreaterThan(hundred) {
			return fmt.Errorf("percentage value must be between 0 and 100")
		}
	default:
		return fmt.Errorf("invalid coupon type")
	}
	if minimum != nil && minimum.IsNegative() {
		return fmt.Errorf("minimum_amount must be non-negative")
	}
	if usageLimit != nil && *usageLimit < 0 {
		return fmt.Errorf("usage_limit must be non-negative")
	}
	if startsAt.IsZero() || expiresAt.IsZero() {
		return fmt.Errorf("starts_at and expires_at are required")
	}
	if !startsAt.Before(expiresAt) {
		return fmt.Errorf("starts_at must be before expires_at")
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
