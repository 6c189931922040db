package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CouponType описывает способ расчёта скидки.
type CouponType string

const (
	CouponTypePercentage CouponType = "percentage"
	CouponTypeFixed      CouponType = "fixed"
)

// Причины, по которым купон не даёт скидку.
const (
	CouponReasonInactive           = "inactive"
	CouponReasonNotStarted         = "not_started"
	CouponReasonExpired            = "expired"
	CouponReasonUsageLimitReached  = "usage_limit_reached"
	CouponReasonBelowMinimumAmount = "below_minimum_amount"
)

// Coupon представляет купон на скидку.
type Coupon struct {
	ID            int64               `json:"id" db:"id"`
	Code          string              `json:"code" db:"code"`
	Name          string              `json:"name" db:"name"`
	Description   *string             `json:"description,omitempty" db:"description"`
	Type          CouponType          `json:"type" db:"type"`
	Value         decimal.Decimal     `json:"value" db:"value"`
	MinimumAmount decimal.NullDecimal `json:"minimum_amount" db:"minimum_amount"`
	UsageLimit    *int                `json:"usage_limit,omitempty" db:"usage_limit"`
	UsedCount     int                 `json:"used_count" db:"used_count"`
	StartsAt      time.Time           `json:"starts_at" db:"starts_at"`
	ExpiresAt     time.Time           `json:"expires_at" db:"expires_at"`
	IsActive      bool                `json:"is_active" db:"is_active"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" db:"updated_at"`
}

// CreateCouponRequest описывает запрос администратора на создание купона.
type CreateCouponRequest struct {
	Code          string           `json:"code" validate:"required,max=64"`
	Name          string           `json:"name" validate:"max=255"`
	Description   *string          `json:"description,omitempty"`
	Type          CouponType       `json:"type" validate:"required,oneof=percentage fixed"`
	Value         decimal.Decimal  `json:"value"`
	MinimumAmount *decimal.Decimal `json:"minimum_amount,omitempty"`
	UsageLimit    *int             `json:"usage_limit,omitempty" validate:"omitempty,min=0"`
	StartsAt      time.Time        `json:"starts_at" validate:"required"`
	ExpiresAt     time.Time        `json:"expires_at" validate:"required,gtfield=StartsAt"`
	IsActive      bool             `json:"is_active"`
}

// UpdateCouponRequest описывает запрос на изменение купона. Код не меняется.
type UpdateCouponRequest struct {
	Name          string           `json:"name" validate:"max=255"`
	Description   *string          `json:"description,omitempty"`
	Type          CouponType       `json:"type" validate:"required,oneof=percentage fixed"`
	Value         decimal.Decimal  `json:"value"`
	MinimumAmount *decimal.Decimal `json:"minimum_amount,omitempty"`
	UsageLimit    *int             `json:"usage_limit,omitempty" validate:"omitempty,min=0"`
	StartsAt      time.Time        `json:"starts_at" validate:"required"`
	ExpiresAt     time.Time        `json:"expires_at" validate:"required,gtfield=StartsAt"`
	IsActive      bool             `json:"is_active"`
}

// EvaluateCouponRequest описывает проверку купона для суммы корзины.
type EvaluateCouponRequest struct {
	Code     string          `json:"code" validate:"required,max=64"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// CouponEvaluation результат проверки купона.
type CouponEvaluation struct {
	Code     string          `json:"code"`
	Usable   bool            `json:"usable"`
	Discount decimal.Decimal `json:"discount"`
	Reason   string          `json:"reason,omitempty"`
}
