package services

import (
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// IsUsable сообщает, можно ли применить купон в момент now.
// Окно действия полуоткрытое: [StartsAt, ExpiresAt).
func IsUsable(coupon *models.Coupon, now time.Time) bool {
	return UsabilityReason(coupon, now) == ""
}

// UsabilityReason возвращает первое нарушенное правило или пустую строку.
func UsabilityReason(coupon *models.Coupon, now time.Time) string {
	switch {
	case !coupon.IsActive:
		return models.CouponReasonInactive
	case now.Before(coupon.StartsAt):
		return models.CouponReasonNotStarted
	case !now.Before(coupon.ExpiresAt):
		return models.CouponReasonExpired
	case coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit:
		return models.CouponReasonUsageLimitReached
	}
	return ""
}

// CalculateDiscount считает скидку для суммы subtotal с точностью до копеек.
// Скидка никогда не превышает subtotal.
func CalculateDiscount(coupon *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() || coupon.Value.IsNegative() {
		return decimal.Zero
	}
	if belowMinimumAmount(coupon, subtotal) {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch coupon.Type {
	case models.CouponTypePercentage:
		discount = subtotal.Mul(coupon.Value).Div(hundred)
	case models.CouponTypeFixed:
		discount = coupon.Value
	default:
		return decimal.Zero
	}

	discount = discount.Round(2)
	if discount.GreaterThan(subtotal) {
		return subtotal
	}
	return discount
}

// belowMinimumAmount: нулевой или отрицательный минимум считается незаданным.
func belowMinimumAmount(coupon *models.Coupon, subtotal decimal.Decimal) bool {
	if !coupon.MinimumAmount.Valid || !coupon.MinimumAmount.Decimal.IsPositive() {
		return false
	}
	return subtotal.LessThan(coupon.MinimumAmount.Decimal)
}

// evaluateCoupon собирает результат проверки купона для одного момента времени.
func evaluateCoupon(coupon *models.Coupon, subtotal decimal.Decimal, now time.Time) *models.CouponEvaluation {
	result := &models.CouponEvaluation{Code: coupon.Code, Discount: decimal.Zero}

	if reason := UsabilityReason(coupon, now); reason != "" {
		result.Reason = reason
		return result
	}

	result.Usable = true
	if belowMinimumAmount(coupon, subtotal) {
		result.Reason = models.CouponReasonBelowMinimumAmount
		return result
	}

	result.Discount = CalculateDiscount(coupon, subtotal)
	return result
}
