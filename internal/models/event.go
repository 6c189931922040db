package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType тип доменного события
type EventType string

const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeCouponRedeemed     EventType = "coupon.redeemed"
	EventTypeReviewApproved     EventType = "review.approved"
)

// Event конверт события в Kafka
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      EventType       `json:"type"`
	Source    string          `json:"source,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// DecodeData разбирает полезную нагрузку события
func (e *Event) DecodeData(dest interface{}) error {
	return json.Unmarshal(e.Data, dest)
}

// OrderCreatedData данные события order.created
type OrderCreatedData struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	Total       decimal.Decimal `json:"total"`
	CouponID    *int64          `json:"coupon_id,omitempty"`
}

// OrderStatusChangedData данные события order.status_changed
type OrderStatusChangedData struct {
	OrderNumber      string        `json:"order_number"`
	OldStatus        OrderStatus   `json:"old_status"`
	NewStatus        OrderStatus   `json:"new_status"`
	OldPaymentStatus PaymentStatus `json:"old_payment_status"`
	NewPaymentStatus PaymentStatus `json:"new_payment_status"`
}

// CouponRedeemedData данные события coupon.redeemed
type CouponRedeemedData struct {
	CouponID    int64           `json:"coupon_id"`
	Code        string          `json:"code"`
	OrderNumber string          `json:"order_number"`
	Discount    decimal.Decimal `json:"discount"`
}

// ReviewApprovedData данные события review.approved
type ReviewApprovedData struct {
	ReviewID  int64 `json:"review_id"`
	ProductID int64 `json:"product_id"`
}
