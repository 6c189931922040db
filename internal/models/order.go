package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus представляет статус заказа
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus статус оплаты, независимый от статуса заказа
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Order представляет заказ. Total = Subtotal - DiscountAmount.
type Order struct {
	ID             int64           `json:"id" db:"id"`
	OrderNumber    string          `json:"order_number" db:"order_number"`
	UserID         int64           `json:"user_id" db:"user_id"`
	Subtotal       decimal.Decimal `json:"subtotal" db:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	Total          decimal.Decimal `json:"total" db:"total"`
	Status         OrderStatus     `json:"status" db:"status"`
	PaymentStatus  PaymentStatus   `json:"payment_status" db:"payment_status"`
	CouponID       *int64          `json:"coupon_id,omitempty" db:"coupon_id"`
	Notes          *string         `json:"notes,omitempty" db:"notes"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
	User           *User           `json:"user,omitempty"`
	Items          []OrderItem     `json:"items"`
}

// OrderItem строка заказа. Price фиксирует цену на момент покупки.
type OrderItem struct {
	ID          int64           `json:"id" db:"id"`
	OrderID     int64           `json:"order_id" db:"order_id"`
	ProductID   int64           `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name"`
	ProductSlug string          `json:"product_slug"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"`
}

// Роли пользователей
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User покупатель или администратор
type User struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
	Role  string `json:"role,omitempty" db:"role"`
}

// CreateOrderRequest представляет запрос на создание заказа
type CreateOrderRequest struct {
	Items      []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
	CouponCode *string                  `json:"coupon_code,omitempty" validate:"omitempty,max=64"`
	Notes      *string                  `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// CreateOrderItemRequest позиция заказа
type CreateOrderItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// UpdateOrderStatusRequest представляет запрос на обновление статусов заказа
type UpdateOrderStatusRequest struct {
	Status        OrderStatus   `json:"status,omitempty" validate:"omitempty,oneof=pending processing completed cancelled"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty" validate:"omitempty,oneof=pending paid failed refunded"`
}
