package models

import "time"

// Review отзыв покупателя о товаре в рамках заказа.
// На витрине и в рейтинге учитываются только одобренные отзывы.
type Review struct {
	ID         int64     `json:"id" db:"id"`
	ProductID  int64     `json:"product_id" db:"product_id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	OrderID    int64     `json:"order_id" db:"order_id"`
	Rating     int       `json:"rating" db:"rating"`
	Comment    string    `json:"comment" db:"comment"`
	IsApproved bool      `json:"is_approved" db:"is_approved"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
	UserName   string    `json:"user_name,omitempty"`
}

// CreateReviewRequest представляет запрос на создание отзыва
type CreateReviewRequest struct {
	OrderID int64  `json:"order_id" validate:"required,gt=0"`
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"required,max=2000"`
}
