package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/kafka"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const orderSelect = `
	SELECT o.id, o.order_number, o.user_id, o.subtotal, o.discount_amount, o.total, o.status, o.payment_status,
	       o.coupon_id, o.notes, o.created_at, o.updated_at, u.name, u.email
	FROM orders o
	JOIN users u ON u.id = o.user_id`

type orderEventPublisher interface {
	PublishOrderCreated(order *models.Order) error
	PublishOrderStatusChanged(before, after *models.Order) error
	PublishCouponRedeemed(coupon *models.Coupon, orderNumber string, discount decimal.Decimal) error
}

// OrderService представляет сервис для работы с заказами
type OrderService struct {
	db             *database.DB
	log            *logger.Logger
	coupons        *CouponService
	events         orderEventPublisher
	maxAttempts    int
	maxQuantity    int
	now            func() time.Time
	newOrderNumber func() string
}

// NewOrderService создает новый экземпляр сервиса заказов. producer может быть nil.
func NewOrderService(db *database.DB, log *logger.Logger, coupons *CouponService, producer *kafka.Producer, cfg *config.CatalogConfig) *OrderService {
	s := &OrderService{
		db:             db,
		log:            log,
		coupons:        coupons,
		maxAttempts:    5,
		maxQuantity:    100,
		now:            func() time.Time { return time.Now().UTC() },
		newOrderNumber: generateOrderNumber,
	}
	if producer != nil {
		s.events = producer
	}
	if cfg != nil {
		if cfg.OrderNumberAttempts > 0 {
			s.maxAttempts = cfg.OrderNumberAttempts
		}
		if cfg.MaxOrderItemQuantity > 0 {
			s.maxQuantity = cfg.MaxOrderItemQuantity
		}
	}
	return s
}

// generateOrderNumber возвращает "ORD-" и 13 случайных шестнадцатеричных символов.
func generateOrderNumber() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(hex[len(hex)-13:])
}

type orderLine struct {
	productID int64
	quantity  int
}

// CreateOrder создает заказ по текущим ценам товаров и применяет купон в той же транзакции.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, req *models.CreateOrderRequest) (*models.Order, error) {
	lines, err := s.normalizeLines(req.Items)
	if err != nil {
		return nil, err
	}

	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	products, err := s.loadOrderableProducts(ctx, tx, lines)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		p := products[line.productID]
		price := p.EffectivePrice()
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(line.quantity))))
		items = append(items, models.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			ProductSlug: p.Slug,
			Quantity:    line.quantity,
			Price:       price,
		})
	}

	var (
		coupon   *models.Coupon
		discount = decimal.Zero
	)
	if req.CouponCode != nil && strings.TrimSpace(*req.CouponCode) != "" {
		if s.coupons == nil {
			return nil, apperror.Validation("coupons are not supported", nil)
		}
		coupon, discount, err = s.coupons.RedeemWithTx(ctx, tx, *req.CouponCode, subtotal, now)
		if err != nil {
			return nil, err
		}
	}

	orderNumber, err := s.reserveOrderNumber(ctx, tx)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderNumber:    orderNumber,
		UserID:         userID,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		Total:          subtotal.Sub(discount),
		Status:         models.OrderStatusPending,
		PaymentStatus:  models.PaymentStatusPending,
		Notes:          req.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if coupon != nil {
		order.CouponID = &coupon.ID
	}

	query := `
		INSERT INTO orders (order_number, user_id, subtotal, discount_amount, total, status, payment_status, coupon_id, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, query, order.OrderNumber, order.UserID, order.Subtotal, order.DiscountAmount, order.Total,
		order.Status, order.PaymentStatus, order.CouponID, order.Notes, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperror.Conflict("order number collision, retry the request", err)
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, quantity, price, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	for i := range items {
		items[i].OrderID = order.ID
		if err := tx.QueryRowContext(ctx, itemQuery, order.ID, items[i].ProductID, items[i].Quantity, items[i].Price, now).
			Scan(&items[i].ID); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
	}
	order.Items = items

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.OrdersCreated.Inc()
	s.log.WithFields(map[string]interface{}{
		"order_number": order.OrderNumber,
		"user_id":      order.UserID,
		"total":        order.Total.StringFixed(2),
	}).Info("Order created successfully")

	s.publishCreated(order, coupon)
	return order, nil
}

func (s *OrderService) normalizeLines(items []models.CreateOrderItemRequest) ([]orderLine, error) {
	if len(items) == 0 {
		return nil, apperror.Validation("order must contain at least one item", nil)
	}

	quantities := make(map[int64]int, len(items))
	for _, item := range items {
		if item.ProductID <= 0 {
			return nil, apperror.Validation("product_id must be positive", nil)
		}
		if item.Quantity <= 0 {
			return nil, apperror.Validation("quantity must be positive", nil)
		}
		quantities[item.ProductID] += item.Quantity
		if quantities[item.ProductID] > s.maxQuantity {
			return nil, apperror.Validation(fmt.Sprintf("quantity must not exceed %d", s.maxQuantity), nil)
		}
	}

	lines := make([]orderLine, 0, len(quantities))
	for id, qty := range quantities {
		lines = append(lines, orderLine{productID: id, quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].productID < lines[j].productID })
	return lines, nil
}

func (s *OrderService) loadOrderableProducts(ctx context.Context, tx *sql.Tx, lines []orderLine) (map[int64]*models.Product, error) {
	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.productID
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, slug, price, sale_price
		FROM products
		WHERE id = ANY($1) AND is_active = TRUE
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]*models.Product, len(ids))
	for rows.Next() {
		p := &models.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Price, &p.SalePrice); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return nil, apperror.Validation(fmt.Sprintf("product %d is not available", id), nil)
		}
	}
	return products, nil
}

func (s *OrderService) reserveOrderNumber(ctx context.Context, tx *sql.Tx) (string, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		number := s.newOrderNumber()
		var exists bool
		if err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM orders WHERE order_number = $1)", number).Scan(&exists); err != nil {
			return "", fmt.Errorf("failed to check order number: %w", err)
		}
		if !exists {
			return number, nil
		}
		s.log.WithField("order_number", number).Warn("Order number collision")
	}
	return "", fmt.Errorf("failed to generate unique order number after %d attempts", s.maxAttempts)
}

func (s *OrderService) publishCreated(order *models.Order, coupon *models.Coupon) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderCreated(order); err != nil {
		s.log.WithError(err).WithField("order_number", order.OrderNumber).Warn("Failed to publish order.created")
	}
	if coupon != nil {
		if err := s.events.PublishCouponRedeemed(coupon, order.OrderNumber, order.DiscountAmount); err != nil {
			s.log.WithError(err).WithField("coupon_code", coupon.Code).Warn("Failed to publish coupon.redeemed")
		}
	}
}

// GetOrder получает заказ по номеру вместе с позициями
func (s *OrderService) GetOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	orders, err := queryOrders(ctx, s.db, orderSelect+`
	WHERE o.order_number = $1`, strings.TrimSpace(orderNumber))
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, apperror.NotFound("order not found", nil)
	}
	return &orders[0], nil
}

// ListUserOrders возвращает заказы пользователя, новые первыми
func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return queryOrders(ctx, s.db, orderSelect+`
	WHERE o.user_id = $1
	ORDER BY o.created_at DESC, o.id DESC
	LIMIT $2 OFFSET $3`, userID, limit, offset)
}

// UpdateOrderStatus меняет статус заказа и/или статус оплаты.
// Использование купона при отмене не возвращается.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderNumber string, req *models.UpdateOrderStatusRequest) (*models.Order, error) {
	if req.Status == "" && req.PaymentStatus == "" {
		return nil, apperror.Validation("status or payment_status is required", nil)
	}
	if req.Status != "" && !validOrderStatus(req.Status) {
		return nil, apperror.Validation("invalid status", nil)
	}
	if req.PaymentStatus != "" && !validPaymentStatus(req.PaymentStatus) {
		return nil, apperror.Validation("invalid payment_status", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	before := &models.Order{OrderNumber: strings.TrimSpace(orderNumber)}
	if err := tx.QueryRowContext(ctx,
		"SELECT id, status, payment_status FROM orders WHERE order_number = $1 FOR UPDATE", before.OrderNumber,
	).Scan(&before.ID, &before.Status, &before.PaymentStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("order not found", err)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	after := *before
	if req.Status != "" {
		after.Status = req.Status
	}
	if req.PaymentStatus != "" {
		after.PaymentStatus = req.PaymentStatus
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, payment_status = $2, updated_at = $3 WHERE id = $4",
		after.Status, after.PaymentStatus, s.now(), before.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"order_number":   after.OrderNumber,
		"status":         after.Status,
		"payment_status": after.PaymentStatus,
	}).Info("Order status updated")

	if s.events != nil {
		if err := s.events.PublishOrderStatusChanged(before, &after); err != nil {
			s.log.WithError(err).WithField("order_number", after.OrderNumber).Warn("Failed to publish order.status_changed")
		}
	}

	return s.GetOrder(ctx, orderNumber)
}

func validOrderStatus(status models.OrderStatus) bool {
	switch status {
	case models.OrderStatusPending, models.OrderStatusProcessing, models.OrderStatusCompleted, models.OrderStatusCancelled:
		return true
	}
	return false
}

func validPaymentStatus(status models.PaymentStatus) bool {
	switch status {
	case models.PaymentStatusPending, models.PaymentStatusPaid, models.PaymentStatusFailed, models.PaymentStatusRefunded:
		return true
	}
	return false
}

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	var (
		couponID sql.NullInt64
		notes    sql.NullString
		user     models.User
	)
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Subtotal, &o.DiscountAmount, &o.Total, &o.Status, &o.PaymentStatus,
		&couponID, &notes, &o.CreatedAt, &o.UpdatedAt, &user.Name, &user.Email); err != nil {
		return nil, err
	}
	if couponID.Valid {
		o.CouponID = &couponID.Int64
	}
	if notes.Valid {
		o.Notes = &notes.String
	}
	user.ID = o.UserID
	o.User = &user
	return o, nil
}

// queryOrders читает заказы с покупателем и подгружает позиции одним запросом.
func queryOrders(ctx context.Context, q queryer, query string, args ...interface{}) ([]models.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	orders := make([]models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Items = make([]models.OrderItem, 0)
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	rows.Close()

	if err := attachOrderItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func attachOrderItems(ctx context.Context, q queryer, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := q.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price, p.name, p.slug
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price, &item.ProductName, &item.ProductSlug); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate order items: %w", err)
	}
	return nil
}
