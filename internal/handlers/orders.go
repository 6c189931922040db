package handlers

import (
	"net/http"

	"storefront/internal/logger"
	"storefront/internal/models"

	"github.com/go-chi/chi/v5"
)

// OrderHandler представляет обработчик для работы с заказами
type OrderHandler struct {
	orders    OrderManager
	adminRole string
	log       *logger.Logger
}

// NewOrderHandler создает новый обработчик заказов
func NewOrderHandler(orders OrderManager, adminRole string, log *logger.Logger) *OrderHandler {
	if adminRole == "" {
		adminRole = models.RoleAdmin
	}
	return &OrderHandler{orders: orders, adminRole: adminRole, log: log}
}

// CreateOrder оформляет заказ текущего пользователя
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req models.CreateOrderRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), principal.UserID, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create order")
		return
	}
	writeJSONResponse(w, http.StatusCreated, order)
}

// ListOrders возвращает заказы текущего пользователя
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	orders, err := h.orders.ListUserOrders(r.Context(), principal.UserID, limit, offset)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get orders")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"limit":  limit,
		"offset": offset,
	})
}

// GetOrder возвращает заказ владельцу или администратору. Чужой заказ выглядит как несуществующий.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get order")
		return
	}
	if order.UserID != principal.UserID && principal.Role != h.adminRole {
		writeErrorResponse(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSONResponse(w, http.StatusOK, order)
}

// UpdateOrderStatus меняет статус заказа и статус оплаты (админ)
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateOrderStatusRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	order, err := h.orders.UpdateOrderStatus(r.Context(), chi.URLParam(r, "number"), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update order status")
		return
	}
	writeJSONResponse(w, http.StatusOK, order)
}
