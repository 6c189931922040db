package handlers

import (
	"net/http"
	"time"

	"storefront/internal/logger"
	"storefront/internal/models"

	"github.com/go-chi/chi/v5"
)

// CouponHandler проверка купонов и админский CRUD.
type CouponHandler struct {
	coupons CouponManager
	log     *logger.Logger
	now     func() time.Time
}

// NewCouponHandler создаёт новый обработчик купонов.
func NewCouponHandler(coupons CouponManager, log *logger.Logger) *CouponHandler {
	return &CouponHandler{
		coupons: coupons,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate считает скидку купона для суммы. Непригодный купон это 200 с usable=false.
func (h *CouponHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req models.EvaluateCouponRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	result, err := h.coupons.EvaluateCoupon(r.Context(), req.Code, req.Subtotal, h.now())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to evaluate coupon")
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

// CreateCoupon создаёт купон.
func (h *CouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCouponRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	coupon, err := h.coupons.CreateCoupon(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create coupon")
		return
	}
	writeJSONResponse(w, http.StatusCreated, coupon)
}

// GetCoupon возвращает купон по коду.
func (h *CouponHandler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	coupon, err := h.coupons.FindCoupon(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get coupon")
		return
	}
	writeJSONResponse(w, http.StatusOK, coupon)
}

// UpdateCoupon обновляет купон.
func (h *CouponHandler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateCouponRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	coupon, err := h.coupons.UpdateCoupon(r.Context(), chi.URLParam(r, "code"), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update coupon")
		return
	}
	writeJSONResponse(w, http.StatusOK, coupon)
}

// DeleteCoupon удаляет купон. Заказы сохраняют coupon_id как слабую ссылку.
func (h *CouponHandler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.DeleteCoupon(r.Context(), chi.URLParam(r, "code")); err != nil {
		writeServiceError(w, h.log, err, "Failed to delete coupon")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCoupons возвращает купоны с пагинацией limit/offset.
func (h *CouponHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	coupons, err := h.coupons.ListCoupons(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list coupons")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"coupons": coupons,
		"limit":   limit,
		"offset":  offset,
	})
}
