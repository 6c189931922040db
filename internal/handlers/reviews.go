package handlers

import (
	"net/http"

	"storefront/internal/logger"
	"storefront/internal/models"

	"github.com/go-chi/chi/v5"
)

// ReviewHandler отзывы покупателей и их модерация
type ReviewHandler struct {
	reviews ReviewManager
	log     *logger.Logger
}

// NewReviewHandler создает обработчик отзывов
func NewReviewHandler(reviews ReviewManager, log *logger.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, log: log}
}

// CreateReview оставляет отзыв на товар из своего заказа
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req models.CreateReviewRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	review, err := h.reviews.CreateReview(r.Context(), principal.UserID, chi.URLParam(r, "slug"), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to create review")
		return
	}
	writeJSONResponse(w, http.StatusCreated, review)
}

// ApproveReview одобряет отзыв (админ)
func (h *ReviewHandler) ApproveReview(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid review ID")
		return
	}

	review, err := h.reviews.ApproveReview(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to approve review")
		return
	}
	writeJSONResponse(w, http.StatusOK, review)
}
