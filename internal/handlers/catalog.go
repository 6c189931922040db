package handlers

import (
	"net/http"

	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/services"

	"github.com/go-chi/chi/v5"
)

// CatalogHandler обслуживает витрину: главную, каталог, карточку товара, категории.
type CatalogHandler struct {
	catalog CatalogProvider
	log     *logger.Logger
}

// NewCatalogHandler создает новый обработчик витрины
func NewCatalogHandler(catalog CatalogProvider, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, log: log}
}

// Home возвращает главную страницу
func (h *CatalogHandler) Home(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.GetHomePage(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to load home page")
		return
	}
	writeJSONResponse(w, http.StatusOK, page)
}

// ListProducts возвращает страницу каталога. Некорректные фильтры игнорируются.
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := services.NormalizeProductFilter(models.ProductQueryParams{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		MinPrice: q.Get("min_price"),
		MaxPrice: q.Get("max_price"),
		Type:     q.Get("type"),
		Sort:     q.Get("sort"),
		Order:    q.Get("order"),
		Page:     q.Get("page"),
	})

	listing, err := h.catalog.ListProducts(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list products")
		return
	}
	writeJSONResponse(w, http.StatusOK, listing)
}

// ProductDetail возвращает товар с отзывами и похожими товарами
func (h *CatalogHandler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.catalog.GetProductDetail(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to load product")
		return
	}
	writeJSONResponse(w, http.StatusOK, detail)
}

// Categories возвращает активные категории с числом активных товаров
func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategoriesWithCounts(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to list categories")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"categories": categories})
}
