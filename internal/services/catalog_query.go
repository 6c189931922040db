package services

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// Режимы сортировки каталога.
const (
	SortPriceLow  = "price_low"
	SortPriceHigh = "price_high"
	SortRating    = "rating"
	SortPopular   = "popular"

	defaultSortColumn = "created_at"
	maxSearchLength   = 255
	maxPage           = math.MaxInt32
)

// sortModes задают фиксированный порядок независимо от order.
var sortModes = map[string]string{
	SortPriceLow:  "p.price ASC",
	SortPriceHigh: "p.price DESC",
	SortRating:    "p.rating DESC",
	SortPopular:   "p.downloads DESC",
}

// sortColumns поля, по которым разрешена сортировка с явным направлением.
var sortColumns = map[string]string{
	"created_at": "p.created_at",
	"updated_at": "p.updated_at",
	"name":       "p.name",
	"price":      "p.price",
	"downloads":  "p.downloads",
}

const productSelect = `
	SELECT p.id, p.name, p.slug, p.description, p.short_description, p.price, p.sale_price, p.type,
	       p.category_id, p.is_active, p.is_featured, p.downloads, p.rating, p.review_count,
	       p.created_at, p.updated_at, c.name, c.slug
	FROM products p
	JOIN categories c ON c.id = p.category_id`

// ProductQuery готовые запросы страницы каталога.
// Args общие для CountSQL и ListSQL; ListSQL дополнительно принимает LIMIT и OFFSET.
type ProductQuery struct {
	CountSQL string
	ListSQL  string
	Args     []interface{}
	Limit    int
	Offset   int
}

// ListArgs возвращает аргументы ListSQL.
func (q ProductQuery) ListArgs() []interface{} {
	args := make([]interface{}, 0, len(q.Args)+2)
	args = append(args, q.Args...)
	return append(args, q.Limit, q.Offset)
}

// NormalizeProductFilter разбирает параметры запроса.
// Некорректные значения отбрасываются, запрос не падает.
func NormalizeProductFilter(params models.ProductQueryParams) models.ProductFilter {
	filter := models.ProductFilter{
		Category: strings.TrimSpace(params.Category),
		Search:   strings.TrimSpace(params.Search),
		MinPrice: parsePrice(params.MinPrice),
		MaxPrice: parsePrice(params.MaxPrice),
		Sort:     defaultSortColumn,
		Order:    "desc",
		Page:     1,
	}

	filter.Search = truncateRunes(filter.Search, maxSearchLength)

	if t := models.ProductType(strings.ToLower(strings.TrimSpace(params.Type))); t.Valid() {
		filter.Type = t
	}

	sort := strings.ToLower(strings.TrimSpace(params.Sort))
	if _, ok := sortModes[sort]; ok {
		filter.Sort = sort
	} else if _, ok := sortColumns[sort]; ok {
		filter.Sort = sort
	}

	if order := strings.ToLower(strings.TrimSpace(params.Order)); order == "asc" || order == "desc" {
		filter.Order = order
	}

	filter.Page = parsePage(params.Page)

	return filter
}

// parsePage ограничивает номер страницы сверху, чтобы смещение не переполнилось.
// Слишком большой номер остаётся страницей за пределами выдачи.
func parsePage(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 1
	}
	if page < 1 {
		return 1
	}
	if page > maxPage {
		return maxPage
	}
	return page
}

// truncateRunes обрезает строку до limit байт по границе руны.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := 0
	for cut < len(s) {
		_, size := utf8.DecodeRuneInString(s[cut:])
		if cut+size > limit {
			break
		}
		cut += size
	}
	return s[:cut]
}

func parsePrice(raw string) *decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || value.IsNegative() {
		return nil
	}
	return &value
}

// BuildProductQuery строит детерминированные запросы для страницы каталога.
// Каждый режим сортировки завершается p.id ASC, поэтому страницы не пересекаются.
func BuildProductQuery(filter models.ProductFilter, pageSize int) ProductQuery {
	conditions := []string{"p.is_active = TRUE"}
	var args []interface{}
	argIndex := 1

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("c.slug = $%d", argIndex))
		args = append(args, filter.Category)
		argIndex++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(p.name ILIKE $%d OR p.description ILIKE $%d OR p.short_description ILIKE $%d)",
			argIndex, argIndex, argIndex))
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		argIndex++
	}

	if filter.MinPrice != nil {
		conditions = append(conditions, fmt.Sprintf("p.price >= $%d", argIndex))
		args = append(args, *filter.MinPrice)
		argIndex++
	}

	if filter.MaxPrice != nil {
		conditions = append(conditions, fmt.Sprintf("p.price <= $%d", argIndex))
		args = append(args, *filter.MaxPrice)
		argIndex++
	}

	if filter.Type.Valid() {
		conditions = append(conditions, fmt.Sprintf("p.type = $%d", argIndex))
		args = append(args, string(filter.Type))
		argIndex++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	if pageSize <= 0 {
		pageSize = 12
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	offset := int64(page-1) * int64(pageSize)

	return ProductQuery{
		CountSQL: `SELECT COUNT(*) FROM products p JOIN categories c ON c.id = p.category_id ` + where,
		ListSQL: fmt.Sprintf("%s\n\t%s\n\tORDER BY %s\n\tLIMIT $%d OFFSET $%d",
			productSelect, where, orderByClause(filter.Sort, filter.Order), argIndex, argIndex+1),
		Args:   args,
		Limit:  pageSize,
		Offset: int(offset),
	}
}

func orderByClause(sort, order string) string {
	if clause, ok := sortModes[sort]; ok {
		return clause + ", p.id ASC"
	}

	column, ok := sortColumns[sort]
	if !ok {
		column = sortColumns[defaultSortColumn]
	}
	direction := "DESC"
	if order == "asc" {
		direction = "ASC"
	}
	return column + " " + direction + ", p.id ASC"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// lastPage возвращает номер последней страницы, минимум 1.
func lastPage(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 1
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
