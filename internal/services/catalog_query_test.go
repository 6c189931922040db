package services

import (
	"strings"
	"testing"
	"unicode/utf8"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeProductFilter_Defaults(t *testing.T) {
	f := NormalizeProductFilter(models.ProductQueryParams{})

	assert.Equal(t, "created_at", f.Sort)
	assert.Equal(t, "desc", f.Order)
	assert.Equal(t, 1, f.Page)
	assert.Nil(t, f.MinPrice)
	assert.Nil(t, f.MaxPrice)
	assert.Empty(t, f.Type)
}

func TestNormalizeProductFilter_DropsInvalidValues(t *testing.T) {
	f := NormalizeProductFilter(models.ProductQueryParams{
		MinPrice: "abc",
		MaxPrice: "-5",
		Type:     "physical",
		Sort:     "drop table",
		Order:    "sideways",
		Page:     "-2",
	})

	assert.Nil(t, f.MinPrice)
	assert.Nil(t, f.MaxPrice)
	assert.Empty(t, f.Type)
	assert.Equal(t, "created_at", f.Sort)
	assert.Equal(t, "desc", f.Order)
	assert.Equal(t, 1, f.Page)
}

func TestNormalizeProductFilter_KeepsValidValues(t *testing.T) {
	f := NormalizeProductFilter(models.ProductQueryParams{
		Category: " ebooks ",
		Search:   " go ",
		MinPrice: "20",
		MaxPrice: "50.5",
		Type:     "Service",
		Sort:     "price_low",
		Order:    "ASC",
		Page:     "3",
	})

	assert.Equal(t, "ebooks", f.Category)
	assert.Equal(t, "go", f.Search)
	require.NotNil(t, f.MinPrice)
	assert.True(t, f.MinPrice.Equal(decimal.NewFromInt(20)))
	require.NotNil(t, f.MaxPrice)
	assert.True(t, f.MaxPrice.Equal(decimal.RequireFromString("50.5")))
	assert.Equal(t, models.ProductTypeService, f.Type)
	assert.Equal(t, SortPriceLow, f.Sort)
	assert.Equal(t, "asc", f.Order)
	assert.Equal(t, 3, f.Page)
}

func TestNormalizeProductFilter_HugePageStaysOutOfRange(t *testing.T) {
	for _, raw := range []string{"9223372036854775807", "99999999999999999999999"} {
		f := NormalizeProductFilter(models.ProductQueryParams{Page: raw})
		assert.Equal(t, maxPage, f.Page, raw)

		q := BuildProductQuery(f, 12)
		assert.Positive(t, q.Offset, raw)
		assert.Equal(t, (maxPage-1)*12, q.Offset)
	}

	f := NormalizeProductFilter(models.ProductQueryParams{Page: "-99999999999999999999999"})
	assert.Equal(t, 1, f.Page)
}

func TestNormalizeProductFilter_SearchCutOnRuneBoundary(t *testing.T) {
	f := NormalizeProductFilter(models.ProductQueryParams{Search: strings.Repeat("a", 254) + "é"})

	assert.True(t, utf8.ValidString(f.Search))
	assert.Equal(t, strings.Repeat("a", 254), f.Search)

	long := NormalizeProductFilter(models.ProductQueryParams{Search: strings.Repeat("я", 200)})
	assert.True(t, utf8.ValidString(long.Search))
	assert.LessOrEqual(t, len(long.Search), maxSearchLength)
	assert.Equal(t, strings.Repeat("я", 127), long.Search)
}

func TestBuildProductQuery_BaseFilterOnly(t *testing.T) {
	q := BuildProductQuery(NormalizeProductFilter(models.ProductQueryParams{}), 12)

	assert.Contains(t, q.CountSQL, "WHERE p.is_active = TRUE")
	assert.Contains(t, q.ListSQL, "ORDER BY p.created_at DESC, p.id ASC")
	assert.Contains(t, q.ListSQL, "LIMIT $1 OFFSET $2")
	assert.Empty(t, q.Args)
	assert.Equal(t, []interface{}{12, 0}, q.ListArgs())
}

func TestBuildProductQuery_AllFilters(t *testing.T) {
	f := NormalizeProductFilter(models.ProductQueryParams{
		Category: "ebooks",
		Search:   "50%_off",
		MinPrice: "20",
		MaxPrice: "50",
		Type:     "digital",
		Page:     "2",
	})
	q := BuildProductQuery(f, 12)

	for _, fragment := range []string{
		"p.is_active = TRUE",
		"c.slug = $1",
		"(p.name ILIKE $2 OR p.description ILIKE $2 OR p.short_description ILIKE $2)",
		"p.price >= $3",
		"p.price <= $4",
		"p.type = $5",
	} {
		assert.Contains(t, q.CountSQL, fragment)
		assert.Contains(t, q.ListSQL, fragment)
	}
	assert.Contains(t, q.ListSQL, "LIMIT $6 OFFSET $7")

	require.Len(t, q.Args, 5)
	assert.Equal(t, "ebooks", q.Args[0])
	assert.Equal(t, `%50\%\_off%`, q.Args[1])
	assert.Equal(t, "digital", q.Args[4])
	assert.Equal(t, 12, q.Offset)
	assert.Equal(t, 12, q.Limit)
}

func TestBuildProductQuery_SortModes(t *testing.T) {
	tests := []struct {
		sort, order string
		want        string
	}{
		{"price_low", "desc", "ORDER BY p.price ASC, p.id ASC"},
		{"price_high", "asc", "ORDER BY p.price DESC, p.id ASC"},
		{"rating", "asc", "ORDER BY p.rating DESC, p.id ASC"},
		{"popular", "", "ORDER BY p.downloads DESC, p.id ASC"},
		{"name", "asc", "ORDER BY p.name ASC, p.id ASC"},
		{"price", "desc", "ORDER BY p.price DESC, p.id ASC"},
		{"unknown", "asc", "ORDER BY p.created_at ASC, p.id ASC"},
		{"", "", "ORDER BY p.created_at DESC, p.id ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.sort+"_"+tt.order, func(t *testing.T) {
			f := NormalizeProductFilter(models.ProductQueryParams{Sort: tt.sort, Order: tt.order})
			q := BuildProductQuery(f, 12)
			assert.Contains(t, q.ListSQL, tt.want)
			assert.Equal(t, 1, strings.Count(q.ListSQL, "ORDER BY"))
		})
	}
}

func TestBuildProductQuery_ListArgsDoesNotAlias(t *testing.T) {
	q := BuildProductQuery(NormalizeProductFilter(models.ProductQueryParams{Category: "a", Search: "b"}), 12)
	first := q.ListArgs()
	first[0] = "mutated"
	assert.Equal(t, "a", q.Args[0])
}

func TestLastPage(t *testing.T) {
	assert.Equal(t, 1, lastPage(0, 12))
	assert.Equal(t, 1, lastPage(12, 12))
	assert.Equal(t, 2, lastPage(13, 12))
	assert.Equal(t, 2, lastPage(20, 12))
	assert.Equal(t, 3, lastPage(25, 12))
}
