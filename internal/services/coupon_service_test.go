package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var couponRowColumns = []string{"id", "code", "name", "description", "type", "value", "minimum_amount", "usage_limit", "used_count",
	"starts_at", "expires_at", "is_active", "created_at", "updated_at"}

func couponRow(id int64, code string, typ models.CouponType, value string, minimum interface{}, usageLimit interface{}, used int, active bool) *sqlmock.Rows {
	return sqlmock.NewRows(couponRowColumns).AddRow(
		id, code, "Coupon", nil, string(typ), value, minimum, usageLimit, used,
		evalNow.Add(-time.Hour), evalNow.Add(time.Hour), active, evalNow, evalNow,
	)
}

func TestCouponService_FindCoupon_NormalizesCode(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM coupons WHERE code = \\$1").
		WithArgs("SAVE10").
		WillReturnRows(couponRow(1, "SAVE10", models.CouponTypePercentage, "10.00", nil, nil, 0, true))

	service := NewCouponService(db, newTestLogger())
	coupon, err := service.FindCoupon(context.Background(), "  save10 ")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", coupon.Code)
	assert.Nil(t, coupon.UsageLimit)
	assert.False(t, coupon.MinimumAmount.Valid)
	assert.True(t, coupon.Value.Equal(decimal.NewFromInt(10)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponService_FindCoupon_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM coupons").WithArgs("NOPE").WillReturnError(sql.ErrNoRows)

	service := NewCouponService(db, newTestLogger())
	_, err := service.FindCoupon(context.Background(), "nope")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestCouponService_FindCoupon_StorageErrorPropagates(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	storageErr := errors.New("connection reset")
	mock.ExpectQuery("SELECT (.+) FROM coupons").WillReturnError(storageErr)

	service := NewCouponService(db, newTestLogger())
	_, err := service.FindCoupon(context.Background(), "X")
	require.Error(t, err)
	assert.ErrorIs(t, err, storageErr)
	assert.False(t, apperror.Is(err, apperror.KindNotFound))
}

func TestCouponService_EvaluateCoupon(t *testing.T) {
	tests := []struct {
		name       string
		rows       *sqlmock.Rows
		subtotal   string
		wantUsable bool
		wantAmount string
		wantReason string
	}{
		{"percentage", couponRow(1, "P10", models.CouponTypePercentage, "10", nil, nil, 0, true), "200", true, "20", ""},
		{"fixed capped", couponRow(2, "F50", models.CouponTypeFixed, "50", nil, nil, 0, true), "30", true, "30", ""},
		{"below minimum", couponRow(3, "MIN", models.CouponTypeFixed, "10", "100.00", nil, 0, true), "50", true, "0", models.CouponReasonBelowMinimumAmount},
		{"inactive", couponRow(4, "OFF", models.CouponTypeFixed, "10", nil, nil, 0, false), "50", false, "0", models.CouponReasonInactive},
		{"limit reached", couponRow(5, "LIM", models.CouponTypeFixed, "10", nil, int64(2), 2, true), "50", false, "0", models.CouponReasonUsageLimitReached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			defer db.Close()

			mock.ExpectQuery("SELECT (.+) FROM coupons").WillReturnRows(tt.rows)

			service := NewCouponService(db, newTestLogger())
			result, err := service.EvaluateCoupon(context.Background(), "code", decimal.RequireFromString(tt.subtotal), evalNow)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUsable, result.Usable)
			assert.Equal(t, tt.wantReason, result.Reason)
			assert.True(t, result.Discount.Equal(decimal.RequireFromString(tt.wantAmount)), "discount %s", result.Discount)
		})
	}
}

func TestCouponService_EvaluateCoupon_NegativeSubtotal(t *testing.T) {
	db, _ := newMockDB(t)
	defer db.Close()

	service := NewCouponService(db, newTestLogger())
	_, err := service.EvaluateCoupon(context.Background(), "X", decimal.NewFromInt(-1), evalNow)
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestCouponService_RedeemWithTx_Success(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM coupons WHERE code = \\$1").
		WithArgs("SAVE10").
		WillReturnRows(couponRow(7, "SAVE10", models.CouponTypePercentage, "10", nil, int64(5), 1, true))
	mock.ExpectExec("UPDATE coupons SET used_count = used_count \\+ 1").
		WithArgs(int64(7), evalNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	service := NewCouponService(db, newTestLogger())
	tx, err := db.Begin()
	require.NoError(t, err)

	coupon, discount, err := service.RedeemWithTx(context.Background(), tx, "save10", decimal.NewFromInt(200), evalNow)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, int64(7), coupon.ID)
	assert.Equal(t, 2, coupon.UsedCount)
	assert.True(t, discount.Equal(decimal.NewFromInt(20)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponService_RedeemWithTx_ConcurrentLimitConflict(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM coupons").
		WillReturnRows(couponRow(7, "LAST", models.CouponTypeFixed, "5", nil, int64(1), 0, true))
	mock.ExpectExec("UPDATE coupons").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	service := NewCouponService(db, newTestLogger())
	tx, err := db.Begin()
	require.NoError(t, err)

	_, _, err = service.RedeemWithTx(context.Background(), tx, "LAST", decimal.NewFromInt(20), evalNow)
	assert.True(t, apperror.Is(err, apperror.KindConflict))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponService_RedeemWithTx_NotUsable(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM coupons").
		WillReturnRows(couponRow(7, "OFF", models.CouponTypeFixed, "5", nil, nil, 0, false))
	mock.ExpectRollback()

	service := NewCouponService(db, newTestLogger())
	tx, err := db.Begin()
	require.NoError(t, err)

	_, _, err = service.RedeemWithTx(context.Background(), tx, "OFF", decimal.NewFromInt(20), evalNow)
	assert.True(t, apperror.Is(err, apperror.KindValidation))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponService_RedeemWithTx_BelowMinimumStillRedeems(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM coupons").
		WillReturnRows(couponRow(8, "MIN", models.CouponTypeFixed, "10", "100", nil, 0, true))
	mock.ExpectExec("UPDATE coupons").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	service := NewCouponService(db, newTestLogger())
	tx, err := db.Begin()
	require.NoError(t, err)

	coupon, discount, err := service.RedeemWithTx(context.Background(), tx, "MIN", decimal.NewFromInt(50), evalNow)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, int64(8), coupon.ID)
	assert.True(t, discount.IsZero())
}

func TestCouponService_CreateCoupon(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	minimum := decimal.NewFromInt(50)
	limit := 100
	req := &models.CreateCouponRequest{
		Code:          " welcome ",
		Name:          "Welcome",
		Type:          models.CouponTypePercentage,
		Value:         decimal.NewFromInt(15),
		MinimumAmount: &minimum,
		UsageLimit:    &limit,
		StartsAt:      evalNow,
		ExpiresAt:     evalNow.Add(30 * 24 * time.Hour),
		IsActive:      true,
	}

	mock.ExpectQuery("INSERT INTO coupons").
		WithArgs("WELCOME", "Welcome", nil, "percentage", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(100),
			req.StartsAt, req.ExpiresAt, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))

	service := NewCouponService(db, newTestLogger())
	coupon, err := service.CreateCoupon(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(12), coupon.ID)
	assert.Equal(t, "WELCOME", coupon.Code)
	assert.True(t, coupon.MinimumAmount.Valid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponService_CreateCoupon_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO coupons").WillReturnError(&pq.Error{Code: "23505"})

	service := NewCouponService(db, newTestLogger())
	_, err := service.CreateCoupon(context.Background(), &models.CreateCouponRequest{
		Code: "DUP", Type: models.CouponTypeFixed, Value: decimal.NewFromInt(5),
		StartsAt: evalNow, ExpiresAt: evalNow.Add(time.Hour),
	})
	assert.True(t, apperror.Is(err, apperror.KindConflict))
}

func TestCouponService_CreateCoupon_Validation(t *testing.T) {
	db, _ := newMockDB(t)
	defer db.Close()
	service := NewCouponService(db, newTestLogger())

	negative := decimal.NewFromInt(-1)
	badLimit := -3
	base := func() *models.CreateCouponRequest {
		return &models.CreateCouponRequest{
			Code: "OK", Type: models.CouponTypeFixed, Value: decimal.NewFromInt(5),
			StartsAt: evalNow, ExpiresAt: evalNow.Add(time.Hour),
		}
	}

	cases := map[string]func(r *models.CreateCouponRequest){
		"empty code":       func(r *models.CreateCouponRequest) { r.Code = "   " },
		"bad type":         func(r *models.CreateCouponRequest) { r.Type = "bogo" },
		"negative fixed":   func(r *models.CreateCouponRequest) { r.Value = negative },
		"percent over 100": func(r *models.CreateCouponRequest) { r.Type = models.CouponTypePercentage; r.Value = decimal.NewFromInt(101) },
		"negative minimum": func(r *models.CreateCouponRequest) { r.MinimumAmount = &negative },
		"negative limit":   func(r *models.CreateCouponRequest) { r.UsageLimit = &badLimit },
		"inverted window":  func(r *models.CreateCouponRequest) { r.ExpiresAt = r.StartsAt },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := base()
			mutate(req)
			_, err := service.CreateCoupon(context.Background(), req)
			assert.True(t, apperror.Is(err, apperror.KindValidation), "got %v", err)
		})
	}
}

func TestCouponService_UpdateCoupon(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectExec("UPDATE coupons").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM coupons").
		WithArgs("SAVE").
		WillReturnRows(couponRow(3, "SAVE", models.CouponTypeFixed, "7", nil, nil, 4, false))

	service := NewCouponService(db, newTestLogger())
	coupon, err := service.UpdateCoupon(context.Background(), "save", &models.UpdateCouponRequest{
		Type: models.CouponTypeFixed, Value: decimal.NewFromInt(7),
		StartsAt: evalNow, ExpiresAt: evalNow.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, coupon.UsedCount)
	assert.False(t, coupon.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponService_UpdateCoupon_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectExec("UPDATE coupons").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT used_count FROM coupons WHERE code = \\$1").
		WithArgs("MISSING").
		WillReturnError(sql.ErrNoRows)

	service := NewCouponService(db, newTestLogger())
	_, err := service.UpdateCoupon(context.Background(), "missing", &models.UpdateCouponRequest{
		Type: models.CouponTypeFixed, Value: decimal.NewFromInt(7),
		StartsAt: evalNow, ExpiresAt: evalNow.Add(time.Hour),
	})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestCouponService_UpdateCoupon_LimitBelowUsedCount(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	limit := 1
	mock.ExpectExec("UPDATE coupons (.+) WHERE code = \\$11 AND \\(\\$6::int IS NULL OR used_count <= \\$6::int\\)").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			int64(1), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "SAVE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT used_count FROM coupons WHERE code = \\$1").
		WithArgs("SAVE").
		WillReturnRows(sqlmock.NewRows([]string{"used_count"}).AddRow(4))

	service := NewCouponService(db, newTestLogger())
	_, err := service.UpdateCoupon(context.Background(), "save", &models.UpdateCouponRequest{
		Type: models.CouponTypeFixed, Value: decimal.NewFromInt(7), UsageLimit: &limit,
		StartsAt: evalNow, ExpiresAt: evalNow.Add(time.Hour),
	})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindValidation))
	assert.Contains(t, err.Error(), "below used_count 4")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponService_DeleteCoupon(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectExec("DELETE FROM coupons WHERE code = \\$1").WithArgs("OLD").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM coupons").WithArgs("GONE").WillReturnResult(sqlmock.NewResult(0, 0))

	service := NewCouponService(db, newTestLogger())
	require.NoError(t, service.DeleteCoupon(context.Background(), "old"))
	assert.True(t, apperror.Is(service.DeleteCoupon(context.Background(), "gone"), apperror.KindNotFound))
}

func TestCouponService_ListCoupons(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows(couponRowColumns).
		AddRow(int64(2), "B", "B", "desc", "fixed", "5", nil, nil, 0, evalNow, evalNow.Add(time.Hour), true, evalNow, evalNow).
		AddRow(int64(1), "A", "A", nil, "percentage", "10", "20", int64(3), 1, evalNow, evalNow.Add(time.Hour), true, evalNow, evalNow)
	mock.ExpectQuery("SELECT (.+) FROM coupons ORDER BY created_at DESC, id DESC LIMIT \\$1 OFFSET \\$2").
		WithArgs(50, 0).
		WillReturnRows(rows)

	service := NewCouponService(db, newTestLogger())
	coupons, err := service.ListCoupons(context.Background(), 0, -5)
	require.NoError(t, err)
	require.Len(t, coupons, 2)
	require.NotNil(t, coupons[0].Description)
	assert.Equal(t, "desc", *coupons[0].Description)
	require.NotNil(t, coupons[1].UsageLimit)
	assert.Equal(t, 3, *coupons[1].UsageLimit)
}
