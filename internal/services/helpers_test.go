package services

import (
	"testing"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"

	"github.com/DATA-DOG/go-sqlmock"
)

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
}

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	return &database.DB{DB: db}, mock
}
