package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"storefront/internal/config"
	"storefront/internal/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func TestHealth(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectPing().WillReturnError(nil)

	db := &DB{DB: sqlDB}
	if err := db.Health(); err != nil {
		t.Fatalf("expected health ok, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConnect_Failure(t *testing.T) {
	log := logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
	cfg := &config.DatabaseConfig{Host: "127.0.0.1", Port: "0", User: "u", Password: "p", DBName: "db", SSLMode: "disable"}
	if _, err := Connect(cfg, log); err == nil {
		t.Fatalf("expected connect error")
	}
}

func TestClose(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	mock.ExpectClose()
	db := &DB{DB: sqlDB}
	if err := db.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var db *DB
	if err := db.Close(); err != nil {
		t.Fatalf("expected nil error on nil db close, got %v", err)
	}
}

func TestHealth_Nil(t *testing.T) {
	var db *DB
	if err := db.Health(); err == nil {
		t.Fatalf("expected error for nil db health")
	}
}

func TestMigrate(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))

	db := &DB{DB: sqlDB}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigrate_Error(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	db := &DB{DB: sqlDB}
	if err := db.Migrate(context.Background()); err == nil {
		t.Fatalf("expected migrate error")
	}
}

func TestBeginSnapshot(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	db := &DB{DB: sqlDB}
	tx, err := db.BeginSnapshot(context.Background())
	if err != nil {
		t.Fatalf("begin snapshot failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(fmt.Errorf("wrap: %w", &pq.Error{Code: "23505"})) {
		t.Fatalf("expected unique violation")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Fatalf("foreign key violation is not unique violation")
	}
	if IsUniqueViolation(errors.New("23505")) {
		t.Fatalf("plain errors are not unique violations")
	}
}
