package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/config"
	"storefront/internal/logger"

	"github.com/lib/pq"
)

// DB оборачивает пул соединений PostgreSQL
type DB struct {
	*sql.DB
}

// Connect открывает пул соединений и проверяет доступность базы
func Connect(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"host":    cfg.Host,
		"db_name": cfg.DBName,
	}).Info("Successfully connected to database")

	return &DB{DB: sqlDB}, nil
}

// Close закрывает пул соединений
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// Health проверяет доступность базы данных
func (db *DB) Health() error {
	if db == nil || db.DB == nil {
		return errors.New("database is not initialized")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// BeginSnapshot открывает транзакцию только для чтения с REPEATABLE READ,
// чтобы несколько запросов видели один снимок данных.
func (db *DB) BeginSnapshot(ctx context.Context) (*sql.Tx, error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	return tx, nil
}

// IsUniqueViolation сообщает, нарушено ли ограничение уникальности (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
