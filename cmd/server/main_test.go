package main

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/kafka"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/services"
)

func testLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
}

func TestBuildApplication_DBConnectError(t *testing.T) {
	origLoad, origDB := loadConfig, dbConnect
	t.Cleanup(func() {
		loadConfig, dbConnect = origLoad, origDB
	})

	loadConfig = func() *config.Config {
		return &config.Config{Logger: config.LoggerConfig{Level: "error"}}
	}
	dbConnect = func(*config.DatabaseConfig, *logger.Logger) (*database.DB, error) {
		return nil, errors.New("connection refused")
	}

	app, err := buildApplication()
	if err == nil {
		t.Fatal("expected error when database is unavailable")
	}
	if app != nil {
		t.Fatal("expected nil application on error")
	}
}

func TestRegisterEventHandlers(t *testing.T) {
	log := testLogger()
	consumer := kafka.NewTestConsumer(nil, log)
	reviews := services.NewReviewService(nil, log, nil, nil)

	registerEventHandlers(consumer, reviews, log)

	if got := consumer.HandlerCount(); got != 4 {
		t.Fatalf("expected 4 handlers, got %d", got)
	}

	for _, eventType := range []models.EventType{
		models.EventTypeOrderCreated,
		models.EventTypeOrderStatusChanged,
		models.EventTypeCouponRedeemed,
	} {
		handler := consumer.Handler(eventType)
		if handler == nil {
			t.Fatalf("handler for %s not registered", eventType)
		}
		if err := handler(context.Background(), &models.Event{Type: eventType}); err != nil {
			t.Fatalf("log handler for %s returned %v", eventType, err)
		}
	}

	if consumer.Handler(models.EventTypeReviewApproved) == nil {
		t.Fatal("review approved handler not registered")
	}
}

func TestReviewApprovedHandler_RejectsBadPayload(t *testing.T) {
	log := testLogger()
	consumer := kafka.NewTestConsumer(nil, log)
	registerEventHandlers(consumer, services.NewReviewService(nil, log, nil, nil), log)

	err := consumer.Handler(models.EventTypeReviewApproved)(context.Background(), &models.Event{
		Type: models.EventTypeReviewApproved,
		Data: []byte(`{"review_id":1,"product_id":0}`),
	})
	if err == nil {
		t.Fatal("expected error for missing product id")
	}
}
