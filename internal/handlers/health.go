package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/IBM/sarama"
)

// KafkaHealthCheck проверяет доступность брокеров
type KafkaHealthCheck func(brokers []string) error

// HealthHandler представляет обработчик для проверки здоровья системы
type HealthHandler struct {
	db           DBHealth
	redis        RedisHealth
	kafkaBrokers []string
	kafkaCheck   KafkaHealthCheck
	version      string
}

// NewHealthHandler создает новый обработчик здоровья. kafkaCheck по умолчанию CheckKafkaHealth.
func NewHealthHandler(db DBHealth, redis RedisHealth, kafkaBrokers []string, kafkaCheck KafkaHealthCheck) *HealthHandler {
	if kafkaCheck == nil {
		kafkaCheck = CheckKafkaHealth
	}
	return &HealthHandler{
		db:           db,
		redis:        redis,
		kafkaBrokers: kafkaBrokers,
		kafkaCheck:   kafkaCheck,
		version:      "1.0.0",
	}
}

// HealthResponse представляет ответ проверки здоровья
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Version  string            `json:"version"`
	Uptime   string            `json:"uptime"`
}

var startTime = time.Now()

// Health проверяет состояние всех компонентов системы
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]error{
		"database": h.checkDB(),
		"redis":    h.checkRedis(ctx),
		"kafka":    h.kafkaCheck(h.kafkaBrokers),
	}

	services := make(map[string]string, len(checks))
	overallStatus := "healthy"
	for name, err := range checks {
		if err != nil {
			services[name] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
			continue
		}
		services[name] = "healthy"
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, HealthResponse{
		Status:   overallStatus,
		Services: services,
		Version:  h.version,
		Uptime:   time.Since(startTime).String(),
	})
}

// Readiness проверяет готовность приложения к обработке запросов
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.checkDB(); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "Database not ready")
		return
	}

	if err := h.checkRedis(ctx); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "Redis not ready")
		return
	}

	if err := h.kafkaCheck(h.kafkaBrokers); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "Kafka not ready")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Liveness проверяет, что приложение живо
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(startTime).String(),
	})
}

// HealthCheck простой статус с отметкой времени
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) checkDB() error {
	if h.db == nil {
		return errors.New("database is not configured")
	}
	return h.db.Health()
}

func (h *HealthHandler) checkRedis(ctx context.Context) error {
	if h.redis == nil {
		return errors.New("redis is not configured")
	}
	return h.redis.Health(ctx)
}

// CheckKafkaHealth проверяет доступность Kafka брокеров
func CheckKafkaHealth(brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("no brokers configured")
	}

	cfg := sarama.NewConfig()
	cfg.Net.DialTimeout = 3 * time.Second
	cfg.Net.ReadTimeout = 5 * time.Second
	cfg.Net.WriteTimeout = 5 * time.Second
	cfg.Metadata.Retry.Max = 1
	cfg.Metadata.Retry.Backoff = 500 * time.Millisecond

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return err
	}
	return client.Close()
}
