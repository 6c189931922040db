package config

import (
	"os"
	"strconv"
	"strings"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Kafka     KafkaConfig     `json:"kafka"`
	Logger    LoggerConfig    `json:"logger"`
	Catalog   CatalogConfig   `json:"catalog"`
	Dashboard DashboardConfig `json:"dashboard"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Auth      AuthConfig      `json:"auth"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
}

// DatabaseConfig представляет конфигурацию базы данных
type DatabaseConfig struct {
	Host            string `json:"host"`
	Port            string `json:"port"`
	User            string `json:"user"`
	Password        string `json:"password"`
	DBName          string `json:"db_name"`
	SSLMode         string `json:"ssl_mode"`
	MaxOpenConns    int    `json:"max_open_conns"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	ConnMaxLifetime int    `json:"conn_max_lifetime_minutes"`
	AutoMigrate     bool   `json:"auto_migrate"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// KafkaConfig представляет конфигурацию Kafka
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  Topics   `json:"topics"`
}

// Topics представляет список топиков Kafka
type Topics struct {
	Orders  string `json:"orders"`
	Coupons string `json:"coupons"`
	Reviews string `json:"reviews"`
}

// LoggerConfig представляет конфигурацию логгера
type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// CatalogConfig хранит настройки витрины
type CatalogConfig struct {
	PageSize             int `json:"page_size"`
	RelatedLimit         int `json:"related_limit"`
	FeaturedLimit        int `json:"featured_limit"`
	HomeCategoryLimit    int `json:"home_category_limit"`
	CacheTTLSeconds      int `json:"cache_ttl_seconds"`
	OrderNumberAttempts  int `json:"order_number_attempts"`
	MaxOrderItemQuantity int `json:"max_order_item_quantity"`
}

// DashboardConfig хранит настройки админской панели
type DashboardConfig struct {
	RecentOrdersLimit     int `json:"recent_orders_limit"`
	SalesDays             int `json:"sales_days"`
	TopProductsLimit      int `json:"top_products_limit"`
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`
}

// RateLimitConfig описывает настройки rate limiting
type RateLimitConfig struct {
	Enabled       bool   `json:"enabled"`
	Requests      int    `json:"requests"`
	WindowSeconds int    `json:"window_seconds"`
	KeyPrefix     string `json:"key_prefix"`
}

// AuthConfig описывает проверку токенов внешнего провайдера идентификации
type AuthConfig struct {
	JWTSecret string `json:"-"`
	Issuer    string `json:"issuer"`
	AdminRole string `json:"admin_role"`
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 10),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "storefront_user"),
			Password:        getEnv("DB_PASSWORD", "storefront_pass"),
			DBName:          getEnv("DB_NAME", "storefront"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 5),
			AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", "storefront"),
			Topics: Topics{
				Orders:  getEnv("KAFKA_TOPIC_ORDERS", "orders"),
				Coupons: getEnv("KAFKA_TOPIC_COUPONS", "coupons"),
				Reviews: getEnv("KAFKA_TOPIC_REVIEWS", "reviews"),
			},
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		Catalog: CatalogConfig{
			PageSize:             getEnvAsInt("CATALOG_PAGE_SIZE", 12),
			RelatedLimit:         getEnvAsInt("CATALOG_RELATED_LIMIT", 4),
			FeaturedLimit:        getEnvAsInt("CATALOG_FEATURED_LIMIT", 6),
			HomeCategoryLimit:    getEnvAsInt("CATALOG_HOME_CATEGORY_LIMIT", 8),
			CacheTTLSeconds:      getEnvAsInt("CATALOG_CACHE_TTL_SECONDS", 60),
			OrderNumberAttempts:  getEnvAsInt("ORDER_NUMBER_ATTEMPTS", 5),
			MaxOrderItemQuantity: getEnvAsInt("ORDER_MAX_ITEM_QUANTITY", 100),
		},
		Dashboard: DashboardConfig{
			RecentOrdersLimit:     getEnvAsInt("DASHBOARD_RECENT_ORDERS_LIMIT", 5),
			SalesDays:             getEnvAsInt("DASHBOARD_SALES_DAYS", 30),
			TopProductsLimit:      getEnvAsInt("DASHBOARD_TOP_PRODUCTS_LIMIT", 5),
			RequestTimeoutSeconds: getEnvAsInt("DASHBOARD_REQUEST_TIMEOUT_SECONDS", 5),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", false),
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			KeyPrefix:     getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_ISSUER", ""),
			AdminRole: getEnv("AUTH_ADMIN_ROLE", "admin"),
		},
	}
}

// getEnv получает значение переменной окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt получает значение переменной окружения как int с значением по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool получает значение переменной окружения как bool с значением по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	if valueStr == "true" || valueStr == "1" || valueStr == "yes" {
		return true
	}
	if valueStr == "false" || valueStr == "0" || valueStr == "no" {
		return false
	}
	return defaultValue
}
