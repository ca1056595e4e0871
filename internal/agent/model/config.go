package model

import (
	"time"

	"github.com/frerescollection/shopbot/internal/core"
)

// ================ Config ================
type SessionConfig struct {
	Backend       string        `envconfig:"SESSION_BACKEND" default:"memory"`
	IdleTimeout   time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"10m"`
}

type RateLimitConfig struct {
	Backend  string        `envconfig:"RATE_LIMIT_BACKEND" default:"memory"`
	Messages int           `envconfig:"RATE_LIMIT_MESSAGES" default:"10"`
	Window   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
}

type CatalogConfig struct {
	TTL               time.Duration `envconfig:"CATALOG_TTL" default:"5m"`
	LowStockThreshold int           `envconfig:"LOW_STOCK_THRESHOLD" default:"5"`
	NewProductDays    int           `envconfig:"NEW_PRODUCT_DAYS" default:"30"`
}

type StoreConfig struct {
	Backend     string        `envconfig:"STORE_BACKEND" default:"memory"`
	ProjectID   string        `envconfig:"FIRESTORE_PROJECT_ID"`
	DatabaseDSN string        `envconfig:"DATABASE_DSN"`
	Timeout     time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
}

type OracleConfig struct {
	APIKey      string        `envconfig:"GEMINI_API_KEY"`
	BaseURL     string        `envconfig:"GEMINI_BASE_URL"`
	Model       string        `envconfig:"ORACLE_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int           `envconfig:"ORACLE_MAX_TOKENS" default:"400"`
	Temperature float32       `envconfig:"ORACLE_TEMPERATURE" default:"0.4"`
	Timeout     time.Duration `envconfig:"ORACLE_TIMEOUT" default:"15s"`
	// CatalogExcerpt caps how many products are listed in the fallback prompt.
	CatalogExcerpt int `envconfig:"ORACLE_CATALOG_EXCERPT" default:"20"`
}

// Enabled reports whether a completion model can be built.
func (c OracleConfig) Enabled() bool {
	return c.APIKey != ""
}

type AnalyticsConfig struct {
	Sink            string   `envconfig:"ANALYTICS_SINK" default:"store"`
	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic      string   `envconfig:"KAFKA_TOPIC" default:"shopbot.analytics"`
	PubSubProjectID string   `envconfig:"PUBSUB_PROJECT_ID"`
	PubSubTopic     string   `envconfig:"PUBSUB_TOPIC" default:"shopbot-analytics"`
}

type BusinessConfig struct {
	Name    string `envconfig:"BUSINESS_NAME" default:"Frere's Collection"`
	Contact string `envconfig:"BUSINESS_CONTACT" default:"+52 55 1234 5678"`
	Hours   string `envconfig:"BUSINESS_HOURS" default:"Lunes a sábado: 10 AM – 7 PM."`
}

type MessengerConfig struct {
	VerifyToken     string        `envconfig:"VERIFY_TOKEN" default:"freres_verificacion"`
	PageAccessToken string        `envconfig:"PAGE_ACCESS_TOKEN"`
	AppSecret       string        `envconfig:"APP_SECRET"`
	GraphAPIURL     string        `envconfig:"GRAPH_API_URL" default:"https://graph.facebook.com/v18.0"`
	Timeout         time.Duration `envconfig:"MESSENGER_TIMEOUT" default:"10s"`
}

type AppConfig struct {
	Environment     core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	Port            string           `envconfig:"PORT" default:"8080"`
	LogLevel        string           `envconfig:"LOG_LEVEL"`
	ShutdownTimeout time.Duration    `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}
