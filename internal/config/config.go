package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	_ "github.com/joho/godotenv/autoload"
)

// Config carries everything the service reads from the environment.
// A .env file is honored for local runs via the godotenv autoload import.
type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	DBUsername string `envconfig:"AEGLE_DB_USERNAME" default:"postgres"`
	DBPassword string `envconfig:"AEGLE_DB_PASSWORD" default:"postgres"`
	DBHost     string `envconfig:"AEGLE_DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"AEGLE_DB_PORT" default:"5432"`
	DBDatabase string `envconfig:"AEGLE_DB_DATABASE" default:"aeglekart"`
	DBSchema   string `envconfig:"AEGLE_DB_SCHEMA" default:"public"`

	// Payment processor (hosted checkout) credentials.
	GatewayBaseURL       string        `envconfig:"GATEWAY_BASE_URL" default:"https://api.aeglepay.example"`
	GatewaySecretKey     string        `envconfig:"GATEWAY_SECRET_KEY" default:""`
	GatewayWebhookSecret string        `envconfig:"GATEWAY_WEBHOOK_SECRET" default:""`
	GatewayTimeout       time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"15s"`

	// Store economics. Amounts are in paisa.
	Currency              string `envconfig:"STORE_CURRENCY" default:"pkr"`
	FreeShippingThreshold int64  `envconfig:"FREE_SHIPPING_THRESHOLD" default:"250000"`
	ShippingFee           int64  `envconfig:"SHIPPING_FEE" default:"35000"`
	ShipCountries         string `envconfig:"SHIP_COUNTRIES" default:"PK"`

	AuthTokenSecret string `envconfig:"AUTH_TOKEN_SECRET" default:""`

	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173"`

	// Kafka brokers for outbound order events; empty disables publishing.
	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:""`
	KafkaTopic   string `envconfig:"KAFKA_TOPIC" default:"order-events"`

	// Reconciliation sweep interval; 0 disables the worker.
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"0"`
	ReconcileCutoff   time.Duration `envconfig:"RECONCILE_CUTOFF" default:"30m"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN builds the postgres connection string for the pgx stdlib driver.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		c.DBUsername, c.DBPassword, c.DBHost, c.DBPort, c.DBDatabase, c.DBSchema,
	)
}
