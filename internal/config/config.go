package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// JWTConfig holds token verification settings.
type JWTConfig struct {
	Secret string
}

// KafkaConfig holds broker and consumer-group settings.
type KafkaConfig struct {
	Brokers     []string
	GroupPrefix string
}

// RedisConfig holds cache connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CollaboratorConfig holds the external service endpoints.
type CollaboratorConfig struct {
	ListingServiceURL string
	PaymentGatewayURL string
	PaymentAPIKey     string
	PaymentTimeout    time.Duration
}

// SettlementConfig holds the refund sweep settings.
type SettlementConfig struct {
	SweepSchedule string
	PayoutWindow  time.Duration
}

// ServiceConfig holds all configuration for the reservation service.
type ServiceConfig struct {
	Port         string
	AppEnv       string
	DBConfig     DatabaseConfig
	JWTConfig    JWTConfig
	KafkaConfig  KafkaConfig
	RedisConfig  RedisConfig
	Collaborator CollaboratorConfig
	Settlement   SettlementConfig
}

// Load reads configuration from RESERVATION_-prefixed environment variables.
func Load() (*ServiceConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("RESERVATION")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("SERVICE_PORT", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "reservations")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_PREFIX", "gearshare-")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LISTING_SERVICE_URL", "http://localhost:8081")
	v.SetDefault("PAYMENT_GATEWAY_URL", "http://localhost:8082")
	v.SetDefault("PAYMENT_API_KEY", "")
	v.SetDefault("PAYMENT_TIMEOUT", "30s")
	v.SetDefault("SETTLEMENT_SWEEP_SCHEDULE", "*/10 * * * *")
	v.SetDefault("SETTLEMENT_PAYOUT_WINDOW", "72h")

	if v.GetString("JWT_SECRET") == "" && v.GetString("APP_ENV") != "development" {
		return nil, fmt.Errorf("RESERVATION_JWT_SECRET is required outside development")
	}

	return &ServiceConfig{
		Port:   v.GetString("SERVICE_PORT"),
		AppEnv: v.GetString("APP_ENV"),
		DBConfig: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		JWTConfig: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
		},
		KafkaConfig: KafkaConfig{
			Brokers:     strings.Split(v.GetString("KAFKA_BROKERS"), ","),
			GroupPrefix: v.GetString("KAFKA_GROUP_PREFIX"),
		},
		RedisConfig: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Collaborator: CollaboratorConfig{
			ListingServiceURL: v.GetString("LISTING_SERVICE_URL"),
			PaymentGatewayURL: v.GetString("PAYMENT_GATEWAY_URL"),
			PaymentAPIKey:     v.GetString("PAYMENT_API_KEY"),
			PaymentTimeout:    v.GetDuration("PAYMENT_TIMEOUT"),
		},
		Settlement: SettlementConfig{
			SweepSchedule: v.GetString("SETTLEMENT_SWEEP_SCHEDULE"),
			PayoutWindow:  v.GetDuration("SETTLEMENT_PAYOUT_WINDOW"),
		},
	}, nil
}
