package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServiceName string
	Port        string
	GRPCPort    string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	KafkaBroker string
	KafkaTopic  string

	JWTSecret string
	TokenTTL  time.Duration

	ExpoPushURL    string
	JaegerEndpoint string
}

// Load reads the service configuration from the environment. Empty
// REDIS_HOST or KAFKA_BROKER disables the matching integration.
func Load() *Config {
	return &Config{
		ServiceName: getEnv("SERVICE_NAME", "flowermarket-service"),
		Port:        getEnv("PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", "50051"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "flowermarket"),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		KafkaBroker: os.Getenv("KAFKA_BROKER"),
		KafkaTopic:  getEnv("KAFKA_TOPIC", "notification_events"),

		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),
		TokenTTL:  getDuration("TOKEN_TTL", 2*time.Hour),

		ExpoPushURL:    getEnv("EXPO_PUSH_URL", "https://exp.host/--/api/v2/push/send"),
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
