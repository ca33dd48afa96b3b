package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	t.Setenv("KAFKA_BROKER", "")
	t.Setenv("TOKEN_TTL", "")

	cfg := Load()

	if cfg.Port != "8080" || cfg.GRPCPort != "50051" {
		t.Errorf("Unexpected ports %s/%s", cfg.Port, cfg.GRPCPort)
	}
	if cfg.RedisHost != "" || cfg.KafkaBroker != "" {
		t.Error("Expected Redis and Kafka to be disabled by default")
	}
	if cfg.KafkaTopic != "notification_events" {
		t.Errorf("Unexpected topic %q", cfg.KafkaTopic)
	}
	if cfg.TokenTTL != 2*time.Hour {
		t.Errorf("Unexpected token ttl %v", cfg.TokenTTL)
	}
}

func TestLoad_TokenTTL(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"30m", 30 * time.Minute},
		{"90", 90 * time.Second},
		{"soon", 2 * time.Hour},
	}

	for _, tt := range tests {
		t.Setenv("TOKEN_TTL", tt.raw)
		if got := Load().TokenTTL; got != tt.want {
			t.Errorf("TOKEN_TTL=%q: expected %v, got %v", tt.raw, tt.want, got)
		}
	}
}
