package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shestoi/ordersaga/platform/envconfig"
)

func TestLoad_LocalDefaults(t *testing.T) {
	os.Clearenv()
	t.Setenv("APP_ENV", "local")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, envconfig.EnvLocal, cfg.AppEnv)
	assert.Equal(t, "127.0.0.1:8082", cfg.HTTPAddr)
	assert.Equal(t, "127.0.0.1:50052", cfg.GRPCAddr)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, []string{"localhost:19092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "order-events", cfg.Kafka.OrderTopic)
	assert.Equal(t, "payment-events", cfg.Kafka.PaymentTopic)
	assert.Equal(t, DefaultConsumerGroup, cfg.Kafka.ConsumerGroup)
	assert.Equal(t, 24*time.Hour, cfg.ProcessedTTL)
	assert.False(t, cfg.EnableGRPCReflection)
}

func TestLoad_DockerDefaults(t *testing.T) {
	os.Clearenv()
	t.Setenv("APP_ENV", "docker")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:50052", cfg.GRPCAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "otel-collector:4317", cfg.OTelEndpoint)
	assert.Contains(t, cfg.PostgresDSN, "postgres-payment:5432")
}

func TestLoad_DockerKeepsExplicitBrokers(t *testing.T) {
	os.Clearenv()
	t.Setenv("APP_ENV", "docker")
	t.Setenv("KAFKA_BROKERS", "broker:29092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker:29092"}, cfg.Kafka.Brokers)
	assert.Equal(t, DefaultConsumerGroup, cfg.Kafka.ConsumerGroup)
}

func TestLoad_Overrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("KAFKA_BROKERS", "b1:9092,b2:9092")
	t.Setenv("KAFKA_CONSUMER_GROUP", "payments-test")
	t.Setenv("KAFKA_CONSUMER_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "payments-test", cfg.Kafka.ConsumerGroup)
	assert.Equal(t, 5, cfg.Kafka.MaxAttempts)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "app env", key: "APP_ENV", val: "prod"},
		{name: "storage driver", key: "STORAGE_DRIVER", val: "mongo"},
		{name: "shutdown timeout", key: "SHUTDOWN_TIMEOUT", val: "soon"},
		{name: "sampling ratio", key: "OTEL_SAMPLING_RATIO", val: "2"},
		{name: "reflection flag", key: "ENABLE_GRPC_REFLECTION", val: "maybe"},
		{name: "outbox batch", key: "OUTBOX_BATCH_SIZE", val: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
