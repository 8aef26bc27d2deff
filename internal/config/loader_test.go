package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
broker:
  type: kafka
  kafka:
    brokers: ["kafka:9092"]
    group_id: subscriber
subscriber:
  rules:
    - condition: unreachable
      expression: 'event.phoneNumber.endsWith("06")'
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "userupdate-evt", cfg.Broker.Kafka.Topic)
	assert.Equal(t, "userupdate-evt-dlq", cfg.Broker.Kafka.DLQTopic)
	assert.Equal(t, 2, cfg.Subscriber.MaxDeliveryCount)
	assert.Equal(t, 5*time.Second, cfg.Subscriber.LockDuration)
	assert.Equal(t, "/api/v1/userupdated", cfg.Publisher.Route)
	assert.Equal(t, 3, cfg.Broker.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Broker.Retry.InitialInterval)
	require.Len(t, cfg.Subscriber.Rules, 1)
	assert.Equal(t, "unreachable", cfg.Subscriber.Rules[0].Condition)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BROKER_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SUBSCRIBER_MAX_DELIVERY_COUNT", "5")

	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, 5, cfg.Subscriber.MaxDeliveryCount)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "broker:\n  type: kafka\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.kafka.brokers")
}
