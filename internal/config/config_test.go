package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
mongodb:
  uri: mongodb://localhost:27017
jwt:
  hs_secret: secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8082, cfg.App.Port)
	assert.Equal(t, "chats", cfg.Mongo.ChatsCollection)
	assert.Equal(t, "redis", cfg.Events.Driver)
	assert.Equal(t, 300, cfg.Redis.StudentCacheTTLSeconds)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
mongodb:
  uri: mongodb://file:27017
jwt:
  hs_secret: secret
`)
	t.Setenv("MONGODB_URI", "mongodb://env:27017")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://env:27017", cfg.Mongo.URI)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
mongodb:
  uri: mongodb://localhost:27017
events:
  driver: carrier-pigeon
jwt:
  hs_secret: secret
`)
	_, err := Load(path)
	require.Error(t, err)

	path = writeConfig(t, `
mongodb:
  uri: mongodb://localhost:27017
`)
	_, err = Load(path)
	require.Error(t, err)
}
