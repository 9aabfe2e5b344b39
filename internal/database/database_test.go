package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigagent/docrouter-go/internal/config"
)

func testDatabaseConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Host:           "127.0.0.1",
		Port:           5432,
		User:           "docrouter",
		Password:       "secret",
		Name:           "docrouter_bulk",
		SSLMode:        config.SSLModeDisable,
		MaxConns:       5,
		MinConns:       1,
		ConnectTimeout: time.Second,
		// Matches the viper default; pgxpool panics on a zero period.
		HealthCheckPeriod: 30 * time.Second,
	}
}

func TestNewRejectsInvalidSSLMode(t *testing.T) {
	cfg := testDatabaseConfig()
	cfg.SSLMode = "carrier-pigeon"

	_, err := New(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing database config")
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	cfg := testDatabaseConfig()
	cfg.Port = 1 // nothing listens here

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := New(ctx, cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestHealthStatusOmitsEmptyError(t *testing.T) {
	healthy, err := json.Marshal(HealthStatus{Status: "healthy", TotalConns: 3, MaxConns: 5})
	require.NoError(t, err)
	assert.NotContains(t, string(healthy), "error")

	unhealthy, err := json.Marshal(HealthStatus{Status: "unhealthy", Error: "connection refused"})
	require.NoError(t, err)
	assert.Contains(t, string(unhealthy), "connection refused")
}
