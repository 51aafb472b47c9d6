package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Router.SubmitTimeout)
	assert.Equal(t, 3, cfg.Router.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Router.RetryBackoff)
	assert.Equal(t, 30*time.Second, cfg.Health.ProbeInterval)
	assert.Equal(t, 3, cfg.Venue.FailoverThreshold)
	assert.Len(t, cfg.Venues, 3)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
server:
  port: "9090"
router:
  retry_attempts: 5
  retry_backoff: 250ms
risk:
  max_daily_loss: 25000
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Router.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Router.RetryBackoff)
	assert.Equal(t, 25000.0, cfg.Risk.MaxDailyLoss)
	// Untouched values keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Router.SubmitTimeout)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRiskLimitsConversion(t *testing.T) {
	rc := RiskConfig{
		MaxPositionSize:  1_000_000,
		MaxDailyLoss:     50_000,
		MaxLeverage:      10,
		CorrelationLimit: 0.8,
	}

	limits := rc.Limits()
	assert.True(t, limits.MaxPositionSize.Equal(limits.MaxPositionSize.Truncate(0)))
	assert.Equal(t, "50000", limits.MaxDailyLoss.String())
	assert.Equal(t, "10", limits.MaxLeverage.String())
	assert.Equal(t, "0.8", limits.CorrelationLimit.String())
}
