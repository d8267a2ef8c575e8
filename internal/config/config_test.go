package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	if yaml != "" {
		require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "UTC", cfg.Reminders.Timezone)
	assert.False(t, cfg.Reminders.CatchUp)
	assert.Equal(t, 3, cfg.Reminders.LookbackDays)
	assert.Equal(t, "window", cfg.Reminders.SpecificDateScope)
	assert.Equal(t, 30, cfg.Reminders.SpecificDateWindowDays)
	assert.Equal(t, "notification", cfg.Reminders.Channel)
	assert.Equal(t, 90*24*time.Hour, cfg.Reminders.SendLogRetention)
	assert.Equal(t, time.Minute, cfg.Reminders.DirectoryCacheTTL)
	assert.Equal(t, 10*time.Second, cfg.SMS.Timeout)
	assert.Equal(t, time.UTC, cfg.Reminders.Location())
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 5, cfg.Outbox.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Outbox.Lease)
}

func TestLoad_FileValues(t *testing.T) {
	cfg, err := load(newViper(t, `
reminders:
  timezone: Asia/Riyadh
  catch_up: true
  lookback_days: 5
  specific_date_scope: all_active
  channel: both
  idempotency_backend: redis
sms:
  enabled: true
  requests_per_second: 2.5
`))
	require.NoError(t, err)

	assert.True(t, cfg.Reminders.CatchUp)
	assert.Equal(t, 5, cfg.Reminders.LookbackDays)
	assert.Equal(t, "all_active", cfg.Reminders.SpecificDateScope)
	assert.Equal(t, "both", cfg.Reminders.Channel)
	assert.Equal(t, "redis", cfg.Reminders.IdempotencyBackend)
	assert.Equal(t, 2.5, cfg.SMS.RequestsPerSecond)
	assert.Equal(t, "Asia/Riyadh", cfg.Reminders.Location().String())
}

func TestLoad_SecretsFromEnvironment(t *testing.T) {
	t.Setenv("ACADEMY_JWT_SECRET", "s3cret")
	t.Setenv("ACADEMY_SMS_API_KEY", "key-1")
	t.Setenv("ACADEMY_DB_PASSWORD", "pw")

	cfg, err := load(newViper(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, "key-1", cfg.SMS.APIKey)
	assert.Equal(t, "pw", cfg.Database.Password)
	assert.Contains(t, cfg.Database.DSN(), "password=pw")
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"timezone":    "reminders:\n  timezone: Mars/Olympus\n",
		"scope":       "reminders:\n  specific_date_scope: forever\n",
		"backend":     "reminders:\n  idempotency_backend: memcached\n",
		"channel":     "reminders:\n  channel: email\n",
		"lookback":    "reminders:\n  lookback_days: -1\n",
		"bulkWorkers": "reminders:\n  bulk_workers: 0\n",
		"outboxBatch": "outbox:\n  batch_size: 0\n",
	}
	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := load(newViper(t, yaml))
			assert.Error(t, err)
		})
	}
}
