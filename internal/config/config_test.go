package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 48*time.Hour, cfg.Transfers.OfferExpiry())
	assert.Equal(t, 5*time.Minute, cfg.Expiry.Interval.Duration)
	assert.Equal(t, 50, cfg.Notifications.MaxEntries)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.S3.Enabled())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "server"

[transfers]
offer_expiry_hours = 24
min_offer_percentage = 0.8

[expiry]
interval = "30s"

[store]
backend = "memory"
`), 0o644))

	t.Setenv("LVZ_TRANSFERS_MAX_OFFER_PERCENTAGE", "3.5")
	t.Setenv("LVZ_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("LVZ_SERVER_PORT", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, 24, cfg.Transfers.OfferExpiryHours)
	assert.Equal(t, 0.8, cfg.Transfers.MinOfferPercentage)
	assert.Equal(t, 3.5, cfg.Transfers.MaxOfferPercentage)
	assert.Equal(t, 30*time.Second, cfg.Expiry.Interval.Duration)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 8080, cfg.Server.Port, "unparsable override is ignored")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 48, cfg.Transfers.OfferExpiryHours)
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Transfers.MinOfferPercentage = 3
	cfg.Store.Backend = "s3"
	cfg.Notifications.MaxEntries = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "min_offer_percentage must not exceed")
	assert.Contains(t, msg, "s3 backend requires s3.bucket")
	assert.Contains(t, msg, "max_entries must be >= 1")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Server.APIKey = "secret"
	cfg.Supabase.Password = "pw"
	cfg.Notify.Events = []string{"offer_received"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Supabase.Password)
	assert.Equal(t, "", out.Redis.Password)

	out.Notify.Events[0] = "changed"
	assert.Equal(t, "offer_received", cfg.Notify.Events[0])
	assert.Equal(t, "secret", cfg.Server.APIKey)
}
