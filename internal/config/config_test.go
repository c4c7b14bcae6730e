package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "ANGEL_API_KEY", "ANGEL_CLIENT_ID", "ANGEL_PASSWORD", "ANGEL_TOTP_SECRET",
		"LOG_LEVEL", "REDIS_ADDR", "KAFKA_BROKERS", "TELEGRAM_BOT_TOKEN",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	require.Equal(t, 5000, cfg.Server.Port)
	require.Equal(t, "smartapi-proxy", cfg.Server.ServiceName)
	require.Equal(t, "NSE", cfg.SmartAPI.Exchange)
	require.Equal(t, 8, cfg.Quotes.Concurrency)
	require.Equal(t, 20*time.Hour, cfg.SessionMaxAge())
	require.Equal(t, 15*time.Second, cfg.LoginTimeout())
	require.False(t, cfg.HasAccount())
}

func TestLoad_ParsesYAML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
server:
  port: 8081
  service_name: angel-proxy
account:
  api_key: key
  client_id: A123
  password: pw
  totp_secret: JBSWY3DPEHPK3PXP
quotes:
  concurrency: 3
  max_symbols: 10
session:
  max_age: 6h
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 8081, cfg.Server.Port)
	require.Equal(t, "angel-proxy", cfg.Server.ServiceName)
	require.True(t, cfg.HasAccount())
	require.Equal(t, "A123", cfg.Account.ClientID)
	require.Equal(t, 3, cfg.Quotes.Concurrency)
	require.Equal(t, 10, cfg.Quotes.MaxSymbols)
	require.Equal(t, 6*time.Hour, cfg.SessionMaxAge())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ANGEL_API_KEY", "env-key")
	t.Setenv("ANGEL_CLIENT_ID", "ENV1")
	t.Setenv("ANGEL_PASSWORD", "env-pw")
	t.Setenv("ANGEL_TOTP_SECRET", "JBSWY3DPEHPK3PXP")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	path := writeConfig(t, "server:\n  port: 8081\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "ENV1", cfg.Account.ClientID)
	require.Equal(t, "env-key", cfg.Account.APIKey)
	require.True(t, cfg.Kafka.Enabled)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "server: [unclosed")
	_, err := Load(path)
	require.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "partial account",
			mutate:  func(c *Config) { c.Account.ClientID = "A1" },
			wantErr: "account.api_key",
		},
		{
			name:    "bad max age",
			mutate:  func(c *Config) { c.Session.MaxAge = "soon" },
			wantErr: "session.max_age",
		},
		{
			name:    "kafka without brokers",
			mutate:  func(c *Config) { c.Kafka.Enabled = true },
			wantErr: "kafka.brokers",
		},
		{
			name:    "telegram without chat",
			mutate:  func(c *Config) { c.Telegram.Enabled = true; c.Telegram.BotToken = "t" },
			wantErr: "telegram.chat_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
