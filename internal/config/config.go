package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	SmartAPI SmartAPIConfig `yaml:"smartapi"`
	Account  AccountConfig  `yaml:"account"`
	Session  SessionConfig  `yaml:"session"`
	Quotes   QuotesConfig   `yaml:"quotes"`
	Symbols  SymbolsConfig  `yaml:"symbols"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port                  int      `yaml:"port"`
	ServiceName           string   `yaml:"service_name"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
	AllowedOrigins        []string `yaml:"allowed_origins"`
}

type SmartAPIConfig struct {
	BaseURL        string `yaml:"base_url"`
	Exchange       string `yaml:"exchange"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	ClientLocalIP  string `yaml:"client_local_ip"`
	ClientPublicIP string `yaml:"client_public_ip"`
	MACAddress     string `yaml:"mac_address"`
}

// AccountConfig holds the credentials for single-account mode. When set, the
// first quote request for this client id logs in lazily.
type AccountConfig struct {
	APIKey     string `yaml:"api_key"`
	ClientID   string `yaml:"client_id"`
	Password   string `yaml:"password"`
	TOTPSecret string `yaml:"totp_secret"`
}

type SessionConfig struct {
	MaxAge              string `yaml:"max_age"`
	LoginTimeoutSeconds int    `yaml:"login_timeout_seconds"`
}

type QuotesConfig struct {
	Concurrency        int `yaml:"concurrency"`
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
	MaxSymbols         int `yaml:"max_symbols"`
}

type SymbolsConfig struct {
	File           string `yaml:"file"`
	ScripMasterURL string `yaml:"scrip_master_url"`
}

type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML config at path. A missing file is not an error: the
// service can run on defaults plus environment. Values from a .env file in the
// working directory and from the process environment override the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// .env is optional; real environment variables always win over it.
	_ = godotenv.Load()
	applyEnv(cfg)

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.ServiceName == "" {
		cfg.Server.ServiceName = "smartapi-proxy"
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 30
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.SmartAPI.BaseURL == "" {
		cfg.SmartAPI.BaseURL = "https://apiconnect.angelone.in"
	}
	if cfg.SmartAPI.Exchange == "" {
		cfg.SmartAPI.Exchange = "NSE"
	}
	if cfg.SmartAPI.TimeoutSeconds == 0 {
		cfg.SmartAPI.TimeoutSeconds = 10
	}
	if cfg.SmartAPI.ClientLocalIP == "" {
		cfg.SmartAPI.ClientLocalIP = "127.0.0.1"
	}
	if cfg.SmartAPI.ClientPublicIP == "" {
		cfg.SmartAPI.ClientPublicIP = "127.0.0.1"
	}
	if cfg.SmartAPI.MACAddress == "" {
		cfg.SmartAPI.MACAddress = "00:00:00:00:00:00"
	}
	if cfg.Session.MaxAge == "" {
		cfg.Session.MaxAge = "20h"
	}
	if cfg.Session.LoginTimeoutSeconds == 0 {
		cfg.Session.LoginTimeoutSeconds = 15
	}
	if cfg.Quotes.Concurrency == 0 {
		cfg.Quotes.Concurrency = 8
	}
	if cfg.Quotes.CallTimeoutSeconds == 0 {
		cfg.Quotes.CallTimeoutSeconds = 5
	}
	if cfg.Quotes.MaxSymbols == 0 {
		cfg.Quotes.MaxSymbols = 200
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "smartapi:session:"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "smartapi.quotes"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/smartapi-proxy.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("ANGEL_API_KEY"); v != "" {
		cfg.Account.APIKey = v
	}
	if v := os.Getenv("ANGEL_CLIENT_ID"); v != "" {
		cfg.Account.ClientID = v
	}
	if v := os.Getenv("ANGEL_PASSWORD"); v != "" {
		cfg.Account.Password = v
	}
	if v := os.Getenv("ANGEL_TOTP_SECRET"); v != "" {
		cfg.Account.TOTPSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitCSV(v)
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
}

func (c *Config) Validate() error {
	if c.HasAccount() {
		if c.Account.APIKey == "" || c.Account.Password == "" || c.Account.TOTPSecret == "" {
			return fmt.Errorf("account.api_key, account.password and account.totp_secret are required when account.client_id is set")
		}
	}
	if _, err := time.ParseDuration(c.Session.MaxAge); err != nil {
		return fmt.Errorf("invalid session.max_age %q: %w", c.Session.MaxAge, err)
	}
	if c.Quotes.Concurrency < 0 {
		return fmt.Errorf("quotes.concurrency must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// HasAccount reports whether single-account credentials are configured.
func (c *Config) HasAccount() bool {
	return c.Account.ClientID != ""
}

func (c *Config) SessionMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.Session.MaxAge)
	return d
}

func (c *Config) LoginTimeout() time.Duration {
	return time.Duration(c.Session.LoginTimeoutSeconds) * time.Second
}

func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.SmartAPI.TimeoutSeconds) * time.Second
}

func (c *Config) QuoteCallTimeout() time.Duration {
	return time.Duration(c.Quotes.CallTimeoutSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
