package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env                      string
	Port                     string
	AllowedOrigin            string
	DatabaseURL              string
	DataDir                  string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	InvoiceSequencer         string
	AnalyticsCacheTTLSeconds int
	AuthSecret               string
	AccessTokenTTLMinutes    int
	DemoEmail                string
	DemoPassword             string
	Timezone                 string
	InvoiceTitle             string
	CurrencySymbol           string
	ShareBaseURL             string
	LogLevel                 string
	LogFormat                string

	// DotEnvLoaded reports whether a .env file was read.
	DotEnvLoaded bool
}

const (
	SequencerStore = "store"
	SequencerRedis = "redis"
)

func Load() Config {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" {
		env = "development"
	}

	loaded := false
	if env == "development" || env == "local" {
		loaded = godotenv.Load() == nil
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	ttl := v.GetInt("ANALYTICS_CACHE_TTL_SECONDS")
	if ttl < 1 {
		ttl = 60
	}
	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 480
	}
	sequencer := strings.ToLower(strings.TrimSpace(v.GetString("INVOICE_SEQUENCER")))
	if sequencer != SequencerRedis {
		sequencer = SequencerStore
	}

	return Config{
		Env:                      env,
		Port:                     v.GetString("PORT"),
		AllowedOrigin:            v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:              strings.TrimSpace(v.GetString("DATABASE_URL")),
		DataDir:                  strings.TrimSpace(v.GetString("DATA_DIR")),
		RedisAddr:                strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:            v.GetString("REDIS_PASSWORD"),
		RedisDB:                  v.GetInt("REDIS_DB"),
		InvoiceSequencer:         sequencer,
		AnalyticsCacheTTLSeconds: ttl,
		AuthSecret:               strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:    tokenTTL,
		DemoEmail:                strings.TrimSpace(v.GetString("DEMO_EMAIL")),
		DemoPassword:             v.GetString("DEMO_PASSWORD"),
		Timezone:                 v.GetString("TIMEZONE"),
		InvoiceTitle:             v.GetString("INVOICE_TITLE"),
		CurrencySymbol:           v.GetString("CURRENCY_SYMBOL"),
		ShareBaseURL:             v.GetString("SHARE_BASE_URL"),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		LogFormat:                v.GetString("LOG_FORMAT"),
		DotEnvLoaded:             loaded,
	}
}

// Weak secrets and demo credentials are intentionally left without defaults.
func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATA_DIR", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("INVOICE_SEQUENCER", SequencerStore)
	v.SetDefault("ANALYTICS_CACHE_TTL_SECONDS", 60)
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("DEMO_EMAIL", "")
	v.SetDefault("DEMO_PASSWORD", "")
	v.SetDefault("TIMEZONE", "Asia/Kolkata")
	v.SetDefault("INVOICE_TITLE", "Snack Kit Invoice")
	v.SetDefault("CURRENCY_SYMBOL", "₹")
	v.SetDefault("SHARE_BASE_URL", "https://wa.me/")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) AnalyticsCacheTTL() time.Duration {
	return time.Duration(c.AnalyticsCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) DemoEnabled() bool {
	return c.DemoEmail != "" && c.DemoPassword != ""
}
