// Package config содержит логику чтения конфигурации сервиса партнёрского учёта.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/partner-ledger/internal/cache"
	"github.com/mmeshcher/partner-ledger/internal/middleware"
	"github.com/mmeshcher/partner-ledger/internal/money"
)

const (
	defaultRunAddress      = "localhost:8080"
	defaultOffsetMinutes   = -180
	defaultRefreshInterval = 5 * time.Minute
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress             string
	DatabaseURI            string
	CatalogAddress         string
	RedisAddress           string
	MemoryStore            bool
	OffsetMinutes          int
	CommissionRate         decimal.Decimal
	BuckpaySecret          string
	BlackcatSecret         string
	SecretHeader           string
	ReportCacheTTL         time.Duration
	CatalogRefreshInterval time.Duration
}

// envConfig содержит значения из окружения. Указатели отличают «не задано» от нулевого значения.
type envConfig struct {
	RunAddress             string         `env:"RUN_ADDRESS"`
	DatabaseURI            string         `env:"DATABASE_URI"`
	CatalogAddress         string         `env:"CATALOG_ADDRESS"`
	RedisAddress           string         `env:"REDIS_ADDRESS"`
	MemoryStore            *bool          `env:"MEMORY_STORE"`
	OffsetMinutes          *int           `env:"TZ_OFFSET_MINUTES"`
	CommissionRate         string         `env:"COMMISSION_RATE"`
	BuckpaySecret          string         `env:"BUCKPAY_WEBHOOK_SECRET"`
	BlackcatSecret         string         `env:"BLACKCAT_WEBHOOK_SECRET"`
	SecretHeader           string         `env:"WEBHOOK_SECRET_HEADER"`
	ReportCacheTTL         *time.Duration `env:"REPORT_CACHE_TTL"`
	CatalogRefreshInterval *time.Duration `env:"CATALOG_REFRESH_INTERVAL"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var e envConfig
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}
	var rate string

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.CatalogAddress, "c", "", "partner catalog address")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for report cache")
	flag.BoolVar(&cfg.MemoryStore, "memory", false, "keep orders in memory instead of Postgres")
	flag.IntVar(&cfg.OffsetMinutes, "tz", defaultOffsetMinutes, "reporting timezone offset from UTC in minutes")
	flag.StringVar(&rate, "rate", money.DefaultCommissionRate.String(), "operator commission rate")
	flag.StringVar(&cfg.SecretHeader, "secret-header", middleware.DefaultSecretHeader, "webhook shared secret header")
	flag.DurationVar(&cfg.ReportCacheTTL, "cache-ttl", cache.DefaultTTL, "report cache TTL")
	flag.DurationVar(&cfg.CatalogRefreshInterval, "catalog-refresh", defaultRefreshInterval, "catalog refresh interval")

	flag.Parse()

	if e.RunAddress != "" {
		cfg.RunAddress = e.RunAddress
	}
	if e.DatabaseURI != "" {
		cfg.DatabaseURI = e.DatabaseURI
	}
	if e.CatalogAddress != "" {
		cfg.CatalogAddress = e.CatalogAddress
	}
	if e.RedisAddress != "" {
		cfg.RedisAddress = e.RedisAddress
	}
	if e.MemoryStore != nil {
		cfg.MemoryStore = *e.MemoryStore
	}
	if e.OffsetMinutes != nil {
		cfg.OffsetMinutes = *e.OffsetMinutes
	}
	if e.CommissionRate != "" {
		rate = e.CommissionRate
	}
	if e.SecretHeader != "" {
		cfg.SecretHeader = e.SecretHeader
	}
	if e.ReportCacheTTL != nil {
		cfg.ReportCacheTTL = *e.ReportCacheTTL
	}
	if e.CatalogRefreshInterval != nil {
		cfg.CatalogRefreshInterval = *e.CatalogRefreshInterval
	}
	cfg.BuckpaySecret = e.BuckpaySecret
	cfg.BlackcatSecret = e.BlackcatSecret

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}

	var err error
	if cfg.CommissionRate, err = money.ParseRate(rate); err != nil {
		return nil, err
	}
	if cfg.OffsetMinutes < -12*60 || cfg.OffsetMinutes > 14*60 {
		return nil, fmt.Errorf("timezone offset %d minutes out of range", cfg.OffsetMinutes)
	}
	if !cfg.MemoryStore && cfg.DatabaseURI == "" {
		return nil, errors.New("database URI is required unless memory store is enabled")
	}

	return cfg, nil
}
