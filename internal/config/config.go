package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	SQLitePath            string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	DebtCacheTTLSeconds   int
	AuthSecret            string
	AccessTokenTTLMinutes int
	// IdleLockMinutes of 0 disables the idle lock.
	IdleLockMinutes      int
	StoreTimezone        string
	LowStockScanSpec     string
	PrinterBrowseSeconds int
	MDNSAnnounce         bool
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		SQLitePath:            strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		DebtCacheTTLSeconds:   positiveInt("DEBT_CACHE_TTL_SECONDS", 300),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		IdleLockMinutes:       3,
		StoreTimezone:         getEnv("STORE_TIMEZONE", "Asia/Baku"),
		LowStockScanSpec:      getEnv("LOW_STOCK_SCAN_SPEC", "@every 5m"),
		PrinterBrowseSeconds:  positiveInt("PRINTER_BROWSE_SECONDS", 3),
		MDNSAnnounce:          getEnv("MDNS_ANNOUNCE", "false") == "true",
	}
	if raw := strings.TrimSpace(os.Getenv("IDLE_LOCK_MINUTES")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			cfg.IdleLockMinutes = v
		}
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IdleLockTimeout() time.Duration {
	return time.Duration(c.IdleLockMinutes) * time.Minute
}

// Location resolves StoreTimezone, falling back to UTC when the zone is unknown.
func (c Config) Location() (*time.Location, error) {
	if c.StoreTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.StoreTimezone)
	if err != nil {
		return time.UTC, fmt.Errorf("load STORE_TIMEZONE %q: %w", c.StoreTimezone, err)
	}
	return loc, nil
}

func positiveInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
