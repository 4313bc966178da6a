package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	// FacilityTZ pins the service-day boundary. Daily queue numbering and the
	// one-ticket-per-day rule reset at midnight in this timezone.
	FacilityTZ string

	MaxHoldAttempts int
	UpNextCount     int

	JoinCooldown   time.Duration
	LookupCooldown time.Duration
	StaffCooldown  time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	RateLimitPerMinute           int
	RateLimitBurst               int
	DepartmentRateLimitPerMinute int
	DepartmentRateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),
		RedisURL:    os.Getenv("REDIS_URL"),
		FacilityTZ:  os.Getenv("FACILITY_TZ"),

		MaxHoldAttempts: readInt("MAX_HOLD_ATTEMPTS", 3),
		UpNextCount:     readInt("UP_NEXT_COUNT", 5),

		JoinCooldown:   readDurationSeconds("JOIN_COOLDOWN_SECONDS", 15),
		LookupCooldown: readDurationMillis("LOOKUP_COOLDOWN_MILLIS", 2500),
		StaffCooldown:  readDurationSeconds("STAFF_COOLDOWN_SECONDS", 3),

		OutboxPollInterval: readDurationSeconds("OUTBOX_POLL_INTERVAL_SECONDS", 2),
		OutboxBatchSize:    readInt("OUTBOX_BATCH_SIZE", 100),

		RateLimitPerMinute:           readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:               readInt("RATE_LIMIT_BURST", 30),
		DepartmentRateLimitPerMinute: readInt("DEPARTMENT_RATE_LIMIT_PER_MIN", 600),
		DepartmentRateLimitBurst:     readInt("DEPARTMENT_RATE_LIMIT_BURST", 120),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readDurationMillis(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Millisecond
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
