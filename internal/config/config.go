package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	Dispatch DispatchConfig

	DefaultSpeedMps float64

	LogLevel      string
	RunMigrations bool
}

// DispatchConfig bounds the matching loop. The defaults mirror the
// production tuning: at most 4 unanswered proposals in flight, search
// rings out to 20km, give up after 10 minutes.
type DispatchConfig struct {
	WaitThreshold  time.Duration
	MaxRadiusKm    int
	MaxAwaiting    int
	CandidateLimit int
	PositionWindow time.Duration
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisGeoKey:     "drivers_geo",
		KafkaTopic:      "driver-positions",
		Dispatch: DispatchConfig{
			WaitThreshold:  10 * time.Minute,
			MaxRadiusKm:    20,
			MaxAwaiting:    4,
			CandidateLimit: 20,
			PositionWindow: 5 * time.Minute,
		},
		DefaultSpeedMps: 10,
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setDurationFromEnv(&cfg.Dispatch.WaitThreshold, "DISPATCH_WAIT_THRESHOLD", &errs)
	setIntFromEnv(&cfg.Dispatch.MaxRadiusKm, "DISPATCH_MAX_RADIUS_KM", &errs)
	setIntFromEnv(&cfg.Dispatch.MaxAwaiting, "DISPATCH_MAX_AWAITING", &errs)
	setIntFromEnv(&cfg.Dispatch.CandidateLimit, "SEARCH_CANDIDATE_LIMIT", &errs)
	setDurationFromEnv(&cfg.Dispatch.PositionWindow, "POSITION_WINDOW", &errs)

	setFloatFromEnv(&cfg.DefaultSpeedMps, "ETA_DEFAULT_SPEED_MPS", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.Dispatch.MaxRadiusKm <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_MAX_RADIUS_KM must be > 0"))
	}
	if cfg.Dispatch.CandidateLimit <= 0 {
		errs = append(errs, fmt.Errorf("SEARCH_CANDIDATE_LIMIT must be > 0"))
	}
	if cfg.Dispatch.MaxAwaiting < 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_MAX_AWAITING must be >= 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
