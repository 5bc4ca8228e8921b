package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment selects which payments processor backend the process talks to.
// It is chosen once at startup and injected into clients at construction;
// nothing reads it per call.
type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// Processor holds credentials and routing for the external payments processor.
type Processor struct {
	Environment Environment
	AccessToken string
	LocationID  string
	// BaseURL overrides the environment-derived endpoint; tests point it at a
	// local server.
	BaseURL string
	// DefaultDestination is the onboarded recipient identifier used when no
	// per-partner override exists.
	DefaultDestination string
	// Destinations maps partner name to an onboarded recipient identifier.
	Destinations map[string]string
	Timeout      time.Duration
}

// Payout holds the business constants for entitlement math.
type Payout struct {
	// ShareFraction is the revenue share owed to partners (0.70 = 70%).
	ShareFraction float64
	// MinDisbursementCents rejects trivial or negative transfers.
	MinDisbursementCents int64
	// RevenueSince bounds ledger aggregation; zero means full history.
	RevenueSince time.Time
}

// Redis configures the optional distributed recipient lock.
type Redis struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the optional reconciliation alert publisher.
type Kafka struct {
	Brokers    []string
	AlertTopic string
}

// Server is the top-level process configuration.
type Server struct {
	Addr          string
	DatabaseURL   string
	JWTSigningKey string
	Processor     Processor
	Payout        Payout
	Redis         Redis
	Kafka         Kafka
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:          envOr("MARQUEE_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSigningKey: os.Getenv("ADMIN_JWT_SIGNING_KEY"),
		Processor: Processor{
			Environment:        EnvSandbox,
			AccessToken:        os.Getenv("PROCESSOR_ACCESS_TOKEN"),
			LocationID:         os.Getenv("PROCESSOR_LOCATION_ID"),
			DefaultDestination: os.Getenv("PROCESSOR_DESTINATION_ID"),
			Timeout:            15 * time.Second,
		},
		Payout: Payout{
			ShareFraction:        0.70,
			MinDisbursementCents: 100,
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			AlertTopic: envOr("KAFKA_ALERT_TOPIC", "marquee.reconciliation.alerts"),
		},
	}

	if os.Getenv("PROCESSOR_ENV") == string(EnvProduction) {
		cfg.Processor.Environment = EnvProduction
	}
	if url := os.Getenv("PROCESSOR_BASE_URL"); url != "" {
		cfg.Processor.BaseURL = url
	}

	if raw := os.Getenv("PROCESSOR_DESTINATIONS"); raw != "" {
		dests := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &dests); err != nil {
			return Server{}, fmt.Errorf("parse PROCESSOR_DESTINATIONS: %w", err)
		}
		cfg.Processor.Destinations = dests
	}

	if raw := os.Getenv("PAYOUT_SHARE_FRACTION"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f <= 0 || f > 1 {
			return Server{}, fmt.Errorf("invalid PAYOUT_SHARE_FRACTION %q", raw)
		}
		cfg.Payout.ShareFraction = f
	}

	if raw := os.Getenv("PAYOUT_MIN_CENTS"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return Server{}, fmt.Errorf("invalid PAYOUT_MIN_CENTS %q", raw)
		}
		cfg.Payout.MinDisbursementCents = n
	}

	if raw := os.Getenv("PAYOUT_REVENUE_SINCE"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Server{}, fmt.Errorf("invalid PAYOUT_REVENUE_SINCE %q: %w", raw, err)
		}
		cfg.Payout.RevenueSince = ts
	}

	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
