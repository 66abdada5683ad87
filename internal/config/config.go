package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Push source (NWWS-OI XMPP).
	NWWSEnabled  bool
	NWWSHost     string
	NWWSPort     int
	NWWSUsername string
	NWWSPassword string
	NWWSRoom     string
	NWWSNickname string

	// Pull source (api.weather.gov).
	NWSAPIBase      string
	NWSAPIUserAgent string
	PollInterval    time.Duration

	// Alert handling.
	FilterStates    []string
	ExpirationGrace time.Duration
	PersistPath     string
	PersistInterval time.Duration
	UGCMapPath      string

	// HTTP surface.
	Host string
	Port int

	// Optional lifecycle-event sink.
	KafkaBrokers []string
	KafkaTopic   string

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	nwwsPort, err := parsePositiveInt("NWWS_PORT", 5222)
	if err != nil {
		return nil, err
	}
	port, err := parsePositiveInt("PORT", 8000)
	if err != nil {
		return nil, err
	}
	pollSeconds, err := parsePositiveInt("POLL_INTERVAL_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	graceSeconds, err := parsePositiveInt("EXPIRATION_GRACE_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	persistSeconds, err := parsePositiveInt("PERSIST_INTERVAL_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		NWWSEnabled:  envOrDefault("NWWS_ENABLED", "false") == "true",
		NWWSHost:     envOrDefault("NWWS_HOST", "nwws-oi.weather.gov"),
		NWWSPort:     nwwsPort,
		NWWSUsername: os.Getenv("NWWS_USERNAME"),
		NWWSPassword: os.Getenv("NWWS_PASSWORD"),
		NWWSRoom:     envOrDefault("NWWS_ROOM", "nwws@conference.nwws-oi.weather.gov"),
		NWWSNickname: envOrDefault("NWWS_NICKNAME", "storm-alert-relay"),

		NWSAPIBase:      envOrDefault("NWS_API_BASE", "https://api.weather.gov"),
		NWSAPIUserAgent: envOrDefault("NWS_API_USER_AGENT", "storm-alert-relay (ops@couchcryptid.dev)"),
		PollInterval:    time.Duration(pollSeconds) * time.Second,

		FilterStates:    parseStates(os.Getenv("FILTER_STATES")),
		ExpirationGrace: time.Duration(graceSeconds) * time.Second,
		PersistPath:     os.Getenv("PERSIST_PATH"),
		PersistInterval: time.Duration(persistSeconds) * time.Second,
		UGCMapPath:      envOrDefault("UGC_MAP_PATH", "data/ugc_map.json"),

		Host: envOrDefault("HOST", "0.0.0.0"),
		Port: port,

		KafkaBrokers: parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "alert-events"),

		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.NWWSEnabled && (cfg.NWWSUsername == "" || cfg.NWWSPassword == "") {
		return nil, errors.New("NWWS_ENABLED requires NWWS_USERNAME and NWWS_PASSWORD")
	}
	if cfg.Port > 65535 {
		return nil, errors.New("PORT must be at most 65535")
	}

	return cfg, nil
}

// HTTPAddr is the listen address for the HTTP surface.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaEnabled reports whether the lifecycle-event publisher is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

// parseStates splits a comma list of state codes, upper-casing each entry.
// Empty input means no filtering.
func parseStates(s string) []string {
	if s == "" {
		return nil
	}
	var states []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			states = append(states, part)
		}
	}
	return states
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	var brokers []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			brokers = append(brokers, part)
		}
	}
	return brokers
}
