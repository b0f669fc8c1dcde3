// Package config reads the process configuration from the environment.
//
// Every setting has a TAPES_ prefixed variable. A .env file in the working directory is
// loaded first when present; variables already set in the environment take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/casualjim/tapes/proxyfetch"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	EnvProxyURL       = "TAPES_PROXY_URL"
	EnvProvider       = "TAPES_PROVIDER"
	EnvModel          = "TAPES_MODEL"
	EnvUpstreamURL    = "TAPES_UPSTREAM_URL"
	EnvDebug          = "TAPES_DEBUG"
	EnvMaxAttempts    = "TAPES_MAX_ATTEMPTS"
	EnvInitialDelayMS = "TAPES_INITIAL_DELAY_MS"
	EnvMaxDelayMS     = "TAPES_MAX_DELAY_MS"
	EnvFailover       = "TAPES_FAILOVER"
	EnvSessionID      = "TAPES_SESSION_ID"
	EnvApp            = "TAPES_APP"
	EnvEnvironment    = "TAPES_ENV"
	EnvListen         = "TAPES_LISTEN"
	EnvNATSURL        = "TAPES_NATS_URL"
	EnvRateLimit      = "TAPES_RATE_LIMIT"
	EnvAPIKey         = "OPENAI_API_KEY"
)

const (
	DefaultProxyURL = "http://localhost:8080"
	DefaultProvider = "openai"
	DefaultApp      = "tapes-chat"
	DefaultListen   = ":3000"
)

// Headers the proxy uses to correlate recorded traffic.
const (
	HeaderSession     = "X-Tapes-Session"
	HeaderApp         = "X-Tapes-App"
	HeaderEnvironment = "X-Tapes-Env"
)

// ErrInvalidValue is returned when a variable is set to something that cannot be parsed.
var ErrInvalidValue = errors.New("invalid configuration value")

// Config is the resolved process configuration.
type Config struct {
	ProxyURL    string
	Provider    string
	Model       string
	UpstreamURL string
	APIKey      string
	Debug       bool
	Retry       proxyfetch.RetryPolicy
	Failover    bool
	SessionID   string
	App         string
	Environment string
	Listen      string

	// NATSURL, when set, publishes the session event feed of the HTTP server on NATS.
	NATSURL string

	// RateLimit is the number of chat requests per minute allowed from one client IP in
	// serve mode. Zero disables the limit.
	RateLimit int
}

// Load reads the given env files (.env when none are named) and then the process
// environment. Missing files are ignored.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup, which has the signature of os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg := Config{
		ProxyURL:    get(EnvProxyURL, DefaultProxyURL),
		Provider:    strings.ToLower(get(EnvProvider, DefaultProvider)),
		Model:       get(EnvModel, ""),
		UpstreamURL: get(EnvUpstreamURL, ""),
		APIKey:      get(EnvAPIKey, ""),
		SessionID:   get(EnvSessionID, ""),
		App:         get(EnvApp, DefaultApp),
		Environment: get(EnvEnvironment, ""),
		Listen:      get(EnvListen, DefaultListen),
		NATSURL:     get(EnvNATSURL, ""),
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.Must(uuid.NewV7()).String()
	}

	var err error
	if cfg.Debug, err = parseBool(EnvDebug, get(EnvDebug, "false")); err != nil {
		return Config{}, err
	}
	if cfg.Failover, err = parseBool(EnvFailover, get(EnvFailover, "false")); err != nil {
		return Config{}, err
	}

	defaults := proxyfetch.DefaultRetryPolicy()
	if cfg.Retry.MaxAttempts, err = parseInt(EnvMaxAttempts, get(EnvMaxAttempts, ""), defaults.MaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.Retry.MaxAttempts < 1 {
		return Config{}, fmt.Errorf("%w: %s must be at least 1", ErrInvalidValue, EnvMaxAttempts)
	}
	if cfg.RateLimit, err = parseInt(EnvRateLimit, get(EnvRateLimit, ""), 0); err != nil {
		return Config{}, err
	}
	if cfg.RateLimit < 0 {
		return Config{}, fmt.Errorf("%w: %s must not be negative", ErrInvalidValue, EnvRateLimit)
	}
	if cfg.Retry.InitialDelay, err = parseMillis(EnvInitialDelayMS, get(EnvInitialDelayMS, ""), defaults.InitialDelay); err != nil {
		return Config{}, err
	}
	if cfg.Retry.MaxDelay, err = parseMillis(EnvMaxDelayMS, get(EnvMaxDelayMS, ""), defaults.MaxDelay); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ExtraHeaders returns the correlation headers sent to the proxy. Empty values are omitted.
func (c Config) ExtraHeaders() map[string]string {
	h := make(map[string]string, 3)
	for k, v := range map[string]string{
		HeaderSession:     c.SessionID,
		HeaderApp:         c.App,
		HeaderEnvironment: c.Environment,
	} {
		if v != "" {
			h[k] = v
		}
	}
	return h
}

// FetchConfig translates c into the configuration of a proxy fetcher.
func (c Config) FetchConfig() proxyfetch.Config {
	return proxyfetch.Config{
		ProxyTarget:  c.ProxyURL,
		ExtraHeaders: c.ExtraHeaders(),
		Debug:        c.Debug,
		Retry:        c.Retry,
		Failover:     c.Failover,
	}
}

func parseBool(key, value string) (bool, error) {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidValue, key, value)
}

func parseInt(key, value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalidValue, key, value, err)
	}
	return n, nil
}

func parseMillis(key, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	n, err := parseInt(key, value, 0)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidValue, key)
	}
	return time.Duration(n) * time.Millisecond, nil
}
