package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"

	"github.com/joho/godotenv"
)

type authConfig struct {
	secret       string
	tokenTTL     time.Duration
	issuer       string
	audience     string
	apiKeys      []string
	apiKeyHeader string
}

type config struct {
	listenAddr  string
	upstreamURL string
	trustXFF    bool
	auth        authConfig

	storeBackend   string
	redisAddr      string
	redisPassword  string
	redisDB        int
	memcacheAddrs  []string
	storeTimeout   time.Duration
	clockSyncEvery time.Duration

	rate domain.RateLimitConfig

	bidRPS            int
	bidGlobalMax      int
	bidReconcileEvery time.Duration

	endpointLimits []application.EndpointRule

	concurrencyMax     int
	concurrencyTimeout time.Duration
	hideNotFound       bool

	statsRedisEnabled bool
	statsPrefix       string
	statsTTL          time.Duration
	statsBucket       string
	statsTrackKeys    bool
	statsQueue        int
	metricsPath       string

	logLevel  string
	logFormat string
}

// envReader lê variáveis acumulando erros de parse, para reportar tudo de uma vez.
type envReader struct {
	errs []error
}

func loadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func (e *envReader) fail(k string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s: %w", k, err))
}

func (e *envReader) stringDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func (e *envReader) intDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, err)
		return def
	}
	return i
}

func (e *envReader) boolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(k, err)
		return def
	}
	return b
}

func (e *envReader) durationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, err)
		return def
	}
	return d
}

func (e *envReader) list(k string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(k), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func readAuthConfig(e *envReader) authConfig {
	a := authConfig{
		secret:       os.Getenv("AUTH_JWT_SECRET"),
		tokenTTL:     e.durationDefault("AUTH_TOKEN_TTL", application.DefaultTokenTTL),
		issuer:       e.stringDefault("AUTH_ISSUER", ""),
		audience:     e.stringDefault("AUTH_AUDIENCE", ""),
		apiKeys:      e.list("AUTH_API_KEYS"),
		apiKeyHeader: e.stringDefault("API_KEY_HEADER", admission.DefaultAPIKeyHeader),
	}
	if a.secret == "" {
		e.errs = append(e.errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if a.tokenTTL <= 0 {
		e.errs = append(e.errs, errors.New("AUTH_TOKEN_TTL must be > 0"))
	}
	return a
}

func (a authConfig) identity() application.IdentityConfig {
	return application.IdentityConfig{
		Secret:   a.secret,
		Issuer:   a.issuer,
		Audience: a.audience,
		TokenTTL: a.tokenTTL,
		APIKeys:  a.apiKeys,
	}
}

func readConfig() (config, error) {
	e := &envReader{}
	cfg := config{}
	cfg.listenAddr = e.stringDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = e.stringDefault("UPSTREAM_URL", "")
	cfg.trustXFF = e.boolDefault("TRUST_XFF", false)
	cfg.auth = readAuthConfig(e)

	cfg.storeBackend = strings.ToLower(e.stringDefault("STORE_BACKEND", "redis"))
	cfg.redisAddr = e.stringDefault("REDIS_ADDR", "")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = e.intDefault("REDIS_DB", 0)
	cfg.memcacheAddrs = e.list("MEMCACHE_ADDRS")
	cfg.storeTimeout = e.durationDefault("STORE_TIMEOUT", application.DefaultStoreTimeout)
	cfg.clockSyncEvery = e.durationDefault("CLOCK_SYNC_EVERY", 30*time.Second)

	cfg.rate = domain.RateLimitConfig{
		Window:         e.durationDefault("RATE_WINDOW", 15*time.Minute),
		Max:            e.intDefault("RATE_MAX", 100),
		SkipSuccessful: e.boolDefault("RATE_SKIP_SUCCESSFUL", false),
		SkipFailed:     e.boolDefault("RATE_SKIP_FAILED", false),
		StatusCode:     e.intDefault("RATE_STATUS", http.StatusTooManyRequests),
		Message:        e.stringDefault("RATE_MESSAGE", admission.DefaultRateMessage),
	}

	cfg.bidRPS = e.intDefault("BID_RATE_RPS", 1000)
	cfg.bidGlobalMax = e.intDefault("BID_GLOBAL_MAX", 0)
	cfg.bidReconcileEvery = e.durationDefault("BID_RECONCILE_EVERY", time.Second)

	if raw := os.Getenv("ENDPOINT_LIMITS"); raw != "" {
		rules, err := parseEndpointLimits(raw)
		if err != nil {
			e.fail("ENDPOINT_LIMITS", err)
		}
		cfg.endpointLimits = rules
	}

	cfg.concurrencyMax = e.intDefault("CONCURRENCY_MAX", 0)
	// < 0: sem vaga livre, rejeita na hora (orçamento do lance)
	cfg.concurrencyTimeout = e.durationDefault("CONCURRENCY_TIMEOUT", time.Duration(-1))
	cfg.hideNotFound = e.boolDefault("HIDE_NOT_FOUND", false)

	cfg.statsRedisEnabled = e.boolDefault("STATS_REDIS_ENABLED", false)
	cfg.statsPrefix = e.stringDefault("STATS_PREFIX", "admission:stats")
	cfg.statsTTL = e.durationDefault("STATS_TTL", 24*time.Hour)
	cfg.statsBucket = e.stringDefault("STATS_BUCKET", "minute")
	cfg.statsTrackKeys = e.boolDefault("STATS_TRACK_KEYS", false)
	cfg.statsQueue = e.intDefault("STATS_QUEUE", 1024)
	cfg.metricsPath = e.stringDefault("METRICS_PATH", "/metrics")

	cfg.logLevel = e.stringDefault("LOG_LEVEL", "info")
	cfg.logFormat = e.stringDefault("LOG_FORMAT", "json")

	e.errs = append(e.errs, cfg.validate()...)
	if err := errors.Join(e.errs...); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() []error {
	var errs []error
	if c.upstreamURL == "" {
		errs = append(errs, errors.New("UPSTREAM_URL is required"))
	}
	switch c.storeBackend {
	case "redis":
		if c.redisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when STORE_BACKEND=redis"))
		}
	case "memcache":
		if len(c.memcacheAddrs) == 0 {
			errs = append(errs, errors.New("MEMCACHE_ADDRS is required when STORE_BACKEND=memcache"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be redis, memcache or memory, got %q", c.storeBackend))
	}
	if c.statsRedisEnabled && c.redisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when STATS_REDIS_ENABLED=true"))
	}
	if err := c.rate.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("RATE_WINDOW/RATE_MAX: %w", err))
	}
	if c.rate.StatusCode < 400 || c.rate.StatusCode > 599 {
		errs = append(errs, errors.New("RATE_STATUS must be a 4xx or 5xx code"))
	}
	if c.bidRPS <= 0 {
		errs = append(errs, errors.New("BID_RATE_RPS must be > 0"))
	}
	if c.bidGlobalMax < 0 {
		errs = append(errs, errors.New("BID_GLOBAL_MAX must be >= 0"))
	}
	if c.concurrencyMax < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	if !strings.HasPrefix(c.metricsPath, "/") {
		errs = append(errs, errors.New("METRICS_PATH must start with /"))
	}
	return errs
}

// parseEndpointLimits lê "nome=padrão:janela:max;..." (ex: "bid=/api/bid:1s:1000;podcasts=/api/podcasts*:1m:60").
// Janela e max são os dois últimos campos; o padrão pode conter ':'.
func parseEndpointLimits(raw string) ([]application.EndpointRule, error) {
	var rules []application.EndpointRule
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rest, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("entry %q: expected name=pattern:window:max", entry)
		}

		i := strings.LastIndex(rest, ":")
		if i < 0 {
			return nil, fmt.Errorf("entry %q: missing max", entry)
		}
		limit, err := strconv.Atoi(rest[i+1:])
		if err != nil {
			return nil, fmt.Errorf("entry %q: max: %w", entry, err)
		}
		rest = rest[:i]

		j := strings.LastIndex(rest, ":")
		if j < 0 {
			return nil, fmt.Errorf("entry %q: missing window", entry)
		}
		window, err := time.ParseDuration(rest[j+1:])
		if err != nil {
			return nil, fmt.Errorf("entry %q: window: %w", entry, err)
		}

		rules = append(rules, application.EndpointRule{
			Name:    strings.TrimSpace(name),
			Pattern: rest[:j],
			Config:  domain.RateLimitConfig{Window: window, Max: limit},
		})
	}
	return rules, nil
}

// logSafe devolve a config sem segredos, para log de startup.
func (c config) logSafe() map[string]any {
	return map[string]any{
		"listenAddr":      c.listenAddr,
		"upstream":        c.upstreamURL,
		"storeBackend":    c.storeBackend,
		"redisAddr":       c.redisAddr,
		"memcacheAddrs":   c.memcacheAddrs,
		"storeTimeout":    c.storeTimeout.String(),
		"rateWindow":      c.rate.Window.String(),
		"rateMax":         c.rate.Max,
		"bidRPS":          c.bidRPS,
		"bidGlobalMax":    c.bidGlobalMax,
		"endpointRules":   len(c.endpointLimits),
		"apiKeys":         len(c.auth.apiKeys),
		"jwtSecret":       mask(c.auth.secret),
		"redisPassword":   mask(c.redisPassword),
		"concurrencyMax":  c.concurrencyMax,
		"hideNotFound":    c.hideNotFound,
		"statsRedis":      c.statsRedisEnabled,
		"statsQueue":      c.statsQueue,
		"trustXFF":        c.trustXFF,
		"tokenTTL":        c.auth.tokenTTL.String(),
		"concurrencyWait": c.concurrencyTimeout.String(),
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
