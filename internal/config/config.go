package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	RequestTimeout  time.Duration // per-request budget; feed loads need generous room

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// AT Protocol endpoints
	PDSBaseURL     string // authenticated XRPC base (ex: https://bsky.social/xrpc)
	PublicBaseURL  string // public AppView XRPC base
	Collection     string // bookmark record collection NSID
	RequestBudget  time.Duration // timeout for a single upstream XRPC call
	MaxAuthRetries int           // refresh-and-retry attempts on a 401

	// Session lifecycle
	SessionRefreshInterval time.Duration // background access token refresh cadence

	// Pinned feeds
	PinnedFile           string        // path to pinned-feeds.yaml (optional, empty = disabled)
	PinnedReloadInterval time.Duration // interval to reload the pinned feeds file

	// Feed cache
	FeedCacheMaxAge time.Duration // how long an assembled feed stays servable
	FeedCacheSize   int           // max cached feeds

	// Login rate limiting
	LoginRateLimit  int           // attempts per window per client IP
	LoginRateWindow time.Duration

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	TrustProxy bool // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("SKYMARK_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("SKYMARK_SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  mustDuration("SKYMARK_REQUEST_TIMEOUT", 60*time.Second),

		// Logging
		LogLevel:  getenv("SKYMARK_LOG_LEVEL", "info"),
		PrettyLog: mustBool("SKYMARK_PRETTY_LOG", true),

		// AT Protocol
		PDSBaseURL:     getenv("SKYMARK_PDS_BASE_URL", "https://bsky.social/xrpc"),
		PublicBaseURL:  getenv("SKYMARK_PUBLIC_BASE_URL", "https://public.api.bsky.app/xrpc"),
		Collection:     getenv("SKYMARK_COLLECTION", "user.bookmark.feed.public"),
		RequestBudget:  mustDuration("SKYMARK_XRPC_TIMEOUT", 30*time.Second),
		MaxAuthRetries: getenvInt("SKYMARK_MAX_AUTH_RETRIES", 3),

		// Session lifecycle
		SessionRefreshInterval: mustDuration("SKYMARK_SESSION_REFRESH_INTERVAL", 15*time.Minute),

		// Pinned feeds
		PinnedFile:           getenv("SKYMARK_PINNED_FILE", ""), // Optional, empty = pinned feeds disabled
		PinnedReloadInterval: mustDuration("SKYMARK_PINNED_RELOAD_INTERVAL", 1*time.Hour),

		// Feed cache
		FeedCacheMaxAge: mustDuration("SKYMARK_FEED_CACHE_MAX_AGE", 10*time.Minute),
		FeedCacheSize:   getenvInt("SKYMARK_FEED_CACHE_SIZE", 16),

		// Login rate limiting
		LoginRateLimit:  getenvInt("SKYMARK_LOGIN_RATE_LIMIT", 5),
		LoginRateWindow: mustDuration("SKYMARK_LOGIN_RATE_WINDOW", 1*time.Minute),

		// Redis settings
		RedisAddr:             requireEnv("SKYMARK_REDIS_ADDR"),
		RedisUser:             getenv("SKYMARK_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("SKYMARK_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("SKYMARK_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("SKYMARK_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		TrustProxy: mustBool("SKYMARK_TRUST_PROXY", true),
	}

	// Validate Redis password configuration
	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: SKYMARK_REDIS_PASSWORD is required when SKYMARK_REDIS_PASSWORD_REQUIRED=true")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
