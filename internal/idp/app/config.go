package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseFile   string // Optional: path to SQLite database file (default: ./fedid.db)
	BootstrapToken string // Optional: enables POST /v1/bootstrap when set

	// Fallback token validities, in seconds, for clients without their own.
	DefaultAccessValiditySeconds  int // Optional (default: 3600)
	DefaultRefreshValiditySeconds int // Optional (default: 2592000, 30 days)

	// Relying-party side: remote introspection authority.
	IntrospectionEndpoint     string        // Optional: URL of the remote introspection endpoint
	IntrospectionClientID     string        // Optional: this service's client id at the authority
	IntrospectionClientSecret string        // Optional: matching client secret
	RemoteTimeout             time.Duration // Timeout for introspection/discovery calls (default: 10s)

	// Issuer discovery policy.
	IssuerAllowlist     []string      // Optional: if non-empty, only these issuers resolve
	IssuerDenylist      []string      // Optional: these issuers never resolve
	IdentifierParameter string        // Query parameter carrying the identifier (default: identifier)
	LoginPageURL        string        // Redirect target when no identifier is supplied
	IssuerCacheTTL      time.Duration // How long resolved issuers are reused (default: 0, forever)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired-token sweep interval (default: 1h)
}

func LoadConfig() Config {
	return Config{
		DatabaseFile:   getEnvOrDefault("FEDID_DATABASE_FILE", "fedid.db"),
		BootstrapToken: os.Getenv("FEDID_BOOTSTRAP_TOKEN"),

		DefaultAccessValiditySeconds:  getEnvIntOrDefault("FEDID_ACCESS_VALIDITY_SECONDS", 3600),
		DefaultRefreshValiditySeconds: getEnvIntOrDefault("FEDID_REFRESH_VALIDITY_SECONDS", 30*24*3600),

		IntrospectionEndpoint:     os.Getenv("FEDID_INTROSPECTION_ENDPOINT"),
		IntrospectionClientID:     os.Getenv("FEDID_INTROSPECTION_CLIENT_ID"),
		IntrospectionClientSecret: os.Getenv("FEDID_INTROSPECTION_CLIENT_SECRET"),
		RemoteTimeout:             getEnvDurationOrDefault("FEDID_REMOTE_TIMEOUT", 10*time.Second),

		IssuerAllowlist:     getEnvListOrDefault("FEDID_ISSUER_ALLOWLIST", nil),
		IssuerDenylist:      getEnvListOrDefault("FEDID_ISSUER_DENYLIST", nil),
		IdentifierParameter: getEnvOrDefault("FEDID_IDENTIFIER_PARAMETER", "identifier"),
		LoginPageURL:        os.Getenv("FEDID_LOGIN_PAGE_URL"),
		IssuerCacheTTL:      getEnvDurationOrDefault("FEDID_ISSUER_CACHE_TTL", 0),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}

// getEnvListOrDefault reads a comma-separated list, dropping empty entries.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
