// Package config loads runtime configuration from the environment with
// defaults suitable for a single-node deployment. Flags on the serve command
// override individual fields.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend selects the storage backend implementation.
type Backend string

const (
	// BackendSQLite is the relational backend over a local SQLite file.
	BackendSQLite Backend = "sqlite"

	// BackendMemory is the in-process document-KV backend. Volatile;
	// intended for tests and ephemeral deployments.
	BackendMemory Backend = "memory"
)

// Config holds every tunable of the runtime.
type Config struct {
	// FQDN is the public host name actors advertise in their URLs.
	FQDN string

	// Proto is the URL scheme prefix, "https://" in production.
	Proto string

	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// Backend selects the storage backend.
	Backend Backend

	// DBPath is the SQLite database file path.
	DBPath string

	// UniqueCreator enforces at most one actor per creator value.
	UniqueCreator bool

	// ForceEmailAsCreator rewrites the creator to the lowercased email
	// property when one exists.
	ForceEmailAsCreator bool

	// IndexedProperties lists property names maintained in the reverse
	// lookup table.
	IndexedProperties []string

	// DevTest enables the /devtest endpoints and the passphrase token
	// grant. MUST be false in production.
	DevTest bool

	// BotToken authenticates POST /bot. Empty disables the endpoint.
	BotToken string

	// FanOutWorkers bounds concurrent outbound callback deliveries.
	FanOutWorkers int

	// MaxHighGranularityBytes is the payload threshold above which a
	// high-granularity callback is downgraded to URL-only.
	MaxHighGranularityBytes int

	// CompressionThresholdBytes is the payload size above which callbacks
	// to compression-capable peers are gzipped.
	CompressionThresholdBytes int

	// MaxPendingCallbacks bounds the per-subscription pending queue
	// before the processor answers 429.
	MaxPendingCallbacks int

	// GapTimeout is how long a sequence gap may persist before the
	// processor triggers a resync.
	GapTimeout time.Duration

	// CapabilityTTL bounds the peer capability cache.
	CapabilityTTL time.Duration

	// ConnectTimeout and ReadTimeout bound outbound peer HTTP calls.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// SynchronousFanOut serializes delivery inside the request handler
	// for serverless platforms that freeze workers after responding.
	SynchronousFanOut bool

	// OAuth upstream identity providers, keyed by provider name
	// ("google", "github").
	Providers map[string]ProviderConfig

	// StateSecret encrypts the OAuth2 authorize state blob.
	StateSecret string
}

// ProviderConfig holds upstream IdP credentials.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Proto:                     "https://",
		ListenAddr:                ":8080",
		Backend:                   BackendSQLite,
		DBPath:                    defaultDBPath(),
		IndexedProperties:         []string{"email", "oauthId", "externalUserId"},
		FanOutWorkers:             10,
		MaxHighGranularityBytes:   64 * 1024,
		CompressionThresholdBytes: 1024,
		MaxPendingCallbacks:       100,
		GapTimeout:                5 * time.Second,
		CapabilityTTL:             time.Hour,
		ConnectTimeout:            5 * time.Second,
		ReadTimeout:               20 * time.Second,
		Providers:                 make(map[string]ProviderConfig),
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "actingweb.db"
	}
	return home + "/.actingweb/actingweb.db"
}

// FromEnv loads configuration from environment variables on top of the
// defaults.
func FromEnv() *Config {
	cfg := Default()

	if v := os.Getenv("ACTINGWEB_FQDN"); v != "" {
		cfg.FQDN = v
	}
	if v := os.Getenv("ACTINGWEB_PROTO"); v != "" {
		cfg.Proto = v
	}
	if v := os.Getenv("ACTINGWEB_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_BACKEND"); v != "" {
		cfg.Backend = Backend(strings.ToLower(v))
	}
	if v := os.Getenv("ACTINGWEB_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ACTINGWEB_INDEXED_PROPERTIES"); v != "" {
		cfg.IndexedProperties = strings.Split(v, ",")
	}
	if v := os.Getenv("ACTINGWEB_BOT_TOKEN"); v != "" {
		cfg.BotToken = v
	}
	if v := os.Getenv("ACTINGWEB_STATE_SECRET"); v != "" {
		cfg.StateSecret = v
	}
	cfg.UniqueCreator = envBool("ACTINGWEB_UNIQUE_CREATOR", cfg.UniqueCreator)
	cfg.ForceEmailAsCreator = envBool(
		"ACTINGWEB_FORCE_EMAIL_AS_CREATOR", cfg.ForceEmailAsCreator,
	)
	cfg.DevTest = envBool("ACTINGWEB_DEVTEST", cfg.DevTest)
	cfg.SynchronousFanOut = envBool(
		"ACTINGWEB_SYNC_CALLBACKS", cfg.SynchronousFanOut,
	)
	cfg.FanOutWorkers = envInt("ACTINGWEB_FANOUT_WORKERS", cfg.FanOutWorkers)
	cfg.MaxPendingCallbacks = envInt(
		"ACTINGWEB_MAX_PENDING", cfg.MaxPendingCallbacks,
	)

	loadProvider(cfg, "google",
		"https://accounts.google.com/o/oauth2/v2/auth",
		"https://oauth2.googleapis.com/token",
		"https://openidconnect.googleapis.com/v1/userinfo",
		[]string{"openid", "email", "profile"},
	)
	loadProvider(cfg, "github",
		"https://github.com/login/oauth/authorize",
		"https://github.com/login/oauth/access_token",
		"https://api.github.com/user",
		[]string{"user:email"},
	)

	return cfg
}

// loadProvider registers an upstream IdP when its client credentials are
// present in the environment.
func loadProvider(cfg *Config, name, authURL, tokenURL, userInfoURL string,
	scopes []string) {

	prefix := "ACTINGWEB_OAUTH_" + strings.ToUpper(name)
	clientID := os.Getenv(prefix + "_CLIENT_ID")
	if clientID == "" {
		return
	}

	cfg.Providers[name] = ProviderConfig{
		ClientID:     clientID,
		ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
		AuthURL:      authURL,
		TokenURL:     tokenURL,
		UserInfoURL:  userInfoURL,
		Scopes:       scopes,
	}
}

// ActorRoot returns the public URL of an actor.
func (c *Config) ActorRoot(actorID string) string {
	return c.Proto + c.FQDN + "/" + actorID
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
