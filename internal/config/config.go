// Package config loads the agent configuration from environment variables
// and an optional .env file.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the agent configuration. All variables carry the SCHULHUB_
// prefix; only the identity service URL is required.
type Config struct {
	// IdentityBaseURL is the base URL of the remote school identity service.
	IdentityBaseURL string `envconfig:"IDENTITY_BASE_URL" required:"true"`

	// ListenAddr is where the local API listens. Loopback by default; the
	// agent is a companion process, not a public server.
	ListenAddr string `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8080"`

	// DBPath is the SQLite database file holding session and vault data.
	DBPath string `envconfig:"DB_PATH" default:"schulhub.db"`

	// VaultPassphrase derives the vault encryption key. When empty the
	// vault is disabled and silent refresh will not work.
	VaultPassphrase string `envconfig:"VAULT_PASSPHRASE"`

	// TOTPSecret is the base32 shared secret for the presence check that
	// gates password reveal. When empty, reveal is refused.
	TOTPSecret string `envconfig:"TOTP_SECRET"`

	// HTTPTimeout applies per request to the identity service.
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`

	// SessionTTL is the validity window granted on login and refresh.
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"1h"`

	// ArticleBackendURL is the backend's article feed endpoint; optional.
	ArticleBackendURL string `envconfig:"ARTICLE_BACKEND_URL"`

	// WordpressFeedURL is the direct feed fallback; optional.
	WordpressFeedURL string `envconfig:"WORDPRESS_FEED_URL"`

	// ArticleCacheTTL controls how long a fetched feed is served from cache.
	ArticleCacheTTL time.Duration `envconfig:"ARTICLE_CACHE_TTL" default:"1h"`

	// FeedTimeout applies per request to the article feed.
	FeedTimeout time.Duration `envconfig:"FEED_TIMEOUT" default:"30s"`
}

// Load reads the configuration from environment variables, overlaid with a
// .env file when one exists.
func Load() (*Config, error) {
	// A missing .env file is fine; environment variables stand alone.
	_ = godotenv.Overload()

	cfg := new(Config)
	if err := envconfig.Process("schulhub", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
