// Package csrf provides double-submit-cookie CSRF protection with
// cryptographically bound, time-limited (cookie, token) pairs.
package csrf

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
)

// Defaults shared by server-side extraction and client-side submission.
const (
	// DefaultCookieName carries the cookie half of the pair.
	DefaultCookieName = "csrf"
	// DefaultFormField names the hidden input / form field carrying the
	// token half, both in injected markup and in incoming request bodies.
	DefaultFormField = "csrf-token"
	// DefaultHeaderName is the request header alternative to the form field.
	DefaultHeaderName = "X-CSRF-Token"
	// DefaultTokenTTL is how long a generated pair stays valid.
	DefaultTokenTTL = 12 * time.Hour
	// DefaultMaxBufferSize is the largest response body rewritten eagerly in
	// memory; longer or unknown-length bodies are streamed instead.
	DefaultMaxBufferSize = 16 << 10
)

// Exception reroutes violating requests matching Source to Target instead of
// the default violation target. Source and Target are path templates; <name>
// captures bound by Source are substituted into Target. Method is the verb
// the rerouted request is dispatched with. Exceptions are tried in order and
// the first matching Source wins; order more specific patterns first.
type Exception struct {
	Source string
	Target string
	Method string
}

type Config struct {
	// Secret is the 32-byte symmetric key credentials are bound to. Leave
	// empty only when loading via LoadConfig, which falls back to a random
	// process-lifetime key.
	Secret []byte

	// TokenTTL bounds the lifetime of a (cookie, token) pair.
	TokenTTL time.Duration

	// Cookie
	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// Token transport
	HeaderName string // e.g.: "X-CSRF-Token"
	FormField  string // e.g.: "csrf-token"

	// Violation handling: requests failing verification are rerouted to the
	// first matching Exception, or to DefaultTarget (which may reference
	// <uri> to receive the percent-encoded original URI) with
	// DefaultTargetMethod.
	DefaultTarget       string
	DefaultTargetMethod string
	Exceptions          []Exception

	// Auto-insert: rewriting of outgoing HTML responses.
	DisableAutoInsert bool
	SkipInsertPrefix  []string
	MaxBufferSize     int64

	// Logger receives the random-key warning and violation reroutes at
	// debug level. Defaults to slog.Default.
	Logger *slog.Logger
}

// envConfig mirrors the environment surface of LoadConfig.
type envConfig struct {
	SecretKey string        `env:"CSRF_SECRET_KEY"`
	TokenTTL  time.Duration `env:"CSRF_TOKEN_TTL" envDefault:"12h"`
}

// LoadConfig builds a Config from the environment. CSRF_SECRET_KEY must be
// the standard-base64 encoding of 32 bytes; when unset a random key is
// generated and a warning logged, meaning pairs lose validity across
// restarts.
func LoadConfig(logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	cfg := Config{TokenTTL: ec.TokenTTL, Logger: logger}
	if ec.SecretKey != "" {
		key, err := base64.StdEncoding.DecodeString(ec.SecretKey)
		if err != nil || len(key) != SecretSize {
			return Config{}, fmt.Errorf("%w: CSRF_SECRET_KEY must be base64 of %d bytes", ErrConfig, SecretSize)
		}
		cfg.Secret = key
		return cfg, nil
	}
	logger.Warn("no CSRF secret key configured, generating a random one; tokens will not survive a restart")
	cfg.Secret = randomSecret()
	return cfg, nil
}

func (cfg Config) withDefaults() Config {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.FormField == "" {
		cfg.FormField = DefaultFormField
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.DefaultTarget == "" {
		cfg.DefaultTarget = "/"
	}
	if cfg.DefaultTargetMethod == "" {
		cfg.DefaultTargetMethod = http.MethodGet
	}
	if cfg.MaxBufferSize <= 0 {
		cfg.MaxBufferSize = DefaultMaxBufferSize
	}
	// SameSite=Lax is the baseline for a double-submit cookie.
	if cfg.CookieSameSite == 0 {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}
