// Package config loads go-cloak settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	cloak "github.com/goliatone/go-cloak"
	"github.com/joho/godotenv"
)

var _ cloak.Config = AppConfig{}

// AppConfig holds every setting of the cloak service and CLI.
type AppConfig struct {
	SecretKey        string        `env:"SECRET_KEY,required"`
	BaseURL          string        `env:"BASE_URL"`
	RoutePrefix      string        `env:"ROUTE_PREFIX"       envDefault:"/cloak"`
	LoginRedirectURL string        `env:"LOGIN_REDIRECT_URL" envDefault:"/"`
	// LoginLinkMaxAge bounds how long a login link verifies. Links are
	// bearer credentials; raising it past the 60 second default widens
	// the window in which an intercepted link can be used.
	LoginLinkMaxAge  time.Duration `env:"LOGIN_LINK_MAX_AGE" envDefault:"60s"`
	AuthBackend      string        `env:"AUTH_BACKEND"       envDefault:"cloak.SessionAuthenticator"`
	DatabaseDSN      string        `env:"DATABASE_DSN"       envDefault:"file:cloak.db?cache=shared"`
	RedisURL         string        `env:"REDIS_URL"`
	ListenAddr       string        `env:"LISTEN_ADDR"        envDefault:":8080"`
	SingleUseLinks   bool          `env:"SINGLE_USE_LINKS"   envDefault:"false"`
}

// Load reads an optional .env file and then the CLOAK_ prefixed
// environment.
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	return Parse(env.Options{Prefix: "CLOAK_"})
}

// Parse reads the environment with opts and validates the result.
func Parse(opts env.Options) (AppConfig, error) {
	var cfg AppConfig
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Sanitize trims values and normalizes the route prefix.
func (c *AppConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.RoutePrefix = strings.TrimSpace(c.RoutePrefix)
	if c.RoutePrefix != "" && !strings.HasPrefix(c.RoutePrefix, "/") {
		c.RoutePrefix = "/" + c.RoutePrefix
	}
	c.RoutePrefix = strings.TrimRight(c.RoutePrefix, "/")
	c.RedisURL = strings.TrimSpace(c.RedisURL)
}

// Validate will run validation rules
func (c AppConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SecretKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.BaseURL, is.URL),
		validation.Field(&c.LoginRedirectURL, validation.Required),
		validation.Field(&c.LoginLinkMaxAge, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.DatabaseDSN, validation.Required),
		validation.Field(&c.ListenAddr, validation.Required),
	)
}

func (c AppConfig) GetSigningKey() string {
	return c.SecretKey
}

func (c AppConfig) GetBaseURL() string {
	return c.BaseURL
}

func (c AppConfig) GetRoutePrefix() string {
	return c.RoutePrefix
}

func (c AppConfig) GetLoginRedirectURL() string {
	return c.LoginRedirectURL
}

func (c AppConfig) GetLoginLinkMaxAge() time.Duration {
	return c.LoginLinkMaxAge
}

func (c AppConfig) GetAuthBackend() string {
	return c.AuthBackend
}
