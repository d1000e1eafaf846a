package config

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the backoffice
// client and the reference API server.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// LogFile sends logs to a rotated file instead of stderr.
	LogFile string `env:"LOG_FILE"`

	// StateDir holds the session database. Defaults to ~/.backoffice.
	StateDir string `env:"STATE_DIR"`

	// Client settings.
	BackendURL         string `env:"BACKEND_URL"`
	CallbackListenAddr string `env:"CALLBACK_LISTEN_ADDR" envDefault:"127.0.0.1:8765"`
	CallbackPath       string `env:"CALLBACK_PATH" envDefault:"/oauth/callback"`

	// AppOrigin is the scheme+host+port the relay page is served from.
	// Derived from CallbackListenAddr when empty.
	AppOrigin string `env:"APP_ORIGIN"`

	PopupPollInterval time.Duration `env:"POPUP_POLL_INTERVAL" envDefault:"1s"`
	RelayCloseDelay   time.Duration `env:"RELAY_CLOSE_DELAY" envDefault:"200ms"`

	// FlowTimeout abandons a sign-in that never completes. Zero disables it.
	FlowTimeout time.Duration `env:"FLOW_TIMEOUT" envDefault:"5m"`
	OpenBrowser bool          `env:"OPEN_BROWSER" envDefault:"true"`

	// Reference API server settings.
	APIListenAddr      string        `env:"API_LISTEN_ADDR" envDefault:":8080"`
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	GoogleAuthURL      string        `env:"GOOGLE_AUTH_URL"`
	GoogleTokenURL     string        `env:"GOOGLE_TOKEN_URL"`
	GoogleUserInfoURL  string        `env:"GOOGLE_USERINFO_URL" envDefault:"https://www.googleapis.com/oauth2/v3/userinfo"`
	OAuthRedirectURL   string        `env:"OAUTH_REDIRECT_URL"`
	JWTSecret          string        `env:"JWT_SECRET"`
	TokenTTL           time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
}

const (
	// jwtSecretMinLen is the minimum length for the HS256 signing secret.
	jwtSecretMinLen = 32

	// minPollInterval keeps the liveness monitor from spinning.
	minPollInterval = 10 * time.Millisecond
)

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
// Mode-specific checks live in ValidateClient and ValidateAPI.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.StateDir == "" {
		dir, err := DefaultStateDir()
		if err != nil {
			return nil, err
		}

		cfg.StateDir = dir
	}

	absDir, err := filepath.Abs(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("resolving state dir to absolute path: %w", err)
	}

	cfg.StateDir = absDir

	if cfg.AppOrigin == "" {
		origin, err := originFromListenAddr(cfg.CallbackListenAddr)
		if err != nil {
			return nil, fmt.Errorf("deriving app origin: %w", err)
		}

		cfg.AppOrigin = origin
	}

	cfg.AppOrigin = strings.TrimRight(cfg.AppOrigin, "/")

	return cfg, nil
}

// ValidateClient checks the settings needed by login, serve and whoami.
func (c *Config) ValidateClient() error {
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}

	if err := requireAbsoluteURL("BACKEND_URL", c.BackendURL); err != nil {
		return err
	}

	if err := requireAbsoluteURL("APP_ORIGIN", c.AppOrigin); err != nil {
		return err
	}

	if !strings.HasPrefix(c.CallbackPath, "/") {
		return fmt.Errorf("CALLBACK_PATH must start with '/'")
	}

	if c.PopupPollInterval < minPollInterval {
		return fmt.Errorf("POPUP_POLL_INTERVAL must be at least %s", minPollInterval)
	}

	if c.RelayCloseDelay < 0 {
		return fmt.Errorf("RELAY_CLOSE_DELAY must not be negative")
	}

	if c.FlowTimeout < 0 {
		return fmt.Errorf("FLOW_TIMEOUT must not be negative")
	}

	return nil
}

// ValidateAPI checks the settings needed by the reference API server.
func (c *Config) ValidateAPI() error {
	if c.GoogleClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}

	if c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required")
	}

	if c.OAuthRedirectURL == "" {
		return fmt.Errorf("OAUTH_REDIRECT_URL is required")
	}

	if err := requireAbsoluteURL("OAUTH_REDIRECT_URL", c.OAuthRedirectURL); err != nil {
		return err
	}

	if len(c.JWTSecret) < jwtSecretMinLen {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", jwtSecretMinLen)
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}

	return nil
}

// CallbackURL is the absolute URL of the relay page.
func (c *Config) CallbackURL() string {
	return c.AppOrigin + c.CallbackPath
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SessionPath returns the path of the client session database.
func (c *Config) SessionPath() string {
	return filepath.Join(c.StateDir, "session.db")
}

// APIStatePath returns the path of the reference API user database.
func (c *Config) APIStatePath() string {
	return filepath.Join(c.StateDir, "api.db")
}

// DefaultStateDir returns ~/.backoffice.
func DefaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".backoffice"), nil
}

// originFromListenAddr turns "127.0.0.1:8765" or ":8765" into an http
// origin. An empty host maps to localhost.
func originFromListenAddr(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}

	return "http://" + net.JoinHostPort(host, port), nil
}

func requireAbsoluteURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", name)
	}

	return nil
}
