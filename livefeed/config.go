package livefeed

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config controls how the SDK connects.
type Config struct {
	// PageURL is the puzzle page, e.g. https://hunt.example.org/puzzle/abc123/.
	// The event endpoint and the answer endpoint are derived from it.
	PageURL          string        `yaml:"page_url"`
	CSRFToken        string        `yaml:"csrf_token"`
	SessionCookie    string        `yaml:"session_cookie"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"` // 0 keeps an idle feed open
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	SubmitTimeout    time.Duration `yaml:"submit_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubmitTimeout:    30 * time.Second,
	}
}

// Validate checks that the page URL can be turned into an event endpoint.
func (c Config) Validate() error {
	if c.PageURL == "" {
		return NewError(ErrorInvalidConfig, "empty page URL")
	}
	if _, err := EventURL(c.PageURL); err != nil {
		return WrapError(ErrorInvalidConfig, "bad page URL", err)
	}
	return nil
}

// EventURL derives the event endpoint of a puzzle page: the scheme is upgraded to
// ws or wss and the page path is mounted under /ws.
func EventURL(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	u.Path = "/ws" + path
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// LoadConfigFile reads a YAML config file and applies environment overrides.
// A .env file in the working directory is loaded first when present.
func LoadConfigFile(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("LIVEFEED_PAGE_URL"); v != "" {
		cfg.PageURL = v
	}
	if v := os.Getenv("LIVEFEED_CSRF_TOKEN"); v != "" {
		cfg.CSRFToken = v
	}
	if v := os.Getenv("LIVEFEED_SESSION_COOKIE"); v != "" {
		cfg.SessionCookie = v
	}
	durations := map[string]*time.Duration{
		"LIVEFEED_HANDSHAKE_TIMEOUT": &cfg.HandshakeTimeout,
		"LIVEFEED_READ_TIMEOUT":      &cfg.ReadTimeout,
		"LIVEFEED_WRITE_TIMEOUT":     &cfg.WriteTimeout,
		"LIVEFEED_SUBMIT_TIMEOUT":    &cfg.SubmitTimeout,
	}
	for key, dst := range durations {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	return nil
}
