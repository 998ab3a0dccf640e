package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-book2pdf/internal/fileutil"
	"github.com/alnah/go-book2pdf/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrInvalidValue    = errors.New("invalid config value")
)

// Field length limits.
const (
	MaxEmailLength     = 254  // RFC 5321
	MaxURLLength       = 2048 // Browser limit
	MaxAPIKeyLength    = 512
	MaxNamespaceLength = 100
	MaxPathLength      = 4096
)

// MaxWorkers mirrors the render pool's hard ceiling.
const MaxWorkers = 10

// Defaults.
const (
	DefaultWebURL           = "https://libra.ibuk.pl"
	DefaultSocketURL        = "https://libra23.ibuk.pl/socket.io/"
	DefaultNamespace        = "/books"
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultPageTimeout      = 30 * time.Second
	DefaultPaperSize        = "a4"
	DefaultFormat           = "pdf"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// Config holds all configuration for downloading and converting books.
// The account password is never read from a file.
type Config struct {
	Remote   RemoteConfig   `yaml:"remote"`
	Auth     AuthConfig     `yaml:"auth"`
	Download DownloadConfig `yaml:"download"`
	Render   RenderConfig   `yaml:"render"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// RemoteConfig locates the reader's web front end and its Socket.IO server.
type RemoteConfig struct {
	WebURL           string `yaml:"webURL"`
	SocketURL        string `yaml:"socketURL"`
	Namespace        string `yaml:"namespace"`
	HandshakeTimeout string `yaml:"handshakeTimeout"` // Go duration, e.g. "30s"
}

// AuthConfig holds account identity. Without email or API key the session
// is anonymous.
type AuthConfig struct {
	Email  string `yaml:"email"`
	APIKey string `yaml:"apiKey"`
}

// DownloadConfig controls the page loop.
type DownloadConfig struct {
	PageCount int     `yaml:"pageCount"` // 0 = use the book's declared count
	RateLimit float64 `yaml:"rateLimit"` // pages per second, 0 = unpaced
	NoCover   bool    `yaml:"noCover"`
}

// RenderConfig controls conversion.
type RenderConfig struct {
	Workers    int    `yaml:"workers"`   // 1-10, 0 = 10
	Timeout    string `yaml:"timeout"`   // per-page navigation, Go duration
	PaperSize  string `yaml:"paperSize"` // "a4", "letter"
	Format     string `yaml:"format"`    // "pdf", "html"
	AssetsPath string `yaml:"assetsPath"`
}

// OutputConfig defines output destination options.
type OutputConfig struct {
	Dir  string `yaml:"dir"`  // Empty = current directory
	Keep bool   `yaml:"keep"` // Keep downloaded pages after conversion
}

// LogConfig defines logging options.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MetricsConfig defines the Prometheus textfile sink.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // Empty = disabled
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			WebURL:           DefaultWebURL,
			SocketURL:        DefaultSocketURL,
			Namespace:        DefaultNamespace,
			HandshakeTimeout: DefaultHandshakeTimeout.String(),
		},
		Render: RenderConfig{
			Workers:   MaxWorkers,
			Timeout:   DefaultPageTimeout.String(),
			PaperSize: DefaultPaperSize,
			Format:    DefaultFormat,
		},
		Log: LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// Validate checks lengths and value ranges. Called by LoadConfig, but
// available for configs built by hand.
func (c *Config) Validate() error {
	for _, f := range []struct {
		name, value string
		max         int
	}{
		{"remote.webURL", c.Remote.WebURL, MaxURLLength},
		{"remote.socketURL", c.Remote.SocketURL, MaxURLLength},
		{"remote.namespace", c.Remote.Namespace, MaxNamespaceLength},
		{"auth.email", c.Auth.Email, MaxEmailLength},
		{"auth.apiKey", c.Auth.APIKey, MaxAPIKeyLength},
		{"render.assetsPath", c.Render.AssetsPath, MaxPathLength},
		{"output.dir", c.Output.Dir, MaxPathLength},
		{"metrics.textfile", c.Metrics.Textfile, MaxPathLength},
	} {
		if err := validateFieldLength(f.name, f.value, f.max); err != nil {
			return err
		}
	}

	if err := validateURL("remote.webURL", c.Remote.WebURL); err != nil {
		return err
	}
	if err := validateURL("remote.socketURL", c.Remote.SocketURL); err != nil {
		return err
	}
	if ns := c.Remote.Namespace; ns != "" && !strings.HasPrefix(ns, "/") {
		return fmt.Errorf("%w: remote.namespace must start with /, got %q", ErrInvalidValue, ns)
	}
	if _, err := parseDuration("remote.handshakeTimeout", c.Remote.HandshakeTimeout); err != nil {
		return err
	}

	if c.Download.PageCount < 0 {
		return fmt.Errorf("%w: download.pageCount must not be negative, got %d", ErrInvalidValue, c.Download.PageCount)
	}
	if c.Download.RateLimit < 0 {
		return fmt.Errorf("%w: download.rateLimit must not be negative, got %.2f", ErrInvalidValue, c.Download.RateLimit)
	}

	if c.Render.Workers < 0 || c.Render.Workers > MaxWorkers {
		return fmt.Errorf("%w: render.workers must be between 1 and %d, got %d", ErrInvalidValue, MaxWorkers, c.Render.Workers)
	}
	if _, err := parseDuration("render.timeout", c.Render.Timeout); err != nil {
		return err
	}
	if err := validateChoice("render.paperSize", c.Render.PaperSize, "a4", "letter"); err != nil {
		return err
	}
	if err := validateChoice("render.format", c.Render.Format, "pdf", "html"); err != nil {
		return err
	}

	if err := validateChoice("log.level", c.Log.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	return validateChoice("log.format", c.Log.Format, "text", "json")
}

// HandshakeTimeoutDuration returns the parsed handshake timeout or the default.
func (r RemoteConfig) HandshakeTimeoutDuration() time.Duration {
	d, err := parseDuration("", r.HandshakeTimeout)
	if err != nil || d == 0 {
		return DefaultHandshakeTimeout
	}
	return d
}

// PageTimeout returns the parsed per-page timeout or the default.
func (r RenderConfig) PageTimeout() time.Duration {
	d, err := parseDuration("", r.Timeout)
	if err != nil || d == 0 {
		return DefaultPageTimeout
	}
	return d
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s must be an http(s) URL, got %q", ErrInvalidValue, field, raw)
	}
	return nil
}

func validateChoice(field, value string, allowed ...string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %s, got %q", ErrInvalidValue, field, strings.Join(allowed, ", "), value)
}

// parseDuration accepts an empty string as zero.
func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s must be a positive duration like 30s, got %q", ErrInvalidValue, field, s)
	}
	return d, nil
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Values missing from the file keep their defaults.
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	configPath := nameOrPath
	if !fileutil.IsFilePath(nameOrPath) {
		var err error
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SearchPaths returns the files LoadConfig tries for a config name, in
// order: ./name.yaml, ./name.yml, then the same under
// <UserConfigDir>/go-book2pdf/.
func SearchPaths(name string) []string {
	extensions := []string{".yaml", ".yml"}
	paths := make([]string, 0, len(extensions)*2)
	for _, ext := range extensions {
		paths = append(paths, name+ext)
	}
	if userConfigDir, err := os.UserConfigDir(); err == nil {
		for _, ext := range extensions {
			paths = append(paths, filepath.Join(userConfigDir, "go-book2pdf", name+ext))
		}
	}
	return paths
}

// resolveConfigPath returns the first existing search path for name.
func resolveConfigPath(name string) (string, error) {
	paths := SearchPaths(name)
	for _, p := range paths {
		if fileutil.FileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(paths, ", "))
}
