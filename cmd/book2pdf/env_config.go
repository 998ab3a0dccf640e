package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/alnah/go-book2pdf/internal/config"
)

const envPrefix = "BOOK2PDF_"

// envConfig holds configuration from environment variables.
// Provides CI/CD-friendly overrides without requiring YAML files.
type envConfig struct {
	// Tier 1 - Session
	ConfigPath string // BOOK2PDF_CONFIG: config file name or path
	Email      string // BOOK2PDF_EMAIL: account email
	Password   string // BOOK2PDF_PASSWORD: account password, env-only
	APIKey     string // BOOK2PDF_API_KEY: skips login

	// Tier 2 - Remote and output
	WebURL    string // BOOK2PDF_WEB_URL: web front end
	SocketURL string // BOOK2PDF_SOCKET_URL: Engine.IO endpoint
	OutputDir string // BOOK2PDF_OUTPUT_DIR: where book directories go
	Format    string // BOOK2PDF_FORMAT: pdf, html

	// Tier 3 - Tuning
	Workers     int     // BOOK2PDF_WORKERS: concurrent browser tabs
	Timeout     string  // BOOK2PDF_TIMEOUT: per-page render timeout
	Rate        float64 // BOOK2PDF_RATE: pages per second
	LogLevel    string  // BOOK2PDF_LOG_LEVEL
	LogFormat   string  // BOOK2PDF_LOG_FORMAT
	MetricsFile string  // BOOK2PDF_METRICS_FILE
	Assets      string  // BOOK2PDF_ASSETS: asset override directory
}

// knownEnvVars lists valid BOOK2PDF_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	"BOOK2PDF_CONFIG":       true,
	"BOOK2PDF_EMAIL":        true,
	"BOOK2PDF_PASSWORD":     true,
	"BOOK2PDF_API_KEY":      true,
	"BOOK2PDF_WEB_URL":      true,
	"BOOK2PDF_SOCKET_URL":   true,
	"BOOK2PDF_OUTPUT_DIR":   true,
	"BOOK2PDF_FORMAT":       true,
	"BOOK2PDF_WORKERS":      true,
	"BOOK2PDF_TIMEOUT":      true,
	"BOOK2PDF_RATE":         true,
	"BOOK2PDF_LOG_LEVEL":    true,
	"BOOK2PDF_LOG_FORMAT":   true,
	"BOOK2PDF_METRICS_FILE": true,
	"BOOK2PDF_ASSETS":       true,
}

// loadEnvConfig reads configuration from environment variables. Numbers
// that do not parse are ignored.
func loadEnvConfig() *envConfig {
	cfg := &envConfig{
		ConfigPath:  os.Getenv("BOOK2PDF_CONFIG"),
		Email:       os.Getenv("BOOK2PDF_EMAIL"),
		Password:    os.Getenv("BOOK2PDF_PASSWORD"),
		APIKey:      os.Getenv("BOOK2PDF_API_KEY"),
		WebURL:      os.Getenv("BOOK2PDF_WEB_URL"),
		SocketURL:   os.Getenv("BOOK2PDF_SOCKET_URL"),
		OutputDir:   os.Getenv("BOOK2PDF_OUTPUT_DIR"),
		Format:      os.Getenv("BOOK2PDF_FORMAT"),
		Timeout:     os.Getenv("BOOK2PDF_TIMEOUT"),
		LogLevel:    os.Getenv("BOOK2PDF_LOG_LEVEL"),
		LogFormat:   os.Getenv("BOOK2PDF_LOG_FORMAT"),
		MetricsFile: os.Getenv("BOOK2PDF_METRICS_FILE"),
		Assets:      os.Getenv("BOOK2PDF_ASSETS"),
	}

	if workers := os.Getenv("BOOK2PDF_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			cfg.Workers = w
		}
	}
	if r := os.Getenv("BOOK2PDF_RATE"); r != "" {
		if v, err := strconv.ParseFloat(r, 64); err == nil && v > 0 {
			cfg.Rate = v
		}
	}

	return cfg
}

// warnUnknownEnvVars logs warnings for unrecognized BOOK2PDF_* variables.
func warnUnknownEnvVars(w io.Writer) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, envPrefix) {
			name := strings.SplitN(env, "=", 2)[0]
			if !knownEnvVars[name] {
				fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
			}
		}
	}
}

// applyEnvConfig applies environment values to cfg where the config holds
// no value of its own. A field still at its built-in default counts as
// unset, so the order is: CLI flags > env vars > config file > defaults.
// (CLI flags are applied later via mergeFlags.)
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	def := config.DefaultConfig()

	setUnset(&cfg.Auth.Email, env.Email, "")
	setUnset(&cfg.Auth.APIKey, env.APIKey, "")

	setUnset(&cfg.Remote.WebURL, env.WebURL, def.Remote.WebURL)
	setUnset(&cfg.Remote.SocketURL, env.SocketURL, def.Remote.SocketURL)
	setUnset(&cfg.Output.Dir, env.OutputDir, "")
	setUnset(&cfg.Render.Format, env.Format, def.Render.Format)

	if env.Workers > 0 && (cfg.Render.Workers == 0 || cfg.Render.Workers == def.Render.Workers) {
		cfg.Render.Workers = env.Workers
	}
	setUnset(&cfg.Render.Timeout, env.Timeout, def.Render.Timeout)
	if env.Rate > 0 && cfg.Download.RateLimit == 0 {
		cfg.Download.RateLimit = env.Rate
	}
	setUnset(&cfg.Log.Level, env.LogLevel, def.Log.Level)
	setUnset(&cfg.Log.Format, env.LogFormat, def.Log.Format)
	setUnset(&cfg.Metrics.Textfile, env.MetricsFile, "")
	setUnset(&cfg.Render.AssetsPath, env.Assets, "")
}

func setUnset(dst *string, env, def string) {
	if env != "" && (*dst == "" || *dst == def) {
		*dst = env
	}
}
