package main

import (
	"errors"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-book2pdf/internal/config"
)

// ErrUsage marks invalid invocations: unknown flags, missing arguments.
var ErrUsage = errors.New("invalid usage")

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config      string
	quiet       bool
	verbose     bool
	logLevel    string
	logFormat   string
	metricsFile string
}

// authFlags holds account flags. The password only comes from
// BOOK2PDF_PASSWORD.
type authFlags struct {
	email  string
	apiKey string
}

// downloadFlags holds page loop and post-download flags.
type downloadFlags struct {
	pageCount int
	rate      float64
	noCover   bool
	noConvert bool
	keep      bool
}

// renderFlags holds conversion flags.
type renderFlags struct {
	format  string
	workers int
	timeout string
	paper   string
	assets  string
}

// cliFlags holds every flag a command may register.
type cliFlags struct {
	common   commonFlags
	auth     authFlags
	download downloadFlags
	render   renderFlags
	output   string
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "log format: text, json")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
}

// addAuthFlags adds account flags to a FlagSet.
func addAuthFlags(fs *flag.FlagSet, f *authFlags) {
	fs.StringVarP(&f.email, "email", "u", "", "account email (password from BOOK2PDF_PASSWORD)")
	fs.StringVar(&f.apiKey, "api-key", "", "API key, skips login")
}

// addDownloadFlags adds download flags to a FlagSet.
func addDownloadFlags(fs *flag.FlagSet, f *downloadFlags) {
	fs.IntVar(&f.pageCount, "page-count", 0, "pages to download (0 = all)")
	fs.Float64Var(&f.rate, "rate", 0, "max pages per second (0 = unpaced)")
	fs.BoolVar(&f.noCover, "no-cover", false, "skip the cover image")
	fs.BoolVar(&f.noConvert, "no-convert", false, "download only")
	fs.BoolVar(&f.keep, "keep", false, "keep downloaded pages after conversion")
}

// addRenderFlags adds conversion flags to a FlagSet.
func addRenderFlags(fs *flag.FlagSet, f *renderFlags) {
	fs.StringVar(&f.format, "format", "", "output format: pdf, html")
	fs.IntVarP(&f.workers, "workers", "w", 0, fmt.Sprintf("concurrent browser tabs (1-%d)", config.MaxWorkers))
	fs.StringVarP(&f.timeout, "timeout", "t", "", "per-page render timeout (e.g., 30s, 1m)")
	fs.StringVar(&f.paper, "paper", "", "paper size: a4, letter")
	fs.StringVar(&f.assets, "assets", "", "directory overriding the HTML template and cover style")
}

// parseFlags parses args for cmd and returns the positional arguments.
// pflag.ErrHelp is returned unwrapped.
func parseFlags(cmd string, args []string, usage io.Writer) (*cliFlags, []string, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f := &cliFlags{}

	addCommonFlags(fs, &f.common)
	switch cmd {
	case cmdDownload, cmdConfig:
		fs.StringVarP(&f.output, "output", "o", "", "output file")
		addAuthFlags(fs, &f.auth)
		addDownloadFlags(fs, &f.download)
		addRenderFlags(fs, &f.render)
	case cmdConvert:
		fs.StringVarP(&f.output, "output", "o", "", "output file")
		fs.BoolVar(&f.download.noCover, "no-cover", false, "leave the cover out of HTML output")
		addRenderFlags(fs, &f.render)
	case cmdQuery:
		addAuthFlags(fs, &f.auth)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printCommandUsage(usage, cmd)
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return f, fs.Args(), nil
}

// mergeFlags applies flags over cfg. Only flags given a non-zero value
// override.
func mergeFlags(f *cliFlags, cfg *config.Config) {
	setString(&cfg.Auth.Email, f.auth.email)
	setString(&cfg.Auth.APIKey, f.auth.apiKey)

	if f.download.pageCount != 0 {
		cfg.Download.PageCount = f.download.pageCount
	}
	if f.download.rate != 0 {
		cfg.Download.RateLimit = f.download.rate
	}
	if f.download.noCover {
		cfg.Download.NoCover = true
	}
	if f.download.keep {
		cfg.Output.Keep = true
	}

	setString(&cfg.Render.Format, f.render.format)
	if f.render.workers != 0 {
		cfg.Render.Workers = f.render.workers
	}
	setString(&cfg.Render.Timeout, f.render.timeout)
	setString(&cfg.Render.PaperSize, f.render.paper)
	setString(&cfg.Render.AssetsPath, f.render.assets)

	setString(&cfg.Log.Level, f.common.logLevel)
	setString(&cfg.Log.Format, f.common.logFormat)
	setString(&cfg.Metrics.Textfile, f.common.metricsFile)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
