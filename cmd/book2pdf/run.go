package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	flag "github.com/spf13/pflag"

	book2pdf "github.com/alnah/go-book2pdf"
	"github.com/alnah/go-book2pdf/internal/config"
	"github.com/alnah/go-book2pdf/internal/fileutil"
	"github.com/alnah/go-book2pdf/internal/hints"
	"github.com/alnah/go-book2pdf/internal/libra"
	"github.com/alnah/go-book2pdf/internal/metrics"
	"github.com/alnah/go-book2pdf/internal/telemetry"
)

// Commands.
const (
	cmdDownload = "download"
	cmdConvert  = "convert"
	cmdQuery    = "query"
	cmdConfig   = "config"
	cmdDoctor   = "doctor"
	cmdVersion  = "version"
	cmdHelp     = "help"
)

const (
	serviceName       = "book2pdf"
	telemetryShutdown = 5 * time.Second
)

// run dispatches args (without the program name) and returns the exit code.
// An argument that is not a command is taken as a book URL to download.
func run(args []string, env *Environment) int {
	if len(args) == 0 {
		printUsage(env.Stderr)
		return ExitUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case cmdVersion:
		fmt.Fprintf(env.Stdout, "book2pdf %s\n", Version)
		return ExitSuccess
	case cmdHelp, "-h", "--help":
		return runHelp(rest, env)
	case cmdDoctor:
		return runDoctorCmd(rest, env)
	case cmdDownload, cmdConvert, cmdQuery, cmdConfig:
	default:
		cmd, rest = cmdDownload, args
	}

	ctx, stop := notifyContext(context.Background())
	defer stop()
	return runCommand(ctx, cmd, rest, env)
}

// app carries the resolved settings of one command run.
type app struct {
	cfg      *config.Config
	flags    *cliFlags
	password string
	env      *Environment
	logger   *slog.Logger
}

func runCommand(ctx context.Context, cmd string, args []string, env *Environment) int {
	flags, pos, err := parseFlags(cmd, args, env.Stdout)
	if errors.Is(err, flag.ErrHelp) {
		return ExitSuccess
	}
	if err != nil {
		return report(env, err, hintContext{})
	}

	warnUnknownEnvVars(env.Stderr)
	envCfg := loadEnvConfig()
	cfg, err := resolveConfig(flags, envCfg)
	if err != nil {
		return report(env, err, hintContext{configName: configName(flags, envCfg)})
	}

	a := &app{
		cfg:      cfg,
		flags:    flags,
		password: envCfg.Password,
		env:      env,
		logger:   newLogger(env.Stderr, cfg.Log.Level, cfg.Log.Format, flags.common.quiet, flags.common.verbose),
	}

	shutdown, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		a.logger.Warn("tracing disabled", slog.String("error", err.Error()))
		shutdown = func(context.Context) error { return nil }
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), telemetryShutdown)
		defer cancel()
		_ = shutdown(sctx)
	}()

	switch cmd {
	case cmdConvert:
		err = a.runConvert(ctx, pos)
	case cmdQuery:
		err = a.runQuery(ctx, pos)
	case cmdConfig:
		err = a.runConfig(pos)
	default:
		err = a.runDownload(ctx, pos)
	}

	if path := cfg.Metrics.Textfile; path != "" {
		if werr := metrics.WriteTextfile(path); werr != nil {
			a.logger.Warn("could not write metrics", slog.String("path", path), slog.String("error", werr.Error()))
		}
	}
	if err != nil {
		return report(env, err, hintContext{hasCredentials: cfg.Auth.Email != "" && a.password != ""})
	}
	return ExitSuccess
}

// resolveConfig layers defaults, the config file, BOOK2PDF_* variables and
// flags, then validates the result.
func resolveConfig(flags *cliFlags, envCfg *envConfig) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if name := configName(flags, envCfg); name != "" {
		loaded, err := config.LoadConfig(name)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	applyEnvConfig(envCfg, cfg)
	mergeFlags(flags, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configName returns the --config value, falling back to BOOK2PDF_CONFIG.
func configName(flags *cliFlags, envCfg *envConfig) string {
	if flags.common.config != "" {
		return flags.common.config
	}
	return envCfg.ConfigPath
}

// report prints err with a hint and returns its exit code.
func report(env *Environment, err error, hc hintContext) int {
	fmt.Fprintf(env.Stderr, "error: %v%s\n", err, hintFor(err, hc))
	return exitCodeFor(err)
}

// hintContext is what hintFor knows beyond the error itself.
type hintContext struct {
	hasCredentials bool
	configName     string
}

func hintFor(err error, hc hintContext) string {
	switch {
	case errors.Is(err, book2pdf.ErrBrowserConnect):
		return hints.ForBrowserConnect()
	case errors.Is(err, book2pdf.ErrPageLoad):
		return hints.ForTimeout()
	case errors.Is(err, book2pdf.ErrTransport):
		return hints.ForTransport()
	case errors.Is(err, book2pdf.ErrAuthorization),
		errors.Is(err, libra.ErrLogin),
		errors.Is(err, libra.ErrNoAPIKey):
		return hints.ForAuthorization(hc.hasCredentials)
	case errors.Is(err, book2pdf.ErrNothingToMerge):
		return hints.ForNothingToMerge()
	case errors.Is(err, ErrOutputDir):
		return hints.ForOutputDirectory()
	case errors.Is(err, config.ErrConfigNotFound):
		if hc.configName == "" || fileutil.IsFilePath(hc.configName) {
			return hints.ForConfigNotFound(nil)
		}
		return hints.ForConfigNotFound(config.SearchPaths(hc.configName))
	}
	return ""
}
