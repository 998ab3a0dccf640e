package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	book2pdf "github.com/alnah/go-book2pdf"
	"github.com/alnah/go-book2pdf/internal/fileutil"
	"github.com/alnah/go-book2pdf/internal/libra"
	"github.com/alnah/go-book2pdf/internal/yamlutil"
)

// ErrOutputDir marks a configured output directory that cannot be created.
var ErrOutputDir = errors.New("cannot create output directory")

// webTimeout bounds each web front end request.
const webTimeout = 60 * time.Second

const dirPermissions = 0o750

// runDownload fetches a book into <output.dir>/<Author - Title>/ and,
// unless --no-convert, converts it and removes the pages.
func (a *app) runDownload(ctx context.Context, pos []string) error {
	bookURL, err := singleArg(pos, "book URL")
	if err != nil {
		return err
	}

	web, err := a.webClient()
	if err != nil {
		return err
	}
	apiKey, err := web.APIKey(ctx)
	if err != nil {
		return err
	}
	m, err := a.fetchManifest(ctx, web, bookURL)
	if err != nil {
		return err
	}
	a.logger.Info("found book",
		slog.String("title", m.Title), slog.String("author", m.Author), slog.Int("pages", m.Pages))

	if err := a.ensureOutputDir(); err != nil {
		return err
	}
	dir := book2pdf.BookDir{Root: filepath.Join(a.cfg.Output.Dir, fileutil.SanitizeFilename(m.DisplayName()))}

	client, err := book2pdf.Dial(ctx, book2pdf.DialConfig{
		SocketURL:        a.cfg.Remote.SocketURL,
		Namespace:        a.cfg.Remote.Namespace,
		APIKey:           apiKey,
		HTTPClient:       web.HTTPClient(),
		HandshakeTimeout: a.cfg.Remote.HandshakeTimeoutDuration(),
		Logger:           a.logger,
	})
	if err != nil {
		return err
	}

	d := book2pdf.NewDownloader(
		book2pdf.WithDownloadLogger(a.logger),
		book2pdf.WithRateLimit(a.cfg.Download.RateLimit),
		book2pdf.WithCoverFetcher(web),
	)
	start := a.env.Now()
	m, err = d.DownloadBook(ctx, client, book2pdf.BookRequest{
		Manifest:  m,
		Dir:       dir,
		PageCount: a.cfg.Download.PageCount,
		NoCover:   a.cfg.Download.NoCover,
	})
	if cerr := client.Close(); cerr != nil {
		a.logger.Debug("closing session", slog.String("error", cerr.Error()))
	}
	if err != nil {
		return err
	}
	a.printf("Downloaded %d pages to %s (%s)\n", m.PagesDownloaded, dir.Root, a.env.Now().Sub(start).Round(time.Millisecond))

	if a.flags.download.noConvert {
		return nil
	}
	res, err := a.convertBook(ctx, dir)
	if err != nil {
		return err
	}
	if a.cfg.Output.Keep {
		return nil
	}
	removed, err := book2pdf.RemoveSource(dir, res.Output)
	if err != nil {
		a.logger.Warn("could not remove downloaded pages", slog.String("error", err.Error()))
		return nil
	}
	if removed {
		a.logger.Info("removed source directory", slog.String("dir", dir.Root))
	}
	return nil
}

// runConvert converts an already downloaded book directory.
func (a *app) runConvert(ctx context.Context, pos []string) error {
	root, err := singleArg(pos, "book directory")
	if err != nil {
		return err
	}
	dir := book2pdf.BookDir{Root: root}
	if !dir.Exists() {
		return fmt.Errorf("book directory %s: %w", root, os.ErrNotExist)
	}
	_, err = a.convertBook(ctx, dir)
	return err
}

// convertBook renders dir in the configured format. Without -o the output
// is <output.dir>/<Author - Title>.<format>.
func (a *app) convertBook(ctx context.Context, dir book2pdf.BookDir) (*book2pdf.ConvertResult, error) {
	format, err := book2pdf.ParseFormat(a.cfg.Render.Format)
	if err != nil {
		return nil, err
	}
	output := a.flags.output
	if output == "" {
		m, err := dir.ReadManifest()
		if err != nil {
			return nil, err
		}
		output = filepath.Join(a.cfg.Output.Dir, book2pdf.DefaultOutputName(m.Book, format))
	}

	opts := []book2pdf.Option{
		book2pdf.WithLogger(a.logger),
		book2pdf.WithPaperSize(a.cfg.Render.PaperSize),
		book2pdf.WithPageTimeout(a.cfg.Render.PageTimeout()),
		book2pdf.WithAssetPath(a.cfg.Render.AssetsPath),
	}
	if a.cfg.Render.Workers > 0 {
		opts = append(opts, book2pdf.WithRenderWorkers(a.cfg.Render.Workers))
	}
	if a.env.PageRenderer != nil {
		opts = append(opts, book2pdf.WithPageRenderer(a.env.PageRenderer))
	}
	conv, err := book2pdf.NewConverter(opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := conv.Close(); cerr != nil {
			a.logger.Debug("closing browser", slog.String("error", cerr.Error()))
		}
	}()

	start := a.env.Now()
	res, err := conv.Convert(ctx, book2pdf.ConvertRequest{
		Dir:     dir,
		Format:  format,
		Output:  output,
		NoCover: a.cfg.Download.NoCover,
	})
	if err != nil {
		return nil, err
	}

	a.printf("Created %s (%d pages, %s)\n", res.Output, res.Pages, a.env.Now().Sub(start).Round(time.Millisecond))
	if len(res.Failed) > 0 {
		a.printf("  %d page(s) missing from the output: %v\n", len(res.Failed), res.Failed)
	}
	return res, nil
}

// runQuery prints a book's metadata.
func (a *app) runQuery(ctx context.Context, pos []string) error {
	bookURL, err := singleArg(pos, "book URL")
	if err != nil {
		return err
	}
	web, err := a.webClient()
	if err != nil {
		return err
	}
	if err := web.Login(ctx); err != nil {
		return err
	}
	m, err := a.fetchManifest(ctx, web, bookURL)
	if err != nil {
		return err
	}

	w := a.env.Stdout
	fmt.Fprintf(w, "Author: %s\n", m.Author)
	fmt.Fprintf(w, "Title: %s\n", m.Title)
	fmt.Fprintf(w, "Description: %s\n", m.Description)
	fmt.Fprintf(w, "Cover URL: %s\n", m.CoverURL)
	return nil
}

// runConfig prints the effective configuration as YAML. The API key is
// masked.
func (a *app) runConfig(pos []string) error {
	if len(pos) > 0 {
		return fmt.Errorf("%w: config takes no arguments", ErrUsage)
	}
	cfg := *a.cfg
	if cfg.Auth.APIKey != "" {
		cfg.Auth.APIKey = "********"
	}
	out, err := yamlutil.Marshal(&cfg)
	if err != nil {
		return err
	}
	_, err = a.env.Stdout.Write(out)
	return err
}

func (a *app) webClient() (*libra.Client, error) {
	if a.cfg.Auth.Email != "" && a.password == "" && a.cfg.Auth.APIKey == "" {
		a.logger.Warn("email set without BOOK2PDF_PASSWORD, continuing anonymously")
	}
	return libra.New(libra.Config{
		BaseURL:  a.cfg.Remote.WebURL,
		Email:    a.cfg.Auth.Email,
		Password: a.password,
		APIKey:   a.cfg.Auth.APIKey,
		Timeout:  webTimeout,
		Logger:   a.logger,
	})
}

func (a *app) fetchManifest(ctx context.Context, web *libra.Client, bookURL string) (*book2pdf.Manifest, error) {
	fields, err := web.Metadata(ctx, bookURL)
	if err != nil {
		return nil, fmt.Errorf("reading book metadata: %w", err)
	}
	return book2pdf.NewManifest(fields), nil
}

func (a *app) ensureOutputDir() error {
	if a.cfg.Output.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(a.cfg.Output.Dir, dirPermissions); err != nil {
		return fmt.Errorf("%w: %v", ErrOutputDir, err)
	}
	return nil
}

// printf writes progress to stdout unless --quiet.
func (a *app) printf(format string, args ...any) {
	if a.flags.common.quiet {
		return
	}
	fmt.Fprintf(a.env.Stdout, format, args...)
}

func singleArg(pos []string, what string) (string, error) {
	if len(pos) != 1 || pos[0] == "" {
		return "", fmt.Errorf("%w: expected one %s, got %d argument(s)", ErrUsage, what, len(pos))
	}
	return pos[0], nil
}
