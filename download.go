package book2pdf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/alnah/go-book2pdf/internal/metrics"
	"github.com/alnah/go-book2pdf/internal/telemetry"
)

// PageFetcher fetches one page fragment. *Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, bookID, page int) (string, error)
}

// BookFetcher is the full remote surface a book download needs.
// *Client implements it.
type BookFetcher interface {
	PageFetcher
	FetchStylesheet(ctx context.Context, bookID int) (string, error)
	FetchFonts(ctx context.Context, bookID int) (string, error)
}

// PageStore persists fragments keyed by index. BookDir implements it.
type PageStore interface {
	WritePage(index int, content string) error
}

// CoverFetcher downloads a cover image.
type CoverFetcher interface {
	FetchCover(ctx context.Context, url string) ([]byte, error)
}

// Compile-time interface checks.
var (
	_ BookFetcher = (*Client)(nil)
	_ PageStore   = BookDir{}
)

// Downloader drives the sequential page loop.
type Downloader struct {
	logger  *slog.Logger
	limiter *rate.Limiter
	cover   CoverFetcher
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithDownloadLogger sets the logger. Default: slog.Default().
func WithDownloadLogger(l *slog.Logger) DownloaderOption {
	return func(d *Downloader) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRateLimit paces page requests to at most perSecond. Zero or negative
// disables pacing.
func WithRateLimit(perSecond float64) DownloaderOption {
	return func(d *Downloader) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithCoverFetcher enables cover download in DownloadBook.
func WithCoverFetcher(f CoverFetcher) DownloaderOption {
	return func(d *Downloader) {
		d.cover = f
	}
}

// NewDownloader creates a Downloader.
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DownloadResult reports how far a page loop got.
type DownloadResult struct {
	// Pages is the count of fragments persisted: always 1..Pages.
	Pages int

	// Stopped is set when the server denied a page and the loop ended
	// there.
	Stopped *AuthorizationError
}

// Download fetches pages 1..pageCount in order, persisting each. A denial
// ends the loop and is reported in the result, not as an error: everything
// fetched before it is kept. Transport, protocol and storage failures are
// returned as errors together with the partial result.
func (d *Downloader) Download(ctx context.Context, f PageFetcher, store PageStore, bookID, pageCount int) (DownloadResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "book2pdf.Download")
	defer span.End()
	span.SetAttributes(attribute.Int("book.id", bookID), attribute.Int("book.pages", pageCount))

	var res DownloadResult
	for i := 1; i <= pageCount; i++ {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return res, err
			}
		}

		d.logger.Info("getting page", slog.Int("page", i), slog.Int("total", pageCount))
		content, err := f.FetchPage(ctx, bookID, i)
		if err != nil {
			var authErr *AuthorizationError
			if errors.As(err, &authErr) {
				d.logger.Warn("could not get page, stopping",
					slog.Int("page", i), slog.String("reason", authErr.Message))
				res.Stopped = authErr
				break
			}
			span.RecordError(err)
			return res, err
		}

		if err := store.WritePage(i, content); err != nil {
			return res, err
		}
		res.Pages++
		metrics.PagesDownloaded.Inc()
	}

	span.SetAttributes(attribute.Int("book.pages_downloaded", res.Pages))
	return res, nil
}

// BookRequest describes a whole-book download.
type BookRequest struct {
	Manifest *Manifest
	Dir      BookDir

	// PageCount overrides the declared page count when positive.
	PageCount int
	NoCover   bool
}

// DownloadBook fetches the cover, font bundle, stylesheet and every page
// into req.Dir, then writes the manifest with the downloaded count.
func (d *Downloader) DownloadBook(ctx context.Context, f BookFetcher, req BookRequest) (*Manifest, error) {
	m := req.Manifest
	if m == nil || m.ID == 0 {
		return nil, fmt.Errorf("%w: missing book id", ErrInvalidBook)
	}
	pageCount := req.PageCount
	if pageCount <= 0 {
		pageCount = m.Pages
	}
	if pageCount <= 0 {
		return nil, fmt.Errorf("%w: unknown page count for %q", ErrInvalidBook, m.Title)
	}

	if err := req.Dir.Create(); err != nil {
		return nil, err
	}
	d.logger.Info("downloading book", slog.String("dir", req.Dir.Root), slog.Int("pages", pageCount))

	if !req.NoCover && m.CoverURL != "" && d.cover != nil {
		d.saveCover(ctx, m.CoverURL, req.Dir)
	}
	m.HasCover = req.Dir.HasCover()

	fonts, err := f.FetchFonts(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching fonts: %w", err)
	}
	style, err := f.FetchStylesheet(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching stylesheet: %w", err)
	}
	if err := req.Dir.WriteStyles(style, fonts); err != nil {
		return nil, err
	}

	res, err := d.Download(ctx, f, req.Dir, m.ID, pageCount)
	m.PagesDownloaded = res.Pages
	if err != nil {
		return m, err
	}

	if err := req.Dir.WriteManifest(m); err != nil {
		return m, err
	}
	d.logger.Info("downloaded pages and metadata",
		slog.Int("pages", res.Pages), slog.String("dir", req.Dir.Root))
	return m, nil
}

// saveCover logs failures instead of returning them: a missing cover never
// blocks the download.
func (d *Downloader) saveCover(ctx context.Context, url string, dir BookDir) {
	data, err := d.cover.FetchCover(ctx, url)
	if err != nil {
		d.logger.Error("failed to download cover", slog.String("error", err.Error()))
		return
	}
	if err := dir.WriteCover(data); err != nil {
		d.logger.Error("failed to save cover", slog.String("error", err.Error()))
		return
	}
	d.logger.Info("downloaded cover", slog.String("path", dir.CoverPath()))
}
