package book2pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-book2pdf/internal/assets"
	"github.com/alnah/go-book2pdf/internal/fileutil"
)

// Output formats.
const (
	FormatPDF  = "pdf"
	FormatHTML = "html"
)

// ParseFormat normalizes and validates an output format. Empty means PDF.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "":
		return FormatPDF, nil
	case FormatPDF, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q (want pdf or html)", ErrInvalidFormat, s)
	}
}

// DefaultOutputName returns "Author - Title.<format>" with characters that
// are invalid in file names removed.
func DefaultOutputName(b Book, format string) string {
	return fileutil.SanitizeFilename(b.DisplayName()) + "." + format
}

// Converter turns a downloaded book directory into a PDF or HTML document.
// Create with NewConverter and Close when done to release the browser.
type Converter struct {
	logger    *slog.Logger
	pages     PageRenderer
	ownsPages bool
	workers   int
	paper     string
	timeout   time.Duration
	assetPath string
	assets    assets.AssetLoader
}

// Option configures a Converter.
type Option func(*Converter)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Converter) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPageRenderer replaces the headless Chrome renderer. The caller keeps
// ownership: Close does not close it.
func WithPageRenderer(r PageRenderer) Option {
	return func(c *Converter) {
		c.pages = r
	}
}

// WithRenderWorkers sets the number of concurrent browser tabs, clamped to
// 1..MaxRenderWorkers.
func WithRenderWorkers(n int) Option {
	return func(c *Converter) {
		c.workers = clampWorkers(n)
	}
}

// WithPaperSize sets the page size (a4, letter). Default: a4.
func WithPaperSize(size string) Option {
	return func(c *Converter) {
		if size != "" {
			c.paper = size
		}
	}
}

// WithPageTimeout bounds the navigation of each page. Default: 30s.
func WithPageTimeout(d time.Duration) Option {
	return func(c *Converter) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithAssetPath overrides built-in HTML assets from a directory.
func WithAssetPath(path string) Option {
	return func(c *Converter) {
		c.assetPath = path
	}
}

// NewConverter creates a Converter. Returns ErrInvalidAssetPath when an
// asset override directory is set but unusable.
func NewConverter(opts ...Option) (*Converter, error) {
	c := &Converter{
		logger:  slog.Default(),
		workers: MaxRenderWorkers,
		paper:   PaperA4,
		timeout: DefaultPageTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	resolver, err := assets.NewAssetResolver(c.assetPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssetPath, err)
	}
	c.assets = resolver

	if c.pages == nil {
		c.pages = newRodRenderer(c.paper, c.timeout)
		c.ownsPages = true
	}
	return c, nil
}

// Close releases the browser if the converter launched one.
func (c *Converter) Close() error {
	if c.ownsPages && c.pages != nil {
		return c.pages.Close()
	}
	return nil
}

// ConvertRequest describes one conversion.
type ConvertRequest struct {
	Dir    BookDir
	Format string

	// Output is the target file. Empty means DefaultOutputName in the
	// current directory.
	Output string

	// NoCover leaves the cover out of HTML output.
	NoCover bool
}

// ConvertResult reports what was written.
type ConvertResult struct {
	Output string
	Format string
	Pages  int

	// Skipped are empty pages; Failed are pages that did not render or
	// could not be merged.
	Skipped []int
	Failed  []int
}

// Convert reads the book in req.Dir and writes the requested format.
// Missing style files are logged and the book renders without them.
func (c *Converter) Convert(ctx context.Context, req ConvertRequest) (result *ConvertResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	format, err := ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}
	m, err := req.Dir.ReadManifest()
	if err != nil {
		return nil, err
	}
	styles, err := req.Dir.ReadStyles()
	if err != nil {
		c.logger.Warn("style files missing, rendering without them", slog.String("error", err.Error()))
	}

	output := req.Output
	if output == "" {
		output = DefaultOutputName(m.Book, format)
	}
	c.logger.Info("converting book",
		slog.String("title", m.Title), slog.String("format", format), slog.String("output", output))

	switch format {
	case FormatHTML:
		return c.convertHTML(req, m, styles, output)
	default:
		return c.convertPDF(ctx, req.Dir, styles, output)
	}
}

func (c *Converter) convertPDF(ctx context.Context, dir BookDir, styles Styles, output string) (*ConvertResult, error) {
	pages, strays, err := dir.ListPages()
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	if len(strays) > 0 {
		c.logger.Warn("ignoring files not named <page>.html", slog.Any("files", strays))
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	partsDir := dir.TempPartsDir()
	renderer := NewRenderer(c.pages, WithWorkers(c.workers), WithRenderLogger(c.logger))
	results, err := renderer.Render(ctx, pages, styles, partsDir)
	if err != nil {
		c.removeParts(partsDir)
		return nil, err
	}

	res := &ConvertResult{Output: output, Format: FormatPDF}
	for _, r := range results {
		switch r.Outcome {
		case SkippedEmpty:
			res.Skipped = append(res.Skipped, r.Index)
		case RenderFailed:
			res.Failed = append(res.Failed, r.Index)
		}
	}

	merged, err := NewMerger(WithMergeLogger(c.logger)).Merge(ctx, RenderedParts(results), output)
	if err != nil {
		if errors.Is(err, ErrNothingToMerge) {
			c.removeParts(partsDir)
		}
		return res, err
	}
	res.Pages = merged.Pages
	for _, r := range results {
		for _, s := range merged.Skipped {
			if r.Output == s {
				res.Failed = append(res.Failed, r.Index)
			}
		}
	}

	c.removeParts(partsDir)
	c.logger.Info("successfully created PDF", slog.String("output", output), slog.Int("pages", res.Pages))
	return res, nil
}

// removeParts deletes the temporary per-page PDFs. Failure only warns.
func (c *Converter) removeParts(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		c.logger.Warn("could not remove temporary parts", slog.String("dir", dir), slog.String("error", err.Error()))
	}
}

func (c *Converter) convertHTML(req ConvertRequest, m *Manifest, styles Styles, output string) (*ConvertResult, error) {
	book, err := LoadHTMLBook(req.Dir, m, styles, !req.NoCover, c.logger)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteHTMLBook(&buf, book, c.assets); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(output, buf.Bytes(), filePermissions); err != nil {
		return nil, fmt.Errorf("writing output: %w", err)
	}

	c.logger.Info("successfully created HTML", slog.String("output", output), slog.Int("pages", len(book.Pages)))
	return &ConvertResult{Output: output, Format: FormatHTML, Pages: len(book.Pages)}, nil
}

// RemoveSource deletes a book directory after conversion unless output
// lies inside it. Reports whether the directory was removed.
func RemoveSource(dir BookDir, output string) (bool, error) {
	if fileutil.IsWithin(output, dir.Root) {
		return false, nil
	}
	if err := dir.Remove(); err != nil {
		return false, fmt.Errorf("removing %s: %w", dir.Root, err)
	}
	return true, nil
}
