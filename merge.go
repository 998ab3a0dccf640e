package book2pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.opentelemetry.io/otel/attribute"

	"github.com/alnah/go-book2pdf/internal/metrics"
	"github.com/alnah/go-book2pdf/internal/telemetry"
)

// pdfcpu reads and writes a config directory unless told otherwise.
var disablePDFConfigDir sync.Once

// Merger concatenates single-page parts into one document.
type Merger struct {
	logger *slog.Logger
	conf   *model.Configuration
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithMergeLogger sets the logger. Default: slog.Default().
func WithMergeLogger(l *slog.Logger) MergerOption {
	return func(m *Merger) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMerger creates a Merger with relaxed PDF validation.
func NewMerger(opts ...MergerOption) *Merger {
	disablePDFConfigDir.Do(func() { model.ConfigPath = "disable" })

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	m := &Merger{logger: slog.Default(), conf: conf}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MergeResult reports what went into the merged document.
type MergeResult struct {
	Output string
	Pages  int

	// Skipped lists parts that could not be read or trimmed.
	Skipped []string
}

// Merge keeps the first page of each part, in the given order, and writes
// the result to output. A part that cannot be used is logged and skipped.
// With no usable part, nothing is written and ErrNothingToMerge is
// returned.
func (m *Merger) Merge(ctx context.Context, parts []string, output string) (MergeResult, error) {
	_, span := telemetry.Tracer().Start(ctx, "book2pdf.Merge")
	defer span.End()

	res := MergeResult{Output: output}
	if len(parts) == 0 {
		m.logger.Warn("no PDF pages to merge")
		return res, ErrNothingToMerge
	}

	var pages []io.ReadSeeker
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page, err := m.firstPage(part)
		if err != nil {
			metrics.MergeWarningsTotal.Inc()
			m.logger.Warn("could not merge part", slog.String("part", part), slog.String("error", err.Error()))
			res.Skipped = append(res.Skipped, part)
			continue
		}
		pages = append(pages, page)
	}
	span.SetAttributes(attribute.Int("merge.parts", len(parts)), attribute.Int("merge.skipped", len(res.Skipped)))
	if len(pages) == 0 {
		return res, ErrNothingToMerge
	}

	if err := m.write(pages, output); err != nil {
		span.RecordError(err)
		return res, err
	}
	res.Pages = len(pages)
	m.logger.Info("merged PDF", slog.String("output", output), slog.Int("pages", res.Pages))
	return res, nil
}

// firstPage returns part truncated to its first page. Parts that wrongly
// overflow onto a second page lose the overflow.
func (m *Merger) firstPage(part string) (io.ReadSeeker, error) {
	data, err := os.ReadFile(part) // #nosec G304 -- part paths come from the render stage
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergePage, err)
	}
	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(data), &buf, []string{"1"}, m.conf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergePage, err)
	}
	return bytes.NewReader(buf.Bytes()), nil
}

// write renders into a temp file next to output and renames it into place
// so a failed merge never leaves a truncated artifact.
func (m *Merger) write(pages []io.ReadSeeker, output string) error {
	dir := filepath.Dir(output)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".book2pdf-*.pdf")
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if len(pages) == 1 {
		_, err = io.Copy(tmp, pages[0])
	} else {
		err = api.MergeRaw(pages, tmp, false, m.conf)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%w: merging: %v", ErrPDFGeneration, err)
	}

	if err := os.Chmod(tmp.Name(), filePermissions); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	if err := os.Rename(tmp.Name(), output); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
