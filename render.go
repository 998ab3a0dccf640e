package book2pdf

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alnah/go-book2pdf/internal/metrics"
	"github.com/alnah/go-book2pdf/internal/pipeline"
	"github.com/alnah/go-book2pdf/internal/telemetry"
)

// MaxRenderWorkers is the hard ceiling on concurrent browser tabs.
const MaxRenderWorkers = 10

// RenderOutcome is what happened to one fragment.
type RenderOutcome int

const (
	Rendered RenderOutcome = iota
	SkippedEmpty
	RenderFailed
)

func (o RenderOutcome) String() string {
	switch o {
	case Rendered:
		return "rendered"
	case SkippedEmpty:
		return "skipped"
	case RenderFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RenderResult holds the outcome of a single fragment.
type RenderResult struct {
	Index    int
	Source   string
	Output   string
	Outcome  RenderOutcome
	Err      error
	Duration time.Duration
}

// Classifier reports, in input order, which fragment files are empty.
type Classifier func(ctx context.Context, paths []string) ([]bool, error)

// Renderer runs the two-stage pipeline: parallel emptiness classification,
// then bounded parallel rendering of the non-empty fragments.
type Renderer struct {
	pages    PageRenderer
	workers  int
	logger   *slog.Logger
	classify Classifier
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithWorkers sets the pool size. Values outside 1..MaxRenderWorkers are
// clamped.
func WithWorkers(n int) RendererOption {
	return func(r *Renderer) {
		r.workers = clampWorkers(n)
	}
}

// WithRenderLogger sets the logger. Default: slog.Default().
func WithRenderLogger(l *slog.Logger) RendererOption {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClassifier replaces the emptiness check.
func WithClassifier(c Classifier) RendererOption {
	return func(r *Renderer) {
		if c != nil {
			r.classify = c
		}
	}
}

// NewRenderer creates a Renderer drawing tabs from pages.
func NewRenderer(pages PageRenderer, opts ...RendererOption) *Renderer {
	r := &Renderer{
		pages:    pages,
		workers:  MaxRenderWorkers,
		logger:   slog.Default(),
		classify: pipeline.ClassifyFiles,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func clampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxRenderWorkers {
		return MaxRenderWorkers
	}
	return n
}

// Render classifies pages, renders the non-empty ones into outDir as
// <index>.pdf and returns one result per page ordered by index. Per-page
// failures are logged and reported in the results; the returned error is
// reserved for setup failures and cancellation.
func (r *Renderer) Render(ctx context.Context, pages []Page, styles Styles, outDir string) ([]RenderResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "book2pdf.Render")
	defer span.End()

	pages = orderPages(pages)
	if len(pages) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(outDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating parts directory: %w", err)
	}

	paths := make([]string, len(pages))
	for i, p := range pages {
		paths[i] = p.Path
	}
	empty, err := r.classify(ctx, paths)
	if err != nil {
		return nil, err
	}

	results := make([]RenderResult, len(pages))
	jobs := make(chan int, len(pages))
	for i, p := range pages {
		results[i] = RenderResult{Index: p.Index, Source: p.Path}
		if empty[i] {
			results[i].Outcome = SkippedEmpty
			metrics.PagesRendered.WithLabelValues(SkippedEmpty.String()).Inc()
			r.logger.Debug("skipping empty page", slog.Int("index", p.Index))
			continue
		}
		jobs <- i
	}
	close(jobs)

	concurrency := min(r.workers, len(jobs))
	r.logger.Info("rendering pages",
		slog.Int("pages", len(jobs)), slog.Int("skipped", len(pages)-len(jobs)), slog.Int("workers", concurrency))

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				r.renderOne(ctx, &results[idx], styles, outDir)
			}
		}()
	}
	wg.Wait()

	rendered := 0
	for _, res := range results {
		if res.Outcome == Rendered {
			rendered++
		}
	}
	span.SetAttributes(attribute.Int("render.pages", len(pages)), attribute.Int("render.rendered", rendered))

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// renderOne fills res. Each worker writes only its own slot.
func (r *Renderer) renderOne(ctx context.Context, res *RenderResult, styles Styles, outDir string) {
	if err := ctx.Err(); err != nil {
		res.Outcome = RenderFailed
		res.Err = err
		return
	}

	metrics.RenderInFlight.Inc()
	start := time.Now()
	data, err := r.pages.RenderPage(ctx, RenderJob{Index: res.Index, Path: res.Source, Styles: styles})
	res.Duration = time.Since(start)
	metrics.RenderInFlight.Dec()
	metrics.RenderDuration.Observe(res.Duration.Seconds())

	if err == nil {
		out := filepath.Join(outDir, strconv.Itoa(res.Index)+".pdf")
		if werr := os.WriteFile(out, data, filePermissions); werr != nil {
			err = fmt.Errorf("writing part: %w", werr)
		} else {
			res.Output = out
		}
	}

	if err != nil {
		res.Outcome = RenderFailed
		res.Err = fmt.Errorf("%w: page %d: %w", ErrRender, res.Index, err)
		metrics.PagesRendered.WithLabelValues(RenderFailed.String()).Inc()
		r.logger.Error("failed to render page", slog.Int("index", res.Index), slog.String("error", err.Error()))
		return
	}
	res.Outcome = Rendered
	metrics.PagesRendered.WithLabelValues(Rendered.String()).Inc()
	r.logger.Debug("rendered page", slog.Int("index", res.Index), slog.Duration("duration", res.Duration))
}

// orderPages sorts by index and drops later duplicates.
func orderPages(pages []Page) []Page {
	out := make([]Page, len(pages))
	copy(out, pages)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })

	uniq := out[:0]
	for _, p := range out {
		if len(uniq) > 0 && p.Index == uniq[len(uniq)-1].Index {
			continue
		}
		uniq = append(uniq, p)
	}
	return uniq
}

// RenderedParts returns the output paths of successful renders in index
// order.
func RenderedParts(results []RenderResult) []string {
	var parts []string
	for _, res := range results {
		if res.Outcome == Rendered {
			parts = append(parts, res.Output)
		}
	}
	return parts
}
