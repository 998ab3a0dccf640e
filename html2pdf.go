package book2pdf

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-book2pdf/internal/process"
)

// Paper sizes.
const (
	PaperA4     = "a4"
	PaperLetter = "letter"
)

// Paper dimensions in inches.
var paperSizes = map[string][2]float64{
	PaperA4:     {8.27, 11.69},
	PaperLetter: {8.5, 11},
}

// DefaultPageTimeout bounds navigation of one fragment.
const DefaultPageTimeout = 30 * time.Second

// RenderJob is one fragment to turn into a single-page PDF.
type RenderJob struct {
	Index int

	// Path is the fragment file, loaded over file://.
	Path string

	// Styles are injected after load, fonts first.
	Styles Styles
}

// PageRenderer renders one fragment to PDF bytes. Implementations must be
// safe for concurrent use: the pool calls RenderPage from several workers.
type PageRenderer interface {
	RenderPage(ctx context.Context, job RenderJob) ([]byte, error)
	Close() error
}

// Compile-time interface check.
var _ PageRenderer = (*rodRenderer)(nil)

// rodRenderer implements PageRenderer with one shared headless Chrome; each
// job gets its own tab. Rod downloads Chromium on first run when none is
// found.
type rodRenderer struct {
	timeout time.Duration
	paper   [2]float64

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// newRodRenderer creates a renderer for the given paper size and
// per-page navigation timeout.
func newRodRenderer(paper string, timeout time.Duration) *rodRenderer {
	size, ok := paperSizes[strings.ToLower(paper)]
	if !ok {
		size = paperSizes[PaperA4]
	}
	if timeout <= 0 {
		timeout = DefaultPageTimeout
	}
	return &rodRenderer{timeout: timeout, paper: size}
}

// ensureBrowser lazily launches and connects to the browser.
func (r *rodRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New()

	// Pre-installed browser (Docker/containerized environments)
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}

	// NoSandbox required for CI and containers
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" || os.Getenv("ROD_NO_SANDBOX") == "1" {
		l = l.NoSandbox(true)
	}
	l = l.Set("disable-dev-shm-usage")

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	r.launcher = l
	r.browser = b
	return b, nil
}

// Close releases the browser and kills its process group so no Chrome
// helpers outlive the run.
func (r *rodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.launcher != nil {
		if pid := r.launcher.PID(); pid > 0 {
			process.KillProcessGroup(pid)
		}
		r.launcher.Kill()
		r.launcher = nil
	}
	return err
}

// RenderPage loads the fragment in a fresh tab, injects fonts then the
// stylesheet, and prints one zero-margin page with backgrounds.
func (r *rodRenderer) RenderPage(ctx context.Context, job RenderJob) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browser, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(job.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	defer func() { _ = page.Close() }()

	nav := page.Context(ctx).Timeout(r.timeout)
	defer nav.CancelTimeout()
	if err := nav.Navigate(fileURL(abs)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	if err := nav.WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	page = page.Context(ctx)
	if job.Styles.Fonts != "" {
		if err := page.AddStyleTag("", job.Styles.Fonts); err != nil {
			return nil, fmt.Errorf("%w: injecting fonts: %v", ErrPDFGeneration, err)
		}
	}
	if job.Styles.Stylesheet != "" {
		if err := page.AddStyleTag("", job.Styles.Stylesheet); err != nil {
			return nil, fmt.Errorf("%w: injecting stylesheet: %v", ErrPDFGeneration, err)
		}
	}

	reader, err := page.PDF(r.pdfOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPDFGeneration, err)
	}
	buf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading PDF stream: %v", ErrPDFGeneration, err)
	}
	return buf, nil
}

func (r *rodRenderer) pdfOptions() *proto.PagePrintToPDF {
	return &proto.PagePrintToPDF{
		PaperWidth:      floatPtr(r.paper[0]),
		PaperHeight:     floatPtr(r.paper[1]),
		MarginTop:       floatPtr(0),
		MarginBottom:    floatPtr(0),
		MarginLeft:      floatPtr(0),
		MarginRight:     floatPtr(0),
		PrintBackground: true,
	}
}

// fileURL converts an absolute path to a file:// URL.
func fileURL(abs string) string {
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p
}

// floatPtr returns a pointer to a float64 value.
func floatPtr(v float64) *float64 {
	return &v
}
