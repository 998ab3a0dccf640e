package book2pdf

import (
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/alnah/go-book2pdf/internal/assets"
	"github.com/alnah/go-book2pdf/internal/pipeline"
)

// HTMLBook is the content of a single-document HTML rendition.
type HTMLBook struct {
	Title      string
	Stylesheet string
	Fonts      string

	// Cover is the raw image; empty means no cover block.
	Cover []byte

	// Pages are the cleaned fragments in index order.
	Pages []string
}

// LoadHTMLBook reads pages 1..N from dir, where N is the manifest's
// downloaded count or, when that is zero, the number of page files. Missing
// pages are skipped. Spacer spans are replaced so words keep their gaps.
func LoadHTMLBook(dir BookDir, m *Manifest, styles Styles, withCover bool, logger *slog.Logger) (HTMLBook, error) {
	if logger == nil {
		logger = slog.Default()
	}
	book := HTMLBook{
		Title:      m.Title,
		Stylesheet: styles.Stylesheet,
		Fonts:      styles.Fonts,
	}

	n := m.PagesDownloaded
	if n <= 0 {
		pages, err := dir.Pages()
		if err != nil {
			return book, err
		}
		n = len(pages)
	}
	if n == 0 {
		return book, ErrNoPages
	}

	for i := 1; i <= n; i++ {
		content, err := dir.ReadPage(i)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Debug("page file missing, skipping", slog.Int("index", i))
				continue
			}
			return book, fmt.Errorf("reading page %d: %w", i, err)
		}
		book.Pages = append(book.Pages, pipeline.ReplaceSpacers(content))
	}
	if len(book.Pages) == 0 {
		return book, ErrNoPages
	}

	if withCover && dir.HasCover() {
		data, err := os.ReadFile(dir.CoverPath())
		if err != nil {
			logger.Warn("could not read cover", slog.String("error", err.Error()))
		} else {
			book.Cover = data
		}
	}
	return book, nil
}

type htmlBookData struct {
	Title      string
	Stylesheet template.CSS
	Fonts      template.CSS
	CoverStyle template.CSS
	Cover      template.URL
	Pages      []template.HTML
}

// WriteHTMLBook renders book with the book template from loader.
func WriteHTMLBook(w io.Writer, book HTMLBook, loader assets.AssetLoader) error {
	src, err := loader.LoadTemplate(assets.BookTemplateName)
	if err != nil {
		return err
	}
	tpl, err := template.New(assets.BookTemplateName).Parse(src)
	if err != nil {
		return fmt.Errorf("parsing book template: %w", err)
	}

	// Fragments and CSS come from the book's own renderer and are emitted
	// verbatim.
	data := htmlBookData{
		Title:      book.Title,
		Stylesheet: template.CSS(book.Stylesheet), // #nosec G203
		Fonts:      template.CSS(book.Fonts),      // #nosec G203
		Pages:      make([]template.HTML, len(book.Pages)),
	}
	for i, p := range book.Pages {
		data.Pages[i] = template.HTML(p) // #nosec G203
	}
	if len(book.Cover) > 0 {
		style, err := loader.LoadStyle(assets.CoverStyleName)
		if err != nil {
			return err
		}
		data.CoverStyle = template.CSS(style) // #nosec G203
		data.Cover = template.URL(dataURI(book.Cover))
	}

	if err := tpl.Execute(w, data); err != nil {
		return fmt.Errorf("rendering book template: %w", err)
	}
	return nil
}

func dataURI(data []byte) string {
	return "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}
