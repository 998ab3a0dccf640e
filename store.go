package book2pdf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Book directory layout.
const (
	pagesDirName    = "pages"
	manifestName    = "manifest.json"
	styleName       = "style.css"
	fontsName       = "fonts.css"
	coverName       = "cover.jpg"
	tempPartsName   = "temp_pdf_parts"
	pageExt         = ".html"
	dirPermissions  = 0o750
	filePermissions = 0o644
)

// BookDir is a downloaded book on disk:
//
//	<root>/
//	├── manifest.json
//	├── style.css
//	├── fonts.css
//	├── cover.jpg        (optional)
//	└── pages/
//	    ├── 1.html
//	    └── 2.html
type BookDir struct {
	Root string
}

// Page is one persisted fragment.
type Page struct {
	Index int
	Path  string
}

func (d BookDir) PagesDir() string     { return filepath.Join(d.Root, pagesDirName) }
func (d BookDir) ManifestPath() string { return filepath.Join(d.Root, manifestName) }
func (d BookDir) StylePath() string    { return filepath.Join(d.Root, styleName) }
func (d BookDir) FontsPath() string    { return filepath.Join(d.Root, fontsName) }
func (d BookDir) CoverPath() string    { return filepath.Join(d.Root, coverName) }
func (d BookDir) TempPartsDir() string { return filepath.Join(d.Root, tempPartsName) }

// PagePath returns the fragment path for a 1-based page index.
func (d BookDir) PagePath(index int) string {
	return filepath.Join(d.PagesDir(), strconv.Itoa(index)+pageExt)
}

// Create makes the root and pages directories.
func (d BookDir) Create() error {
	if err := os.MkdirAll(d.PagesDir(), dirPermissions); err != nil {
		return fmt.Errorf("creating book directory: %w", err)
	}
	return nil
}

// Exists reports whether the root is an existing directory.
func (d BookDir) Exists() bool {
	info, err := os.Stat(d.Root)
	return err == nil && info.IsDir()
}

// WritePage persists one fragment.
func (d BookDir) WritePage(index int, content string) error {
	if err := os.WriteFile(d.PagePath(index), []byte(content), filePermissions); err != nil {
		return fmt.Errorf("writing page %d: %w", index, err)
	}
	return nil
}

// ReadPage returns the fragment for index.
func (d BookDir) ReadPage(index int) (string, error) {
	data, err := os.ReadFile(d.PagePath(index))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Pages lists persisted fragments in ascending index order. Files whose
// name is not a positive page number are left out; see ListPages.
func (d BookDir) Pages() ([]Page, error) {
	pages, _, err := d.ListPages()
	return pages, err
}

// ListPages is Pages plus the base names of *.html files in the pages
// directory that are not named <index>.html.
func (d BookDir) ListPages() (pages []Page, strays []string, err error) {
	matches, err := filepath.Glob(filepath.Join(d.PagesDir(), "*"+pageExt))
	if err != nil {
		return nil, nil, err
	}

	pages = make([]Page, 0, len(matches))
	for _, m := range matches {
		idx, err := strconv.Atoi(strings.TrimSuffix(filepath.Base(m), pageExt))
		if err != nil || idx < 1 {
			strays = append(strays, filepath.Base(m))
			continue
		}
		pages = append(pages, Page{Index: idx, Path: m})
	}
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })
	return pages, strays, nil
}

// WriteManifest saves m as indented JSON.
func (d BookDir) WriteManifest(m *Manifest) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("%w: %v", ErrManifest, err)
	}
	if err := os.WriteFile(d.ManifestPath(), buf.Bytes(), filePermissions); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest loads manifest.json.
func (d BookDir) ReadManifest() (*Manifest, error) {
	data, err := os.ReadFile(d.ManifestPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrManifest, d.ManifestPath())
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return ParseManifest(data)
}

// WriteStyles saves the stylesheet and font bundle.
func (d BookDir) WriteStyles(style, fonts string) error {
	if err := os.WriteFile(d.FontsPath(), []byte(fonts), filePermissions); err != nil {
		return fmt.Errorf("writing fonts: %w", err)
	}
	if err := os.WriteFile(d.StylePath(), []byte(style), filePermissions); err != nil {
		return fmt.Errorf("writing stylesheet: %w", err)
	}
	return nil
}

// Styles holds the CSS injected into every page.
type Styles struct {
	Stylesheet string
	Fonts      string
}

// ReadStyles loads the stylesheet and font bundle. A missing file yields
// empty content and os.ErrNotExist so callers can warn and continue.
func (d BookDir) ReadStyles() (Styles, error) {
	var s Styles
	var errs []error

	if data, err := os.ReadFile(d.StylePath()); err == nil {
		s.Stylesheet = string(data)
	} else {
		errs = append(errs, err)
	}
	if data, err := os.ReadFile(d.FontsPath()); err == nil {
		s.Fonts = string(data)
	} else {
		errs = append(errs, err)
	}
	return s, errors.Join(errs...)
}

// WriteCover saves the cover image.
func (d BookDir) WriteCover(data []byte) error {
	if err := os.WriteFile(d.CoverPath(), data, filePermissions); err != nil {
		return fmt.Errorf("writing cover: %w", err)
	}
	return nil
}

// HasCover reports whether a cover image was saved.
func (d BookDir) HasCover() bool {
	info, err := os.Stat(d.CoverPath())
	return err == nil && !info.IsDir()
}

// Remove deletes the whole directory.
func (d BookDir) Remove() error {
	return os.RemoveAll(d.Root)
}
