package book2pdf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// Metadata defaults applied when the source omits a field.
const (
	DefaultAuthor      = "Unknown Author"
	DefaultTitle       = "Untitled"
	DefaultPublisher   = "Unknown Publisher"
	DefaultSlug        = "untitled"
	DefaultDescription = "No description available."
)

// Book is the typed view of a book's source metadata.
type Book struct {
	ID          int
	Title       string
	Author      string
	ISBN        string
	Publisher   string
	Slug        string
	Description string
	CoverURL    string

	// Pages is the page count declared by the source; 0 when unknown.
	Pages int
}

// DisplayName returns "Author - Title".
func (b Book) DisplayName() string {
	return b.Author + " - " + b.Title
}

// Manifest is the record persisted as manifest.json next to the pages: the
// source metadata as scraped, plus download bookkeeping. Source fields that
// have no typed home are kept verbatim so the file round-trips.
type Manifest struct {
	Book

	// PagesDownloaded is authoritative for consumers and may be lower than
	// Book.Pages when the download stopped at an access boundary.
	PagesDownloaded int
	HasCover        bool

	fields map[string]json.RawMessage
}

// Manifest JSON keys. The metadata keys are the source's own.
const (
	keyAuthor          = "author"
	keyIndex           = "index"
	keyISBN            = "isbn"
	keyPages           = "pages"
	keyPublisher       = "redaction"
	keySlug            = "slugged_title"
	keyTitle           = "title"
	keyDescription     = "review"
	keyCovers          = "covers"
	keyPagesDownloaded = "num_pages_downloaded"
	keyHasCover        = "has_cover"
)

// NewManifest builds a manifest from raw source metadata fields.
func NewManifest(fields map[string]json.RawMessage) *Manifest {
	m := &Manifest{fields: maps.Clone(fields)}
	if m.fields == nil {
		m.fields = map[string]json.RawMessage{}
	}
	m.Book = bookFromFields(m.fields)
	m.PagesDownloaded, _ = intField(m.fields[keyPagesDownloaded])
	_ = json.Unmarshal(m.fields[keyHasCover], &m.HasCover)
	return m
}

// ParseManifest decodes manifest.json content.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	return &m, nil
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*m = *NewManifest(fields)
	return nil
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.fields)+4)
	for k, v := range m.fields {
		out[k] = v
	}
	out[keyAuthor] = m.Author
	out[keyTitle] = m.Title
	out[keyIndex] = m.ID
	out[keyPages] = m.Pages
	out[keyPagesDownloaded] = m.PagesDownloaded
	out[keyHasCover] = m.HasCover
	setIfPresent(out, keyISBN, m.ISBN)
	setIfPresent(out, keyPublisher, m.Publisher)
	setIfPresent(out, keySlug, m.Slug)
	setIfPresent(out, keyDescription, m.Description)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// setIfPresent writes a defaulted field only when it carries real data, so
// defaults do not leak into a re-saved manifest.
func setIfPresent(out map[string]any, key, val string) {
	if _, ok := out[key]; ok || val != "" && !isDefault(val) {
		out[key] = val
	}
}

func isDefault(s string) bool {
	switch s {
	case DefaultPublisher, DefaultSlug, DefaultDescription:
		return true
	}
	return false
}

func bookFromFields(f map[string]json.RawMessage) Book {
	b := Book{
		Author:      stringField(f[keyAuthor], DefaultAuthor),
		Title:       stringField(f[keyTitle], DefaultTitle),
		ISBN:        stringField(f[keyISBN], ""),
		Publisher:   stringField(f[keyPublisher], DefaultPublisher),
		Slug:        stringField(f[keySlug], DefaultSlug),
		Description: stringField(f[keyDescription], DefaultDescription),
	}
	b.ID, _ = intField(f[keyIndex])
	b.Pages, _ = intField(f[keyPages])

	var covers []struct {
		JPG string `json:"jpg_location"`
	}
	if err := json.Unmarshal(f[keyCovers], &covers); err == nil && len(covers) > 0 {
		b.CoverURL = covers[0].JPG
	}
	return b
}

func stringField(raw json.RawMessage, def string) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return def
	}
	return s
}

// intField accepts a JSON number or a numeric string.
func intField(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := strconv.Atoi(n.String()); err == nil {
			return i, true
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
