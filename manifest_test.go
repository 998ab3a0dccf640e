package book2pdf

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewManifest_Defaults(t *testing.T) {
	t.Parallel()

	m := NewManifest(nil)
	want := Book{
		Author:      DefaultAuthor,
		Title:       DefaultTitle,
		Publisher:   DefaultPublisher,
		Slug:        DefaultSlug,
		Description: DefaultDescription,
	}
	if m.Book != want {
		t.Errorf("Book = %+v, want %+v", m.Book, want)
	}
}

func TestParseManifest_SourceFields(t *testing.T) {
	t.Parallel()

	data := `{
		"author": "Jan Kowalski",
		"index": 4242,
		"isbn": "978-83",
		"pages": 120,
		"redaction": "PWN",
		"slugged_title": "podstawy",
		"title": "Podstawy",
		"review": "A book.",
		"covers": [{"jpg_location": "https://cdn/x.jpg"}, {"jpg_location": "https://cdn/y.jpg"}],
		"num_pages_downloaded": 37,
		"extra": {"kept": true}
	}`
	m, err := ParseManifest([]byte(data))
	if err != nil {
		t.Fatalf("ParseManifest() error: %v", err)
	}

	want := Book{
		ID: 4242, Title: "Podstawy", Author: "Jan Kowalski", ISBN: "978-83",
		Publisher: "PWN", Slug: "podstawy", Description: "A book.",
		CoverURL: "https://cdn/x.jpg", Pages: 120,
	}
	if m.Book != want {
		t.Errorf("Book = %+v\nwant %+v", m.Book, want)
	}
	if m.PagesDownloaded != 37 {
		t.Errorf("PagesDownloaded = %d, want 37", m.PagesDownloaded)
	}
}

func TestManifest_PreservesUnknownFields(t *testing.T) {
	t.Parallel()

	m, err := ParseManifest([]byte(`{"title":"T","index":1,"extra":{"kept":true},"covers":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	m.PagesDownloaded = 5

	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	s := string(out)
	for _, want := range []string{`"extra":{"kept":true}`, `"num_pages_downloaded":5`, `"covers":[]`, `"title":"T"`} {
		if !strings.Contains(s, want) {
			t.Errorf("output %s missing %s", s, want)
		}
	}
	if strings.Contains(s, DefaultPublisher) {
		t.Errorf("default publisher leaked into %s", s)
	}
}

func TestManifest_NoHTMLEscaping(t *testing.T) {
	t.Parallel()

	m := NewManifest(map[string]json.RawMessage{"title": json.RawMessage(`"Tom & Jerry <1>"`)})
	out, err := m.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "Tom & Jerry <1>") {
		t.Errorf("title escaped: %s", out)
	}
}

func TestIntField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{`12`, 12, true},
		{`"34"`, 34, true},
		{`" 5 "`, 5, true},
		{`"N/A"`, 0, false},
		{`1.5`, 0, false},
		{`null`, 0, false},
		{``, 0, false},
	}
	for _, tt := range tests {
		got, ok := intField(json.RawMessage(tt.raw))
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("intField(%s) = %d, %v; want %d, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseManifest_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := ParseManifest([]byte(`[1,2]`)); !errors.Is(err, ErrManifest) {
		t.Errorf("ParseManifest() error = %v, want ErrManifest", err)
	}
}

func TestBook_DisplayName(t *testing.T) {
	t.Parallel()

	if got := (Book{Author: "A", Title: "B"}).DisplayName(); got != "A - B" {
		t.Errorf("DisplayName() = %q", got)
	}
}
