package assets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAssetResolver_EmbeddedOnly(t *testing.T) {
	t.Parallel()

	r, err := NewAssetResolver("")
	if err != nil {
		t.Fatalf("NewAssetResolver() error: %v", err)
	}
	if r.HasCustomLoader() {
		t.Error("HasCustomLoader() = true without a base path")
	}

	want, _ := LoadTemplate(BookTemplateName)
	if got, err := r.LoadTemplate(BookTemplateName); err != nil || got != want {
		t.Errorf("LoadTemplate() = %q, %v", got, err)
	}
}

func TestAssetResolver_CustomFirstWithFallback(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	writeAsset(t, base, "templates", "book.html", "custom")

	r, err := NewAssetResolver(base)
	if err != nil {
		t.Fatalf("NewAssetResolver() error: %v", err)
	}
	if !r.HasCustomLoader() {
		t.Error("HasCustomLoader() = false")
	}

	if got, err := r.LoadTemplate(BookTemplateName); err != nil || got != "custom" {
		t.Errorf("LoadTemplate() = %q, %v; want custom override", got, err)
	}

	embedded, _ := LoadStyle(CoverStyleName)
	if got, err := r.LoadStyle(CoverStyleName); err != nil || got != embedded {
		t.Errorf("LoadStyle() = %q, %v; want embedded fallback", got, err)
	}
}

func TestAssetResolver_NoFallbackOnReadError(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	// A directory where a file is expected fails to read, not with not-found.
	if err := os.MkdirAll(filepath.Join(base, "templates", "book.html"), 0o755); err != nil {
		t.Fatal(err)
	}

	r, err := NewAssetResolver(base)
	if err != nil {
		t.Fatalf("NewAssetResolver() error: %v", err)
	}
	if _, err := r.LoadTemplate(BookTemplateName); !errors.Is(err, ErrAssetRead) {
		t.Errorf("LoadTemplate() error = %v, want ErrAssetRead", err)
	}
}

func TestAssetResolver_InvalidBasePath(t *testing.T) {
	t.Parallel()

	if _, err := NewAssetResolver("/nonexistent/assets/xyz"); !errors.Is(err, ErrInvalidBasePath) {
		t.Errorf("NewAssetResolver() error = %v, want ErrInvalidBasePath", err)
	}
}
