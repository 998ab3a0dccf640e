package book2pdf

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestBookDir_PagesOrderedByIndex(t *testing.T) {
	t.Parallel()

	dir := BookDir{Root: t.TempDir()}
	if err := dir.Create(); err != nil {
		t.Fatal(err)
	}
	for _, i := range []int{10, 2, 1, 33} {
		if err := dir.WritePage(i, "x"); err != nil {
			t.Fatal(err)
		}
	}
	// Non-page files are ignored.
	if err := os.WriteFile(filepath.Join(dir.PagesDir(), "notes.txt"), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	pages, err := dir.Pages()
	if err != nil {
		t.Fatalf("Pages() error: %v", err)
	}
	var got []int
	for _, p := range pages {
		got = append(got, p.Index)
	}
	want := []int{1, 2, 10, 33}
	if len(got) != len(want) {
		t.Fatalf("Pages() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Pages() = %v, want %v", got, want)
			break
		}
	}
}

func TestBookDir_ListPagesSkipsStrayNames(t *testing.T) {
	t.Parallel()

	dir := BookDir{Root: t.TempDir()}
	if err := dir.Create(); err != nil {
		t.Fatal(err)
	}
	for _, i := range []int{11, 2, 1, 10} {
		if err := dir.WritePage(i, "x"); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range []string{"notes.html", "0.html", "-3.html"} {
		if err := os.WriteFile(filepath.Join(dir.PagesDir(), name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	pages, strays, err := dir.ListPages()
	if err != nil {
		t.Fatalf("ListPages() error: %v", err)
	}
	var got []int
	for _, p := range pages {
		got = append(got, p.Index)
	}
	if want := []int{1, 2, 10, 11}; !slices.Equal(got, want) {
		t.Errorf("indexes = %v, want %v", got, want)
	}
	slices.Sort(strays)
	if want := []string{"-3.html", "0.html", "notes.html"}; !slices.Equal(strays, want) {
		t.Errorf("strays = %v, want %v", strays, want)
	}

	viaPages, err := dir.Pages()
	if err != nil || len(viaPages) != len(pages) {
		t.Errorf("Pages() = %d pages, %v; want %d", len(viaPages), err, len(pages))
	}
}

func TestBookDir_ManifestRoundTrip(t *testing.T) {
	t.Parallel()

	dir := BookDir{Root: t.TempDir()}
	m := testManifest()
	m.PagesDownloaded = 2

	if err := dir.WriteManifest(m); err != nil {
		t.Fatalf("WriteManifest() error: %v", err)
	}
	got, err := dir.ReadManifest()
	if err != nil {
		t.Fatalf("ReadManifest() error: %v", err)
	}
	if got.Book != m.Book || got.PagesDownloaded != 2 {
		t.Errorf("round trip = %+v, want %+v", got, m)
	}
}

func TestBookDir_ReadManifestMissing(t *testing.T) {
	t.Parallel()

	if _, err := (BookDir{Root: t.TempDir()}).ReadManifest(); !errors.Is(err, ErrManifest) {
		t.Errorf("ReadManifest() error = %v, want ErrManifest", err)
	}
}

func TestBookDir_ReadStylesMissing(t *testing.T) {
	t.Parallel()

	dir := BookDir{Root: t.TempDir()}
	if err := os.WriteFile(dir.StylePath(), []byte("p{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := dir.ReadStyles()
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadStyles() error = %v, want ErrNotExist", err)
	}
	if s.Stylesheet != "p{}" || s.Fonts != "" {
		t.Errorf("styles = %+v", s)
	}
}

func TestBookDir_CoverAndRemove(t *testing.T) {
	t.Parallel()

	dir := BookDir{Root: filepath.Join(t.TempDir(), "book")}
	if err := dir.Create(); err != nil {
		t.Fatal(err)
	}
	if dir.HasCover() {
		t.Error("HasCover() before writing")
	}
	if err := dir.WriteCover([]byte{0xff, 0xd8}); err != nil {
		t.Fatal(err)
	}
	if !dir.HasCover() || !dir.Exists() {
		t.Error("cover or directory missing")
	}
	if err := dir.Remove(); err != nil {
		t.Fatal(err)
	}
	if dir.Exists() {
		t.Error("directory still exists after Remove()")
	}
}
